package user

import (
	"context"
	"fmt"

	"github.com/alecgard/gabelle/internal/crypto"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Store provides database operations for user accounts.
type Store struct {
	pool   *pgxpool.Pool
	cipher *crypto.Cipher // nil disables provider key storage encryption
}

// NewStore creates a new user store backed by the given connection pool.
// The cipher, when non-nil, encrypts stored provider API keys at rest.
func NewStore(pool *pgxpool.Pool, cipher *crypto.Cipher) *Store {
	return &Store{pool: pool, cipher: cipher}
}

const userColumns = `id, email, password_hash, name, api_key_hash, api_key_prefix, created_at`

func scanUser(scan func(dest ...any) error) (*User, error) {
	u := &User{}
	err := scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.APIKeyHash, &u.APIKeyPrefix, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new user with a bcrypt-hashed password.
func (s *Store) Create(ctx context.Context, in CreateUserInput) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO users (email, password_hash, name, api_key_hash, api_key_prefix)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+userColumns,
			in.Email, string(hash), in.Name, in.APIKeyHash, in.APIKeyPrefix,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// GetByAPIKeyHash retrieves the user owning the ingest API key with the
// given hash.
func (s *Store) GetByAPIKeyHash(ctx context.Context, hash string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE api_key_hash = $1`, hash,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user by api key: %w", err)
	}
	return u, nil
}

// RotateAPIKey replaces the user's ingest API key hash and prefix.
func (s *Store) RotateAPIKey(ctx context.Context, id, hash, prefix string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET api_key_hash = $1, api_key_prefix = $2 WHERE id = $3`,
		hash, prefix, id)
	if err != nil {
		return fmt.Errorf("rotating api key: %w", err)
	}
	return nil
}

// SetProviderKey stores the user's upstream provider API key, encrypted at
// rest when the store has a cipher.
func (s *Store) SetProviderKey(ctx context.Context, id, plaintext string) error {
	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypting provider key: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE users SET provider_key = $1 WHERE id = $2`, ciphertext, id)
	if err != nil {
		return fmt.Errorf("storing provider key: %w", err)
	}
	return nil
}

// ProviderKey returns the user's decrypted provider API key, or an empty
// string when none is configured.
func (s *Store) ProviderKey(ctx context.Context, id string) (string, error) {
	var stored *string
	err := s.pool.QueryRow(ctx,
		`SELECT provider_key FROM users WHERE id = $1`, id).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("getting provider key: %w", err)
	}
	if stored == nil || *stored == "" {
		return "", nil
	}
	plaintext, err := s.cipher.Decrypt(*stored)
	if err != nil {
		return "", fmt.Errorf("decrypting provider key: %w", err)
	}
	return plaintext, nil
}

// Delete removes a user by id. Usage records cascade with the row.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// CheckPassword verifies a plaintext password against the user's hash.
func CheckPassword(u *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
