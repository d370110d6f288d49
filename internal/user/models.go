package user

import "time"

// User represents a registered account. Every usage record and every
// analytics query is scoped to exactly one user.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	APIKeyHash   string    `json:"-"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUserInput holds the fields required to create a new user. The
// ingest API key hash and prefix are generated by the caller; the plaintext
// key is shown once at creation and never stored.
type CreateUserInput struct {
	Email        string
	Password     string
	Name         string
	APIKeyHash   string
	APIKeyPrefix string
}
