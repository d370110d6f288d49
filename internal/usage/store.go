package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for usage records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// BatchInsert writes a slice of records to the database in a single multi-row
// INSERT statement. It is a no-op when records is empty.
func (s *Store) BatchInsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	const cols = 14 // number of columns per row
	args := make([]any, 0, len(records)*cols)
	rows := make([]string, 0, len(records))

	for i, rec := range records {
		base := i * cols
		rows = append(rows, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
			base+8, base+9, base+10, base+11, base+12, base+13, base+14,
		))

		var metadata []byte
		if len(rec.Metadata) > 0 {
			b, err := json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("marshaling record metadata: %w", err)
			}
			metadata = b
		}

		args = append(args,
			rec.ID,
			rec.UserID,
			nullable(rec.AssistantID),
			nullable(rec.ThreadID),
			rec.Model,
			rec.PromptTokens,
			rec.CompletionTokens,
			rec.TotalTokens,
			rec.EstimatedCost,
			rec.RequestType,
			rec.Success,
			nullable(rec.ErrorMessage),
			metadata,
			rec.CreatedAt,
		)
	}

	query := `INSERT INTO usage_records
		(id, user_id, assistant_id, thread_id, model, prompt_tokens,
		 completion_tokens, total_tokens, estimated_cost, request_type,
		 success, error_message, metadata, created_at)
		VALUES ` + strings.Join(rows, ", ")

	_, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("batch inserting usage records: %w", err)
	}

	return nil
}

const recordColumns = `id, user_id, assistant_id, thread_id, model,
	prompt_tokens, completion_tokens, total_tokens, estimated_cost,
	request_type, success, error_message, metadata, created_at`

// List returns the user's records matching the query, ordered by created_at
// DESC. When q.Limit is zero all matching rows are returned.
func (s *Store) List(ctx context.Context, userID string, q Query) ([]Record, error) {
	where, args := buildWhereClause(userID, q)

	query := `SELECT ` + recordColumns + ` FROM usage_records` + where +
		` ORDER BY created_at DESC, id DESC`

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	return s.queryRecords(ctx, query, args)
}

// ListAscending returns the user's records matching the date range, ordered
// by created_at ASC. The summary aggregation consumes rows in this order so
// that period comparisons downstream stay consistent.
func (s *Store) ListAscending(ctx context.Context, userID string, from, to time.Time) ([]Record, error) {
	where, args := buildWhereClause(userID, Query{From: from, To: to})

	query := `SELECT ` + recordColumns + ` FROM usage_records` + where +
		` ORDER BY created_at ASC, id ASC`

	return s.queryRecords(ctx, query, args)
}

func (s *Store) queryRecords(ctx context.Context, query string, args []any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing usage records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var assistantID, threadID, errorMessage *string
		var metadata []byte
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &assistantID, &threadID, &rec.Model,
			&rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens,
			&rec.EstimatedCost, &rec.RequestType, &rec.Success,
			&errorMessage, &metadata, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning usage record row: %w", err)
		}
		if assistantID != nil {
			rec.AssistantID = *assistantID
		}
		if threadID != nil {
			rec.ThreadID = *threadID
		}
		if errorMessage != nil {
			rec.ErrorMessage = *errorMessage
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling record metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage record rows: %w", err)
	}

	return records, nil
}

// buildWhereClause constructs a WHERE clause and positional arguments. The
// user id is always the first condition; every query is scoped to one user.
func buildWhereClause(userID string, q Query) (string, []any) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}

	if !q.From.IsZero() {
		args = append(args, q.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

// nullable maps an empty string onto SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
