package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/souta-pqr/money-suppli/internal/models"
)

const localSchema = `
CREATE TABLE IF NOT EXISTS user_data (
	id TEXT PRIMARY KEY,
	email TEXT,
	data TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_user_data_email ON user_data(email) WHERE email IS NOT NULL AND email != '';
`

// LocalStore keeps each user as one JSON blob in SQLite, keyed by user id.
type LocalStore struct {
	db *sql.DB
}

// localRecord adds the fields that are hidden from API responses back into
// the stored blob, under the same names the document store uses.
type localRecord struct {
	*models.User
	Password string           `json:"password"`
	Auth     models.AuthState `json:"auth"`
}

// NewLocalStore creates the schema if needed.
func NewLocalStore(ctx context.Context, db *sql.DB) (*LocalStore, error) {
	if _, err := db.ExecContext(ctx, localSchema); err != nil {
		return nil, fmt.Errorf("failed to create local schema: %w", err)
	}
	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Create(ctx context.Context, u *models.User) error {
	data, err := encodeRecord(u)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO user_data (id, email, data, updated_at) VALUES (?, ?, ?, ?)",
		u.ID, nullableEmail(u.Email), data, time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *LocalStore) Get(ctx context.Context, id string) (*models.User, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM user_data WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return decodeRecord(data)
}

func (s *LocalStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM user_data WHERE email = ?", NormalizeEmail(email)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return decodeRecord(data)
}

// Update decodes the blob into a generic document, sets each dotted path and
// writes the result back in one transaction.
func (s *LocalStore) Update(ctx context.Context, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, "SELECT data FROM user_data WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	doc := map[string]interface{}{}
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return fmt.Errorf("failed to decode user document: %w", err)
	}
	for path, v := range fields {
		generic, err := toGeneric(v)
		if err != nil {
			return fmt.Errorf("failed to encode field %s: %w", path, err)
		}
		setPath(doc, strings.Split(path, "."), generic)
	}

	// Round-trip through the record type so the stored blob stays well formed.
	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode user document: %w", err)
	}
	u, err := decodeRecord(string(merged))
	if err != nil {
		return err
	}
	out, err := encodeRecord(u)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE user_data SET email = ?, data = ?, updated_at = ? WHERE id = ?",
		nullableEmail(u.Email), out, time.Now().Unix(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return tx.Commit()
}

func (s *LocalStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM user_data ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func encodeRecord(u *models.User) (string, error) {
	rec := localRecord{User: u, Password: u.Password, Auth: u.Auth}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode user: %w", err)
	}
	return string(b), nil
}

func decodeRecord(data string) (*models.User, error) {
	rec := localRecord{User: &models.User{}}
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	rec.User.Password = rec.Password
	rec.User.Auth = rec.Auth
	return rec.User, nil
}

func toGeneric(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func setPath(doc map[string]interface{}, path []string, v interface{}) {
	for _, key := range path[:len(path)-1] {
		next, ok := doc[key].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			doc[key] = next
		}
		doc = next
	}
	doc[path[len(path)-1]] = v
}

func nullableEmail(email string) interface{} {
	if email == "" {
		return nil
	}
	return email
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed: user_data.email")
}
