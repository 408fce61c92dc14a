// Package store persists user documents. One document per user holds the
// profile, learning progress, portfolio and settings; partial updates are
// expressed as dotted field paths such as "portfolio.cash".
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/souta-pqr/money-suppli/internal/models"
)

var (
	ErrNotFound       = errors.New("store: user not found")
	ErrDuplicateEmail = errors.New("store: email already registered")
)

// Fields maps dotted document paths to their new values.
type Fields map[string]interface{}

// UserStore is implemented by MongoStore and LocalStore.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// Update merges fields into the stored document. Paths that do not
	// exist yet are created.
	Update(ctx context.Context, id string, fields Fields) error
	ListIDs(ctx context.Context) ([]string, error)
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
