package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/souta-pqr/money-suppli/internal/models"
)

func setupLocalStore(t *testing.T) *LocalStore {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewLocalStore(context.Background(), db)
	require.NoError(t, err)
	return s
}

func testUser(id, email string) *models.User {
	return &models.User{
		ID:        id,
		Email:     email,
		Name:      "テスト",
		Password:  "hashed",
		CreatedAt: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
		Settings:  models.DefaultSettings(),
		Portfolio: models.Portfolio{
			Cash:       decimal.NewFromInt(1000000),
			BrokerType: "discount",
			Positions:  []models.Position{},
		},
		Learning: models.LearningProgress{
			CompletedLessons: []string{},
			Progress:         map[string]float64{},
			QuizResults:      map[string]models.QuizResult{},
		},
	}
}

func TestLocalStore_CreateAndGet(t *testing.T) {
	s := setupLocalStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testUser("u1", "a@example.com")))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)
	assert.Equal(t, "hashed", got.Password, "password hash must survive the JSON blob")
	assert.True(t, got.Portfolio.Cash.Equal(decimal.NewFromInt(1000000)))
	assert.Equal(t, models.ThemeLight, got.Settings.Theme)

	byEmail, err := s.FindByEmail(ctx, "  A@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)
}

func TestLocalStore_NotFound(t *testing.T) {
	s := setupLocalStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Update(ctx, "missing", Fields{"name": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_DuplicateEmail(t *testing.T) {
	s := setupLocalStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testUser("u1", "a@example.com")))
	err := s.Create(ctx, testUser("u2", "a@example.com"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestLocalStore_GuestsWithoutEmail(t *testing.T) {
	s := setupLocalStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testUser("g1", "")))
	require.NoError(t, s.Create(ctx, testUser("g2", "")))

	ids, err := s.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, ids)
}

func TestLocalStore_UpdateMergesDottedPaths(t *testing.T) {
	s := setupLocalStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, testUser("u1", "a@example.com")))

	expires := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	err := s.Update(ctx, "u1", Fields{
		"portfolio.cash":         decimal.RequireFromString("12345.67"),
		"settings.theme":         models.ThemeDark,
		"learning.progress":      map[string]float64{"1": 50},
		"auth.resetTokenHash":    "abc",
		"auth.resetExpiresAt":    expires,
		"portfolio.brokerType":   "app",
		"learning.quizResults":   map[string]models.QuizResult{"1-102": {Correct: 1, Total: 1}},
		"portfolio.positions":    []models.Position{{InstrumentID: "7203", Quantity: 100}},
		"settings.notifications": false,
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.Portfolio.Cash.Equal(decimal.RequireFromString("12345.67")))
	assert.Equal(t, "app", got.Portfolio.BrokerType)
	assert.Equal(t, models.ThemeDark, got.Settings.Theme)
	assert.False(t, got.Settings.Notifications)
	assert.Equal(t, 50.0, got.Learning.Progress["1"])
	assert.Equal(t, 1, got.Learning.QuizResults["1-102"].Correct)
	assert.Equal(t, "abc", got.Auth.ResetTokenHash)
	assert.True(t, got.Auth.ResetExpiresAt.Equal(expires))
	require.Len(t, got.Portfolio.Positions, 1)
	assert.Equal(t, int64(100), got.Portfolio.Positions[0].Quantity)

	// untouched fields keep their values
	assert.Equal(t, "テスト", got.Name)
	assert.Equal(t, "hashed", got.Password)
}

func TestLocalStore_UpdateEmptyFieldsIsNoop(t *testing.T) {
	s := setupLocalStore(t)
	assert.NoError(t, s.Update(context.Background(), "anything", Fields{}))
}
