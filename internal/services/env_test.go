package services

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/souta-pqr/money-suppli/internal/logger"
	"github.com/souta-pqr/money-suppli/internal/models"
	"github.com/souta-pqr/money-suppli/internal/store"
)

type testEnv struct {
	store     *store.LocalStore
	flaky     *flakyStore
	users     *UserService
	market    *MarketSimulator
	portfolio *PortfolioService
	auth      *AuthService
	learning  *LearningService
	mailer    *captureMailer
	clock     *testClock
}

// flakyStore fails the next Get after failNextGet is called.
type flakyStore struct {
	store.UserStore
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) failNextGet() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = true
}

func (f *flakyStore) Get(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	fail := f.fail
	f.fail = false
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return f.UserStore.Get(ctx, id)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureMailer struct {
	mu    sync.Mutex
	email string
	link  string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.email, m.link = email, link
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st, err := store.NewLocalStore(context.Background(), db)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logger.Discard()
	clock := &testClock{now: testNow}
	flaky := &flakyStore{UserStore: st}

	users := NewUserService(flaky, decimal.NewFromInt(1000000), BrokerDiscount, log)
	users.now = clock.Now

	market := NewMarketSimulator(ctx, nil, log)
	market.SetRandFactory(func() *rand.Rand { return rand.New(rand.NewSource(7)) })
	market.now = clock.Now

	portfolio := NewPortfolioService(users, flaky, market, log)
	portfolio.now = clock.Now
	market.SetObserver(portfolio)

	mailer := &captureMailer{}
	auth := NewAuthService(flaky, users, mailer, AuthConfig{
		JWTSecret:    "test-secret",
		ResetURLBase: "http://localhost:3000/reset-password",
	}, log)

	return &testEnv{
		store:     st,
		flaky:     flaky,
		users:     users,
		market:    market,
		portfolio: portfolio,
		auth:      auth,
		learning:  NewLearningService(users, flaky, log),
		mailer:    mailer,
		clock:     clock,
	}
}

// createUser stores a fresh account and returns its id.
func (e *testEnv) createUser(t *testing.T) string {
	t.Helper()
	u := e.users.NewUser("", "", "", true)
	require.NoError(t, e.store.Create(context.Background(), u))
	return u.ID
}

// instrument returns the first catalog instrument the user's market lists
// in the given category.
func (e *testEnv) instrument(t *testing.T, userID string, category models.Category) models.Instrument {
	t.Helper()
	for _, in := range e.market.Instruments(userID) {
		if in.Category == category {
			return in
		}
	}
	t.Fatalf("no %s instrument", category)
	return models.Instrument{}
}
