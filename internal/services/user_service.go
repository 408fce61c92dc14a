package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/souta-pqr/money-suppli/internal/models"
	"github.com/souta-pqr/money-suppli/internal/store"
)

const (
	GuestName     = "ゲスト"
	maxNameLength = 50
)

var (
	ErrInvalidName  = errors.New("invalid display name")
	ErrInvalidTheme = errors.New("invalid theme")
)

// UserService owns the user document: creation with starting data, loading
// with a default fallback, and profile and settings edits.
type UserService struct {
	store         store.UserStore
	initialCash   decimal.Decimal
	defaultBroker string
	now           func() time.Time
	log           *logrus.Logger
}

func NewUserService(st store.UserStore, initialCash decimal.Decimal, defaultBroker string, log *logrus.Logger) *UserService {
	if !ValidBroker(defaultBroker) {
		defaultBroker = BrokerDiscount
	}
	return &UserService{
		store:         st,
		initialCash:   initialCash,
		defaultBroker: defaultBroker,
		now:           time.Now,
		log:           log,
	}
}

func (s *UserService) InitialCash() decimal.Decimal {
	return s.initialCash
}

// NewUser builds the starting document: initial cash, one history point,
// no progress and default settings. An empty id gets a fresh UUID.
func (s *UserService) NewUser(id, email, name string, guest bool) *models.User {
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(name) == "" {
		name = GuestName
	}
	now := s.now()
	return &models.User{
		ID:        id,
		Email:     store.NormalizeEmail(email),
		Name:      strings.TrimSpace(name),
		Guest:     guest,
		CreatedAt: now,
		Learning: models.LearningProgress{
			CompletedLessons: []string{},
			Progress:         map[string]float64{},
			QuizResults:      map[string]models.QuizResult{},
		},
		Portfolio: NewPortfolio(s.initialCash, s.defaultBroker, now),
		Settings:  models.DefaultSettings(),
	}
}

// Load returns the user's document for display. Read failures other than a
// missing user are logged and answered with a default document. Callers that
// write the document back must use loadForUpdate instead.
func (s *UserService) Load(ctx context.Context, id string) (*models.User, error) {
	u, err := s.loadForUpdate(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.WithError(err).WithField("user_id", id).Error("Failed to load user data, using defaults")
		return s.NewUser(id, "", "", false), nil
	}
	return u, err
}

// loadForUpdate returns the stored document or the read error. It never
// substitutes defaults.
func (s *UserService) loadForUpdate(ctx context.Context, id string) (*models.User, error) {
	u, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user data: %w", err)
	}
	normalize(u)
	return u, nil
}

// normalize fills collections that older or hand-edited documents may lack.
func normalize(u *models.User) {
	if u.Learning.CompletedLessons == nil {
		u.Learning.CompletedLessons = []string{}
	}
	if u.Learning.Progress == nil {
		u.Learning.Progress = map[string]float64{}
	}
	if u.Learning.QuizResults == nil {
		u.Learning.QuizResults = map[string]models.QuizResult{}
	}
	p := &u.Portfolio
	if p.Positions == nil {
		p.Positions = []models.Position{}
	}
	if p.Transactions == nil {
		p.Transactions = []models.Transaction{}
	}
	if p.History == nil {
		p.History = []models.HistoryPoint{}
	}
	if p.PendingOrders == nil {
		p.PendingOrders = []models.PendingOrder{}
	}
	if p.BrokerType == "" {
		p.BrokerType = BrokerStandard
	}
	if u.Settings.Theme == "" {
		u.Settings = models.DefaultSettings()
	}
}

func (s *UserService) UpdateName(ctx context.Context, id, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, ErrInvalidName
	}
	if err := s.store.Update(ctx, id, store.Fields{"name": name}); err != nil {
		return nil, fmt.Errorf("failed to update name: %w", err)
	}
	return s.Load(ctx, id)
}

// SettingsPatch updates only the fields that are set.
type SettingsPatch struct {
	Theme         *string `json:"theme"`
	Notifications *bool   `json:"notifications"`
}

func (s *UserService) UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (models.Settings, error) {
	fields := store.Fields{}
	if patch.Theme != nil {
		if *patch.Theme != models.ThemeLight && *patch.Theme != models.ThemeDark {
			return models.Settings{}, ErrInvalidTheme
		}
		fields["settings.theme"] = *patch.Theme
	}
	if patch.Notifications != nil {
		fields["settings.notifications"] = *patch.Notifications
	}
	if err := s.store.Update(ctx, id, fields); err != nil {
		return models.Settings{}, fmt.Errorf("failed to update settings: %w", err)
	}

	u, err := s.Load(ctx, id)
	if err != nil {
		return models.Settings{}, err
	}
	return u.Settings, nil
}

// userLocks serializes read-modify-write cycles on one user's document.
type userLocks struct {
	m sync.Map
}

func (l *userLocks) lock(userID string) func() {
	v, _ := l.m.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
