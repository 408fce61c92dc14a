package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/souta-pqr/money-suppli/internal/models"
	"github.com/souta-pqr/money-suppli/internal/store"
)

const (
	CodeUserNotFound      = "user-not-found"
	CodeWrongPassword     = "wrong-password"
	CodeEmailInUse        = "email-already-in-use"
	CodeWeakPassword      = "weak-password"
	CodeInvalidEmail      = "invalid-email"
	CodeTooManyRequests   = "too-many-requests"
	CodeInvalidResetToken = "invalid-reset-token"
	CodeInvalidToken      = "invalid-token"

	minPasswordLength = 6
)

var authMessages = map[string]string{
	CodeUserNotFound:      "メールアドレスまたはパスワードが間違っています",
	CodeWrongPassword:     "メールアドレスまたはパスワードが間違っています",
	CodeEmailInUse:        "このメールアドレスは既に使用されています",
	CodeWeakPassword:      "パスワードは6文字以上で入力してください",
	CodeInvalidEmail:      "メールアドレスの形式が正しくありません",
	CodeTooManyRequests:   "ログイン試行回数が多すぎます。しばらく時間をおいてから再試行してください",
	CodeInvalidResetToken: "パスワードリセットのリンクが無効か、有効期限が切れています",
	CodeInvalidToken:      "認証の有効期限が切れました。もう一度ログインしてください",
}

// AuthError is an authentication failure identified by a stable code.
type AuthError struct {
	Code string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *AuthError) Unwrap() error { return e.Err }

// Message is the text shown to the user.
func (e *AuthError) Message() string {
	if m, ok := authMessages[e.Code]; ok {
		return m
	}
	return "認証に失敗しました。もう一度お試しください"
}

func authError(code string, err error) *AuthError {
	return &AuthError{Code: code, Err: err}
}

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogMailer writes reset links to the log instead of sending mail.
type LogMailer struct {
	Log *logrus.Logger
}

func (m LogMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.Log.WithFields(logrus.Fields{"email": email, "link": link}).Info("Password reset requested")
	return nil
}

// Claims are the bearer token claims. The token id is used for revocation.
type Claims struct {
	UserID string `json:"userID"`
	Guest  bool   `json:"guest,omitempty"`
	jwt.RegisteredClaims
}

// AuthSession is returned by every successful sign-in.
type AuthSession struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

type AuthConfig struct {
	JWTSecret       string
	TokenTTL        time.Duration
	ResetTTL        time.Duration
	ResetURLBase    string
	MaxFailedLogins int
	LockoutWindow   time.Duration
}

func (c AuthConfig) withDefaults() AuthConfig {
	if c.TokenTTL <= 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = time.Hour
	}
	if c.MaxFailedLogins <= 0 {
		c.MaxFailedLogins = 5
	}
	if c.LockoutWindow <= 0 {
		c.LockoutWindow = 15 * time.Minute
	}
	return c
}

type loginAttempts struct {
	count       int
	first       time.Time
	lockedUntil time.Time
}

type AuthService struct {
	store  store.UserStore
	users  *UserService
	mailer Mailer
	cfg    AuthConfig
	secret []byte
	now    func() time.Time
	log    *logrus.Logger

	mu       sync.Mutex
	revoked  map[string]time.Time
	attempts map[string]*loginAttempts
}

func NewAuthService(st store.UserStore, users *UserService, mailer Mailer, cfg AuthConfig, log *logrus.Logger) *AuthService {
	cfg = cfg.withDefaults()
	return &AuthService{
		store:    st,
		users:    users,
		mailer:   mailer,
		cfg:      cfg,
		secret:   []byte(cfg.JWTSecret),
		now:      time.Now,
		log:      log,
		revoked:  make(map[string]time.Time),
		attempts: make(map[string]*loginAttempts),
	}
}

// Register creates an email/password account with the starting portfolio.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (AuthSession, error) {
	email = store.NormalizeEmail(email)
	if !validEmail(email) {
		return AuthSession{}, authError(CodeInvalidEmail, nil)
	}
	if len(password) < minPasswordLength {
		return AuthSession{}, authError(CodeWeakPassword, nil)
	}
	if strings.TrimSpace(name) == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	_, err := s.store.FindByEmail(ctx, email)
	if err == nil {
		return AuthSession{}, authError(CodeEmailInUse, nil)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return AuthSession{}, fmt.Errorf("failed to check email: %w", err)
	}

	user := s.users.NewUser("", email, name, false)
	user.Password = password
	if err := user.HashPassword(); err != nil {
		return AuthSession{}, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return AuthSession{}, authError(CodeEmailInUse, err)
		}
		return AuthSession{}, err
	}

	s.log.WithField("user_id", user.ID).Info("New user registered")
	return s.issue(user)
}

// Login checks credentials. Repeated failures for one email lock it for the
// lockout window.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthSession, error) {
	email = store.NormalizeEmail(email)
	if s.locked(email) {
		return AuthSession{}, authError(CodeTooManyRequests, nil)
	}

	user, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.recordFailure(email)
		return AuthSession{}, authError(CodeUserNotFound, nil)
	}
	if err != nil {
		return AuthSession{}, err
	}
	if !user.CheckPassword(password) {
		s.recordFailure(email)
		return AuthSession{}, authError(CodeWrongPassword, nil)
	}

	s.clearFailures(email)
	return s.issue(user)
}

// Guest creates an anonymous account that can use everything but has no
// credentials.
func (s *AuthService) Guest(ctx context.Context) (AuthSession, error) {
	user := s.users.NewUser("", "", GuestName, true)
	if err := s.store.Create(ctx, user); err != nil {
		return AuthSession{}, err
	}
	s.log.WithField("user_id", user.ID).Info("Guest session started")
	return s.issue(user)
}

// Logout revokes the token until it would have expired anyway.
func (s *AuthService) Logout(tokenString string) error {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return err
	}

	expires := s.now().Add(s.cfg.TokenTTL)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	s.mu.Lock()
	s.revoked[claims.ID] = expires
	s.mu.Unlock()
	return nil
}

// ParseToken validates a bearer token and returns its claims.
func (s *AuthService) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, authError(CodeInvalidToken, err)
	}

	s.mu.Lock()
	_, revoked := s.revoked[claims.ID]
	s.mu.Unlock()
	if revoked {
		return nil, authError(CodeInvalidToken, errors.New("token revoked"))
	}
	return claims, nil
}

// RequestPasswordReset mails a single-use reset link. Only a hash of the
// token is stored.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = store.NormalizeEmail(email)
	if !validEmail(email) {
		return authError(CodeInvalidEmail, nil)
	}
	user, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return authError(CodeUserNotFound, nil)
	}
	if err != nil {
		return err
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	raw := hex.EncodeToString(secret)

	err = s.store.Update(ctx, user.ID, store.Fields{
		"auth.resetTokenHash": hashToken(raw),
		"auth.resetExpiresAt": s.now().Add(s.cfg.ResetTTL),
	})
	if err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	link := fmt.Sprintf("%s?token=%s.%s", s.cfg.ResetURLBase, user.ID, raw)
	return s.mailer.SendPasswordReset(ctx, email, link)
}

// ConfirmPasswordReset sets a new password when token matches the pending
// reset. The token is "<userID>.<secret>".
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	userID, raw, ok := strings.Cut(token, ".")
	if !ok || userID == "" || raw == "" {
		return authError(CodeInvalidResetToken, nil)
	}
	if len(newPassword) < minPasswordLength {
		return authError(CodeWeakPassword, nil)
	}

	user, err := s.store.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return authError(CodeInvalidResetToken, nil)
	}
	if err != nil {
		return err
	}
	pending := user.Auth
	if pending.ResetTokenHash == "" || s.now().After(pending.ResetExpiresAt) ||
		subtle.ConstantTimeCompare([]byte(pending.ResetTokenHash), []byte(hashToken(raw))) != 1 {
		return authError(CodeInvalidResetToken, nil)
	}

	user.Password = newPassword
	if err := user.HashPassword(); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	err = s.store.Update(ctx, userID, store.Fields{
		"password":            user.Password,
		"auth.resetTokenHash": "",
		"auth.resetExpiresAt": time.Time{},
	})
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.clearFailures(user.Email)
	s.log.WithField("user_id", userID).Info("Password reset completed")
	return nil
}

// PurgeExpired forgets revoked tokens that have expired and stale login
// failures. It returns how many entries were removed.
func (s *AuthService) PurgeExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
			n++
		}
	}
	for email, a := range s.attempts {
		if now.After(a.lockedUntil) && now.Sub(a.first) > s.cfg.LockoutWindow {
			delete(s.attempts, email)
			n++
		}
	}
	return n
}

func (s *AuthService) issue(user *models.User) (AuthSession, error) {
	now := s.now()
	expires := now.Add(s.cfg.TokenTTL)
	claims := Claims{
		UserID: user.ID,
		Guest:  user.Guest,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return AuthSession{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return AuthSession{Token: token, ExpiresAt: expires, User: user}, nil
}

func (s *AuthService) locked(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[email]
	return ok && s.now().Before(a.lockedUntil)
}

func (s *AuthService) recordFailure(email string) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[email]
	if !ok || now.Sub(a.first) > s.cfg.LockoutWindow {
		a = &loginAttempts{first: now}
		s.attempts[email] = a
	}
	a.count++
	if a.count >= s.cfg.MaxFailedLogins {
		a.lockedUntil = now.Add(s.cfg.LockoutWindow)
		s.log.WithField("email", email).Warn("Too many failed logins, locking account")
	}
}

func (s *AuthService) clearFailures(email string) {
	s.mu.Lock()
	delete(s.attempts, email)
	s.mu.Unlock()
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
