package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// User is the per-user document. Learning, portfolio and settings are nested
// so that a document store can update them field by field.
type User struct {
	ID        string           `bson:"_id" json:"id"`
	Email     string           `bson:"email" json:"email"`
	Name      string           `bson:"name" json:"name"`
	Password  string           `bson:"password" json:"-"`
	Guest     bool             `bson:"guest" json:"guest"`
	CreatedAt time.Time        `bson:"createdAt" json:"createdAt"`
	Learning  LearningProgress `bson:"learning" json:"learning"`
	Portfolio Portfolio        `bson:"portfolio" json:"portfolio"`
	Settings  Settings         `bson:"settings" json:"settings"`
	Auth      AuthState        `bson:"auth" json:"-"`
}

type Settings struct {
	Theme         string `bson:"theme" json:"theme"`
	Notifications bool   `bson:"notifications" json:"notifications"`
}

// AuthState holds the pending password reset, if any.
type AuthState struct {
	ResetTokenHash string    `bson:"resetTokenHash" json:"resetTokenHash"`
	ResetExpiresAt time.Time `bson:"resetExpiresAt" json:"resetExpiresAt"`
}

// DefaultSettings returns the settings of a fresh account.
func DefaultSettings() Settings {
	return Settings{Theme: ThemeLight, Notifications: true}
}

// HashPassword hashes the user's password
func (u *User) HashPassword() error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword checks if the provided password matches the hash
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}
