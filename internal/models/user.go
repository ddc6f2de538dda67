package models

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is the profile view of the signed-in user.
type User struct {
	ID           string     `json:"userid"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	CreatedAt    *time.Time `json:"CreatedAt,omitempty"`
	Integrations []string   `json:"integrations,omitempty"`
}

// AppUser is an entry of the admin user listing.
type AppUser struct {
	ID        string     `json:"userid"`
	Email     string     `json:"email,omitempty"`
	Name      string     `json:"name,omitempty"`
	CreatedAt *time.Time `json:"CreatedAt,omitempty"`
}

// Account is the stored user record. It is never sent to clients as is.
type Account struct {
	ID           string    `yaml:"id"`
	Email        string    `yaml:"email"`
	Name         string    `yaml:"name,omitempty"`
	PasswordHash string    `yaml:"password"`
	IsAdmin      bool      `yaml:"admin,omitempty"`
	CreatedAt    time.Time `yaml:"createdAt"`
	Integrations []string  `yaml:"integrations,omitempty"`
}

// ErrPasswordTooShort is returned when a password fails the length policy.
var ErrPasswordTooShort = errors.New("password too short (min 6)")

// NewAccount creates an account with a hashed password.
func NewAccount(email, password string) (*Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("email required")
	}
	a := &Account{
		ID:        email,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.SetPassword(password); err != nil {
		return nil, err
	}
	return a, nil
}

// SetPassword replaces the stored hash.
func (a *Account) SetPassword(password string) error {
	if len(password) < 6 {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares password against the stored hash.
func (a *Account) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

// Profile returns the public view of the account.
func (a *Account) Profile() *User {
	created := a.CreatedAt
	return &User{
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		CreatedAt:    &created,
		Integrations: a.Integrations,
	}
}

// AppUser returns the listing view of the account.
func (a *Account) AppUser() AppUser {
	created := a.CreatedAt
	return AppUser{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		CreatedAt: &created,
	}
}
