package user

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stlalpha/rgl/internal/config"
)

// Predefined errors for the user directory
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("username already exists")
	ErrInvalidUsername = errors.New("username must be ASCII alphanumeric and no longer than 15 characters")
)

// MaxUsernameLength is the longest accepted username.
const MaxUsernameLength = 15

// Record is one credential entry. Username keeps the case it was
// registered with; lookups ignore case.
type Record struct {
	ID           int       `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"type:text collate nocase;uniqueIndex;not null"`
	PasswordHash string    `json:"password_hash" gorm:"column:password;not null"`
	Contact      string    `json:"contact"`
	NoLogin      bool      `json:"nologin" gorm:"column:nologin;not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName keeps the table name stable regardless of the Go type name.
func (Record) TableName() string { return "users" }

// Directory is the credential store used by the gateway and the sysop
// tool. Implementations must treat usernames case-insensitively.
type Directory interface {
	Lookup(username string) (*Record, error)
	Insert(username, passwordHash, contact string) (*Record, error)
	UpdatePassword(username, passwordHash string) error
	UpdateContact(username, contact string) error
	SetNoLogin(username string, noLogin bool) error
	List() ([]*Record, error)
	Close() error
}

// Open returns the Directory selected by the configuration.
func Open(cfg config.UserStoreConfig) (Directory, error) {
	switch cfg.Type {
	case "", "json":
		return NewJSONStore(cfg.Path)
	case "sqlite":
		return NewSQLStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown user store type %q", cfg.Type)
	}
}

// ValidateUsername checks that name is 1 to 15 ASCII letters or digits.
func ValidateUsername(name string) error {
	if name == "" || len(name) > MaxUsernameLength {
		return ErrInvalidUsername
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum {
			return ErrInvalidUsername
		}
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for Insert and UpdatePassword.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches the record. Disabled accounts
// never verify, so callers cannot tell them apart from a wrong password.
func Verify(rec *Record, password string) bool {
	if rec == nil || rec.NoLogin {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) == nil
}

func clone(r *Record) *Record {
	c := *r
	return &c
}
