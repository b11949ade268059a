package config

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultUserPassword  = "123456"
	DefaultAdminPassword = "admin"
)

// Credentials holds the two shared secrets. Either value may be plaintext or a
// bcrypt hash.
type Credentials struct {
	UserPassword  string
	AdminPassword string
}

// CredentialStore reads the flat key=value credentials file. It keeps no state
// between calls, so edits to the file take effect on the next Load.
type CredentialStore struct {
	path string
}

func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Load returns the current credentials, writing a default file on first run.
// Read or parse failures are logged and fall back to the defaults.
func (s *CredentialStore) Load() Credentials {
	defaults := Credentials{
		UserPassword:  DefaultUserPassword,
		AdminPassword: DefaultAdminPassword,
	}

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if err := s.writeDefaults(defaults); err != nil {
			slog.Error("failed to write default credentials", "path", s.path, "error", err)
		}
		return defaults
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("properties")
	v.SetDefault("user_password", defaults.UserPassword)
	v.SetDefault("admin_password", defaults.AdminPassword)

	if err := v.ReadInConfig(); err != nil {
		slog.Error("failed to read credentials", "path", s.path, "error", err)
		return defaults
	}

	return Credentials{
		UserPassword:  strings.TrimSpace(v.GetString("user_password")),
		AdminPassword: strings.TrimSpace(v.GetString("admin_password")),
	}
}

func (s *CredentialStore) writeDefaults(c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	content := fmt.Sprintf("user_password=%s\nadmin_password=%s\n", c.UserPassword, c.AdminPassword)
	return os.WriteFile(s.path, []byte(content), 0600)
}

// Matches reports whether input satisfies the configured secret.
func Matches(secret, input string) bool {
	if secret == "" {
		return false
	}
	if isBcryptHash(secret) {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(input)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(input)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
