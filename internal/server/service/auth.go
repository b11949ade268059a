package service

import (
	"log/slog"
	"strings"
	"time"

	"nexusdrive/internal/server/config"
	"nexusdrive/internal/server/database"
)

// Tier is an access level granted by a successful login.
type Tier int

const (
	TierUser Tier = iota
	TierAdmin
)

func (t Tier) String() string {
	if t == TierAdmin {
		return "admin"
	}
	return "user"
}

// AuthService checks submitted passwords against the credentials file.
type AuthService struct {
	creds        *config.CredentialStore
	tracker      *Tracker
	failureDelay time.Duration
	sleep        func(time.Duration)
}

// NewAuthService creates a new auth service. tracker may be nil.
func NewAuthService(creds *config.CredentialStore, tracker *Tracker, failureDelay time.Duration) *AuthService {
	return &AuthService{
		creds:        creds,
		tracker:      tracker,
		failureDelay: failureDelay,
		sleep:        time.Sleep,
	}
}

// Login verifies password for tier. The credentials file is re-read on every
// call. A failed attempt waits failureDelay before returning
// ErrInvalidCredentials.
func (s *AuthService) Login(tier Tier, password string, actor Actor) error {
	creds := s.creds.Load()
	secret := creds.UserPassword
	if tier == TierAdmin {
		secret = creds.AdminPassword
	}

	if !config.Matches(secret, strings.TrimSpace(password)) {
		slog.Warn("login failed", "tier", tier.String(), "ip", actor.IP)
		if s.failureDelay > 0 {
			s.sleep(s.failureDelay)
		}
		return ErrInvalidCredentials
	}

	slog.Info("login succeeded", "tier", tier.String(), "ip", actor.IP)
	if tier == TierAdmin {
		s.track(actor, "admin console login", database.ActionAdminLogin)
	} else {
		s.track(actor, "user login", database.ActionUserLogin)
	}
	return nil
}

// Logout records the end of a session under the highest tier it held.
// Sessions that held no tier are not logged.
func (s *AuthService) Logout(verified, admin bool, actor Actor) {
	switch {
	case admin:
		s.track(actor, "admin logout", database.ActionLogout)
	case verified:
		s.track(actor, "user logout", database.ActionLogout)
	}
}

func (s *AuthService) track(actor Actor, subject, action string) {
	if s.tracker != nil {
		s.tracker.Track(actor, subject, action)
	}
}
