package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session id.
const CookieName = "nexus_session"

// Manager ties sessions in a Store to browser cookies.
type Manager struct {
	store  Store
	ttl    time.Duration
	secure bool
}

// NewManager creates a manager. Sessions and their cookies live for ttl
// after the last save.
func NewManager(store Store, ttl time.Duration, secure bool) *Manager {
	return &Manager{store: store, ttl: ttl, secure: secure}
}

// Load returns the session named by the request cookie. A missing or unknown
// cookie yields a fresh, unsaved session. Store failures are logged and also
// yield a fresh session, so a broken store never grants access.
func (m *Manager) Load(ctx context.Context, r *http.Request) *Session {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return m.fresh()
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return m.fresh()
	}

	s, err := m.store.Get(ctx, cookie.Value)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Error("failed to load session", "error", err)
		}
		return m.fresh()
	}
	return s
}

// Save persists s and refreshes the cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Renew moves s to a new id, dropping the old one from the store. Called
// whenever the access level changes.
func (m *Manager) Renew(ctx context.Context, s *Session) {
	if err := m.store.Delete(ctx, s.ID); err != nil {
		slog.Warn("failed to drop old session", "error", err)
	}
	s.ID = uuid.NewString()
}

// Destroy removes s and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	s.Clear()
	err := m.store.Delete(ctx, s.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return err
}

func (m *Manager) fresh() *Session {
	return &Session{ID: uuid.NewString()}
}
