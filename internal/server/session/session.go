// Package session keeps the per-browser access flags on the server side.
// The browser only holds an opaque session id in a cookie.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrRejected = errors.New("session store rejected write")
)

// Flash is a one-shot message shown on the next page render.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Session is the server-side state of one browser.
type Session struct {
	ID       string  `json:"-"`
	Verified bool    `json:"verified"`
	Admin    bool    `json:"admin"`
	Flashes  []Flash `json:"flashes,omitempty"`
}

// AddFlash queues a message for the next render.
func (s *Session) AddFlash(category, message string) {
	s.Flashes = append(s.Flashes, Flash{Category: category, Message: message})
}

// PopFlashes returns and clears the queued messages.
func (s *Session) PopFlashes() []Flash {
	flashes := s.Flashes
	s.Flashes = nil
	if flashes == nil {
		return []Flash{}
	}
	return flashes
}

// Clear drops both access flags and any queued messages.
func (s *Session) Clear() {
	s.Verified = false
	s.Admin = false
	s.Flashes = nil
}

// Store persists sessions by id.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
