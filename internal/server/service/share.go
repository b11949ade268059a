package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"nexusdrive/internal/server/database"
	"nexusdrive/internal/server/storage"

	"github.com/skip2/go-qrcode"
)

// DurationForever clears a link's expiry.
const DurationForever = "forever"

// QR code size bounds in pixels.
const (
	DefaultQRSize = 256
	MinQRSize     = 128
	MaxQRSize     = 1024
)

const generatedSlugAttempts = 3

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// CreateShareInput holds the admin-supplied fields for a new link.
type CreateShareInput struct {
	FilePath string
	Slug     string
	Duration string
}

// EditShareInput holds the fields of a link edit. An empty Slug keeps the
// current one; an empty Duration keeps the current expiry.
type EditShareInput struct {
	ID       int64
	Slug     string
	Duration string
}

// ShareResult is returned after a successful create or edit.
type ShareResult struct {
	ID       int64      `json:"id"`
	Slug     string     `json:"slug"`
	URL      string     `json:"url"`
	ExpireAt *time.Time `json:"expire_at"`
}

// ShareView is a link as shown on the dashboard.
type ShareView struct {
	ID            int64      `json:"id"`
	FilePath      string     `json:"file_path"`
	Slug          string     `json:"slug"`
	URL           string     `json:"url"`
	ExpireAt      *time.Time `json:"expire_at"`
	CreatedAt     time.Time  `json:"created_at"`
	DownloadCount int64      `json:"download_count"`
	IsExpired     bool       `json:"is_expired"`
}

// ResolvedShare is a link that passed every check and may be served.
type ResolvedShare struct {
	Link     *database.ShareLink
	FullPath string
	Name     string
}

// ShareService manages public share links.
type ShareService struct {
	repo    *database.ShareRepository
	store   storage.Store
	tracker *Tracker
	now     func() time.Time
}

// NewShareService creates a new share service. tracker may be nil.
func NewShareService(repo *database.ShareRepository, store storage.Store, tracker *Tracker) *ShareService {
	return &ShareService{
		repo:    repo,
		store:   store,
		tracker: tracker,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a link to an existing regular file and returns its public
// URL under baseURL. A missing slug is generated.
func (s *ShareService) Create(ctx context.Context, in CreateShareInput, baseURL string) (*ShareResult, error) {
	filePath, err := storage.SanitizePath(strings.TrimSpace(in.FilePath))
	if err != nil {
		return nil, ErrInvalidPath
	}
	info, _, err := s.store.Stat(filePath)
	if err != nil || filePath == "" || !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}

	now := s.now()
	link := &database.ShareLink{
		FilePath:  filePath,
		CreatedAt: now,
	}
	if expire, ok := parseDuration(in.Duration, now); ok {
		link.ExpireAt = expire
	}

	slug := strings.TrimSpace(in.Slug)
	if slug != "" {
		if !ValidSlug(slug) {
			return nil, ErrInvalidSlug
		}
		link.Slug = slug
		if err := s.repo.Create(ctx, link); err != nil {
			return nil, translateShareError(err)
		}
	} else if err := s.createWithGeneratedSlug(ctx, link); err != nil {
		return nil, err
	}

	slog.Info("share link created",
		"id", link.ID,
		"slug", link.Slug,
		"file_path", link.FilePath,
		"expire_at", link.ExpireAt,
	)
	return &ShareResult{
		ID:       link.ID,
		Slug:     link.Slug,
		URL:      ShareURL(baseURL, link.Slug),
		ExpireAt: link.ExpireAt,
	}, nil
}

func (s *ShareService) createWithGeneratedSlug(ctx context.Context, link *database.ShareLink) error {
	var err error
	for i := 0; i < generatedSlugAttempts; i++ {
		link.Slug, err = generateSlug()
		if err != nil {
			return err
		}
		err = s.repo.Create(ctx, link)
		if !errors.Is(err, database.ErrSlugTaken) {
			return translateShareError(err)
		}
	}
	return ErrSlugConflict
}

// Edit changes a link's slug and, optionally, its expiry. A numeric duration
// is counted in days from now; a malformed one leaves the expiry untouched.
func (s *ShareService) Edit(ctx context.Context, in EditShareInput, baseURL string) (*ShareResult, error) {
	link, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return nil, translateShareError(err)
	}

	if slug := strings.TrimSpace(in.Slug); slug != "" {
		if !ValidSlug(slug) {
			return nil, ErrInvalidSlug
		}
		link.Slug = slug
	}
	if expire, ok := parseDuration(in.Duration, s.now()); ok {
		link.ExpireAt = expire
	}

	if err := s.repo.Update(ctx, link); err != nil {
		return nil, translateShareError(err)
	}

	slog.Info("share link updated", "id", link.ID, "slug", link.Slug, "expire_at", link.ExpireAt)
	return &ShareResult{
		ID:       link.ID,
		Slug:     link.Slug,
		URL:      ShareURL(baseURL, link.Slug),
		ExpireAt: link.ExpireAt,
	}, nil
}

// Delete removes a link. Deleting an unknown id is not an error.
func (s *ShareService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("share link deleted", "id", id)
	return nil
}

// List returns every link, newest first.
func (s *ShareService) List(ctx context.Context, baseURL string) ([]ShareView, error) {
	links, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]ShareView, 0, len(links))
	for _, l := range links {
		views = append(views, ShareView{
			ID:            l.ID,
			FilePath:      l.FilePath,
			Slug:          l.Slug,
			URL:           ShareURL(baseURL, l.Slug),
			ExpireAt:      l.ExpireAt,
			CreatedAt:     l.CreatedAt,
			DownloadCount: l.DownloadCount,
			IsExpired:     l.IsExpired(now),
		})
	}
	return views, nil
}

// Resolve looks up a public slug. On success the download counter is bumped
// and a share_down entry is tracked for actor.
func (s *ShareService) Resolve(ctx context.Context, slug string, actor Actor) (*ResolvedShare, error) {
	link, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, translateShareError(err)
	}
	if link.IsExpired(s.now()) {
		return nil, ErrExpired
	}

	info, full, err := s.store.Stat(link.FilePath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, ErrFileMissing
	}

	if err := s.repo.IncrementDownloadCount(ctx, link.ID); err != nil {
		slog.Error("failed to increment download count", "slug", slug, "error", err)
	} else {
		link.DownloadCount++
	}
	if s.tracker != nil {
		s.tracker.Track(actor, "[Share] "+link.FilePath, database.ActionShareDown)
	}

	return &ResolvedShare{Link: link, FullPath: full, Name: info.Name()}, nil
}

// QRCode renders the public URL of link id as a PNG of size pixels.
// A size of zero selects DefaultQRSize.
func (s *ShareService) QRCode(ctx context.Context, id int64, baseURL string, size int) ([]byte, error) {
	if size == 0 {
		size = DefaultQRSize
	}
	if size < MinQRSize || size > MaxQRSize {
		return nil, ErrInvalidSize
	}

	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateShareError(err)
	}

	png, err := qrcode.Encode(ShareURL(baseURL, link.Slug), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return png, nil
}

// ValidSlug reports whether slug may be used as a public token.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// ShareURL joins baseURL and slug into the public link.
func ShareURL(baseURL, slug string) string {
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(slug)
}

// parseDuration interprets a duration field. ok is false when the field
// should not change the expiry at all.
func parseDuration(duration string, now time.Time) (expire *time.Time, ok bool) {
	duration = strings.TrimSpace(duration)
	switch duration {
	case "":
		return nil, false
	case DurationForever:
		return nil, true
	}
	days, err := strconv.Atoi(duration)
	if err != nil {
		return nil, false
	}
	// Calendar days; a time.Duration overflows past ~292 years.
	t := now.AddDate(0, 0, days)
	return &t, true
}

// generateSlug returns 8 URL-safe characters from 6 random bytes.
func generateSlug() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
