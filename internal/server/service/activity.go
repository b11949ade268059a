package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nexusdrive/internal/server/database"

	"golang.org/x/sync/singleflight"
)

// DedupWindow is how long an identical (ip, subject, action) entry suppresses
// another one.
const DedupWindow = 30 * time.Second

const unknownValue = "unknown"

// Actor identifies who triggered an activity entry.
type Actor struct {
	IP          string
	UserAgent   string
	ForceMobile bool
}

// Locator resolves an IP address to a human-readable location.
// Implementations must return a placeholder instead of failing.
type Locator interface {
	Locate(ctx context.Context, ip string) string
}

// ActivityPage is one page of the activity log.
type ActivityPage struct {
	Entries []*database.ActivityEntry
	Total   int64
	Page    int
	Limit   int
	Pages   int
}

// ActivityService records and reports access events.
type ActivityService struct {
	repo    *database.ActivityRepository
	locator Locator
	now     func() time.Time
	// inflight holds one Record per (ip, subject, action) at a time, so the
	// window check and the insert cannot interleave with a duplicate.
	inflight singleflight.Group
}

// NewActivityService creates a new activity service. locator may be nil.
func NewActivityService(repo *database.ActivityRepository, locator Locator) *ActivityService {
	return &ActivityService{
		repo:    repo,
		locator: locator,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record appends an entry unless the same tuple was recorded within
// DedupWindow. Reports whether a row was written. Concurrent calls for the
// same tuple share a single write.
func (s *ActivityService) Record(ctx context.Context, actor Actor, subject, action string) (bool, error) {
	key := actor.IP + "\x00" + subject + "\x00" + action
	v, err, _ := s.inflight.Do(key, func() (interface{}, error) {
		return s.record(ctx, actor, subject, action)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s *ActivityService) record(ctx context.Context, actor Actor, subject, action string) (bool, error) {
	now := s.now()
	recent, err := s.repo.ExistsSince(ctx, actor.IP, subject, action, now.Add(-DedupWindow))
	if err != nil {
		return false, err
	}
	if recent {
		return false, nil
	}

	entry := &database.ActivityEntry{
		Subject:   subject,
		IP:        actor.IP,
		Location:  s.locate(ctx, actor.IP),
		Device:    DeviceString(actor.UserAgent, actor.ForceMobile),
		Action:    action,
		CreatedAt: now,
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ActivityService) locate(ctx context.Context, ip string) string {
	if s.locator == nil || ip == "" {
		return unknownValue
	}
	if loc := s.locator.Locate(ctx, ip); loc != "" {
		return loc
	}
	return unknownValue
}

// Totals returns archived plus live counts.
func (s *ActivityService) Totals(ctx context.Context) (database.Totals, error) {
	return s.repo.Totals(ctx)
}

// ArchiveAndClear folds the live counts into the archive and empties the log.
func (s *ActivityService) ArchiveAndClear(ctx context.Context) (database.Totals, error) {
	folded, err := s.repo.ArchiveAndClear(ctx)
	if err != nil {
		return database.Totals{}, err
	}
	slog.Info("activity log archived",
		"downloads", folded.Downloads,
		"views", folded.Views,
		"logins", folded.Logins,
	)
	return folded, nil
}

// PageSizes are the accepted activity page sizes; the first is the default.
var PageSizes = []int{20, 50, 100}

// List returns page (1-based) of the log, newest first. Unsupported limits
// fall back to the default page size.
func (s *ActivityService) List(ctx context.Context, page, limit int) (*ActivityPage, error) {
	if !validPageSize(limit) {
		limit = PageSizes[0]
	}
	if page < 1 {
		page = 1
	}

	entries, total, err := s.repo.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*database.ActivityEntry{}
	}
	return &ActivityPage{
		Entries: entries,
		Total:   total,
		Page:    page,
		Limit:   limit,
		Pages:   int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func validPageSize(n int) bool {
	for _, size := range PageSizes {
		if n == size {
			return true
		}
	}
	return false
}

// Tracker writes activity entries in the background so request handlers
// never wait on the log. Failures go to slog and the failure counter.
type Tracker struct {
	svc      *ActivityService
	timeout  time.Duration
	wg       sync.WaitGroup
	failures atomic.Int64
}

// NewTracker creates a tracker. Each write is bounded by timeout.
func NewTracker(svc *ActivityService, timeout time.Duration) *Tracker {
	return &Tracker{svc: svc, timeout: timeout}
}

// Track schedules an entry and returns immediately.
func (t *Tracker) Track(actor Actor, subject, action string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()

		if _, err := t.svc.Record(ctx, actor, subject, action); err != nil {
			t.failures.Add(1)
			slog.Error("failed to record activity",
				"subject", subject,
				"action", action,
				"ip", actor.IP,
				"error", err,
			)
		}
	}()
}

// Wait blocks until every scheduled write has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Failures returns how many writes have failed so far.
func (t *Tracker) Failures() int64 {
	return t.failures.Load()
}
