package service

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nexusdrive/internal/server/database"
)

type fakeLocator struct {
	location string
	calls    int
}

func (f *fakeLocator) Locate(ctx context.Context, ip string) string {
	f.calls++
	return f.location
}

// slowLocator stands in for a geolocation service with real latency.
type slowLocator struct {
	delay time.Duration
	calls atomic.Int32
}

func (l *slowLocator) Locate(ctx context.Context, ip string) string {
	l.calls.Add(1)
	time.Sleep(l.delay)
	return "Somewhere"
}

func TestActivityService_Record(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	actor := Actor{IP: "198.51.100.7", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0"}

	t.Run("dedups within the window", func(t *testing.T) {
		env := newTestEnv(t)
		loc := &fakeLocator{location: "Somewhere"}
		svc := NewActivityService(env.activity, loc)

		clock := start
		svc.now = func() time.Time { return clock }

		steps := []struct {
			offset time.Duration
			want   bool
		}{
			{0, true},
			{10 * time.Second, false},
			{29 * time.Second, false},
			{31 * time.Second, true},
		}
		for _, step := range steps {
			clock = start.Add(step.offset)
			wrote, err := svc.Record(ctx, actor, "a.txt", database.ActionDownload)
			if err != nil {
				t.Fatalf("offset %v: unexpected error: %v", step.offset, err)
			}
			if wrote != step.want {
				t.Errorf("offset %v: wrote = %v, want %v", step.offset, wrote, step.want)
			}
		}

		_, total, err := env.activity.List(ctx, 0, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if total != 2 {
			t.Errorf("expected 2 rows, got %d", total)
		}
		if loc.calls != 2 {
			t.Errorf("expected lookups only for written rows, got %d", loc.calls)
		}
	})

	t.Run("different tuples are independent", func(t *testing.T) {
		env := newTestEnv(t)
		svc := NewActivityService(env.activity, nil)
		svc.now = func() time.Time { return start }

		inputs := []struct {
			ip, subject, action string
		}{
			{"1.1.1.1", "a.txt", database.ActionDownload},
			{"1.1.1.1", "a.txt", database.ActionView},
			{"1.1.1.1", "b.txt", database.ActionDownload},
			{"2.2.2.2", "a.txt", database.ActionDownload},
		}
		for _, in := range inputs {
			wrote, err := svc.Record(ctx, Actor{IP: in.ip}, in.subject, in.action)
			if err != nil || !wrote {
				t.Errorf("Record(%v) = %v, %v", in, wrote, err)
			}
		}
	})

	t.Run("enrichment placeholders", func(t *testing.T) {
		env := newTestEnv(t)
		svc := NewActivityService(env.activity, &fakeLocator{})
		if _, err := svc.Record(ctx, actor, "x", database.ActionView); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		entries, _, _ := env.activity.List(ctx, 0, 1)
		if len(entries) != 1 {
			t.Fatalf("expected one entry, got %d", len(entries))
		}
		if entries[0].Location != "unknown" {
			t.Errorf("expected unknown location, got %q", entries[0].Location)
		}
		if entries[0].Device != "Windows (Chrome) - desktop" {
			t.Errorf("unexpected device %q", entries[0].Device)
		}
	})
}

func TestActivityService_ArchiveAndClear(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := NewActivityService(env.activity, nil)

	records := []struct {
		ip, action string
	}{
		{"1.1.1.1", database.ActionDownload},
		{"2.2.2.2", database.ActionDownload},
		{"1.1.1.1", database.ActionView},
		{"1.1.1.1", database.ActionUserLogin},
		{"1.1.1.1", database.ActionAdminLogin},
	}
	for _, r := range records {
		if _, err := svc.Record(ctx, Actor{IP: r.ip}, "subject", r.action); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	before, err := svc.Totals(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.ArchiveAndClear(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	archived, err := env.activity.ArchivedTotals(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if archived != before {
		t.Errorf("archived %+v, want %+v", archived, before)
	}

	page, err := svc.List(ctx, 1, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 0 || len(page.Entries) != 0 {
		t.Errorf("expected empty log, got %d entries", page.Total)
	}
}

func TestActivityService_List(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := NewActivityService(env.activity, nil)
	for i := 0; i < 25; i++ {
		if _, err := svc.Record(ctx, Actor{IP: "10.0.0.1"}, "file-"+strings.Repeat("x", i), database.ActionView); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	page, err := svc.List(ctx, 2, 33)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Limit != 20 {
		t.Errorf("expected default limit 20, got %d", page.Limit)
	}
	if page.Pages != 2 || len(page.Entries) != 5 {
		t.Errorf("expected page 2 of 2 with 5 entries, got %d of %d with %d", page.Page, page.Pages, len(page.Entries))
	}

	page, err = svc.List(ctx, 0, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Page != 1 || page.Limit != 50 || len(page.Entries) != 25 {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestTracker(t *testing.T) {
	t.Run("writes in the background", func(t *testing.T) {
		env := newTestEnv(t)
		tracker := NewTracker(NewActivityService(env.activity, nil), time.Second)

		tracker.Track(Actor{IP: "1.2.3.4"}, "a", database.ActionView)
		tracker.Track(Actor{IP: "1.2.3.4"}, "b", database.ActionView)
		tracker.Wait()

		_, total, err := env.activity.List(context.Background(), 0, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if total != 2 {
			t.Errorf("expected 2 rows, got %d", total)
		}
		if tracker.Failures() != 0 {
			t.Errorf("expected no failures, got %d", tracker.Failures())
		}
	})

	t.Run("quick retry during a slow lookup is stored once", func(t *testing.T) {
		env := newTestEnv(t)
		loc := &slowLocator{delay: 200 * time.Millisecond}
		tracker := NewTracker(NewActivityService(env.activity, loc), 5*time.Second)
		actor := Actor{IP: "203.0.113.9"}

		tracker.Track(actor, "a.txt", database.ActionDownload)
		time.Sleep(50 * time.Millisecond)
		tracker.Track(actor, "a.txt", database.ActionDownload)
		tracker.Wait()

		_, total, err := env.activity.List(context.Background(), 0, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if total != 1 {
			t.Errorf("expected 1 row, got %d", total)
		}
		if n := loc.calls.Load(); n != 1 {
			t.Errorf("expected 1 lookup, got %d", n)
		}
	})

	t.Run("concurrent writes for one tuple", func(t *testing.T) {
		env := newTestEnv(t)
		loc := &slowLocator{delay: 20 * time.Millisecond}
		tracker := NewTracker(NewActivityService(env.activity, loc), 5*time.Second)

		for i := 0; i < 10; i++ {
			tracker.Track(Actor{IP: "203.0.113.9"}, "b.txt", database.ActionView)
		}
		tracker.Track(Actor{IP: "203.0.113.10"}, "b.txt", database.ActionView)
		tracker.Wait()

		_, total, err := env.activity.List(context.Background(), 0, 20)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if total != 2 {
			t.Errorf("expected 2 rows, got %d", total)
		}
	})

	t.Run("counts failures instead of returning them", func(t *testing.T) {
		env := newTestEnv(t)
		tracker := NewTracker(NewActivityService(env.activity, nil), time.Second)
		env.db.Close()

		tracker.Track(Actor{IP: "1.2.3.4"}, "a", database.ActionView)
		tracker.Wait()

		if tracker.Failures() != 1 {
			t.Errorf("expected 1 failure, got %d", tracker.Failures())
		}
	})
}
