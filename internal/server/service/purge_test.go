package service

import (
	"context"
	"testing"
	"time"

	"nexusdrive/internal/server/database"
)

func TestPurgeService_RunOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	longExpired := now.Add(-40 * 24 * time.Hour)
	recentlyExpired := now.Add(-time.Hour)
	for slug, expire := range map[string]*time.Time{
		"old":     &longExpired,
		"recent":  &recentlyExpired,
		"forever": nil,
	} {
		if err := env.shares.Create(ctx, &database.ShareLink{FilePath: "f", Slug: slug, ExpireAt: expire, CreatedAt: now}); err != nil {
			t.Fatalf("failed to create %s: %v", slug, err)
		}
	}

	ps := NewPurgeService(env.shares, time.Hour, 30*24*time.Hour)
	ps.now = func() time.Time { return now }

	if n := ps.RunOnce(ctx); n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
	if _, err := env.shares.GetBySlug(ctx, "old"); err == nil {
		t.Error("expected old link to be purged")
	}
	for _, slug := range []string{"recent", "forever"} {
		if _, err := env.shares.GetBySlug(ctx, slug); err != nil {
			t.Errorf("expected %s to survive: %v", slug, err)
		}
	}
}

func TestPurgeService_StartStop(t *testing.T) {
	env := newTestEnv(t)
	ps := NewPurgeService(env.shares, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	ps.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		ps.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("purge service did not stop")
	}
}
