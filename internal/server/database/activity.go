package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ActivityRepository stores the activity log and its archived totals.
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// ExistsSince reports whether an entry for the same (ip, subject, action)
// was recorded after since.
func (r *ActivityRepository) ExistsSince(ctx context.Context, ip, subject, action string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.SQL.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM activity_log
			WHERE ip_address = $1 AND subject = $2 AND action = $3 AND created_at > $4
		)
	`, ip, subject, action, toMillis(since)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recent activity: %w", err)
	}
	return exists, nil
}

// Insert appends an entry and fills in its ID.
func (r *ActivityRepository) Insert(ctx context.Context, e *ActivityEntry) error {
	err := r.db.SQL.QueryRowContext(ctx, `
		INSERT INTO activity_log (subject, ip_address, ip_location, device, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		e.Subject,
		e.IP,
		e.Location,
		e.Device,
		e.Action,
		toMillis(e.CreatedAt),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// List returns one page of entries, newest first, and the total row count.
func (r *ActivityRepository) List(ctx context.Context, offset, limit int) ([]*ActivityEntry, int64, error) {
	var total int64
	if err := r.db.SQL.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_log").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity: %w", err)
	}

	rows, err := r.db.SQL.QueryContext(ctx, `
		SELECT id, subject, ip_address, ip_location, device, action, created_at
		FROM activity_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []*ActivityEntry
	for rows.Next() {
		var (
			e         ActivityEntry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Subject, &e.IP, &e.Location, &e.Device, &e.Action, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}

// LiveTotals counts the tracked actions still present in the log.
func (r *ActivityRepository) LiveTotals(ctx context.Context) (Totals, error) {
	return liveTotals(ctx, r.db.SQL, 0)
}

// ArchivedTotals returns the running totals folded in by earlier clears.
func (r *ActivityRepository) ArchivedTotals(ctx context.Context) (Totals, error) {
	rows, err := r.db.SQL.QueryContext(ctx, "SELECT stat_key, value FROM archived_stats")
	if err != nil {
		return Totals{}, fmt.Errorf("failed to read archived stats: %w", err)
	}
	defer rows.Close()

	var t Totals
	for rows.Next() {
		var (
			key   string
			value int64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return Totals{}, fmt.Errorf("failed to scan archived stat: %w", err)
		}
		switch key {
		case StatTotalDownloads:
			t.Downloads = value
		case StatTotalViews:
			t.Views = value
		case StatTotalLogins:
			t.Logins = value
		}
	}
	return t, rows.Err()
}

// Totals returns archived plus live counts.
func (r *ActivityRepository) Totals(ctx context.Context) (Totals, error) {
	archived, err := r.ArchivedTotals(ctx)
	if err != nil {
		return Totals{}, err
	}
	live, err := r.LiveTotals(ctx)
	if err != nil {
		return Totals{}, err
	}
	return archived.Add(live), nil
}

// ArchiveAndClear folds the live counts into archived_stats and deletes the
// counted rows, all in one transaction. Only rows up to the highest id seen
// by the transaction are counted and deleted, so the folded totals always
// match what was removed. Returns the counts that were folded in.
func (r *ActivityRepository) ArchiveAndClear(ctx context.Context) (Totals, error) {
	tx, err := r.db.snapshotTx(ctx)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to begin archive: %w", err)
	}
	defer tx.Rollback()

	var maxID int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM activity_log").Scan(&maxID); err != nil {
		return Totals{}, fmt.Errorf("failed to read log bound: %w", err)
	}
	if maxID == 0 {
		return Totals{}, nil
	}

	live, err := liveTotals(ctx, tx, maxID)
	if err != nil {
		return Totals{}, err
	}

	folds := []struct {
		key   string
		count int64
	}{
		{StatTotalDownloads, live.Downloads},
		{StatTotalViews, live.Views},
		{StatTotalLogins, live.Logins},
	}
	for _, f := range folds {
		if f.count == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO archived_stats (stat_key, value) VALUES ($1, $2)
			ON CONFLICT (stat_key) DO UPDATE SET value = archived_stats.value + excluded.value
		`, f.key, f.count); err != nil {
			return Totals{}, fmt.Errorf("failed to archive %s: %w", f.key, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM activity_log WHERE id <= $1", maxID); err != nil {
		return Totals{}, fmt.Errorf("failed to clear activity log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Totals{}, fmt.Errorf("failed to commit archive: %w", err)
	}
	return live, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// liveTotals counts tracked actions; maxID of zero means no upper bound.
func liveTotals(ctx context.Context, q queryer, maxID int64) (Totals, error) {
	query := `
		SELECT action, COUNT(*) FROM activity_log
		WHERE action IN ($1, $2, $3, $4)`
	args := []any{ActionDownload, ActionView, ActionLogin, ActionUserLogin}
	if maxID > 0 {
		query += " AND id <= $5"
		args = append(args, maxID)
	}
	query += " GROUP BY action"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to count activity: %w", err)
	}
	defer rows.Close()

	var t Totals
	for rows.Next() {
		var (
			action string
			count  int64
		)
		if err := rows.Scan(&action, &count); err != nil {
			return Totals{}, fmt.Errorf("failed to scan activity count: %w", err)
		}
		switch action {
		case ActionDownload:
			t.Downloads += count
		case ActionView:
			t.Views += count
		case ActionLogin, ActionUserLogin:
			t.Logins += count
		}
	}
	return t, rows.Err()
}
