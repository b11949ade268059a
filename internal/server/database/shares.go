package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrShareNotFound = errors.New("share link not found")
	ErrSlugTaken     = errors.New("slug already in use")
)

const shareColumns = `id, file_path, slug, expire_at, created_at, download_count`

// ShareRepository provides CRUD operations for share links.
type ShareRepository struct {
	db *DB
}

// NewShareRepository creates a new ShareRepository.
func NewShareRepository(db *DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// Create inserts a new share link and fills in its ID. The slug's uniqueness
// is enforced by the insert itself, so concurrent creates cannot both win.
func (r *ShareRepository) Create(ctx context.Context, link *ShareLink) error {
	err := r.db.SQL.QueryRowContext(ctx, `
		INSERT INTO share_links (file_path, slug, expire_at, created_at, download_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slug) DO NOTHING
		RETURNING id
	`,
		link.FilePath,
		link.Slug,
		nullMillis(link.ExpireAt),
		toMillis(link.CreatedAt),
		link.DownloadCount,
	).Scan(&link.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to create share link: %w", err)
	}
	return nil
}

// GetByID retrieves a share link by its ID.
func (r *ShareRepository) GetByID(ctx context.Context, id int64) (*ShareLink, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		"SELECT "+shareColumns+" FROM share_links WHERE id = $1", id)
	return scanShare(row)
}

// GetBySlug retrieves a share link by its public slug.
func (r *ShareRepository) GetBySlug(ctx context.Context, slug string) (*ShareLink, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		"SELECT "+shareColumns+" FROM share_links WHERE slug = $1", slug)
	return scanShare(row)
}

// List returns every share link, newest first.
func (r *ShareRepository) List(ctx context.Context) ([]*ShareLink, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		"SELECT "+shareColumns+" FROM share_links ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list share links: %w", err)
	}
	defer rows.Close()

	var links []*ShareLink
	for rows.Next() {
		link, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Update rewrites the slug and expiry of an existing link. The slug check and
// the write happen in one statement.
func (r *ShareRepository) Update(ctx context.Context, link *ShareLink) error {
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin share update: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM share_links WHERE id = $1)", link.ID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up share link: %w", err)
	}
	if !exists {
		return ErrShareNotFound
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE share_links SET slug = $1, expire_at = $2
		WHERE id = $3
		  AND NOT EXISTS (SELECT 1 FROM share_links WHERE slug = $1 AND id <> $3)
	`, link.Slug, nullMillis(link.ExpireAt), link.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to update share link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSlugTaken
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit share update: %w", err)
	}
	return nil
}

// Delete removes a share link. Deleting a missing link is not an error.
func (r *ShareRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.SQL.ExecContext(ctx, "DELETE FROM share_links WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete share link: %w", err)
	}
	return nil
}

// IncrementDownloadCount atomically increments the download counter.
func (r *ShareRepository) IncrementDownloadCount(ctx context.Context, id int64) error {
	res, err := r.db.SQL.ExecContext(ctx,
		"UPDATE share_links SET download_count = download_count + 1 WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrShareNotFound
	}
	return nil
}

// DeleteExpiredBefore removes links whose expiry lies before cutoff.
func (r *ShareRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.SQL.ExecContext(ctx,
		"DELETE FROM share_links WHERE expire_at IS NOT NULL AND expire_at < $1", toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired share links: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShare(row rowScanner) (*ShareLink, error) {
	var (
		link      ShareLink
		expireAt  sql.NullInt64
		createdAt int64
	)
	err := row.Scan(
		&link.ID,
		&link.FilePath,
		&link.Slug,
		&expireAt,
		&createdAt,
		&link.DownloadCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to scan share link: %w", err)
	}
	link.CreatedAt = fromMillis(createdAt)
	if expireAt.Valid {
		t := fromMillis(expireAt.Int64)
		link.ExpireAt = &t
	}
	return &link, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}
