package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postpilot/internal/store"
)

const postColumns = `id, location_id, content, image_url, cta_type, cta_url, scheduled_at, status, created_at, updated_at`

// CreatePost inserts a new post row.
func (s *Store) CreatePost(ctx context.Context, tx store.DBTransaction, post *store.Post) error {
	query := `
		INSERT INTO posts (id, location_id, content, image_url, cta_type, cta_url, scheduled_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.getExecutor(tx).ExecContext(ctx, query,
		post.ID,
		post.LocationID,
		post.Content,
		post.ImageURL,
		post.CTAType,
		post.CTAURL,
		post.ScheduledAt,
		post.Status,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create post %s: %w", post.ID, err)
	}
	return nil
}

// GetPostByID returns a post, or store.ErrPostNotFound.
func (s *Store) GetPostByID(ctx context.Context, id string) (*store.Post, error) {
	query := fmt.Sprintf("SELECT %s FROM posts WHERE id = $1", postColumns)

	var post store.Post
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&post.ID,
		&post.LocationID,
		&post.Content,
		&post.ImageURL,
		&post.CTAType,
		&post.CTAURL,
		&post.ScheduledAt,
		&post.Status,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}

	return &post, nil
}

// UpdatePost updates the mutable fields of a post.
func (s *Store) UpdatePost(ctx context.Context, tx store.DBTransaction, post *store.Post) error {
	query := `
		UPDATE posts
		SET content = $1, image_url = $2, cta_type = $3, cta_url = $4, scheduled_at = $5, status = $6, updated_at = NOW()
		WHERE id = $7
	`

	res, err := s.getExecutor(tx).ExecContext(ctx, query,
		post.Content,
		post.ImageURL,
		post.CTAType,
		post.CTAURL,
		post.ScheduledAt,
		post.Status,
		post.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update post %s: %w", post.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrPostNotFound
	}
	return nil
}

// UpdatePostStatus transitions a post's status.
func (s *Store) UpdatePostStatus(ctx context.Context, id string, status store.PostStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE posts SET status = $1, updated_at = NOW() WHERE id = $2",
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of post %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrPostNotFound
	}
	return nil
}

// DeletePost removes a post row.
func (s *Store) DeletePost(ctx context.Context, tx store.DBTransaction, id string) error {
	res, err := s.getExecutor(tx).ExecContext(ctx, "DELETE FROM posts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete post %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrPostNotFound
	}
	return nil
}

// GetLocationByID returns a location by its internal id.
func (s *Store) GetLocationByID(ctx context.Context, id string) (*store.Location, error) {
	query := "SELECT id, gbp_location_id, name, phone_number, created_at FROM locations WHERE id = $1"

	var loc store.Location
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&loc.ID,
		&loc.GBPLocationID,
		&loc.Name,
		&loc.PhoneNumber,
		&loc.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}

	return &loc, nil
}

// GetUserByEmail returns the user holding the refresh token for publishes.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := "SELECT id, email, refresh_token, created_at FROM users WHERE email = $1"

	var user store.User
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.RefreshToken,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// FindDefaultActor returns the oldest user with a non-empty email. Sweep-
// injected jobs run under this identity since no request carries one.
func (s *Store) FindDefaultActor(ctx context.Context) (*store.User, error) {
	query := `
		SELECT id, email, refresh_token, created_at FROM users
		WHERE email IS NOT NULL AND email <> ''
		ORDER BY created_at ASC
		LIMIT 1
	`

	var user store.User
	err := s.db.QueryRowContext(ctx, query).Scan(
		&user.ID,
		&user.Email,
		&user.RefreshToken,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// ListOverdueScheduledPosts returns scheduled posts whose publish time has passed.
func (s *Store) ListOverdueScheduledPosts(ctx context.Context, now time.Time, limit int) ([]store.Post, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s FROM posts
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3
	`, postColumns)

	rows, err := s.db.QueryContext(ctx, query, store.PostStatusScheduled, now, limit)
	if err != nil {
		return nil, fmt.Errorf("overdue posts query failed: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// ListRecentlyFailedPosts returns failed posts updated at or after since.
func (s *Store) ListRecentlyFailedPosts(ctx context.Context, since time.Time) ([]store.Post, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM posts
		WHERE status = $1 AND updated_at >= $2
		ORDER BY updated_at ASC
	`, postColumns)

	rows, err := s.db.QueryContext(ctx, query, store.PostStatusFailed, since)
	if err != nil {
		return nil, fmt.Errorf("failed posts query failed: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

func scanPosts(rows *sql.Rows) ([]store.Post, error) {
	var posts []store.Post
	for rows.Next() {
		var post store.Post
		if err := rows.Scan(
			&post.ID,
			&post.LocationID,
			&post.Content,
			&post.ImageURL,
			&post.CTAType,
			&post.CTAURL,
			&post.ScheduledAt,
			&post.Status,
			&post.CreatedAt,
			&post.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("post scan failed: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}
