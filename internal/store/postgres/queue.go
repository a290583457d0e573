package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"postpilot/internal/store"

	"github.com/lib/pq"
)

// Default retry and lease policy
const (
	MaxAttempts   = 3
	BackoffBase   = 1 * time.Second
	LeaseDuration = 30 * time.Second
)

const jobColumns = `job_id, post_id, state, run_at, lease_until, attempts, max_attempts, last_error, created_at, updated_at`

// Add enqueues a new delayed job.
func (s *Store) Add(ctx context.Context, jobID, postID string, payload json.RawMessage, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}

	query := `
		INSERT INTO publish_queue (job_id, post_id, payload, state, run_at, max_attempts)
		VALUES ($1, $2, $3, $4, NOW() + ($5 * INTERVAL '1 millisecond'), $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		jobID, postID, payload, store.JobStateDelayed, delay.Milliseconds(), MaxAttempts)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return store.ErrJobExists
		}
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}

	return nil
}

// Get returns a job by id.
func (s *Store) Get(ctx context.Context, jobID string) (*store.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM publish_queue WHERE job_id = $1", jobColumns)

	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	return job, err
}

// Remove deletes a job regardless of state.
func (s *Store) Remove(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM publish_queue WHERE job_id = $1", jobID)
	if err != nil {
		return fmt.Errorf("failed to remove job %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

// Promote makes a delayed job due immediately. Jobs in other states are untouched.
func (s *Store) Promote(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE publish_queue
		SET run_at = NOW(), state = $1, updated_at = NOW()
		WHERE job_id = $2 AND state = $3
	`, store.JobStateReady, jobID, store.JobStateDelayed)
	if err != nil {
		return fmt.Errorf("failed to promote job %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

// FindJobByPost returns the newest non-terminal job for a post.
func (s *Store) FindJobByPost(ctx context.Context, postID string) (*store.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM publish_queue
		WHERE post_id = $1 AND state NOT IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`, jobColumns)

	job, err := scanJob(s.db.QueryRowContext(ctx, query, postID, store.JobStateCompleted, store.JobStateFailed))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	return job, err
}

// ClaimBatch claims up to 'limit' due jobs atomically using SELECT ... FOR UPDATE SKIP LOCKED.
// Claimed jobs become active with a fresh lease and an incremented attempt counter.
// Active jobs whose lease expired are treated as abandoned and reclaimed.
// Returns nil slice if no jobs are due.
func (s *Store) ClaimBatch(ctx context.Context, limit int) ([]store.ClaimedJob, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	selectQuery := fmt.Sprintf(`
		SELECT %s, payload
		FROM publish_queue
		WHERE run_at <= NOW()
		  AND (state IN ($1, $2) OR (state = $3 AND lease_until < NOW()))
		ORDER BY run_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $4
	`, jobColumns)

	rows, err := tx.QueryContext(ctx, selectQuery,
		store.JobStateDelayed, store.JobStateReady, store.JobStateActive, limit)
	if err != nil {
		return nil, fmt.Errorf("claim query failed: %w", err)
	}
	defer rows.Close()

	var claimed []store.ClaimedJob
	var jobIDs []string

	for rows.Next() {
		var item store.ClaimedJob
		if err := scanJobInto(rows, &item.Job, &item.Payload); err != nil {
			return nil, fmt.Errorf("claim scan failed: %w", err)
		}
		claimed = append(claimed, item)
		jobIDs = append(jobIDs, item.Job.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim rows error: %w", err)
	}

	if len(claimed) == 0 {
		return nil, nil
	}

	// Mark claimed jobs active with a lease and count the attempt.
	_, err = tx.ExecContext(ctx, `
		UPDATE publish_queue
		SET state = $1,
		    lease_until = NOW() + ($2 * INTERVAL '1 second'),
		    attempts = attempts + 1,
		    updated_at = NOW()
		WHERE job_id = ANY($3)
	`, store.JobStateActive, LeaseDuration.Seconds(), pq.Array(jobIDs))
	if err != nil {
		return nil, fmt.Errorf("claim lease update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	// Reflect the post-claim state in the returned records.
	for i := range claimed {
		claimed[i].Job.State = store.JobStateActive
		claimed[i].Job.Attempts++
	}

	return claimed, nil
}

// Complete marks a claimed job completed.
func (s *Store) Complete(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE publish_queue
		SET state = $1, lease_until = NULL, updated_at = NOW()
		WHERE job_id = $2
	`, store.JobStateCompleted, jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

// Fail records a failed attempt. While the attempt budget allows it the job
// is re-delayed with exponential backoff (base 1s); otherwise it becomes
// terminally failed.
func (s *Store) Fail(ctx context.Context, jobID string, errMsg string) error {
	var attempts, maxAttempts int
	err := s.db.QueryRowContext(ctx,
		"SELECT attempts, max_attempts FROM publish_queue WHERE job_id = $1", jobID,
	).Scan(&attempts, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrJobNotFound
	}
	if err != nil {
		return err
	}

	if attempts < maxAttempts {
		// RETRY: exponential backoff (1s * 2^(attempts-1))
		shift := attempts - 1
		if shift < 0 {
			shift = 0
		}
		backoff := BackoffBase * time.Duration(1<<shift)
		_, err = s.db.ExecContext(ctx, `
			UPDATE publish_queue
			SET state = $1,
			    run_at = NOW() + ($2 * INTERVAL '1 millisecond'),
			    lease_until = NULL,
			    last_error = $3,
			    updated_at = NOW()
			WHERE job_id = $4
		`, store.JobStateDelayed, backoff.Milliseconds(), errMsg, jobID)
		if err != nil {
			return fmt.Errorf("failed to re-delay job %s: %w", jobID, err)
		}
		return nil
	}

	// permanent failure
	_, err = s.db.ExecContext(ctx, `
		UPDATE publish_queue
		SET state = $1, lease_until = NULL, last_error = $2, updated_at = NOW()
		WHERE job_id = $3
	`, store.JobStateFailed, errMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", jobID, err)
	}
	return nil
}

// FailPermanently moves a job straight to the terminal failed state. The
// attempt counter is set to the maximum so Retry treats the job as
// exhausted; a job failed for a non-recoverable reason must not come back.
func (s *Store) FailPermanently(ctx context.Context, jobID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE publish_queue
		SET state = $1, lease_until = NULL, last_error = $2, attempts = max_attempts, updated_at = NOW()
		WHERE job_id = $3
	`, store.JobStateFailed, errMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to permanently fail job %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

// ExtendLease pushes out the lease of an active job (heartbeat).
func (s *Store) ExtendLease(ctx context.Context, jobID string, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE publish_queue
		SET lease_until = $1, updated_at = NOW()
		WHERE job_id = $2 AND state = $3
	`, until, jobID, store.JobStateActive)
	if err != nil {
		return fmt.Errorf("failed to extend lease of job %s: %w", jobID, err)
	}
	return nil
}

// ListFailed returns terminally failed jobs, newest first.
func (s *Store) ListFailed(ctx context.Context, limit int) ([]store.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s FROM publish_queue
		WHERE state = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, jobColumns)

	rows, err := s.db.QueryContext(ctx, query, store.JobStateFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed jobs query failed: %w", err)
	}
	defer rows.Close()

	var jobs []store.Job
	for rows.Next() {
		var job store.Job
		if err := scanJobInto(rows, &job, nil); err != nil {
			return nil, fmt.Errorf("failed job scan failed: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Retry moves a terminally failed job back to ready, provided its attempt
// count is still below the maximum.
func (s *Store) Retry(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE publish_queue
		SET state = $1, run_at = NOW(), lease_until = NULL, updated_at = NOW()
		WHERE job_id = $2 AND state = $3 AND attempts < max_attempts
	`, store.JobStateReady, jobID, store.JobStateFailed)
	if err != nil {
		return fmt.Errorf("failed to retry job %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

// State returns the current state of a job.
func (s *Store) State(ctx context.Context, jobID string) (store.JobState, error) {
	var state store.JobState
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM publish_queue WHERE job_id = $1", jobID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrJobNotFound
	}
	if err != nil {
		return "", err
	}
	return state, nil
}

// Counts returns a per-state tally of the queue.
func (s *Store) Counts(ctx context.Context) (store.JobCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT state, COUNT(*) FROM publish_queue GROUP BY state")
	if err != nil {
		return store.JobCounts{}, fmt.Errorf("counts query failed: %w", err)
	}
	defer rows.Close()

	var counts store.JobCounts
	for rows.Next() {
		var state store.JobState
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return store.JobCounts{}, err
		}
		switch state {
		case store.JobStateDelayed:
			counts.Delayed = n
		case store.JobStateReady:
			counts.Ready = n
		case store.JobStateActive:
			counts.Active = n
		case store.JobStateCompleted:
			counts.Completed = n
		case store.JobStateFailed:
			counts.Failed = n
		}
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*store.Job, error) {
	var job store.Job
	if err := scanJobInto(row, &job, nil); err != nil {
		return nil, err
	}
	return &job, nil
}

func scanJobInto(row rowScanner, job *store.Job, payload *json.RawMessage) error {
	dest := []interface{}{
		&job.ID,
		&job.PostID,
		&job.State,
		&job.RunAt,
		&job.LeaseUntil,
		&job.Attempts,
		&job.MaxAttempts,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	}
	if payload != nil {
		dest = append(dest, payload)
	}
	return row.Scan(dest...)
}
