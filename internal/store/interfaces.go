package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors shared by store implementations.
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobExists        = errors.New("job already exists")
	ErrPostNotFound     = errors.New("post not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrLocationNotFound = errors.New("location not found")
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// PostStore is the entity repository the dispatch core reads and writes through.
type PostStore interface {
	// CreatePost inserts a new post with status scheduled.
	CreatePost(ctx context.Context, tx DBTransaction, post *Post) error

	// GetPostByID returns a post, or ErrPostNotFound.
	GetPostByID(ctx context.Context, id string) (*Post, error)

	// UpdatePost updates the mutable fields of a post.
	UpdatePost(ctx context.Context, tx DBTransaction, post *Post) error

	// UpdatePostStatus transitions a post's status.
	UpdatePostStatus(ctx context.Context, id string, status PostStatus) error

	// DeletePost removes a post, or returns ErrPostNotFound.
	DeletePost(ctx context.Context, tx DBTransaction, id string) error

	// GetLocationByID returns the location a post belongs to, or
	// ErrLocationNotFound.
	GetLocationByID(ctx context.Context, id string) (*Location, error)

	// GetUserByEmail returns the credential-bearing user, or ErrUserNotFound.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// FindDefaultActor returns the oldest user with a non-empty email, or
	// ErrUserNotFound. Jobs injected outside a request (reconciliation
	// sweeps) run under this identity.
	FindDefaultActor(ctx context.Context) (*User, error)

	// ListOverdueScheduledPosts returns posts with status scheduled whose
	// scheduled time is at or before now, oldest first.
	ListOverdueScheduledPosts(ctx context.Context, now time.Time, limit int) ([]Post, error)

	// ListRecentlyFailedPosts returns posts with status failed updated at
	// or after since.
	ListRecentlyFailedPosts(ctx context.Context, since time.Time) ([]Post, error)
}

// Queue is the durable delayed job store for publish jobs.
// Implementations must use SELECT ... FOR UPDATE SKIP LOCKED semantics for claims.
type Queue interface {
	// Add enqueues a new delayed job. Returns ErrJobExists if a job with
	// the same id is already present.
	Add(ctx context.Context, jobID, postID string, payload json.RawMessage, delay time.Duration) error

	// Get returns a job by id, or ErrJobNotFound.
	Get(ctx context.Context, jobID string) (*Job, error)

	// Remove deletes a job regardless of state. ErrJobNotFound if absent.
	Remove(ctx context.Context, jobID string) error

	// Promote makes a delayed job eligible to run immediately.
	// Jobs in any other state are left untouched.
	Promote(ctx context.Context, jobID string) error

	// FindJobByPost returns the newest non-terminal job for a post,
	// or ErrJobNotFound.
	FindJobByPost(ctx context.Context, postID string) (*Job, error)

	// ClaimBatch atomically claims up to limit due jobs, marking them
	// active with a lease and incrementing their attempt counter.
	// Active jobs whose lease has expired are reclaimable.
	ClaimBatch(ctx context.Context, limit int) ([]ClaimedJob, error)

	// Complete marks a claimed job completed.
	Complete(ctx context.Context, jobID string) error

	// Fail records a failed attempt. While the attempt budget allows it the
	// job is re-delayed with exponential backoff; otherwise it goes to the
	// terminal failed state.
	Fail(ctx context.Context, jobID string, errMsg string) error

	// FailPermanently moves a job straight to the terminal failed state
	// and marks its attempt budget exhausted, so Retry can never bring it
	// back. Used for non-recoverable conditions such as a deleted post.
	FailPermanently(ctx context.Context, jobID string, errMsg string) error

	// ExtendLease pushes out the lease of an active job (heartbeat).
	ExtendLease(ctx context.Context, jobID string, until time.Time) error

	// ListFailed returns jobs in the terminal failed state, newest first.
	ListFailed(ctx context.Context, limit int) ([]Job, error)

	// Retry moves a terminally failed job back to ready if its attempt
	// count is below the maximum.
	Retry(ctx context.Context, jobID string) error

	// State returns the current state of a job, or ErrJobNotFound.
	State(ctx context.Context, jobID string) (JobState, error)

	// Counts returns a per-state tally of the queue.
	Counts(ctx context.Context) (JobCounts, error)
}

// ClaimedJob is a job handed to a worker together with its payload.
type ClaimedJob struct {
	Job     Job
	Payload json.RawMessage
}

// Ledger is the advisory idempotency record preventing duplicate publishes
// for the same post across reschedule races.
type Ledger interface {
	// Mark records a post as published.
	Mark(ctx context.Context, postID string) error

	// IsMarked reports whether a post was already published.
	IsMarked(ctx context.Context, postID string) (bool, error)

	// Unmark clears the published record for a post.
	Unmark(ctx context.Context, postID string) error
}
