// Package scheduler owns the delay computation and job-identity convention
// for publish jobs.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"postpilot/internal/store"
)

// JobID returns the canonical job identity for a post. Keying jobs by the
// post id is what keeps the queue at one live job per post: re-adding with
// the same key either collides or is preceded by an explicit removal.
func JobID(postID string) string {
	return "job:" + postID
}

// RetryJobID returns a distinguishing id for a reconciler-initiated retry.
// The canonical id may still be held by a terminal record in the queue.
func RetryJobID(postID string, now time.Time) string {
	return fmt.Sprintf("job:%s-retry-%d", postID, now.UnixMilli())
}

// SchedulingError is returned when the underlying queue is unreachable.
// The caller decides whether to roll back the post's persisted state.
type SchedulingError struct {
	PostID string
	Op     string
	Err    error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("failed to %s post %s: %v", e.Op, e.PostID, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}

// Scheduler is the public API for scheduling, unscheduling, and rescheduling
// a post's publish job.
type Scheduler struct {
	queue  store.Queue
	ledger store.Ledger
	logger *slog.Logger

	// now is swapped in tests.
	now func() time.Time
}

// New creates a Scheduler over the given queue and ledger.
func New(queue store.Queue, ledger store.Ledger, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		queue:  queue,
		ledger: ledger,
		logger: logger,
		now:    time.Now,
	}
}

// Schedule enqueues a delayed publish job for the post. An existing job for
// the same post is removed first, and the idempotency marker is cleared so
// the fresh job is allowed to fire.
func (s *Scheduler) Schedule(ctx context.Context, postID string, scheduledAt time.Time, userEmail string) error {
	delay := scheduledAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	jobID := JobID(postID)

	// Remove any live job first. Losing the race against natural
	// consumption is fine; the ledger suppresses a duplicate publish.
	if err := s.queue.Remove(ctx, jobID); err != nil && !errors.Is(err, store.ErrJobNotFound) {
		s.logger.Warn("could not remove existing job", "job_id", jobID, "error", err)
	}

	if err := s.ledger.Unmark(ctx, postID); err != nil {
		return &SchedulingError{PostID: postID, Op: "schedule", Err: err}
	}

	payload, err := json.Marshal(store.JobPayload{PostID: postID, UserEmail: userEmail})
	if err != nil {
		return &SchedulingError{PostID: postID, Op: "schedule", Err: err}
	}

	if err := s.queue.Add(ctx, jobID, postID, payload, delay); err != nil {
		return &SchedulingError{PostID: postID, Op: "schedule", Err: err}
	}

	s.logger.Info("post scheduled",
		"post_id", postID, "job_id", jobID, "scheduled_at", scheduledAt, "delay", delay)
	return nil
}

// Unschedule removes the post's publish job. A missing job is a no-op: the
// job may already have fired.
func (s *Scheduler) Unschedule(ctx context.Context, postID string) error {
	jobID := JobID(postID)

	err := s.queue.Remove(ctx, jobID)
	if errors.Is(err, store.ErrJobNotFound) {
		s.logger.Info("no scheduled job for post", "post_id", postID)
		return nil
	}
	if err != nil {
		return &SchedulingError{PostID: postID, Op: "unschedule", Err: err}
	}

	s.logger.Info("post unscheduled", "post_id", postID, "job_id", jobID)
	return nil
}

// Reschedule moves the post's publish job to a new time. Equivalent to
// Unschedule followed by Schedule; Schedule already removes the old job and
// clears the idempotency marker, so no window exists where both timers live.
func (s *Scheduler) Reschedule(ctx context.Context, postID string, newScheduledAt time.Time, userEmail string) error {
	if err := s.Unschedule(ctx, postID); err != nil {
		return err
	}
	return s.Schedule(ctx, postID, newScheduledAt, userEmail)
}
