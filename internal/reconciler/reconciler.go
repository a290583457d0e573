// Package reconciler repairs drift between the intended publish schedule and
// the actual state of the job queue.
//
// Delayed jobs are not guaranteed to fire at their due time if the dispatcher
// was down, crashed, or lost a timer. The reconciler audits the queue against
// the posts table on an interval (and on demand) and re-injects or promotes
// whatever is missing.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"postpilot/internal/scheduler"
	"postpilot/internal/store"
)

// Config holds the reconciler knobs.
type Config struct {
	Interval      time.Duration // sweep interval (default: 1h)
	RetryLookback time.Duration // failed-post retry window (default: 24h)
	BatchLimit    int           // max overdue posts per sweep (default: 100)

	// ActorEmail overrides the identity used for re-injected jobs. When
	// empty the sweep resolves the default actor from the entity store.
	ActorEmail string
}

// errNoActor aborts re-injection when no identity is available; promoting
// existing jobs still works without one.
var errNoActor = errors.New("no actor identity available for job injection")

// PostRef identifies a post touched by a sweep.
type PostRef struct {
	ID     string `json:"id"`
	Action string `json:"action"` // "enqueued", "promoted", or "retried"
}

// Result is the aggregate outcome of one sweep.
type Result struct {
	ProcessedCount int             `json:"processedCount"`
	RetriedCount   int             `json:"retriedCount"`
	Processed      []PostRef       `json:"processed"`
	Retried        []PostRef       `json:"retried"`
	QueueCounts    store.JobCounts `json:"queueCounts"`
}

// Reconciler runs the periodic and on-demand sweep.
type Reconciler struct {
	queue  store.Queue
	posts  store.PostStore
	ledger store.Ledger
	config Config
	logger *slog.Logger

	// now is swapped in tests.
	now func() time.Time
}

// New creates a Reconciler.
func New(queue store.Queue, posts store.PostStore, ledger store.Ledger, config Config, logger *slog.Logger) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = 1 * time.Hour
	}
	if config.RetryLookback <= 0 {
		config.RetryLookback = 24 * time.Hour
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = 100
	}

	return &Reconciler{
		queue:  queue,
		posts:  posts,
		ledger: ledger,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := r.Sweep(ctx)
			if err != nil {
				r.logger.Error("sweep failed", "error", err)
				continue
			}
			r.logger.Info("sweep finished",
				"processed", result.ProcessedCount, "retried", result.RetriedCount)
		}
	}
}

// Sweep performs one reconciliation pass. Per-post errors are logged and
// skipped; only a failure to query the posts table aborts the sweep.
func (r *Reconciler) Sweep(ctx context.Context) (*Result, error) {
	now := r.now()
	result := &Result{Processed: []PostRef{}, Retried: []PostRef{}}

	// Jobs the sweep creates need an identity whose refresh token
	// authorizes the publish. Without one, promotion still runs but no
	// new jobs are injected.
	actor, err := r.resolveActor(ctx)
	if err != nil {
		r.logger.Error("actor resolution failed, skipping job injection", "error", err)
	}

	// Overdue scheduled posts should already have fired.
	overdue, err := r.posts.ListOverdueScheduledPosts(ctx, now, r.config.BatchLimit)
	if err != nil {
		return nil, err
	}
	r.logger.Info("found overdue scheduled posts", "count", len(overdue))

	for _, post := range overdue {
		ref, err := r.reconcileOverduePost(ctx, post, actor)
		if err != nil {
			r.logger.Error("failed to reconcile post", "post_id", post.ID, "error", err)
			continue
		}
		if ref != nil {
			result.Processed = append(result.Processed, *ref)
		}
	}

	// Failed posts inside the lookback window get one automatic retry.
	failedPosts, err := r.posts.ListRecentlyFailedPosts(ctx, now.Add(-r.config.RetryLookback))
	if err != nil {
		r.logger.Error("failed posts query failed", "error", err)
	}
	for _, post := range failedPosts {
		if err := r.retryFailedPost(ctx, post, actor, now); err != nil {
			r.logger.Error("failed to retry post", "post_id", post.ID, "error", err)
			continue
		}
		result.Retried = append(result.Retried, PostRef{ID: post.ID, Action: "retried"})
	}

	// Store-level failures with budget left are retried independently of
	// the post's own status.
	failedJobs, err := r.queue.ListFailed(ctx, 0)
	if err != nil {
		r.logger.Error("failed jobs query failed", "error", err)
	}
	for _, job := range failedJobs {
		if job.Attempts >= job.MaxAttempts {
			continue
		}
		if err := r.queue.Retry(ctx, job.ID); err != nil {
			if !errors.Is(err, store.ErrJobNotFound) {
				r.logger.Error("failed to retry job", "job_id", job.ID, "error", err)
			}
			continue
		}
		result.Retried = append(result.Retried, PostRef{ID: job.PostID, Action: "retried"})
	}

	if counts, err := r.queue.Counts(ctx); err == nil {
		result.QueueCounts = counts
	}

	result.ProcessedCount = len(result.Processed)
	result.RetriedCount = len(result.Retried)
	return result, nil
}

// resolveActor returns the identity re-injected jobs run under: the
// configured override when set, otherwise the store's default actor.
func (r *Reconciler) resolveActor(ctx context.Context) (string, error) {
	if r.config.ActorEmail != "" {
		return r.config.ActorEmail, nil
	}
	user, err := r.posts.FindDefaultActor(ctx)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

// reconcileOverduePost re-injects or promotes the job for one overdue post.
// Returns nil without error when no action was needed.
func (r *Reconciler) reconcileOverduePost(ctx context.Context, post store.Post, actor string) (*PostRef, error) {
	jobID := scheduler.JobID(post.ID)

	job, err := r.queue.Get(ctx, jobID)
	if errors.Is(err, store.ErrJobNotFound) {
		// A post already recorded as published is drift in the other
		// direction; firing again would duplicate the publish.
		marked, lerr := r.ledger.IsMarked(ctx, post.ID)
		if lerr != nil {
			r.logger.Warn("idempotency check failed, enqueuing anyway", "post_id", post.ID, "error", lerr)
		} else if marked {
			r.logger.Info("post already published, not re-enqueuing", "post_id", post.ID)
			return nil, nil
		}

		if actor == "" {
			return nil, errNoActor
		}

		payload, err := json.Marshal(store.JobPayload{PostID: post.ID, UserEmail: actor})
		if err != nil {
			return nil, err
		}
		if err := r.queue.Add(ctx, jobID, post.ID, payload, 0); err != nil {
			return nil, err
		}
		r.logger.Info("created job for overdue post", "post_id", post.ID)
		return &PostRef{ID: post.ID, Action: "enqueued"}, nil
	}
	if err != nil {
		return nil, err
	}

	if job.State == store.JobStateDelayed {
		// Missed timer or clock skew: force the job due now.
		if err := r.queue.Promote(ctx, jobID); err != nil {
			return nil, err
		}
		r.logger.Info("promoted delayed job for overdue post", "post_id", post.ID)
		return &PostRef{ID: post.ID, Action: "promoted"}, nil
	}

	// Ready or active: the dispatcher already has it.
	return nil, nil
}

// retryFailedPost flips a failed post back to scheduled and enqueues a fresh
// zero-delay job under a retry-suffixed id, since the canonical id may be
// held by a terminal record.
func (r *Reconciler) retryFailedPost(ctx context.Context, post store.Post, actor string, now time.Time) error {
	if actor == "" {
		return errNoActor
	}

	if err := r.posts.UpdatePostStatus(ctx, post.ID, store.PostStatusScheduled); err != nil {
		return err
	}

	payload, err := json.Marshal(store.JobPayload{PostID: post.ID, UserEmail: actor})
	if err != nil {
		return err
	}

	return r.queue.Add(ctx, scheduler.RetryJobID(post.ID, now), post.ID, payload, 0)
}
