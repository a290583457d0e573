// Package worker contains the dispatcher that executes publish jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"postpilot/internal/publisher"
	"postpilot/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Publisher is the external publish surface the dispatcher depends on.
type Publisher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
	Publish(ctx context.Context, gbpLocationID string, payload []byte, accessToken string) error
}

// AgentConfig holds configuration for the dispatcher agent.
type AgentConfig struct {
	Concurrency       int
	PollInterval      time.Duration
	MaxBackoff        time.Duration // Maximum poll backoff when the queue is empty (default: 30s)
	HeartbeatInterval time.Duration // Interval between lease heartbeats (default: 10s)
	LeaseExtension    time.Duration // How long each heartbeat extends the lease (default: 30s)
}

// Agent is the dispatcher that runs the pull-loop for publish jobs.
type Agent struct {
	queue     store.Queue
	posts     store.PostStore
	ledger    store.Ledger
	publisher Publisher
	config    AgentConfig
	logger    *slog.Logger
	done      chan struct{}
}

// permanentError marks a failure that must not consume the retry budget.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func permanent(format string, args ...interface{}) error {
	return &permanentError{err: fmt.Errorf(format, args...)}
}

// New creates a dispatcher agent. Startup is explicit: nothing runs until
// Run is called.
func New(queue store.Queue, posts store.PostStore, ledger store.Ledger, pub Publisher, config AgentConfig, logger *slog.Logger) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 10 * time.Second
	}
	if config.LeaseExtension <= 0 {
		config.LeaseExtension = 30 * time.Second
	}

	return &Agent{
		queue:     queue,
		posts:     posts,
		ledger:    ledger,
		publisher: pub,
		config:    config,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On shutdown it stops claiming new jobs and lets in-flight publishes finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("dispatcher starting", "concurrency", a.config.Concurrency)

	// Semaphore to limit concurrency
	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling)
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty queue, resets on work found)
	currentBackoff := a.config.PollInterval

	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("dispatcher draining, waiting for in-flight publishes")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			claimed, err := a.queue.ClaimBatch(ctx, availableSlots)
			if err != nil {
				a.logger.Error("claim failed", "error", err)
				continue
			}

			if len(claimed) == 0 {
				// Empty queue - increase backoff (exponential, capped at MaxBackoff)
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			currentBackoff = a.config.PollInterval

			a.logger.Info("claimed jobs", "count", len(claimed))

			for _, item := range claimed {
				sem <- struct{}{}

				wg.Add(1)
				go func(job store.Job, payload json.RawMessage) {
					defer wg.Done()
					defer func() {
						<-sem
						triggerPoll()
					}()
					a.processJob(ctx, job, payload)
				}(item.Job, item.Payload)
			}

			if len(claimed) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processJob executes one claimed publish job.
func (a *Agent) processJob(ctx context.Context, job store.Job, payload json.RawMessage) {
	log := a.logger.With("job_id", job.ID, "attempt", job.Attempts)

	var data store.JobPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		log.Error("invalid job payload", "error", err)
		a.failPermanently(job, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	tracer := otel.Tracer("postpilot-dispatcher")
	spanCtx, span := tracer.Start(ctx, "publish_post",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("post.id", data.PostID),
			attribute.Int("job.attempt", job.Attempts),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	log = log.With("post_id", data.PostID)
	log.Info("processing publish job")

	// The publish should finish even if the dispatcher is draining, so the
	// execution context is detached from the poll context.
	execCtx, cancel := context.WithTimeout(trace.ContextWithSpan(context.Background(), trace.SpanFromContext(spanCtx)), 2*time.Minute)
	defer cancel()

	// Heartbeat keeps the lease alive while the publish runs.
	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	defer cancelHeartbeat()
	go a.runHeartbeat(heartbeatCtx, job.ID)

	err := a.publishOnce(execCtx, data)
	if err == nil {
		if err := a.queue.Complete(context.Background(), job.ID); err != nil {
			log.Error("failed to mark job completed", "error", err)
		}
		log.Info("publish job completed")
		return
	}

	span.RecordError(err)

	var perm *permanentError
	if errors.As(err, &perm) {
		log.Warn("publish failed permanently", "error", err)
		a.failPermanently(job, err.Error())
		a.markPostFailed(data.PostID, log)
		return
	}

	log.Warn("publish attempt failed", "error", err)
	if failErr := a.queue.Fail(context.Background(), job.ID, err.Error()); failErr != nil {
		log.Error("failed to record job failure", "error", failErr)
	}

	// That was the job's last attempt; the post is now failed.
	if job.Attempts >= job.MaxAttempts {
		a.markPostFailed(data.PostID, log)
	}
}

// publishOnce performs one end-to-end publish attempt.
// Permanent conditions (deleted post, missing credential) are wrapped as
// permanentError; everything else counts against the retry budget.
func (a *Agent) publishOnce(ctx context.Context, data store.JobPayload) error {
	// A post already recorded as published must not fire again.
	marked, err := a.ledger.IsMarked(ctx, data.PostID)
	if err != nil {
		a.logger.Warn("idempotency check failed, continuing", "post_id", data.PostID, "error", err)
	} else if marked {
		a.logger.Info("post already published, skipping", "post_id", data.PostID)
		return nil
	}

	post, err := a.posts.GetPostByID(ctx, data.PostID)
	if errors.Is(err, store.ErrPostNotFound) {
		return permanent("post %s no longer exists", data.PostID)
	}
	if err != nil {
		return fmt.Errorf("failed to load post %s: %w", data.PostID, err)
	}

	if post.Status == store.PostStatusPosted {
		a.logger.Info("post already marked posted, skipping", "post_id", post.ID)
		return nil
	}

	location, err := a.posts.GetLocationByID(ctx, post.LocationID)
	if errors.Is(err, store.ErrLocationNotFound) {
		return permanent("location %s missing for post %s", post.LocationID, post.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to load location %s: %w", post.LocationID, err)
	}

	user, err := a.posts.GetUserByEmail(ctx, data.UserEmail)
	if errors.Is(err, store.ErrUserNotFound) {
		return permanent("user %s not found", data.UserEmail)
	}
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", data.UserEmail, err)
	}
	if user.RefreshToken == nil || *user.RefreshToken == "" {
		return permanent("user %s has no refresh token", data.UserEmail)
	}

	accessToken, err := a.publisher.RefreshAccessToken(ctx, *user.RefreshToken)
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}

	payload, err := publisher.BuildPayload(post)
	if err != nil {
		return permanent("failed to build publish payload for post %s: %v", post.ID, err)
	}

	if err := a.publisher.Publish(ctx, location.GBPLocationID, payload, accessToken); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	// Success. Both writes are best-effort: the external publish cannot be
	// rolled back, so the job stays terminal even if they fail.
	if err := a.ledger.Mark(ctx, post.ID); err != nil {
		a.logger.Error("failed to mark post in ledger", "post_id", post.ID, "error", err)
	}
	if err := a.posts.UpdatePostStatus(ctx, post.ID, store.PostStatusPosted); err != nil {
		a.logger.Error("failed to update post status to posted", "post_id", post.ID, "error", err)
	}

	return nil
}

func (a *Agent) failPermanently(job store.Job, reason string) {
	if err := a.queue.FailPermanently(context.Background(), job.ID, reason); err != nil {
		a.logger.Error("failed to permanently fail job", "job_id", job.ID, "error", err)
	}
}

func (a *Agent) markPostFailed(postID string, log *slog.Logger) {
	err := a.posts.UpdatePostStatus(context.Background(), postID, store.PostStatusFailed)
	if err != nil && !errors.Is(err, store.ErrPostNotFound) {
		log.Error("failed to update post status to failed", "error", err)
	}
}

// runHeartbeat extends the job lease periodically while a publish is running.
// This prevents a slow publish from being reclaimed by another worker.
func (a *Agent) runHeartbeat(ctx context.Context, jobID string) {
	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			until := time.Now().Add(a.config.LeaseExtension)
			if err := a.queue.ExtendLease(context.Background(), jobID, until); err != nil {
				a.logger.Warn("lease heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}
