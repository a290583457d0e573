// Package redis implements the idempotency ledger on a Redis set.
//
// Published posts are recorded in a single set with a rolling expiry, so a
// post that was already pushed to the Business Profile API is not published
// again by a rescheduled or reconciled job.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// publishedSetKey is the set holding ids of posts already published.
	publishedSetKey = "postpilot:published_posts"

	// publishedSetTTL bounds how long published markers are kept.
	publishedSetTTL = 7 * 24 * time.Hour
)

// Ledger records which posts have already been published.
// The caller owns the Redis client lifecycle.
type Ledger struct {
	client redis.Cmdable
}

// NewLedger creates a ledger on the given Redis client.
func NewLedger(client redis.Cmdable) *Ledger {
	return &Ledger{client: client}
}

// Mark records a post as published and refreshes the set expiry.
func (l *Ledger) Mark(ctx context.Context, postID string) error {
	if err := l.client.SAdd(ctx, publishedSetKey, postID).Err(); err != nil {
		return fmt.Errorf("failed to mark post %s as published: %w", postID, err)
	}
	if err := l.client.Expire(ctx, publishedSetKey, publishedSetTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh ledger expiry: %w", err)
	}
	return nil
}

// IsMarked reports whether a post was already published.
func (l *Ledger) IsMarked(ctx context.Context, postID string) (bool, error) {
	marked, err := l.client.SIsMember(ctx, publishedSetKey, postID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check ledger for post %s: %w", postID, err)
	}
	return marked, nil
}

// Unmark clears the published record for a post.
func (l *Ledger) Unmark(ctx context.Context, postID string) error {
	if err := l.client.SRem(ctx, publishedSetKey, postID).Err(); err != nil {
		return fmt.Errorf("failed to unmark post %s: %w", postID, err)
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
