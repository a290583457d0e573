// Package store contains the database layer for postpilot.
package store

import "time"

// PostStatus represents the publication state of a post.
type PostStatus string

const (
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPosted    PostStatus = "posted"
	PostStatusFailed    PostStatus = "failed"
)

// CTAType is the call-to-action button attached to a post.
// Values match the Business Profile actionType vocabulary.
type CTAType string

const (
	CTABook      CTAType = "BOOK"
	CTAOrder     CTAType = "ORDER"
	CTAShop      CTAType = "SHOP"
	CTALearnMore CTAType = "LEARN_MORE"
	CTASignUp    CTAType = "SIGN_UP"
	CTACall      CTAType = "CALL"
)

// Post is a business-profile post scheduled for publication.
type Post struct {
	ID          string
	LocationID  string
	Content     string
	ImageURL    *string
	CTAType     *CTAType
	CTAURL      *string
	ScheduledAt time.Time
	Status      PostStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Location is a business-profile location posts are published to.
type Location struct {
	ID            string
	GBPLocationID string // external id on the Business Profile API
	Name          string
	PhoneNumber   *string
	CreatedAt     time.Time
}

// User holds the OAuth identity used to refresh publish tokens.
type User struct {
	ID           string
	Email        string
	RefreshToken *string
	CreatedAt    time.Time
}

// JobState represents the lifecycle state of a publish job.
type JobState string

const (
	JobStateDelayed   JobState = "delayed"
	JobStateReady     JobState = "ready"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Job is a durable record of deferred publish work.
type Job struct {
	ID          string // "job:<postID>", or "job:<postID>-retry-<ms>" for sweep retries
	PostID      string
	State       JobState
	RunAt       time.Time
	LeaseUntil  *time.Time
	Attempts    int
	MaxAttempts int
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobPayload is the data carried by a publish job.
// UserEmail identifies whose refresh token authorizes the publish.
type JobPayload struct {
	PostID    string `json:"postId"`
	UserEmail string `json:"userEmail"`
}

// JobCounts is a per-state tally of jobs in the queue.
type JobCounts struct {
	Delayed   int64 `json:"delayed"`
	Ready     int64 `json:"ready"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
