// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// CreatePostRequest is the request body for scheduling a new post.
type CreatePostRequest struct {
	LocationID  string    `json:"location_id"`
	Content     string    `json:"content"`
	ImageURL    string    `json:"image_url,omitempty"`
	CTAType     string    `json:"cta_type,omitempty"`
	CTAURL      string    `json:"cta_url,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	UserEmail   string    `json:"user_email"`
}

// CreatePostResponse is the response body after scheduling a post.
type CreatePostResponse struct {
	PostID string `json:"post_id"`
	JobID  string `json:"job_id"`
}

// UpdatePostRequest is the request body for editing a scheduled post.
// Zero-valued fields are left unchanged; ScheduledAt moves the job.
type UpdatePostRequest struct {
	Content     string     `json:"content,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty"`
	CTAType     *string    `json:"cta_type,omitempty"`
	CTAURL      *string    `json:"cta_url,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	UserEmail   string     `json:"user_email"`
}

// PostResponse represents a post in API responses.
type PostResponse struct {
	ID          string    `json:"id"`
	LocationID  string    `json:"location_id"`
	Content     string    `json:"content"`
	ImageURL    *string   `json:"image_url,omitempty"`
	CTAType     *string   `json:"cta_type,omitempty"`
	CTAURL      *string   `json:"cta_url,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Job is the live queue entry backing the post, if one exists.
	Job *JobResponse `json:"job,omitempty"`
}

// JobResponse describes the queue entry backing a post, if any.
type JobResponse struct {
	ID       string     `json:"id"`
	State    string     `json:"state"`
	RunAt    time.Time  `json:"run_at"`
	Attempts int        `json:"attempts"`
	Error    *string    `json:"error,omitempty"`
	LeaseTil *time.Time `json:"lease_until,omitempty"`
}

// SweepPostRef identifies a post touched by a reconciliation sweep.
type SweepPostRef struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// SweepResponse is the response body for a manual reconciliation sweep.
type SweepResponse struct {
	Success        bool           `json:"success"`
	ProcessedCount int            `json:"processedCount"`
	RetriedCount   int            `json:"retriedCount"`
	Processed      []SweepPostRef `json:"processed"`
	Retried        []SweepPostRef `json:"retried"`
	QueueCounts    QueueStatsBody `json:"queueCounts"`
}

// QueueStatsBody is the per-state job tally.
type QueueStatsBody struct {
	Delayed   int64 `json:"delayed"`
	Ready     int64 `json:"ready"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// QueueStatsResponse is the response body for queue stats queries.
type QueueStatsResponse struct {
	Counts QueueStatsBody `json:"counts"`
	Failed []JobResponse  `json:"failed"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// CTA action types accepted by the Business Profile API.
const (
	CTABook      = "BOOK"
	CTAOrder     = "ORDER"
	CTAShop      = "SHOP"
	CTALearnMore = "LEARN_MORE"
	CTASignUp    = "SIGN_UP"
	CTACall      = "CALL"
)

// ValidCTA reports whether t is a recognised call-to-action type.
func ValidCTA(t string) bool {
	switch t {
	case CTABook, CTAOrder, CTAShop, CTALearnMore, CTASignUp, CTACall:
		return true
	}
	return false
}
