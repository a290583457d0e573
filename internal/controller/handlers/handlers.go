// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"postpilot/internal/reconciler"
	"postpilot/internal/store"
	"postpilot/pkg/api"
)

// StoreFactory combines the interfaces needed for the controller to function.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.PostStore
	store.Queue
}

// PostScheduler manages the publish job behind a post.
type PostScheduler interface {
	Schedule(ctx context.Context, postID string, scheduledAt time.Time, userEmail string) error
	Unschedule(ctx context.Context, postID string) error
	Reschedule(ctx context.Context, postID string, newScheduledAt time.Time, userEmail string) error
}

// Sweeper triggers a reconciliation pass on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (*reconciler.Result, error)
}

// Pinger checks the idempotency ledger's backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store     StoreFactory
	scheduler PostScheduler
	sweeper   Sweeper
	ledger    Pinger
}

// New creates a new Handlers instance with the given dependencies.
func New(s StoreFactory, sched PostScheduler, sweeper Sweeper, ledger Pinger) *Handlers {
	return &Handlers{store: s, scheduler: sched, sweeper: sweeper, ledger: ledger}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
