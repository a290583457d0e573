package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"postpilot/internal/store"
	"postpilot/pkg/api"
)

// CreatePost handles POST /posts.
// It persists the post and enqueues its delayed publish job in one operation.
func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.LocationID == "" || req.Content == "" || req.UserEmail == "" {
		h.httpError(w, "location_id, content and user_email are required", http.StatusBadRequest)
		return
	}
	if req.ScheduledAt.IsZero() {
		h.httpError(w, "scheduled_at is required", http.StatusBadRequest)
		return
	}

	ctaType, ctaURL, err := validateCTA(req.CTAType, req.CTAURL)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	post := &store.Post{
		ID:          uuid.NewString(),
		LocationID:  req.LocationID,
		Content:     req.Content,
		CTAType:     ctaType,
		CTAURL:      ctaURL,
		ScheduledAt: req.ScheduledAt,
		Status:      store.PostStatusScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ImageURL != "" {
		post.ImageURL = &req.ImageURL
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.CreatePost(ctx, tx, post); err != nil {
		h.httpError(w, "Failed to create post", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	// The post exists but has no timer yet. It stays status=scheduled so
	// the next reconciliation sweep enqueues it; the caller still sees the
	// enqueue failure.
	if err := h.scheduler.Schedule(ctx, post.ID, post.ScheduledAt, req.UserEmail); err != nil {
		h.httpError(w, "Failed to schedule post", http.StatusBadGateway)
		return
	}

	h.respondJson(w, http.StatusCreated, api.CreatePostResponse{
		PostID: post.ID,
		JobID:  "job:" + post.ID,
	})
}

// UpdatePost handles PUT /posts/{id}.
// Editing a scheduled post may move its publish time; the job follows.
func (h *Handlers) UpdatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	postID := r.PathValue("id")

	var req api.UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserEmail == "" {
		h.httpError(w, "user_email is required", http.StatusBadRequest)
		return
	}

	post, err := h.store.GetPostByID(ctx, postID)
	if errors.Is(err, store.ErrPostNotFound) {
		h.httpError(w, "Post not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	if post.Status == store.PostStatusPosted {
		h.httpError(w, "Post is already published", http.StatusConflict)
		return
	}

	if req.Content != "" {
		post.Content = req.Content
	}
	if req.ImageURL != nil {
		if *req.ImageURL == "" {
			post.ImageURL = nil
		} else {
			post.ImageURL = req.ImageURL
		}
	}
	if req.CTAType != nil {
		var ctaURL string
		if req.CTAURL != nil {
			ctaURL = *req.CTAURL
		} else if post.CTAURL != nil {
			ctaURL = *post.CTAURL
		}
		ctaType, validURL, err := validateCTA(*req.CTAType, ctaURL)
		if err != nil {
			h.httpError(w, err.Error(), http.StatusBadRequest)
			return
		}
		post.CTAType = ctaType
		post.CTAURL = validURL
	}
	if req.ScheduledAt != nil {
		post.ScheduledAt = *req.ScheduledAt
	}
	// An edited failed post goes back into the schedule.
	post.Status = store.PostStatusScheduled
	post.UpdatedAt = time.Now().UTC()

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.UpdatePost(ctx, tx, post); err != nil {
		h.httpError(w, "Failed to update post", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	if err := h.scheduler.Reschedule(ctx, post.ID, post.ScheduledAt, req.UserEmail); err != nil {
		h.httpError(w, "Failed to reschedule post", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, postResponse(post))
}

// GetPost handles GET /posts/{id}.
// The response includes the live queue entry so callers can see when the
// publish will fire and how many attempts it has consumed.
func (h *Handlers) GetPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	post, err := h.store.GetPostByID(ctx, r.PathValue("id"))
	if errors.Is(err, store.ErrPostNotFound) {
		h.httpError(w, "Post not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	resp := postResponse(post)
	if job, err := h.store.FindJobByPost(ctx, post.ID); err == nil {
		j := jobResponse(job)
		resp.Job = &j
	}

	h.respondJson(w, http.StatusOK, resp)
}

// DeletePost handles DELETE /posts/{id}.
// The publish job is removed before the row so a cancelled post can never fire.
func (h *Handlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	postID := r.PathValue("id")

	post, err := h.store.GetPostByID(ctx, postID)
	if errors.Is(err, store.ErrPostNotFound) {
		h.httpError(w, "Post not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	if post.Status == store.PostStatusPosted {
		h.httpError(w, "Published posts cannot be deleted", http.StatusConflict)
		return
	}

	if err := h.scheduler.Unschedule(ctx, postID); err != nil {
		h.httpError(w, "Failed to cancel publish job", http.StatusInternalServerError)
		return
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.DeletePost(ctx, tx, postID); err != nil {
		h.httpError(w, "Failed to delete post", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, map[string]bool{"success": true})
}

// validateCTA checks the call-to-action pair. A CALL action carries no URL;
// every other action requires an http(s) one.
func validateCTA(ctaType, ctaURL string) (*store.CTAType, *string, error) {
	if ctaType == "" {
		return nil, nil, nil
	}
	if !api.ValidCTA(ctaType) {
		return nil, nil, errors.New("unknown cta_type")
	}

	t := store.CTAType(ctaType)
	if t == store.CTACall {
		return &t, nil, nil
	}

	if ctaURL == "" {
		return nil, nil, errors.New("cta_url is required for this cta_type")
	}
	if !strings.HasPrefix(ctaURL, "http://") && !strings.HasPrefix(ctaURL, "https://") {
		return nil, nil, errors.New("cta_url must start with http:// or https://")
	}
	return &t, &ctaURL, nil
}

func postResponse(post *store.Post) api.PostResponse {
	resp := api.PostResponse{
		ID:          post.ID,
		LocationID:  post.LocationID,
		Content:     post.Content,
		ImageURL:    post.ImageURL,
		ScheduledAt: post.ScheduledAt,
		Status:      string(post.Status),
		CreatedAt:   post.CreatedAt,
		UpdatedAt:   post.UpdatedAt,
	}
	if post.CTAType != nil {
		s := string(*post.CTAType)
		resp.CTAType = &s
	}
	resp.CTAURL = post.CTAURL
	return resp
}

func jobResponse(job *store.Job) api.JobResponse {
	return api.JobResponse{
		ID:       job.ID,
		State:    string(job.State),
		RunAt:    job.RunAt,
		Attempts: job.Attempts,
		Error:    job.LastError,
		LeaseTil: job.LeaseUntil,
	}
}
