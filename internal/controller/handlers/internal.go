package handlers

import (
	"net/http"

	"postpilot/internal/reconciler"
	"postpilot/pkg/api"
)

// Sweep handles POST /internal/sweep.
// Runs a reconciliation pass immediately instead of waiting for the ticker.
func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.httpError(w, "Sweep failed", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, sweepResponse(result))
}

// queueStatsFailedLimit caps how many failed jobs the stats endpoint lists.
const queueStatsFailedLimit = 20

// QueueStats handles GET /internal/queue/stats.
// Alongside the per-state tally it lists the most recent terminal failures
// so an operator can see what needs attention without querying the database.
func (h *Handlers) QueueStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.store.Counts(ctx)
	if err != nil {
		h.httpError(w, "Failed to count jobs", http.StatusInternalServerError)
		return
	}

	failed, err := h.store.ListFailed(ctx, queueStatsFailedLimit)
	if err != nil {
		h.httpError(w, "Failed to list failed jobs", http.StatusInternalServerError)
		return
	}

	resp := api.QueueStatsResponse{
		Counts: api.QueueStatsBody{
			Delayed:   counts.Delayed,
			Ready:     counts.Ready,
			Active:    counts.Active,
			Completed: counts.Completed,
			Failed:    counts.Failed,
		},
		Failed: []api.JobResponse{},
	}
	for i := range failed {
		resp.Failed = append(resp.Failed, jobResponse(&failed[i]))
	}

	h.respondJson(w, http.StatusOK, resp)
}

func sweepResponse(result *reconciler.Result) api.SweepResponse {
	resp := api.SweepResponse{
		Success:        true,
		ProcessedCount: result.ProcessedCount,
		RetriedCount:   result.RetriedCount,
		Processed:      []api.SweepPostRef{},
		Retried:        []api.SweepPostRef{},
		QueueCounts: api.QueueStatsBody{
			Delayed:   result.QueueCounts.Delayed,
			Ready:     result.QueueCounts.Ready,
			Active:    result.QueueCounts.Active,
			Completed: result.QueueCounts.Completed,
			Failed:    result.QueueCounts.Failed,
		},
	}
	for _, ref := range result.Processed {
		resp.Processed = append(resp.Processed, api.SweepPostRef{ID: ref.ID, Action: ref.Action})
	}
	for _, ref := range result.Retried {
		resp.Retried = append(resp.Retried, api.SweepPostRef{ID: ref.ID, Action: ref.Action})
	}
	return resp
}
