package http

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/tsonev198862/autofix-api/internal/models"
	"github.com/tsonev198862/autofix-api/internal/obs"
	"github.com/tsonev198862/autofix-api/internal/search"
)

// AggregatorService is the single operation the HTTP layer consumes.
type AggregatorService interface {
	Search(ctx context.Context, query string) (search.Outcome, error)
	SessionFlags() map[string]bool
}

type Handler struct {
	agg         AggregatorService
	ratelimiter search.RateLimiter
	metrics     *obs.Metrics
}

func NewHandler(agg AggregatorService, rl search.RateLimiter, m *obs.Metrics) *Handler {
	return &Handler{agg: agg, ratelimiter: rl, metrics: m}
}

func (h *Handler) ipFromRequest(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.metrics.IncSearches()

	// chi's middleware.RequestID sets X-Request-Id header
	reqID := r.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.New().String()
	}

	ip := h.ipFromRequest(r)
	if !h.ratelimiter.Allow(ip) {
		h.metrics.IncRateLimitDrops()
		TooManyRequests(w, "rate limit exceeded", map[string]string{"request_id": reqID})
		return
	}

	outcome, err := h.agg.Search(ctx, r.URL.Query().Get("q"))
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			BadRequest(w, err.Error(), map[string]string{"request_id": reqID})
			return
		}
		InternalError(w, err.Error(), map[string]string{"request_id": reqID})
		return
	}

	out := map[string]any{
		"success":    true,
		"query":      outcome.Query,
		"totalCount": outcome.TotalCount,
		"elapsed":    outcome.ElapsedMs,
		"rates":      outcome.Rates,
		"results":    outcome.Results,
	}
	for id, n := range outcome.Counts {
		out[id+"Count"] = n
	}

	WriteJSON(w, http.StatusOK, out)
}

// Status reports per-supplier session cache validity for operators.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"sessions": h.agg.SessionFlags()})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
