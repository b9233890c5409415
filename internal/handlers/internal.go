package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/solestride/api/internal/platform/httpx"
	"github.com/solestride/api/internal/services"
)

// InternalHandlers serves automation endpoints invoked by schedulers and
// other trusted services. The OIDC middleware on the internal route group
// authenticates callers.
type InternalHandlers struct {
	orders services.OrderService
	jobs   services.BackgroundJobDispatcher
}

// NewInternalHandlers constructs the internal handlers.
func NewInternalHandlers(orders services.OrderService, jobs services.BackgroundJobDispatcher) *InternalHandlers {
	return &InternalHandlers{orders: orders, jobs: jobs}
}

// Routes registers the internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders:reconcile", h.reconcileOrders)
	r.Post("/carts:cleanup", h.cleanupCarts)
}

func (h *InternalHandlers) reconcileOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	report, err := h.orders.ReconcileInFlight(ctx, limit)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reconcileResponse{
		Scanned:     report.Scanned,
		Transitions: report.Transitions,
		Failures:    report.Failures,
	})
}

type cartCleanupRequest struct {
	UserIDs []string `json:"user_ids"`
}

func (h *InternalHandlers) cleanupCarts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.jobs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("jobs_unavailable", "job dispatcher unavailable", http.StatusServiceUnavailable))
		return
	}

	var req cartCleanupRequest
	body, err := readLimitedBody(r, defaultBodyLimit)
	switch {
	case err == nil:
		if decodeErr := json.Unmarshal(body, &req); decodeErr != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
		// an empty body sweeps every stale cart
	default:
		writeBodyError(ctx, w, err)
		return
	}

	if err := h.jobs.EnqueueCartCleanup(ctx, services.CartCleanupPayload{UserIDs: req.UserIDs}); err != nil {
		switch {
		case errors.Is(err, services.ErrJobInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrJobUnavailable):
			httpx.WriteError(ctx, w, httpx.NewError("jobs_unavailable", "job backend unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("jobs_error", "failed to enqueue cleanup", http.StatusInternalServerError))
		}
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type reconcileResponse struct {
	Scanned     int `json:"scanned"`
	Transitions int `json:"transitions"`
	Failures    int `json:"failures"`
}
