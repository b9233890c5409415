package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/solestride/api/internal/platform/httpx"
	"github.com/solestride/api/internal/services"
)

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_unavailable", "system service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	pager, err := parseCursorParams(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query := r.URL.Query()
	filter := services.AuditLogFilter{
		TargetRef:  strings.TrimSpace(query.Get("target_ref")),
		Actor:      strings.TrimSpace(query.Get("actor")),
		ActorType:  strings.TrimSpace(query.Get("actor_type")),
		Action:     strings.TrimSpace(query.Get("action")),
		Pagination: pager,
	}
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		after, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &after
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		before, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &before
	}

	page, err := h.system.ListAuditLogs(ctx, filter)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_log_error", "failed to list audit logs", http.StatusInternalServerError))
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, auditLogPayload{
			ID:        entry.ID,
			Actor:     entry.Actor,
			ActorType: entry.ActorType,
			Action:    entry.Action,
			TargetRef: entry.TargetRef,
			Metadata:  cloneMap(entry.Metadata),
			Severity:  entry.Severity,
			RequestID: entry.RequestID,
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, auditLogListResponse{Items: items, NextPageToken: page.NextPageToken})
}

type nextCounterRequest struct {
	Step int64 `json:"step,omitempty"`
}

func (h *AdminHandlers) nextCounterValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_unavailable", "system service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}
	counterID := strings.TrimSpace(chi.URLParam(r, "counterID"))
	if counterID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "counter id is required", http.StatusBadRequest))
		return
	}

	var req nextCounterRequest
	body, err := readLimitedBody(r, maxAdminBodySize)
	switch {
	case err == nil:
		if decodeErr := json.Unmarshal(body, &req); decodeErr != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
		// step defaults to one
	default:
		writeBodyError(ctx, w, err)
		return
	}
	if req.Step == 0 {
		req.Step = 1
	}

	value, err := h.system.NextCounterValue(ctx, services.CounterCommand{CounterID: counterID, Step: req.Step})
	if err != nil {
		writeCounterError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, counterValueResponse{CounterID: counterID, Value: value})
}

type auditLogListResponse struct {
	Items         []auditLogPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type auditLogPayload struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	ActorType string         `json:"actor_type"`
	Action    string         `json:"action"`
	TargetRef string         `json:"target_ref"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Severity  string         `json:"severity,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	CreatedAt string         `json:"created_at"`
}

type counterValueResponse struct {
	CounterID string `json:"counter_id"`
	Value     int64  `json:"value"`
}

func writeCounterError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCounterInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCounterExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("counter_exhausted", "counter reached its configured maximum", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("counter_error", "failed to increment counter", http.StatusInternalServerError))
	}
}
