package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/services"
)

type stubSystemService struct {
	healthFn  func(context.Context) (services.SystemHealthReport, error)
	auditFn   func(context.Context, services.AuditLogFilter) (domain.CursorPage[services.AuditLogEntry], error)
	counterFn func(context.Context, services.CounterCommand) (int64, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (services.SystemHealthReport, error) {
	if s.healthFn != nil {
		return s.healthFn(ctx)
	}
	return services.SystemHealthReport{}, errors.New("not implemented")
}

func (s *stubSystemService) ListAuditLogs(ctx context.Context, filter services.AuditLogFilter) (domain.CursorPage[services.AuditLogEntry], error) {
	if s.auditFn != nil {
		return s.auditFn(ctx, filter)
	}
	return domain.CursorPage[services.AuditLogEntry]{}, errors.New("not implemented")
}

func (s *stubSystemService) NextCounterValue(ctx context.Context, cmd services.CounterCommand) (int64, error) {
	if s.counterFn != nil {
		return s.counterFn(ctx, cmd)
	}
	return 0, errors.New("not implemented")
}

func TestAdminHandlersListAuditLogs(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	var captured services.AuditLogFilter
	system := &stubSystemService{
		auditFn: func(_ context.Context, filter services.AuditLogFilter) (domain.CursorPage[services.AuditLogEntry], error) {
			captured = filter
			return domain.CursorPage[services.AuditLogEntry]{
				Items: []services.AuditLogEntry{
					{
						ID:        "audit-1",
						Actor:     "staff-1",
						ActorType: "staff",
						Action:    "order.transition",
						TargetRef: "orders/order-1",
						Metadata:  map[string]any{"target_status": "shipped"},
						Severity:  "info",
						CreatedAt: now,
					},
				},
				NextPageToken: "cursor-2",
			}, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{System: system})

	target := "/admin/audit-logs?target_ref=orders/order-1&actor=staff-1&action=order.transition&created_after=2024-03-01T00:00:00Z&page_size=10"
	req := authedRequest(http.MethodGet, target, nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.listAuditLogs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.TargetRef != "orders/order-1" || captured.Actor != "staff-1" || captured.Action != "order.transition" {
		t.Fatalf("unexpected filter %+v", captured)
	}
	if captured.DateRange.From == nil || !captured.DateRange.From.Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date bound %+v", captured.DateRange.From)
	}
	if captured.DateRange.To != nil {
		t.Fatalf("upper bound should stay unset, got %+v", captured.DateRange.To)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("unexpected pagination %+v", captured.Pagination)
	}
	var resp auditLogListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Action != "order.transition" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
	if resp.NextPageToken != "cursor-2" {
		t.Fatalf("unexpected token %q", resp.NextPageToken)
	}
}

func TestAdminHandlersListAuditLogsRejectsBadTimestamp(t *testing.T) {
	handlers := NewAdminHandlers(AdminHandlersDeps{System: &stubSystemService{}})

	req := authedRequest(http.MethodGet, "/admin/audit-logs?created_after=yesterday", nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.listAuditLogs(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestAdminHandlersNextCounterValue(t *testing.T) {
	var captured services.CounterCommand
	system := &stubSystemService{
		counterFn: func(_ context.Context, cmd services.CounterCommand) (int64, error) {
			captured = cmd
			return 42, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{System: system})

	router := chi.NewRouter()
	router.Post("/admin/counters/{counterID}:next", handlers.nextCounterValue)

	t.Run("default step", func(t *testing.T) {
		req := authedRequest(http.MethodPost, "/admin/counters/order-code:next", nil, staffIdentity())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if captured.CounterID != "order-code" || captured.Step != 1 {
			t.Fatalf("unexpected command %+v", captured)
		}
		var resp counterValueResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.CounterID != "order-code" || resp.Value != 42 {
			t.Fatalf("unexpected payload %+v", resp)
		}
	})

	t.Run("explicit step", func(t *testing.T) {
		req := authedRequest(http.MethodPost, "/admin/counters/order-code:next", []byte(`{"step":5}`), staffIdentity())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if captured.Step != 5 {
			t.Fatalf("unexpected step %d", captured.Step)
		}
	})
}

func TestAdminHandlersNextCounterValueExhausted(t *testing.T) {
	system := &stubSystemService{
		counterFn: func(context.Context, services.CounterCommand) (int64, error) {
			return 0, services.ErrCounterExhausted
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{System: system})

	router := chi.NewRouter()
	router.Post("/admin/counters/{counterID}:next", handlers.nextCounterValue)

	req := authedRequest(http.MethodPost, "/admin/counters/order-code:next", nil, staffIdentity())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "counter_exhausted" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}
