package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solestride/api/internal/services"
)

type stubJobDispatcher struct {
	orderEventFn  func(context.Context, services.OrderEventPayload) error
	cartCleanupFn func(context.Context, services.CartCleanupPayload) error
}

func (s *stubJobDispatcher) EnqueueOrderEvent(ctx context.Context, payload services.OrderEventPayload) error {
	if s.orderEventFn != nil {
		return s.orderEventFn(ctx, payload)
	}
	return errors.New("not implemented")
}

func (s *stubJobDispatcher) EnqueueCartCleanup(ctx context.Context, payload services.CartCleanupPayload) error {
	if s.cartCleanupFn != nil {
		return s.cartCleanupFn(ctx, payload)
	}
	return errors.New("not implemented")
}

func TestInternalHandlersReconcileOrders(t *testing.T) {
	var capturedLimit int
	orders := &stubOrderService{
		reconcileFn: func(_ context.Context, limit int) (services.ReconcileReport, error) {
			capturedLimit = limit
			return services.ReconcileReport{Scanned: 40, Transitions: 3, Failures: 1}, nil
		},
	}
	handlers := NewInternalHandlers(orders, nil)

	req := httptest.NewRequest(http.MethodPost, "/internal/orders:reconcile?limit=40", nil)
	rec := httptest.NewRecorder()
	handlers.reconcileOrders(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if capturedLimit != 40 {
		t.Fatalf("unexpected limit %d", capturedLimit)
	}
	var resp reconcileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Scanned != 40 || resp.Transitions != 3 || resp.Failures != 1 {
		t.Fatalf("unexpected report %+v", resp)
	}
}

func TestInternalHandlersReconcileOrdersDefaultsLimit(t *testing.T) {
	var capturedLimit int
	orders := &stubOrderService{
		reconcileFn: func(_ context.Context, limit int) (services.ReconcileReport, error) {
			capturedLimit = limit
			return services.ReconcileReport{}, nil
		},
	}
	handlers := NewInternalHandlers(orders, nil)

	req := httptest.NewRequest(http.MethodPost, "/internal/orders:reconcile", nil)
	rec := httptest.NewRecorder()
	handlers.reconcileOrders(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if capturedLimit != 0 {
		t.Fatalf("expected service-side default, got %d", capturedLimit)
	}
}

func TestInternalHandlersReconcileOrdersRejectsBadLimit(t *testing.T) {
	handlers := NewInternalHandlers(&stubOrderService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/internal/orders:reconcile?limit=-3", nil)
	rec := httptest.NewRecorder()
	handlers.reconcileOrders(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestInternalHandlersCleanupCarts(t *testing.T) {
	var captured services.CartCleanupPayload
	jobs := &stubJobDispatcher{
		cartCleanupFn: func(_ context.Context, payload services.CartCleanupPayload) error {
			captured = payload
			return nil
		},
	}
	handlers := NewInternalHandlers(nil, jobs)

	t.Run("scoped", func(t *testing.T) {
		body := []byte(`{"user_ids":["user-1","user-2"]}`)
		req := httptest.NewRequest(http.MethodPost, "/internal/carts:cleanup", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		handlers.cleanupCarts(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d (%s)", rec.Code, rec.Body.String())
		}
		if len(captured.UserIDs) != 2 || captured.UserIDs[0] != "user-1" {
			t.Fatalf("unexpected payload %+v", captured)
		}
	})

	t.Run("full sweep without body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/carts:cleanup", nil)
		rec := httptest.NewRecorder()
		handlers.cleanupCarts(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d (%s)", rec.Code, rec.Body.String())
		}
		if captured.UserIDs != nil {
			t.Fatalf("expected empty payload, got %+v", captured)
		}
	})
}

func TestInternalHandlersCleanupCartsUnavailable(t *testing.T) {
	jobs := &stubJobDispatcher{
		cartCleanupFn: func(context.Context, services.CartCleanupPayload) error {
			return services.ErrJobUnavailable
		},
	}
	handlers := NewInternalHandlers(nil, jobs)

	req := httptest.NewRequest(http.MethodPost, "/internal/carts:cleanup", nil)
	rec := httptest.NewRecorder()
	handlers.cleanupCarts(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d (%s)", rec.Code, rec.Body.String())
	}
}
