package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/solestride/api/internal/services"
)

type stubStatisticsService struct {
	topSellersFn    func(context.Context, int, services.SalesWindow) ([]services.ShoeSales, error)
	windowTotalsFn  func(context.Context, time.Time, time.Time) (services.SalesTotals, error)
	monthlyTotalsFn func(context.Context, int) ([]services.MonthlySales, error)
}

func (s *stubStatisticsService) TopSellers(ctx context.Context, n int, window services.SalesWindow) ([]services.ShoeSales, error) {
	if s.topSellersFn != nil {
		return s.topSellersFn(ctx, n, window)
	}
	return nil, errors.New("not implemented")
}

func (s *stubStatisticsService) WindowTotals(ctx context.Context, start, end time.Time) (services.SalesTotals, error) {
	if s.windowTotalsFn != nil {
		return s.windowTotalsFn(ctx, start, end)
	}
	return services.SalesTotals{}, errors.New("not implemented")
}

func (s *stubStatisticsService) MonthlyTotals(ctx context.Context, year int) ([]services.MonthlySales, error) {
	if s.monthlyTotalsFn != nil {
		return s.monthlyTotalsFn(ctx, year)
	}
	return nil, errors.New("not implemented")
}

func TestAdminHandlersTopSellers(t *testing.T) {
	var capturedCount int
	var capturedWindow services.SalesWindow
	statistics := &stubStatisticsService{
		topSellersFn: func(_ context.Context, n int, window services.SalesWindow) ([]services.ShoeSales, error) {
			capturedCount = n
			capturedWindow = window
			return []services.ShoeSales{
				{ShoeID: "shoe-1", ShoeName: "Trail Runner", Units: 120, Revenue: 144_000_000},
				{ShoeID: "shoe-2", ShoeName: "City Walker", Units: 95, Revenue: 85_500_000},
			}, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Statistics: statistics})

	target := "/admin/statistics/top-sellers?n=5&start=2024-01-01T00:00:00Z&end=2024-02-01T00:00:00Z"
	req := authedRequest(http.MethodGet, target, nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.topSellers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if capturedCount != 5 {
		t.Fatalf("unexpected count %d", capturedCount)
	}
	wantStart := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !capturedWindow.Start.Equal(wantStart) {
		t.Fatalf("unexpected window start %v", capturedWindow.Start)
	}
	var resp topSellerListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 sellers, got %d", len(resp.Items))
	}
	if resp.Items[0].Rank != 1 || resp.Items[1].Rank != 2 {
		t.Fatalf("unexpected ranks %+v", resp.Items)
	}
	if resp.Items[0].Revenue != 144_000_000 {
		t.Fatalf("unexpected revenue %d", resp.Items[0].Revenue)
	}
}

func TestAdminHandlersTopSellersDefaultsCount(t *testing.T) {
	var capturedCount int
	statistics := &stubStatisticsService{
		topSellersFn: func(_ context.Context, n int, _ services.SalesWindow) ([]services.ShoeSales, error) {
			capturedCount = n
			return nil, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Statistics: statistics})

	req := authedRequest(http.MethodGet, "/admin/statistics/top-sellers", nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.topSellers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if capturedCount != defaultTopSellerCount {
		t.Fatalf("expected default count %d, got %d", defaultTopSellerCount, capturedCount)
	}
}

func TestAdminHandlersTopSellersRejectsInvertedWindow(t *testing.T) {
	handlers := NewAdminHandlers(AdminHandlersDeps{Statistics: &stubStatisticsService{}})

	target := "/admin/statistics/top-sellers?start=2024-02-01T00:00:00Z&end=2024-01-01T00:00:00Z"
	req := authedRequest(http.MethodGet, target, nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.topSellers(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestAdminHandlersWindowTotals(t *testing.T) {
	statistics := &stubStatisticsService{
		windowTotalsFn: func(_ context.Context, start, end time.Time) (services.SalesTotals, error) {
			return services.SalesTotals{Revenue: 250_000_000, Units: 310, Orders: 144}, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Statistics: statistics})

	target := "/admin/statistics/totals?start=2024-01-01T00:00:00Z&end=2024-02-01T00:00:00Z"
	req := authedRequest(http.MethodGet, target, nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.windowTotals(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp salesTotalsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Revenue != 250_000_000 || resp.Units != 310 || resp.Orders != 144 {
		t.Fatalf("unexpected totals %+v", resp)
	}
	if resp.Start == "" || resp.End == "" {
		t.Fatalf("expected echoed window bounds, got %+v", resp)
	}
}

func TestAdminHandlersMonthlyTotals(t *testing.T) {
	var capturedYear int
	statistics := &stubStatisticsService{
		monthlyTotalsFn: func(_ context.Context, year int) ([]services.MonthlySales, error) {
			capturedYear = year
			return []services.MonthlySales{
				{Month: 1, Revenue: 90_000_000, Units: 110, Orders: 52},
				{Month: 2, Revenue: 70_000_000, Units: 85, Orders: 40},
			}, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Statistics: statistics})

	req := authedRequest(http.MethodGet, "/admin/statistics/monthly?year=2024", nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.monthlyTotals(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if capturedYear != 2024 {
		t.Fatalf("unexpected year %d", capturedYear)
	}
	var resp monthlySalesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Year != 2024 || len(resp.Months) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Months[1].Month != 2 || resp.Months[1].Orders != 40 {
		t.Fatalf("unexpected february entry %+v", resp.Months[1])
	}
}

func TestAdminHandlersWindowTotalsDefaultsToCurrentMonth(t *testing.T) {
	var capturedStart, capturedEnd time.Time
	statistics := &stubStatisticsService{
		windowTotalsFn: func(_ context.Context, start, end time.Time) (services.SalesTotals, error) {
			capturedStart = start
			capturedEnd = end
			return services.SalesTotals{}, nil
		},
	}
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	handlers := NewAdminHandlers(AdminHandlersDeps{
		Statistics: statistics,
		Clock:      func() time.Time { return now },
	})

	req := authedRequest(http.MethodGet, "/admin/statistics/totals", nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.windowTotals(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	wantStart := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !capturedStart.Equal(wantStart) {
		t.Fatalf("unexpected default start %v", capturedStart)
	}
	if !capturedEnd.Equal(now) {
		t.Fatalf("unexpected default end %v", capturedEnd)
	}
}

func TestAdminHandlersMonthlyTotalsDefaultsToCurrentYear(t *testing.T) {
	var capturedYear int
	statistics := &stubStatisticsService{
		monthlyTotalsFn: func(_ context.Context, year int) ([]services.MonthlySales, error) {
			capturedYear = year
			return nil, nil
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{
		Statistics: statistics,
		Clock: func() time.Time {
			return time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
		},
	})

	req := authedRequest(http.MethodGet, "/admin/statistics/monthly", nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.monthlyTotals(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if capturedYear != 2024 {
		t.Fatalf("expected current year 2024, got %d", capturedYear)
	}
}

func TestAdminHandlersMonthlyTotalsRejectsBadYear(t *testing.T) {
	handlers := NewAdminHandlers(AdminHandlersDeps{Statistics: &stubStatisticsService{}})

	req := authedRequest(http.MethodGet, "/admin/statistics/monthly?year=twenty", nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.monthlyTotals(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestAdminHandlersStatisticsUnavailable(t *testing.T) {
	statistics := &stubStatisticsService{
		windowTotalsFn: func(context.Context, time.Time, time.Time) (services.SalesTotals, error) {
			return services.SalesTotals{}, services.ErrStatisticsUnavailable
		},
	}
	handlers := NewAdminHandlers(AdminHandlersDeps{Statistics: statistics})

	req := authedRequest(http.MethodGet, "/admin/statistics/totals", nil, staffIdentity())
	rec := httptest.NewRecorder()
	handlers.windowTotals(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d (%s)", rec.Code, rec.Body.String())
	}
}
