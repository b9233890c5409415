package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/solestride/api/internal/domain"
)

func saleAt(orderID, shoeID, shoeName string, qty int, unitPrice int64, soldAt time.Time) domain.SaleRecord {
	return domain.SaleRecord{
		ID:        "sale_" + orderID + "_" + shoeID,
		OrderID:   orderID,
		ShoeID:    shoeID,
		ShoeName:  shoeName,
		Quantity:  qty,
		UnitPrice: unitPrice,
		Revenue:   unitPrice * int64(qty),
		SoldAt:    soldAt,
	}
}

func newTestStatisticsService(t *testing.T, sales *stubSaleRepo, orders *stubOrderRepo) StatisticsService {
	t.Helper()
	if sales == nil {
		sales = &stubSaleRepo{}
	}
	if orders == nil {
		orders = &stubOrderRepo{}
	}
	svc, err := NewStatisticsService(StatisticsServiceDeps{
		Sales:  sales,
		Orders: orders,
		Clock:  fixedClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("NewStatisticsService: %v", err)
	}
	return svc
}

func TestStatisticsServiceTopSellers(t *testing.T) {
	may := time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []domain.SaleRecord{
		saleAt("ord_1", "shoe_runner", "Street Runner", 3, 1200000, may),
		saleAt("ord_2", "shoe_runner", "Street Runner", 2, 1200000, may.Add(time.Hour)),
		saleAt("ord_2", "shoe_court", "Court Classic", 5, 900000, may.Add(time.Hour)),
		saleAt("ord_3", "shoe_trail", "Trail Grip", 5, 1500000, may.Add(2*time.Hour)),
	}
	var gotStart, gotEnd time.Time
	svc := newTestStatisticsService(t, &stubSaleRepo{
		listBetweenFn: func(_ context.Context, start, end time.Time) ([]domain.SaleRecord, error) {
			gotStart, gotEnd = start, end
			return records, nil
		},
	}, nil)

	ranked, err := svc.TopSellers(context.Background(), 2, SalesWindow{})
	if err != nil {
		t.Fatalf("TopSellers failed: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(ranked))
	}
	// Trail Grip and Street Runner both sold 5 pairs; revenue breaks the tie.
	if ranked[0].ShoeID != "shoe_trail" || ranked[0].Units != 5 || ranked[0].Revenue != 7500000 {
		t.Fatalf("unexpected leader: %+v", ranked[0])
	}
	if ranked[1].ShoeID != "shoe_runner" || ranked[1].Units != 5 || ranked[1].Revenue != 6000000 {
		t.Fatalf("unexpected runner-up: %+v", ranked[1])
	}
	if !gotStart.Equal(time.Unix(0, 0).UTC()) {
		t.Fatalf("open window must start at the epoch, got %v", gotStart)
	}
	if !gotEnd.Equal(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("open window must end now, got %v", gotEnd)
	}
}

func TestStatisticsServiceTopSellersDeterministicTie(t *testing.T) {
	may := time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)
	records := []domain.SaleRecord{
		saleAt("ord_1", "shoe_b", "B", 2, 1000000, may),
		saleAt("ord_2", "shoe_a", "A", 2, 1000000, may),
	}
	svc := newTestStatisticsService(t, &stubSaleRepo{
		listBetweenFn: func(context.Context, time.Time, time.Time) ([]domain.SaleRecord, error) {
			return records, nil
		},
	}, nil)

	for i := 0; i < 5; i++ {
		ranked, err := svc.TopSellers(context.Background(), 0, SalesWindow{})
		if err != nil {
			t.Fatalf("TopSellers failed: %v", err)
		}
		if ranked[0].ShoeID != "shoe_a" || ranked[1].ShoeID != "shoe_b" {
			t.Fatalf("tie must break on shoe id, got %+v", ranked)
		}
	}
}

func TestStatisticsServiceWindowTotals(t *testing.T) {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	mid := time.Date(2025, 5, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	all := []domain.SaleRecord{
		saleAt("ord_1", "shoe_runner", "Street Runner", 2, 1200000, start.Add(24*time.Hour)),
		saleAt("ord_2", "shoe_court", "Court Classic", 1, 900000, mid.Add(-time.Second)),
		saleAt("ord_3", "shoe_court", "Court Classic", 3, 900000, mid.Add(24*time.Hour)),
	}
	inWindow := func(s, e time.Time) []domain.SaleRecord {
		var out []domain.SaleRecord
		for _, r := range all {
			if !r.SoldAt.Before(s) && !r.SoldAt.After(e) {
				out = append(out, r)
			}
		}
		return out
	}
	svc := newTestStatisticsService(t, &stubSaleRepo{
		listBetweenFn: func(_ context.Context, s, e time.Time) ([]domain.SaleRecord, error) {
			return inWindow(s, e), nil
		},
	}, &stubOrderRepo{
		countFn: func(_ context.Context, s, e time.Time) (int64, error) {
			seen := map[string]struct{}{}
			for _, r := range inWindow(s, e) {
				seen[r.OrderID] = struct{}{}
			}
			return int64(len(seen)), nil
		},
	})

	whole, err := svc.WindowTotals(context.Background(), start, end)
	if err != nil {
		t.Fatalf("WindowTotals failed: %v", err)
	}
	first, err := svc.WindowTotals(context.Background(), start, mid.Add(-time.Nanosecond))
	if err != nil {
		t.Fatalf("WindowTotals failed: %v", err)
	}
	second, err := svc.WindowTotals(context.Background(), mid, end)
	if err != nil {
		t.Fatalf("WindowTotals failed: %v", err)
	}

	// Bounds are inclusive; adjacent windows that abut at mid without
	// overlapping partition cleanly, so the halves sum to the whole.
	if first.Revenue+second.Revenue != whole.Revenue {
		t.Fatalf("revenue not additive: %d + %d != %d", first.Revenue, second.Revenue, whole.Revenue)
	}
	if first.Units+second.Units != whole.Units {
		t.Fatalf("units not additive: %d + %d != %d", first.Units, second.Units, whole.Units)
	}
	if first.Orders+second.Orders != whole.Orders {
		t.Fatalf("orders not additive: %d + %d != %d", first.Orders, second.Orders, whole.Orders)
	}
	if whole.Revenue != 2*1200000+4*900000 || whole.Units != 6 || whole.Orders != 3 {
		t.Fatalf("unexpected totals: %+v", whole)
	}
}

func TestStatisticsServiceWindowTotalsRejectsEmptyWindow(t *testing.T) {
	svc := newTestStatisticsService(t, nil, nil)
	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, err := svc.WindowTotals(context.Background(), at, at); !errors.Is(err, ErrStatisticsInvalidInput) {
		t.Fatalf("expected ErrStatisticsInvalidInput, got %v", err)
	}
	if _, err := svc.WindowTotals(context.Background(), at, at.Add(-time.Hour)); !errors.Is(err, ErrStatisticsInvalidInput) {
		t.Fatalf("expected ErrStatisticsInvalidInput, got %v", err)
	}
}

func TestStatisticsServiceMonthlyTotals(t *testing.T) {
	records := []domain.SaleRecord{
		saleAt("ord_1", "shoe_runner", "Street Runner", 2, 1200000, time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)),
		saleAt("ord_1", "shoe_court", "Court Classic", 1, 900000, time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)),
		saleAt("ord_2", "shoe_court", "Court Classic", 4, 900000, time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)),
	}
	confirmed := []time.Time{
		time.Date(2025, 3, 5, 11, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 28, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 11, 20, 11, 0, 0, 0, time.UTC),
	}
	svc := newTestStatisticsService(t, &stubSaleRepo{
		listBetweenFn: func(_ context.Context, start, end time.Time) ([]domain.SaleRecord, error) {
			if start.Year() != 2025 || end.Year() != 2025 {
				t.Fatalf("year window must stay inside 2025, got %v to %v", start, end)
			}
			return records, nil
		},
	}, &stubOrderRepo{
		countFn: func(_ context.Context, start, end time.Time) (int64, error) {
			var n int64
			for _, at := range confirmed {
				if !at.Before(start) && !at.After(end) {
					n++
				}
			}
			return n, nil
		},
	})

	months, err := svc.MonthlyTotals(context.Background(), 2025)
	if err != nil {
		t.Fatalf("MonthlyTotals failed: %v", err)
	}
	if len(months) != 12 {
		t.Fatalf("expected 12 months, got %d", len(months))
	}
	for i, m := range months {
		if m.Month != i+1 {
			t.Fatalf("month %d mislabeled as %d", i+1, m.Month)
		}
	}

	// Order counts come from the order store, so March shows two confirmed
	// orders even though only one produced sale facts.
	march := months[2]
	if march.Revenue != 2*1200000+900000 || march.Units != 3 || march.Orders != 2 {
		t.Fatalf("unexpected march totals: %+v", march)
	}
	november := months[10]
	if november.Revenue != 4*900000 || november.Units != 4 || november.Orders != 1 {
		t.Fatalf("unexpected november totals: %+v", november)
	}
	for i, m := range months {
		if i == 2 || i == 10 {
			continue
		}
		if m.Revenue != 0 || m.Units != 0 || m.Orders != 0 {
			t.Fatalf("month %d must stay zero, got %+v", i+1, m)
		}
	}
}

func TestStatisticsServiceMonthlyTotalsRejectsBadYear(t *testing.T) {
	svc := newTestStatisticsService(t, nil, nil)
	for _, year := range []int{0, 1999, 10000} {
		if _, err := svc.MonthlyTotals(context.Background(), year); !errors.Is(err, ErrStatisticsInvalidInput) {
			t.Fatalf("year %d: expected ErrStatisticsInvalidInput, got %v", year, err)
		}
	}
}
