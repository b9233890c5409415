package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/solestride/api/internal/repositories"
)

const defaultTopSellers = 10

var (
	// ErrStatisticsInvalidInput signals the caller provided invalid bounds.
	ErrStatisticsInvalidInput = errors.New("statistics: invalid input")
	// ErrStatisticsUnavailable indicates the fact store could not be read.
	ErrStatisticsUnavailable = errors.New("statistics: unavailable")
)

// StatisticsServiceDeps bundles collaborators for the statistics service.
type StatisticsServiceDeps struct {
	Sales  repositories.SaleRepository
	Orders repositories.OrderRepository
	Clock  func() time.Time
}

type statisticsService struct {
	sales  repositories.SaleRepository
	orders repositories.OrderRepository
	clock  func() time.Time
}

// NewStatisticsService wires dependencies into a concrete StatisticsService.
func NewStatisticsService(deps StatisticsServiceDeps) (StatisticsService, error) {
	if deps.Sales == nil {
		return nil, errors.New("statistics service: sale repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("statistics service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &statisticsService{
		sales:  deps.Sales,
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *statisticsService) TopSellers(ctx context.Context, n int, window SalesWindow) ([]ShoeSales, error) {
	if n <= 0 {
		n = defaultTopSellers
	}

	start, end := s.resolveWindow(window)
	records, err := s.sales.ListBetween(ctx, start, end)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	byShoe := make(map[string]*ShoeSales)
	for _, record := range records {
		agg, ok := byShoe[record.ShoeID]
		if !ok {
			agg = &ShoeSales{ShoeID: record.ShoeID, ShoeName: record.ShoeName}
			byShoe[record.ShoeID] = agg
		}
		agg.Units += record.Quantity
		agg.Revenue += record.Revenue
	}

	ranked := make([]ShoeSales, 0, len(byShoe))
	for _, agg := range byShoe {
		ranked = append(ranked, *agg)
	}
	// Units first, revenue as tiebreaker, shoe ID last so the order is
	// deterministic.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Units != ranked[j].Units {
			return ranked[i].Units > ranked[j].Units
		}
		if ranked[i].Revenue != ranked[j].Revenue {
			return ranked[i].Revenue > ranked[j].Revenue
		}
		return ranked[i].ShoeID < ranked[j].ShoeID
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

func (s *statisticsService) WindowTotals(ctx context.Context, start, end time.Time) (SalesTotals, error) {
	if !end.After(start) {
		return SalesTotals{}, fmt.Errorf("%w: window end must be after start", ErrStatisticsInvalidInput)
	}

	records, err := s.sales.ListBetween(ctx, start, end)
	if err != nil {
		return SalesTotals{}, s.mapRepositoryError(err)
	}

	totals := SalesTotals{}
	for _, record := range records {
		totals.Revenue += record.Revenue
		totals.Units += record.Quantity
	}

	orders, err := s.orders.CountConfirmedBetween(ctx, start, end)
	if err != nil {
		return SalesTotals{}, s.mapRepositoryError(err)
	}
	totals.Orders = int(orders)

	return totals, nil
}

func (s *statisticsService) MonthlyTotals(ctx context.Context, year int) ([]MonthlySales, error) {
	if year < 2000 || year > 9999 {
		return nil, fmt.Errorf("%w: year %d out of range", ErrStatisticsInvalidInput, year)
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	// Bounds are inclusive, so the window ends just before the next year
	// starts.
	end := start.AddDate(1, 0, 0).Add(-time.Nanosecond)

	records, err := s.sales.ListBetween(ctx, start, end)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	// Twelve entries, always; months without sales stay zero.
	months := make([]MonthlySales, 12)
	for i := range months {
		months[i].Month = i + 1
	}

	for _, record := range records {
		idx := int(record.SoldAt.UTC().Month()) - 1
		months[idx].Revenue += record.Revenue
		months[idx].Units += record.Quantity
	}

	// The order count comes from the order store, not the sale facts, so
	// confirmed orders whose items were all refunded still count.
	for i := range months {
		monthStart := time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
		monthEnd := monthStart.AddDate(0, 1, 0).Add(-time.Nanosecond)
		count, err := s.orders.CountConfirmedBetween(ctx, monthStart, monthEnd)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		months[i].Orders = int(count)
	}

	return months, nil
}

func (s *statisticsService) resolveWindow(window SalesWindow) (time.Time, time.Time) {
	start := window.Start
	end := window.End
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	if end.IsZero() {
		end = s.clock()
	}
	return start, end
}

func (s *statisticsService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrStatisticsUnavailable, err)
	}
	return err
}
