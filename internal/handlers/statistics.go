package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/solestride/api/internal/platform/httpx"
	"github.com/solestride/api/internal/services"
)

const defaultTopSellerCount = 10

func (h *AdminHandlers) statisticsRoutes(r chi.Router) {
	r.Get("/top-sellers", h.topSellers)
	r.Get("/totals", h.windowTotals)
	r.Get("/monthly", h.monthlyTotals)
}

func (h *AdminHandlers) topSellers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.statistics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("statistics_unavailable", "statistics service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	count := defaultTopSellerCount
	if raw := strings.TrimSpace(r.URL.Query().Get("n")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "n must be a positive integer", http.StatusBadRequest))
			return
		}
		count = parsed
	}
	window, err := parseSalesWindow(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	sellers, err := h.statistics.TopSellers(ctx, count, window)
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}

	items := make([]topSellerPayload, 0, len(sellers))
	for rank, seller := range sellers {
		items = append(items, topSellerPayload{
			Rank:     rank + 1,
			ShoeID:   seller.ShoeID,
			ShoeName: seller.ShoeName,
			Units:    seller.Units,
			Revenue:  seller.Revenue,
		})
	}
	writeJSONResponse(w, http.StatusOK, topSellerListResponse{Items: items})
}

func (h *AdminHandlers) windowTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.statistics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("statistics_unavailable", "statistics service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	window, err := parseSalesWindow(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	// Totals need a concrete window; absent bounds default to the current
	// month so far.
	now := h.clock().UTC()
	if window.Start.IsZero() {
		window.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	if window.End.IsZero() {
		window.End = now
	}
	if window.End.Before(window.Start) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errInvalidWindow.Error(), http.StatusBadRequest))
		return
	}

	totals, err := h.statistics.WindowTotals(ctx, window.Start, window.End)
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, salesTotalsResponse{
		Start:   formatTime(window.Start),
		End:     formatTime(window.End),
		Revenue: totals.Revenue,
		Units:   totals.Units,
		Orders:  totals.Orders,
	})
}

func (h *AdminHandlers) monthlyTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.statistics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("statistics_unavailable", "statistics service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	// An absent year means the current one.
	year := h.clock().UTC().Year()
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "year must be an integer", http.StatusBadRequest))
			return
		}
		year = parsed
	}

	months, err := h.statistics.MonthlyTotals(ctx, year)
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}

	items := make([]monthlySalesPayload, 0, len(months))
	for _, month := range months {
		items = append(items, monthlySalesPayload{
			Month:   month.Month,
			Revenue: month.Revenue,
			Units:   month.Units,
			Orders:  month.Orders,
		})
	}
	writeJSONResponse(w, http.StatusOK, monthlySalesResponse{Year: year, Months: items})
}

// parseSalesWindow reads optional start/end bounds from the query string.
func parseSalesWindow(r *http.Request) (services.SalesWindow, error) {
	var window services.SalesWindow
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("start")); raw != "" {
		start, err := parseTimeParam(raw)
		if err != nil {
			return services.SalesWindow{}, err
		}
		window.Start = start
	}
	if raw := strings.TrimSpace(query.Get("end")); raw != "" {
		end, err := parseTimeParam(raw)
		if err != nil {
			return services.SalesWindow{}, err
		}
		window.End = end
	}
	if !window.Start.IsZero() && !window.End.IsZero() && window.End.Before(window.Start) {
		return services.SalesWindow{}, errInvalidWindow
	}
	return window, nil
}

var errInvalidWindow = errors.New("end must not precede start")

type topSellerListResponse struct {
	Items []topSellerPayload `json:"items"`
}

type topSellerPayload struct {
	Rank     int    `json:"rank"`
	ShoeID   string `json:"shoe_id"`
	ShoeName string `json:"shoe_name"`
	Units    int    `json:"units"`
	Revenue  int64  `json:"revenue"`
}

type salesTotalsResponse struct {
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	Revenue int64  `json:"revenue"`
	Units   int    `json:"units"`
	Orders  int    `json:"orders"`
}

type monthlySalesResponse struct {
	Year   int                   `json:"year"`
	Months []monthlySalesPayload `json:"months"`
}

type monthlySalesPayload struct {
	Month   int   `json:"month"`
	Revenue int64 `json:"revenue"`
	Units   int   `json:"units"`
	Orders  int   `json:"orders"`
}

func writeStatisticsError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrStatisticsInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStatisticsUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("statistics_unavailable", "statistics backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("statistics_error", "failed to compute statistics", http.StatusInternalServerError))
	}
}
