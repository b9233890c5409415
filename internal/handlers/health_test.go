package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/services"
)

type stubHealthSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubHealthSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func (s *stubHealthSystemService) ListAuditLogs(context.Context, services.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	return domain.CursorPage[domain.AuditLogEntry]{}, nil
}

func (s *stubHealthSystemService) NextCounterValue(context.Context, services.CounterCommand) (int64, error) {
	return 0, nil
}

var _ services.SystemService = (*stubHealthSystemService)(nil)

func TestHealthHandlersHealthzReportsBuild(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Second)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{
			Version:     "2.4.0",
			CommitSHA:   "f00dcafe",
			Environment: "prod",
			StartedAt:   start,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handlers.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["version"] != "2.4.0" || body["commitSha"] != "f00dcafe" || body["environment"] != "prod" {
		t.Fatalf("unexpected build fields: %v", body)
	}
}

func TestHealthHandlersReadyz(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)

	t.Run("all probes healthy", func(t *testing.T) {
		svc := &stubHealthSystemService{
			report: services.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				Version:     "2.4.0",
				Uptime:      time.Minute,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Latency: 10 * time.Millisecond, CheckedAt: now},
					"ghn":       {Status: domain.HealthStatusOK, Latency: 40 * time.Millisecond, CheckedAt: now},
				},
			},
		}
		handlers := NewHealthHandlers(
			WithHealthSystemService(svc),
			WithHealthClock(func() time.Time { return now }),
		)

		rr := httptest.NewRecorder()
		handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var body struct {
			Status string `json:"status"`
			Checks map[string]struct {
				Status string `json:"status"`
			} `json:"checks"`
			Details []string `json:"details"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if body.Status != domain.HealthStatusOK {
			t.Fatalf("expected status ok, got %s", body.Status)
		}
		if len(body.Details) != 0 {
			t.Fatalf("expected no details, got %v", body.Details)
		}
		if body.Checks["ghn"].Status != domain.HealthStatusOK {
			t.Fatalf("expected ghn probe ok, got %s", body.Checks["ghn"].Status)
		}
	})

	t.Run("degraded carrier flips readiness", func(t *testing.T) {
		svc := &stubHealthSystemService{
			report: services.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"ghn": {Status: domain.HealthStatusDegraded, Error: "quote endpoint timing out"},
				},
			},
		}
		handlers := NewHealthHandlers(
			WithHealthSystemService(svc),
			WithHealthClock(func() time.Time { return now }),
		)

		rr := httptest.NewRecorder()
		handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", rr.Code)
		}
		var body struct {
			Status  string   `json:"status"`
			Details []string `json:"details"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if body.Status != domain.HealthStatusDegraded {
			t.Fatalf("expected status degraded, got %s", body.Status)
		}
		if len(body.Details) != 1 || body.Details[0] != "ghn: quote endpoint timing out" {
			t.Fatalf("expected carrier failure detail, got %v", body.Details)
		}
	})
}
