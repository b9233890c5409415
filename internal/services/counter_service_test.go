package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/solestride/api/internal/repositories"
)

type stubCounterRepository struct {
	mu             sync.Mutex
	nextFn         func(context.Context, string, int64) (int64, error)
	configureFn    func(context.Context, string, repositories.CounterConfig) error
	nextCalls      []counterCall
	configureCalls []configureCall
}

type counterCall struct {
	ID   string
	Step int64
}

type configureCall struct {
	ID  string
	Cfg repositories.CounterConfig
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	s.mu.Lock()
	s.nextCalls = append(s.nextCalls, counterCall{ID: counterID, Step: step})
	s.mu.Unlock()
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 0, nil
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	s.mu.Lock()
	s.configureCalls = append(s.configureCalls, configureCall{ID: counterID, Cfg: cfg})
	s.mu.Unlock()
	if s.configureFn != nil {
		return s.configureFn(ctx, counterID, cfg)
	}
	return nil
}

func TestCounterServiceNextFormatsValue(t *testing.T) {
	repo := &stubCounterRepository{
		nextFn: func(context.Context, string, int64) (int64, error) {
			return 42, nil
		},
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	value, err := svc.Next(context.Background(), "orders", "code", CounterGenerationOptions{
		Prefix:    "SO-2024-",
		PadLength: 6,
	})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if value.Value != 42 {
		t.Fatalf("expected raw value 42, got %d", value.Value)
	}
	if value.Formatted != "SO-2024-000042" {
		t.Fatalf("expected formatted SO-2024-000042, got %s", value.Formatted)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.nextCalls) != 1 || repo.nextCalls[0].ID != "orders:code" {
		t.Fatalf("unexpected next calls: %+v", repo.nextCalls)
	}
	if len(repo.configureCalls) != 0 {
		t.Fatalf("expected no configure call without a ceiling, got %d", len(repo.configureCalls))
	}
}

func TestCounterServicePushesCeilingOnce(t *testing.T) {
	repo := &stubCounterRepository{
		nextFn: func(context.Context, string, int64) (int64, error) {
			return 7, nil
		},
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	max := int64(999999)
	opts := CounterGenerationOptions{MaxValue: &max}
	for i := 0; i < 3; i++ {
		if _, err := svc.Next(context.Background(), "returns", "global", opts); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.configureCalls) != 1 {
		t.Fatalf("expected ceiling configured once, got %d", len(repo.configureCalls))
	}
	call := repo.configureCalls[0]
	if call.ID != "returns:global" || call.Cfg.MaxValue == nil || *call.Cfg.MaxValue != max {
		t.Fatalf("unexpected configure call: %+v", call)
	}
}

func TestCounterServiceValidatesScopeAndName(t *testing.T) {
	svc, err := NewCounterService(CounterServiceDeps{Repository: &stubCounterRepository{}})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	if _, err := svc.Next(context.Background(), "  ", "global", CounterGenerationOptions{}); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for blank scope, got %v", err)
	}
	if _, err := svc.Next(context.Background(), "orders", "", CounterGenerationOptions{}); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}
}

func TestCounterServiceMapsRepositoryErrors(t *testing.T) {
	repo := &stubCounterRepository{
		nextFn: func(context.Context, string, int64) (int64, error) {
			return 0, repositories.NewCounterError(repositories.CounterErrorExhausted, "limit", nil)
		},
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	if _, err := svc.Next(context.Background(), "orders", "code", CounterGenerationOptions{}); !errors.Is(err, ErrCounterExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
}
