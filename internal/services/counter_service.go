package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/solestride/api/internal/repositories"
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the counter ran into its configured ceiling.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// CounterService hands out monotonic sequence values for named counters,
// chiefly the order-code sequence behind codes like SO-2024-000042.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
}

// CounterValue carries a raw sequence value together with its formatted form.
type CounterValue struct {
	Value     int64
	Formatted string
}

// CounterGenerationOptions controls increment size and the formatted output.
type CounterGenerationOptions struct {
	Step      int64
	MaxValue  *int64
	Prefix    string
	PadLength int
}

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
}

type counterService struct {
	repo repositories.CounterRepository

	// boundedMu guards bounded, the set of counter ids whose ceiling has
	// already been pushed to the repository.
	boundedMu sync.Mutex
	bounded   map[string]int64
}

// NewCounterService constructs a service that manages counter sequences on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	return &counterService{
		repo:    deps.Repository,
		bounded: make(map[string]int64),
	}, nil
}

func (s *counterService) Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error) {
	scope = strings.TrimSpace(scope)
	name = strings.TrimSpace(name)
	if scope == "" {
		return CounterValue{}, fmt.Errorf("%w: scope is required", ErrCounterInvalidInput)
	}
	if name == "" {
		return CounterValue{}, fmt.Errorf("%w: name is required", ErrCounterInvalidInput)
	}

	counterID := scope + ":" + name

	if err := s.pushCeiling(ctx, counterID, opts.MaxValue); err != nil {
		return CounterValue{}, err
	}

	value, err := s.repo.Next(ctx, counterID, opts.Step)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			switch counterErr.Code {
			case repositories.CounterErrorInvalidInput:
				return CounterValue{}, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
			case repositories.CounterErrorExhausted:
				return CounterValue{}, fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
			}
		}
		return CounterValue{}, err
	}

	return CounterValue{Value: value, Formatted: formatCounter(value, opts)}, nil
}

// pushCeiling configures the counter's max value in the repository the first
// time a ceiling is requested, or when the requested ceiling changes.
func (s *counterService) pushCeiling(ctx context.Context, counterID string, max *int64) error {
	if max == nil {
		return nil
	}

	s.boundedMu.Lock()
	defer s.boundedMu.Unlock()

	if current, ok := s.bounded[counterID]; ok && current == *max {
		return nil
	}
	ceiling := *max
	if err := s.repo.Configure(ctx, counterID, repositories.CounterConfig{MaxValue: &ceiling}); err != nil {
		return err
	}
	s.bounded[counterID] = ceiling
	return nil
}

func formatCounter(value int64, opts CounterGenerationOptions) string {
	formatted := strconv.FormatInt(value, 10)
	if opts.PadLength > 0 {
		formatted = fmt.Sprintf("%0*d", opts.PadLength, value)
	}
	return opts.Prefix + formatted
}
