//go:build integration

package firestore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	pconfig "github.com/solestride/api/internal/platform/config"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

// allocateConcurrently fires workers goroutines at the same counter and
// returns the values they drew, sorted ascending.
func allocateConcurrently(ctx context.Context, t *testing.T, repo *CounterRepository, counterID string, workers int) []int64 {
	t.Helper()

	results := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			value, err := repo.Next(ctx, counterID, 1)
			if err != nil {
				t.Errorf("next(%d): %v", idx, err)
				return
			}
			results[idx] = value
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	return results
}

func TestCounterRepositoryIntegration(t *testing.T) {
	endpoint := startEmulator(t)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "counter-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewCounterRepository(provider)
	if err != nil {
		t.Fatalf("new counter repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Sixteen checkouts racing for order numbers must come out as a gapless
	// 1..16 sequence.
	values := allocateConcurrently(ctx, t, repo, "orders:number", 16)
	for i, val := range values {
		if want := int64(i + 1); val != want {
			t.Fatalf("expected order number %d at position %d, got %d", want, i, val)
		}
	}

	// A bounded counter stops allocating at its ceiling.
	ceiling := int64(3)
	seed := int64(0)
	if err := repo.Configure(ctx, "returns:label", repositories.CounterConfig{
		Step:         1,
		MaxValue:     &ceiling,
		InitialValue: &seed,
	}); err != nil {
		t.Fatalf("configure counter: %v", err)
	}
	for i := int64(1); i <= ceiling; i++ {
		value, err := repo.Next(ctx, "returns:label", 0)
		if err != nil {
			t.Fatalf("next bounded %d: %v", i, err)
		}
		if value != i {
			t.Fatalf("expected bounded counter %d got %d", i, value)
		}
	}

	_, err = repo.Next(ctx, "returns:label", 0)
	var counterErr *repositories.CounterError
	if !errors.As(err, &counterErr) {
		t.Fatalf("expected counter error past the ceiling, got %T %v", err, err)
	}
	if counterErr.Code != repositories.CounterErrorExhausted {
		t.Fatalf("expected exhausted code, got %s", counterErr.Code)
	}
}
