package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/solestride/api/internal/domain"
)

func TestInventoryServiceAdjustStock(t *testing.T) {
	var gotSizeID string
	var gotDelta int
	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: &stubInventoryRepo{
			adjustFn: func(_ context.Context, sizeID string, delta int, _ time.Time) (domain.ShoeSize, error) {
				gotSizeID = sizeID
				gotDelta = delta
				return domain.ShoeSize{ID: sizeID, EUSize: 42, Quantity: 12}, nil
			},
		},
		Clock: fixedClock(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	size, err := svc.AdjustStock(context.Background(), AdjustStockCommand{SizeID: "size_42", Delta: 2, ActorID: "staff_1"})
	if err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if gotSizeID != "size_42" || gotDelta != 2 {
		t.Fatalf("unexpected repository call: %q %d", gotSizeID, gotDelta)
	}
	if size.Quantity != 12 {
		t.Fatalf("unexpected remaining quantity %d", size.Quantity)
	}
}

func TestInventoryServiceAdjustStockValidation(t *testing.T) {
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: &stubInventoryRepo{}})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	if _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{SizeID: " ", Delta: 1}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("blank size: expected ErrInventoryInvalidInput, got %v", err)
	}
	if _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{SizeID: "size_42", Delta: 0}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("zero delta: expected ErrInventoryInvalidInput, got %v", err)
	}
}

func TestInventoryServiceAdjustStockErrors(t *testing.T) {
	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: &stubInventoryRepo{
			adjustFn: func(_ context.Context, sizeID string, _ int, _ time.Time) (domain.ShoeSize, error) {
				if sizeID == "size_missing" {
					return domain.ShoeSize{}, notFoundRepoError{msg: "size"}
				}
				return domain.ShoeSize{}, conflictRepoError{msg: "would go negative"}
			},
		},
	})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	if _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{SizeID: "size_missing", Delta: -1}); !errors.Is(err, ErrInventorySizeNotFound) {
		t.Fatalf("expected ErrInventorySizeNotFound, got %v", err)
	}
	if _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{SizeID: "size_42", Delta: -99}); !errors.Is(err, ErrInventoryInsufficientStock) {
		t.Fatalf("expected ErrInventoryInsufficientStock, got %v", err)
	}
}
