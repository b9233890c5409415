package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solestride/api/internal/repositories"
)

const eventInventoryAdjusted = "inventory.adjusted"

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryInsufficientStock indicates the adjustment would drive stock negative.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventorySizeNotFound indicates the size could not be located.
	ErrInventorySizeNotFound = errors.New("inventory: size not found")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Audit     AuditLogService
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	audit  AuditLogService
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:  deps.Inventory,
		audit: deps.Audit,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// AdjustStock applies a signed delta to one size's on-hand quantity. The
// repository rejects adjustments that would drive the count negative.
func (s *inventoryService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (ShoeSize, error) {
	sizeID := strings.TrimSpace(cmd.SizeID)
	if sizeID == "" {
		return ShoeSize{}, fmt.Errorf("%w: size id is required", ErrInventoryInvalidInput)
	}
	if cmd.Delta == 0 {
		return ShoeSize{}, fmt.Errorf("%w: delta must be non-zero", ErrInventoryInvalidInput)
	}

	now := s.clock()
	size, err := s.repo.AdjustStock(ctx, sizeID, cmd.Delta, now)
	if err != nil {
		return ShoeSize{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventInventoryAdjusted, map[string]any{
		"size":      size.ID,
		"delta":     cmd.Delta,
		"remaining": size.Quantity,
	})
	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:      strings.TrimSpace(cmd.ActorID),
			ActorType:  "staff",
			Action:     eventInventoryAdjusted,
			TargetRef:  "sizes/" + size.ID,
			OccurredAt: now,
			Metadata:   map[string]any{"delta": cmd.Delta, "remaining": size.Quantity},
		})
	}

	return size, nil
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInventorySizeNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrInventoryInsufficientStock, err)
		}
	}
	return err
}
