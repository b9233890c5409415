package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/solestride/api/internal/domain"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

// InventoryRepository mutates per-size stock quantities stored in the sizes
// collection also served by the catalog repository.
type InventoryRepository struct {
	provider *pfirestore.Provider
	sizes    *pfirestore.Collection[sizeDocument]
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	sizes := pfirestore.NewCollection[sizeDocument](provider, sizeCollection)
	return &InventoryRepository{provider: provider, sizes: sizes}, nil
}

// DecrementStock checks and decrements every line in one transaction. A line
// short on stock fails the whole call and nothing is written.
func (r *InventoryRepository) DecrementStock(ctx context.Context, lines []repositories.StockLine, now time.Time) error {
	return r.applyStockDelta(ctx, "inventory.decrement", lines, now, -1)
}

// RestoreStock adds the quantities back after cancellations and returns.
func (r *InventoryRepository) RestoreStock(ctx context.Context, lines []repositories.StockLine, now time.Time) error {
	return r.applyStockDelta(ctx, "inventory.restore", lines, now, +1)
}

// AdjustStock applies a staff-issued delta to one size. The resulting quantity
// never goes below zero.
func (r *InventoryRepository) AdjustStock(ctx context.Context, sizeID string, delta int, now time.Time) (domain.ShoeSize, error) {
	if r == nil || r.provider == nil {
		return domain.ShoeSize{}, errors.New("inventory repository not initialised")
	}
	id := strings.TrimSpace(sizeID)
	if id == "" {
		return domain.ShoeSize{}, errors.New("inventory adjust: size id is required")
	}

	var updated domain.ShoeSize
	apply := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.sizes.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorSizeNotFound, fmt.Sprintf("size %s not found", id), err)
			}
			return err
		}
		var doc sizeDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode size %s: %w", id, err)
		}
		next := doc.Quantity + delta
		if next < 0 {
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
				fmt.Sprintf("size %s has %d units, cannot adjust by %d", id, doc.Quantity, delta), nil)
		}
		doc.Quantity = next
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	}

	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = apply(ctx, tx)
	} else {
		err = r.provider.RunTransaction(ctx, apply)
	}
	if err != nil {
		return domain.ShoeSize{}, wrapInventoryError("inventory.adjust", err)
	}
	return updated, nil
}

func (r *InventoryRepository) applyStockDelta(ctx context.Context, op string, lines []repositories.StockLine, now time.Time, sign int) error {
	if r == nil || r.provider == nil {
		return errors.New("inventory repository not initialised")
	}
	merged, err := mergeStockLines(lines)
	if err != nil {
		return err
	}

	apply := func(ctx context.Context, tx *firestore.Transaction) error {
		type pending struct {
			ref *firestore.DocumentRef
			doc sizeDocument
		}

		// All reads happen before the first write so the call can share a
		// transaction with order inserts and updates.
		writes := make([]pending, 0, len(merged))
		for _, line := range merged {
			ref, err := r.sizes.DocumentRef(ctx, line.SizeID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewInventoryError(repositories.InventoryErrorSizeNotFound, fmt.Sprintf("size %s not found", line.SizeID), err)
				}
				return err
			}
			var doc sizeDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode size %s: %w", line.SizeID, err)
			}
			next := doc.Quantity + sign*line.Quantity
			if next < 0 {
				return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
					fmt.Sprintf("size %s has %d units, requested %d", line.SizeID, doc.Quantity, line.Quantity), nil)
			}
			doc.Quantity = next
			doc.UpdatedAt = now.UTC()
			writes = append(writes, pending{ref: ref, doc: doc})
		}
		for _, w := range writes {
			if err := tx.Set(w.ref, w.doc); err != nil {
				return err
			}
		}
		return nil
	}

	if tx, ok := txFromContext(ctx); ok {
		return wrapInventoryError(op, apply(ctx, tx))
	}
	return wrapInventoryError(op, r.provider.RunTransaction(ctx, apply))
}

// mergeStockLines validates the lines and sums duplicate size IDs so each
// document is read and written once per transaction.
func mergeStockLines(lines []repositories.StockLine) ([]repositories.StockLine, error) {
	if len(lines) == 0 {
		return nil, errors.New("inventory: at least one stock line is required")
	}
	index := make(map[string]int, len(lines))
	merged := make([]repositories.StockLine, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.SizeID)
		if id == "" {
			return nil, errors.New("inventory: size id is required")
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("inventory: quantity for %s must be positive", id)
		}
		if at, ok := index[id]; ok {
			merged[at].Quantity += line.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, repositories.StockLine{SizeID: id, Quantity: line.Quantity})
	}
	return merged, nil
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)
