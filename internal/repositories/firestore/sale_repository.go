package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/solestride/api/internal/domain"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

const saleCollection = "sales"

// SaleRepository stores the append-only fact rows confirmed orders produce.
type SaleRepository struct {
	base     *pfirestore.Collection[saleDocument]
	provider *pfirestore.Provider
}

// NewSaleRepository constructs a Firestore-backed sale repository.
func NewSaleRepository(provider *pfirestore.Provider) (*SaleRepository, error) {
	if provider == nil {
		return nil, errors.New("sale repository requires firestore provider")
	}
	base := pfirestore.NewCollection[saleDocument](provider, saleCollection)
	return &SaleRepository{base: base, provider: provider}, nil
}

// InsertAll appends one record per confirmed order item. Inside an ambient
// transaction all rows commit together with the order status flip.
func (r *SaleRepository) InsertAll(ctx context.Context, records []domain.SaleRecord) error {
	if r == nil || r.base == nil || r.provider == nil {
		return errors.New("sale repository not initialised")
	}
	if len(records) == 0 {
		return nil
	}

	type pending struct {
		ref *firestore.DocumentRef
		doc saleDocument
	}
	writes := make([]pending, 0, len(records))
	for _, record := range records {
		id := strings.TrimSpace(record.ID)
		if id == "" {
			return errors.New("sale repository: record id is required")
		}
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		writes = append(writes, pending{ref: ref, doc: fromDomainSale(record)})
	}

	if tx, ok := txFromContext(ctx); ok {
		for _, w := range writes {
			if err := tx.Create(w.ref, w.doc); err != nil {
				return pfirestore.WrapError("sales.insertAll", err)
			}
		}
		return nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	bulk := client.BulkWriter(ctx)
	for _, w := range writes {
		if _, err := bulk.Create(w.ref, w.doc); err != nil {
			return pfirestore.WrapError("sales.insertAll", err)
		}
	}
	bulk.End()
	return nil
}

// ListBetween returns records with SoldAt in [start, end], oldest first.
func (r *SaleRepository) ListBetween(ctx context.Context, start, end time.Time) ([]domain.SaleRecord, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("sale repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("soldAt", ">=", start.UTC()).
			Where("soldAt", "<=", end.UTC()).
			OrderBy("soldAt", firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	records := make([]domain.SaleRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.Data.toDomain(doc.ID))
	}
	return records, nil
}

type saleDocument struct {
	OrderID   string    `firestore:"orderId"`
	ShoeID    string    `firestore:"shoeId"`
	ShoeName  string    `firestore:"shoeName"`
	Quantity  int       `firestore:"quantity"`
	UnitPrice int64     `firestore:"unitPrice"`
	Revenue   int64     `firestore:"revenue"`
	SoldAt    time.Time `firestore:"soldAt"`
}

func fromDomainSale(record domain.SaleRecord) saleDocument {
	return saleDocument{
		OrderID:   strings.TrimSpace(record.OrderID),
		ShoeID:    strings.TrimSpace(record.ShoeID),
		ShoeName:  strings.TrimSpace(record.ShoeName),
		Quantity:  record.Quantity,
		UnitPrice: record.UnitPrice,
		Revenue:   record.Revenue,
		SoldAt:    record.SoldAt.UTC(),
	}
}

func (d saleDocument) toDomain(id string) domain.SaleRecord {
	return domain.SaleRecord{
		ID:        id,
		OrderID:   d.OrderID,
		ShoeID:    d.ShoeID,
		ShoeName:  d.ShoeName,
		Quantity:  d.Quantity,
		UnitPrice: d.UnitPrice,
		Revenue:   d.Revenue,
		SoldAt:    d.SoldAt,
	}
}

var _ repositories.SaleRepository = (*SaleRepository)(nil)
