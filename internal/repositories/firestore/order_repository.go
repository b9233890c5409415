package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/solestride/api/internal/domain"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order documents. Insert, Update and FindByID join
// the ambient transaction when one is present so stock movements and status
// flips commit atomically with the order write.
type OrderRepository struct {
	base     *pfirestore.Collection[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewCollection[orderDocument](provider, orderCollection)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document, failing on duplicate IDs.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := fromDomainOrder(order)
	if tx, ok := txFromContext(ctx); ok {
		return pfirestore.WrapError("orders.insert", tx.Create(ref, doc))
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := fromDomainOrder(order)
	if tx, ok := txFromContext(ctx); ok {
		return pfirestore.WrapError("orders.update", tx.Set(ref, doc))
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID loads the order by document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	if tx, ok := txFromContext(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Order{}, pfirestore.WrapError("orders.get", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
		}
		return doc.toDomain(id), nil
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByCode loads the order by its public code.
func (r *OrderRepository) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return domain.Order{}, errors.New("order repository: order code is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByCode", notFoundf("order with code %s not found", trimmed))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	query := coll.Query
	if !filter.IncludeDeleted {
		query = query.Where("deleted", "==", false)
	}
	if uid := strings.TrimSpace(filter.UserID); uid != "" {
		query = query.Where("userId", "==", uid)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)

	return r.queryPage(ctx, query, filter.Page, "orders.list")
}

// SearchByCodePrefix matches order codes beginning with the prefix, optionally
// scoped to one user.
func (r *OrderRepository) SearchByCodePrefix(ctx context.Context, prefix string, userID string, page domain.PageRequest) (domain.Page[domain.Order], error) {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return domain.Page[domain.Order]{}, errors.New("order repository: code prefix is required")
	}
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	query := coll.Query.
		Where("deleted", "==", false).
		Where("code", ">=", trimmed).
		Where("code", "<", trimmed+keywordUpperBound)
	if uid := strings.TrimSpace(userID); uid != "" {
		query = query.Where("userId", "==", uid)
	}
	query = query.OrderBy("code", firestore.Asc)

	return r.queryPage(ctx, query, page, "orders.searchByCode")
}

// SoftDelete flips the liveness flag without touching status or history.
func (r *OrderRepository) SoftDelete(ctx context.Context, orderID string, deletedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	stamp := deletedAt.UTC()
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	if _, err := ref.Update(ctx, []firestore.Update{
		{Path: "deleted", Value: true},
		{Path: "deletedAt", Value: stamp},
		{Path: "updatedAt", Value: stamp},
	}); err != nil {
		return pfirestore.WrapError("orders.softDelete", err)
	}
	return nil
}

// ListInFlight returns orders in the given statuses, oldest update first, for
// carrier reconciliation.
func (r *OrderRepository) ListInFlight(ctx context.Context, statuses []domain.OrderStatus, limit int) ([]domain.Order, error) {
	if len(statuses) == 0 {
		return nil, errors.New("order repository: at least one status is required")
	}
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	if limit <= 0 {
		limit = 100
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "in", values).
			OrderBy("updatedAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

// CountConfirmedBetween counts orders confirmed in [start, end].
func (r *OrderRepository) CountConfirmedBetween(ctx context.Context, start, end time.Time) (int64, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return 0, err
	}
	query := coll.Query.
		Where("statusTimes.confirmedAt", ">=", start.UTC()).
		Where("statusTimes.confirmedAt", "<=", end.UTC())
	return countDocuments(ctx, query, "orders.countConfirmed")
}

func (r *OrderRepository) queryPage(ctx context.Context, query firestore.Query, page domain.PageRequest, op string) (domain.Page[domain.Order], error) {
	total, err := countDocuments(ctx, query, op)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	req := normalizePageRequest(page)
	query = query.Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize)

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return domain.Page[domain.Order]{}, pfirestore.WrapError(op, err)
	}
	orders := make([]domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}
	return newPage(orders, req, total), nil
}

func (r *OrderRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(orderCollection), nil
}

// Documents ------------------------------------------------------------------

type orderDocument struct {
	Code          string              `firestore:"code"`
	UserID        string              `firestore:"userId"`
	Status        string              `firestore:"status"`
	StatusTimes   orderStatusTimesDoc `firestore:"statusTimes"`
	Currency      string              `firestore:"currency"`
	Totals        orderTotalsDoc      `firestore:"totals"`
	Items         []orderItemDoc      `firestore:"items"`
	Destination   orderDestinationDoc `firestore:"destination"`
	PaymentMethod string              `firestore:"paymentMethod"`
	Payment       *orderPaymentDoc    `firestore:"payment,omitempty"`
	Shipment      *orderShipmentDoc   `firestore:"shipment,omitempty"`
	Return        *orderReturnDoc     `firestore:"return,omitempty"`
	Note          string              `firestore:"note,omitempty"`
	CancelReason  *string             `firestore:"cancelReason,omitempty"`
	Audit         orderAuditDoc       `firestore:"audit"`
	Deleted       bool                `firestore:"deleted"`
	DeletedAt     *time.Time          `firestore:"deletedAt,omitempty"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
}

type orderStatusTimesDoc struct {
	PendingAt    *time.Time `firestore:"pendingAt,omitempty"`
	ProcessingAt *time.Time `firestore:"processingAt,omitempty"`
	ShippedAt    *time.Time `firestore:"shippedAt,omitempty"`
	DeliveredAt  *time.Time `firestore:"deliveredAt,omitempty"`
	ConfirmedAt  *time.Time `firestore:"confirmedAt,omitempty"`
	CanceledAt   *time.Time `firestore:"canceledAt,omitempty"`
	ReturnedAt   *time.Time `firestore:"returnedAt,omitempty"`
}

type orderTotalsDoc struct {
	Subtotal    int64 `firestore:"subtotal"`
	ShippingFee int64 `firestore:"shippingFee"`
	Total       int64 `firestore:"total"`
}

type orderItemDoc struct {
	ShoeID           string `firestore:"shoeId"`
	ClassificationID string `firestore:"classificationId"`
	SizeID           string `firestore:"sizeId"`
	Name             string `firestore:"name"`
	Color            string `firestore:"color"`
	EUSize           int    `firestore:"euSize"`
	ThumbnailKey     string `firestore:"thumbnailKey,omitempty"`
	UnitPrice        int64  `firestore:"unitPrice"`
	Quantity         int    `firestore:"quantity"`
	Total            int64  `firestore:"total"`
}

type orderDestinationDoc struct {
	Recipient    string  `firestore:"recipient"`
	Phone        string  `firestore:"phone"`
	Line1        string  `firestore:"line1"`
	Line2        *string `firestore:"line2,omitempty"`
	WardCode     string  `firestore:"wardCode"`
	DistrictCode string  `firestore:"districtCode"`
	ProvinceCode string  `firestore:"provinceCode"`
}

type orderPaymentDoc struct {
	Provider   string     `firestore:"provider"`
	IntentID   string     `firestore:"intentId"`
	Status     string     `firestore:"status"`
	Amount     int64      `firestore:"amount"`
	Currency   string     `firestore:"currency"`
	Captured   bool       `firestore:"captured"`
	CapturedAt *time.Time `firestore:"capturedAt,omitempty"`
	RefundedAt *time.Time `firestore:"refundedAt,omitempty"`
}

type orderShipmentDoc struct {
	Carrier      string    `firestore:"carrier"`
	TrackingCode string    `firestore:"trackingCode"`
	WeightGrams  int       `firestore:"weightGrams"`
	QuotedFee    int64     `firestore:"quotedFee"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

type orderReturnDoc struct {
	Reason      string     `firestore:"reason"`
	Status      string     `firestore:"status"`
	StaffNote   *string    `firestore:"staffNote,omitempty"`
	RequestedAt time.Time  `firestore:"requestedAt"`
	ResolvedAt  *time.Time `firestore:"resolvedAt,omitempty"`
	RefundedAt  *time.Time `firestore:"refundedAt,omitempty"`
	ResolvedBy  *string    `firestore:"resolvedBy,omitempty"`
}

type orderAuditDoc struct {
	CreatedBy *string `firestore:"createdBy,omitempty"`
	UpdatedBy *string `firestore:"updatedBy,omitempty"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDoc, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDoc(item))
	}

	doc := orderDocument{
		Code:   strings.TrimSpace(order.Code),
		UserID: strings.TrimSpace(order.UserID),
		Status: string(order.Status),
		StatusTimes: orderStatusTimesDoc{
			PendingAt:    cloneOptionalTime(order.StatusTimes.PendingAt),
			ProcessingAt: cloneOptionalTime(order.StatusTimes.ProcessingAt),
			ShippedAt:    cloneOptionalTime(order.StatusTimes.ShippedAt),
			DeliveredAt:  cloneOptionalTime(order.StatusTimes.DeliveredAt),
			ConfirmedAt:  cloneOptionalTime(order.StatusTimes.ConfirmedAt),
			CanceledAt:   cloneOptionalTime(order.StatusTimes.CanceledAt),
			ReturnedAt:   cloneOptionalTime(order.StatusTimes.ReturnedAt),
		},
		Currency:      strings.ToUpper(strings.TrimSpace(order.Currency)),
		Totals:        orderTotalsDoc(order.Totals),
		Items:         items,
		Destination:   orderDestinationDoc(order.Destination),
		PaymentMethod: string(order.PaymentMethod),
		Note:          strings.TrimSpace(order.Note),
		CancelReason:  cloneOptionalString(order.CancelReason),
		Audit: orderAuditDoc{
			CreatedBy: cloneOptionalString(order.Audit.CreatedBy),
			UpdatedBy: cloneOptionalString(order.Audit.UpdatedBy),
		},
		Deleted:   order.Deleted,
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}

	if order.Payment != nil {
		payment := orderPaymentDoc{
			Provider:   order.Payment.Provider,
			IntentID:   order.Payment.IntentID,
			Status:     order.Payment.Status,
			Amount:     order.Payment.Amount,
			Currency:   order.Payment.Currency,
			Captured:   order.Payment.Captured,
			CapturedAt: cloneOptionalTime(order.Payment.CapturedAt),
			RefundedAt: cloneOptionalTime(order.Payment.RefundedAt),
		}
		doc.Payment = &payment
	}
	if order.Shipment != nil {
		shipment := orderShipmentDoc{
			Carrier:      order.Shipment.Carrier,
			TrackingCode: order.Shipment.TrackingCode,
			WeightGrams:  order.Shipment.WeightGrams,
			QuotedFee:    order.Shipment.QuotedFee,
			CreatedAt:    order.Shipment.CreatedAt.UTC(),
		}
		doc.Shipment = &shipment
	}
	if order.Return != nil {
		ret := orderReturnDoc{
			Reason:      order.Return.Reason,
			Status:      string(order.Return.Status),
			StaffNote:   cloneOptionalString(order.Return.StaffNote),
			RequestedAt: order.Return.RequestedAt.UTC(),
			ResolvedAt:  cloneOptionalTime(order.Return.ResolvedAt),
			RefundedAt:  cloneOptionalTime(order.Return.RefundedAt),
			ResolvedBy:  cloneOptionalString(order.Return.ResolvedBy),
		}
		doc.Return = &ret
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem(item))
	}

	order := domain.Order{
		ID:     id,
		Code:   d.Code,
		UserID: d.UserID,
		Status: domain.OrderStatus(d.Status),
		StatusTimes: domain.OrderStatusTimes{
			PendingAt:    cloneOptionalTime(d.StatusTimes.PendingAt),
			ProcessingAt: cloneOptionalTime(d.StatusTimes.ProcessingAt),
			ShippedAt:    cloneOptionalTime(d.StatusTimes.ShippedAt),
			DeliveredAt:  cloneOptionalTime(d.StatusTimes.DeliveredAt),
			ConfirmedAt:  cloneOptionalTime(d.StatusTimes.ConfirmedAt),
			CanceledAt:   cloneOptionalTime(d.StatusTimes.CanceledAt),
			ReturnedAt:   cloneOptionalTime(d.StatusTimes.ReturnedAt),
		},
		Currency:      d.Currency,
		Totals:        domain.OrderTotals(d.Totals),
		Items:         items,
		Destination:   domain.Destination(d.Destination),
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		Note:          d.Note,
		CancelReason:  cloneOptionalString(d.CancelReason),
		Audit: domain.OrderAudit{
			CreatedBy: cloneOptionalString(d.Audit.CreatedBy),
			UpdatedBy: cloneOptionalString(d.Audit.UpdatedBy),
		},
		Deleted:   d.Deleted,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}

	if d.Payment != nil {
		payment := domain.Payment{
			Provider:   d.Payment.Provider,
			IntentID:   d.Payment.IntentID,
			Status:     d.Payment.Status,
			Amount:     d.Payment.Amount,
			Currency:   d.Payment.Currency,
			Captured:   d.Payment.Captured,
			CapturedAt: cloneOptionalTime(d.Payment.CapturedAt),
			RefundedAt: cloneOptionalTime(d.Payment.RefundedAt),
		}
		order.Payment = &payment
	}
	if d.Shipment != nil {
		shipment := domain.OrderShipment{
			Carrier:      d.Shipment.Carrier,
			TrackingCode: d.Shipment.TrackingCode,
			WeightGrams:  d.Shipment.WeightGrams,
			QuotedFee:    d.Shipment.QuotedFee,
			CreatedAt:    d.Shipment.CreatedAt,
		}
		order.Shipment = &shipment
	}
	if d.Return != nil {
		ret := domain.ReturnRecord{
			Reason:      d.Return.Reason,
			Status:      domain.ReturnStatus(d.Return.Status),
			StaffNote:   cloneOptionalString(d.Return.StaffNote),
			RequestedAt: d.Return.RequestedAt,
			ResolvedAt:  cloneOptionalTime(d.Return.ResolvedAt),
			RefundedAt:  cloneOptionalTime(d.Return.RefundedAt),
			ResolvedBy:  cloneOptionalString(d.Return.ResolvedBy),
		}
		order.Return = &ret
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
