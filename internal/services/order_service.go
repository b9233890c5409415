package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/payments"
	"github.com/solestride/api/internal/repositories"
	"github.com/solestride/api/internal/shipping"
)

const (
	orderEventCreated        = "order.created"
	orderEventStatusChanged  = "order.status.changed"
	orderEventReturnReq      = "order.return.requested"
	orderEventReturnResolved = "order.return.resolved"

	orderIDPrefix = "ord_"
	saleIDPrefix  = "sale_"

	orderCounterID = "orders"

	// defaultPairWeightGrams feeds carrier quotes when no per-shoe weight is
	// known.
	defaultPairWeightGrams = 800
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the principal may not act on the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderShippingUnavailable indicates the carrier could not be reached.
	ErrOrderShippingUnavailable = errors.New("order: shipping unavailable")
	// ErrOrderPaymentFailed indicates the PSP session or refund failed.
	ErrOrderPaymentFailed = errors.New("order: payment failed")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCanceled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCanceled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  {domain.OrderStatusConfirmed, domain.OrderStatusReturned},
	domain.OrderStatusConfirmed:  {domain.OrderStatusReturned},
}

// externallySettable lists the statuses customer and staff principals may
// request through the API.
var externallySettable = []domain.OrderStatus{
	domain.OrderStatusConfirmed,
	domain.OrderStatusCanceled,
	domain.OrderStatusReturned,
}

// carrierSettable lists the statuses the shipping side-channel drives.
var carrierSettable = []domain.OrderStatus{
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusDelivered,
}

// orderStatusCatalog is the fixed vocabulary in display order.
var orderStatusCatalog = []OrderStatusInfo{
	{Status: domain.OrderStatusPending, Label: "Pending", Terminal: false, External: false},
	{Status: domain.OrderStatusProcessing, Label: "Processing", Terminal: false, External: false},
	{Status: domain.OrderStatusShipped, Label: "Shipped", Terminal: false, External: false},
	{Status: domain.OrderStatusDelivered, Label: "Delivered", Terminal: false, External: false},
	{Status: domain.OrderStatusConfirmed, Label: "Confirmed", Terminal: false, External: true},
	{Status: domain.OrderStatusCanceled, Label: "Canceled", Terminal: true, External: true},
	{Status: domain.OrderStatusReturned, Label: "Returned", Terminal: true, External: true},
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderCode      string
	UserID         string
	PreviousStatus domain.OrderStatus
	CurrentStatus  domain.OrderStatus
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// orderCarrierGateway abstracts shipping.Manager for easier testing.
type orderCarrierGateway interface {
	Quote(ctx context.Context, carrierCtx shipping.CarrierContext, req shipping.QuoteRequest) (shipping.Quote, error)
	CreateShipment(ctx context.Context, carrierCtx shipping.CarrierContext, req shipping.ShipmentRequest) (shipping.Shipment, error)
	TrackingStatus(ctx context.Context, carrierCtx shipping.CarrierContext, req shipping.TrackRequest) (shipping.TrackEvent, error)
}

// orderPaymentManager abstracts payments.Manager for easier testing.
type orderPaymentManager interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Sales           repositories.SaleRepository
	Carts           repositories.CartRepository
	Catalog         repositories.CatalogRepository
	Inventory       repositories.InventoryRepository
	Addresses       repositories.AddressRepository
	Counters        repositories.CounterRepository
	UnitOfWork      repositories.UnitOfWork
	Shipping        orderCarrierGateway
	Payments        orderPaymentManager
	Clock           func() time.Time
	IDGenerator     func() string
	Events          OrderEventPublisher
	Logger          func(ctx context.Context, event string, fields map[string]any)
	PairWeightGrams int
}

type orderService struct {
	orders     repositories.OrderRepository
	sales      repositories.SaleRepository
	carts      repositories.CartRepository
	catalog    repositories.CatalogRepository
	inventory  repositories.InventoryRepository
	addresses  repositories.AddressRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	shipping   orderCarrierGateway
	payments   orderPaymentManager
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
	pairWeight int
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Sales == nil {
		return nil, errors.New("order service: sale repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("order service: shipping gateway is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	pairWeight := deps.PairWeightGrams
	if pairWeight <= 0 {
		pairWeight = defaultPairWeightGrams
	}

	return &orderService{
		orders:     deps.Orders,
		sales:      deps.Sales,
		carts:      deps.Carts,
		catalog:    deps.Catalog,
		inventory:  deps.Inventory,
		addresses:  deps.Addresses,
		counters:   deps.Counters,
		unitOfWork: unit,
		shipping:   deps.Shipping,
		payments:   deps.Payments,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:      idGen,
		events:     deps.Events,
		logger:     logger,
		pairWeight: pairWeight,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderCreation, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return OrderCreation{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCOD:
	case domain.PaymentMethodCard:
		if s.payments == nil {
			return OrderCreation{}, fmt.Errorf("%w: card payments are not configured", ErrOrderInvalidInput)
		}
	default:
		return OrderCreation{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return OrderCreation{}, s.mapRepositoryError(err)
	}
	if len(cart.Items) == 0 {
		return OrderCreation{}, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
	}

	destination, err := s.resolveDestination(ctx, cmd)
	if err != nil {
		return OrderCreation{}, err
	}

	items, currency, err := s.snapshotItems(ctx, cart.Items)
	if err != nil {
		return OrderCreation{}, err
	}

	var subtotal int64
	var units int
	for _, item := range items {
		subtotal += item.Total
		units += item.Quantity
	}

	quote, err := s.shipping.Quote(ctx, shipping.CarrierContext{}, shipping.QuoteRequest{
		Destination:   carrierDestination(destination),
		WeightGrams:   units * s.pairWeight,
		DeclaredValue: subtotal,
		Currency:      currency,
	})
	if err != nil {
		return OrderCreation{}, s.mapShippingError(err)
	}

	now := s.now()
	code, err := s.generateOrderCode(ctx, now)
	if err != nil {
		return OrderCreation{}, s.mapRepositoryError(err)
	}

	order := Order{
		ID:            s.nextOrderID(),
		Code:          code,
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		StatusTimes:   OrderStatusTimes{PendingAt: &now},
		Currency:      currency,
		Totals:        OrderTotals{Subtotal: subtotal, ShippingFee: quote.Fee, Total: subtotal + quote.Fee},
		Items:         items,
		Destination:   destination,
		PaymentMethod: cmd.PaymentMethod,
		Note:          strings.TrimSpace(cmd.Note),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if actor := strings.TrimSpace(cmd.Principal.ActorID()); actor != "" {
		order.Audit.CreatedBy = valuePtr(actor)
		order.Audit.UpdatedBy = valuePtr(actor)
	}

	lines := stockLines(order.Items)
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.inventory.DecrementStock(txCtx, lines, now); err != nil {
			return s.mapStockError(err)
		}
		if err := s.orders.Insert(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}
		if _, err := s.carts.ReplaceItems(txCtx, userID, nil); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return OrderCreation{}, err
	}

	creation := OrderCreation{Order: order}
	if cmd.PaymentMethod == domain.PaymentMethodCard {
		session, err := s.createCheckoutSession(ctx, &order)
		if err != nil {
			// The order stays pending; payment can be retried from the
			// order detail surface.
			s.logger(ctx, "order.payment.session.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		} else {
			creation.Order = order
			creation.Checkout = &session
		}
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       orderEventCreated,
		OrderID:    order.ID,
		OrderCode:  order.Code,
		UserID:     order.UserID,
		ActorID:    cmd.Principal.ActorID(),
		OccurredAt: now,
		Metadata: map[string]any{
			"paymentMethod": string(order.PaymentMethod),
			"total":         order.Totals.Total,
		},
	})

	return creation, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, principal Principal) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderRead(order, principal); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) GetOrderByCode(ctx context.Context, code string, principal Principal) (Order, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Order{}, fmt.Errorf("%w: order code is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderRead(order, principal); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter, principal Principal) (domain.Page[Order], error) {
	if !principal.Staff && !principal.System {
		filter.UserID = principal.UserID
		filter.IncludeDeleted = false
		if filter.UserID == "" {
			return domain.Page[Order]{}, fmt.Errorf("%w: user scope is required", ErrOrderForbidden)
		}
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, orderID string, principal Principal) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !principal.Staff && !principal.System {
		return fmt.Errorf("%w: only staff may delete orders", ErrOrderForbidden)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	// Re-deleting is a no-op; the flag is already set.
	if order.Deleted {
		return nil
	}
	if err := s.orders.SoftDelete(ctx, orderID, s.now()); err != nil {
		return s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.deleted", map[string]any{
		"order": orderID,
		"actor": principal.ActorID(),
	})
	return nil
}

func (s *orderService) SearchOrders(ctx context.Context, codePrefix string, page PageRequest, principal Principal) (domain.Page[Order], error) {
	codePrefix = strings.TrimSpace(codePrefix)
	if codePrefix == "" {
		return domain.Page[Order]{}, fmt.Errorf("%w: search prefix is required", ErrOrderInvalidInput)
	}

	scope := ""
	if !principal.Staff && !principal.System {
		scope = principal.UserID
		if scope == "" {
			return domain.Page[Order]{}, fmt.Errorf("%w: user scope is required", ErrOrderForbidden)
		}
	}

	result, err := s.orders.SearchByCodePrefix(ctx, codePrefix, scope, page)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return result, nil
}

func (s *orderService) ListStatuses(ctx context.Context) []OrderStatusInfo {
	infos := make([]OrderStatusInfo, len(orderStatusCatalog))
	copy(infos, orderStatusCatalog)
	return infos
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if !isKnownStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}
	if err := authorizeTransitionChannel(target, cmd.Principal); err != nil {
		return Order{}, err
	}

	now := s.now()
	actor := cmd.Principal.ActorID()
	var (
		order      Order
		prevStatus domain.OrderStatus
		replayed   bool
	)

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := authorizeOrderWrite(current, cmd.Principal); err != nil {
			return err
		}
		if cmd.ExpectedStatus != nil && current.Status != *cmd.ExpectedStatus {
			return fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *cmd.ExpectedStatus, current.Status)
		}

		prevStatus = current.Status

		// Redelivered carrier callbacks replay the current status; that is
		// a no-op success and timestamps stay untouched.
		if current.Status == target {
			order = current
			replayed = true
			return nil
		}

		if !canTransition(current.Status, target) {
			return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current.Status, target)
		}

		applyStatusTransition(&current, target, actor, now)

		switch target {
		case domain.OrderStatusCanceled:
			if reason := strings.TrimSpace(cmd.Reason); reason != "" {
				current.CancelReason = &reason
			}
			if err := s.inventory.RestoreStock(txCtx, stockLines(current.Items), now); err != nil {
				return s.mapStockError(err)
			}
		case domain.OrderStatusShipped:
			if cmd.Tracking != nil {
				tracking := *cmd.Tracking
				if tracking.CreatedAt.IsZero() {
					tracking.CreatedAt = now
				}
				current.Shipment = &tracking
			}
		case domain.OrderStatusConfirmed:
			// Statistics are written in the same transaction as the status
			// flip; the CAS above makes double-counting impossible.
			if err := s.sales.InsertAll(txCtx, s.buildSaleRecords(current, now)); err != nil {
				return s.mapRepositoryError(err)
			}
		}

		if err := s.orders.Update(txCtx, domain.Order(current)); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if replayed {
		return order, nil
	}

	if target == domain.OrderStatusCanceled {
		s.refundIfCaptured(ctx, &order, "order canceled")
	}

	metadata := map[string]any{}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		metadata["reason"] = reason
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderCode:      order.Code,
		UserID:         order.UserID,
		PreviousStatus: prevStatus,
		CurrentStatus:  order.Status,
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       metadata,
	})

	return order, nil
}

func (s *orderService) HandOff(ctx context.Context, cmd HandOffCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Principal.Staff && !cmd.Principal.System {
		return Order{}, fmt.Errorf("%w: only staff may hand orders to the carrier", ErrOrderForbidden)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Status != domain.OrderStatusPending {
		return Order{}, fmt.Errorf("%w: only pending orders can be handed off, was %q", ErrOrderInvalidState, order.Status)
	}

	codAmount := int64(0)
	if order.PaymentMethod == domain.PaymentMethodCOD {
		codAmount = order.Totals.Total
	}

	items := make([]shipping.ShipmentItem, 0, len(order.Items))
	units := 0
	for _, item := range order.Items {
		items = append(items, shipping.ShipmentItem{Name: item.Name, Quantity: item.Quantity})
		units += item.Quantity
	}

	carrierCtx := shipping.CarrierContext{PreferredCarrier: cmd.PreferredCarrier}
	registered, err := s.shipping.CreateShipment(ctx, carrierCtx, shipping.ShipmentRequest{
		OrderCode:   order.Code,
		Destination: carrierDestination(order.Destination),
		WeightGrams: units * s.pairWeight,
		CODAmount:   codAmount,
		Currency:    order.Currency,
		Items:       items,
	})
	if err != nil {
		return Order{}, s.mapShippingError(err)
	}

	// Carrier acceptance is the side-channel authority for the processing
	// transition.
	return s.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusProcessing,
		Principal:    Principal{Carrier: true},
		Tracking: &OrderShipment{
			Carrier:      registered.Carrier,
			TrackingCode: registered.TrackingCode,
			WeightGrams:  units * s.pairWeight,
			QuotedFee:    registered.Fee,
		},
	})
}

func (s *orderService) RequestReturn(ctx context.Context, cmd RequestReturnCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Order{}, fmt.Errorf("%w: return reason is required", ErrOrderInvalidInput)
	}

	now := s.now()
	var order Order

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := authorizeOrderWrite(current, cmd.Principal); err != nil {
			return err
		}
		if current.Status != domain.OrderStatusDelivered && current.Status != domain.OrderStatusConfirmed {
			return fmt.Errorf("%w: returns are only accepted from delivered or confirmed orders, was %q", ErrOrderInvalidState, current.Status)
		}
		if current.Return != nil {
			return fmt.Errorf("%w: a return request already exists", ErrOrderConflict)
		}

		current.Return = &ReturnRecord{
			Reason:      reason,
			Status:      domain.ReturnStatusRequested,
			RequestedAt: now,
		}
		current.UpdatedAt = now
		if actor := cmd.Principal.ActorID(); actor != "" {
			current.Audit.UpdatedBy = valuePtr(actor)
		}

		if err := s.orders.Update(txCtx, domain.Order(current)); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       orderEventReturnReq,
		OrderID:    order.ID,
		OrderCode:  order.Code,
		UserID:     order.UserID,
		ActorID:    cmd.Principal.ActorID(),
		OccurredAt: now,
		Metadata:   map[string]any{"reason": reason},
	})

	return order, nil
}

func (s *orderService) ResolveReturn(ctx context.Context, cmd ResolveReturnCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Principal.Staff && !cmd.Principal.System {
		return Order{}, fmt.Errorf("%w: only staff may resolve returns", ErrOrderForbidden)
	}

	now := s.now()
	actor := cmd.Principal.ActorID()
	var (
		order      Order
		prevStatus domain.OrderStatus
	)

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if current.Return == nil {
			return fmt.Errorf("%w: no return request on order", ErrOrderInvalidState)
		}
		if current.Return.Status != domain.ReturnStatusRequested {
			return fmt.Errorf("%w: return already resolved as %q", ErrOrderConflict, current.Return.Status)
		}

		prevStatus = current.Status
		record := *current.Return
		record.ResolvedAt = &now
		record.ResolvedBy = valuePtr(actor)
		if note := strings.TrimSpace(cmd.StaffNote); note != "" {
			record.StaffNote = &note
		}

		if cmd.Approve {
			record.Status = domain.ReturnStatusApproved
			current.Return = &record
			applyStatusTransition(&current, domain.OrderStatusReturned, actor, now)
		} else {
			// Rejection leaves the order status untouched.
			record.Status = domain.ReturnStatusRejected
			current.Return = &record
			current.UpdatedAt = now
			current.Audit.UpdatedBy = valuePtr(actor)
		}

		if err := s.orders.Update(txCtx, domain.Order(current)); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if cmd.Approve {
		s.settleReturnRefund(ctx, &order, now)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventReturnResolved,
		OrderID:        order.ID,
		OrderCode:      order.Code,
		UserID:         order.UserID,
		PreviousStatus: prevStatus,
		CurrentStatus:  order.Status,
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       map[string]any{"approved": cmd.Approve},
	})

	return order, nil
}

func (s *orderService) MarkPaymentCaptured(ctx context.Context, orderID string, capturedAt time.Time) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if capturedAt.IsZero() {
		capturedAt = s.now()
	} else {
		capturedAt = capturedAt.UTC()
	}

	var (
		order    Order
		replayed bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if current.Payment == nil {
			return fmt.Errorf("%w: order has no payment session", ErrOrderInvalidState)
		}
		// PSPs redeliver success events; a capture that is already on the
		// order replays as a no-op.
		if current.Payment.Captured {
			order = current
			replayed = true
			return nil
		}

		payment := *current.Payment
		payment.Status = string(payments.StatusSucceeded)
		payment.Captured = true
		payment.CapturedAt = &capturedAt
		current.Payment = &payment
		current.UpdatedAt = s.now()

		if err := s.orders.Update(txCtx, domain.Order(current)); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if !replayed {
		s.logger(ctx, "order.payment.captured", map[string]any{
			"order":    order.ID,
			"provider": order.Payment.Provider,
		})
	}
	return order, nil
}

func (s *orderService) ReconcileInFlight(ctx context.Context, limit int) (ReconcileReport, error) {
	if limit <= 0 {
		limit = 50
	}

	orders, err := s.orders.ListInFlight(ctx, carrierSettable, limit)
	if err != nil {
		return ReconcileReport{}, s.mapRepositoryError(err)
	}

	report := ReconcileReport{Scanned: len(orders)}
	for _, order := range orders {
		if order.Shipment == nil || order.Shipment.TrackingCode == "" {
			continue
		}
		carrierCtx := shipping.CarrierContext{PreferredCarrier: order.Shipment.Carrier}
		event, err := s.shipping.TrackingStatus(ctx, carrierCtx, shipping.TrackRequest{
			TrackingCode: order.Shipment.TrackingCode,
		})
		if err != nil {
			report.Failures++
			s.logger(ctx, "order.reconcile.tracking.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
			continue
		}

		target, ok := carrierStateTarget(event.State)
		if !ok || target == order.Status {
			continue
		}

		if _, err := s.TransitionStatus(ctx, OrderStatusTransitionCommand{
			OrderID:      order.ID,
			TargetStatus: target,
			Principal:    Principal{Carrier: true},
		}); err != nil {
			report.Failures++
			s.logger(ctx, "order.reconcile.transition.failed", map[string]any{
				"order":  order.ID,
				"target": string(target),
				"error":  err.Error(),
			})
			continue
		}
		report.Transitions++
	}

	return report, nil
}

// Helpers --------------------------------------------------------------------

func (s *orderService) resolveDestination(ctx context.Context, cmd CreateOrderCommand) (Destination, error) {
	if cmd.Destination != nil {
		dest := *cmd.Destination
		if strings.TrimSpace(dest.Recipient) == "" || strings.TrimSpace(dest.Phone) == "" || strings.TrimSpace(dest.Line1) == "" {
			return Destination{}, fmt.Errorf("%w: destination recipient, phone and address are required", ErrOrderInvalidInput)
		}
		return dest, nil
	}
	if s.addresses == nil {
		return Destination{}, fmt.Errorf("%w: a destination is required", ErrOrderInvalidInput)
	}

	var (
		addr domain.Address
		err  error
	)
	if cmd.AddressID != nil && strings.TrimSpace(*cmd.AddressID) != "" {
		addr, err = s.addresses.Get(ctx, cmd.UserID, strings.TrimSpace(*cmd.AddressID))
	} else {
		addr, err = s.addresses.FindDefault(ctx, cmd.UserID)
	}
	if err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrOrderNotFound) {
			return Destination{}, fmt.Errorf("%w: no shipping address available", ErrOrderInvalidInput)
		}
		return Destination{}, mapped
	}

	return Destination{
		Recipient:    addr.Recipient,
		Phone:        addr.Phone,
		Line1:        addr.Line1,
		Line2:        addr.Line2,
		WardCode:     addr.WardCode,
		DistrictCode: addr.DistrictCode,
		ProvinceCode: addr.ProvinceCode,
	}, nil
}

func (s *orderService) snapshotItems(ctx context.Context, cartItems []CartItem) ([]OrderItem, string, error) {
	items := make([]OrderItem, 0, len(cartItems))
	currency := ""

	for _, item := range cartItems {
		if item.Quantity <= 0 {
			return nil, "", fmt.Errorf("%w: item quantity must be positive", ErrOrderInvalidInput)
		}
		classification, err := s.catalog.GetClassification(ctx, item.ClassificationID)
		if err != nil {
			return nil, "", s.mapRepositoryError(err)
		}
		if classification.Deleted {
			return nil, "", fmt.Errorf("%w: classification %s is no longer sold", ErrOrderConflict, classification.ID)
		}
		shoe, err := s.catalog.GetShoe(ctx, classification.ShoeID)
		if err != nil {
			return nil, "", s.mapRepositoryError(err)
		}
		size, err := s.catalog.GetSize(ctx, item.SizeID)
		if err != nil {
			return nil, "", s.mapRepositoryError(err)
		}
		if size.ClassificationID != classification.ID {
			return nil, "", fmt.Errorf("%w: size %s does not belong to classification %s", ErrOrderInvalidInput, size.ID, classification.ID)
		}

		if currency == "" {
			currency = classification.Currency
		} else if currency != classification.Currency {
			return nil, "", fmt.Errorf("%w: mixed currencies in cart", ErrOrderInvalidInput)
		}

		items = append(items, OrderItem{
			ShoeID:           shoe.ID,
			ClassificationID: classification.ID,
			SizeID:           size.ID,
			Name:             shoe.Name,
			Color:            classification.Color,
			EUSize:           size.EUSize,
			ThumbnailKey:     classification.ThumbnailKey,
			UnitPrice:        classification.UnitPrice,
			Quantity:         item.Quantity,
			Total:            classification.UnitPrice * int64(item.Quantity),
		})
	}
	return items, currency, nil
}

func (s *orderService) createCheckoutSession(ctx context.Context, order *Order) (CheckoutSession, error) {
	lineItems := make([]payments.CheckoutLineItem, 0, len(order.Items)+1)
	for _, item := range order.Items {
		lineItems = append(lineItems, payments.CheckoutLineItem{
			Name:     fmt.Sprintf("%s (%s, EU %d)", item.Name, item.Color, item.EUSize),
			SKU:      item.SizeID,
			Quantity: int64(item.Quantity),
			Amount:   item.UnitPrice,
			Currency: order.Currency,
		})
	}
	if order.Totals.ShippingFee > 0 {
		lineItems = append(lineItems, payments.CheckoutLineItem{
			Name:     "Shipping",
			Quantity: 1,
			Amount:   order.Totals.ShippingFee,
			Currency: order.Currency,
		})
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{Currency: order.Currency}, payments.CheckoutSessionRequest{
		Amount:         order.Totals.Total,
		Currency:       order.Currency,
		CustomerID:     order.UserID,
		IdempotencyKey: order.ID,
		Metadata:       map[string]string{"orderId": order.ID, "orderCode": order.Code},
		Items:          lineItems,
	})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrOrderPaymentFailed, err)
	}

	order.Payment = &Payment{
		Provider: session.Provider,
		IntentID: session.IntentID,
		Status:   string(payments.StatusPending),
		Amount:   order.Totals.Total,
		Currency: order.Currency,
	}
	if err := s.orders.Update(ctx, domain.Order(*order)); err != nil {
		return CheckoutSession{}, s.mapRepositoryError(err)
	}

	return CheckoutSession{
		SessionID:    session.ID,
		PSP:          session.Provider,
		ClientSecret: session.ClientSecret,
		RedirectURL:  session.RedirectURL,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

func (s *orderService) refundIfCaptured(ctx context.Context, order *Order, reason string) {
	if s.payments == nil || order.Payment == nil || !order.Payment.Captured || order.Payment.RefundedAt != nil {
		return
	}
	details, err := s.payments.Refund(ctx, payments.PaymentContext{
		PreferredProvider: order.Payment.Provider,
		Currency:          order.Payment.Currency,
	}, payments.RefundRequest{
		IntentID:       order.Payment.IntentID,
		Reason:         reason,
		IdempotencyKey: order.ID + ":refund",
	})
	if err != nil {
		s.logger(ctx, "order.payment.refund.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return
	}
	order.Payment.Status = string(details.Status)
	order.Payment.RefundedAt = details.RefundedAt
	if err := s.orders.Update(ctx, domain.Order(*order)); err != nil {
		s.logger(ctx, "order.payment.refund.persist.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

// settleReturnRefund closes an approved return. COD refunds are settled at
// the counter so the record flips immediately; card refunds go through the
// PSP first and stay approved until it succeeds.
func (s *orderService) settleReturnRefund(ctx context.Context, order *Order, now time.Time) {
	if order.Return == nil || order.Return.Status != domain.ReturnStatusApproved {
		return
	}

	if order.PaymentMethod == domain.PaymentMethodCard && order.Payment != nil && order.Payment.Captured {
		s.refundIfCaptured(ctx, order, "return approved")
		if order.Payment.RefundedAt == nil {
			return
		}
	}

	record := *order.Return
	record.Status = domain.ReturnStatusRefunded
	record.RefundedAt = &now
	order.Return = &record
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, domain.Order(*order)); err != nil {
		s.logger(ctx, "order.return.refund.persist.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) buildSaleRecords(order Order, soldAt time.Time) []domain.SaleRecord {
	records := make([]domain.SaleRecord, 0, len(order.Items))
	for _, item := range order.Items {
		records = append(records, domain.SaleRecord{
			ID:        saleIDPrefix + s.newID(),
			OrderID:   order.ID,
			ShoeID:    item.ShoeID,
			ShoeName:  item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Revenue:   item.Total,
			SoldAt:    soldAt,
		})
	}
	return records
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) mapStockError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return fmt.Errorf("%w: insufficient stock: %v", ErrOrderConflict, err)
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapShippingError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shipping.ErrInvalidDestination):
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	case errors.Is(err, shipping.ErrCarrierUnavailable), errors.Is(err, shipping.ErrUnsupportedCarrier):
		return fmt.Errorf("%w: %v", ErrOrderShippingUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrOrderShippingUnavailable, err)
	}
}

func (s *orderService) generateOrderCode(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderCounterID, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SS-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": string(event.CurrentStatus),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// applyStatusTransition flips the status and stamps the matching timestamp.
// Item, destination and amount snapshots are never touched here; status
// progression only writes Status, StatusTimes and the audit fields.
func applyStatusTransition(order *Order, target domain.OrderStatus, actor string, now time.Time) {
	order.Status = target
	order.UpdatedAt = now
	stampStatusTime(&order.StatusTimes, target, now)
	if actor != "" {
		order.Audit.UpdatedBy = valuePtr(actor)
	}
}

// stampStatusTime writes the timestamp for a reached status if it is still
// unset. Each field is written at most once.
func stampStatusTime(times *OrderStatusTimes, status domain.OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusPending:
		if times.PendingAt == nil {
			times.PendingAt = &now
		}
	case domain.OrderStatusProcessing:
		if times.ProcessingAt == nil {
			times.ProcessingAt = &now
		}
	case domain.OrderStatusShipped:
		if times.ShippedAt == nil {
			times.ShippedAt = &now
		}
	case domain.OrderStatusDelivered:
		if times.DeliveredAt == nil {
			times.DeliveredAt = &now
		}
	case domain.OrderStatusConfirmed:
		if times.ConfirmedAt == nil {
			times.ConfirmedAt = &now
		}
	case domain.OrderStatusCanceled:
		if times.CanceledAt == nil {
			times.CanceledAt = &now
		}
	case domain.OrderStatusReturned:
		if times.ReturnedAt == nil {
			times.ReturnedAt = &now
		}
	}
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func isKnownStatus(status domain.OrderStatus) bool {
	for _, info := range orderStatusCatalog {
		if info.Status == status {
			return true
		}
	}
	return false
}

// authorizeTransitionChannel enforces the channel split: API principals may
// only request the confirm/cancel/return statuses, the carrier side-channel
// only the fulfilment advance.
func authorizeTransitionChannel(target domain.OrderStatus, principal Principal) error {
	switch {
	case principal.System:
		return nil
	case principal.Carrier:
		if !slices.Contains(carrierSettable, target) {
			return fmt.Errorf("%w: carrier channel cannot set status %q", ErrOrderForbidden, target)
		}
		return nil
	default:
		if !slices.Contains(externallySettable, target) {
			return fmt.Errorf("%w: status %q cannot be set through the API", ErrOrderForbidden, target)
		}
		return nil
	}
}

func authorizeOrderRead(order domain.Order, principal Principal) error {
	if principal.Staff || principal.System || principal.Carrier {
		return nil
	}
	if principal.UserID != "" && principal.UserID == order.UserID {
		return nil
	}
	// Report not-found so foreign order IDs are indistinguishable from
	// missing ones.
	return fmt.Errorf("%w: order", ErrOrderNotFound)
}

func authorizeOrderWrite(order domain.Order, principal Principal) error {
	if principal.Staff || principal.System || principal.Carrier {
		return nil
	}
	if principal.UserID != "" && principal.UserID == order.UserID {
		return nil
	}
	return fmt.Errorf("%w: order", ErrOrderNotFound)
}

func carrierStateTarget(state shipping.State) (domain.OrderStatus, bool) {
	switch state {
	case shipping.StateReadyToPick:
		return domain.OrderStatusProcessing, true
	case shipping.StateInTransit:
		return domain.OrderStatusShipped, true
	case shipping.StateDelivered:
		return domain.OrderStatusDelivered, true
	default:
		return "", false
	}
}

func carrierDestination(dest Destination) shipping.Destination {
	line2 := ""
	if dest.Line2 != nil {
		line2 = *dest.Line2
	}
	return shipping.Destination{
		Recipient:    dest.Recipient,
		Phone:        dest.Phone,
		Line1:        dest.Line1,
		Line2:        line2,
		WardCode:     dest.WardCode,
		DistrictCode: dest.DistrictCode,
		ProvinceCode: dest.ProvinceCode,
	}
}

func stockLines(items []OrderItem) []repositories.StockLine {
	lines := make([]repositories.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, repositories.StockLine{SizeID: item.SizeID, Quantity: item.Quantity})
	}
	return lines
}

func valuePtr[T any](v T) *T {
	return &v
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}
