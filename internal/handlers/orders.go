package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/platform/auth"
	"github.com/solestride/api/internal/platform/httpx"
	"github.com/solestride/api/internal/services"
)

const maxOrderBodySize = 32 * 1024

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:    {},
	domain.OrderStatusProcessing: {},
	domain.OrderStatusShipped:    {},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusConfirmed:  {},
	domain.OrderStatusCanceled:   {},
	domain.OrderStatusReturned:   {},
}

// OrderHandlers exposes the customer order surface: creation from the cart
// snapshot, queries, confirmation, cancellation and the return request.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/search", h.searchOrders)
	r.Get("/code/{orderCode}", h.getOrderByCode)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:confirm", h.confirmOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}/return", h.requestReturn)
}

func (h *OrderHandlers) principal(identity *auth.Identity) services.Principal {
	return services.Principal{
		UserID: strings.TrimSpace(identity.UID),
		Staff:  identity.IsStaff(),
	}
}

type createOrderRequest struct {
	AddressID     *string                 `json:"address_id,omitempty"`
	Destination   *destinationRequestBody `json:"destination,omitempty"`
	PaymentMethod string                  `json:"payment_method"`
	Note          string                  `json:"note,omitempty"`
}

type destinationRequestBody struct {
	Recipient    string  `json:"recipient"`
	Phone        string  `json:"phone"`
	Line1        string  `json:"line1"`
	Line2        *string `json:"line2,omitempty"`
	WardCode     string  `json:"ward_code"`
	DistrictCode string  `json:"district_code"`
	ProvinceCode string  `json:"province_code"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod)))
	if method != domain.PaymentMethodCOD && method != domain.PaymentMethodCard {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment_method must be cod or card", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		UserID:        strings.TrimSpace(identity.UID),
		PaymentMethod: method,
		Note:          strings.TrimSpace(req.Note),
		Principal:     h.principal(identity),
	}
	if req.AddressID != nil {
		if trimmed := strings.TrimSpace(*req.AddressID); trimmed != "" {
			cmd.AddressID = &trimmed
		}
	}
	if req.Destination != nil {
		cmd.Destination = &services.Destination{
			Recipient:    strings.TrimSpace(req.Destination.Recipient),
			Phone:        strings.TrimSpace(req.Destination.Phone),
			Line1:        strings.TrimSpace(req.Destination.Line1),
			Line2:        cloneStringPointer(req.Destination.Line2),
			WardCode:     strings.TrimSpace(req.Destination.WardCode),
			DistrictCode: strings.TrimSpace(req.Destination.DistrictCode),
			ProvinceCode: strings.TrimSpace(req.Destination.ProvinceCode),
		}
	}

	creation, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	response := orderCreationResponse{Order: buildOrderPayload(creation.Order)}
	if creation.Checkout != nil {
		response.Checkout = &checkoutSessionPayload{
			SessionID:    creation.Checkout.SessionID,
			PSP:          creation.Checkout.PSP,
			ClientSecret: creation.Checkout.ClientSecret,
			RedirectURL:  creation.Checkout.RedirectURL,
			ExpiresAt:    formatTime(creation.Checkout.ExpiresAt),
		}
	}
	writeJSONResponse(w, http.StatusCreated, response)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	filter, err := parseOrderListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, filter, h.principal(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *OrderHandlers) searchOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	prefix := strings.TrimSpace(r.URL.Query().Get("code_prefix"))
	if prefix == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code_prefix is required", http.StatusBadRequest))
		return
	}

	pageReq, err := parsePageParams(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.SearchOrders(ctx, prefix, pageReq, h.principal(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, h.principal(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrderByCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "orderCode"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order code is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrderByCode(ctx, code, h.principal(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) confirmOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.OrderStatusConfirmed)
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.OrderStatusCanceled)
}

type orderTransitionRequest struct {
	Reason         string `json:"reason,omitempty"`
	ExpectedStatus string `json:"expected_status,omitempty"`
}

func (h *OrderHandlers) transition(w http.ResponseWriter, r *http.Request, target domain.OrderStatus) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req orderTransitionRequest
	body, err := readLimitedBody(r, maxOrderBodySize)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(body, &req); jsonErr != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
		// transition requests may omit the body entirely
	default:
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: target,
		Principal:    h.principal(identity),
		Reason:       strings.TrimSpace(req.Reason),
	}
	if raw := strings.TrimSpace(req.ExpectedStatus); raw != "" {
		expected, ok := parseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_status must be a valid order status", http.StatusBadRequest))
			return
		}
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type requestReturnBody struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req requestReturnBody
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.RequestReturn(ctx, services.RequestReturnCommand{
		OrderID:   orderID,
		Reason:    strings.TrimSpace(req.Reason),
		Principal: h.principal(identity),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func parseOrderListFilter(r *http.Request) (services.OrderListFilter, error) {
	var filter services.OrderListFilter
	query := r.URL.Query()

	for _, raw := range parseFilterValues(query["status"]) {
		status, ok := parseOrderStatus(raw)
		if !ok {
			return filter, errors.New("status filter contains an unknown order status")
		}
		filter.Status = append(filter.Status, status)
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return filter, errors.New("created_after must be a valid RFC3339 timestamp")
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return filter, errors.New("created_before must be a valid RFC3339 timestamp")
		}
		filter.DateRange.To = &ts
	}

	page, err := parsePageParams(r)
	if err != nil {
		return filter, err
	}
	filter.Page = page
	return filter, nil
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := validOrderStatuses[status]; !ok {
		return "", false
	}
	return status, true
}

type orderListResponse struct {
	Items []orderSummaryPayload `json:"items"`
	Meta  pageMeta              `json:"meta"`
}

type orderSummaryPayload struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Status    string `json:"status"`
	Currency  string `json:"currency"`
	Total     int64  `json:"total"`
	ItemCount int    `json:"item_count"`
	CreatedAt string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderCreationResponse struct {
	Order    orderPayload            `json:"order"`
	Checkout *checkoutSessionPayload `json:"checkout,omitempty"`
}

type checkoutSessionPayload struct {
	SessionID    string `json:"session_id"`
	PSP          string `json:"psp"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

type orderPayload struct {
	ID            string                `json:"id"`
	Code          string                `json:"code"`
	UserID        string                `json:"user_id"`
	Status        string                `json:"status"`
	StatusTimes   orderStatusTimesData  `json:"status_times"`
	Currency      string                `json:"currency"`
	Totals        orderTotalsPayload    `json:"totals"`
	Items         []orderItemPayload    `json:"items"`
	Destination   destinationPayload    `json:"destination"`
	PaymentMethod string                `json:"payment_method"`
	Payment       *orderPaymentPayload  `json:"payment,omitempty"`
	Shipment      *orderShipmentPayload `json:"shipment,omitempty"`
	Return        *orderReturnPayload   `json:"return,omitempty"`
	Note          string                `json:"note,omitempty"`
	CancelReason  *string               `json:"cancel_reason,omitempty"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at,omitempty"`
}

type orderStatusTimesData struct {
	PendingAt    string `json:"pending_at,omitempty"`
	ProcessingAt string `json:"processing_at,omitempty"`
	ShippedAt    string `json:"shipped_at,omitempty"`
	DeliveredAt  string `json:"delivered_at,omitempty"`
	ConfirmedAt  string `json:"confirmed_at,omitempty"`
	CanceledAt   string `json:"canceled_at,omitempty"`
	ReturnedAt   string `json:"returned_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal    int64 `json:"subtotal"`
	ShippingFee int64 `json:"shipping_fee"`
	Total       int64 `json:"total"`
}

type orderItemPayload struct {
	ShoeID           string `json:"shoe_id"`
	ClassificationID string `json:"classification_id"`
	SizeID           string `json:"size_id"`
	Name             string `json:"name"`
	Color            string `json:"color,omitempty"`
	EUSize           int    `json:"eu_size"`
	UnitPrice        int64  `json:"unit_price"`
	Quantity         int    `json:"quantity"`
	Total            int64  `json:"total"`
}

type destinationPayload struct {
	Recipient    string  `json:"recipient"`
	Phone        string  `json:"phone"`
	Line1        string  `json:"line1"`
	Line2        *string `json:"line2,omitempty"`
	WardCode     string  `json:"ward_code"`
	DistrictCode string  `json:"district_code"`
	ProvinceCode string  `json:"province_code"`
}

type orderPaymentPayload struct {
	Provider   string `json:"provider"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Captured   bool   `json:"captured"`
	CapturedAt string `json:"captured_at,omitempty"`
	RefundedAt string `json:"refunded_at,omitempty"`
}

type orderShipmentPayload struct {
	Carrier      string `json:"carrier"`
	TrackingCode string `json:"tracking_code,omitempty"`
	WeightGrams  int    `json:"weight_grams,omitempty"`
	QuotedFee    int64  `json:"quoted_fee"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type orderReturnPayload struct {
	Reason      string  `json:"reason"`
	Status      string  `json:"status"`
	StaffNote   *string `json:"staff_note,omitempty"`
	RequestedAt string  `json:"requested_at"`
	ResolvedAt  string  `json:"resolved_at,omitempty"`
	RefundedAt  string  `json:"refunded_at,omitempty"`
}

func buildOrderListResponse(page domain.Page[domain.Order]) orderListResponse {
	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	return orderListResponse{
		Items: items,
		Meta:  buildPageMeta(page),
	}
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:        order.ID,
		Code:      order.Code,
		Status:    string(order.Status),
		Currency:  strings.ToUpper(order.Currency),
		Total:     order.Totals.Total,
		ItemCount: len(order.Items),
		CreatedAt: formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:     order.ID,
		Code:   order.Code,
		UserID: order.UserID,
		Status: string(order.Status),
		StatusTimes: orderStatusTimesData{
			PendingAt:    formatTime(pointerTime(order.StatusTimes.PendingAt)),
			ProcessingAt: formatTime(pointerTime(order.StatusTimes.ProcessingAt)),
			ShippedAt:    formatTime(pointerTime(order.StatusTimes.ShippedAt)),
			DeliveredAt:  formatTime(pointerTime(order.StatusTimes.DeliveredAt)),
			ConfirmedAt:  formatTime(pointerTime(order.StatusTimes.ConfirmedAt)),
			CanceledAt:   formatTime(pointerTime(order.StatusTimes.CanceledAt)),
			ReturnedAt:   formatTime(pointerTime(order.StatusTimes.ReturnedAt)),
		},
		Currency: strings.ToUpper(order.Currency),
		Totals: orderTotalsPayload{
			Subtotal:    order.Totals.Subtotal,
			ShippingFee: order.Totals.ShippingFee,
			Total:       order.Totals.Total,
		},
		Items: make([]orderItemPayload, 0, len(order.Items)),
		Destination: destinationPayload{
			Recipient:    order.Destination.Recipient,
			Phone:        order.Destination.Phone,
			Line1:        order.Destination.Line1,
			Line2:        cloneStringPointer(order.Destination.Line2),
			WardCode:     order.Destination.WardCode,
			DistrictCode: order.Destination.DistrictCode,
			ProvinceCode: order.Destination.ProvinceCode,
		},
		PaymentMethod: string(order.PaymentMethod),
		Note:          order.Note,
		CancelReason:  cloneStringPointer(order.CancelReason),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ShoeID:           item.ShoeID,
			ClassificationID: item.ClassificationID,
			SizeID:           item.SizeID,
			Name:             item.Name,
			Color:            item.Color,
			EUSize:           item.EUSize,
			UnitPrice:        item.UnitPrice,
			Quantity:         item.Quantity,
			Total:            item.Total,
		})
	}

	if order.Payment != nil {
		payload.Payment = &orderPaymentPayload{
			Provider:   order.Payment.Provider,
			Status:     order.Payment.Status,
			Amount:     order.Payment.Amount,
			Currency:   strings.ToUpper(order.Payment.Currency),
			Captured:   order.Payment.Captured,
			CapturedAt: formatTime(pointerTime(order.Payment.CapturedAt)),
			RefundedAt: formatTime(pointerTime(order.Payment.RefundedAt)),
		}
	}

	if order.Shipment != nil {
		payload.Shipment = &orderShipmentPayload{
			Carrier:      order.Shipment.Carrier,
			TrackingCode: order.Shipment.TrackingCode,
			WeightGrams:  order.Shipment.WeightGrams,
			QuotedFee:    order.Shipment.QuotedFee,
			CreatedAt:    formatTime(order.Shipment.CreatedAt),
		}
	}

	if order.Return != nil {
		payload.Return = &orderReturnPayload{
			Reason:      order.Return.Reason,
			Status:      string(order.Return.Status),
			StaffNote:   cloneStringPointer(order.Return.StaffNote),
			RequestedAt: formatTime(order.Return.RequestedAt),
			ResolvedAt:  formatTime(pointerTime(order.Return.ResolvedAt)),
			RefundedAt:  formatTime(pointerTime(order.Return.RefundedAt)),
		}
	}

	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", "operation not permitted on this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderShippingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "carrier is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrOrderPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment provider rejected the request", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
