package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/platform/httpx"
	"github.com/solestride/api/internal/services"
)

func (h *AdminHandlers) orderRoutes(r chi.Router) {
	r.Get("/", h.listAllOrders)
	r.Get("/search", h.searchAllOrders)
	r.Get("/{orderID}", h.getOrderForStaff)
	r.Delete("/{orderID}", h.softDeleteOrder)
	r.Post("/{orderID}:transition", h.transitionOrder)
	r.Post("/{orderID}:handoff", h.handOffOrder)
	r.Post("/{orderID}/return:resolve", h.resolveReturn)
}

// staffPrincipal builds the acting principal for staff order operations.
func staffPrincipal(uid string) services.Principal {
	return services.Principal{UserID: uid, Staff: true}
}

func (h *AdminHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}

	filter, err := parseOrderListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	// Staff may scope the listing to one customer and opt into seeing
	// soft-deleted orders.
	if userID := strings.TrimSpace(r.URL.Query().Get("user_id")); userID != "" {
		filter.UserID = userID
	}
	filter.IncludeDeleted = strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("include_deleted")), "true")

	page, err := h.orders.ListOrders(ctx, filter, staffPrincipal(identity.UID))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *AdminHandlers) searchAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}

	prefix := strings.TrimSpace(r.URL.Query().Get("code"))
	if prefix == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code query parameter is required", http.StatusBadRequest))
		return
	}
	page, err := parsePageParams(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.orders.SearchOrders(ctx, prefix, page, staffPrincipal(identity.UID))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(result))
}

func (h *AdminHandlers) getOrderForStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, staffPrincipal(identity.UID))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) softDeleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if err := h.orders.DeleteOrder(ctx, orderID, staffPrincipal(identity.UID)); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type staffTransitionRequest struct {
	TargetStatus   string               `json:"target_status"`
	Reason         string               `json:"reason,omitempty"`
	ExpectedStatus string               `json:"expected_status,omitempty"`
	Tracking       *trackingRequestBody `json:"tracking,omitempty"`
}

type trackingRequestBody struct {
	Carrier      string `json:"carrier"`
	TrackingCode string `json:"tracking_code"`
	WeightGrams  int    `json:"weight_grams,omitempty"`
	QuotedFee    int64  `json:"quoted_fee,omitempty"`
}

func (h *AdminHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req staffTransitionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	target, ok := parseOrderStatus(req.TargetStatus)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown target status", http.StatusBadRequest))
		return
	}

	cmd := services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: target,
		Principal:    staffPrincipal(identity.UID),
		Reason:       strings.TrimSpace(req.Reason),
	}
	if raw := strings.TrimSpace(req.ExpectedStatus); raw != "" {
		expected, ok := parseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown expected status", http.StatusBadRequest))
			return
		}
		cmd.ExpectedStatus = &expected
	}
	if req.Tracking != nil {
		cmd.Tracking = &domain.OrderShipment{
			Carrier:      strings.TrimSpace(req.Tracking.Carrier),
			TrackingCode: strings.TrimSpace(req.Tracking.TrackingCode),
			WeightGrams:  req.Tracking.WeightGrams,
			QuotedFee:    req.Tracking.QuotedFee,
		}
	}

	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type handOffRequest struct {
	PreferredCarrier string `json:"preferred_carrier,omitempty"`
}

func (h *AdminHandlers) handOffOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req handOffRequest
	body, err := readLimitedBody(r, maxAdminBodySize)
	switch {
	case err == nil:
		if decodeErr := json.Unmarshal(body, &req); decodeErr != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
		// hand-off works without a body
	default:
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.HandOff(ctx, services.HandOffCommand{
		OrderID:          orderID,
		PreferredCarrier: strings.TrimSpace(req.PreferredCarrier),
		Principal:        staffPrincipal(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type resolveReturnRequest struct {
	Approve   bool   `json:"approve"`
	StaffNote string `json:"staff_note,omitempty"`
}

func (h *AdminHandlers) resolveReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req resolveReturnRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	order, err := h.orders.ResolveReturn(ctx, services.ResolveReturnCommand{
		OrderID:   orderID,
		Approve:   req.Approve,
		StaffNote: strings.TrimSpace(req.StaffNote),
		Principal: staffPrincipal(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}
