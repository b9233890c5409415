package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v78"
	stripewebhook "github.com/stripe/stripe-go/v78/webhook"

	"github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/platform/httpx"
	"github.com/solestride/api/internal/services"
)

const maxWebhookBodySize = 128 * 1024

// WebhookHandlers receives carrier and PSP callbacks. Request authenticity
// for the carrier endpoint is enforced by the HMAC middleware on the
// webhooks route group; Stripe events carry their own signature.
type WebhookHandlers struct {
	orders              services.OrderService
	stripeSigningSecret string
	logger              func(ctx context.Context, event string, fields map[string]any)
	limiter             rateLimiter
}

// WebhookHandlersDeps wires dependencies for webhook processing.
// CarrierBurstPerMinute caps status callbacks per order code; zero disables
// the throttle.
type WebhookHandlersDeps struct {
	Orders                services.OrderService
	StripeSigningSecret   string
	Logger                func(ctx context.Context, event string, fields map[string]any)
	CarrierBurstPerMinute int
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(deps WebhookHandlersDeps) *WebhookHandlers {
	h := &WebhookHandlers{
		orders:              deps.Orders,
		stripeSigningSecret: deps.StripeSigningSecret,
		logger:              deps.Logger,
		limiter:             newWindowLimiter(deps.CarrierBurstPerMinute, time.Minute, nil),
	}
	if h.logger == nil {
		h.logger = func(context.Context, string, map[string]any) {}
	}
	return h
}

// Routes registers the webhook endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/ghn", h.carrierStatus)
	r.Post("/stripe", h.stripeEvent)
}

// ghnCallback mirrors the fields GHN posts on shipment status changes.
// ClientOrderCode carries our order code.
type ghnCallback struct {
	OrderCode       string `json:"OrderCode"`
	ClientOrderCode string `json:"ClientOrderCode"`
	Status          string `json:"Status"`
	Weight          int    `json:"Weight"`
	Fee             int64  `json:"Fee"`
	Description     string `json:"Description"`
}

// ghnStatusTargets maps carrier states to the lifecycle statuses the
// side-channel may drive. Unknown states are acknowledged and ignored so
// the carrier does not retry indefinitely.
var ghnStatusTargets = map[string]domain.OrderStatus{
	"ready_to_pick": domain.OrderStatusProcessing,
	"picking":       domain.OrderStatusProcessing,
	"picked":        domain.OrderStatusProcessing,
	"storing":       domain.OrderStatusShipped,
	"transporting":  domain.OrderStatusShipped,
	"sorting":       domain.OrderStatusShipped,
	"delivering":    domain.OrderStatusShipped,
	"delivered":     domain.OrderStatusDelivered,
}

func (h *WebhookHandlers) carrierStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var callback ghnCallback
	if err := json.Unmarshal(body, &callback); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	orderCode := strings.TrimSpace(callback.ClientOrderCode)
	if orderCode == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "client order code is required", http.StatusBadRequest))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(orderCode) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many callbacks for this order", http.StatusTooManyRequests))
		return
	}

	status := strings.ToLower(strings.TrimSpace(callback.Status))
	target, known := ghnStatusTargets[status]
	if !known {
		h.logger(ctx, "webhook.ghn.ignored", map[string]any{
			"order_code": orderCode,
			"status":     status,
		})
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, Applied: false})
		return
	}

	carrier := services.Principal{Carrier: true}
	order, err := h.orders.GetOrderByCode(ctx, orderCode, carrier)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if order.Status == target {
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, Applied: false})
		return
	}

	cmd := services.OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: target,
		Principal:    carrier,
		Reason:       strings.TrimSpace(callback.Description),
	}
	if trackingCode := strings.TrimSpace(callback.OrderCode); trackingCode != "" {
		cmd.Tracking = &domain.OrderShipment{
			Carrier:      "ghn",
			TrackingCode: trackingCode,
			WeightGrams:  callback.Weight,
			QuotedFee:    callback.Fee,
		}
	}

	if _, err := h.orders.TransitionStatus(ctx, cmd); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	h.logger(ctx, "webhook.ghn.applied", map[string]any{
		"order":  order.ID,
		"status": string(target),
	})
	writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, Applied: true})
}

func (h *WebhookHandlers) stripeEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.stripeSigningSecret == "" {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "stripe webhook is not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	event, err := stripewebhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.stripeSigningSecret)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "stripe signature verification failed", http.StatusBadRequest))
		return
	}

	switch event.Type {
	case "checkout.session.expired", "payment_intent.payment_failed":
		h.cancelUnpaidOrder(ctx, w, event)
	case "checkout.session.completed", "payment_intent.succeeded":
		h.applyPaymentSuccess(ctx, w, event)
	default:
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, Applied: false})
	}
}

// applyPaymentSuccess records the PSP capture on the order. Cancellations
// and approved returns consult the captured flag to decide whether a refund
// is owed.
func (h *WebhookHandlers) applyPaymentSuccess(ctx context.Context, w http.ResponseWriter, event stripe.Event) {
	orderID := stripeOrderID(event)
	if orderID == "" {
		h.logger(ctx, "webhook.stripe.missing_order", map[string]any{"event": event.ID})
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, Applied: false})
		return
	}

	capturedAt := time.Unix(event.Created, 0).UTC()
	if _, err := h.orders.MarkPaymentCaptured(ctx, orderID, capturedAt); err != nil {
		// Acknowledge so Stripe does not retry forever; the failure is in
		// the log for operators.
		h.logger(ctx, "webhook.stripe.capture_failed", map[string]any{
			"order": orderID,
			"event": event.ID,
			"error": err.Error(),
		})
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, Applied: false})
		return
	}

	h.logger(ctx, "webhook.stripe.payment_captured", map[string]any{
		"order": orderID,
		"event": event.ID,
	})
	writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, Applied: true})
}

// cancelUnpaidOrder voids the order behind a failed or expired card payment
// so its reserved stock is restored.
func (h *WebhookHandlers) cancelUnpaidOrder(ctx context.Context, w http.ResponseWriter, event stripe.Event) {
	orderID := stripeOrderID(event)
	if orderID == "" {
		h.logger(ctx, "webhook.stripe.missing_order", map[string]any{"event": event.ID})
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, Applied: false})
		return
	}

	expected := domain.OrderStatusPending
	_, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:        orderID,
		TargetStatus:   domain.OrderStatusCanceled,
		Principal:      services.Principal{System: true},
		Reason:         "payment " + string(event.Type),
		ExpectedStatus: &expected,
	})
	switch {
	case err == nil:
		h.logger(ctx, "webhook.stripe.order_canceled", map[string]any{"order": orderID, "event": event.ID})
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, Applied: true})
	default:
		// A conflict means the order already moved on; acknowledge so
		// Stripe stops retrying.
		h.logger(ctx, "webhook.stripe.cancel_skipped", map[string]any{
			"order": orderID,
			"event": event.ID,
			"error": err.Error(),
		})
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, Applied: false})
	}
}

func stripeOrderID(event stripe.Event) string {
	var payload struct {
		ID       string            `json:"id"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Metadata["orderId"])
}

type webhookAckResponse struct {
	Received bool `json:"received"`
	Applied  bool `json:"applied"`
}
