package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	ghnQuotePath    = "/v2/shipping-order/fee"
	ghnCreatePath   = "/v2/shipping-order/create"
	ghnDetailPath   = "/v2/shipping-order/detail"
	ghnDefaultLimit = 1 << 20 // response body cap
)

// GHNConfig captures the connection settings for the GHN REST API.
type GHNConfig struct {
	BaseURL    string
	Token      string
	ShopID     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GHNProvider adapts the GHN shipping API to the Provider contract.
type GHNProvider struct {
	baseURL string
	token   string
	shopID  string
	client  *http.Client
}

// NewGHNProvider validates the configuration and returns a ready provider.
func NewGHNProvider(cfg GHNConfig) (*GHNProvider, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("shipping: ghn base url is required")
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("shipping: ghn token is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &GHNProvider{
		baseURL: base,
		token:   token,
		shopID:  strings.TrimSpace(cfg.ShopID),
		client:  client,
	}, nil
}

type ghnEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type ghnFeeRequest struct {
	ToWardCode     string `json:"to_ward_code"`
	ToDistrictCode string `json:"to_district_id"`
	Weight         int    `json:"weight"`
	InsuranceValue int64  `json:"insurance_value"`
}

type ghnFeeResponse struct {
	Total        int64 `json:"total"`
	ExpectedDays *int  `json:"leadtime_days"`
}

type ghnCreateRequest struct {
	ClientOrderCode string           `json:"client_order_code"`
	ToName          string           `json:"to_name"`
	ToPhone         string           `json:"to_phone"`
	ToAddress       string           `json:"to_address"`
	ToWardCode      string           `json:"to_ward_code"`
	ToDistrictCode  string           `json:"to_district_id"`
	Weight          int              `json:"weight"`
	CODAmount       int64            `json:"cod_amount"`
	Items           []ghnRequestItem `json:"items"`
}

type ghnRequestItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type ghnCreateResponse struct {
	OrderCode            string `json:"order_code"`
	TotalFee             int64  `json:"total_fee"`
	ExpectedDeliveryTime string `json:"expected_delivery_time"`
}

type ghnDetailRequest struct {
	OrderCode string `json:"order_code"`
}

type ghnDetailResponse struct {
	OrderCode string `json:"order_code"`
	Status    string `json:"status"`
	Log       []struct {
		Status    string    `json:"status"`
		UpdatedAt time.Time `json:"updated_date"`
	} `json:"log"`
}

// ghnStateMapping folds GHN's fine-grained statuses into the normalised set.
var ghnStateMapping = map[string]State{
	"ready_to_pick": StateReadyToPick,
	"picking":       StateReadyToPick,
	"picked":        StateInTransit,
	"storing":       StateInTransit,
	"transporting":  StateInTransit,
	"sorting":       StateInTransit,
	"delivering":    StateInTransit,
	"money_collect": StateInTransit,
	"delivered":     StateDelivered,
	"return":        StateReturned,
	"returning":     StateReturned,
	"returned":      StateReturned,
	"cancel":        StateCanceled,
	"cancelled":     StateCanceled,
}

// Quote prices a delivery to the given destination.
func (p *GHNProvider) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if req.WeightGrams <= 0 {
		return Quote{}, fmt.Errorf("%w: weight must be positive", ErrInvalidDestination)
	}
	if strings.TrimSpace(req.Destination.DistrictCode) == "" || strings.TrimSpace(req.Destination.WardCode) == "" {
		return Quote{}, fmt.Errorf("%w: district and ward codes are required", ErrInvalidDestination)
	}

	payload := ghnFeeRequest{
		ToWardCode:     req.Destination.WardCode,
		ToDistrictCode: req.Destination.DistrictCode,
		Weight:         req.WeightGrams,
		InsuranceValue: req.DeclaredValue,
	}

	var data ghnFeeResponse
	if err := p.post(ctx, ghnQuotePath, payload, &data); err != nil {
		return Quote{}, err
	}

	return Quote{
		Fee:           data.Total,
		Currency:      req.Currency,
		EstimatedDays: data.ExpectedDays,
	}, nil
}

// CreateShipment registers a delivery and returns the carrier tracking code.
func (p *GHNProvider) CreateShipment(ctx context.Context, req ShipmentRequest) (Shipment, error) {
	if strings.TrimSpace(req.OrderCode) == "" {
		return Shipment{}, fmt.Errorf("%w: order code is required", ErrInvalidDestination)
	}

	items := make([]ghnRequestItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ghnRequestItem{Name: item.Name, Quantity: item.Quantity})
	}

	address := req.Destination.Line1
	if req.Destination.Line2 != "" {
		address += ", " + req.Destination.Line2
	}

	payload := ghnCreateRequest{
		ClientOrderCode: req.OrderCode,
		ToName:          req.Destination.Recipient,
		ToPhone:         req.Destination.Phone,
		ToAddress:       address,
		ToWardCode:      req.Destination.WardCode,
		ToDistrictCode:  req.Destination.DistrictCode,
		Weight:          req.WeightGrams,
		CODAmount:       req.CODAmount,
		Items:           items,
	}

	var data ghnCreateResponse
	if err := p.post(ctx, ghnCreatePath, payload, &data); err != nil {
		return Shipment{}, err
	}

	shipment := Shipment{
		TrackingCode: data.OrderCode,
		Fee:          data.TotalFee,
	}
	if data.ExpectedDeliveryTime != "" {
		if ts, err := time.Parse(time.RFC3339, data.ExpectedDeliveryTime); err == nil {
			shipment.ExpectedDelivery = &ts
		}
	}
	return shipment, nil
}

// TrackingStatus returns the latest normalised state for a tracking code.
func (p *GHNProvider) TrackingStatus(ctx context.Context, req TrackRequest) (TrackEvent, error) {
	code := strings.TrimSpace(req.TrackingCode)
	if code == "" {
		return TrackEvent{}, fmt.Errorf("%w: tracking code is required", ErrShipmentNotFound)
	}

	var data ghnDetailResponse
	if err := p.post(ctx, ghnDetailPath, ghnDetailRequest{OrderCode: code}, &data); err != nil {
		return TrackEvent{}, err
	}

	event := TrackEvent{
		TrackingCode: data.OrderCode,
		State:        normalizeGHNState(data.Status),
		Description:  data.Status,
		OccurredAt:   time.Now().UTC(),
	}
	if n := len(data.Log); n > 0 {
		last := data.Log[n-1]
		event.OccurredAt = last.UpdatedAt
		if event.State == StateUnknown {
			event.State = normalizeGHNState(last.Status)
		}
	}
	return event, nil
}

func (p *GHNProvider) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("shipping: encode ghn request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("shipping: build ghn request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", p.token)
	if p.shopID != "" {
		req.Header.Set("ShopId", p.shopID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCarrierUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, ghnDefaultLimit))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrCarrierUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: ghn responded %d", ErrCarrierUnavailable, resp.StatusCode)
	}

	var envelope ghnEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrCarrierUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || envelope.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrShipmentNotFound, envelope.Message)
	case resp.StatusCode >= http.StatusBadRequest || envelope.Code >= http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidDestination, envelope.Message)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("%w: decode payload: %v", ErrCarrierUnavailable, err)
		}
	}
	return nil
}

func normalizeGHNState(status string) State {
	if state, ok := ghnStateMapping[strings.ToLower(strings.TrimSpace(status))]; ok {
		return state
	}
	return StateUnknown
}
