package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// State enumerates the normalised shipment states shared across carriers.
type State string

const (
	// StateReadyToPick indicates the carrier accepted the order and awaits pickup.
	StateReadyToPick State = "ready_to_pick"
	// StateInTransit indicates the parcel is moving through the carrier network.
	StateInTransit State = "in_transit"
	// StateDelivered indicates the carrier reports successful delivery.
	StateDelivered State = "delivered"
	// StateReturned indicates the parcel is on its way back to the shop.
	StateReturned State = "returned"
	// StateCanceled indicates the carrier order was voided.
	StateCanceled State = "canceled"
	// StateUnknown covers carrier statuses with no normalised mapping.
	StateUnknown State = "unknown"
)

var (
	// ErrUnsupportedCarrier is returned when the manager cannot locate a carrier.
	ErrUnsupportedCarrier = errors.New("shipping: unsupported carrier")
	// ErrCarrierUnavailable indicates the carrier API could not be reached or
	// answered with a server error.
	ErrCarrierUnavailable = errors.New("shipping: carrier unavailable")
	// ErrInvalidDestination indicates the carrier rejected the destination.
	ErrInvalidDestination = errors.New("shipping: invalid destination")
	// ErrShipmentNotFound indicates the carrier has no record of the tracking code.
	ErrShipmentNotFound = errors.New("shipping: shipment not found")
)

// Destination carries the address fields carriers quote against.
type Destination struct {
	Recipient    string
	Phone        string
	Line1        string
	Line2        string
	WardCode     string
	DistrictCode string
	ProvinceCode string
}

// QuoteRequest captures the payload required to price a delivery.
type QuoteRequest struct {
	Destination   Destination
	WeightGrams   int
	DeclaredValue int64
	Currency      string
}

// Quote is a carrier fee offer for one delivery.
type Quote struct {
	Carrier       string
	Fee           int64
	Currency      string
	EstimatedDays *int
	Raw           map[string]any
}

// ShipmentItem describes one parcel line for carrier manifests.
type ShipmentItem struct {
	Name     string
	Quantity int
}

// ShipmentRequest registers a delivery with the carrier.
type ShipmentRequest struct {
	OrderCode   string
	Destination Destination
	WeightGrams int
	CODAmount   int64
	Currency    string
	Items       []ShipmentItem
}

// Shipment is the carrier's handle for a registered delivery.
type Shipment struct {
	Carrier          string
	TrackingCode     string
	Fee              int64
	ExpectedDelivery *time.Time
	Raw              map[string]any
}

// TrackRequest looks a shipment up by its carrier tracking code.
type TrackRequest struct {
	TrackingCode string
}

// TrackEvent is the latest normalised status the carrier reports.
type TrackEvent struct {
	TrackingCode string
	State        State
	Description  string
	OccurredAt   time.Time
	Raw          map[string]any
}

// Provider defines the contract carrier adapters implement.
type Provider interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	CreateShipment(ctx context.Context, req ShipmentRequest) (Shipment, error)
	TrackingStatus(ctx context.Context, req TrackRequest) (TrackEvent, error)
}

// Manager coordinates carrier selection and exposes the aggregated interface.
type Manager struct {
	carriers       map[string]Provider
	defaultCarrier string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultCarrier overrides the carrier used when the context names none.
func WithDefaultCarrier(carrier string) ManagerOption {
	return func(m *Manager) {
		m.defaultCarrier = carrier
	}
}

// NewManager constructs a Manager over the supplied carriers.
func NewManager(carriers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(carriers) == 0 {
		return nil, errors.New("shipping: at least one carrier is required")
	}
	copyMap := make(map[string]Provider, len(carriers))
	for k, v := range carriers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("shipping: invalid carrier registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		carriers: copyMap,
	}
	if _, ok := copyMap["ghn"]; ok {
		m.defaultCarrier = "ghn"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CarrierContext defines the hints available when selecting a carrier.
type CarrierContext struct {
	PreferredCarrier string
}

func (m *Manager) resolveCarrier(ctx CarrierContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("shipping: manager is nil")
	}
	if len(m.carriers) == 0 {
		return "", nil, errors.New("shipping: no carriers registered")
	}
	if carrier := strings.TrimSpace(strings.ToLower(ctx.PreferredCarrier)); carrier != "" {
		if p, ok := m.carriers[carrier]; ok {
			return carrier, p, nil
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultCarrier)); def != "" {
		if p, ok := m.carriers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.carriers) == 1 {
		for key, p := range m.carriers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedCarrier
}

// Quote delegates to the resolved carrier.
func (m *Manager) Quote(ctx context.Context, carrierCtx CarrierContext, req QuoteRequest) (Quote, error) {
	key, carrier, err := m.resolveCarrier(carrierCtx)
	if err != nil {
		return Quote{}, err
	}
	quote, err := carrier.Quote(ctx, req)
	if err != nil {
		return Quote{}, err
	}
	quote.Carrier = key
	return quote, nil
}

// CreateShipment delegates to the resolved carrier.
func (m *Manager) CreateShipment(ctx context.Context, carrierCtx CarrierContext, req ShipmentRequest) (Shipment, error) {
	key, carrier, err := m.resolveCarrier(carrierCtx)
	if err != nil {
		return Shipment{}, err
	}
	shipment, err := carrier.CreateShipment(ctx, req)
	if err != nil {
		return Shipment{}, err
	}
	shipment.Carrier = key
	return shipment, nil
}

// TrackingStatus delegates to the resolved carrier.
func (m *Manager) TrackingStatus(ctx context.Context, carrierCtx CarrierContext, req TrackRequest) (TrackEvent, error) {
	_, carrier, err := m.resolveCarrier(carrierCtx)
	if err != nil {
		return TrackEvent{}, err
	}
	return carrier.TrackingStatus(ctx, req)
}
