package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newGHNTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *GHNProvider) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewGHNProvider(GHNConfig{
		BaseURL: server.URL,
		Token:   "test-token",
		ShopID:  "12345",
	})
	if err != nil {
		t.Fatalf("NewGHNProvider: %v", err)
	}
	return server, provider
}

func writeGHNEnvelope(t *testing.T, w http.ResponseWriter, status int, code int, message string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal envelope data: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": message,
		"data":    json.RawMessage(raw),
	})
}

func testQuoteRequest() QuoteRequest {
	return QuoteRequest{
		Destination: Destination{
			Recipient:    "An Nguyen",
			Phone:        "0900000001",
			Line1:        "12 Ly Thuong Kiet",
			WardCode:     "20308",
			DistrictCode: "1444",
		},
		WeightGrams:   1600,
		DeclaredValue: 3300000,
		Currency:      "VND",
	}
}

func TestGHNProviderQuote(t *testing.T) {
	var gotToken, gotShop string
	var gotBody ghnFeeRequest

	_, provider := newGHNTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ghnQuotePath {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		gotToken = r.Header.Get("Token")
		gotShop = r.Header.Get("ShopId")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		days := 3
		writeGHNEnvelope(t, w, http.StatusOK, 200, "Success", ghnFeeResponse{Total: 31000, ExpectedDays: &days})
	})

	quote, err := provider.Quote(context.Background(), testQuoteRequest())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.Fee != 31000 || quote.Currency != "VND" {
		t.Fatalf("unexpected quote: %+v", quote)
	}
	if quote.EstimatedDays == nil || *quote.EstimatedDays != 3 {
		t.Fatalf("expected 3 estimated days, got %v", quote.EstimatedDays)
	}
	if gotToken != "test-token" || gotShop != "12345" {
		t.Fatalf("auth headers missing: token=%q shop=%q", gotToken, gotShop)
	}
	if gotBody.ToWardCode != "20308" || gotBody.ToDistrictCode != "1444" || gotBody.Weight != 1600 {
		t.Fatalf("unexpected fee request: %+v", gotBody)
	}
}

func TestGHNProviderQuoteValidation(t *testing.T) {
	_, provider := newGHNTestServer(t, func(http.ResponseWriter, *http.Request) {
		t.Fatalf("the carrier must not be called for invalid input")
	})

	req := testQuoteRequest()
	req.WeightGrams = 0
	if _, err := provider.Quote(context.Background(), req); !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("zero weight: expected ErrInvalidDestination, got %v", err)
	}

	req = testQuoteRequest()
	req.Destination.WardCode = ""
	if _, err := provider.Quote(context.Background(), req); !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("missing ward: expected ErrInvalidDestination, got %v", err)
	}
}

func TestGHNProviderServerErrorsMapToUnavailable(t *testing.T) {
	_, provider := newGHNTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := provider.Quote(context.Background(), testQuoteRequest()); !errors.Is(err, ErrCarrierUnavailable) {
		t.Fatalf("5xx: expected ErrCarrierUnavailable, got %v", err)
	}
}

func TestGHNProviderNetworkErrorMapsToUnavailable(t *testing.T) {
	server, provider := newGHNTestServer(t, func(http.ResponseWriter, *http.Request) {})
	server.Close()

	if _, err := provider.Quote(context.Background(), testQuoteRequest()); !errors.Is(err, ErrCarrierUnavailable) {
		t.Fatalf("connection refused: expected ErrCarrierUnavailable, got %v", err)
	}
}

func TestGHNProviderClientErrorsMapToInvalidDestination(t *testing.T) {
	_, provider := newGHNTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeGHNEnvelope(t, w, http.StatusBadRequest, 400, "district not serviceable", struct{}{})
	})

	if _, err := provider.Quote(context.Background(), testQuoteRequest()); !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("4xx: expected ErrInvalidDestination, got %v", err)
	}
}

func TestGHNProviderEnvelopeErrorWithOKStatus(t *testing.T) {
	// GHN reports some failures inside a 200 body.
	_, provider := newGHNTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeGHNEnvelope(t, w, http.StatusOK, 400, "ward code is invalid", struct{}{})
	})

	if _, err := provider.Quote(context.Background(), testQuoteRequest()); !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("envelope 400: expected ErrInvalidDestination, got %v", err)
	}
}

func TestGHNProviderCreateShipment(t *testing.T) {
	var gotBody ghnCreateRequest

	_, provider := newGHNTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ghnCreatePath {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		writeGHNEnvelope(t, w, http.StatusOK, 200, "Success", ghnCreateResponse{
			OrderCode:            "GHN777",
			TotalFee:             31000,
			ExpectedDeliveryTime: "2025-05-04T17:00:00Z",
		})
	})

	shipment, err := provider.CreateShipment(context.Background(), ShipmentRequest{
		OrderCode: "SS-2025-000042",
		Destination: Destination{
			Recipient:    "An Nguyen",
			Phone:        "0900000001",
			Line1:        "12 Ly Thuong Kiet",
			Line2:        "Phuong Phan Chu Trinh",
			WardCode:     "20308",
			DistrictCode: "1444",
		},
		WeightGrams: 2400,
		CODAmount:   3330000,
		Currency:    "VND",
		Items: []ShipmentItem{
			{Name: "Street Runner", Quantity: 2},
			{Name: "Court Classic", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("CreateShipment failed: %v", err)
	}

	if shipment.TrackingCode != "GHN777" || shipment.Fee != 31000 {
		t.Fatalf("unexpected shipment: %+v", shipment)
	}
	want := time.Date(2025, 5, 4, 17, 0, 0, 0, time.UTC)
	if shipment.ExpectedDelivery == nil || !shipment.ExpectedDelivery.Equal(want) {
		t.Fatalf("expected delivery %v, got %v", want, shipment.ExpectedDelivery)
	}
	if gotBody.ClientOrderCode != "SS-2025-000042" || gotBody.CODAmount != 3330000 {
		t.Fatalf("unexpected create request: %+v", gotBody)
	}
	if gotBody.ToAddress != "12 Ly Thuong Kiet, Phuong Phan Chu Trinh" {
		t.Fatalf("address lines must be joined, got %q", gotBody.ToAddress)
	}
	if len(gotBody.Items) != 2 || gotBody.Items[0].Name != "Street Runner" {
		t.Fatalf("unexpected manifest: %+v", gotBody.Items)
	}
}

func TestGHNProviderTrackingStatus(t *testing.T) {
	updated := time.Date(2025, 5, 3, 14, 30, 0, 0, time.UTC)

	_, provider := newGHNTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ghnDetailPath {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		writeGHNEnvelope(t, w, http.StatusOK, 200, "Success", map[string]any{
			"order_code": "GHN777",
			"status":     "delivering",
			"log": []map[string]any{
				{"status": "picked", "updated_date": "2025-05-02T08:00:00Z"},
				{"status": "delivering", "updated_date": updated.Format(time.RFC3339)},
			},
		})
	})

	event, err := provider.TrackingStatus(context.Background(), TrackRequest{TrackingCode: "GHN777"})
	if err != nil {
		t.Fatalf("TrackingStatus failed: %v", err)
	}
	if event.TrackingCode != "GHN777" || event.State != StateInTransit {
		t.Fatalf("unexpected event: %+v", event)
	}
	if !event.OccurredAt.Equal(updated) {
		t.Fatalf("expected last log timestamp, got %v", event.OccurredAt)
	}
}

func TestGHNProviderTrackingNotFound(t *testing.T) {
	_, provider := newGHNTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeGHNEnvelope(t, w, http.StatusNotFound, 404, "order not found", struct{}{})
	})

	if _, err := provider.TrackingStatus(context.Background(), TrackRequest{TrackingCode: "NOPE"}); !errors.Is(err, ErrShipmentNotFound) {
		t.Fatalf("404: expected ErrShipmentNotFound, got %v", err)
	}
}

func TestNormalizeGHNState(t *testing.T) {
	cases := map[string]State{
		"ready_to_pick": StateReadyToPick,
		"Picking":       StateReadyToPick,
		"transporting":  StateInTransit,
		"money_collect": StateInTransit,
		"DELIVERED":     StateDelivered,
		"returning":     StateReturned,
		"cancel":        StateCanceled,
		"exception":     StateUnknown,
		"":              StateUnknown,
	}
	for status, want := range cases {
		if got := normalizeGHNState(status); got != want {
			t.Fatalf("normalizeGHNState(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestManagerResolvesCarrier(t *testing.T) {
	_, ghn := newGHNTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeGHNEnvelope(t, w, http.StatusOK, 200, "Success", ghnFeeResponse{Total: 31000})
	})

	manager, err := NewManager(map[string]Provider{"ghn": ghn})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	quote, err := manager.Quote(context.Background(), CarrierContext{}, testQuoteRequest())
	if err != nil {
		t.Fatalf("Quote via manager failed: %v", err)
	}
	if quote.Carrier != "ghn" || quote.Fee != 31000 {
		t.Fatalf("unexpected quote: %+v", quote)
	}

	if _, err := manager.Quote(context.Background(), CarrierContext{PreferredCarrier: "dhl"}, testQuoteRequest()); !errors.Is(err, ErrUnsupportedCarrier) {
		t.Fatalf("unknown carrier: expected ErrUnsupportedCarrier, got %v", err)
	}
}
