package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mapSecretProvider map[string]string

func (m mapSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	if secret, ok := m[name]; ok {
		return secret, nil
	}
	return "", fmt.Errorf("secret %s not found", name)
}

// signedWebhookRequest builds a POST carrying a valid signature over body,
// timestamp, and nonce, the way Stripe and GHN deliveries are verified.
func signedWebhookRequest(t *testing.T, secret, path string, body []byte, timestamp, nonce string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	signature := computeHMAC([]byte(secret), buildCanonicalString(req, body, timestamp, nonce))
	req.Header.Set(defaultSignatureHeader, base64.StdEncoding.EncodeToString(signature))
	req.Header.Set(defaultTimestampHeader, timestamp)
	req.Header.Set(defaultNonceHeader, nonce)
	return req
}

func newHMACTestValidator(provider SecretProvider, now time.Time, extra ...HMACOption) *HMACValidator {
	opts := append([]HMACOption{
		WithHMACLogger(noopLogger{}),
		WithHMACClock(func() time.Time { return now }),
	}, extra...)
	return NewHMACValidator(provider, NewInMemoryNonceStore(), opts...)
}

func TestRequireHMAC_Success(t *testing.T) {
	const secretName = "webhooks/stripe"
	const secretValue = "super-secret"

	metrics := &recordingMetrics{}
	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACTestValidator(mapSecretProvider{secretName: secretValue}, now, WithHMACMetrics(metrics))

	req := signedWebhookRequest(t, secretValue, "/webhooks/payments/stripe",
		[]byte(`{"event":"payment_intent.succeeded"}`),
		now.Format(time.RFC3339), "nonce-123")

	rr := httptest.NewRecorder()
	validator.RequireHMAC(secretName)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, ok := HMACMetadataFromContext(r.Context())
		if !ok {
			t.Fatalf("expected hmac metadata in context")
		}
		if meta.SecretName != secretName {
			t.Fatalf("unexpected secret name %q", meta.SecretName)
		}
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.records) != 1 || !metrics.records[0].success {
		t.Fatalf("expected success metric, got %+v", metrics.records)
	}
}

func TestRequireHMAC_ReplayRejected(t *testing.T) {
	const secretName = "webhooks/ghn"
	const secretValue = "ghn-secret"

	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACTestValidator(mapSecretProvider{secretName: secretValue}, now)

	body := []byte(`{"order_code":"SO-2024-000017","status":"delivered"}`)
	timestamp := now.Format(time.RFC3339)

	handler := validator.RequireHMAC(secretName)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Same nonce twice: GHN retries a delivery callback it already sent.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedWebhookRequest(t, secretValue, "/webhooks/shipping/ghn", body, timestamp, "nonce-replay"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, signedWebhookRequest(t, secretValue, "/webhooks/shipping/ghn", body, timestamp, "nonce-replay"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected replay to be rejected with 401, got %d", rr.Code)
	}
}

func TestRequireHMAC_SignatureMismatch(t *testing.T) {
	const secretName = "webhooks/ghn"
	const secretValue = "ghn-secret"

	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACTestValidator(mapSecretProvider{secretName: secretValue}, now)

	// Signature computed over a different payload than the one delivered.
	signed := signedWebhookRequest(t, secretValue, "/webhooks/shipping/ghn",
		[]byte(`{"status":"in_transit"}`), now.Format(time.RFC3339), "nonce-ship")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shipping/ghn", bytes.NewReader([]byte(`{"status":"delivered"}`)))
	req.Header = signed.Header.Clone()

	rr := httptest.NewRecorder()
	validator.RequireHMAC(secretName)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be invoked on signature mismatch")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on signature mismatch, got %d", rr.Code)
	}
}

func TestRequireHMAC_TimestampSkewRejected(t *testing.T) {
	const secretName = "webhooks/ghn"
	const secretValue = "ghn-secret"

	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACTestValidator(mapSecretProvider{secretName: secretValue}, now)

	stale := now.Add(-10 * time.Minute).Format(time.RFC3339)
	req := signedWebhookRequest(t, secretValue, "/webhooks/shipping/ghn",
		[]byte(`{"status":"picked_up"}`), stale, "nonce-old")

	rr := httptest.NewRecorder()
	validator.RequireHMAC(secretName)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called when timestamp is skewed")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on timestamp skew, got %d", rr.Code)
	}
}

func TestRequireHMAC_SecretUnavailable(t *testing.T) {
	provider := SecretProviderFunc(func(context.Context, string) (string, error) {
		return "", fmt.Errorf("secret unavailable")
	})
	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACTestValidator(provider, now)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shipping/ghn", bytes.NewReader(nil))
	rr := httptest.NewRecorder()

	validator.RequireHMAC("missing/secret")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run when secret unavailable")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when secret unavailable, got %d", rr.Code)
	}
}

func TestRequireHMACResolver(t *testing.T) {
	const secretName = "webhooks/stripe"
	const secretValue = "resolver-secret"

	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACTestValidator(mapSecretProvider{secretName: secretValue}, now)

	req := signedWebhookRequest(t, secretValue, "/webhooks/payments/stripe",
		[]byte(`{"event":"test"}`), now.Format(time.RFC3339), "resolver-nonce")

	rr := httptest.NewRecorder()
	validator.RequireHMACResolver(func(*http.Request) (string, bool) {
		return secretName, true
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from resolver middleware, got %d", rr.Code)
	}

	// Unknown provider should fail fast.
	unknown := httptest.NewRecorder()
	validator.RequireHMACResolver(func(*http.Request) (string, bool) {
		return "", false
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run for unknown provider")
	})).ServeHTTP(unknown, httptest.NewRequest(http.MethodPost, "/webhooks/unknown", nil))

	if unknown.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown provider, got %d", unknown.Code)
	}
}
