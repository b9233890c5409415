package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/services"
)

func newTestPublisher(t *testing.T) (*PubSubJobPublisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	orderTopic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	cleanupTopic, err := client.CreateTopic(ctx, "cart-cleanup")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubJobPublisher(orderTopic, cleanupTopic)
	if err != nil {
		t.Fatalf("NewPubSubJobPublisher: %v", err)
	}
	return publisher, srv
}

func TestPubSubJobPublisherPublishesOrderEvent(t *testing.T) {
	publisher, srv := newTestPublisher(t)
	ctx := context.Background()

	payload := services.OrderEventPayload{
		Type:       "order.status_changed",
		OrderID:    "ord_1",
		OrderCode:  "SS-2025-000042",
		UserID:     "user_1",
		Status:     domain.OrderStatusShipped,
		OccurredAt: time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
		Metadata:   map[string]any{"previousStatus": "processing"},
	}

	if _, err := publisher.PublishOrderEvent(ctx, payload); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var decoded services.OrderEventPayload
	if err := json.Unmarshal(messages[0].Data, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded.OrderID != payload.OrderID || decoded.Type != payload.Type {
		t.Fatalf("unexpected payload %#v", decoded)
	}
	if attr := messages[0].Attributes["orderCode"]; attr != "SS-2025-000042" {
		t.Fatalf("expected order code attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["status"]; attr != string(domain.OrderStatusShipped) {
		t.Fatalf("expected status attribute, got %q", attr)
	}
}

func TestPubSubJobPublisherPublishesCartCleanup(t *testing.T) {
	publisher, srv := newTestPublisher(t)
	ctx := context.Background()

	payload := services.CartCleanupPayload{UserIDs: []string{"user_1", "user_2"}}
	if _, err := publisher.PublishCartCleanup(ctx, payload); err != nil {
		t.Fatalf("PublishCartCleanup: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if attr := messages[0].Attributes["users"]; attr != "2" {
		t.Fatalf("expected users attribute 2, got %q", attr)
	}

	var decoded services.CartCleanupPayload
	if err := json.Unmarshal(messages[0].Data, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(decoded.UserIDs) != 2 || decoded.UserIDs[0] != "user_1" {
		t.Fatalf("unexpected payload %#v", decoded)
	}
}

func TestNewPubSubJobPublisherRequiresTopics(t *testing.T) {
	if _, err := NewPubSubJobPublisher(nil, nil); err == nil {
		t.Fatal("expected error when topics missing")
	}
}
