package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/solestride/api/internal/services"
)

// PubSubJobPublisher fans background job payloads out to dedicated Pub/Sub topics.
type PubSubJobPublisher struct {
	orderEvents *pubsub.Topic
	cartCleanup *pubsub.Topic
	marshal     func(any) ([]byte, error)
}

// NewPubSubJobPublisher constructs a Pub/Sub backed job publisher.
func NewPubSubJobPublisher(orderEvents, cartCleanup *pubsub.Topic) (*PubSubJobPublisher, error) {
	if orderEvents == nil {
		return nil, errors.New("pubsub job publisher: order events topic is required")
	}
	if cartCleanup == nil {
		return nil, errors.New("pubsub job publisher: cart cleanup topic is required")
	}
	return &PubSubJobPublisher{
		orderEvents: orderEvents,
		cartCleanup: cartCleanup,
		marshal:     json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues an order lifecycle event on the order events topic.
func (p *PubSubJobPublisher) PublishOrderEvent(ctx context.Context, payload services.OrderEventPayload) (string, error) {
	if p == nil || p.orderEvents == nil {
		return "", errors.New("pubsub job publisher: not initialised")
	}

	data, err := p.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", payload.Type)
	setAttr(attrs, "orderId", payload.OrderID)
	setAttr(attrs, "orderCode", payload.OrderCode)
	setAttr(attrs, "userId", payload.UserID)
	setAttr(attrs, "status", string(payload.Status))

	result := p.orderEvents.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

// PublishCartCleanup enqueues a stale-cart cleanup batch on the cleanup topic.
func (p *PubSubJobPublisher) PublishCartCleanup(ctx context.Context, payload services.CartCleanupPayload) (string, error) {
	if p == nil || p.cartCleanup == nil {
		return "", errors.New("pubsub job publisher: not initialised")
	}

	data, err := p.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal cart cleanup: %w", err)
	}

	result := p.cartCleanup.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"users": fmt.Sprintf("%d", len(payload.UserIDs))},
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish cart cleanup: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
