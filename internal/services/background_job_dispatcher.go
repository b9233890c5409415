package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solestride/api/internal/repositories"
)

const (
	jobEventOrderQueued   = "job.order_event.queued"
	jobEventCleanupQueued = "job.cart_cleanup.queued"
	jobEventPublishFailed = "job.publish.failed"
)

var (
	// ErrJobInvalidInput indicates required fields were missing from the payload.
	ErrJobInvalidInput = errors.New("job: invalid input")
	// ErrJobUnavailable indicates the queue could not accept the payload.
	ErrJobUnavailable = errors.New("job: queue unavailable")
)

// JobPublisher delivers background job payloads to the message queue.
type JobPublisher interface {
	PublishOrderEvent(ctx context.Context, payload OrderEventPayload) (string, error)
	PublishCartCleanup(ctx context.Context, payload CartCleanupPayload) (string, error)
}

// BackgroundJobDispatcherDeps enumerates collaborators required to construct the dispatcher.
type BackgroundJobDispatcherDeps struct {
	Publisher JobPublisher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type backgroundJobDispatcher struct {
	publisher JobPublisher
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewBackgroundJobDispatcher wires dependencies into a BackgroundJobDispatcher implementation.
func NewBackgroundJobDispatcher(deps BackgroundJobDispatcherDeps) (BackgroundJobDispatcher, error) {
	if deps.Publisher == nil {
		return nil, errors.New("background job dispatcher: publisher is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &backgroundJobDispatcher{
		publisher: deps.Publisher,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (d *backgroundJobDispatcher) EnqueueOrderEvent(ctx context.Context, payload OrderEventPayload) error {
	payload.Type = strings.TrimSpace(payload.Type)
	payload.OrderID = strings.TrimSpace(payload.OrderID)
	if payload.Type == "" {
		return fmt.Errorf("%w: event type is required", ErrJobInvalidInput)
	}
	if payload.OrderID == "" {
		return fmt.Errorf("%w: order id is required", ErrJobInvalidInput)
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = d.clock()
	} else {
		payload.OccurredAt = payload.OccurredAt.UTC()
	}
	payload.Metadata = copyMap(payload.Metadata)

	messageID, err := d.publisher.PublishOrderEvent(ctx, payload)
	if err != nil {
		d.logger(ctx, jobEventPublishFailed, map[string]any{
			"kind":    "order_event",
			"orderId": payload.OrderID,
			"error":   err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrJobUnavailable, err)
	}

	d.logger(ctx, jobEventOrderQueued, map[string]any{
		"messageId": messageID,
		"type":      payload.Type,
		"orderId":   payload.OrderID,
	})
	return nil
}

func (d *backgroundJobDispatcher) EnqueueCartCleanup(ctx context.Context, payload CartCleanupPayload) error {
	userIDs := make([]string, 0, len(payload.UserIDs))
	seen := make(map[string]struct{}, len(payload.UserIDs))
	for _, id := range payload.UserIDs {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		userIDs = append(userIDs, trimmed)
	}
	if len(userIDs) == 0 {
		return fmt.Errorf("%w: at least one user id is required", ErrJobInvalidInput)
	}
	payload.UserIDs = userIDs

	messageID, err := d.publisher.PublishCartCleanup(ctx, payload)
	if err != nil {
		d.logger(ctx, jobEventPublishFailed, map[string]any{
			"kind":  "cart_cleanup",
			"users": len(payload.UserIDs),
			"error": err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrJobUnavailable, err)
	}

	d.logger(ctx, jobEventCleanupQueued, map[string]any{
		"messageId": messageID,
		"users":     len(payload.UserIDs),
	})
	return nil
}

// PublishOrderEvent lets the dispatcher stand in as the order service's event
// sink, forwarding lifecycle events to the queue.
func (d *backgroundJobDispatcher) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	metadata := copyMap(event.Metadata)
	if event.PreviousStatus != "" {
		if metadata == nil {
			metadata = make(map[string]any, 2)
		}
		metadata["previousStatus"] = string(event.PreviousStatus)
	}
	if event.ActorID != "" {
		if metadata == nil {
			metadata = make(map[string]any, 1)
		}
		metadata["actorId"] = event.ActorID
	}
	return d.EnqueueOrderEvent(ctx, OrderEventPayload{
		Type:       event.Type,
		OrderID:    event.OrderID,
		OrderCode:  event.OrderCode,
		UserID:     event.UserID,
		Status:     event.CurrentStatus,
		OccurredAt: event.OccurredAt,
		Metadata:   metadata,
	})
}

func copyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
