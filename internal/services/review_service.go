package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/repositories"
)

const (
	reviewIDPrefix     = "rev_"
	reviewEventCreated = "review.created"
	reviewEventUpdated = "review.updated"
	reviewEventDeleted = "review.deleted"

	minReviewRating      = 1
	maxReviewRating      = 5
	maxReviewCommentSize = 2000
)

var (
	// ErrReviewInvalidInput indicates validation failures for review operations.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates a review could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewUnauthorized indicates the actor is not allowed to access the review.
	ErrReviewUnauthorized = errors.New("review: unauthorized")
	// ErrReviewConflict signals duplicate submissions or conflicting updates.
	ErrReviewConflict = errors.New("review: conflict")
	// ErrReviewNotVerified indicates the user never bought the shoe.
	ErrReviewNotVerified = errors.New("review: purchase not verified")
)

// ReviewEventPublisher receives review lifecycle notifications.
type ReviewEventPublisher interface {
	PublishReviewEvent(ctx context.Context, event ReviewEvent) error
}

// ReviewEvent describes a review mutation for downstream consumers.
type ReviewEvent struct {
	Type       string
	ReviewID   string
	ShoeID     string
	UserID     string
	OccurredAt time.Time
}

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Sanitizer   func(string) string
	Events      ReviewEventPublisher
}

type reviewService struct {
	reviews  repositories.ReviewRepository
	orders   repositories.OrderRepository
	clock    func() time.Time
	newID    func() string
	sanitize func(string) string
	events   ReviewEventPublisher
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		policy := bluemonday.StrictPolicy()
		sanitize = func(input string) string {
			return strings.TrimSpace(policy.Sanitize(input))
		}
	}

	return &reviewService{
		reviews: deps.Reviews,
		orders:  deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: sanitize,
		events:   deps.Events,
	}, nil
}

// Create stores a review once the user's purchase of the shoe is verified.
func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	shoeID := strings.TrimSpace(cmd.ShoeID)
	userID := strings.TrimSpace(cmd.UserID)
	if shoeID == "" || userID == "" {
		return Review{}, fmt.Errorf("%w: shoe id and user id are required", ErrReviewInvalidInput)
	}
	if cmd.Rating < minReviewRating || cmd.Rating > maxReviewRating {
		return Review{}, fmt.Errorf("%w: rating must be between %d and %d", ErrReviewInvalidInput, minReviewRating, maxReviewRating)
	}
	comment := s.sanitize(cmd.Comment)
	if len(comment) > maxReviewCommentSize {
		return Review{}, fmt.Errorf("%w: comment must be %d characters or fewer", ErrReviewInvalidInput, maxReviewCommentSize)
	}

	orderID, err := s.verifiedPurchase(ctx, userID, shoeID)
	if err != nil {
		return Review{}, err
	}

	if existing, err := s.reviews.FindByUserAndShoe(ctx, userID, shoeID); err == nil && existing.ID != "" {
		return Review{}, fmt.Errorf("%w: a review for this shoe already exists", ErrReviewConflict)
	} else if err != nil && !isRepoNotFound(err) {
		return Review{}, s.mapReviewError(err)
	}

	now := s.clock()
	review := domain.Review{
		ID:        reviewIDPrefix + s.newID(),
		ShoeID:    shoeID,
		UserID:    userID,
		OrderID:   orderID,
		Rating:    cmd.Rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.reviews.Insert(ctx, review)
	if err != nil {
		return Review{}, s.mapReviewError(err)
	}

	s.emitEvent(ctx, reviewEventCreated, created)
	return created, nil
}

// Update lets the author revise their own rating or comment.
func (s *reviewService) Update(ctx context.Context, cmd UpdateReviewCommand) (Review, error) {
	reviewID := strings.TrimSpace(cmd.ReviewID)
	userID := strings.TrimSpace(cmd.UserID)
	if reviewID == "" || userID == "" {
		return Review{}, fmt.Errorf("%w: review id and user id are required", ErrReviewInvalidInput)
	}
	if cmd.Rating < minReviewRating || cmd.Rating > maxReviewRating {
		return Review{}, fmt.Errorf("%w: rating must be between %d and %d", ErrReviewInvalidInput, minReviewRating, maxReviewRating)
	}

	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return Review{}, s.mapReviewError(err)
	}
	if review.UserID != userID {
		return Review{}, ErrReviewUnauthorized
	}

	comment := s.sanitize(cmd.Comment)
	if len(comment) > maxReviewCommentSize {
		return Review{}, fmt.Errorf("%w: comment must be %d characters or fewer", ErrReviewInvalidInput, maxReviewCommentSize)
	}

	review.Rating = cmd.Rating
	review.Comment = comment
	review.UpdatedAt = s.clock()

	updated, err := s.reviews.Update(ctx, review)
	if err != nil {
		return Review{}, s.mapReviewError(err)
	}

	s.emitEvent(ctx, reviewEventUpdated, updated)
	return updated, nil
}

// Delete removes a review. Authors may delete their own; staff may delete any.
func (s *reviewService) Delete(ctx context.Context, cmd DeleteReviewCommand) error {
	reviewID := strings.TrimSpace(cmd.ReviewID)
	if reviewID == "" {
		return fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}

	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return s.mapReviewError(err)
	}
	if !cmd.Principal.Staff && review.UserID != cmd.Principal.UserID {
		return ErrReviewUnauthorized
	}

	if err := s.reviews.Delete(ctx, reviewID); err != nil {
		return s.mapReviewError(err)
	}

	s.emitEvent(ctx, reviewEventDeleted, review)
	return nil
}

func (s *reviewService) ListByShoe(ctx context.Context, shoeID string, pager Pagination) (ReviewPage, error) {
	shoeID = strings.TrimSpace(shoeID)
	if shoeID == "" {
		return ReviewPage{}, fmt.Errorf("%w: shoe id is required", ErrReviewInvalidInput)
	}

	page, err := s.reviews.ListByShoe(ctx, shoeID, pager)
	if err != nil {
		return ReviewPage{}, s.mapReviewError(err)
	}
	summary, err := s.reviews.Summary(ctx, shoeID)
	if err != nil {
		return ReviewPage{}, s.mapReviewError(err)
	}
	return ReviewPage{Reviews: page, Summary: summary}, nil
}

func (s *reviewService) ListByUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Review], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: user id is required", ErrReviewInvalidInput)
	}
	page, err := s.reviews.ListByUser(ctx, userID, pager)
	if err != nil {
		return domain.CursorPage[Review]{}, s.mapReviewError(err)
	}
	return page, nil
}

// verifiedPurchase returns the id of a delivered or confirmed order of the
// user that contains the shoe.
func (s *reviewService) verifiedPurchase(ctx context.Context, userID, shoeID string) (string, error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID: userID,
		Status: []domain.OrderStatus{domain.OrderStatusDelivered, domain.OrderStatusConfirmed},
		Page:   domain.PageRequest{Page: 1, PageSize: 100},
	})
	if err != nil {
		return "", s.mapReviewError(err)
	}
	for _, order := range page.Items {
		for _, item := range order.Items {
			if item.ShoeID == shoeID {
				return order.ID, nil
			}
		}
	}
	return "", fmt.Errorf("%w: no delivered order contains shoe %s", ErrReviewNotVerified, shoeID)
}

func (s *reviewService) emitEvent(ctx context.Context, eventType string, review domain.Review) {
	if s.events == nil {
		return
	}
	_ = s.events.PublishReviewEvent(ctx, ReviewEvent{
		Type:       eventType,
		ReviewID:   review.ID,
		ShoeID:     review.ShoeID,
		UserID:     review.UserID,
		OccurredAt: s.clock(),
	})
}

func (s *reviewService) mapReviewError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrReviewConflict, err)
		}
	}
	return err
}
