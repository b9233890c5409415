package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"

	domain "github.com/solestride/api/internal/domain"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

const reviewCollection = "reviews"

// ReviewRepository stores shoe reviews, one per (user, shoe).
type ReviewRepository struct {
	base     *pfirestore.Collection[reviewDocument]
	provider *pfirestore.Provider
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	base := pfirestore.NewCollection[reviewDocument](provider, reviewCollection)
	return &ReviewRepository{base: base, provider: provider}, nil
}

// Insert creates the review, failing on duplicate IDs.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	id := strings.TrimSpace(review.ID)
	if id == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}
	doc := fromDomainReview(review)
	if _, err := ref.Create(ctx, doc); err != nil {
		return domain.Review{}, pfirestore.WrapError("reviews.insert", err)
	}
	return doc.toDomain(id), nil
}

// Update overwrites the review document.
func (r *ReviewRepository) Update(ctx context.Context, review domain.Review) (domain.Review, error) {
	id := strings.TrimSpace(review.ID)
	if id == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}
	doc := fromDomainReview(review)
	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.Review{}, err
	}
	saved := doc.toDomain(id)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Delete removes the review document.
func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return errors.New("review repository: review id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("reviews.delete", err)
	}
	return nil
}

// FindByID loads a review by document ID.
func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(reviewID))
	if err != nil {
		return domain.Review{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByUserAndShoe loads the single review a user left for a shoe.
func (r *ReviewRepository) FindByUserAndShoe(ctx context.Context, userID, shoeID string) (domain.Review, error) {
	uid := strings.TrimSpace(userID)
	sid := strings.TrimSpace(shoeID)
	if uid == "" || sid == "" {
		return domain.Review{}, errors.New("review repository: user id and shoe id are required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", uid).Where("shoeId", "==", sid).Limit(1)
	})
	if err != nil {
		return domain.Review{}, err
	}
	if len(docs) == 0 {
		return domain.Review{}, pfirestore.WrapError("reviews.findByUserAndShoe",
			notFoundf("review by %s for %s not found", uid, sid))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// ListByShoe returns reviews for a shoe, newest first.
func (r *ReviewRepository) ListByShoe(ctx context.Context, shoeID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	sid := strings.TrimSpace(shoeID)
	if sid == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository: shoe id is required")
	}
	return r.listByField(ctx, "shoeId", sid, pager)
}

// ListByUser returns reviews written by a user, newest first.
func (r *ReviewRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository: user id is required")
	}
	return r.listByField(ctx, "userId", uid, pager)
}

// Summary aggregates count and average rating server-side.
func (r *ReviewRepository) Summary(ctx context.Context, shoeID string) (domain.ReviewSummary, error) {
	sid := strings.TrimSpace(shoeID)
	if sid == "" {
		return domain.ReviewSummary{}, errors.New("review repository: shoe id is required")
	}
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.ReviewSummary{}, err
	}

	query := coll.Where("shoeId", "==", sid)
	results, err := query.NewAggregationQuery().
		WithCount("count").
		WithAvg("rating", "average").
		Get(ctx)
	if err != nil {
		return domain.ReviewSummary{}, pfirestore.WrapError("reviews.summary", err)
	}

	summary := domain.ReviewSummary{}
	if raw, ok := results["count"]; ok {
		if value, ok := raw.(*firestorepb.Value); ok {
			summary.Count = int(value.GetIntegerValue())
		}
	}
	if raw, ok := results["average"]; ok {
		if value, ok := raw.(*firestorepb.Value); ok {
			summary.Average = value.GetDoubleValue()
		}
	}
	return summary, nil
}

func (r *ReviewRepository) listByField(ctx context.Context, field, value string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	limit := pager.PageSize
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	query := coll.Where(field, "==", value).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(limit + 1)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeCursorToken(token)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("reviews.list: invalid page token: %w", err)
		}
		query = query.StartAfter(tokenTime, tokenID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var reviews []domain.Review
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("reviews.list", err)
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("decode review %s: %w", snap.Ref.ID, err)
		}
		reviews = append(reviews, doc.toDomain(snap.Ref.ID))
	}

	nextToken := ""
	if len(reviews) > limit {
		last := reviews[limit-1]
		nextToken = encodeCursorToken(last.CreatedAt, last.ID)
		reviews = reviews[:limit]
	}

	return domain.CursorPage[domain.Review]{
		Items:         reviews,
		NextPageToken: nextToken,
	}, nil
}

func (r *ReviewRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("review repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(reviewCollection), nil
}

type reviewDocument struct {
	ShoeID    string    `firestore:"shoeId"`
	UserID    string    `firestore:"userId"`
	OrderID   string    `firestore:"orderId"`
	Rating    int       `firestore:"rating"`
	Comment   string    `firestore:"comment,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func fromDomainReview(review domain.Review) reviewDocument {
	now := time.Now().UTC()
	createdAt := review.CreatedAt.UTC()
	if review.CreatedAt.IsZero() {
		createdAt = now
	}
	updatedAt := review.UpdatedAt.UTC()
	if review.UpdatedAt.IsZero() {
		updatedAt = now
	}
	return reviewDocument{
		ShoeID:    strings.TrimSpace(review.ShoeID),
		UserID:    strings.TrimSpace(review.UserID),
		OrderID:   strings.TrimSpace(review.OrderID),
		Rating:    review.Rating,
		Comment:   strings.TrimSpace(review.Comment),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func (d reviewDocument) toDomain(id string) domain.Review {
	return domain.Review{
		ID:        id,
		ShoeID:    d.ShoeID,
		UserID:    d.UserID,
		OrderID:   d.OrderID,
		Rating:    d.Rating,
		Comment:   d.Comment,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
