package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/solestride/api/internal/domain"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

const favoriteCollectionPattern = "users/%s/favorites"

// FavoriteRepository persists favorite shoes per user, keyed by shoe ID.
type FavoriteRepository struct {
	provider *pfirestore.Provider
}

// NewFavoriteRepository constructs a Firestore-backed favorite repository.
func NewFavoriteRepository(provider *pfirestore.Provider) (*FavoriteRepository, error) {
	if provider == nil {
		return nil, errors.New("favorite repository requires firestore provider")
	}
	return &FavoriteRepository{provider: provider}, nil
}

// List returns favorites ordered by most recent addition.
func (r *FavoriteRepository) List(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Favorite], error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.CursorPage[domain.Favorite]{}, err
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}

	query := coll.OrderBy("addedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	var fetchLimit int
	if limit > 0 {
		fetchLimit = limit + 1
		query = query.Limit(fetchLimit)
	}

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeCursorToken(token)
		if err != nil {
			return domain.CursorPage[domain.Favorite]{}, fmt.Errorf("favorites.list: invalid page token: %w", err)
		}
		query = query.StartAfter(tokenTime, tokenID)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return domain.CursorPage[domain.Favorite]{}, pfirestore.WrapError("favorites.list", err)
	}
	rows := make([]domain.Favorite, 0, len(snaps))
	for _, snap := range snaps {
		fav, err := decodeFavoriteDocument(snap)
		if err != nil {
			return domain.CursorPage[domain.Favorite]{}, err
		}
		rows = append(rows, fav)
	}

	nextToken := ""
	if limit > 0 && len(rows) == fetchLimit {
		last := rows[len(rows)-1]
		nextToken = encodeCursorToken(last.AddedAt, last.ShoeID)
		rows = rows[:len(rows)-1]
	}

	return domain.CursorPage[domain.Favorite]{
		Items:         rows,
		NextPageToken: nextToken,
	}, nil
}

// Put stores the favorite unless it already exists. When limit is positive the
// insert fails with a conflict once the user holds that many favorites.
func (r *FavoriteRepository) Put(ctx context.Context, userID string, shoeID string, addedAt time.Time, limit int) (bool, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return false, err
	}

	shoeID = strings.TrimSpace(shoeID)
	if shoeID == "" {
		return false, errors.New("favorite repository: shoe id is required")
	}

	created := false
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.Doc(shoeID)
		_, err := tx.Get(docRef)
		switch {
		case err == nil:
			// Re-favoriting a shoe is a no-op, not a conflict.
			created = false
			return nil
		case status.Code(err) != codes.NotFound:
			return err
		}

		if limit > 0 {
			if err := checkFavoriteCapacity(tx, coll, limit); err != nil {
				return err
			}
		}

		doc := favoriteDocument{
			ShoeID:  shoeID,
			AddedAt: addedAt.UTC(),
		}
		if err := tx.Set(docRef, doc); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, pfirestore.WrapError("favorites.put", err)
	}
	return created, nil
}

// checkFavoriteCapacity fails the insert once the wishlist already holds
// limit entries. Fetching limit docs inside the transaction keeps the count
// and the insert in the same snapshot.
func checkFavoriteCapacity(tx *firestore.Transaction, coll *firestore.CollectionRef, limit int) error {
	snaps, err := tx.Documents(coll.Select("addedAt").Limit(limit)).GetAll()
	if err != nil {
		return err
	}
	if len(snaps) >= limit {
		return status.Error(codes.FailedPrecondition, "favorite limit reached")
	}
	return nil
}

// Delete removes the favorite document.
func (r *FavoriteRepository) Delete(ctx context.Context, userID string, shoeID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	shoeID = strings.TrimSpace(shoeID)
	if shoeID == "" {
		return errors.New("favorite repository: shoe id is required")
	}
	if _, err := coll.Doc(shoeID).Delete(ctx); err != nil {
		return pfirestore.WrapError("favorites.delete", err)
	}
	return nil
}

func (r *FavoriteRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("favorite repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("favorite repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf(favoriteCollectionPattern, uid)
	return client.Collection(path), nil
}

func decodeFavoriteDocument(snapshot *firestore.DocumentSnapshot) (domain.Favorite, error) {
	var doc favoriteDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Favorite{}, fmt.Errorf("decode favorite %s: %w", snapshot.Ref.ID, err)
	}
	shoeID := strings.TrimSpace(doc.ShoeID)
	if shoeID == "" {
		shoeID = snapshot.Ref.ID
	}
	return domain.Favorite{
		ShoeID:  shoeID,
		AddedAt: doc.AddedAt,
	}, nil
}

type favoriteDocument struct {
	ShoeID  string    `firestore:"shoeId"`
	AddedAt time.Time `firestore:"addedAt"`
}

// Ensure interface compliance.
var _ repositories.FavoriteRepository = (*FavoriteRepository)(nil)
