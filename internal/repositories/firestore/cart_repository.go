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

const cartCollection = "carts"

// CartRepository persists one cart document per user. Items are embedded in
// the cart document so the whole cart is read and replaced atomically.
type CartRepository struct {
	base     *pfirestore.Collection[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewCollection[cartDocument](provider, cartCollection)
	return &CartRepository{base: base, provider: provider}, nil
}

// UpsertCart writes the full cart document keyed by the user ID.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	cartID := cartDocumentID(cart)
	if cartID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc := fromDomainCart(cart)
	result, err := r.base.Set(ctx, cartID, doc)
	if err != nil {
		return domain.Cart{}, err
	}
	saved := doc.toDomain(cartID)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetCart loads the cart for the given user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	cart := doc.Data.toDomain(doc.ID)
	if !doc.UpdateTime.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	return cart, nil
}

// ReplaceItems swaps the item list wholesale, creating the cart document when
// it does not exist yet. Inside an ambient transaction only the item fields
// are merged so the call stays write-only.
func (r *CartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := time.Now().UTC()
	docs := fromDomainCartItems(items)
	if docs == nil {
		docs = []cartItemDocument{}
	}

	if tx, ok := txFromContext(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, uid)
		if err != nil {
			return domain.Cart{}, err
		}
		payload := map[string]any{
			"userId":     uid,
			"items":      docs,
			"itemsCount": len(docs),
			"updatedAt":  now,
		}
		if err := tx.Set(ref, payload, firestore.MergeAll); err != nil {
			return domain.Cart{}, pfirestore.WrapError("carts.replaceItems", err)
		}
		return domain.Cart{ID: uid, UserID: uid, Items: toDomainCartItems(docs), UpdatedAt: now}, nil
	}

	var saved domain.Cart
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, uid)
		if err != nil {
			return err
		}

		var doc cartDocument
		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			doc = cartDocument{UserID: uid, CreatedAt: now}
		case codes.OK:
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode cart %s: %w", uid, err)
			}
		default:
			return err
		}

		doc.UserID = uid
		doc.Items = docs
		doc.ItemsCount = len(docs)
		doc.UpdatedAt = now
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		saved = doc.toDomain(uid)
		return nil
	})
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.replaceItems", err)
	}
	return saved, nil
}

func cartDocumentID(cart domain.Cart) string {
	if id := strings.TrimSpace(cart.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(cart.ID)
}

type cartDocument struct {
	UserID     string             `firestore:"userId"`
	Currency   string             `firestore:"currency,omitempty"`
	Items      []cartItemDocument `firestore:"items"`
	ItemsCount int                `firestore:"itemsCount"`
	CreatedAt  time.Time          `firestore:"createdAt"`
	UpdatedAt  time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID               string     `firestore:"id"`
	ShoeID           string     `firestore:"shoeId"`
	ClassificationID string     `firestore:"classificationId"`
	SizeID           string     `firestore:"sizeId"`
	EUSize           int        `firestore:"euSize"`
	Quantity         int        `firestore:"quantity"`
	UnitPrice        int64      `firestore:"unitPrice"`
	AddedAt          time.Time  `firestore:"addedAt"`
	UpdatedAt        *time.Time `firestore:"updatedAt,omitempty"`
}

func fromDomainCart(cart domain.Cart) cartDocument {
	now := time.Now().UTC()
	updatedAt := cart.UpdatedAt.UTC()
	if cart.UpdatedAt.IsZero() {
		updatedAt = now
	}
	items := fromDomainCartItems(cart.Items)
	if items == nil {
		items = []cartItemDocument{}
	}
	return cartDocument{
		UserID:     cartDocumentID(cart),
		Currency:   strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:      items,
		ItemsCount: len(items),
		CreatedAt:  now,
		UpdatedAt:  updatedAt,
	}
}

func fromDomainCartItems(items []domain.CartItem) []cartItemDocument {
	if len(items) == 0 {
		return nil
	}
	docs := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, cartItemDocument{
			ID:               strings.TrimSpace(item.ID),
			ShoeID:           strings.TrimSpace(item.ShoeID),
			ClassificationID: strings.TrimSpace(item.ClassificationID),
			SizeID:           strings.TrimSpace(item.SizeID),
			EUSize:           item.EUSize,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice,
			AddedAt:          item.AddedAt.UTC(),
			UpdatedAt:        cloneOptionalTime(item.UpdatedAt),
		})
	}
	return docs
}

func toDomainCartItems(docs []cartItemDocument) []domain.CartItem {
	items := make([]domain.CartItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.CartItem{
			ID:               doc.ID,
			ShoeID:           doc.ShoeID,
			ClassificationID: doc.ClassificationID,
			SizeID:           doc.SizeID,
			EUSize:           doc.EUSize,
			Quantity:         doc.Quantity,
			UnitPrice:        doc.UnitPrice,
			AddedAt:          doc.AddedAt,
			UpdatedAt:        cloneOptionalTime(doc.UpdatedAt),
		})
	}
	return items
}

func (d cartDocument) toDomain(id string) domain.Cart {
	return domain.Cart{
		ID:        id,
		UserID:    id,
		Currency:  strings.ToUpper(strings.TrimSpace(d.Currency)),
		Items:     toDomainCartItems(d.Items),
		UpdatedAt: d.UpdatedAt,
	}
}

func cloneOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	cloned := value.UTC()
	return &cloned
}

var _ repositories.CartRepository = (*CartRepository)(nil)
