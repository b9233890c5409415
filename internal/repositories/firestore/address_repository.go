package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/solestride/api/internal/domain"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository persists saved shipping addresses per user. At most one
// address per user carries the default flag.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns all addresses for the specified user ordered by most recent update.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	snaps, err := coll.OrderBy("updatedAt", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, pfirestore.WrapError("addresses.list", err)
	}

	results := make([]domain.Address, 0, len(snaps))
	for _, snap := range snaps {
		addr, err := decodeAddressDocument(snap)
		if err != nil {
			return nil, err
		}
		results = append(results, addr)
	}
	return results, nil
}

// Get fetches a single address by ID.
func (r *AddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	return decodeAddressDocument(snap)
}

// Upsert creates the address when addressID is nil and updates it otherwise.
// Setting the default flag clears it from every other address in the same
// transaction.
func (r *AddressRepository) Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var docRef *firestore.DocumentRef
		if addressID != nil {
			if id := strings.TrimSpace(*addressID); id != "" {
				docRef = coll.Doc(id)
			}
		}
		if docRef == nil {
			docRef = coll.NewDoc()
		}

		var doc addressDocument
		snapshot, err := tx.Get(docRef)
		switch status.Code(err) {
		case codes.NotFound:
			if addressID != nil {
				return err
			}
		case codes.OK:
			if err := snapshot.DataTo(&doc); err != nil {
				return fmt.Errorf("decode address %s: %w", snapshot.Ref.ID, err)
			}
		default:
			return err
		}

		// Reads must precede writes inside the transaction, so collect the
		// addresses losing the default flag before the first Set.
		var demote []*firestore.DocumentRef
		if addr.IsDefault {
			demote, err = currentDefaults(tx, coll, docRef.ID)
			if err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if doc.CreatedAt.IsZero() {
			if !addr.CreatedAt.IsZero() {
				doc.CreatedAt = addr.CreatedAt.UTC()
			} else {
				doc.CreatedAt = now
			}
		}
		doc.UpdatedAt = now
		doc.Recipient = strings.TrimSpace(addr.Recipient)
		doc.Phone = strings.TrimSpace(addr.Phone)
		doc.Line1 = strings.TrimSpace(addr.Line1)
		doc.Line2 = cloneOptionalString(addr.Line2)
		doc.WardCode = strings.TrimSpace(addr.WardCode)
		doc.DistrictCode = strings.TrimSpace(addr.DistrictCode)
		doc.ProvinceCode = strings.TrimSpace(addr.ProvinceCode)
		doc.IsDefault = addr.IsDefault

		if err := tx.Set(docRef, doc); err != nil {
			return err
		}
		if err := clearDefaultFlag(tx, demote); err != nil {
			return err
		}

		saved = doc.toDomain(docRef.ID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.upsert", err)
	}
	return saved, nil
}

// currentDefaults collects the refs of addresses currently holding the
// default flag, excluding keepID.
func currentDefaults(tx *firestore.Transaction, coll *firestore.CollectionRef, keepID string) ([]*firestore.DocumentRef, error) {
	query := coll.Where("isDefault", "==", true).Limit(10)
	snaps, err := tx.Documents(query).GetAll()
	if err != nil && status.Code(err) != codes.NotFound {
		return nil, err
	}
	var refs []*firestore.DocumentRef
	for _, snap := range snaps {
		if snap.Ref.ID != keepID {
			refs = append(refs, snap.Ref)
		}
	}
	return refs, nil
}

func clearDefaultFlag(tx *firestore.Transaction, refs []*firestore.DocumentRef) error {
	for _, ref := range refs {
		if err := tx.Update(ref, []firestore.Update{{Path: "isDefault", Value: false}}); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the specified address document.
func (r *AddressRepository) Delete(ctx context.Context, userID string, addressID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("addresses.delete", err)
	}
	return nil
}

// FindDefault returns the address flagged as default for the user.
func (r *AddressRepository) FindDefault(ctx context.Context, userID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}

	iter := coll.Where("isDefault", "==", true).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Address{}, pfirestore.WrapError("addresses.findDefault",
			status.Error(codes.NotFound, "no default address"))
	}
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.findDefault", err)
	}
	return decodeAddressDocument(snap)
}

// SetDefault flags the given address as default and clears the flag elsewhere.
func (r *AddressRepository) SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.Doc(id)
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc addressDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
		}

		demote, err := currentDefaults(tx, coll, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		doc.IsDefault = true
		doc.UpdatedAt = now
		if err := tx.Update(docRef, []firestore.Update{
			{Path: "isDefault", Value: true},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		if err := clearDefaultFlag(tx, demote); err != nil {
			return err
		}

		saved = doc.toDomain(docRef.ID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.setDefault", err)
	}
	return saved, nil
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf(addressCollectionPattern, uid)
	return client.Collection(path), nil
}

func decodeAddressDocument(snapshot *firestore.DocumentSnapshot) (domain.Address, error) {
	var doc addressDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", snapshot.Ref.ID, err)
	}
	return doc.toDomain(snapshot.Ref.ID), nil
}

type addressDocument struct {
	Recipient    string    `firestore:"recipient"`
	Phone        string    `firestore:"phone"`
	Line1        string    `firestore:"line1"`
	Line2        *string   `firestore:"line2,omitempty"`
	WardCode     string    `firestore:"wardCode"`
	DistrictCode string    `firestore:"districtCode"`
	ProvinceCode string    `firestore:"provinceCode"`
	IsDefault    bool      `firestore:"isDefault"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:           id,
		Recipient:    d.Recipient,
		Phone:        d.Phone,
		Line1:        d.Line1,
		Line2:        cloneOptionalString(d.Line2),
		WardCode:     d.WardCode,
		DistrictCode: d.DistrictCode,
		ProvinceCode: d.ProvinceCode,
		IsDefault:    d.IsDefault,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func cloneOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	cloned := *value
	if strings.TrimSpace(cloned) == "" {
		return nil
	}
	return &cloned
}

// Ensure interface compliance.
var _ repositories.AddressRepository = (*AddressRepository)(nil)
