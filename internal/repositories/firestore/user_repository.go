package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/solestride/api/internal/domain"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

const userCollection = "users"

// UserRepository persists user profile projections using optimistic locking.
type UserRepository struct {
	base     *pfirestore.Collection[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewCollection[userDocument](provider, userCollection)
	return &UserRepository{base: base, provider: provider}, nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return profileFromSnapshot(doc), nil
}

// profileFromSnapshot hydrates the domain profile, filling timestamps from
// document metadata when the payload lacks them.
func profileFromSnapshot(doc pfirestore.Document[userDocument]) domain.UserProfile {
	profile := toDomainProfile(doc.Data)
	profile.ID = doc.ID
	profile.LastSyncTime = doc.UpdateTime
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = doc.CreateTime
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = doc.UpdateTime
	}
	return profile
}

// UpdateProfile upserts the user profile. When LastSyncTime is set the write
// aborts if the document changed since that read.
func (r *UserRepository) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(profile.ID) == "" {
		return domain.UserProfile{}, errors.New("profile id is required")
	}

	now := time.Now().UTC()
	doc := fromDomainProfile(profile, now)

	// A zero LastSyncTime means the caller never read the document; write
	// unconditionally. Otherwise a shopper editing the same profile from two
	// devices would silently lose one of the edits.
	if profile.LastSyncTime.IsZero() {
		result, err := r.base.Set(ctx, profile.ID, doc)
		if err != nil {
			return domain.UserProfile{}, err
		}
		saved := toDomainProfile(doc)
		saved.ID = profile.ID
		saved.LastSyncTime = result.UpdateTime
		return saved, nil
	}

	if r.provider == nil {
		return domain.UserProfile{}, errors.New("user repository provider unavailable")
	}

	docID := profile.ID
	if err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, docID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		if !snap.UpdateTime.Equal(profile.LastSyncTime) {
			return status.Error(codes.Aborted, "user profile stale update")
		}
		return tx.Set(docRef, doc)
	}); err != nil {
		return domain.UserProfile{}, pfirestore.WrapError("users.updateProfile", err)
	}

	latest, err := r.base.Get(ctx, docID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return profileFromSnapshot(latest), nil
}

type userDocument struct {
	UID          string             `firestore:"uid"`
	DisplayName  string             `firestore:"displayName"`
	Email        string             `firestore:"email"`
	PhoneNumber  string             `firestore:"phoneNumber"`
	PhotoURL     string             `firestore:"photoURL"`
	Roles        []string           `firestore:"roles"`
	IsActive     bool               `firestore:"isActive"`
	ProviderData []providerDocument `firestore:"providerData"`
	CreatedAt    time.Time          `firestore:"createdAt"`
	UpdatedAt    time.Time          `firestore:"updatedAt"`
}

type providerDocument struct {
	ProviderID  string `firestore:"providerId"`
	UID         string `firestore:"uid"`
	Email       string `firestore:"email,omitempty"`
	DisplayName string `firestore:"displayName,omitempty"`
	PhoneNumber string `firestore:"phoneNumber,omitempty"`
	PhotoURL    string `firestore:"photoURL,omitempty"`
}

func toDomainProfile(doc userDocument) domain.UserProfile {
	return domain.UserProfile{
		DisplayName:  doc.DisplayName,
		Email:        strings.TrimSpace(doc.Email),
		PhoneNumber:  strings.TrimSpace(doc.PhoneNumber),
		PhotoURL:     strings.TrimSpace(doc.PhotoURL),
		Roles:        cloneStringSlice(doc.Roles),
		IsActive:     doc.IsActive,
		ProviderData: toDomainProviders(doc.ProviderData),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func fromDomainProfile(profile domain.UserProfile, now time.Time) userDocument {
	doc := userDocument{
		UID:          profile.ID,
		DisplayName:  strings.TrimSpace(profile.DisplayName),
		Email:        strings.ToLower(strings.TrimSpace(profile.Email)),
		PhoneNumber:  strings.TrimSpace(profile.PhoneNumber),
		PhotoURL:     strings.TrimSpace(profile.PhotoURL),
		Roles:        normaliseRoles(profile.Roles),
		IsActive:     profile.IsActive,
		ProviderData: fromDomainProviders(profile.ProviderData),
		CreatedAt:    profile.CreatedAt,
		UpdatedAt:    now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.Roles == nil {
		doc.Roles = []string{}
	}
	return doc
}

// Federated sign-in records arrive from Firebase with whatever whitespace the
// identity provider sent; both mapping directions normalise through the same
// trimmed value type.
func toDomainProviders(docs []providerDocument) []domain.AuthProvider {
	if len(docs) == 0 {
		return nil
	}
	providers := make([]domain.AuthProvider, len(docs))
	for i, p := range docs {
		providers[i] = trimmedProvider(domain.AuthProvider(p))
	}
	return providers
}

func fromDomainProviders(providers []domain.AuthProvider) []providerDocument {
	if len(providers) == 0 {
		return nil
	}
	docs := make([]providerDocument, len(providers))
	for i, p := range providers {
		docs[i] = providerDocument(trimmedProvider(p))
	}
	return docs
}

func trimmedProvider(p domain.AuthProvider) domain.AuthProvider {
	return domain.AuthProvider{
		ProviderID:  strings.TrimSpace(p.ProviderID),
		UID:         strings.TrimSpace(p.UID),
		Email:       strings.TrimSpace(p.Email),
		DisplayName: strings.TrimSpace(p.DisplayName),
		PhoneNumber: strings.TrimSpace(p.PhoneNumber),
		PhotoURL:    strings.TrimSpace(p.PhotoURL),
	}
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// normaliseRoles lowercases, dedupes, and sorts role names so staff checks
// compare stable values regardless of how the roles were granted.
func normaliseRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

var _ repositories.UserRepository = (*UserRepository)(nil)
