package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/platform/auth"
	"github.com/solestride/api/internal/repositories"
)

const (
	maxSavedAddresses = 10
	maxFavorites      = 200

	auditActionProfileUpdate = "user.profile.update"
	auditActionAddressUpsert = "user.address.upsert"
	auditActionAddressDelete = "user.address.delete"
)

var (
	errUserIDRequired     = errors.New("user: user id is required")
	errAddressIDRequired  = errors.New("user: address id is required")
	addressPhonePattern   = regexp.MustCompile(`^(0|\+84)[0-9]{8,10}$`)
	addressAreaCodeRegexp = regexp.MustCompile(`^[0-9]{1,9}$`)
	displayNamePattern    = regexp.MustCompile(`^[\p{L}\p{N}\p{Zs}.,'\-]{1,80}$`)
)

var (
	// ErrUserNotFound indicates the user or owned resource does not exist.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserInvalidInput indicates a profile or address field failed validation.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserAddressLimit indicates the address book is full.
	ErrUserAddressLimit = errors.New("user: address limit reached")
	// ErrUserFavoriteLimit indicates the wishlist is full.
	ErrUserFavoriteLimit = errors.New("user: favorite limit reached")
	// ErrUserUnavailable indicates a backing dependency could not be reached.
	ErrUserUnavailable = errors.New("user: unavailable")
)

// UserServiceDeps bundles the dependencies required to construct a user service instance.
type UserServiceDeps struct {
	Users     repositories.UserRepository
	Addresses repositories.AddressRepository
	Favorites repositories.FavoriteRepository
	Audit     AuditLogService
	Firebase  auth.UserGetter
	Clock     func() time.Time
}

type userService struct {
	users     repositories.UserRepository
	addresses repositories.AddressRepository
	favorites repositories.FavoriteRepository
	audit     AuditLogService
	firebase  auth.UserGetter
	clock     func() time.Time
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("user service: address repository is required")
	}
	if deps.Favorites == nil {
		return nil, errors.New("user service: favorite repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &userService{
		users:     deps.Users,
		addresses: deps.Addresses,
		favorites: deps.Favorites,
		audit:     deps.Audit,
		firebase:  deps.Firebase,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return UserProfile{}, fmt.Errorf("%w: %v", ErrUserInvalidInput, errUserIDRequired)
	}

	profile, err := s.users.FindByID(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) && s.firebase != nil {
			return s.seedFromFirebase(ctx, uid)
		}
		return UserProfile{}, s.mapUserError(err)
	}
	return profile, nil
}

func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return UserProfile{}, fmt.Errorf("%w: %v", ErrUserInvalidInput, errUserIDRequired)
	}
	if cmd.DisplayName == nil && cmd.PhoneNumber == nil {
		return UserProfile{}, fmt.Errorf("%w: nothing to update", ErrUserInvalidInput)
	}

	profile, err := s.GetProfile(ctx, uid)
	if err != nil {
		return UserProfile{}, err
	}

	if cmd.DisplayName != nil {
		name := strings.TrimSpace(*cmd.DisplayName)
		if !displayNamePattern.MatchString(name) {
			return UserProfile{}, fmt.Errorf("%w: invalid display name", ErrUserInvalidInput)
		}
		profile.DisplayName = name
	}
	if cmd.PhoneNumber != nil {
		phone := strings.TrimSpace(*cmd.PhoneNumber)
		if phone != "" && !addressPhonePattern.MatchString(phone) {
			return UserProfile{}, fmt.Errorf("%w: invalid phone number", ErrUserInvalidInput)
		}
		profile.PhoneNumber = phone
	}
	profile.UpdatedAt = s.clock()

	updated, err := s.users.UpdateProfile(ctx, profile)
	if err != nil {
		return UserProfile{}, s.mapUserError(err)
	}

	s.recordUserAudit(ctx, cmd.ActorID, auditActionProfileUpdate, "users/"+uid)
	return updated, nil
}

func (s *userService) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: %v", ErrUserInvalidInput, errUserIDRequired)
	}
	addresses, err := s.addresses.List(ctx, uid)
	if err != nil {
		return nil, s.mapUserError(err)
	}
	return addresses, nil
}

func (s *userService) UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Address{}, fmt.Errorf("%w: %v", ErrUserInvalidInput, errUserIDRequired)
	}
	if err := validateAddress(cmd.Address); err != nil {
		return Address{}, err
	}

	existing, err := s.addresses.List(ctx, uid)
	if err != nil {
		return Address{}, s.mapUserError(err)
	}

	var addressID *string
	if cmd.AddressID != nil && strings.TrimSpace(*cmd.AddressID) != "" {
		trimmed := strings.TrimSpace(*cmd.AddressID)
		found := false
		for _, addr := range existing {
			if addr.ID == trimmed {
				found = true
				break
			}
		}
		if !found {
			return Address{}, fmt.Errorf("%w: address %s", ErrUserNotFound, trimmed)
		}
		addressID = &trimmed
	} else if len(existing) >= maxSavedAddresses {
		return Address{}, fmt.Errorf("%w: at most %d addresses", ErrUserAddressLimit, maxSavedAddresses)
	}

	now := s.clock()
	address := cmd.Address
	address.UpdatedAt = now
	if addressID == nil {
		address.CreatedAt = now
	}
	// The first saved address becomes the default automatically.
	address.IsDefault = cmd.IsDefault || len(existing) == 0

	saved, err := s.addresses.Upsert(ctx, uid, addressID, address)
	if err != nil {
		return Address{}, s.mapUserError(err)
	}
	if saved.IsDefault {
		if _, err := s.addresses.SetDefault(ctx, uid, saved.ID); err != nil {
			return Address{}, s.mapUserError(err)
		}
	}

	s.recordUserAudit(ctx, uid, auditActionAddressUpsert, "users/"+uid+"/addresses/"+saved.ID)
	return saved, nil
}

func (s *userService) DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error {
	uid := strings.TrimSpace(cmd.UserID)
	addressID := strings.TrimSpace(cmd.AddressID)
	if uid == "" {
		return fmt.Errorf("%w: %v", ErrUserInvalidInput, errUserIDRequired)
	}
	if addressID == "" {
		return fmt.Errorf("%w: %v", ErrUserInvalidInput, errAddressIDRequired)
	}

	address, err := s.addresses.Get(ctx, uid, addressID)
	if err != nil {
		return s.mapUserError(err)
	}

	if err := s.addresses.Delete(ctx, uid, addressID); err != nil {
		return s.mapUserError(err)
	}

	// Deleting the default promotes the most recently updated survivor.
	if address.IsDefault {
		remaining, err := s.addresses.List(ctx, uid)
		if err == nil && len(remaining) > 0 {
			next := remaining[0]
			for _, addr := range remaining[1:] {
				if addr.UpdatedAt.After(next.UpdatedAt) {
					next = addr
				}
			}
			_, _ = s.addresses.SetDefault(ctx, uid, next.ID)
		}
	}

	s.recordUserAudit(ctx, uid, auditActionAddressDelete, "users/"+uid+"/addresses/"+addressID)
	return nil
}

func (s *userService) ListFavorites(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Favorite], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[Favorite]{}, fmt.Errorf("%w: %v", ErrUserInvalidInput, errUserIDRequired)
	}
	page, err := s.favorites.List(ctx, uid, pager)
	if err != nil {
		return domain.CursorPage[Favorite]{}, s.mapUserError(err)
	}
	return page, nil
}

func (s *userService) ToggleFavorite(ctx context.Context, cmd ToggleFavoriteCommand) error {
	uid := strings.TrimSpace(cmd.UserID)
	shoeID := strings.TrimSpace(cmd.ShoeID)
	if uid == "" || shoeID == "" {
		return fmt.Errorf("%w: user id and shoe id are required", ErrUserInvalidInput)
	}

	if cmd.Mark {
		if _, err := s.favorites.Put(ctx, uid, shoeID, s.clock(), maxFavorites); err != nil {
			if isRepoConflict(err) {
				return fmt.Errorf("%w: at most %d favorites", ErrUserFavoriteLimit, maxFavorites)
			}
			return s.mapUserError(err)
		}
		return nil
	}

	if err := s.favorites.Delete(ctx, uid, shoeID); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.mapUserError(err)
	}
	return nil
}

// seedFromFirebase materialises a first-login profile from the identity
// provider record.
func (s *userService) seedFromFirebase(ctx context.Context, uid string) (UserProfile, error) {
	record, err := s.firebase.GetUser(ctx, uid)
	if err != nil {
		return UserProfile{}, fmt.Errorf("%w: %v", ErrUserNotFound, err)
	}

	now := s.clock()
	profile := domain.UserProfile{
		ID:           uid,
		DisplayName:  record.DisplayName,
		Email:        record.Email,
		PhoneNumber:  record.PhoneNumber,
		PhotoURL:     record.PhotoURL,
		IsActive:     !record.Disabled,
		ProviderData: providerData(record),
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSyncTime: now,
	}

	saved, err := s.users.UpdateProfile(ctx, profile)
	if err != nil {
		return UserProfile{}, s.mapUserError(err)
	}
	return saved, nil
}

func providerData(record *firebaseauth.UserRecord) []domain.AuthProvider {
	if record == nil || len(record.ProviderUserInfo) == 0 {
		return nil
	}
	providers := make([]domain.AuthProvider, 0, len(record.ProviderUserInfo))
	for _, info := range record.ProviderUserInfo {
		if info == nil {
			continue
		}
		providers = append(providers, domain.AuthProvider{
			ProviderID:  info.ProviderID,
			UID:         info.UID,
			Email:       info.Email,
			DisplayName: info.DisplayName,
			PhoneNumber: info.PhoneNumber,
			PhotoURL:    info.PhotoURL,
		})
	}
	return providers
}

func validateAddress(addr Address) error {
	if strings.TrimSpace(addr.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrUserInvalidInput)
	}
	if !addressPhonePattern.MatchString(strings.TrimSpace(addr.Phone)) {
		return fmt.Errorf("%w: invalid phone number", ErrUserInvalidInput)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: address line is required", ErrUserInvalidInput)
	}
	for field, code := range map[string]string{
		"ward":     addr.WardCode,
		"district": addr.DistrictCode,
		"province": addr.ProvinceCode,
	} {
		if !addressAreaCodeRegexp.MatchString(strings.TrimSpace(code)) {
			return fmt.Errorf("%w: invalid %s code", ErrUserInvalidInput, field)
		}
	}
	return nil
}

func (s *userService) recordUserAudit(ctx context.Context, actorID, action, target string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      strings.TrimSpace(actorID),
		ActorType:  "user",
		Action:     action,
		TargetRef:  target,
		OccurredAt: s.clock(),
	})
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func (s *userService) mapUserError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrUserNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUserUnavailable, err)
		}
	}
	return err
}
