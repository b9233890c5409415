package services

import (
	"context"
	"errors"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	domain "github.com/solestride/api/internal/domain"
)

type stubUserRepo struct {
	findFn   func(context.Context, string) (domain.UserProfile, error)
	updateFn func(context.Context, domain.UserProfile) (domain.UserProfile, error)
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if s.findFn != nil {
		return s.findFn(ctx, userID)
	}
	return domain.UserProfile{}, errors.New("not implemented")
}

func (s *stubUserRepo) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, profile)
	}
	return profile, nil
}

type stubFavoriteRepo struct {
	listFn   func(context.Context, string, domain.Pagination) (domain.CursorPage[domain.Favorite], error)
	putFn    func(context.Context, string, string, time.Time, int) (bool, error)
	deleteFn func(context.Context, string, string) error
}

func (s *stubFavoriteRepo) List(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Favorite], error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, pager)
	}
	return domain.CursorPage[domain.Favorite]{}, nil
}

func (s *stubFavoriteRepo) Put(ctx context.Context, userID string, shoeID string, addedAt time.Time, limit int) (bool, error) {
	if s.putFn != nil {
		return s.putFn(ctx, userID, shoeID, addedAt, limit)
	}
	return true, nil
}

func (s *stubFavoriteRepo) Delete(ctx context.Context, userID string, shoeID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID, shoeID)
	}
	return nil
}

type stubUserGetter struct {
	getFn func(context.Context, string) (*firebaseauth.UserRecord, error)
}

func (s *stubUserGetter) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	if s.getFn != nil {
		return s.getFn(ctx, uid)
	}
	return nil, errors.New("not implemented")
}

func testProfile(userID string) domain.UserProfile {
	created := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	return domain.UserProfile{
		ID:          userID,
		DisplayName: "Linh Tran",
		Email:       "linh@example.com",
		PhoneNumber: "0912345678",
		IsActive:    true,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func testAddress(id string, isDefault bool) domain.Address {
	return domain.Address{
		ID:           id,
		Recipient:    "Linh Tran",
		Phone:        "0912345678",
		Line1:        "12 Ly Thuong Kiet",
		WardCode:     "20308",
		DistrictCode: "1444",
		ProvinceCode: "201",
		IsDefault:    isDefault,
		CreatedAt:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestUserService(t *testing.T, deps UserServiceDeps) UserService {
	t.Helper()
	if deps.Users == nil {
		deps.Users = &stubUserRepo{}
	}
	if deps.Addresses == nil {
		deps.Addresses = &stubAddressRepo{}
	}
	if deps.Favorites == nil {
		deps.Favorites = &stubFavoriteRepo{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time {
			return time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
		}
	}
	svc, err := NewUserService(deps)
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return svc
}

func TestUserServiceGetProfile(t *testing.T) {
	svc := newTestUserService(t, UserServiceDeps{
		Users: &stubUserRepo{
			findFn: func(_ context.Context, userID string) (domain.UserProfile, error) {
				if userID != "user_1" {
					t.Fatalf("unexpected user id %q", userID)
				}
				return testProfile(userID), nil
			},
		},
	})

	profile, err := svc.GetProfile(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.DisplayName != "Linh Tran" {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	if _, err := svc.GetProfile(context.Background(), "  "); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input for blank user id, got %v", err)
	}
}

func TestUserServiceGetProfileSeedsFromFirebase(t *testing.T) {
	var saved domain.UserProfile
	svc := newTestUserService(t, UserServiceDeps{
		Users: &stubUserRepo{
			findFn: func(context.Context, string) (domain.UserProfile, error) {
				return domain.UserProfile{}, notFoundRepoError{}
			},
			updateFn: func(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
				saved = profile
				return profile, nil
			},
		},
		Firebase: &stubUserGetter{
			getFn: func(_ context.Context, uid string) (*firebaseauth.UserRecord, error) {
				return &firebaseauth.UserRecord{
					UserInfo: &firebaseauth.UserInfo{
						UID:         uid,
						DisplayName: "Minh Nguyen",
						Email:       "minh@example.com",
						PhotoURL:    "https://cdn.example.com/minh.png",
					},
					ProviderUserInfo: []*firebaseauth.UserInfo{
						{ProviderID: "google.com", UID: "g-123", Email: "minh@example.com"},
					},
				}, nil
			},
		},
	})

	profile, err := svc.GetProfile(context.Background(), "user_new")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.ID != "user_new" || profile.Email != "minh@example.com" {
		t.Fatalf("unexpected seeded profile: %+v", profile)
	}
	if !profile.IsActive {
		t.Fatal("expected seeded profile to be active")
	}
	if len(saved.ProviderData) != 1 || saved.ProviderData[0].ProviderID != "google.com" {
		t.Fatalf("unexpected provider data: %+v", saved.ProviderData)
	}
	if saved.LastSyncTime.IsZero() {
		t.Fatal("expected last sync time to be stamped")
	}
}

func TestUserServiceGetProfileMissingEverywhere(t *testing.T) {
	svc := newTestUserService(t, UserServiceDeps{
		Users: &stubUserRepo{
			findFn: func(context.Context, string) (domain.UserProfile, error) {
				return domain.UserProfile{}, notFoundRepoError{}
			},
		},
		Firebase: &stubUserGetter{
			getFn: func(context.Context, string) (*firebaseauth.UserRecord, error) {
				return nil, errors.New("no such user")
			},
		},
	})

	if _, err := svc.GetProfile(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserServiceUpdateProfile(t *testing.T) {
	var updated domain.UserProfile
	svc := newTestUserService(t, UserServiceDeps{
		Users: &stubUserRepo{
			findFn: func(_ context.Context, userID string) (domain.UserProfile, error) {
				return testProfile(userID), nil
			},
			updateFn: func(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
				updated = profile
				return profile, nil
			},
		},
	})

	name := "  Linh T. Tran "
	phone := "+84912345678"
	profile, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{
		UserID:      "user_1",
		ActorID:     "user_1",
		DisplayName: &name,
		PhoneNumber: &phone,
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if profile.DisplayName != "Linh T. Tran" {
		t.Fatalf("expected trimmed display name, got %q", profile.DisplayName)
	}
	if profile.PhoneNumber != "+84912345678" {
		t.Fatalf("unexpected phone: %q", profile.PhoneNumber)
	}
	if !updated.UpdatedAt.Equal(time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected updated timestamp, got %v", updated.UpdatedAt)
	}
}

func TestUserServiceUpdateProfileValidation(t *testing.T) {
	svc := newTestUserService(t, UserServiceDeps{
		Users: &stubUserRepo{
			findFn: func(_ context.Context, userID string) (domain.UserProfile, error) {
				return testProfile(userID), nil
			},
		},
	})

	if _, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "user_1"}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input when nothing to update, got %v", err)
	}

	bad := "<script>alert(1)</script>"
	if _, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "user_1", DisplayName: &bad}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input for display name, got %v", err)
	}

	badPhone := "123"
	if _, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "user_1", PhoneNumber: &badPhone}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input for phone, got %v", err)
	}
}

func TestUserServiceUpsertAddressFirstBecomesDefault(t *testing.T) {
	var setDefaultID string
	svc := newTestUserService(t, UserServiceDeps{
		Addresses: &stubAddressRepo{
			listFn: func(context.Context, string) ([]domain.Address, error) {
				return nil, nil
			},
			upsertFn: func(_ context.Context, _ string, addressID *string, addr domain.Address) (domain.Address, error) {
				if addressID != nil {
					t.Fatalf("expected insert, got update of %q", *addressID)
				}
				addr.ID = "addr_1"
				return addr, nil
			},
			setDefaultFn: func(_ context.Context, _ string, addressID string) (domain.Address, error) {
				setDefaultID = addressID
				return testAddress(addressID, true), nil
			},
		},
	})

	addr := testAddress("", false)
	addr.ID = ""
	saved, err := svc.UpsertAddress(context.Background(), UpsertAddressCommand{UserID: "user_1", Address: addr})
	if err != nil {
		t.Fatalf("UpsertAddress: %v", err)
	}
	if !saved.IsDefault {
		t.Fatal("expected first address to become default")
	}
	if setDefaultID != "addr_1" {
		t.Fatalf("expected SetDefault for addr_1, got %q", setDefaultID)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be stamped: %+v", saved)
	}
}

func TestUserServiceUpsertAddressValidation(t *testing.T) {
	svc := newTestUserService(t, UserServiceDeps{})

	cases := []struct {
		name   string
		mutate func(*domain.Address)
	}{
		{"missing recipient", func(a *domain.Address) { a.Recipient = "" }},
		{"bad phone", func(a *domain.Address) { a.Phone = "abc" }},
		{"missing line", func(a *domain.Address) { a.Line1 = " " }},
		{"bad ward code", func(a *domain.Address) { a.WardCode = "ward-x" }},
		{"missing district", func(a *domain.Address) { a.DistrictCode = "" }},
	}
	for _, tc := range cases {
		addr := testAddress("", false)
		tc.mutate(&addr)
		_, err := svc.UpsertAddress(context.Background(), UpsertAddressCommand{UserID: "user_1", Address: addr})
		if !errors.Is(err, ErrUserInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", tc.name, err)
		}
	}
}

func TestUserServiceUpsertAddressLimit(t *testing.T) {
	full := make([]domain.Address, maxSavedAddresses)
	for i := range full {
		full[i] = testAddress("addr_existing", i == 0)
	}
	svc := newTestUserService(t, UserServiceDeps{
		Addresses: &stubAddressRepo{
			listFn: func(context.Context, string) ([]domain.Address, error) {
				return full, nil
			},
		},
	})

	_, err := svc.UpsertAddress(context.Background(), UpsertAddressCommand{UserID: "user_1", Address: testAddress("", false)})
	if !errors.Is(err, ErrUserAddressLimit) {
		t.Fatalf("expected address limit error, got %v", err)
	}
}

func TestUserServiceUpsertAddressUnknownID(t *testing.T) {
	svc := newTestUserService(t, UserServiceDeps{
		Addresses: &stubAddressRepo{
			listFn: func(context.Context, string) ([]domain.Address, error) {
				return []domain.Address{testAddress("addr_1", true)}, nil
			},
		},
	})

	missing := "addr_missing"
	_, err := svc.UpsertAddress(context.Background(), UpsertAddressCommand{
		UserID:    "user_1",
		AddressID: &missing,
		Address:   testAddress("addr_missing", false),
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found for unknown address id, got %v", err)
	}
}

func TestUserServiceDeleteAddressPromotesDefault(t *testing.T) {
	older := testAddress("addr_old", false)
	older.UpdatedAt = time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	newer := testAddress("addr_new", false)
	newer.UpdatedAt = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

	var promoted string
	svc := newTestUserService(t, UserServiceDeps{
		Addresses: &stubAddressRepo{
			getFn: func(_ context.Context, _ string, addressID string) (domain.Address, error) {
				return testAddress(addressID, true), nil
			},
			deleteFn: func(context.Context, string, string) error {
				return nil
			},
			listFn: func(context.Context, string) ([]domain.Address, error) {
				return []domain.Address{older, newer}, nil
			},
			setDefaultFn: func(_ context.Context, _ string, addressID string) (domain.Address, error) {
				promoted = addressID
				return testAddress(addressID, true), nil
			},
		},
	})

	if err := svc.DeleteAddress(context.Background(), DeleteAddressCommand{UserID: "user_1", AddressID: "addr_default"}); err != nil {
		t.Fatalf("DeleteAddress: %v", err)
	}
	if promoted != "addr_new" {
		t.Fatalf("expected most recently updated address promoted, got %q", promoted)
	}
}

func TestUserServiceDeleteAddressMissing(t *testing.T) {
	svc := newTestUserService(t, UserServiceDeps{
		Addresses: &stubAddressRepo{
			getFn: func(context.Context, string, string) (domain.Address, error) {
				return domain.Address{}, notFoundRepoError{}
			},
		},
	})

	err := svc.DeleteAddress(context.Background(), DeleteAddressCommand{UserID: "user_1", AddressID: "addr_x"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserServiceToggleFavorite(t *testing.T) {
	var putShoe string
	var deleted string
	repo := &stubFavoriteRepo{
		putFn: func(_ context.Context, _ string, shoeID string, addedAt time.Time, limit int) (bool, error) {
			putShoe = shoeID
			if limit != maxFavorites {
				t.Fatalf("unexpected limit %d", limit)
			}
			if addedAt.IsZero() {
				t.Fatal("expected added-at timestamp")
			}
			return true, nil
		},
		deleteFn: func(_ context.Context, _ string, shoeID string) error {
			deleted = shoeID
			return nil
		},
	}
	svc := newTestUserService(t, UserServiceDeps{Favorites: repo})

	if err := svc.ToggleFavorite(context.Background(), ToggleFavoriteCommand{UserID: "user_1", ShoeID: "shoe_runner", Mark: true}); err != nil {
		t.Fatalf("ToggleFavorite mark: %v", err)
	}
	if putShoe != "shoe_runner" {
		t.Fatalf("expected put for shoe_runner, got %q", putShoe)
	}

	if err := svc.ToggleFavorite(context.Background(), ToggleFavoriteCommand{UserID: "user_1", ShoeID: "shoe_runner"}); err != nil {
		t.Fatalf("ToggleFavorite unmark: %v", err)
	}
	if deleted != "shoe_runner" {
		t.Fatalf("expected delete for shoe_runner, got %q", deleted)
	}
}

func TestUserServiceToggleFavoriteLimit(t *testing.T) {
	svc := newTestUserService(t, UserServiceDeps{
		Favorites: &stubFavoriteRepo{
			putFn: func(context.Context, string, string, time.Time, int) (bool, error) {
				return false, conflictRepoError{}
			},
		},
	})

	err := svc.ToggleFavorite(context.Background(), ToggleFavoriteCommand{UserID: "user_1", ShoeID: "shoe_runner", Mark: true})
	if !errors.Is(err, ErrUserFavoriteLimit) {
		t.Fatalf("expected favorite limit error, got %v", err)
	}
}

func TestUserServiceToggleFavoriteUnmarkMissingIsNoop(t *testing.T) {
	svc := newTestUserService(t, UserServiceDeps{
		Favorites: &stubFavoriteRepo{
			deleteFn: func(context.Context, string, string) error {
				return notFoundRepoError{}
			},
		},
	})

	if err := svc.ToggleFavorite(context.Background(), ToggleFavoriteCommand{UserID: "user_1", ShoeID: "shoe_x"}); err != nil {
		t.Fatalf("expected unmarking a missing favorite to be a no-op, got %v", err)
	}
}

func TestUserServiceListFavorites(t *testing.T) {
	svc := newTestUserService(t, UserServiceDeps{
		Favorites: &stubFavoriteRepo{
			listFn: func(_ context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Favorite], error) {
				if userID != "user_1" {
					t.Fatalf("unexpected user id %q", userID)
				}
				return domain.CursorPage[domain.Favorite]{
					Items: []domain.Favorite{{ShoeID: "shoe_runner"}},
				}, nil
			},
		},
	})

	page, err := svc.ListFavorites(context.Background(), "user_1", domain.Pagination{PageSize: 20})
	if err != nil {
		t.Fatalf("ListFavorites: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ShoeID != "shoe_runner" {
		t.Fatalf("unexpected page: %+v", page)
	}
}
