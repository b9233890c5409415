package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/platform/auth"
	"github.com/solestride/api/internal/services"
)

type stubUserService struct {
	getProfileFn    func(context.Context, string) (services.UserProfile, error)
	updateProfileFn func(context.Context, services.UpdateProfileCommand) (services.UserProfile, error)
	listAddressesFn func(context.Context, string) ([]services.Address, error)
	upsertAddressFn func(context.Context, services.UpsertAddressCommand) (services.Address, error)
	deleteAddressFn func(context.Context, services.DeleteAddressCommand) error
	listFavoritesFn func(context.Context, string, domain.Pagination) (domain.CursorPage[services.Favorite], error)
	toggleFn        func(context.Context, services.ToggleFavoriteCommand) error
}

func (s *stubUserService) GetProfile(ctx context.Context, userID string) (services.UserProfile, error) {
	if s.getProfileFn != nil {
		return s.getProfileFn(ctx, userID)
	}
	return services.UserProfile{}, errors.New("not implemented")
}

func (s *stubUserService) UpdateProfile(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
	if s.updateProfileFn != nil {
		return s.updateProfileFn(ctx, cmd)
	}
	return services.UserProfile{}, errors.New("not implemented")
}

func (s *stubUserService) ListAddresses(ctx context.Context, userID string) ([]services.Address, error) {
	if s.listAddressesFn != nil {
		return s.listAddressesFn(ctx, userID)
	}
	return nil, errors.New("not implemented")
}

func (s *stubUserService) UpsertAddress(ctx context.Context, cmd services.UpsertAddressCommand) (services.Address, error) {
	if s.upsertAddressFn != nil {
		return s.upsertAddressFn(ctx, cmd)
	}
	return services.Address{}, errors.New("not implemented")
}

func (s *stubUserService) DeleteAddress(ctx context.Context, cmd services.DeleteAddressCommand) error {
	if s.deleteAddressFn != nil {
		return s.deleteAddressFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func (s *stubUserService) ListFavorites(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[services.Favorite], error) {
	if s.listFavoritesFn != nil {
		return s.listFavoritesFn(ctx, userID, pager)
	}
	return domain.CursorPage[services.Favorite]{}, errors.New("not implemented")
}

func (s *stubUserService) ToggleFavorite(ctx context.Context, cmd services.ToggleFavoriteCommand) error {
	if s.toggleFn != nil {
		return s.toggleFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func TestMeHandlersGetProfile(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	users := &stubUserService{
		getProfileFn: func(_ context.Context, userID string) (services.UserProfile, error) {
			if userID != "user-1" {
				return services.UserProfile{}, services.ErrUserNotFound
			}
			return services.UserProfile{
				ID:          "user-1",
				DisplayName: "Nguyen Van A",
				Email:       "a@example.com",
				Roles:       []string{"user"},
				IsActive:    true,
				ProviderData: []domain.AuthProvider{
					{ProviderID: "google.com", UID: "g-1", Email: "a@example.com"},
				},
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		},
	}
	handlers := NewMeHandlers(nil, users, nil)

	req := authedRequest(http.MethodGet, "/me", nil, &auth.Identity{UID: "user-1"})
	rec := httptest.NewRecorder()
	handlers.getProfile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp meResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Profile.ID != "user-1" || !resp.Profile.IsActive {
		t.Fatalf("unexpected profile %+v", resp.Profile)
	}
	if len(resp.Profile.Providers) != 1 || resp.Profile.Providers[0].ProviderID != "google.com" {
		t.Fatalf("unexpected providers %+v", resp.Profile.Providers)
	}
	if resp.Profile.CreatedAt != now.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected created_at %q", resp.Profile.CreatedAt)
	}
}

func TestMeHandlersGetProfileUnauthenticated(t *testing.T) {
	handlers := NewMeHandlers(nil, &stubUserService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	handlers.getProfile(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMeHandlersUpdateProfile(t *testing.T) {
	var captured services.UpdateProfileCommand
	users := &stubUserService{
		updateProfileFn: func(_ context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
			captured = cmd
			return services.UserProfile{
				ID:          cmd.UserID,
				DisplayName: *cmd.DisplayName,
				IsActive:    true,
			}, nil
		},
	}
	handlers := NewMeHandlers(nil, users, nil)

	body := []byte(`{"display_name":"New Name"}`)
	req := authedRequest(http.MethodPut, "/me", body, &auth.Identity{UID: "user-1"})
	rec := httptest.NewRecorder()
	handlers.updateProfile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.UserID != "user-1" || captured.ActorID != "user-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.DisplayName == nil || *captured.DisplayName != "New Name" {
		t.Fatalf("unexpected display name %+v", captured.DisplayName)
	}
	if captured.PhoneNumber != nil {
		t.Fatalf("phone number should stay unset, got %+v", captured.PhoneNumber)
	}
}

func TestMeHandlersUpdateProfileNoFields(t *testing.T) {
	handlers := NewMeHandlers(nil, &stubUserService{}, nil)

	req := authedRequest(http.MethodPut, "/me", []byte(`{}`), &auth.Identity{UID: "user-1"})
	rec := httptest.NewRecorder()
	handlers.updateProfile(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestMeHandlersSaveAddress(t *testing.T) {
	var captured services.UpsertAddressCommand
	users := &stubUserService{
		upsertAddressFn: func(_ context.Context, cmd services.UpsertAddressCommand) (services.Address, error) {
			captured = cmd
			addr := cmd.Address
			addr.ID = "addr-1"
			if cmd.AddressID != nil {
				addr.ID = *cmd.AddressID
			}
			addr.IsDefault = cmd.IsDefault
			return addr, nil
		},
	}
	handlers := NewMeHandlers(nil, users, nil)

	body := []byte(`{"recipient":" Nguyen Van A ","phone":"0900000001","line1":"12 Le Loi","ward_code":"26734","district_code":"760","province_code":"79","is_default":true}`)

	t.Run("create", func(t *testing.T) {
		req := authedRequest(http.MethodPost, "/me/addresses", body, &auth.Identity{UID: "user-1"})
		rec := httptest.NewRecorder()
		handlers.createAddress(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
		}
		if captured.UserID != "user-1" || captured.AddressID != nil {
			t.Fatalf("unexpected command %+v", captured)
		}
		if captured.Address.Recipient != "Nguyen Van A" {
			t.Fatalf("recipient not trimmed: %q", captured.Address.Recipient)
		}
		if !captured.IsDefault {
			t.Fatal("expected default flag to carry through")
		}
	})

	t.Run("update", func(t *testing.T) {
		router := chi.NewRouter()
		router.Put("/me/addresses/{addressID}", handlers.updateAddress)

		req := authedRequest(http.MethodPut, "/me/addresses/addr-7", body, &auth.Identity{UID: "user-1"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if captured.AddressID == nil || *captured.AddressID != "addr-7" {
			t.Fatalf("unexpected address id %+v", captured.AddressID)
		}
		var resp addressResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Address.ID != "addr-7" {
			t.Fatalf("unexpected address payload %+v", resp.Address)
		}
	})
}

func TestMeHandlersDeleteAddress(t *testing.T) {
	var captured services.DeleteAddressCommand
	users := &stubUserService{
		deleteAddressFn: func(_ context.Context, cmd services.DeleteAddressCommand) error {
			captured = cmd
			return nil
		},
	}
	handlers := NewMeHandlers(nil, users, nil)

	router := chi.NewRouter()
	router.Delete("/me/addresses/{addressID}", handlers.deleteAddress)

	req := authedRequest(http.MethodDelete, "/me/addresses/addr-3", nil, &auth.Identity{UID: "user-1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.UserID != "user-1" || captured.AddressID != "addr-3" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestMeHandlersListFavorites(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	users := &stubUserService{
		listFavoritesFn: func(_ context.Context, userID string, pager domain.Pagination) (domain.CursorPage[services.Favorite], error) {
			if pager.PageSize != 20 {
				t.Fatalf("unexpected page size %d", pager.PageSize)
			}
			return domain.CursorPage[services.Favorite]{
				Items:         []services.Favorite{{ShoeID: "shoe-1", AddedAt: now}},
				NextPageToken: "cursor-2",
			}, nil
		},
	}
	handlers := NewMeHandlers(nil, users, nil)

	req := authedRequest(http.MethodGet, "/me/favorites?page_size=20", nil, &auth.Identity{UID: "user-1"})
	rec := httptest.NewRecorder()
	handlers.listFavorites(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp favoriteListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ShoeID != "shoe-1" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
	if resp.NextPageToken != "cursor-2" {
		t.Fatalf("unexpected token %q", resp.NextPageToken)
	}
}

func TestMeHandlersToggleFavorite(t *testing.T) {
	var captured services.ToggleFavoriteCommand
	users := &stubUserService{
		toggleFn: func(_ context.Context, cmd services.ToggleFavoriteCommand) error {
			captured = cmd
			return nil
		},
	}
	handlers := NewMeHandlers(nil, users, nil)

	router := chi.NewRouter()
	router.Put("/me/favorites/{shoeID}", handlers.addFavorite)
	router.Delete("/me/favorites/{shoeID}", handlers.removeFavorite)

	req := authedRequest(http.MethodPut, "/me/favorites/shoe-9", nil, &auth.Identity{UID: "user-1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on add, got %d", rec.Code)
	}
	if captured.ShoeID != "shoe-9" || !captured.Mark {
		t.Fatalf("unexpected add command %+v", captured)
	}

	req = authedRequest(http.MethodDelete, "/me/favorites/shoe-9", nil, &auth.Identity{UID: "user-1"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on remove, got %d", rec.Code)
	}
	if captured.Mark {
		t.Fatalf("unexpected remove command %+v", captured)
	}
}

func TestMeHandlersFavoriteLimit(t *testing.T) {
	users := &stubUserService{
		toggleFn: func(context.Context, services.ToggleFavoriteCommand) error {
			return services.ErrUserFavoriteLimit
		},
	}
	handlers := NewMeHandlers(nil, users, nil)

	router := chi.NewRouter()
	router.Put("/me/favorites/{shoeID}", handlers.addFavorite)

	req := authedRequest(http.MethodPut, "/me/favorites/shoe-9", nil, &auth.Identity{UID: "user-1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "favorite_limit_reached" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}

func TestMeHandlersCreateReview(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	var captured services.CreateReviewCommand
	reviews := &stubReviewService{
		createFn: func(_ context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
			captured = cmd
			return services.Review{
				ID:        "rev-1",
				ShoeID:    cmd.ShoeID,
				UserID:    cmd.UserID,
				OrderID:   "order-1",
				Rating:    cmd.Rating,
				Comment:   cmd.Comment,
				CreatedAt: now,
			}, nil
		},
	}
	handlers := NewMeHandlers(nil, nil, reviews)

	body := []byte(`{"shoe_id":"shoe-1","rating":5,"comment":"great fit"}`)
	req := authedRequest(http.MethodPost, "/me/reviews", body, &auth.Identity{UID: "user-1"})
	rec := httptest.NewRecorder()
	handlers.createReview(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.ShoeID != "shoe-1" || captured.UserID != "user-1" || captured.Rating != 5 {
		t.Fatalf("unexpected command %+v", captured)
	}
	var resp reviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Review.ID != "rev-1" || resp.Review.OrderID != "order-1" {
		t.Fatalf("unexpected review payload %+v", resp.Review)
	}
}

func TestMeHandlersCreateReviewNotVerified(t *testing.T) {
	reviews := &stubReviewService{
		createFn: func(context.Context, services.CreateReviewCommand) (services.Review, error) {
			return services.Review{}, services.ErrReviewNotVerified
		},
	}
	handlers := NewMeHandlers(nil, nil, reviews)

	body := []byte(`{"shoe_id":"shoe-1","rating":4}`)
	req := authedRequest(http.MethodPost, "/me/reviews", body, &auth.Identity{UID: "user-1"})
	rec := httptest.NewRecorder()
	handlers.createReview(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "review_not_verified" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}

func TestMeHandlersDeleteReviewPrincipal(t *testing.T) {
	var captured services.DeleteReviewCommand
	reviews := &stubReviewService{
		deleteFn: func(_ context.Context, cmd services.DeleteReviewCommand) error {
			captured = cmd
			return nil
		},
	}
	handlers := NewMeHandlers(nil, nil, reviews)

	router := chi.NewRouter()
	router.Delete("/me/reviews/{reviewID}", handlers.deleteReview)

	req := authedRequest(http.MethodDelete, "/me/reviews/rev-2", nil, &auth.Identity{
		UID:   "staff-1",
		Roles: []string{auth.RoleStaff},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.ReviewID != "rev-2" {
		t.Fatalf("unexpected review id %q", captured.ReviewID)
	}
	if captured.Principal.UserID != "staff-1" || !captured.Principal.Staff {
		t.Fatalf("unexpected principal %+v", captured.Principal)
	}
}
