package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/solestride/api/internal/platform/auth"
	"github.com/solestride/api/internal/platform/httpx"
	"github.com/solestride/api/internal/services"
)

const maxProfileBodySize = 64 * 1024

var errNoEditableFields = errors.New("no editable fields provided")

// MeHandlers exposes the authenticated user surface: profile, addresses,
// favorites, and the user's own reviews.
type MeHandlers struct {
	authn   *auth.Authenticator
	users   services.UserService
	reviews services.ReviewService
}

// NewMeHandlers constructs handlers enforcing Firebase authentication before
// invoking the user-facing services.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService, reviews services.ReviewService) *MeHandlers {
	return &MeHandlers{
		authn:   authn,
		users:   users,
		reviews: reviews,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Put("/", h.updateProfile)
	r.Route("/addresses", h.addressRoutes)
	r.Route("/favorites", h.favoriteRoutes)
	r.Route("/reviews", h.reviewRoutes)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	profile, err := h.users.GetProfile(ctx, identity.UID)
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, meResponse{Profile: buildProfilePayload(profile)})
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateProfileRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	if req.DisplayName == nil && req.PhoneNumber == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errNoEditableFields.Error(), http.StatusBadRequest))
		return
	}

	uid := strings.TrimSpace(identity.UID)
	profile, err := h.users.UpdateProfile(ctx, services.UpdateProfileCommand{
		UserID:      uid,
		ActorID:     uid,
		DisplayName: req.DisplayName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, meResponse{Profile: buildProfilePayload(profile)})
}

type meResponse struct {
	Profile profilePayload `json:"profile"`
}

type profilePayload struct {
	ID          string                `json:"id"`
	DisplayName string                `json:"display_name,omitempty"`
	Email       string                `json:"email,omitempty"`
	PhoneNumber string                `json:"phone_number,omitempty"`
	PhotoURL    string                `json:"photo_url,omitempty"`
	Roles       []string              `json:"roles,omitempty"`
	IsActive    bool                  `json:"is_active"`
	Providers   []authProviderPayload `json:"providers,omitempty"`
	CreatedAt   string                `json:"created_at,omitempty"`
	UpdatedAt   string                `json:"updated_at,omitempty"`
}

type authProviderPayload struct {
	ProviderID  string `json:"provider_id"`
	UID         string `json:"uid,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

func buildProfilePayload(profile services.UserProfile) profilePayload {
	providers := make([]authProviderPayload, 0, len(profile.ProviderData))
	for _, provider := range profile.ProviderData {
		providers = append(providers, authProviderPayload{
			ProviderID:  provider.ProviderID,
			UID:         provider.UID,
			Email:       provider.Email,
			DisplayName: provider.DisplayName,
			PhoneNumber: provider.PhoneNumber,
			PhotoURL:    provider.PhotoURL,
		})
	}
	if len(providers) == 0 {
		providers = nil
	}
	return profilePayload{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		PhoneNumber: profile.PhoneNumber,
		PhotoURL:    profile.PhotoURL,
		Roles:       cloneStringSlice(profile.Roles),
		IsActive:    profile.IsActive,
		Providers:   providers,
		CreatedAt:   formatTime(profile.CreatedAt),
		UpdatedAt:   formatTime(profile.UpdatedAt),
	}
}

func writeUserProfileError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserAddressLimit):
		httpx.WriteError(ctx, w, httpx.NewError("address_limit_reached", "address limit reached", http.StatusConflict))
	case errors.Is(err, services.ErrUserFavoriteLimit):
		httpx.WriteError(ctx, w, httpx.NewError("favorite_limit_reached", "favorite limit reached", http.StatusConflict))
	case errors.Is(err, services.ErrUserUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("profile_unavailable", "profile backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("profile_error", "failed to process profile request", http.StatusInternalServerError))
	}
}
