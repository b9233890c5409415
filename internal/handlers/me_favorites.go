package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/solestride/api/internal/platform/auth"
	"github.com/solestride/api/internal/platform/httpx"
	"github.com/solestride/api/internal/services"
)

func (h *MeHandlers) favoriteRoutes(r chi.Router) {
	r.Get("/", h.listFavorites)
	r.Put("/{shoeID}", h.addFavorite)
	r.Delete("/{shoeID}", h.removeFavorite)
}

func (h *MeHandlers) listFavorites(w http.ResponseWriter, r *http.Request) {
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

	pager, err := parseCursorParams(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.users.ListFavorites(ctx, strings.TrimSpace(identity.UID), pager)
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	items := make([]favoritePayload, 0, len(page.Items))
	for _, favorite := range page.Items {
		items = append(items, favoritePayload{
			ShoeID:  favorite.ShoeID,
			AddedAt: formatTime(favorite.AddedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, favoriteListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *MeHandlers) addFavorite(w http.ResponseWriter, r *http.Request) {
	h.toggleFavorite(w, r, true)
}

func (h *MeHandlers) removeFavorite(w http.ResponseWriter, r *http.Request) {
	h.toggleFavorite(w, r, false)
}

func (h *MeHandlers) toggleFavorite(w http.ResponseWriter, r *http.Request, mark bool) {
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

	shoeID := strings.TrimSpace(chi.URLParam(r, "shoeID"))
	if shoeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shoe id is required", http.StatusBadRequest))
		return
	}

	if err := h.users.ToggleFavorite(ctx, services.ToggleFavoriteCommand{
		UserID: strings.TrimSpace(identity.UID),
		ShoeID: shoeID,
		Mark:   mark,
	}); err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type favoriteListResponse struct {
	Items         []favoritePayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type favoritePayload struct {
	ShoeID  string `json:"shoe_id"`
	AddedAt string `json:"added_at"`
}
