package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/solestride/api/internal/platform/auth"
	"github.com/solestride/api/internal/platform/httpx"
	"github.com/solestride/api/internal/services"
)

const maxAddressBodySize = 16 * 1024

func (h *MeHandlers) addressRoutes(r chi.Router) {
	r.Get("/", h.listAddresses)
	r.Post("/", h.createAddress)
	r.Put("/{addressID}", h.updateAddress)
	r.Delete("/{addressID}", h.deleteAddress)
}

func (h *MeHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
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

	addresses, err := h.users.ListAddresses(ctx, strings.TrimSpace(identity.UID))
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	items := make([]addressPayload, 0, len(addresses))
	for _, addr := range addresses {
		items = append(items, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, addressListResponse{Items: items})
}

type upsertAddressRequest struct {
	Recipient    string  `json:"recipient"`
	Phone        string  `json:"phone"`
	Line1        string  `json:"line1"`
	Line2        *string `json:"line2,omitempty"`
	WardCode     string  `json:"ward_code"`
	DistrictCode string  `json:"district_code"`
	ProvinceCode string  `json:"province_code"`
	IsDefault    bool    `json:"is_default"`
}

func (h *MeHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	h.saveAddress(w, r, "")
}

func (h *MeHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	addressID := strings.TrimSpace(chi.URLParam(r, "addressID"))
	if addressID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "address id is required", http.StatusBadRequest))
		return
	}
	h.saveAddress(w, r, addressID)
}

func (h *MeHandlers) saveAddress(w http.ResponseWriter, r *http.Request, addressID string) {
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

	body, err := readLimitedBody(r, maxAddressBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req upsertAddressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.UpsertAddressCommand{
		UserID: strings.TrimSpace(identity.UID),
		Address: services.Address{
			Recipient:    strings.TrimSpace(req.Recipient),
			Phone:        strings.TrimSpace(req.Phone),
			Line1:        strings.TrimSpace(req.Line1),
			Line2:        cloneStringPointer(req.Line2),
			WardCode:     strings.TrimSpace(req.WardCode),
			DistrictCode: strings.TrimSpace(req.DistrictCode),
			ProvinceCode: strings.TrimSpace(req.ProvinceCode),
		},
		IsDefault: req.IsDefault,
	}
	status := http.StatusCreated
	if addressID != "" {
		cmd.AddressID = &addressID
		status = http.StatusOK
	}

	address, err := h.users.UpsertAddress(ctx, cmd)
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	writeJSONResponse(w, status, addressResponse{Address: buildAddressPayload(address)})
}

func (h *MeHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
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

	addressID := strings.TrimSpace(chi.URLParam(r, "addressID"))
	if addressID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "address id is required", http.StatusBadRequest))
		return
	}

	if err := h.users.DeleteAddress(ctx, services.DeleteAddressCommand{
		UserID:    strings.TrimSpace(identity.UID),
		AddressID: addressID,
	}); err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type addressListResponse struct {
	Items []addressPayload `json:"items"`
}

type addressResponse struct {
	Address addressPayload `json:"address"`
}

type addressPayload struct {
	ID           string  `json:"id"`
	Recipient    string  `json:"recipient"`
	Phone        string  `json:"phone"`
	Line1        string  `json:"line1"`
	Line2        *string `json:"line2,omitempty"`
	WardCode     string  `json:"ward_code"`
	DistrictCode string  `json:"district_code"`
	ProvinceCode string  `json:"province_code"`
	IsDefault    bool    `json:"is_default"`
	CreatedAt    string  `json:"created_at,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		ID:           addr.ID,
		Recipient:    addr.Recipient,
		Phone:        addr.Phone,
		Line1:        addr.Line1,
		Line2:        cloneStringPointer(addr.Line2),
		WardCode:     addr.WardCode,
		DistrictCode: addr.DistrictCode,
		ProvinceCode: addr.ProvinceCode,
		IsDefault:    addr.IsDefault,
		CreatedAt:    formatTime(addr.CreatedAt),
		UpdatedAt:    formatTime(addr.UpdatedAt),
	}
}
