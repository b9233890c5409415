package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/solestride/api/internal/platform/auth"
	"github.com/solestride/api/internal/platform/httpx"
	"github.com/solestride/api/internal/services"
)

const maxAdminBodySize = 256 * 1024

// AdminHandlers exposes the staff surface: catalog maintenance, stock
// adjustments, order operations, sales statistics, and system utilities.
type AdminHandlers struct {
	authn      *auth.Authenticator
	catalog    services.CatalogService
	inventory  services.InventoryService
	assets     services.AssetService
	orders     services.OrderService
	statistics services.StatisticsService
	system     services.SystemService
	clock      func() time.Time
}

// AdminHandlersDeps bundles the services behind the /admin group.
type AdminHandlersDeps struct {
	Authenticator *auth.Authenticator
	Catalog       services.CatalogService
	Inventory     services.InventoryService
	Assets        services.AssetService
	Orders        services.OrderService
	Statistics    services.StatisticsService
	System        services.SystemService
	// Clock feeds the default statistics windows; nil means time.Now.
	Clock func() time.Time
}

// NewAdminHandlers constructs the staff handlers.
func NewAdminHandlers(deps AdminHandlersDeps) *AdminHandlers {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &AdminHandlers{
		authn:      deps.Authenticator,
		catalog:    deps.Catalog,
		inventory:  deps.Inventory,
		assets:     deps.Assets,
		orders:     deps.Orders,
		statistics: deps.Statistics,
		system:     deps.System,
		clock:      clock,
	}
}

// Routes registers the /admin endpoints. Access requires a staff or admin
// role claim on the Firebase token.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Route("/catalog", h.catalogRoutes)
	r.Route("/orders", h.orderRoutes)
	r.Route("/statistics", h.statisticsRoutes)
	r.Get("/audit-logs", h.listAuditLogs)
	r.Post("/counters/{counterID}:next", h.nextCounterValue)
	r.Post("/assets/uploads", h.issueSignedUpload)
}

func (h *AdminHandlers) catalogRoutes(r chi.Router) {
	r.Post("/brands", h.createBrand)
	r.Put("/brands/{brandID}", h.updateBrand)
	r.Delete("/brands/{brandID}", h.deleteBrand)
	r.Post("/categories", h.createCategory)
	r.Put("/categories/{categoryID}", h.updateCategory)
	r.Delete("/categories/{categoryID}", h.deleteCategory)
	r.Get("/shoes", h.listShoes)
	r.Post("/shoes", h.createShoe)
	r.Put("/shoes/{shoeID}", h.updateShoe)
	r.Delete("/shoes/{shoeID}", h.deleteShoe)
	r.Post("/classifications", h.createClassification)
	r.Put("/classifications/{classificationID}", h.updateClassification)
	r.Delete("/classifications/{classificationID}", h.deleteClassification)
	r.Post("/sizes", h.createSize)
	r.Put("/sizes/{sizeID}", h.updateSize)
	r.Post("/sizes/{sizeID}:adjust-stock", h.adjustStock)
}

// actor returns the staff identity or writes a 401 and reports false.
func (h *AdminHandlers) actor(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *AdminHandlers) decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

type upsertBrandRequest struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	LogoPath string `json:"logo_path,omitempty"`
}

func (h *AdminHandlers) createBrand(w http.ResponseWriter, r *http.Request) {
	h.saveBrand(w, r, "")
}

func (h *AdminHandlers) updateBrand(w http.ResponseWriter, r *http.Request) {
	h.saveBrand(w, r, strings.TrimSpace(chi.URLParam(r, "brandID")))
}

func (h *AdminHandlers) saveBrand(w http.ResponseWriter, r *http.Request, brandID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req upsertBrandRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	cmd := services.UpsertBrandCommand{
		Name:     strings.TrimSpace(req.Name),
		Slug:     strings.TrimSpace(req.Slug),
		LogoPath: strings.TrimSpace(req.LogoPath),
		ActorID:  identity.UID,
	}
	status := http.StatusCreated
	if brandID != "" {
		cmd.BrandID = &brandID
		status = http.StatusOK
	}

	brand, err := h.catalog.UpsertBrand(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, adminBrandResponse{Brand: buildBrandPayload(brand)})
}

func (h *AdminHandlers) deleteBrand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	brandID := strings.TrimSpace(chi.URLParam(r, "brandID"))
	if brandID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "brand id is required", http.StatusBadRequest))
		return
	}
	if err := h.catalog.DeleteBrand(ctx, brandID, identity.UID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertCategoryRequest struct {
	ParentID *string `json:"parent_id,omitempty"`
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	Position int     `json:"position"`
}

func (h *AdminHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, "")
}

func (h *AdminHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, strings.TrimSpace(chi.URLParam(r, "categoryID")))
}

func (h *AdminHandlers) saveCategory(w http.ResponseWriter, r *http.Request, categoryID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req upsertCategoryRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	cmd := services.UpsertCategoryCommand{
		ParentID: cloneStringPointer(req.ParentID),
		Name:     strings.TrimSpace(req.Name),
		Slug:     strings.TrimSpace(req.Slug),
		Position: req.Position,
		ActorID:  identity.UID,
	}
	status := http.StatusCreated
	if categoryID != "" {
		cmd.CategoryID = &categoryID
		status = http.StatusOK
	}

	category, err := h.catalog.UpsertCategory(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, adminCategoryResponse{Category: buildCategoryPayload(category)})
}

func (h *AdminHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	categoryID := strings.TrimSpace(chi.URLParam(r, "categoryID"))
	if categoryID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "category id is required", http.StatusBadRequest))
		return
	}
	if err := h.catalog.DeleteCategory(ctx, categoryID, identity.UID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) listShoes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	filter, err := parseShoeListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	// Staff listings include soft-deleted shoes on request.
	filter.IncludeDeleted = strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("include_deleted")), "true")

	page, err := h.catalog.ListShoes(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]shoePayload, 0, len(page.Items))
	for _, shoe := range page.Items {
		items = append(items, buildShoePayload(shoe))
	}
	writeJSONResponse(w, http.StatusOK, shoeListResponse{Items: items, Meta: buildPageMeta(page)})
}

type upsertShoeRequest struct {
	BrandID     string            `json:"brand_id"`
	CategoryID  string            `json:"category_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Gender      string            `json:"gender"`
	Material    string            `json:"material,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

func (h *AdminHandlers) createShoe(w http.ResponseWriter, r *http.Request) {
	h.saveShoe(w, r, "")
}

func (h *AdminHandlers) updateShoe(w http.ResponseWriter, r *http.Request) {
	h.saveShoe(w, r, strings.TrimSpace(chi.URLParam(r, "shoeID")))
}

func (h *AdminHandlers) saveShoe(w http.ResponseWriter, r *http.Request, shoeID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req upsertShoeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	cmd := services.UpsertShoeCommand{
		BrandID:     strings.TrimSpace(req.BrandID),
		CategoryID:  strings.TrimSpace(req.CategoryID),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Gender:      services.ShoeGender(strings.ToLower(strings.TrimSpace(req.Gender))),
		Material:    strings.TrimSpace(req.Material),
		Attributes:  req.Attributes,
		ActorID:     identity.UID,
	}
	status := http.StatusCreated
	if shoeID != "" {
		cmd.ShoeID = &shoeID
		status = http.StatusOK
	}

	shoe, err := h.catalog.UpsertShoe(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, adminShoeResponse{Shoe: buildShoePayload(shoe)})
}

func (h *AdminHandlers) deleteShoe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	shoeID := strings.TrimSpace(chi.URLParam(r, "shoeID"))
	if shoeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shoe id is required", http.StatusBadRequest))
		return
	}
	if err := h.catalog.DeleteShoe(ctx, shoeID, identity.UID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertClassificationRequest struct {
	ShoeID       string   `json:"shoe_id"`
	Color        string   `json:"color"`
	UnitPrice    int64    `json:"unit_price"`
	Currency     string   `json:"currency"`
	ThumbnailKey string   `json:"thumbnail_key,omitempty"`
	GalleryKeys  []string `json:"gallery_keys,omitempty"`
}

func (h *AdminHandlers) createClassification(w http.ResponseWriter, r *http.Request) {
	h.saveClassification(w, r, "")
}

func (h *AdminHandlers) updateClassification(w http.ResponseWriter, r *http.Request) {
	h.saveClassification(w, r, strings.TrimSpace(chi.URLParam(r, "classificationID")))
}

func (h *AdminHandlers) saveClassification(w http.ResponseWriter, r *http.Request, classificationID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req upsertClassificationRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	cmd := services.UpsertClassificationCommand{
		ShoeID:       strings.TrimSpace(req.ShoeID),
		Color:        strings.TrimSpace(req.Color),
		UnitPrice:    req.UnitPrice,
		Currency:     strings.ToUpper(strings.TrimSpace(req.Currency)),
		ThumbnailKey: strings.TrimSpace(req.ThumbnailKey),
		GalleryKeys:  cloneStringSlice(req.GalleryKeys),
		ActorID:      identity.UID,
	}
	status := http.StatusCreated
	if classificationID != "" {
		cmd.ClassificationID = &classificationID
		status = http.StatusOK
	}

	classification, err := h.catalog.UpsertClassification(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, adminClassificationResponse{Classification: buildClassificationPayload(classification)})
}

func (h *AdminHandlers) deleteClassification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	classificationID := strings.TrimSpace(chi.URLParam(r, "classificationID"))
	if classificationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "classification id is required", http.StatusBadRequest))
		return
	}
	if err := h.catalog.DeleteClassification(ctx, classificationID, identity.UID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertSizeRequest struct {
	ClassificationID string `json:"classification_id"`
	EUSize           int    `json:"eu_size"`
	Quantity         int    `json:"quantity"`
}

func (h *AdminHandlers) createSize(w http.ResponseWriter, r *http.Request) {
	h.saveSize(w, r, "")
}

func (h *AdminHandlers) updateSize(w http.ResponseWriter, r *http.Request) {
	h.saveSize(w, r, strings.TrimSpace(chi.URLParam(r, "sizeID")))
}

func (h *AdminHandlers) saveSize(w http.ResponseWriter, r *http.Request, sizeID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req upsertSizeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	cmd := services.UpsertSizeCommand{
		ClassificationID: strings.TrimSpace(req.ClassificationID),
		EUSize:           req.EUSize,
		Quantity:         req.Quantity,
		ActorID:          identity.UID,
	}
	status := http.StatusCreated
	if sizeID != "" {
		cmd.SizeID = &sizeID
		status = http.StatusOK
	}

	size, err := h.catalog.UpsertSize(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, adminSizeResponse{Size: buildAdminSizePayload(size)})
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

func (h *AdminHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	sizeID := strings.TrimSpace(chi.URLParam(r, "sizeID"))
	if sizeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "size id is required", http.StatusBadRequest))
		return
	}
	var req adjustStockRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	size, err := h.inventory.AdjustStock(ctx, services.AdjustStockCommand{
		SizeID:  sizeID,
		Delta:   req.Delta,
		ActorID: identity.UID,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, adminSizeResponse{Size: buildAdminSizePayload(size)})
}

type signedUploadRequest struct {
	Kind        string `json:"kind"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentMD5  string `json:"content_md5,omitempty"`
}

func (h *AdminHandlers) issueSignedUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.assets == nil {
		httpx.WriteError(ctx, w, httpx.NewError("asset_unavailable", "asset service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req signedUploadRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	signed, err := h.assets.IssueSignedUpload(ctx, services.SignedUploadCommand{
		ActorID:     identity.UID,
		Kind:        strings.ToLower(strings.TrimSpace(req.Kind)),
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: strings.TrimSpace(req.ContentType),
		SizeBytes:   req.SizeBytes,
		ContentMD5:  strings.TrimSpace(req.ContentMD5),
	})
	if err != nil {
		writeAssetError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, signedUploadResponse{
		Key:       signed.Key,
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		ExpiresAt: formatTime(signed.ExpiresAt),
	})
}

type adminBrandResponse struct {
	Brand brandPayload `json:"brand"`
}

type adminCategoryResponse struct {
	Category categoryPayload `json:"category"`
}

type adminShoeResponse struct {
	Shoe shoePayload `json:"shoe"`
}

type adminClassificationResponse struct {
	Classification classificationPayload `json:"classification"`
}

type classificationPayload struct {
	ID           string   `json:"id"`
	ShoeID       string   `json:"shoe_id"`
	Color        string   `json:"color"`
	UnitPrice    int64    `json:"unit_price"`
	Currency     string   `json:"currency"`
	ThumbnailKey string   `json:"thumbnail_key,omitempty"`
	GalleryKeys  []string `json:"gallery_keys,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
}

type adminSizeResponse struct {
	Size adminSizePayload `json:"size"`
}

type adminSizePayload struct {
	ID               string `json:"id"`
	ClassificationID string `json:"classification_id"`
	EUSize           int    `json:"eu_size"`
	Quantity         int    `json:"quantity"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

type signedUploadResponse struct {
	Key       string            `json:"key"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt string            `json:"expires_at"`
}

func buildClassificationPayload(classification services.Classification) classificationPayload {
	return classificationPayload{
		ID:           classification.ID,
		ShoeID:       classification.ShoeID,
		Color:        classification.Color,
		UnitPrice:    classification.UnitPrice,
		Currency:     strings.ToUpper(classification.Currency),
		ThumbnailKey: classification.ThumbnailKey,
		GalleryKeys:  cloneStringSlice(classification.GalleryKeys),
		CreatedAt:    formatTime(classification.CreatedAt),
		UpdatedAt:    formatTime(classification.UpdatedAt),
	}
}

func buildAdminSizePayload(size services.ShoeSize) adminSizePayload {
	return adminSizePayload{
		ID:               size.ID,
		ClassificationID: size.ClassificationID,
		EUSize:           size.EUSize,
		Quantity:         size.Quantity,
		UpdatedAt:        formatTime(size.UpdatedAt),
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventorySizeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("size_not_found", "size not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "stock cannot drop below zero", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process stock request", http.StatusInternalServerError))
	}
}

func writeAssetError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAssetInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAssetUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("asset_unavailable", "signing backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("asset_error", "failed to issue signed upload", http.StatusInternalServerError))
	}
}
