package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/platform/httpx"
	"github.com/solestride/api/internal/services"
)

var validShoeGenders = map[domain.ShoeGender]struct{}{
	domain.ShoeGenderMen:    {},
	domain.ShoeGenderWomen:  {},
	domain.ShoeGenderUnisex: {},
	domain.ShoeGenderKids:   {},
}

// CatalogHandlers exposes the unauthenticated storefront surface: brands,
// categories, shoe browsing, shoe detail, and per-shoe reviews.
type CatalogHandlers struct {
	catalog services.CatalogService
	reviews services.ReviewService
	orders  services.OrderService
}

// NewCatalogHandlers constructs a new CatalogHandlers instance.
func NewCatalogHandlers(catalog services.CatalogService, reviews services.ReviewService, orders services.OrderService) *CatalogHandlers {
	return &CatalogHandlers{
		catalog: catalog,
		reviews: reviews,
		orders:  orders,
	}
}

// Routes registers the /public endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/brands", h.listBrands)
	r.Get("/categories", h.listCategories)
	r.Get("/shoes", h.listShoes)
	r.Get("/shoes/{shoeID}", h.getShoe)
	r.Get("/shoes/{shoeID}/reviews", h.listShoeReviews)
	r.Get("/order-statuses", h.listOrderStatuses)
}

func (h *CatalogHandlers) listBrands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	brands, err := h.catalog.ListBrands(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]brandPayload, 0, len(brands))
	for _, brand := range brands {
		items = append(items, buildBrandPayload(brand))
	}
	writeJSONResponse(w, http.StatusOK, brandListResponse{Items: items})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, categoryListResponse{Items: items})
}

func (h *CatalogHandlers) listShoes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	filter, err := parseShoeListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListShoes(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]shoePayload, 0, len(page.Items))
	for _, shoe := range page.Items {
		items = append(items, buildShoePayload(shoe))
	}
	writeJSONResponse(w, http.StatusOK, shoeListResponse{
		Items: items,
		Meta:  buildPageMeta(page),
	})
}

func (h *CatalogHandlers) getShoe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	shoeID := strings.TrimSpace(chi.URLParam(r, "shoeID"))
	if shoeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shoe id is required", http.StatusBadRequest))
		return
	}

	detail, err := h.catalog.GetShoe(ctx, shoeID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildShoeDetailPayload(detail))
}

func (h *CatalogHandlers) listShoeReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}

	shoeID := strings.TrimSpace(chi.URLParam(r, "shoeID"))
	if shoeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shoe id is required", http.StatusBadRequest))
		return
	}

	pager, err := parseCursorParams(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.reviews.ListByShoe(ctx, shoeID, pager)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	items := make([]reviewPayload, 0, len(page.Reviews.Items))
	for _, review := range page.Reviews.Items {
		items = append(items, buildReviewPayload(review))
	}
	writeJSONResponse(w, http.StatusOK, shoeReviewListResponse{
		Items:         items,
		NextPageToken: page.Reviews.NextPageToken,
		Summary: reviewSummaryPayload{
			Count:   page.Summary.Count,
			Average: page.Summary.Average,
		},
	})
}

func (h *CatalogHandlers) listOrderStatuses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	infos := h.orders.ListStatuses(ctx)
	items := make([]orderStatusInfoPayload, 0, len(infos))
	for _, info := range infos {
		items = append(items, orderStatusInfoPayload{
			Status:   string(info.Status),
			Label:    info.Label,
			Terminal: info.Terminal,
			External: info.External,
		})
	}
	writeJSONResponse(w, http.StatusOK, orderStatusListResponse{Items: items})
}

func parseShoeListFilter(r *http.Request) (services.ShoeListFilter, error) {
	var filter services.ShoeListFilter
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("brand_id")); raw != "" {
		filter.BrandID = &raw
	}
	if raw := strings.TrimSpace(query.Get("category_id")); raw != "" {
		filter.CategoryID = &raw
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("gender"))); raw != "" {
		gender := domain.ShoeGender(raw)
		if _, ok := validShoeGenders[gender]; !ok {
			return filter, errors.New("gender must be one of men, women, unisex, kids")
		}
		filter.Gender = &gender
	}
	if raw := strings.TrimSpace(query.Get("min_price")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			return filter, errors.New("min_price must be a non-negative integer")
		}
		filter.PriceRange.From = &value
	}
	if raw := strings.TrimSpace(query.Get("max_price")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			return filter, errors.New("max_price must be a non-negative integer")
		}
		filter.PriceRange.To = &value
	}
	filter.Keyword = strings.TrimSpace(query.Get("keyword"))

	page, err := parsePageParams(r)
	if err != nil {
		return filter, err
	}
	filter.Page = page
	return filter, nil
}

type brandListResponse struct {
	Items []brandPayload `json:"items"`
}

type brandPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	LogoPath  string `json:"logo_path,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type categoryListResponse struct {
	Items []categoryPayload `json:"items"`
}

type categoryPayload struct {
	ID        string  `json:"id"`
	ParentID  *string `json:"parent_id,omitempty"`
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	Position  int     `json:"position"`
	CreatedAt string  `json:"created_at,omitempty"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

type shoeListResponse struct {
	Items []shoePayload `json:"items"`
	Meta  pageMeta      `json:"meta"`
}

type shoePayload struct {
	ID          string            `json:"id"`
	BrandID     string            `json:"brand_id"`
	CategoryID  string            `json:"category_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Gender      string            `json:"gender"`
	Material    string            `json:"material,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	MinPrice    int64             `json:"min_price"`
	Currency    string            `json:"currency,omitempty"`
	CreatedAt   string            `json:"created_at,omitempty"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
}

type shoeDetailResponse struct {
	Shoe            shoePayload                   `json:"shoe"`
	Classifications []classificationDetailPayload `json:"classifications"`
	Reviews         reviewSummaryPayload          `json:"reviews"`
}

type classificationDetailPayload struct {
	ID           string            `json:"id"`
	Color        string            `json:"color"`
	UnitPrice    int64             `json:"unit_price"`
	Currency     string            `json:"currency"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`
	GalleryURLs  []string          `json:"gallery_urls,omitempty"`
	Sizes        []shoeSizePayload `json:"sizes"`
}

type shoeSizePayload struct {
	ID       string `json:"id"`
	EUSize   int    `json:"eu_size"`
	Quantity int    `json:"quantity"`
	InStock  bool   `json:"in_stock"`
}

type shoeReviewListResponse struct {
	Items         []reviewPayload      `json:"items"`
	NextPageToken string               `json:"next_page_token,omitempty"`
	Summary       reviewSummaryPayload `json:"summary"`
}

type reviewSummaryPayload struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

type orderStatusListResponse struct {
	Items []orderStatusInfoPayload `json:"items"`
}

type orderStatusInfoPayload struct {
	Status   string `json:"status"`
	Label    string `json:"label"`
	Terminal bool   `json:"terminal"`
	External bool   `json:"external"`
}

func buildBrandPayload(brand services.Brand) brandPayload {
	return brandPayload{
		ID:        brand.ID,
		Name:      brand.Name,
		Slug:      brand.Slug,
		LogoPath:  brand.LogoPath,
		CreatedAt: formatTime(brand.CreatedAt),
		UpdatedAt: formatTime(brand.UpdatedAt),
	}
}

func buildCategoryPayload(category services.Category) categoryPayload {
	return categoryPayload{
		ID:        category.ID,
		ParentID:  cloneStringPointer(category.ParentID),
		Name:      category.Name,
		Slug:      category.Slug,
		Position:  category.Position,
		CreatedAt: formatTime(category.CreatedAt),
		UpdatedAt: formatTime(category.UpdatedAt),
	}
}

func buildShoePayload(shoe services.Shoe) shoePayload {
	attributes := make(map[string]string, len(shoe.Attributes))
	for key, value := range shoe.Attributes {
		attributes[key] = value
	}
	if len(attributes) == 0 {
		attributes = nil
	}
	return shoePayload{
		ID:          shoe.ID,
		BrandID:     shoe.BrandID,
		CategoryID:  shoe.CategoryID,
		Name:        shoe.Name,
		Description: shoe.Description,
		Gender:      string(shoe.Gender),
		Material:    shoe.Material,
		Attributes:  attributes,
		MinPrice:    shoe.MinPrice,
		Currency:    strings.ToUpper(shoe.Currency),
		CreatedAt:   formatTime(shoe.CreatedAt),
		UpdatedAt:   formatTime(shoe.UpdatedAt),
	}
}

func buildShoeDetailPayload(detail services.ShoeDetail) shoeDetailResponse {
	classifications := make([]classificationDetailPayload, 0, len(detail.Classifications))
	for _, entry := range detail.Classifications {
		sizes := make([]shoeSizePayload, 0, len(entry.Sizes))
		for _, size := range entry.Sizes {
			sizes = append(sizes, shoeSizePayload{
				ID:       size.ID,
				EUSize:   size.EUSize,
				Quantity: size.Quantity,
				InStock:  size.Quantity > 0,
			})
		}
		classifications = append(classifications, classificationDetailPayload{
			ID:           entry.Classification.ID,
			Color:        entry.Classification.Color,
			UnitPrice:    entry.Classification.UnitPrice,
			Currency:     strings.ToUpper(entry.Classification.Currency),
			ThumbnailURL: entry.ThumbnailURL,
			GalleryURLs:  cloneStringSlice(entry.GalleryURLs),
			Sizes:        sizes,
		})
	}
	return shoeDetailResponse{
		Shoe:            buildShoePayload(detail.Shoe),
		Classifications: classifications,
		Reviews: reviewSummaryPayload{
			Count:   detail.Reviews.Count,
			Average: detail.Reviews.Average,
		},
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_not_found", "catalog entity not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
