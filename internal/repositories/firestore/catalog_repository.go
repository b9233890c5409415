package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/solestride/api/internal/domain"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

const (
	brandCollection          = "brands"
	categoryCollection       = "categories"
	shoeCollection           = "shoes"
	classificationCollection = "classifications"
	sizeCollection           = "sizes"

	// keywordUpperBound closes the prefix range for folded-name searches.
	keywordUpperBound = ""
)

// CatalogRepository persists the brand/category/shoe/classification/size
// hierarchy. Deletes are soft so existing order snapshots keep resolving.
type CatalogRepository struct {
	provider        *pfirestore.Provider
	brands          *pfirestore.Collection[brandDocument]
	categories      *pfirestore.Collection[categoryDocument]
	shoes           *pfirestore.Collection[shoeDocument]
	classifications *pfirestore.Collection[classificationDocument]
	sizes           *pfirestore.Collection[sizeDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		provider:        provider,
		brands:          pfirestore.NewCollection[brandDocument](provider, brandCollection),
		categories:      pfirestore.NewCollection[categoryDocument](provider, categoryCollection),
		shoes:           pfirestore.NewCollection[shoeDocument](provider, shoeCollection),
		classifications: pfirestore.NewCollection[classificationDocument](provider, classificationCollection),
		sizes:           pfirestore.NewCollection[sizeDocument](provider, sizeCollection),
	}, nil
}

// Brands ---------------------------------------------------------------------

func (r *CatalogRepository) ListBrands(ctx context.Context, includeDeleted bool) ([]domain.Brand, error) {
	docs, err := r.brands.Query(ctx, func(q firestore.Query) firestore.Query {
		if !includeDeleted {
			q = q.Where("deleted", "==", false)
		}
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	brands := make([]domain.Brand, 0, len(docs))
	for _, doc := range docs {
		brands = append(brands, doc.Data.toDomain(doc.ID))
	}
	return brands, nil
}

func (r *CatalogRepository) GetBrand(ctx context.Context, brandID string) (domain.Brand, error) {
	doc, err := r.brands.Get(ctx, strings.TrimSpace(brandID))
	if err != nil {
		return domain.Brand{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CatalogRepository) UpsertBrand(ctx context.Context, brand domain.Brand) (domain.Brand, error) {
	id := strings.TrimSpace(brand.ID)
	if id == "" {
		return domain.Brand{}, errors.New("catalog repository: brand id is required")
	}
	doc := fromDomainBrand(brand)
	result, err := r.brands.Set(ctx, id, doc)
	if err != nil {
		return domain.Brand{}, err
	}
	saved := doc.toDomain(id)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

func (r *CatalogRepository) DeleteBrand(ctx context.Context, brandID string, deletedAt time.Time) error {
	return r.softDelete(ctx, r.brands.DocumentRef, brandID, "brands.delete", deletedAt)
}

// Categories -----------------------------------------------------------------

func (r *CatalogRepository) ListCategories(ctx context.Context, includeDeleted bool) ([]domain.Category, error) {
	docs, err := r.categories.Query(ctx, func(q firestore.Query) firestore.Query {
		if !includeDeleted {
			q = q.Where("deleted", "==", false)
		}
		return q.OrderBy("position", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, doc.Data.toDomain(doc.ID))
	}
	return categories, nil
}

func (r *CatalogRepository) GetCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	doc, err := r.categories.Get(ctx, strings.TrimSpace(categoryID))
	if err != nil {
		return domain.Category{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CatalogRepository) UpsertCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	id := strings.TrimSpace(category.ID)
	if id == "" {
		return domain.Category{}, errors.New("catalog repository: category id is required")
	}
	doc := fromDomainCategory(category)
	result, err := r.categories.Set(ctx, id, doc)
	if err != nil {
		return domain.Category{}, err
	}
	saved := doc.toDomain(id)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

func (r *CatalogRepository) DeleteCategory(ctx context.Context, categoryID string, deletedAt time.Time) error {
	return r.softDelete(ctx, r.categories.DocumentRef, categoryID, "categories.delete", deletedAt)
}

// Shoes ----------------------------------------------------------------------

func (r *CatalogRepository) ListShoes(ctx context.Context, filter repositories.ShoeFilter) (domain.Page[domain.Shoe], error) {
	coll, err := r.shoesCollection(ctx)
	if err != nil {
		return domain.Page[domain.Shoe]{}, err
	}

	query := coll.Query
	if !filter.IncludeDeleted {
		query = query.Where("deleted", "==", false)
	}
	if filter.BrandID != nil {
		if id := strings.TrimSpace(*filter.BrandID); id != "" {
			query = query.Where("brandId", "==", id)
		}
	}
	if filter.CategoryID != nil {
		if id := strings.TrimSpace(*filter.CategoryID); id != "" {
			query = query.Where("categoryId", "==", id)
		}
	}
	if filter.Gender != nil && *filter.Gender != "" {
		query = query.Where("gender", "==", string(*filter.Gender))
	}
	if filter.PriceRange.From != nil {
		query = query.Where("minPrice", ">=", *filter.PriceRange.From)
	}
	if filter.PriceRange.To != nil {
		query = query.Where("minPrice", "<=", *filter.PriceRange.To)
	}

	keyword := strings.TrimSpace(filter.KeywordFolded)
	if keyword != "" {
		query = query.
			Where("nameFolded", ">=", keyword).
			Where("nameFolded", "<", keyword+keywordUpperBound).
			OrderBy("nameFolded", firestore.Asc)
	} else {
		query = query.OrderBy("createdAt", firestore.Desc)
	}
	query = query.OrderBy(firestore.DocumentID, firestore.Asc)

	total, err := countDocuments(ctx, query, "shoes.count")
	if err != nil {
		return domain.Page[domain.Shoe]{}, err
	}

	req := normalizePageRequest(filter.Page)
	query = query.Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize)

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return domain.Page[domain.Shoe]{}, pfirestore.WrapError("shoes.list", err)
	}
	shoes := make([]domain.Shoe, 0, len(snaps))
	for _, snap := range snaps {
		var doc shoeDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Shoe]{}, pfirestore.WrapError("shoes.list", err)
		}
		shoes = append(shoes, doc.toDomain(snap.Ref.ID))
	}
	return newPage(shoes, req, total), nil
}

func (r *CatalogRepository) GetShoe(ctx context.Context, shoeID string) (domain.Shoe, error) {
	doc, err := r.shoes.Get(ctx, strings.TrimSpace(shoeID))
	if err != nil {
		return domain.Shoe{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CatalogRepository) UpsertShoe(ctx context.Context, shoe domain.Shoe) (domain.Shoe, error) {
	id := strings.TrimSpace(shoe.ID)
	if id == "" {
		return domain.Shoe{}, errors.New("catalog repository: shoe id is required")
	}
	doc := fromDomainShoe(shoe)
	result, err := r.shoes.Set(ctx, id, doc)
	if err != nil {
		return domain.Shoe{}, err
	}
	saved := doc.toDomain(id)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

func (r *CatalogRepository) DeleteShoe(ctx context.Context, shoeID string, deletedAt time.Time) error {
	return r.softDelete(ctx, r.shoes.DocumentRef, shoeID, "shoes.delete", deletedAt)
}

// Classifications ------------------------------------------------------------

func (r *CatalogRepository) ListClassifications(ctx context.Context, shoeID string, includeDeleted bool) ([]domain.Classification, error) {
	id := strings.TrimSpace(shoeID)
	if id == "" {
		return nil, errors.New("catalog repository: shoe id is required")
	}
	docs, err := r.classifications.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("shoeId", "==", id)
		if !includeDeleted {
			q = q.Where("deleted", "==", false)
		}
		return q.OrderBy("color", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	classifications := make([]domain.Classification, 0, len(docs))
	for _, doc := range docs {
		classifications = append(classifications, doc.Data.toDomain(doc.ID))
	}
	return classifications, nil
}

func (r *CatalogRepository) GetClassification(ctx context.Context, classificationID string) (domain.Classification, error) {
	doc, err := r.classifications.Get(ctx, strings.TrimSpace(classificationID))
	if err != nil {
		return domain.Classification{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CatalogRepository) UpsertClassification(ctx context.Context, classification domain.Classification) (domain.Classification, error) {
	id := strings.TrimSpace(classification.ID)
	if id == "" {
		return domain.Classification{}, errors.New("catalog repository: classification id is required")
	}
	doc := fromDomainClassification(classification)
	result, err := r.classifications.Set(ctx, id, doc)
	if err != nil {
		return domain.Classification{}, err
	}
	saved := doc.toDomain(id)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

func (r *CatalogRepository) DeleteClassification(ctx context.Context, classificationID string, deletedAt time.Time) error {
	return r.softDelete(ctx, r.classifications.DocumentRef, classificationID, "classifications.delete", deletedAt)
}

// Sizes ----------------------------------------------------------------------

func (r *CatalogRepository) ListSizes(ctx context.Context, classificationID string) ([]domain.ShoeSize, error) {
	id := strings.TrimSpace(classificationID)
	if id == "" {
		return nil, errors.New("catalog repository: classification id is required")
	}
	docs, err := r.sizes.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("classificationId", "==", id).
			OrderBy("euSize", firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	sizes := make([]domain.ShoeSize, 0, len(docs))
	for _, doc := range docs {
		sizes = append(sizes, doc.Data.toDomain(doc.ID))
	}
	return sizes, nil
}

func (r *CatalogRepository) GetSize(ctx context.Context, sizeID string) (domain.ShoeSize, error) {
	doc, err := r.sizes.Get(ctx, strings.TrimSpace(sizeID))
	if err != nil {
		return domain.ShoeSize{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CatalogRepository) UpsertSize(ctx context.Context, size domain.ShoeSize) (domain.ShoeSize, error) {
	id := strings.TrimSpace(size.ID)
	if id == "" {
		return domain.ShoeSize{}, errors.New("catalog repository: size id is required")
	}
	doc := sizeDocument{
		ClassificationID: strings.TrimSpace(size.ClassificationID),
		EUSize:           size.EUSize,
		Quantity:         size.Quantity,
		UpdatedAt:        size.UpdatedAt.UTC(),
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	result, err := r.sizes.Set(ctx, id, doc)
	if err != nil {
		return domain.ShoeSize{}, err
	}
	saved := doc.toDomain(id)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// ----------------------------------------------------------------------------

type refLookup func(ctx context.Context, id string) (*firestore.DocumentRef, error)

func (r *CatalogRepository) softDelete(ctx context.Context, lookup refLookup, id string, op string, deletedAt time.Time) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return errors.New("catalog repository: document id is required")
	}
	ref, err := lookup(ctx, trimmed)
	if err != nil {
		return err
	}
	stamp := deletedAt.UTC()
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "deleted", Value: true},
		{Path: "deletedAt", Value: stamp},
		{Path: "updatedAt", Value: stamp},
	})
	if err != nil {
		return pfirestore.WrapError(op, err)
	}
	return nil
}

func (r *CatalogRepository) shoesCollection(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(shoeCollection), nil
}

// Documents ------------------------------------------------------------------

type brandDocument struct {
	Name      string     `firestore:"name"`
	Slug      string     `firestore:"slug"`
	LogoPath  string     `firestore:"logoPath,omitempty"`
	Deleted   bool       `firestore:"deleted"`
	DeletedAt *time.Time `firestore:"deletedAt,omitempty"`
	CreatedAt time.Time  `firestore:"createdAt"`
	UpdatedAt time.Time  `firestore:"updatedAt"`
}

func fromDomainBrand(brand domain.Brand) brandDocument {
	now := time.Now().UTC()
	createdAt := brand.CreatedAt.UTC()
	if brand.CreatedAt.IsZero() {
		createdAt = now
	}
	return brandDocument{
		Name:      strings.TrimSpace(brand.Name),
		Slug:      strings.TrimSpace(brand.Slug),
		LogoPath:  strings.TrimSpace(brand.LogoPath),
		Deleted:   brand.Deleted,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
}

func (d brandDocument) toDomain(id string) domain.Brand {
	return domain.Brand{
		ID:        id,
		Name:      d.Name,
		Slug:      d.Slug,
		LogoPath:  d.LogoPath,
		Deleted:   d.Deleted,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type categoryDocument struct {
	ParentID  *string    `firestore:"parentId,omitempty"`
	Name      string     `firestore:"name"`
	Slug      string     `firestore:"slug"`
	Position  int        `firestore:"position"`
	Deleted   bool       `firestore:"deleted"`
	DeletedAt *time.Time `firestore:"deletedAt,omitempty"`
	CreatedAt time.Time  `firestore:"createdAt"`
	UpdatedAt time.Time  `firestore:"updatedAt"`
}

func fromDomainCategory(category domain.Category) categoryDocument {
	now := time.Now().UTC()
	createdAt := category.CreatedAt.UTC()
	if category.CreatedAt.IsZero() {
		createdAt = now
	}
	return categoryDocument{
		ParentID:  cloneOptionalString(category.ParentID),
		Name:      strings.TrimSpace(category.Name),
		Slug:      strings.TrimSpace(category.Slug),
		Position:  category.Position,
		Deleted:   category.Deleted,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
}

func (d categoryDocument) toDomain(id string) domain.Category {
	return domain.Category{
		ID:        id,
		ParentID:  cloneOptionalString(d.ParentID),
		Name:      d.Name,
		Slug:      d.Slug,
		Position:  d.Position,
		Deleted:   d.Deleted,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type shoeDocument struct {
	BrandID     string            `firestore:"brandId"`
	CategoryID  string            `firestore:"categoryId"`
	Name        string            `firestore:"name"`
	NameFolded  string            `firestore:"nameFolded"`
	Description string            `firestore:"description,omitempty"`
	Gender      string            `firestore:"gender"`
	Material    string            `firestore:"material,omitempty"`
	Attributes  map[string]string `firestore:"attributes,omitempty"`
	MinPrice    int64             `firestore:"minPrice"`
	Currency    string            `firestore:"currency"`
	Deleted     bool              `firestore:"deleted"`
	DeletedAt   *time.Time        `firestore:"deletedAt,omitempty"`
	CreatedAt   time.Time         `firestore:"createdAt"`
	UpdatedAt   time.Time         `firestore:"updatedAt"`
}

func fromDomainShoe(shoe domain.Shoe) shoeDocument {
	now := time.Now().UTC()
	createdAt := shoe.CreatedAt.UTC()
	if shoe.CreatedAt.IsZero() {
		createdAt = now
	}
	var attrs map[string]string
	if len(shoe.Attributes) > 0 {
		attrs = make(map[string]string, len(shoe.Attributes))
		for k, v := range shoe.Attributes {
			attrs[k] = v
		}
	}
	return shoeDocument{
		BrandID:     strings.TrimSpace(shoe.BrandID),
		CategoryID:  strings.TrimSpace(shoe.CategoryID),
		Name:        strings.TrimSpace(shoe.Name),
		NameFolded:  strings.TrimSpace(shoe.NameFolded),
		Description: strings.TrimSpace(shoe.Description),
		Gender:      string(shoe.Gender),
		Material:    strings.TrimSpace(shoe.Material),
		Attributes:  attrs,
		MinPrice:    shoe.MinPrice,
		Currency:    strings.ToUpper(strings.TrimSpace(shoe.Currency)),
		Deleted:     shoe.Deleted,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}
}

func (d shoeDocument) toDomain(id string) domain.Shoe {
	var attrs map[string]string
	if len(d.Attributes) > 0 {
		attrs = make(map[string]string, len(d.Attributes))
		for k, v := range d.Attributes {
			attrs[k] = v
		}
	}
	return domain.Shoe{
		ID:          id,
		BrandID:     d.BrandID,
		CategoryID:  d.CategoryID,
		Name:        d.Name,
		NameFolded:  d.NameFolded,
		Description: d.Description,
		Gender:      domain.ShoeGender(d.Gender),
		Material:    d.Material,
		Attributes:  attrs,
		MinPrice:    d.MinPrice,
		Currency:    d.Currency,
		Deleted:     d.Deleted,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type classificationDocument struct {
	ShoeID       string     `firestore:"shoeId"`
	Color        string     `firestore:"color"`
	UnitPrice    int64      `firestore:"unitPrice"`
	Currency     string     `firestore:"currency"`
	ThumbnailKey string     `firestore:"thumbnailKey,omitempty"`
	GalleryKeys  []string   `firestore:"galleryKeys,omitempty"`
	Deleted      bool       `firestore:"deleted"`
	DeletedAt    *time.Time `firestore:"deletedAt,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
}

func fromDomainClassification(classification domain.Classification) classificationDocument {
	now := time.Now().UTC()
	createdAt := classification.CreatedAt.UTC()
	if classification.CreatedAt.IsZero() {
		createdAt = now
	}
	var gallery []string
	if len(classification.GalleryKeys) > 0 {
		gallery = make([]string, len(classification.GalleryKeys))
		copy(gallery, classification.GalleryKeys)
	}
	return classificationDocument{
		ShoeID:       strings.TrimSpace(classification.ShoeID),
		Color:        strings.TrimSpace(classification.Color),
		UnitPrice:    classification.UnitPrice,
		Currency:     strings.ToUpper(strings.TrimSpace(classification.Currency)),
		ThumbnailKey: strings.TrimSpace(classification.ThumbnailKey),
		GalleryKeys:  gallery,
		Deleted:      classification.Deleted,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}
}

func (d classificationDocument) toDomain(id string) domain.Classification {
	var gallery []string
	if len(d.GalleryKeys) > 0 {
		gallery = make([]string, len(d.GalleryKeys))
		copy(gallery, d.GalleryKeys)
	}
	return domain.Classification{
		ID:           id,
		ShoeID:       d.ShoeID,
		Color:        d.Color,
		UnitPrice:    d.UnitPrice,
		Currency:     d.Currency,
		ThumbnailKey: d.ThumbnailKey,
		GalleryKeys:  gallery,
		Deleted:      d.Deleted,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type sizeDocument struct {
	ClassificationID string    `firestore:"classificationId"`
	EUSize           int       `firestore:"euSize"`
	Quantity         int       `firestore:"quantity"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func (d sizeDocument) toDomain(id string) domain.ShoeSize {
	return domain.ShoeSize{
		ID:               id,
		ClassificationID: d.ClassificationID,
		EUSize:           d.EUSize,
		Quantity:         d.Quantity,
		UpdatedAt:        d.UpdatedAt,
	}
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
