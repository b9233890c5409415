package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/cases"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/platform/textutil"
	"github.com/solestride/api/internal/repositories"
)

const (
	brandIDPrefix          = "brand_"
	categoryIDPrefix       = "cat_"
	shoeIDPrefix           = "shoe_"
	classificationIDPrefix = "cls_"
	sizeIDPrefix           = "size_"

	maxShoeNameLength        = 200
	maxShoeDescriptionLength = 5000
	minEUSize                = 30
	maxEUSize                = 50
)

var slugSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// imageURLSigner resolves opaque storage keys into time-limited URLs.
type imageURLSigner interface {
	SignImageURL(ctx context.Context, key string) (string, error)
}

var (
	// ErrCatalogRepositoryMissing indicates the repository dependency is absent.
	ErrCatalogRepositoryMissing = errors.New("catalog service: repository is not configured")
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogNotFound indicates the requested catalog entity does not exist.
	ErrCatalogNotFound = errors.New("catalog service: not found")
	// ErrCatalogConflict indicates a slug or size collision.
	ErrCatalogConflict = errors.New("catalog service: conflict")
	// ErrCatalogUnavailable indicates the backing store could not be reached.
	ErrCatalogUnavailable = errors.New("catalog service: unavailable")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Catalog     repositories.CatalogRepository
	Reviews     repositories.ReviewRepository
	Signer      imageURLSigner
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	repo    repositories.CatalogRepository
	reviews repositories.ReviewRepository
	signer  imageURLSigner
	audit   AuditLogService
	clock   func() time.Time
	newID   func() string
	folder  cases.Caser
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog service: catalog repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &catalogService{
		repo:    deps.Catalog,
		reviews: deps.Reviews,
		signer:  deps.Signer,
		audit:   deps.Audit,
		clock:   func() time.Time { return clock().UTC() },
		newID:   idGen,
		folder:  cases.Fold(),
	}, nil
}

func (s *catalogService) ListBrands(ctx context.Context) ([]Brand, error) {
	brands, err := s.repo.ListBrands(ctx, false)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return brands, nil
}

func (s *catalogService) UpsertBrand(ctx context.Context, cmd UpsertBrandCommand) (Brand, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Brand{}, fmt.Errorf("%w: brand name is required", ErrCatalogInvalidInput)
	}
	slug := normalizeSlug(firstNonEmpty(cmd.Slug, name))
	if slug == "" {
		return Brand{}, fmt.Errorf("%w: brand slug is required", ErrCatalogInvalidInput)
	}

	now := s.clock()
	brand := domain.Brand{
		Name:     name,
		Slug:     slug,
		LogoPath: strings.TrimSpace(cmd.LogoPath),
	}

	if cmd.BrandID != nil && strings.TrimSpace(*cmd.BrandID) != "" {
		existing, err := s.repo.GetBrand(ctx, strings.TrimSpace(*cmd.BrandID))
		if err != nil {
			return Brand{}, s.translateRepoError(err)
		}
		brand.ID = existing.ID
		brand.CreatedAt = existing.CreatedAt
	} else {
		brand.ID = brandIDPrefix + s.newID()
		brand.CreatedAt = now
	}
	brand.UpdatedAt = now

	saved, err := s.repo.UpsertBrand(ctx, brand)
	if err != nil {
		return Brand{}, s.translateRepoError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "catalog.brand.upsert", "brands/"+saved.ID)
	return saved, nil
}

func (s *catalogService) DeleteBrand(ctx context.Context, brandID string, actorID string) error {
	brandID = strings.TrimSpace(brandID)
	if brandID == "" {
		return fmt.Errorf("%w: brand id is required", ErrCatalogInvalidInput)
	}
	if err := s.repo.DeleteBrand(ctx, brandID, s.clock()); err != nil {
		return s.translateRepoError(err)
	}
	s.recordAudit(ctx, actorID, "catalog.brand.delete", "brands/"+brandID)
	return nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.repo.ListCategories(ctx, false)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return categories, nil
}

func (s *catalogService) UpsertCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	}
	slug := normalizeSlug(firstNonEmpty(cmd.Slug, name))
	if slug == "" {
		return Category{}, fmt.Errorf("%w: category slug is required", ErrCatalogInvalidInput)
	}

	now := s.clock()
	category := domain.Category{
		Name:     name,
		Slug:     slug,
		Position: cmd.Position,
	}
	if cmd.ParentID != nil {
		parentID := strings.TrimSpace(*cmd.ParentID)
		if parentID != "" {
			if _, err := s.repo.GetCategory(ctx, parentID); err != nil {
				return Category{}, s.translateRepoError(err)
			}
			category.ParentID = &parentID
		}
	}

	if cmd.CategoryID != nil && strings.TrimSpace(*cmd.CategoryID) != "" {
		existing, err := s.repo.GetCategory(ctx, strings.TrimSpace(*cmd.CategoryID))
		if err != nil {
			return Category{}, s.translateRepoError(err)
		}
		if category.ParentID != nil && *category.ParentID == existing.ID {
			return Category{}, fmt.Errorf("%w: category cannot parent itself", ErrCatalogInvalidInput)
		}
		category.ID = existing.ID
		category.CreatedAt = existing.CreatedAt
	} else {
		category.ID = categoryIDPrefix + s.newID()
		category.CreatedAt = now
	}
	category.UpdatedAt = now

	saved, err := s.repo.UpsertCategory(ctx, category)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "catalog.category.upsert", "categories/"+saved.ID)
	return saved, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string, actorID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if err := s.repo.DeleteCategory(ctx, categoryID, s.clock()); err != nil {
		return s.translateRepoError(err)
	}
	s.recordAudit(ctx, actorID, "catalog.category.delete", "categories/"+categoryID)
	return nil
}

func (s *catalogService) ListShoes(ctx context.Context, filter ShoeListFilter) (domain.Page[Shoe], error) {
	repoFilter := repositories.ShoeFilter{
		BrandID:        normalizeFilterPointer(filter.BrandID),
		CategoryID:     normalizeFilterPointer(filter.CategoryID),
		Gender:         filter.Gender,
		PriceRange:     filter.PriceRange,
		IncludeDeleted: filter.IncludeDeleted,
		Page:           filter.Page,
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		repoFilter.KeywordFolded = s.folder.String(keyword)
	}

	page, err := s.repo.ListShoes(ctx, repoFilter)
	if err != nil {
		return domain.Page[Shoe]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *catalogService) GetShoe(ctx context.Context, shoeID string) (ShoeDetail, error) {
	shoeID = strings.TrimSpace(shoeID)
	if shoeID == "" {
		return ShoeDetail{}, fmt.Errorf("%w: shoe id is required", ErrCatalogInvalidInput)
	}

	shoe, err := s.repo.GetShoe(ctx, shoeID)
	if err != nil {
		return ShoeDetail{}, s.translateRepoError(err)
	}
	if shoe.Deleted {
		return ShoeDetail{}, fmt.Errorf("%w: shoe %s", ErrCatalogNotFound, shoeID)
	}

	classifications, err := s.repo.ListClassifications(ctx, shoeID, false)
	if err != nil {
		return ShoeDetail{}, s.translateRepoError(err)
	}

	detail := ShoeDetail{Shoe: shoe, Classifications: make([]ClassificationDetail, 0, len(classifications))}
	for _, cls := range classifications {
		sizes, err := s.repo.ListSizes(ctx, cls.ID)
		if err != nil {
			return ShoeDetail{}, s.translateRepoError(err)
		}
		entry := ClassificationDetail{Classification: cls, Sizes: sizes}
		if s.signer != nil {
			entry.ThumbnailURL = s.signImage(ctx, cls.ThumbnailKey)
			for _, key := range cls.GalleryKeys {
				if url := s.signImage(ctx, key); url != "" {
					entry.GalleryURLs = append(entry.GalleryURLs, url)
				}
			}
		}
		detail.Classifications = append(detail.Classifications, entry)
	}

	if s.reviews != nil {
		summary, err := s.reviews.Summary(ctx, shoeID)
		if err == nil {
			detail.Reviews = summary
		}
	}

	return detail, nil
}

func (s *catalogService) UpsertShoe(ctx context.Context, cmd UpsertShoeCommand) (Shoe, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" || len(name) > maxShoeNameLength {
		return Shoe{}, fmt.Errorf("%w: shoe name must be 1-%d characters", ErrCatalogInvalidInput, maxShoeNameLength)
	}
	description := strings.TrimSpace(cmd.Description)
	if len(description) > maxShoeDescriptionLength {
		return Shoe{}, fmt.Errorf("%w: description must be %d characters or fewer", ErrCatalogInvalidInput, maxShoeDescriptionLength)
	}
	gender := cmd.Gender
	if gender == "" {
		gender = domain.ShoeGenderUnisex
	}
	if !isKnownGender(gender) {
		return Shoe{}, fmt.Errorf("%w: unknown gender %q", ErrCatalogInvalidInput, gender)
	}

	brandID := strings.TrimSpace(cmd.BrandID)
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if brandID == "" || categoryID == "" {
		return Shoe{}, fmt.Errorf("%w: brand and category are required", ErrCatalogInvalidInput)
	}
	if _, err := s.repo.GetBrand(ctx, brandID); err != nil {
		return Shoe{}, s.translateRepoError(err)
	}
	if _, err := s.repo.GetCategory(ctx, categoryID); err != nil {
		return Shoe{}, s.translateRepoError(err)
	}

	now := s.clock()
	shoe := domain.Shoe{
		BrandID:     brandID,
		CategoryID:  categoryID,
		Name:        name,
		NameFolded:  s.folder.String(name),
		Description: description,
		Gender:      gender,
		Material:    strings.TrimSpace(cmd.Material),
		Attributes:  textutil.NormalizeStringMap(cmd.Attributes),
	}

	if cmd.ShoeID != nil && strings.TrimSpace(*cmd.ShoeID) != "" {
		existing, err := s.repo.GetShoe(ctx, strings.TrimSpace(*cmd.ShoeID))
		if err != nil {
			return Shoe{}, s.translateRepoError(err)
		}
		shoe.ID = existing.ID
		shoe.CreatedAt = existing.CreatedAt
		shoe.MinPrice = existing.MinPrice
		shoe.Currency = existing.Currency
	} else {
		shoe.ID = shoeIDPrefix + s.newID()
		shoe.CreatedAt = now
	}
	shoe.UpdatedAt = now

	saved, err := s.repo.UpsertShoe(ctx, shoe)
	if err != nil {
		return Shoe{}, s.translateRepoError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "catalog.shoe.upsert", "shoes/"+saved.ID)
	return saved, nil
}

func (s *catalogService) DeleteShoe(ctx context.Context, shoeID string, actorID string) error {
	shoeID = strings.TrimSpace(shoeID)
	if shoeID == "" {
		return fmt.Errorf("%w: shoe id is required", ErrCatalogInvalidInput)
	}
	if err := s.repo.DeleteShoe(ctx, shoeID, s.clock()); err != nil {
		return s.translateRepoError(err)
	}
	s.recordAudit(ctx, actorID, "catalog.shoe.delete", "shoes/"+shoeID)
	return nil
}

func (s *catalogService) UpsertClassification(ctx context.Context, cmd UpsertClassificationCommand) (Classification, error) {
	shoeID := strings.TrimSpace(cmd.ShoeID)
	color := strings.TrimSpace(cmd.Color)
	if shoeID == "" || color == "" {
		return Classification{}, fmt.Errorf("%w: shoe id and color are required", ErrCatalogInvalidInput)
	}
	if cmd.UnitPrice <= 0 {
		return Classification{}, fmt.Errorf("%w: unit price must be positive", ErrCatalogInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if len(currency) != 3 {
		return Classification{}, fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrCatalogInvalidInput)
	}

	shoe, err := s.repo.GetShoe(ctx, shoeID)
	if err != nil {
		return Classification{}, s.translateRepoError(err)
	}
	if shoe.Deleted {
		return Classification{}, fmt.Errorf("%w: shoe %s", ErrCatalogNotFound, shoeID)
	}

	now := s.clock()
	classification := domain.Classification{
		ShoeID:       shoe.ID,
		Color:        color,
		UnitPrice:    cmd.UnitPrice,
		Currency:     currency,
		ThumbnailKey: strings.TrimSpace(cmd.ThumbnailKey),
		GalleryKeys:  normalizeKeys(cmd.GalleryKeys),
	}

	if cmd.ClassificationID != nil && strings.TrimSpace(*cmd.ClassificationID) != "" {
		existing, err := s.repo.GetClassification(ctx, strings.TrimSpace(*cmd.ClassificationID))
		if err != nil {
			return Classification{}, s.translateRepoError(err)
		}
		if existing.ShoeID != shoe.ID {
			return Classification{}, fmt.Errorf("%w: classification belongs to a different shoe", ErrCatalogInvalidInput)
		}
		classification.ID = existing.ID
		classification.CreatedAt = existing.CreatedAt
	} else {
		classification.ID = classificationIDPrefix + s.newID()
		classification.CreatedAt = now
	}
	classification.UpdatedAt = now

	saved, err := s.repo.UpsertClassification(ctx, classification)
	if err != nil {
		return Classification{}, s.translateRepoError(err)
	}

	// Keep the shoe's denormalised price floor in sync for list filtering.
	if shoe.MinPrice == 0 || saved.UnitPrice < shoe.MinPrice {
		shoe.MinPrice = saved.UnitPrice
		shoe.Currency = saved.Currency
		shoe.UpdatedAt = now
		if _, err := s.repo.UpsertShoe(ctx, shoe); err != nil {
			return Classification{}, s.translateRepoError(err)
		}
	}

	s.recordAudit(ctx, cmd.ActorID, "catalog.classification.upsert", "classifications/"+saved.ID)
	return saved, nil
}

func (s *catalogService) DeleteClassification(ctx context.Context, classificationID string, actorID string) error {
	classificationID = strings.TrimSpace(classificationID)
	if classificationID == "" {
		return fmt.Errorf("%w: classification id is required", ErrCatalogInvalidInput)
	}
	if err := s.repo.DeleteClassification(ctx, classificationID, s.clock()); err != nil {
		return s.translateRepoError(err)
	}
	s.recordAudit(ctx, actorID, "catalog.classification.delete", "classifications/"+classificationID)
	return nil
}

func (s *catalogService) UpsertSize(ctx context.Context, cmd UpsertSizeCommand) (ShoeSize, error) {
	classificationID := strings.TrimSpace(cmd.ClassificationID)
	if classificationID == "" {
		return ShoeSize{}, fmt.Errorf("%w: classification id is required", ErrCatalogInvalidInput)
	}
	if cmd.EUSize < minEUSize || cmd.EUSize > maxEUSize {
		return ShoeSize{}, fmt.Errorf("%w: EU size must be between %d and %d", ErrCatalogInvalidInput, minEUSize, maxEUSize)
	}
	if cmd.Quantity < 0 {
		return ShoeSize{}, fmt.Errorf("%w: quantity cannot be negative", ErrCatalogInvalidInput)
	}

	classification, err := s.repo.GetClassification(ctx, classificationID)
	if err != nil {
		return ShoeSize{}, s.translateRepoError(err)
	}
	if classification.Deleted {
		return ShoeSize{}, fmt.Errorf("%w: classification %s", ErrCatalogNotFound, classificationID)
	}

	now := s.clock()
	size := domain.ShoeSize{
		ClassificationID: classification.ID,
		EUSize:           cmd.EUSize,
		Quantity:         cmd.Quantity,
	}

	if cmd.SizeID != nil && strings.TrimSpace(*cmd.SizeID) != "" {
		existing, err := s.repo.GetSize(ctx, strings.TrimSpace(*cmd.SizeID))
		if err != nil {
			return ShoeSize{}, s.translateRepoError(err)
		}
		if existing.ClassificationID != classification.ID {
			return ShoeSize{}, fmt.Errorf("%w: size belongs to a different classification", ErrCatalogInvalidInput)
		}
		size.ID = existing.ID
		size.CreatedAt = existing.CreatedAt
	} else {
		sizes, err := s.repo.ListSizes(ctx, classification.ID)
		if err != nil {
			return ShoeSize{}, s.translateRepoError(err)
		}
		for _, existing := range sizes {
			if existing.EUSize == cmd.EUSize {
				return ShoeSize{}, fmt.Errorf("%w: EU size %d already exists", ErrCatalogConflict, cmd.EUSize)
			}
		}
		size.ID = sizeIDPrefix + s.newID()
		size.CreatedAt = now
	}
	size.UpdatedAt = now

	saved, err := s.repo.UpsertSize(ctx, size)
	if err != nil {
		return ShoeSize{}, s.translateRepoError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "catalog.size.upsert", "sizes/"+saved.ID)
	return saved, nil
}

func (s *catalogService) signImage(ctx context.Context, key string) string {
	key = strings.TrimSpace(key)
	if key == "" || s.signer == nil {
		return ""
	}
	url, err := s.signer.SignImageURL(ctx, key)
	if err != nil {
		return ""
	}
	return url
}

func (s *catalogService) recordAudit(ctx context.Context, actorID, action, target string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      strings.TrimSpace(actorID),
		ActorType:  "staff",
		Action:     action,
		TargetRef:  target,
		OccurredAt: s.clock(),
	})
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return err
}

func normalizeSlug(value string) string {
	slug := strings.ToLower(strings.TrimSpace(value))
	slug = slugSanitizer.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeFilterPointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isKnownGender(gender domain.ShoeGender) bool {
	switch gender {
	case domain.ShoeGenderMen, domain.ShoeGenderWomen, domain.ShoeGenderUnisex, domain.ShoeGenderKids:
		return true
	}
	return false
}
