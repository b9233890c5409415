package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const (
	maxCartItemQuantity = 10
	maxCartLines        = 50
	cartItemIDPrefix    = "ci_"
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart or cart item does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartStockExceeded indicates the requested quantity exceeds the size's stock.
var ErrCartStockExceeded = errors.New("cart service: stock exceeded")

// CartServiceDeps wires the repository and catalog dependencies for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Catalog         repositories.CatalogRepository
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	repo     repositories.CartRepository
	catalog  repositories.CatalogRepository
	newID    func() string
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "VND"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	service := &cartService{
		repo:     deps.Repository,
		catalog:  deps.Catalog,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: defaultCurrency,
		logger:   logger,
	}
	return service, nil
}

// GetOrCreateCart loads the active cart for the user, creating an empty cart when absent.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			saved, err := s.repo.UpsertCart(ctx, s.newCart(uid))
			if err != nil {
				return Cart{}, s.translateRepoError(err)
			}
			cart = saved
		} else {
			return Cart{}, s.translateRepoError(err)
		}
	}

	return s.normaliseCart(cart, uid), nil
}

// AddOrUpdateItem sets the quantity for a classification+size line. An
// existing line for the same size is replaced, not duplicated.
func (s *cartService) AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	userID := strings.TrimSpace(cmd.UserID)
	classificationID := strings.TrimSpace(cmd.ClassificationID)
	sizeID := strings.TrimSpace(cmd.SizeID)
	if userID == "" || classificationID == "" || sizeID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if cmd.Quantity <= 0 || cmd.Quantity > maxCartItemQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartItemQuantity)
	}

	classification, err := s.catalog.GetClassification(ctx, classificationID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: classification %s", ErrCartNotFound, classificationID)
		}
		return Cart{}, s.translateRepoError(err)
	}
	if classification.Deleted {
		return Cart{}, fmt.Errorf("%w: classification %s", ErrCartNotFound, classificationID)
	}

	shoe, err := s.catalog.GetShoe(ctx, classification.ShoeID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: shoe %s", ErrCartNotFound, classification.ShoeID)
		}
		return Cart{}, s.translateRepoError(err)
	}
	if shoe.Deleted {
		return Cart{}, fmt.Errorf("%w: shoe %s", ErrCartNotFound, shoe.ID)
	}

	size, err := s.catalog.GetSize(ctx, sizeID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: size %s", ErrCartNotFound, sizeID)
		}
		return Cart{}, s.translateRepoError(err)
	}
	if size.ClassificationID != classification.ID {
		return Cart{}, fmt.Errorf("%w: size %s does not belong to classification %s", ErrCartInvalidInput, sizeID, classificationID)
	}
	if size.Quantity < cmd.Quantity {
		return Cart{}, fmt.Errorf("%w: only %d pairs available", ErrCartStockExceeded, size.Quantity)
	}

	cart, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	if cart.Currency != "" && classification.Currency != "" && !strings.EqualFold(cart.Currency, classification.Currency) {
		return Cart{}, fmt.Errorf("%w: cart currency %s does not match item currency %s", ErrCartInvalidInput, cart.Currency, classification.Currency)
	}

	now := s.now()
	line := domain.CartItem{
		ID:               cartItemIDPrefix + s.newID(),
		ShoeID:           shoe.ID,
		ClassificationID: classification.ID,
		SizeID:           size.ID,
		EUSize:           size.EUSize,
		Quantity:         cmd.Quantity,
		UnitPrice:        classification.UnitPrice,
		AddedAt:          now,
	}

	items := make([]domain.CartItem, 0, len(cart.Items)+1)
	replaced := false
	for _, existing := range cart.Items {
		if existing.SizeID == size.ID {
			line.ID = existing.ID
			line.AddedAt = existing.AddedAt
			items = append(items, line)
			replaced = true
			continue
		}
		items = append(items, existing)
	}
	if !replaced {
		if len(cart.Items) >= maxCartLines {
			return Cart{}, fmt.Errorf("%w: cart holds at most %d lines", ErrCartInvalidInput, maxCartLines)
		}
		items = append(items, line)
	}

	saved, err := s.repo.ReplaceItems(ctx, userID, items)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	if saved.Currency == "" {
		saved.Currency = classification.Currency
	}
	return s.normaliseCart(saved, userID), nil
}

// RemoveItem drops one line from the cart by its item identifier.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	userID := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if userID == "" || itemID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}

	items := make([]domain.CartItem, 0, len(cart.Items))
	found := false
	for _, item := range cart.Items {
		if strings.EqualFold(strings.TrimSpace(item.ID), itemID) {
			found = true
			continue
		}
		items = append(items, item)
	}
	if !found {
		return Cart{}, fmt.Errorf("%w: item %s", ErrCartNotFound, itemID)
	}

	saved, err := s.repo.ReplaceItems(ctx, userID, items)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(saved, userID), nil
}

// ClearCart removes every line while keeping the cart document.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}

	if _, err := s.repo.ReplaceItems(ctx, uid, nil); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) loadOrCreate(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return s.newCart(userID), nil
		}
		return domain.Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

func (s *cartService) newCart(userID string) domain.Cart {
	return domain.Cart{
		ID:        userID,
		UserID:    userID,
		Currency:  s.currency,
		Items:     []domain.CartItem{},
		UpdatedAt: s.now(),
	}
}

func (s *cartService) normaliseCart(cart domain.Cart, userID string) domain.Cart {
	if cart.ID = strings.TrimSpace(cart.ID); cart.ID == "" {
		cart.ID = userID
	}
	cart.UserID = strings.TrimSpace(firstNonEmpty(cart.UserID, userID))
	cart.Currency = strings.ToUpper(strings.TrimSpace(firstNonEmpty(cart.Currency, s.currency)))
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = s.now()
	}
	return cart
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
		return ErrCartUnavailable
	}
	return ErrCartUnavailable
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
