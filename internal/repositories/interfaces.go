package repositories

import (
	"context"
	"time"

	domain "github.com/solestride/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Inventory() InventoryRepository
	Carts() CartRepository
	Orders() OrderRepository
	Sales() SaleRepository
	Reviews() ReviewRepository
	Favorites() FavoriteRepository
	Users() UserRepository
	Addresses() AddressRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CatalogRepository bundles brand/category/shoe/classification/size storage
// with shared transactions.
type CatalogRepository interface {
	ListBrands(ctx context.Context, includeDeleted bool) ([]domain.Brand, error)
	GetBrand(ctx context.Context, brandID string) (domain.Brand, error)
	UpsertBrand(ctx context.Context, brand domain.Brand) (domain.Brand, error)
	// DeleteBrand soft-deletes; public listings drop the brand, existing
	// order snapshots keep referencing it.
	DeleteBrand(ctx context.Context, brandID string, deletedAt time.Time) error

	ListCategories(ctx context.Context, includeDeleted bool) ([]domain.Category, error)
	GetCategory(ctx context.Context, categoryID string) (domain.Category, error)
	UpsertCategory(ctx context.Context, category domain.Category) (domain.Category, error)
	DeleteCategory(ctx context.Context, categoryID string, deletedAt time.Time) error

	ListShoes(ctx context.Context, filter ShoeFilter) (domain.Page[domain.Shoe], error)
	GetShoe(ctx context.Context, shoeID string) (domain.Shoe, error)
	UpsertShoe(ctx context.Context, shoe domain.Shoe) (domain.Shoe, error)
	DeleteShoe(ctx context.Context, shoeID string, deletedAt time.Time) error

	ListClassifications(ctx context.Context, shoeID string, includeDeleted bool) ([]domain.Classification, error)
	GetClassification(ctx context.Context, classificationID string) (domain.Classification, error)
	UpsertClassification(ctx context.Context, classification domain.Classification) (domain.Classification, error)
	DeleteClassification(ctx context.Context, classificationID string, deletedAt time.Time) error

	ListSizes(ctx context.Context, classificationID string) ([]domain.ShoeSize, error)
	GetSize(ctx context.Context, sizeID string) (domain.ShoeSize, error)
	UpsertSize(ctx context.Context, size domain.ShoeSize) (domain.ShoeSize, error)
}

// InventoryRepository mutates per-size stock with transactional guarantees.
type InventoryRepository interface {
	// DecrementStock checks and decrements every line atomically; any line
	// short on stock fails the whole call with a conflict error and no
	// partial write. Participates in an ambient transaction when present.
	DecrementStock(ctx context.Context, lines []StockLine, now time.Time) error
	// RestoreStock adds quantities back, used by cancellations and returns.
	RestoreStock(ctx context.Context, lines []StockLine, now time.Time) error
	// AdjustStock applies a staff-issued delta to one size. The resulting
	// quantity never goes below zero; violations return a conflict error.
	AdjustStock(ctx context.Context, sizeID string, delta int, now time.Time) (domain.ShoeSize, error)
}

// StockLine identifies one size and the quantity to move.
type StockLine struct {
	SizeID   string
	Quantity int
}

// CartRepository owns cart header + items persistence. Cart documents are
// keyed by user ID, one active cart per user.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
}

// OrderRepository persists order headers and provides query helpers for users and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByCode(ctx context.Context, code string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	// SearchByCodePrefix matches order codes beginning with the given
	// prefix, optionally scoped to one user.
	SearchByCodePrefix(ctx context.Context, prefix string, userID string, page domain.PageRequest) (domain.Page[domain.Order], error)
	// SoftDelete flips the liveness flag. The document stays in place for
	// audit and statistics; default listings skip it.
	SoftDelete(ctx context.Context, orderID string, deletedAt time.Time) error
	// ListInFlight returns orders whose status the carrier may still move,
	// for the polling reconciliation job.
	ListInFlight(ctx context.Context, statuses []domain.OrderStatus, limit int) ([]domain.Order, error)
	// CountConfirmedBetween counts orders confirmed in [start, end].
	CountConfirmedBetween(ctx context.Context, start, end time.Time) (int64, error)
}

// SaleRepository stores the append-only statistics fact rows derived from
// confirmed orders.
type SaleRepository interface {
	// InsertAll appends one record per confirmed order item. Participates in
	// an ambient transaction when present.
	InsertAll(ctx context.Context, records []domain.SaleRecord) error
	// ListBetween returns records with SoldAt in [start, end].
	ListBetween(ctx context.Context, start, end time.Time) ([]domain.SaleRecord, error)
}

// ReviewRepository stores shoe reviews, one per (user, shoe).
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) (domain.Review, error)
	Update(ctx context.Context, review domain.Review) (domain.Review, error)
	Delete(ctx context.Context, reviewID string) error
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	FindByUserAndShoe(ctx context.Context, userID, shoeID string) (domain.Review, error)
	ListByShoe(ctx context.Context, shoeID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	Summary(ctx context.Context, shoeID string) (domain.ReviewSummary, error)
}

// FavoriteRepository tracks favorite shoes per user.
type FavoriteRepository interface {
	List(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Favorite], error)
	Put(ctx context.Context, userID string, shoeID string, addedAt time.Time, limit int) (bool, error)
	Delete(ctx context.Context, userID string, shoeID string) error
}

// UserRepository stores user profile projections synced from Firebase Auth.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
}

// AddressRepository stores shipping addresses per user.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
	Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error)
	Delete(ctx context.Context, userID string, addressID string) error
	FindDefault(ctx context.Context, userID string) (domain.Address, error)
	SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID         string
	Status         []domain.OrderStatus
	DateRange      domain.RangeQuery[time.Time]
	IncludeDeleted bool
	Page           domain.PageRequest
}

type ShoeFilter struct {
	BrandID        *string
	CategoryID     *string
	Gender         *domain.ShoeGender
	PriceRange     domain.RangeQuery[int64]
	KeywordFolded  string
	IncludeDeleted bool
	Page           domain.PageRequest
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
