package services

import (
	"context"
	"time"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination          = domain.Pagination
	PageRequest         = domain.PageRequest
	SortOrder           = domain.SortOrder
	Brand               = domain.Brand
	Category            = domain.Category
	Shoe                = domain.Shoe
	ShoeGender          = domain.ShoeGender
	Classification      = domain.Classification
	ShoeSize            = domain.ShoeSize
	Cart                = domain.Cart
	CartItem            = domain.CartItem
	CheckoutSession     = domain.CheckoutSession
	Order               = domain.Order
	OrderStatus         = domain.OrderStatus
	OrderStatusTimes    = domain.OrderStatusTimes
	OrderTotals         = domain.OrderTotals
	OrderItem           = domain.OrderItem
	OrderShipment       = domain.OrderShipment
	OrderAudit          = domain.OrderAudit
	Destination         = domain.Destination
	PaymentMethod       = domain.PaymentMethod
	Payment             = domain.Payment
	ReturnRecord        = domain.ReturnRecord
	ReturnStatus        = domain.ReturnStatus
	SaleRecord          = domain.SaleRecord
	ShoeSales           = domain.ShoeSales
	SalesTotals         = domain.SalesTotals
	MonthlySales        = domain.MonthlySales
	Review              = domain.Review
	ReviewSummary       = domain.ReviewSummary
	Favorite            = domain.Favorite
	Address             = domain.Address
	UserProfile         = domain.UserProfile
	SystemHealthReport  = domain.SystemHealthReport
	AuditLogEntry       = domain.AuditLogEntry
	SignedAssetResponse = domain.SignedAssetResponse
)

// CatalogService manages brands, categories, shoes, classifications, and
// sizes for both public browsing and admin maintenance.
type CatalogService interface {
	ListBrands(ctx context.Context) ([]Brand, error)
	UpsertBrand(ctx context.Context, cmd UpsertBrandCommand) (Brand, error)
	DeleteBrand(ctx context.Context, brandID string, actorID string) error

	ListCategories(ctx context.Context) ([]Category, error)
	UpsertCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string, actorID string) error

	ListShoes(ctx context.Context, filter ShoeListFilter) (domain.Page[Shoe], error)
	GetShoe(ctx context.Context, shoeID string) (ShoeDetail, error)
	UpsertShoe(ctx context.Context, cmd UpsertShoeCommand) (Shoe, error)
	DeleteShoe(ctx context.Context, shoeID string, actorID string) error

	UpsertClassification(ctx context.Context, cmd UpsertClassificationCommand) (Classification, error)
	DeleteClassification(ctx context.Context, classificationID string, actorID string) error
	UpsertSize(ctx context.Context, cmd UpsertSizeCommand) (ShoeSize, error)
}

// InventoryService centralizes staff stock adjustments.
type InventoryService interface {
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (ShoeSize, error)
}

// CartService manages mutable cart state while enforcing stock rules.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderService encapsulates the order lifecycle: creation from the cart
// snapshot, the status state machine, the return sub-flow, and queries.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderCreation, error)
	GetOrder(ctx context.Context, orderID string, principal Principal) (Order, error)
	GetOrderByCode(ctx context.Context, code string, principal Principal) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter, principal Principal) (domain.Page[Order], error)
	// DeleteOrder flips the liveness flag so the order drops out of default
	// listings. Status, history and statistics are untouched; direct gets
	// still resolve. Staff only.
	DeleteOrder(ctx context.Context, orderID string, principal Principal) error
	SearchOrders(ctx context.Context, codePrefix string, page PageRequest, principal Principal) (domain.Page[Order], error)
	ListStatuses(ctx context.Context) []OrderStatusInfo
	// TransitionStatus is the single validated entry point for every status
	// change, whatever the channel. External principals are restricted to
	// the confirm/cancel/return allow-list; the carrier channel drives
	// processing, shipped and delivered.
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	// HandOff registers a pending order with the carrier; the carrier's
	// acceptance moves the order to processing through the side-channel.
	HandOff(ctx context.Context, cmd HandOffCommand) (Order, error)
	RequestReturn(ctx context.Context, cmd RequestReturnCommand) (Order, error)
	ResolveReturn(ctx context.Context, cmd ResolveReturnCommand) (Order, error)
	// MarkPaymentCaptured records a successful PSP capture on the order.
	// Cancellations and approved returns consult this flag to decide
	// whether a refund is owed. Redelivered events replay as no-ops.
	MarkPaymentCaptured(ctx context.Context, orderID string, capturedAt time.Time) (Order, error)
	// ReconcileInFlight polls the carrier for orders it may still move and
	// feeds the results through TransitionStatus.
	ReconcileInFlight(ctx context.Context, limit int) (ReconcileReport, error)
}

// StatisticsService aggregates the confirmed-sale fact rows.
type StatisticsService interface {
	TopSellers(ctx context.Context, n int, window SalesWindow) ([]ShoeSales, error)
	WindowTotals(ctx context.Context, start, end time.Time) (SalesTotals, error)
	// MonthlyTotals always returns twelve entries, zero-filled for months
	// without sales.
	MonthlyTotals(ctx context.Context, year int) ([]MonthlySales, error)
}

// ReviewService coordinates the review lifecycle for verified buyers.
type ReviewService interface {
	Create(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	Update(ctx context.Context, cmd UpdateReviewCommand) (Review, error)
	Delete(ctx context.Context, cmd DeleteReviewCommand) error
	ListByShoe(ctx context.Context, shoeID string, pager Pagination) (ReviewPage, error)
	ListByUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Review], error)
}

// UserService manages profile, address, and favorite surfaces.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error)
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error)
	DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error
	ListFavorites(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Favorite], error)
	ToggleFavorite(ctx context.Context, cmd ToggleFavoriteCommand) error
}

// SystemService aggregates utility endpoints (health checks, audit logs, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// BackgroundJobDispatcher schedules asynchronous processing such as event
// fan-out and stale-cart cleanup.
type BackgroundJobDispatcher interface {
	EnqueueOrderEvent(ctx context.Context, payload OrderEventPayload) error
	EnqueueCartCleanup(ctx context.Context, payload CartCleanupPayload) error
}

// Principal identifies the actor performing an operation. Services receive it
// explicitly; it is never read from ambient state.
type Principal struct {
	UserID string
	Staff  bool
	// Carrier marks the shipping side-channel (webhook or reconciliation).
	Carrier bool
	// System marks internal automation (schedulers, migrations).
	System bool
}

// ActorID returns the identifier recorded on audit trails.
func (p Principal) ActorID() string {
	switch {
	case p.UserID != "":
		return p.UserID
	case p.Carrier:
		return "carrier"
	case p.System:
		return "system"
	default:
		return "anonymous"
	}
}

// Command and DTO definitions ------------------------------------------------

type UpsertBrandCommand struct {
	BrandID  *string
	Name     string
	Slug     string
	LogoPath string
	ActorID  string
}

type UpsertCategoryCommand struct {
	CategoryID *string
	ParentID   *string
	Name       string
	Slug       string
	Position   int
	ActorID    string
}

type ShoeListFilter struct {
	BrandID        *string
	CategoryID     *string
	Gender         *ShoeGender
	PriceRange     domain.RangeQuery[int64]
	Keyword        string
	IncludeDeleted bool
	Page           PageRequest
}

// ShoeDetail combines a shoe with its live variants for detail endpoints.
type ShoeDetail struct {
	Shoe            Shoe
	Classifications []ClassificationDetail
	Reviews         ReviewSummary
}

// ClassificationDetail pairs a classification with its sizes and signed
// image URLs.
type ClassificationDetail struct {
	Classification Classification
	Sizes          []ShoeSize
	ThumbnailURL   string
	GalleryURLs    []string
}

type UpsertShoeCommand struct {
	ShoeID      *string
	BrandID     string
	CategoryID  string
	Name        string
	Description string
	Gender      ShoeGender
	Material    string
	Attributes  map[string]string
	ActorID     string
}

type UpsertClassificationCommand struct {
	ClassificationID *string
	ShoeID           string
	Color            string
	UnitPrice        int64
	Currency         string
	ThumbnailKey     string
	GalleryKeys      []string
	ActorID          string
}

type UpsertSizeCommand struct {
	SizeID           *string
	ClassificationID string
	EUSize           int
	Quantity         int
	ActorID          string
}

type AdjustStockCommand struct {
	SizeID  string
	Delta   int
	ActorID string
}

type UpsertCartItemCommand struct {
	UserID           string
	ClassificationID string
	SizeID           string
	Quantity         int
}

type RemoveCartItemCommand struct {
	UserID string
	ItemID string
}

type OrderListFilter = repositories.OrderListFilter

// CreateOrderCommand creates an order from the user's cart snapshot. When
// AddressID is nil the default address is used; explicit Destination wins
// over both.
type CreateOrderCommand struct {
	UserID        string
	AddressID     *string
	Destination   *Destination
	PaymentMethod PaymentMethod
	Note          string
	Principal     Principal
}

type OrderStatusTransitionCommand struct {
	OrderID        string
	TargetStatus   OrderStatus
	Principal      Principal
	Reason         string
	ExpectedStatus *OrderStatus
	// Tracking carries the carrier reference when the shipped transition
	// originates from the side-channel.
	Tracking *OrderShipment
}

type HandOffCommand struct {
	OrderID          string
	PreferredCarrier string
	Principal        Principal
}

type RequestReturnCommand struct {
	OrderID   string
	Reason    string
	Principal Principal
}

type ResolveReturnCommand struct {
	OrderID   string
	Approve   bool
	StaffNote string
	Principal Principal
}

// OrderCreation pairs the persisted order with the PSP session card orders
// need to complete payment.
type OrderCreation struct {
	Order    Order
	Checkout *CheckoutSession
}

// OrderStatusInfo describes one status for vocabulary endpoints.
type OrderStatusInfo struct {
	Status   OrderStatus
	Label    string
	Terminal bool
	// External reports whether API principals may request the status.
	External bool
}

// ReconcileReport summarizes one reconciliation sweep.
type ReconcileReport struct {
	Scanned     int
	Transitions int
	Failures    int
}

// SalesWindow bounds a statistics query; zero values mean unbounded.
type SalesWindow struct {
	Start time.Time
	End   time.Time
}

type CreateReviewCommand struct {
	ShoeID  string
	UserID  string
	Rating  int
	Comment string
}

type UpdateReviewCommand struct {
	ReviewID string
	UserID   string
	Rating   int
	Comment  string
}

type DeleteReviewCommand struct {
	ReviewID  string
	Principal Principal
}

// ReviewPage bundles one page of reviews with the shoe's aggregate.
type ReviewPage struct {
	Reviews domain.CursorPage[Review]
	Summary ReviewSummary
}

type UpdateProfileCommand struct {
	UserID      string
	ActorID     string
	DisplayName *string
	PhoneNumber *string
}

type UpsertAddressCommand struct {
	UserID    string
	AddressID *string
	Address   Address
	IsDefault bool
}

type DeleteAddressCommand struct {
	UserID    string
	AddressID string
}

type ToggleFavoriteCommand struct {
	UserID string
	ShoeID string
	Mark   bool
}

// AuditLogRecord defines the payload accepted by the audit writer service.
type AuditLogRecord struct {
	Actor      string
	ActorType  string
	Action     string
	TargetRef  string
	Severity   string
	RequestID  string
	OccurredAt time.Time
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}

type CounterCommand struct {
	CounterID string
	Step      int64
}

// OrderEventPayload is published to the order events topic after lifecycle
// changes commit.
type OrderEventPayload struct {
	Type       string         `json:"type"`
	OrderID    string         `json:"orderId"`
	OrderCode  string         `json:"orderCode,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	Status     OrderStatus    `json:"status,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type CartCleanupPayload struct {
	UserIDs []string `json:"userIds"`
}
