package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// PageRequest defines page-number paging inputs for list operations that
// report total counts.
type PageRequest struct {
	Page     int
	PageSize int
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Brand identifies a shoe manufacturer presented in the catalog.
type Brand struct {
	ID        string
	Name      string
	Slug      string
	LogoPath  string
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category is a node in the catalog category tree.
type Category struct {
	ID        string
	ParentID  *string
	Name      string
	Slug      string
	Position  int
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShoeGender enumerates the audience segments a shoe is marketed for.
type ShoeGender string

const (
	// ShoeGenderMen marks shoes in the men's range.
	ShoeGenderMen ShoeGender = "men"
	// ShoeGenderWomen marks shoes in the women's range.
	ShoeGenderWomen ShoeGender = "women"
	// ShoeGenderUnisex marks shoes sold across ranges.
	ShoeGenderUnisex ShoeGender = "unisex"
	// ShoeGenderKids marks shoes in the kids' range.
	ShoeGenderKids ShoeGender = "kids"
)

// Shoe is the catalog root entity; concrete buyable variants live in
// Classification and ShoeSize.
type Shoe struct {
	ID          string
	BrandID     string
	CategoryID  string
	Name        string
	NameFolded  string
	Description string
	Gender      ShoeGender
	Material    string
	Attributes  map[string]string
	// MinPrice mirrors the cheapest live classification so listings can
	// filter on price without a join.
	MinPrice  int64
	Currency  string
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Classification is a colour/price variant of a shoe. Thumbnail and gallery
// hold opaque storage object keys, never public URLs.
type Classification struct {
	ID           string
	ShoeID       string
	Color        string
	UnitPrice    int64
	Currency     string
	ThumbnailKey string
	GalleryKeys  []string
	Deleted      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ShoeSize tracks sellable stock for one EU size of a classification.
type ShoeSize struct {
	ID               string
	ClassificationID string
	EUSize           int
	Quantity         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Cart aggregates the mutable shopping cart state for a user. One cart per
// user, keyed by the user ID.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem stores one classification+size entry within a cart.
type CartItem struct {
	ID               string
	ShoeID           string
	ClassificationID string
	SizeID           string
	EUSize           int
	Quantity         int
	UnitPrice        int64
	AddedAt          time.Time
	UpdatedAt        *time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits acceptance.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates the order was accepted and is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the carrier picked the parcel up.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier reported delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusConfirmed indicates the customer confirmed receipt; the sale
	// counts toward statistics from this point on.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusCanceled indicates the order was canceled before shipment.
	OrderStatusCanceled OrderStatus = "canceled"
	// OrderStatusReturned indicates an approved return closed the order.
	OrderStatusReturned OrderStatus = "returned"
)

// OrderStatusTimes records when each lifecycle state was first reached. A
// field is written at most once; replayed transitions leave it untouched.
type OrderStatusTimes struct {
	PendingAt    *time.Time
	ProcessingAt *time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
	ConfirmedAt  *time.Time
	CanceledAt   *time.Time
	ReturnedAt   *time.Time
}

// PaymentMethod enumerates how an order is paid.
type PaymentMethod string

const (
	// PaymentMethodCOD collects payment on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodCard pays online through the PSP.
	PaymentMethodCard PaymentMethod = "card"
)

// Order captures order headers returned to handlers/services. Items,
// Destination and Totals are snapshots frozen at creation.
type Order struct {
	ID            string
	Code          string
	UserID        string
	Status        OrderStatus
	StatusTimes   OrderStatusTimes
	Currency      string
	Totals        OrderTotals
	Items         []OrderItem
	Destination   Destination
	PaymentMethod PaymentMethod
	Payment       *Payment
	Shipment      *OrderShipment
	Return        *ReturnRecord
	Note          string
	CancelReason  *string
	Audit         OrderAudit
	// Deleted hides the order from default listings; direct lookups and
	// statistics still see it.
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal    int64
	ShippingFee int64
	Total       int64
}

// OrderItem mirrors catalog data at the time the order was placed.
type OrderItem struct {
	ShoeID           string
	ClassificationID string
	SizeID           string
	Name             string
	Color            string
	EUSize           int
	ThumbnailKey     string
	UnitPrice        int64
	Quantity         int
	Total            int64
}

// Destination is the shipping address snapshot frozen onto an order.
type Destination struct {
	Recipient    string
	Phone        string
	Line1        string
	Line2        *string
	WardCode     string
	DistrictCode string
	ProvinceCode string
}

// OrderShipment holds the carrier reference attached after handoff.
type OrderShipment struct {
	Carrier      string
	TrackingCode string
	WeightGrams  int
	QuotedFee    int64
	CreatedAt    time.Time
}

// OrderAudit records the actors responsible for creating/updating the order.
type OrderAudit struct {
	CreatedBy *string
	UpdatedBy *string
}

// Payment encapsulates PSP references for card orders. COD orders carry none.
type Payment struct {
	Provider   string
	IntentID   string
	Status     string
	Amount     int64
	Currency   string
	Captured   bool
	CapturedAt *time.Time
	RefundedAt *time.Time
}

// ReturnStatus enumerates states of the return sub-flow.
type ReturnStatus string

const (
	// ReturnStatusRequested indicates the customer opened a return request.
	ReturnStatusRequested ReturnStatus = "requested"
	// ReturnStatusApproved indicates staff accepted the request.
	ReturnStatusApproved ReturnStatus = "approved"
	// ReturnStatusRejected indicates staff declined the request.
	ReturnStatusRejected ReturnStatus = "rejected"
	// ReturnStatusRefunded indicates the refund was issued.
	ReturnStatusRefunded ReturnStatus = "refunded"
)

// ReturnRecord is the return sub-flow attached to an order.
type ReturnRecord struct {
	Reason      string
	Status      ReturnStatus
	StaffNote   *string
	RequestedAt time.Time
	ResolvedAt  *time.Time
	RefundedAt  *time.Time
	ResolvedBy  *string
}

// CheckoutSession represents PSP checkout session metadata stored by services.
type CheckoutSession struct {
	SessionID    string
	PSP          string
	ClientSecret string
	RedirectURL  string
	ExpiresAt    time.Time
}

// SaleRecord is one statistics fact row, produced per order item at the
// moment an order is confirmed.
type SaleRecord struct {
	ID        string
	OrderID   string
	ShoeID    string
	ShoeName  string
	Quantity  int
	UnitPrice int64
	Revenue   int64
	SoldAt    time.Time
}

// ShoeSales aggregates units and revenue for one shoe over a window.
type ShoeSales struct {
	ShoeID   string
	ShoeName string
	Units    int
	Revenue  int64
}

// SalesTotals rolls a window of confirmed sales up to three numbers.
type SalesTotals struct {
	Revenue int64
	Units   int
	Orders  int
}

// MonthlySales is one month's slice of a yearly report. Month is 1-based.
type MonthlySales struct {
	Month   int
	Revenue int64
	Units   int
	Orders  int
}

// Review captures a buyer's feedback on a shoe. One review per (user, shoe).
type Review struct {
	ID        string
	ShoeID    string
	UserID    string
	OrderID   string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReviewSummary aggregates review counts for a shoe.
type ReviewSummary struct {
	Count   int
	Average float64
}

// Favorite ties a user to a shoe for fast wishlist lookups.
type Favorite struct {
	ShoeID  string
	AddedAt time.Time
}

// Address represents saved shipping addresses on a user profile.
type Address struct {
	ID           string
	Recipient    string
	Phone        string
	Line1        string
	Line2        *string
	WardCode     string
	DistrictCode string
	ProvinceCode string
	IsDefault    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthProvider records linked Firebase identity provider metadata.
type AuthProvider struct {
	ProviderID  string
	UID         string
	Email       string
	DisplayName string
	PhoneNumber string
	PhotoURL    string
}

// UserProfile captures the canonical projection of a Firebase Auth user.
type UserProfile struct {
	ID           string
	DisplayName  string
	Email        string
	PhoneNumber  string
	PhotoURL     string
	Roles        []string
	IsActive     bool
	ProviderData []AuthProvider
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncTime time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// AuditLogEntry stores normalized audit information for admin use.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	IPHash    string
	UserAgent string
	Severity  string
	RequestID string
	CreatedAt time.Time
}

// SignedAssetResponse returns signed URL payloads for catalog imagery.
type SignedAssetResponse struct {
	Key       string
	URL       string
	ExpiresAt time.Time
	Method    string
	Headers   map[string]string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Page packages list results with page-number metadata and total counts.
type Page[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	TotalItems int64
	TotalPages int
	HasNext    bool
	HasPrev    bool
}
