package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/repositories"
)

type txContextKey struct{}

func contextWithTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// txFromContext returns the ambient transaction started by Registry.RunInTx.
// Repositories that support transactional grouping consult it before issuing
// standalone reads or writes.
func txFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// Registry wires all Firestore-backed repositories behind the typed accessors
// services depend on.
type Registry struct {
	provider *pfirestore.Provider

	catalog   *CatalogRepository
	inventory *InventoryRepository
	carts     *CartRepository
	orders    *OrderRepository
	sales     *SaleRepository
	reviews   *ReviewRepository
	favorites *FavoriteRepository
	users     *UserRepository
	addresses *AddressRepository
	auditLogs *AuditLogRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

// NewRegistry constructs every repository on top of the shared provider.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	if health == nil {
		return nil, errors.New("registry requires health repository")
	}

	reg := &Registry{provider: provider, health: health}

	var err error
	if reg.catalog, err = NewCatalogRepository(provider); err != nil {
		return nil, err
	}
	if reg.inventory, err = NewInventoryRepository(provider); err != nil {
		return nil, err
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.sales, err = NewSaleRepository(provider); err != nil {
		return nil, err
	}
	if reg.reviews, err = NewReviewRepository(provider); err != nil {
		return nil, err
	}
	if reg.favorites, err = NewFavoriteRepository(provider); err != nil {
		return nil, err
	}
	if reg.users, err = NewUserRepository(provider); err != nil {
		return nil, err
	}
	if reg.addresses, err = NewAddressRepository(provider); err != nil {
		return nil, err
	}
	if reg.auditLogs, err = NewAuditLogRepository(provider); err != nil {
		return nil, err
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, err
	}
	return reg, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Catalog() repositories.CatalogRepository     { return r.catalog }
func (r *Registry) Inventory() repositories.InventoryRepository { return r.inventory }
func (r *Registry) Carts() repositories.CartRepository          { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Sales() repositories.SaleRepository          { return r.sales }
func (r *Registry) Reviews() repositories.ReviewRepository      { return r.reviews }
func (r *Registry) Favorites() repositories.FavoriteRepository  { return r.favorites }
func (r *Registry) Users() repositories.UserRepository          { return r.users }
func (r *Registry) Addresses() repositories.AddressRepository   { return r.addresses }
func (r *Registry) AuditLogs() repositories.AuditLogRepository  { return r.auditLogs }
func (r *Registry) Counters() repositories.CounterRepository    { return r.counters }
func (r *Registry) Health() repositories.HealthRepository       { return r.health }

// RunInTx executes fn inside a single Firestore transaction. Repository calls
// made with the derived context share the transaction, so a failing call rolls
// the whole group back. Nested calls join the outer transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(contextWithTx(ctx, tx))
	})
}

var _ repositories.Registry = (*Registry)(nil)
