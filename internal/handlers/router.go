package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solestride/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

// routeGroup is one mounted segment under the API prefix. Groups without a
// registrar answer 501 so a partially wired server still routes cleanly.
type routeGroup struct {
	path        string
	name        string
	registrar   RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	groups      map[string]*routeGroup
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix = "/api/v1"
	defaultTimeout   = 60 * time.Second
)

// groupOrder fixes mount order; chi route registration is order-sensitive
// only for overlapping patterns but a stable order keeps route dumps
// readable.
var groupOrder = []string{"public", "me", "cart", "orders", "admin", "webhooks", "internal"}

// NewRouter constructs the chi router with shared middleware and the
// storefront route groups: catalog browsing under /public, account surfaces
// under /me, /cart and /orders, the back office under /admin, and carrier or
// PSP callbacks under /webhooks.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
		groups: make(map[string]*routeGroup, len(groupOrder)),
	}
	for _, name := range groupOrder {
		cfg.groups[name] = &routeGroup{path: "/" + name, name: name}
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	// Probes stay outside the API prefix so load balancers reach them
	// without auth or versioning.
	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, name := range groupOrder {
			group := cfg.groups[name]
			api.Route(group.path, func(sub chi.Router) {
				for _, mw := range group.middlewares {
					if mw != nil {
						sub.Use(mw)
					}
				}
				if group.registrar != nil {
					group.registrar(sub)
					return
				}
				registerNotImplemented(sub, group.name)
			})
		}
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

func withGroupRoutes(name string, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groups[name].registrar = reg
	}
}

func withGroupMiddlewares(name string, mw []func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		group := cfg.groups[name]
		group.middlewares = append(group.middlewares, mw...)
	}
}

// WithPublicRoutes configures the registrar for the public catalog endpoints.
func WithPublicRoutes(reg RouteRegistrar) Option { return withGroupRoutes("public", reg) }

// WithMeRoutes configures the registrar for user scoped endpoints.
func WithMeRoutes(reg RouteRegistrar) Option { return withGroupRoutes("me", reg) }

// WithCartRoutes configures the registrar for cart endpoints.
func WithCartRoutes(reg RouteRegistrar) Option { return withGroupRoutes("cart", reg) }

// WithOrderRoutes configures the registrar for order endpoints.
func WithOrderRoutes(reg RouteRegistrar) Option { return withGroupRoutes("orders", reg) }

// WithAdminRoutes configures the registrar for back-office endpoints.
func WithAdminRoutes(reg RouteRegistrar) Option { return withGroupRoutes("admin", reg) }

// WithWebhookRoutes configures the registrar for carrier and PSP callbacks.
func WithWebhookRoutes(reg RouteRegistrar) Option { return withGroupRoutes("webhooks", reg) }

// WithInternalRoutes configures the registrar for service-to-service endpoints.
func WithInternalRoutes(reg RouteRegistrar) Option { return withGroupRoutes("internal", reg) }

// WithWebhookMiddlewares configures middlewares applied to the /webhooks group.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return withGroupMiddlewares("webhooks", mw)
}

// WithInternalMiddlewares configures middlewares applied to the /internal group.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return withGroupMiddlewares("internal", mw)
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
