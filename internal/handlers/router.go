package handlers

import (
	"net/http"

	"github.com/alextreichler/storefront/internal/orders"
	"github.com/alextreichler/storefront/internal/reporting"
	"github.com/alextreichler/storefront/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
)

type RouterConfig struct {
	Store        *store.Store
	Orders       *orders.Service
	Stats        *reporting.Aggregator
	SessionStore *sessions.CookieStore
	RateLimiter  *RateLimiter
	UploadDir    string

	CSRFEnabled    bool
	CSRFKey        []byte
	CookieSecure   bool
	TrustedOrigins []string
}

// NewRouter wires every route.
// Chain: RequestID -> RealIP -> Logger -> Recoverer -> Security Headers -> CSRF -> routes
func NewRouter(cfg RouterConfig) http.Handler {
	auth := &AuthHandler{Store: cfg.Store, SessionStore: cfg.SessionStore}
	catalog := &CatalogHandler{Store: cfg.Store, UploadDir: cfg.UploadDir}
	users := &UserHandler{Store: cfg.Store}
	orderH := &OrderHandler{Orders: cfg.Orders}
	admin := &AdminHandler{Store: cfg.Store, Stats: cfg.Stats}

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		limit = cfg.RateLimiter.Middleware
	}
	adminOnly := chi.Chain(auth.RequireAuth, auth.RequireAdmin)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware)
	if cfg.CSRFEnabled {
		r.Use(csrfMiddleware(cfg))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", admin.Health)
	if cfg.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limit).Post("/register", auth.Register)
			r.With(limit).Post("/login", auth.Login)
			r.Post("/logout", auth.Logout)
			r.With(auth.RequireAuth).Get("/me", auth.Me)
			r.Get("/csrf", auth.CSRFToken)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", catalog.ListProducts)
			r.Get("/categories", catalog.Categories)
			r.Get("/{id}", catalog.GetProduct)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly...)
				r.Post("/", catalog.CreateProduct)
				r.Put("/{id}", catalog.UpdateProduct)
				r.Delete("/{id}", catalog.DeleteProduct)
				r.Post("/{id}/image", catalog.UploadImage)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Get("/{id}", users.GetUser)
			r.Put("/{id}", users.UpdateUser)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/", users.ListUsers)
				r.Put("/{id}/toggle-role", users.ToggleRole)
				r.Delete("/{id}", users.DeleteUser)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.With(limit).Post("/", orderH.CreateOrder)
			r.With(limit).Post("/user/{userId}", orderH.CreateOrderForUser)
			r.Get("/user/{userId}", orderH.ListUserOrders)
			r.Get("/{id}", orderH.GetOrder)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/", orderH.ListOrders)
				r.Get("/recent", orderH.RecentOrders)
				r.Get("/status/{status}", orderH.ListOrdersByStatus)
				r.Put("/{id}/status", orderH.UpdateOrderStatus)
			})
		})

		r.With(adminOnly...).Get("/admin/dashboard/stats", admin.DashboardStats)
	})

	return r
}

func csrfMiddleware(cfg RouterConfig) func(http.Handler) http.Handler {
	protect := csrf.Protect(
		cfg.CSRFKey,
		csrf.Secure(cfg.CookieSecure),
		csrf.Path("/"),
		csrf.TrustedOrigins(cfg.TrustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			msg := "CSRF token invalid"
			if reason := csrf.FailureReason(r); reason != nil {
				msg = reason.Error()
			}
			writeError(w, http.StatusForbidden, "csrf_invalid", msg)
		})),
	)
	return func(next http.Handler) http.Handler {
		h := protect(next)
		if cfg.CookieSecure {
			return h
		}
		// Without TLS there is no Referer to check against.
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}
