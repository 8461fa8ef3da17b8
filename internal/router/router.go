// Package router sets up the HTTP router and middleware chain.
package router

import (
	"net/http"

	"github.com/akz4ol/sqlgateway/internal/audit"
	"github.com/akz4ol/sqlgateway/internal/authn"
	"github.com/akz4ol/sqlgateway/internal/config"
	"github.com/akz4ol/sqlgateway/internal/handler"
	"github.com/akz4ol/sqlgateway/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Dependencies holds all dependencies needed by the router.
type Dependencies struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Authn       middleware.Authenticator
	RateLimiter middleware.RateLimiter
	Audit       *audit.Logger

	HealthHandler      *handler.HealthHandler
	AuthHandler        *handler.AuthHandler
	ConnectionsHandler *handler.ConnectionsHandler
	DatabasesHandler   *handler.DatabasesHandler
	QueryHandler       *handler.QueryHandler
	KeysHandler        *handler.KeysHandler
	LogsHandler        *handler.LogsHandler
	SettingsHandler    *handler.SettingsHandler

	// MCPHTTPHandler serves the /mcp JSON-RPC transport when the gateway
	// runs with TRANSPORT=http. Nil when running stdio-only.
	MCPHTTPHandler http.Handler
}

// New creates a new router with all middleware and routes configured.
func New(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// CORS middleware - must be first
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Trace-ID", "mcp-session-id"},
		ExposedHeaders:   []string{"mcp-session-id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global middleware (order matters!)
	r.Use(chimiddleware.RequestID)                                // 1. Add request ID
	r.Use(chimiddleware.RealIP)                                   // 2. Get real IP from headers
	r.Use(middleware.Recoverer(deps.Logger))                      // 3. Recover from panics
	r.Use(middleware.Logger(deps.Logger))                         // 4. Log requests
	r.Use(middleware.Trace())                                     // 5. Add trace context
	r.Use(chimiddleware.Timeout(deps.Config.Server.WriteTimeout)) // 6. Request timeout

	// Health endpoints (no auth required)
	r.Get("/health", deps.HealthHandler.Health)
	r.Get("/ready", deps.HealthHandler.Ready)

	// Auth endpoints: login/logout are public; me/change-password require
	// an already-resolved identity.
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", deps.AuthHandler.Login)
		r.Post("/logout", deps.AuthHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.Authn, authn.CookieName(), deps.Logger))
			r.Get("/me", deps.AuthHandler.Me)
			r.Post("/change-password", deps.AuthHandler.ChangePassword)
		})
	})

	// REST configuration API and the HTTP MCP transport: every route below
	// requires authentication and is subject to the shared rate limiter.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(deps.Authn, authn.CookieName(), deps.Logger))
		if deps.RateLimiter != nil && deps.Config.RateLimit.Enabled {
			r.Use(middleware.RateLimit(deps.RateLimiter, deps.Config.RateLimit.MaxRequests, deps.Logger))
		}
		if deps.Audit != nil {
			r.Use(middleware.Audit(deps.Audit))
		}

		r.Route("/api/connections", func(r chi.Router) {
			r.Get("/", deps.ConnectionsHandler.List)
			r.Post("/", deps.ConnectionsHandler.Create)
			r.Get("/{id}", deps.ConnectionsHandler.Get)
			r.Put("/{id}", deps.ConnectionsHandler.Update)
			r.Delete("/{id}", deps.ConnectionsHandler.Delete)
			r.Post("/{id}/test", deps.ConnectionsHandler.Test)
			r.Post("/{id}/discover", deps.ConnectionsHandler.Discover)
		})

		r.Route("/api/databases", func(r chi.Router) {
			r.Get("/", deps.DatabasesHandler.List)
			r.Get("/{alias}", deps.DatabasesHandler.Get)
			r.Put("/{alias}/enabled", deps.DatabasesHandler.SetEnabled)
			r.Put("/{alias}/permissions", deps.DatabasesHandler.SetPermissions)
			r.Put("/{alias}/alias", deps.DatabasesHandler.Rename)
		})

		r.Post("/api/query", deps.QueryHandler.Run)

		r.Route("/api/keys", func(r chi.Router) {
			r.Get("/", deps.KeysHandler.List)
			r.Post("/", deps.KeysHandler.Create)
			r.Post("/{id}/revoke", deps.KeysHandler.Revoke)
			r.Delete("/{id}", deps.KeysHandler.Delete)
		})

		r.Route("/api/logs", func(r chi.Router) {
			r.Get("/", deps.LogsHandler.List)
			r.Get("/stats", deps.LogsHandler.Stats)
		})

		r.Route("/api/settings", func(r chi.Router) {
			r.Get("/", deps.SettingsHandler.List)
			r.Get("/{key}", deps.SettingsHandler.Get)
			r.Put("/{key}", deps.SettingsHandler.Set)
		})

		if deps.MCPHTTPHandler != nil {
			r.Handle("/mcp", deps.MCPHTTPHandler)
		}
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, http.StatusNotFound, "not_found", "The requested resource was not found")
	})

	// 405 handler
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "The requested method is not allowed")
	})

	return r
}
