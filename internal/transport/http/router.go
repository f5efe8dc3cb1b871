// Package httptransport assembles the HTTP surface: shared middleware, the
// public, staff and admin route groups, and the operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/platform/middleware/admin"
	"civicdesk/pkg/platform/middleware/auth"
	"civicdesk/pkg/platform/middleware/device"
	"civicdesk/pkg/platform/middleware/metadata"
	"civicdesk/pkg/platform/middleware/request"
)

// PublicRoutes are reachable without a token.
type PublicRoutes interface {
	RegisterPublic(r chi.Router)
}

// StaffRoutes need any authenticated staff role.
type StaffRoutes interface {
	Register(r chi.Router)
}

// AdminRoutes need the admin role.
type AdminRoutes interface {
	RegisterAdmin(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger      *slog.Logger
	Validator   auth.JWTValidator
	Revocations auth.TokenRevocationChecker
	Gatherer    prometheus.Gatherer
	// ClientIP resolves caller addresses; nil trusts no forwarding header.
	ClientIP *metadata.Resolver
	Health   map[string]HealthCheck
	Public   []PublicRoutes
	Staff    []StaffRoutes
	Admin    []AdminRoutes
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter wires the middleware chain and every route group.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	if cfg.ClientIP != nil {
		r.Use(cfg.ClientIP.Middleware)
	} else {
		r.Use(metadata.ClientMetadata)
	}
	r.Use(device.Middleware)
	r.Use(request.Logger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.Health))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(cfg.Validator, cfg.Revocations))
		for _, h := range cfg.Public {
			h.RegisterPublic(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Revocations, cfg.Logger))
		r.Use(admin.RequireRole(cfg.Logger, id.RoleAdmin, id.RoleAgent))
		for _, h := range cfg.Staff {
			h.Register(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Revocations, cfg.Logger))
		r.Use(admin.RequireRole(cfg.Logger, id.RoleAdmin))
		for _, h := range cfg.Admin {
			h.RegisterAdmin(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "not_found", Description: "route not found"})
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if resp.Checks == nil {
				resp.Checks = map[string]string{}
			}
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
