package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/mcloud/autenticador/internal/auth"
	"github.com/mcloud/autenticador/internal/config"
	httpmiddleware "github.com/mcloud/autenticador/internal/http/middleware"
	"github.com/mcloud/autenticador/internal/http/response"
	"github.com/mcloud/autenticador/internal/i18n"
	"github.com/mcloud/autenticador/internal/metrics"
	"github.com/mcloud/autenticador/internal/user"
)

// Pinger é satisfeito por *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies reúne o que o roteador precisa; montado em cmd/api.
type Dependencies struct {
	Config   *config.Config
	DB       Pinger
	Redis    *redis.Client
	Verifier auth.Verifier
	Users    *user.Service
	Trigger  user.Trigger
	Messages *i18n.Catalog
	Registry *prometheus.Registry
}

type Handler struct {
	cfg           *config.Config
	db            Pinger
	redis         *redis.Client
	messages      *i18n.Catalog
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
}

// NewRouter devolve roteador configurado.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	messages := deps.Messages
	if messages == nil {
		messages = i18n.NewCatalog(cfg.DefaultLocale)
	}

	h := &Handler{
		cfg:           cfg,
		db:            deps.DB,
		redis:         deps.Redis,
		messages:      messages,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	}

	usersHandler := user.NewHandler(deps.Users, deps.Trigger, messages, httpmiddleware.RequireGrants(cfg.AdminGrants...))

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Get("/health", h.Health)
		public.Get("/ready", h.Ready)
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Registry))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.Auth(deps.Verifier, cfg.Auth0.RolesClaim))
		api.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		api.Route("/auth", func(a chi.Router) {
			a.Get("/me", h.Me)
			a.Get("/roles", h.Roles)
		})
		user.Mount(api, usersHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Localized(w, r, messages, http.StatusNotFound, "NOT_FOUND", i18n.KeyRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Localized(w, r, messages, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", i18n.KeyMethodNotAllowed)
	})

	return r
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexões com Postgres e Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var dbErr, redisErr error
	if h.db != nil {
		dbErr = h.db.Ping(ctx)
	}
	if h.redis != nil {
		redisErr = h.redis.Ping(ctx).Err()
	}

	if dbErr != nil || redisErr != nil {
		response.Fail(w, http.StatusServiceUnavailable, "UNAVAILABLE", h.messages.Text(r, i18n.KeyUnavailable), map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	response.JSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
