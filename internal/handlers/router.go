package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/picksy/syncd/internal/docs"
	"github.com/picksy/syncd/internal/events"
	"github.com/picksy/syncd/internal/importer"
	"github.com/picksy/syncd/internal/library"
	custommw "github.com/picksy/syncd/internal/middleware"
	"github.com/picksy/syncd/internal/observability"
)

// RouterConfig carries everything the command surface needs
type RouterConfig struct {
	Service  *library.Service
	Importer *importer.Importer
	Hub      *events.Hub
	Sync     SyncInfoSource

	// APIKey is nil when authentication is disabled
	APIKey       *custommw.KeyVerifier
	APIKeyHeader string

	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow time.Duration

	// Metrics is optional
	Metrics     *observability.HTTPMetrics
	ServiceName string
}

// NewRouter builds the chi router for the command surface
func NewRouter(cfg RouterConfig) http.Handler {
	photoHandler := NewPhotoHandler(cfg.Service, cfg.Importer)
	stateHandler := NewStateHandler(cfg.Service)
	presenceHandler := NewPresenceHandler(cfg.Service)
	healthHandler := NewHealthHandler(cfg.Sync)
	wsHandler := NewWebSocketHandler(cfg.Hub, cfg.CORSOrigins)

	headerName := cfg.APIKeyHeader
	if headerName == "" {
		headerName = "X-API-Key"
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "picksyd"
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observability.TracingMiddleware(serviceName))
	if cfg.Metrics != nil {
		r.Use(observability.MetricsMiddleware(cfg.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", headerName},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.RateLimitReqs > 0 && cfg.RateLimitWindow > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
	}
	r.Use(custommw.APIKeyAuth(cfg.APIKey, headerName))

	// Routes
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/ws", wsHandler.HandleConnection)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/state", func(r chi.Router) {
		r.Get("/", stateHandler.Get)
		r.Post("/dispatch", stateHandler.Dispatch)
		r.Post("/resync", stateHandler.Resync)
	})

	r.Route("/api/photos", func(r chi.Router) {
		r.Get("/", photoHandler.List)
		r.Post("/", photoHandler.Enqueue)
		r.Delete("/", photoHandler.Clear)
		r.Post("/import", photoHandler.Import)
		r.Get("/{id}", photoHandler.GetByID)
		r.Delete("/{id}", photoHandler.Delete)
		r.Put("/{id}/config", photoHandler.UpdateConfig)
		r.Put("/{id}/favorite", photoHandler.UpdateFavorite)
		r.Put("/{id}/stack", photoHandler.UpdateStack)
		r.Get("/{id}/metadata", photoHandler.Metadata)
	})

	r.Route("/api/presence", func(r chi.Router) {
		r.Get("/", presenceHandler.Get)
		r.Post("/emit", presenceHandler.Emit)
	})

	return r
}
