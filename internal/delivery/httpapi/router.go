package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const BasePath = "/api/premium-alerts"

type RouterOptions struct {
	InternalAPIKey string
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Live serves the websocket event stream. Nil disables /ws.
	Live http.Handler
}

func NewRouter(h *Handler, logger *zap.Logger, opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderUserID, HeaderUserTier, HeaderAPIKey},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	if opts.Live != nil {
		r.Handle("/ws", opts.Live)
	}

	r.Route(BasePath, func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Get("/preferences", h.GetPreferences)
			r.Put("/preferences", h.UpdatePreferences)
			r.Post("/preferences/sync-tier", h.SyncTier)

			r.Get("/watchlist", h.ListWatchlist)
			r.Post("/watchlist", h.AddToWatchlist)
			r.Delete("/watchlist/{brand}/{category}", h.RemoveFromWatchlist)

			r.Post("/test/{channel}", h.TestChannel)

			r.Get("/stats", h.Stats)
			r.Get("/history", h.History)
			r.Get("/pending", h.Pending)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAPIKey(opts.InternalAPIKey))

			r.Post("/process-deal", h.ProcessDeal)
			r.Post("/process-queue", h.ProcessQueue)
			r.Post("/scheduler/run", h.RunScheduler)
			r.Get("/scheduler/status", h.SchedulerStatus)
			r.Get("/admin/stats", h.AdminStats)
		})
	})

	return r
}
