package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"termslens/internal/handlers"
	"termslens/internal/middleware"
	"termslens/internal/view"
	"termslens/internal/websocket"
)

func New(
	analyzeHandler *handlers.AnalyzeHandler,
	sessionHandler *handlers.SessionHandler,
	wsHub *websocket.Hub,
	limiter *middleware.RateLimiter,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/style.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Write(view.StyleCSS)
	})

	// ──── Pages ────
	r.Get("/", analyzeHandler.Index)
	r.With(limiter.Middleware).Post("/analyze", analyzeHandler.Submit)

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", sessionHandler.Show)
		r.Get("/ws", wsHub.HandleWebSocket)
		r.With(limiter.Middleware).Post("/chat", sessionHandler.Ask)
		r.Post("/suggestions/{n}", sessionHandler.Suggest)
	})

	// ──── JSON API ────
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/supported-formats", analyzeHandler.SupportedFormats)
		r.With(limiter.Middleware).Post("/analyze", analyzeHandler.Create)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Delete("/", sessionHandler.Delete)
			r.With(limiter.Middleware).Post("/chat", sessionHandler.Chat)
		})
	})

	return r
}
