package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"listing-scraper/utils"
)

// NewRouter creates and configures the Chi router
func NewRouter(searcher Searcher, maxPages int, logger *utils.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	h := NewHandlers(searcher, maxPages, logger)

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/search", h.Search)
		r.Post("/search.csv", h.SearchCSV)
	})

	return r
}

func requestLogger(logger *utils.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(map[string]any{
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("[api] %s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
		})
	}
}
