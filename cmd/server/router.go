package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/relearn-api/internal/api"
	apiMiddleware "github.com/phrazzld/relearn-api/internal/api/middleware"
)

const requestTimeout = 30 * time.Second

// newRouter creates the application router with all routes and middleware.
func newRouter(svc api.ReviewService, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	reviewHandler := api.NewReviewHandler(svc, nil, logger)
	r.Route("/api", reviewHandler.Routes)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health check response", slog.String("error", err.Error()))
		}
	})

	return r
}
