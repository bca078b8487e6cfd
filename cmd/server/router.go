package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pinbox/pinbox-api/internal/api"
	apiMiddleware "github.com/pinbox/pinbox-api/internal/api/middleware"
)

// setupRouter configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	cardHandler := api.NewCardHandler(app.cardService)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/cards", cardHandler.CreateCard)
			r.Get("/cards/{id}", cardHandler.GetCard)
			r.Get("/cards/{id}/status", cardHandler.GetCardStatus)
			r.Post("/cards/{id}/regenerate", cardHandler.RegenerateAI)
			r.Delete("/cards/{id}", cardHandler.DeleteCard)
		})
	})

	// Stored renderables (thumbnails, favicons) are served straight off disk.
	r.Handle("/blobs/*", http.StripPrefix("/blobs/",
		http.FileServer(http.Dir(app.config.Storage.Dir))))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
