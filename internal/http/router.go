package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bookstack/server/internal/auth"
	"github.com/bookstack/server/internal/http/handlers"
	"github.com/bookstack/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(authHandler *handlers.AuthHandler, catalogHandler *handlers.CatalogHandler, authService *auth.Service) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", handlers.NewHealthHandler().ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Post("/password-reset/request", authHandler.HandleRequestReset)
		r.Post("/password-reset/confirm", authHandler.HandleConfirmReset)
	})

	r.Get("/books", catalogHandler.HandleListBooks)
	r.Get("/books/{id}", catalogHandler.HandleGetBook)
	r.Get("/categories", catalogHandler.HandleListCategories)
	r.Get("/tags", catalogHandler.HandleListTags)

	// Protected routes (require a live session)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(authService))
		r.Get("/me", authHandler.HandleMe)
		r.Post("/me/password", authHandler.HandleChangePassword)
		r.Post("/books", catalogHandler.HandleCreateBook)
		r.Put("/books/{id}", catalogHandler.HandleUpdateBook)
		r.Delete("/books/{id}", catalogHandler.HandleDeleteBook)
		r.Post("/categories", catalogHandler.HandleCreateCategory)
		r.Post("/tags", catalogHandler.HandleCreateTag)
	})

	return r
}
