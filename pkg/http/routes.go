package http

import (
	"shortlink/pkg/middleware"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(r *chi.Mux, handler *Handler, auth *middleware.Auth, rateLimit *middleware.RateLimit) {
	r.Get("/health", handler.HealthCheck)

	// Public surface, limited per source IP.
	r.Group(func(r chi.Router) {
		r.Use(rateLimit.ByIP)
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
		r.Get("/s/{code}", handler.Redirect)
	})

	// Authenticated surface, limited per user.
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(rateLimit.ByUser)
		r.Post("/shorten", handler.Shorten)
		r.Get("/links", handler.ListLinks)
		r.Post("/delete", handler.DeleteLinks)
		r.Get("/stats", handler.Stats)
		r.Post("/logout", handler.Logout)
	})
}
