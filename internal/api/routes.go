package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		// Users
		r.Route("/users", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/", s.HandleCreateUser)
			r.Get("/me", s.HandleGetCurrentUser)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetUser)
				r.Put("/", s.HandleUpdateUser)
			})
		})

		// Devices
		r.Route("/devices", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListDevices)
			r.Post("/", s.HandleCreateDevice)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetDevice)
				r.Put("/", s.HandleUpdateDevice)
				r.Delete("/", s.HandleDeleteDevice)
				r.Post("/approve", s.HandleApproveDevice)
				r.Post("/revoke", s.HandleRevokeDevice)
				r.Post("/push", s.HandlePushToDevice)
			})
		})

		// Schedule rules
		r.Route("/schedule-rules", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListScheduleRules)
			r.Post("/", s.HandleCreateScheduleRule)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetScheduleRule)
				r.Put("/", s.HandleUpdateScheduleRule)
				r.Delete("/", s.HandleDeleteScheduleRule)
			})
		})

		// Gateway runtime state
		r.Route("/gateway", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/statistics", s.HandleGatewayStatistics)
			r.Get("/connections", s.HandleGatewayConnections)
		})

		// Events
		r.Route("/events", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListEvents)
		})
	})
}
