// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/weekline/internal/config"
)

// Router builds the admin API routes.
type Router struct {
	handler *Handler
	cfg     config.ServerConfig
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, cfg config.ServerConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// SetupChi returns the chi router serving every route.
func (router *Router) SetupChi() chi.Router {
	h := router.handler
	rateLimit := RateLimit(router.cfg)

	r := chi.NewRouter()
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(Metrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/widgets/{id}", h.GetWidget)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit)
			r.Post("/events", h.PostEvent)
			r.Post("/widgets/{id}/navigate/{direction}", h.NavigateWidget)
			r.Post("/refresh", h.Refresh)
			r.Post("/reset", h.Reset)
		})

		if h.device != nil {
			r.Get("/device", h.GetDevice)
			r.With(rateLimit).Put("/device", h.UpdateDevice)
		}
	})

	return r
}
