package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/divoom-bridge/internal/bridge"
)

// healthCheckTimeout bounds each dependency probe in handleHealth.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleSystemMetrics)

		r.Route("/device", func(r chi.Router) {
			r.Get("/", s.handleGetDevice)
			r.Post("/commands", s.handleDeviceCommand)
			r.Get("/modes", s.handleListModes)
			r.Get("/history", s.handleGetHistory)
		})
	})

	return r
}

// handleHealth reports bridge health plus database and MQTT probes.
//
// The response is 503 only when the bridge itself is unhealthy. A failed
// dependency probe downgrades "healthy" to "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.bridge.Health()
	status := health.Status
	checks := map[string]string{}

	probe := func(name string, hc HealthChecker) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			if status == bridge.HealthHealthy {
				status = bridge.HealthDegraded
			}
			return
		}
		checks[name] = "ok"
	}
	if s.db != nil {
		probe("database", s.db)
	}
	if s.mqtt != nil {
		probe("mqtt", s.mqtt)
	}

	code := http.StatusOK
	if status == bridge.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"checks":     checks,
		"device":     health.Device,
		"statistics": health.Statistics,
		"reason":     health.Reason,
	})
}
