package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", s.metricsHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/gateway", func(r chi.Router) {
			r.Get("/", s.handleGetGateway)
			r.Post("/test", s.handleTestGateway)
			r.Post("/services/{name}", s.handleCallService)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{key}", s.handleGetDevice)
			r.Post("/{key}/command", s.handleDeviceCommand)
		})

		r.Get("/events", s.handleListEvents)
		r.Get("/discovery", s.handleDiscovery)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status. The gateway section is
// present when a health source is configured.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	}
	if s.health != nil {
		resp["gateway"] = s.health.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}
