package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/myhome-bridge/internal/bridges/myhome"
)

// GatewayResponse is the gateway view returned by GET /api/v1/gateway.
type GatewayResponse struct {
	myhome.Identity
	Listener   string       `json:"listener"`
	QueueDepth int          `json:"queue_depth"`
	Workers    int          `json:"workers"`
	Statistics myhome.Stats `json:"statistics"`
	Services   []string     `json:"services"`
}

// handleGetGateway returns the gateway identity and runtime counters.
func (s *Server) handleGetGateway(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, GatewayResponse{
		Identity:   s.gateway.Identity(),
		Listener:   s.gateway.ListenerState().String(),
		QueueDepth: s.gateway.QueueDepth(),
		Workers:    s.gateway.Workers(),
		Statistics: s.gateway.Stats(),
		Services:   myhome.Services,
	})
}

// handleTestGateway opens and closes a command session. A failed test is
// still a 200; the body carries the reason.
func (s *Server) handleTestGateway(w http.ResponseWriter, r *http.Request) {
	result := s.gateway.Test(r.Context())
	writeJSON(w, http.StatusOK, result)
}

// handleCallService runs a gateway service with the request body as its
// JSON payload. Services only enqueue frames, so success is 202.
func (s *Server) handleCallService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body failed")
		return
	}

	switch err := s.gateway.CallService(name, data); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "service": name})
	case errors.Is(err, myhome.ErrUnknownService):
		writeNotFound(w, "unknown service: "+name)
	case errors.Is(err, myhome.ErrInvalidServiceData):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("gateway service failed", "service", name, "error", err)
		writeInternalError(w, "service call failed")
	}
}
