package api

import (
	"net/http"
)

// handleDiscovery runs an SSDP search and returns the gateways found.
// The request blocks for the discovery timeout.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	if s.discovery == nil {
		writeUnavailable(w, "discovery not configured")
		return
	}

	gateways, err := s.discovery.Discover(r.Context())
	if err != nil {
		s.logger.Warn("gateway discovery failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, "discovery failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gateways": gateways, "count": len(gateways)})
}
