package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/myhome-bridge/internal/audit"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/mqtt"
)

// handleListEvents returns a page of the bus journal, newest first.
//
// Query parameters:
//   - kind: "event" or "state"
//   - name: event name, or platform for state rows
//   - key: handler key ('_' may stand for '#')
//   - since: RFC 3339 timestamp
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Kind:    q.Get("kind"),
		Name:    q.Get("name"),
		Gateway: q.Get("gateway"),
	}
	if k := q.Get("key"); k != "" {
		filter.Key = mqtt.DecodeKey(k)
	}
	if filter.Kind != "" && filter.Kind != audit.KindEvent && filter.Kind != audit.KindState {
		writeBadRequest(w, "kind must be event or state")
		return
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list bus events", "error", err)
		writeInternalError(w, "failed to list bus events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
