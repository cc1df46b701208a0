package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Readyz is ready while at least one backend instance is out of cool-down
// and the cache, when enabled, answers.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Tracker != nil && determineMode(d.Tracker.Snapshot()) == "critical" {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Reason: "all instances cooling down"})
			return
		}
		if st := checkCache(r.Context(), d.Cache); st.Error != "" {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Reason: "cache unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
	}
}
