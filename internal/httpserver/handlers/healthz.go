package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver/deps"
)

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version,omitempty"`
	Commit        string  `json:"commit,omitempty"`
	BuildDate     string  `json:"build_date,omitempty"`
	GoVersion     string  `json:"go_version,omitempty"`
	Instances     int     `json:"instances"`
	CacheEnabled  bool    `json:"cache_enabled"`
}

// Healthz is a liveness probe. It never touches the network or the cache.
func Healthz(d deps.Deps) http.HandlerFunc {
	start := d.StartTime
	instances := 0
	if d.Tracker != nil {
		instances = d.Tracker.Len()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthzResponse{
			Status:        "ok",
			Version:       d.Version,
			Commit:        d.Commit,
			BuildDate:     d.BuildDate,
			GoVersion:     d.GoVersion,
			UptimeSeconds: d.Now().Sub(start).Seconds(),
			Instances:     instances,
			CacheEnabled:  d.Cache != nil,
		})
	}
}
