package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/health"
	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sdsresolve/internal/store"
)

type cacheStatus struct {
	Enabled bool   `json:"enabled"`
	Backend string `json:"backend,omitempty"`
	Entries int64  `json:"entries"`
	Expired int64  `json:"expired"`
	Hits    int64  `json:"hits"`
	Error   string `json:"error,omitempty"`
}

type instancesResponse struct {
	Mode            string            `json:"mode"`
	Instances       []health.Instance `json:"instances"`
	Cache           cacheStatus       `json:"cache"`
	TemplatesReload string            `json:"templates_last_reload"`
}

// Instances reports backend health and cache usage.
func Instances(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := d.Tracker.Snapshot()

		lastReload := "never"
		if d.Templates != nil {
			if t := d.Templates.LastReload(); !t.IsZero() {
				lastReload = t.Format(time.RFC3339)
			}
		}

		writeJSON(w, http.StatusOK, instancesResponse{
			Mode:            determineMode(snapshot),
			Instances:       snapshot,
			Cache:           checkCache(r.Context(), d.Cache),
			TemplatesReload: lastReload,
		})
	}
}

// determineMode is "healthy" when every instance is usable, "degraded" when
// some are cooling down and "critical" when none is.
func determineMode(instances []health.Instance) string {
	cooling := 0
	for _, inst := range instances {
		if inst.CoolingDown {
			cooling++
		}
	}
	switch {
	case len(instances) == 0 || cooling == len(instances):
		return "critical"
	case cooling > 0:
		return "degraded"
	default:
		return "healthy"
	}
}

func checkCache(ctx context.Context, cache store.Cache) cacheStatus {
	if cache == nil {
		return cacheStatus{Enabled: false}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st, err := cache.Stats(ctx)
	if err != nil {
		return cacheStatus{Enabled: true, Error: err.Error()}
	}
	return cacheStatus{
		Enabled: true,
		Backend: st.Backend,
		Entries: st.Entries,
		Expired: st.Expired,
		Hits:    st.Hits,
	}
}
