package deps

import (
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/health"
	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
	"github.com/MrSnakeDoc/sdsresolve/internal/search"
	"github.com/MrSnakeDoc/sdsresolve/internal/sources/fields"
	"github.com/MrSnakeDoc/sdsresolve/internal/store"
)

type Deps struct {
	Logger        logger.Logger
	StartTime     time.Time
	Version       string
	Commit        string
	BuildDate     string
	GoVersion     string
	TimeNow       func() time.Time // for testing, defaults to time.Now
	AllowedHosts  []string         // Host headers allowed on admin routes
	AllowedCIDRS  []string         // IPs allowed on admin routes (instances, metrics, reload)
	TrustProxy    bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	InboundBurst  int              // per-client burst on /resolve
	InboundPerMin int              // per-client refill per minute on /resolve
	Resolver      search.Resolver  // field resolution entry point
	Tracker       *health.Tracker  // backend instance health
	Cache         store.Cache      // result cache, nil when disabled
	Templates     *fields.Registry // active field templates
	ReloadTrigger chan struct{}    // Channel to trigger manual template reload (nil if no templates file)
	MaxFields     int              // max missing_fields per request
}

// Now returns d.TimeNow or time.Now.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
