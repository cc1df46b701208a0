package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver/mw"
)

func init() { Register(registerResolve) }

func registerResolve(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.InboundBurst,
		RefillPerIPPerMin: d.InboundPerMin,
		MaxEntries:        10_000,
		TrustProxy:        d.TrustProxy,
		Now:               d.TimeNow,
	})
	r.With(limit).Post("/resolve", handlers.Resolve(d))
}
