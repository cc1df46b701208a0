package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver/handlers"
)

func init() { Register(registerInstances) }

func registerInstances(r chi.Router, d deps.Deps) {
	r.With(admin(d)...).Get("/instances", handlers.Instances(d))
	r.With(admin(d)...).Handle("/metrics", promhttp.Handler())
}
