// Package httpapi implements D9: a small HTTP control surface exposing
// Prometheus metrics and a read-only JSON snapshot of the scheduler's
// state, for external dashboards.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbohren-forks/catkin-tools/engine/scheduler"
)

// Snapshotter is satisfied by *scheduler.Scheduler.
type Snapshotter interface {
	Snapshot() scheduler.Snapshot
}

// NewRouter builds a chi.Router exposing:
//   - GET /metrics       — Prometheus exposition format, scraped from reg.
//   - GET /status        — JSON scheduler.Snapshot of the five partitions.
func NewRouter(reg *prometheus.Registry, sched Snapshotter) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		snap := sched.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return r
}
