package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/plantclient/internal/plant"
)

// StateSource reports plant connection states.
type StateSource interface {
	States() map[plant.InfraType]plant.State
}

// Pinger checks the bar store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// createHealthHandler creates the HTTP handler for health checks. db may be
// nil when no bar store is configured; stats, when set, is served at
// /debug/stats.
func createHealthHandler(path string, plants StateSource, db Pinger, stats http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		states := make(map[string]string)
		for infra, st := range plants.States() {
			states[infra.String()] = st.String()
			switch st {
			case plant.StateLoggedIn:
			case plant.StateFailed:
				health.Status = "unhealthy"
			default:
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
			}
		}
		health.Components["plants"] = states

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	if stats != nil {
		mux.Handle("/debug/stats", stats)
	}

	return mux
}
