package handlers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"reviewplane/internal/logger"
	"reviewplane/pkg/api"
)

// healthTimeout bounds each dependency check.
const healthTimeout = 3 * time.Second

// Component states reported by /health.
const (
	componentUp   = "up"
	componentDown = "down"
)

// Health handles GET /health.
// The engine is required; the job record store only degrades the service.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	var engineErr, storeErr error
	var g errgroup.Group
	g.Go(func() error {
		engineErr = h.engine.Ping(ctx)
		return nil
	})
	if h.store != nil {
		g.Go(func() error {
			storeErr = h.store.Ping(ctx)
			return nil
		})
	}
	g.Wait()

	resp := api.HealthResponse{
		Status:     api.HealthHealthy,
		Components: map[string]string{"engine": componentUp},
	}
	if h.store != nil {
		resp.Components["store"] = componentUp
	}

	log := logger.FromContext(r.Context(), h.logger)
	status := http.StatusOK
	if storeErr != nil {
		log.Warn("store health check failed", "error", storeErr)
		resp.Components["store"] = componentDown
		resp.Status = api.HealthDegraded
	}
	if engineErr != nil {
		log.Warn("engine health check failed", "error", engineErr)
		resp.Components["engine"] = componentDown
		resp.Status = api.HealthUnhealthy
		status = http.StatusServiceUnavailable
	}
	h.respondJson(w, status, resp)
}
