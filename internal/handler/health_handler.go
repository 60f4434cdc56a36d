package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"

	"go.uber.org/zap"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheck probes one dependency. Critical checks gate /readyz.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

func runChecks(ctx context.Context, checks []HealthCheck) (string, []domain.ServiceHealth, bool) {
	now := time.Now().UTC().Format(time.RFC3339)
	services := []domain.ServiceHealth{
		{Name: "bfa-api", Status: "healthy", LastChecked: now},
	}
	ready := true
	overall := "healthy"

	for _, c := range checks {
		cctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		start := time.Now()
		err := c.Check(cctx)
		cancel()

		sh := domain.ServiceHealth{
			Name:        c.Name,
			Status:      "healthy",
			LatencyMs:   time.Since(start).Milliseconds(),
			LastChecked: now,
		}
		if err != nil {
			sh.Status = "degraded"
			sh.Error = err.Error()
			if c.Critical {
				sh.Status = "unhealthy"
				ready = false
			}
		}
		services = append(services, sh)

		switch {
		case sh.Status == "unhealthy":
			overall = "unhealthy"
		case sh.Status == "degraded" && overall == "healthy":
			overall = "degraded"
		}
	}
	return overall, services, ready
}

// healthzHandler always answers 200; the body reports dependency state.
func healthzHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, services, _ := runChecks(r.Context(), checks)
		if status != "healthy" {
			logger.Warn("health check degraded", zap.String("status", status))
		}
		WriteJSON(w, http.StatusOK, domain.HealthStatus{Status: status, Services: services})
	}
}

// readyzHandler answers 503 while a critical dependency is down.
func readyzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, services, ready := runChecks(r.Context(), checks)
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		WriteJSON(w, code, domain.HealthStatus{Status: status, Services: services})
	}
}

func chatMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, metrics.GetChatSnapshot())
	}
}
