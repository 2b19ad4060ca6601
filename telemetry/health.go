package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
)

// Checker reports whether a dependency (Redis, a circuit breaker, ...) is
// currently healthy. Components register one Checker each under a name;
// HealthHandler aggregates them. Grounded on the teacher's
// telemetry/health.go HTTP-status-from-aggregate-state shape, but checks
// real injected dependencies instead of a global telemetry registry's
// internal counters (spec.md §9: no global service locator).
type Checker func(ctx context.Context) error

// HealthReport is the JSON body returned by HealthHandler.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthHandler builds an http.HandlerFunc for GET /healthz that runs every
// named Checker and reports "healthy" (200) only if all pass, else
// "unhealthy" (503) with per-dependency detail.
func HealthHandler(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := HealthReport{Status: "healthy", Checks: make(map[string]string, len(checks))}

		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				report.Status = "unhealthy"
				report.Checks[name] = err.Error()
			} else {
				report.Checks[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if report.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}
