package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds one pass over all dependency checks.
const checkTimeout = 5 * time.Second

// HealthChecker is anything the service depends on that can report itself
// down: the evidence database, the blob store.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// HealthStatus is the body of /health.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

// CheckStatus is one dependency's result.
type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// runChecks reports every dependency and whether all of them are up.
func runChecks(ctx context.Context, checkers map[string]HealthChecker) (map[string]CheckStatus, bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	results := make(map[string]CheckStatus, len(checkers))
	ok := true
	for name, checker := range checkers {
		if err := checker.Check(ctx); err != nil {
			ok = false
			results[name] = CheckStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		results[name] = CheckStatus{Status: "healthy"}
	}
	return results, ok
}

func writeStatus(w http.ResponseWriter, ok bool, body any) {
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler reports each dependency by name. Any failure answers 503.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks, ok := runChecks(r.Context(), checkers)
		status := "healthy"
		if !ok {
			status = "unhealthy"
		}
		writeStatus(w, ok, HealthStatus{Status: status, Timestamp: time.Now(), Checks: checks})
	}
}

// ReadinessHandler answers 200 only while every dependency passes, so a load
// balancer stops routing uploads to an instance that cannot store them.
func ReadinessHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, ok := runChecks(r.Context(), checkers)
		status := "ready"
		if !ok {
			status = "not ready"
		}
		writeStatus(w, ok, map[string]any{"status": status, "timestamp": time.Now()})
	}
}

// LivenessHandler only says the process is serving.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
