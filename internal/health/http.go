package health

import (
	"encoding/json"
	"net/http"
	"time"
)

type probeResponse struct {
	Status    Status        `json:"status"`
	Checks    []CheckResult `json:"checks,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// LivenessHandler answers /healthz. It reports process liveness only and
// never touches dependencies.
func (m *Manager) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, probeResponse{
			Status:    StatusHealthy,
			Timestamp: time.Now().UTC(),
		})
	})
}

// ReadinessHandler answers /readyz with per-dependency detail. Any failing
// dependency returns 503 so the load balancer stops routing scans here.
func (m *Manager) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks := m.Check(r.Context())
		status := StatusHealthy
		code := http.StatusOK
		for _, c := range checks {
			if c.Status != StatusHealthy {
				status = StatusUnhealthy
				code = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, code, probeResponse{
			Status:    status,
			Checks:    checks,
			Timestamp: time.Now().UTC(),
		})
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
