// Package httpapi serves the operational endpoints of the tag and gateway
// binaries: /metrics and /healthz.
package httpapi

import (
	"log/slog"
	"net/http"

	"cloudpico-tag/internal/health"
	"cloudpico-tag/internal/utils"
)

// Check reports an unhealthy dependency.
type Check func() error

type stepStatus struct {
	Name     string `json:"name"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

type failureStatus struct {
	Count   uint64 `json:"count"`
	LastErr string `json:"last_error,omitempty"`
}

type healthStatus struct {
	Status   string                   `json:"status"`
	Boot     []stepStatus             `json:"boot,omitempty"`
	Failures map[string]failureStatus `json:"failures,omitempty"`
	Checks   map[string]string        `json:"checks,omitempty"`
}

// healthz answers 200 unless boot failed critically or a check fails.
// Runtime failure tallies are reported but never make the endpoint fail.
func healthz(report *health.Report, checks map[string]Check, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := healthStatus{Status: "ok"}
		status := http.StatusOK

		if report != nil {
			for _, s := range report.Steps() {
				st := stepStatus{Name: s.Name, Critical: s.Critical}
				if s.Err != nil {
					st.Error = s.Err.Error()
				}
				body.Boot = append(body.Boot, st)
			}
			for op, t := range report.Failures() {
				if body.Failures == nil {
					body.Failures = make(map[string]failureStatus)
				}
				fs := failureStatus{Count: t.Count}
				if t.LastErr != nil {
					fs.LastErr = t.LastErr.Error()
				}
				body.Failures[op] = fs
			}
			if report.Fatal() {
				status = http.StatusServiceUnavailable
			}
		}

		for name, check := range checks {
			if body.Checks == nil {
				body.Checks = make(map[string]string)
			}
			if err := check(); err != nil {
				logger.Warn("healthz: check failed", "check", name, "error", err)
				body.Checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			body.Checks[name] = "ok"
		}

		if status != http.StatusOK {
			body.Status = "unhealthy"
		}
		if err := utils.WriteJSON(w, status, body); err != nil {
			logger.Error("healthz: write response", "error", err)
		}
	}
}
