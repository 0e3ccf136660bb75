package health

import (
	"net/http"

	"github.com/hrescak/Draftboard-sub002/internal/log"
)

// HealthzHandler answers liveness checks: 200 "ok" or 503.
func HealthzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ok\n", "liveness") }

// ReadyzHandler answers readiness checks: 200 "ready" or 503.
func ReadyzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ready\n", "readiness") }

// probeHandler logs the failure reason and keeps it out of the response
// body, since these routes are reachable on the public listener.
func probeHandler(p Probe, okBody, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				log.FromContext(r.Context()).Warn(r.Context(), "probe failed", "probe", kind, "reason", err.Error())
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable\n"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody))
	}
}
