package opshttp

import (
	"net/http"

	"github.com/hrescak/Draftboard-sub002/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// OnPanic runs after a recovered panic, typically to bump a counter.
	OnPanic func()
}
