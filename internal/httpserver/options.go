package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hrescak/Draftboard-sub002/internal/health"
	"github.com/hrescak/Draftboard-sub002/internal/httpmw"
	"github.com/hrescak/Draftboard-sub002/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	Health       health.Probe
	Readiness    health.Probe

	// APIRoutes mounts the publish API, SiteRoutes the published sites.
	APIRoutes  func(chi.Router)
	SiteRoutes func(chi.Router)

	// IsSiteContent selects the relaxed security header set for
	// user-published HTML. Everything else gets the locked-down API policy.
	IsSiteContent func(*http.Request) bool

	// NotFound handles unmatched routes; chi's default when nil.
	NotFound http.Handler
}
