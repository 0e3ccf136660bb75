package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hrescak/Draftboard-sub002/internal/cfg"
	"github.com/hrescak/Draftboard-sub002/internal/deploy"
	"github.com/hrescak/Draftboard-sub002/internal/health"
	"github.com/hrescak/Draftboard-sub002/internal/httpmw"
	"github.com/hrescak/Draftboard-sub002/internal/httpserver"
	"github.com/hrescak/Draftboard-sub002/internal/log"
	"github.com/hrescak/Draftboard-sub002/internal/metrics"
	"github.com/hrescak/Draftboard-sub002/internal/opshttp"
	"github.com/hrescak/Draftboard-sub002/internal/otelx"
	"github.com/hrescak/Draftboard-sub002/internal/prof"
	"github.com/hrescak/Draftboard-sub002/internal/publishauth"
	"github.com/hrescak/Draftboard-sub002/internal/publishhttp"
	"github.com/hrescak/Draftboard-sub002/internal/ratelimit"
	"github.com/hrescak/Draftboard-sub002/internal/sitehandler"
	"github.com/hrescak/Draftboard-sub002/internal/sitehttp"
	v "github.com/hrescak/Draftboard-sub002/internal/version"
	"github.com/hrescak/Draftboard-sub002/internal/webassets"
)

// drainPeriod is how long readiness fails before listeners close, so the
// load balancer stops routing here first.
const drainPeriod = 20 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               vi.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.Dirty(),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_hops", conf.TrustedHops,
		"database", conf.DatabaseURL != "",
		"s3_bucket", conf.S3Bucket,
		"s3_endpoint", conf.S3Endpoint,
		"nats_url", conf.NATSURL,
		"public_base_url", conf.PublicBaseURL,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion("server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       vi.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer stopProf()

	// the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   vi.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	st, closeStore, err := openStore(ctx, L, conf)
	if err != nil {
		L.Error(ctx, err, "failed to open metadata store")
		os.Exit(1)
	}
	defer closeStore()

	objects, err := openObjects(ctx, L, conf)
	if err != nil {
		// serving degrades to 503 and signing refuses; metadata still works
		L.Error(ctx, err, "object storage unavailable")
	}

	serviceSecret, err := loadServiceSecret(ctx, conf)
	if err != nil {
		L.Error(ctx, err, "failed to load publish service secret")
		os.Exit(1)
	}

	bus, err := openEvents(conf)
	if err != nil {
		L.Warn(ctx, "deployment events disabled", "error", err, "nats_url", conf.NATSURL)
	}
	if bus != nil {
		defer bus.Close()
	}

	deployOpts := deploy.Options{
		Store:         st,
		Objects:       objects,
		PublicBaseURL: conf.PublicBaseURL,
		PresignTTL:    conf.PresignTTL,
		Recorder:      m,
		Logger:        L.With("subsystem", "deploy"),
	}
	if bus != nil {
		deployOpts.Notifier = bus
	}
	deployer, err := deploy.New(deployOpts)
	if err != nil {
		L.Error(ctx, err, "failed to create deployment manager")
		os.Exit(1)
	}

	auth, err := publishauth.NewAuthenticator(publishauth.Options{
		ServiceSecret: serviceSecret,
		Store:         st,
		Logger:        L.With("subsystem", "publishauth"),
		OnFailure:     m.IncAuthFailure,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create publish authenticator")
		os.Exit(1)
	}

	publishLimiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.PublishRPS, conf.PublishBurst),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "publish rate limit triggered", "ip", ip)
		}),
	)

	publishOpts := publishhttp.Options{
		Auth:            auth,
		Sessions:        publishauth.NewSessions(st, nil),
		Deploy:          deployer,
		Owners:          st,
		RateLimitMW:     publishLimiter.Middleware,
		MaxBodyBytes:    conf.MaxBodyBytes,
		OnSessionIssued: m.IncSessionIssued,
	}
	if conf.AccessTokenSecret != "" {
		publishOpts.Accounts = publishauth.NewAccountVerifier([]byte(conf.AccessTokenSecret), st, conf.AccessTokenIssuer)
	} else {
		L.Info(ctx, "ACCESS_TOKEN_SECRET not set, publish session exchange disabled")
	}
	publishAPI, err := publishhttp.New(publishOpts)
	if err != nil {
		L.Error(ctx, err, "failed to create publish API")
		os.Exit(1)
	}

	sites, err := sitehandler.New(sitehandler.Options{
		Logger:     L.With("subsystem", "sites"),
		Sites:      st,
		Objects:    objects,
		FallbackFS: webassets.FallbackFS(),
		OnLookup:   m.IncSiteLookup,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Ping("database", health.DefaultPingTimeout, st.Ping),
	)

	limiter := ratelimit.New(ctx,
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		// logged once per visitor until it is evicted
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:        L,
		Port:          conf.HTTPPort,
		UseRecoverMW:  true,
		OnPanic:       m.IncHttpPanic,
		MetricsMW:     m.Middleware,
		RateLimitMW:   limiter.Middleware,
		ClientIPOpts:  httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Health:        health.Fixed(true, ""),
		Readiness:     readiness,
		APIRoutes:     publishAPI.RegisterRoutes,
		SiteRoutes:    sitehttp.New(sites).RegisterRoutes,
		IsSiteContent: sitehttp.IsSiteContent,
		NotFound:      http.HandlerFunc(sites.NotFound),
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// the ops listener also rejects public peers in middleware in case the
	// security group is ever misconfigured
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd readiness not sent", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining", "period", drainPeriod.String())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// set when started under a Type=notify unit
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	return nil
}
