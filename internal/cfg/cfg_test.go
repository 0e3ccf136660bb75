package cfg

import (
	"flag"
	"strings"
	"testing"
	"time"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// parse registers flags on a fresh FlagSet so tests never touch flag.CommandLine.
func parse(t *testing.T, args ...string) (*flag.FlagSet, App) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return fs, c
}

func TestRegister_DefaultsAreValid(t *testing.T) {
	_, c := parse(t)
	if err := Validate(c); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if c.HTTPPort != 8080 || c.AdminPort != 9000 || c.TrustedHops != 1 {
		t.Fatalf("ports = %d/%d hops = %d", c.HTTPPort, c.AdminPort, c.TrustedHops)
	}
	if c.PresignTTL != 15*time.Minute || c.MaxBodyBytes != 1<<20 {
		t.Fatalf("presign = %s body = %d", c.PresignTTL, c.MaxBodyBytes)
	}
	if c.DatabaseURL != "" || c.S3Bucket != "" || c.NATSURL != "" {
		t.Fatal("external dependencies must be opt-in")
	}
	if !c.AutoMigrate || c.NATSSubject != "draftboard.deployments.activated" {
		t.Fatalf("auto-migrate = %v subject = %q", c.AutoMigrate, c.NATSSubject)
	}
}

func TestRegister_CLIOverrides(t *testing.T) {
	_, c := parse(t,
		"-http-port=8081",
		"-database-url=postgres://localhost/draftboard",
		"-s3-bucket=sites",
		"-s3-path-style",
		"-presign-ttl=5m",
		"-publish-rps=0.5",
	)
	if c.HTTPPort != 8081 || c.DatabaseURL == "" || c.S3Bucket != "sites" || !c.S3PathStyle {
		t.Fatalf("cfg = %+v", c)
	}
	if c.PresignTTL != 5*time.Minute || c.PublishRPS != 0.5 {
		t.Fatalf("presign = %s rps = %v", c.PresignTTL, c.PublishRPS)
	}
}

func TestFillFromEnv(t *testing.T) {
	t.Setenv(EnvPrefix+"HTTP_PORT", "9090")
	t.Setenv(EnvPrefix+"S3_BUCKET", "from-env")
	t.Setenv(EnvPrefix+"LOG_LEVEL", "debug")
	t.Setenv(EnvPrefix+"ADMIN_PORT", "not-a-number")

	fs, c := parse(t, "-log-level=warn")
	var notes []string
	FillFromEnv(fs, EnvPrefix, func(f string, args ...any) { notes = append(notes, f) })

	if c.HTTPPort != 9090 || c.S3Bucket != "from-env" {
		t.Fatalf("env not applied: port=%d bucket=%q", c.HTTPPort, c.S3Bucket)
	}
	if c.LogLevel != "warn" {
		t.Fatalf("cli must beat env: %q", c.LogLevel)
	}
	if c.AdminPort != 9000 {
		t.Fatalf("invalid env must keep default: %d", c.AdminPort)
	}
	if len(notes) != 2 {
		t.Fatalf("notes = %v", notes)
	}
}

func TestFillFromEnv_NilLogf(t *testing.T) {
	t.Setenv(EnvPrefix+"ADMIN_PORT", "x")
	fs, c := parse(t)
	FillFromEnv(fs, EnvPrefix, nil)
	if c.AdminPort != 9000 {
		t.Fatalf("admin port = %d", c.AdminPort)
	}
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*App)
		want   string
	}{
		{"port range", func(c *App) { c.HTTPPort = 0 }, "invalid HTTP_PORT"},
		{"same ports", func(c *App) { c.AdminPort = c.HTTPPort }, "must differ"},
		{"negative hops", func(c *App) { c.TrustedHops = -1 }, "TRUSTED_HOPS"},
		{"tiny body", func(c *App) { c.MaxBodyBytes = 10 }, "MAX_BODY_BYTES"},
		{"log level", func(c *App) { c.LogLevel = "loud" }, "invalid LOG_LEVEL"},
		{"stacktrace level", func(c *App) { c.StacktraceLevel = "x" }, "invalid STACKTRACE_LEVEL"},
		{"error links", func(c *App) { c.MaxErrorLinks = 0 }, "MAX_ERROR_LINKS"},
		{"sample", func(c *App) { c.TraceSample = 2 }, "invalid TRACE_SAMPLE"},
		{"pyroscope server", func(c *App) { c.EnablePyroscope = true; c.PyroTenantID = "t" }, "PYRO_SERVER required"},
		{"pyroscope url", func(c *App) { c.EnablePyroscope = true; c.PyroServer = "nope"; c.PyroTenantID = "t" }, "PYRO_SERVER must be a URL"},
		{"pyroscope tenant", func(c *App) { c.EnablePyroscope = true; c.PyroServer = "http://pyro:4040" }, "PYRO_TENANT"},
		{"otlp missing", func(c *App) { c.EnableTracing = true }, "OTLP_ENDPOINT required"},
		{"otlp scheme", func(c *App) { c.EnableTracing = true; c.OTLPEndpoint = "otel" }, "OTLP_ENDPOINT must be host:port"},
		{"s3 endpoint", func(c *App) { c.S3Endpoint = "minio:9000" }, "S3_ENDPOINT"},
		{"half credentials", func(c *App) { c.S3AccessKeyID = "AKIA" }, "must be set together"},
		{"presign ttl", func(c *App) { c.PresignTTL = time.Second }, "PRESIGN_TTL"},
		{"base url", func(c *App) { c.PublicBaseURL = "/sites" }, "PUBLIC_BASE_URL"},
		{"two secrets", func(c *App) { c.PublishSecret = "0123456789abcdef"; c.PublishSecretSSMParam = "/p" }, "only one of"},
		{"short secret", func(c *App) { c.PublishSecret = "short" }, "PUBLISH_SECRET must be"},
		{"short jwt secret", func(c *App) { c.AccessTokenSecret = "short" }, "ACCESS_TOKEN_SECRET"},
		{"nats subject", func(c *App) { c.NATSURL = "nats://localhost:4222"; c.NATSSubject = "" }, "NATS_SUBJECT"},
		{"rate", func(c *App) { c.PublishBurst = 0 }, "PUBLISH_RPS and PUBLISH_BURST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := parse(t)
			tt.mutate(&c)
			wantErrContains(t, Validate(c), tt.want)
		})
	}
}

func TestValidate_JoinsAllProblems(t *testing.T) {
	_, c := parse(t, "-http-port=0", "-log-level=loud", "-trace-sample=3")
	err := Validate(c)
	for _, sub := range []string{"invalid HTTP_PORT", "invalid LOG_LEVEL", "invalid TRACE_SAMPLE"} {
		wantErrContains(t, err, sub)
	}
}
