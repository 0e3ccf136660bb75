// Package cfg holds the server configuration: flags with inline defaults,
// environment fallback, and validation that reports every problem at once.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hrescak/Draftboard-sub002/internal/log"
)

// EnvPrefix is prepended to upper-cased flag names when reading the environment.
const EnvPrefix = "DRAFTBOARD_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort     int
	AdminPort    int
	TrustedHops  int
	MaxBodyBytes int64

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	DatabaseURL string
	AutoMigrate bool

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3PathStyle       bool
	S3AccessKeyID     string
	S3SecretAccessKey string
	PresignTTL        time.Duration

	PublicBaseURL string

	// exactly one source for the service secret may be set
	PublishSecret         string
	PublishSecretSSMParam string
	AccessTokenSecret     string
	AccessTokenIssuer     string

	NATSURL     string
	NATSSubject string

	PublishRPS   float64
	PublishBurst int
}

// Register binds all config fields to the given FlagSet with defaults inline.
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 1, "reverse proxies in front of the server whose X-Forwarded-For is trusted")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 1<<20, "publish API request body limit in bytes")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "postgres DSN; empty runs on the in-memory store")
	fs.BoolVar(&c.AutoMigrate, "auto-migrate", true, "apply pending migrations on boot")

	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "bucket holding deployment files; empty disables uploads and serving")
	fs.StringVar(&c.S3Region, "s3-region", "us-east-1", "bucket region")
	fs.StringVar(&c.S3Endpoint, "s3-endpoint", "", "custom S3 endpoint URL (MinIO, SeaweedFS)")
	fs.BoolVar(&c.S3PathStyle, "s3-path-style", false, "use path-style bucket addressing")
	fs.StringVar(&c.S3AccessKeyID, "s3-access-key-id", "", "static access key; empty uses the default AWS chain")
	fs.StringVar(&c.S3SecretAccessKey, "s3-secret-access-key", "", "static secret key")
	fs.DurationVar(&c.PresignTTL, "presign-ttl", 15*time.Minute, "lifetime of presigned upload URLs")

	fs.StringVar(&c.PublicBaseURL, "public-base-url", "http://localhost:8080", "origin used to build public site URLs")

	fs.StringVar(&c.PublishSecret, "publish-secret", "", "service publish token")
	fs.StringVar(&c.PublishSecretSSMParam, "publish-secret-ssm-param", "", "SSM SecureString parameter holding the service publish token")
	fs.StringVar(&c.AccessTokenSecret, "access-token-secret", "", "HMAC secret of interactive access tokens; empty disables publish sessions")
	fs.StringVar(&c.AccessTokenIssuer, "access-token-issuer", "", "required iss claim of access tokens")

	fs.StringVar(&c.NATSURL, "nats-url", "", "NATS server URL for deployment events; empty disables them")
	fs.StringVar(&c.NATSSubject, "nats-subject", "draftboard.deployments.activated", "subject for deployment activation events")

	fs.Float64Var(&c.PublishRPS, "publish-rps", 2, "publish API requests per second per client")
	fs.IntVar(&c.PublishBurst, "publish-burst", 20, "publish API burst per client")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value overrides env %s", f.Name, key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// Validate checks ranges, formats and cross-field requirements. It returns
// every problem joined, or nil.
func Validate(c App) error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		add("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort)
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		add("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort)
	}
	if c.AdminPort == c.HTTPPort {
		add("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}
	if c.TrustedHops < 0 {
		add("TRUSTED_HOPS must not be negative (got %d)", c.TrustedHops)
	}
	if c.MaxBodyBytes < 1024 {
		add("MAX_BODY_BYTES must be at least 1024 (got %d)", c.MaxBodyBytes)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		add("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		add("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample)
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			add("PYRO_SERVER required when ENABLE_PYROSCOPE=true")
		} else if !isAbsURL(c.PyroServer) {
			add("PYRO_SERVER must be a URL (got %q)", c.PyroServer)
		}
		if c.PyroTenantID == "" {
			add("PYRO_TENANT required when ENABLE_PYROSCOPE=true")
		}
	}
	// the gRPC exporter wants host:port without a scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			add("OTLP_ENDPOINT required when ENABLE_TRACING=true")
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			add("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err)
		}
	}

	if c.S3Endpoint != "" && !isAbsURL(c.S3Endpoint) {
		add("S3_ENDPOINT must be a URL (got %q)", c.S3Endpoint)
	}
	if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey == "") {
		add("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
	}
	if c.PresignTTL < time.Minute || c.PresignTTL > 7*24*time.Hour {
		add("PRESIGN_TTL must be between 1m and 168h (got %s)", c.PresignTTL)
	}
	if !isAbsURL(c.PublicBaseURL) {
		add("PUBLIC_BASE_URL must be an absolute URL (got %q)", c.PublicBaseURL)
	}

	if c.PublishSecret != "" && c.PublishSecretSSMParam != "" {
		add("set only one of PUBLISH_SECRET and PUBLISH_SECRET_SSM_PARAM")
	}
	if c.PublishSecret != "" && len(c.PublishSecret) < 16 {
		add("PUBLISH_SECRET must be at least 16 characters")
	}
	if c.AccessTokenSecret != "" && len(c.AccessTokenSecret) < 16 {
		add("ACCESS_TOKEN_SECRET must be at least 16 characters")
	}

	if c.NATSURL != "" && c.NATSSubject == "" {
		add("NATS_SUBJECT required when NATS_URL is set")
	}

	if c.PublishRPS <= 0 || c.PublishBurst < 1 {
		add("PUBLISH_RPS and PUBLISH_BURST must be positive (got %.2f, %d)", c.PublishRPS, c.PublishBurst)
	}

	return errors.Join(errs...)
}

func isAbsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
