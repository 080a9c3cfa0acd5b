package cfg

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/keithlinneman/respack/internal/log"
)

// EnvPrefix is prepended to the upper-cased flag name when reading the environment.
const EnvPrefix = "RESPACK_"

type App struct {
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string

	// remote store
	S3Bucket string
	S3Prefix string
	SSMParam string

	// serve
	HTTPPort        int
	AdminPort       int
	EnablePprof     bool
	Watch           bool
	WatchInterval   time.Duration
	RateLimit       float64
	RateBurst       int
	EnableTracing   bool
	OTLPEndpoint    string
	OTLPInsecure    bool
	TraceSample     float64
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *pflag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", false, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")

	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "s3 bucket holding pushed packs")
	fs.StringVar(&c.S3Prefix, "s3-prefix", "respack/packs", "s3 key prefix for pushed packs")
	fs.StringVar(&c.SSMParam, "ssm-param", "/respack/current", "ssm parameter naming the published pack")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 0, "separate listener for health checks, metrics and pprof (0 disables)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", false, "Enable /debug/pprof on the admin listener")
	fs.BoolVar(&c.Watch, "watch", false, "poll the ssm parameter and hot-swap newly published packs")
	fs.DurationVar(&c.WatchInterval, "watch-interval", 30*time.Second, "how often --watch polls ssm")
	fs.Float64Var(&c.RateLimit, "rate-limit", 0, "per-client requests per second (0 disables)")
	fs.IntVar(&c.RateBurst, "rate-burst", 30, "per-client burst when --rate-limit is set")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.BoolVar(&c.OTLPInsecure, "otlp-insecure", false, "disable TLS to the OTLP endpoint")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in --pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *pflag.FlagSet, prefix string, logf func(string, ...any)) {
	fs.VisitAll(func(f *pflag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if f.Changed {
			if logf != nil {
				logf("flag --%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = f.Value.Set(prev)
			f.Changed = false
			if logf != nil {
				logf("flag --%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}

	if c.AdminPort != 0 {
		if c.AdminPort < 1 || c.AdminPort > 65535 {
			errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535, or 0 to disable)", c.AdminPort))
		} else if c.AdminPort == c.HTTPPort {
			errs = append(errs, fmt.Errorf("ADMIN_PORT must differ from HTTP_PORT (both %d)", c.AdminPort))
		}
	}
	if c.EnablePprof && c.AdminPort == 0 {
		errs = append(errs, fmt.Errorf("ENABLE_PPROF requires ADMIN_PORT"))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
	}

	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT %.3f (must be >= 0)", c.RateLimit))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_BURST must be >= 1 when RATE_LIMIT is set (got %d)", c.RateBurst))
	}

	if c.Watch {
		if c.WatchInterval < time.Second {
			errs = append(errs, fmt.Errorf("WATCH_INTERVAL must be at least 1s (got %s)", c.WatchInterval))
		}
		if err := RequireStore(c); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// RequireStore reports the settings missing for talking to the remote store.
func RequireStore(c App) error {
	var errs []error
	if c.S3Bucket == "" {
		errs = append(errs, fmt.Errorf("S3_BUCKET is required"))
	}
	if c.SSMParam == "" {
		errs = append(errs, fmt.Errorf("SSM_PARAM is required"))
	} else if !strings.HasPrefix(c.SSMParam, "/") {
		errs = append(errs, fmt.Errorf("SSM_PARAM must be a path starting with / (got %q)", c.SSMParam))
	}
	if strings.HasPrefix(c.S3Prefix, "/") || strings.HasSuffix(c.S3Prefix, "/") {
		errs = append(errs, fmt.Errorf("S3_PREFIX must not start or end with / (got %q)", c.S3Prefix))
	}
	return errors.Join(errs...)
}

// LogOptions maps the logging fields onto log.Options. Validate has
// already rejected bad levels, so parse errors fall back to defaults.
func (c App) LogOptions(app, version string) log.Options {
	lvl, _ := log.ParseLevel(c.LogLevel)
	opts := log.Options{App: app, Version: version, Level: lvl, JSON: c.LogJSON}
	if c.StacktraceLevel != "" {
		if st, err := log.ParseLevel(c.StacktraceLevel); err == nil {
			opts.StacktraceLevel = st
		}
	}
	return opts
}
