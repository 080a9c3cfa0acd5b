// Package packhttp serves a loaded pack over HTTP: file entries as static
// files, the entry list and individual values as JSON, plus health checks and
// metrics for the process itself.
package packhttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/respack/internal/health"
	"github.com/keithlinneman/respack/internal/httpmw"
	"github.com/keithlinneman/respack/internal/log"
	"github.com/keithlinneman/respack/internal/xerrors"
)

type Options struct {
	Logger log.Logger
	Port   int
	Holder *Holder

	// Readiness is ANDed with the holder's own check.
	Readiness health.Probe

	Metrics     http.Handler
	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler
	OnPanic     func()

	Cache CacheOptions
}

// Server timeout defaults.
const (
	DefaultPort              = 8080
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
)

type Server struct {
	opts   Options
	holder *Holder
	cache  CacheOptions
	logger log.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Holder == nil {
		return nil, xerrors.New("packhttp: Holder is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	opts.Cache.setDefaults()
	return &Server{opts: opts, holder: opts.Holder, cache: opts.Cache, logger: opts.Logger}, nil
}

// Handler builds the router and wraps it in middleware, outermost last.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Compress(5,
		"text/html",
		"text/css",
		"text/plain",
		"application/javascript",
		"application/json",
		"image/svg+xml",
	))
	r.Use(httpmw.AnnotateRoute)
	r.Use(httpmw.AccessLog)

	r.Get("/-/healthy", health.HealthzHandler(health.Fixed(true, "")))
	r.Get("/-/ready", health.ReadyzHandler(health.All(s.holder.ReadyCheck(), s.opts.Readiness)))
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Get("/-/entries", s.entries)
	r.Get("/-/values/*", s.value)
	r.Get("/files/*", s.files)
	r.Head("/files/*", s.files)

	var h http.Handler = r

	h = httpmw.WithLogger(s.logger)(h)
	if s.opts.MetricsMW != nil {
		h = s.opts.MetricsMW(h)
	}
	h = httpmw.TraceHeaders(h)
	h = httpmw.PackHeaders(s.holder)(h)

	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/-/healthy", "/-/ready", "/metrics":
				return false
			}
			return true
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	if s.opts.RateLimitMW != nil {
		h = s.opts.RateLimitMW(h)
	}
	h = middleware.RealIP(h)
	h = middleware.RequestID(h)
	h = httpmw.Recover(s.logger, s.opts.OnPanic)(h)
	h = httpmw.SecurityHeaders(h)
	return h
}

func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start listens and serves in the background.
// Returns stop(ctx) for graceful shutdown.
func (s *Server) Start(ctx context.Context) (func(context.Context) error, error) {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	srv := NewHTTPServer(addr, s.Handler())

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen on %s", addr)
	}

	go func() {
		s.logger.Info(ctx, "http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			s.logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
