package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/keithlinneman/respack/internal/cli"
	"github.com/keithlinneman/respack/internal/health"
	"github.com/keithlinneman/respack/internal/log"
	"github.com/keithlinneman/respack/internal/metrics"
	"github.com/keithlinneman/respack/internal/opshttp"
	"github.com/keithlinneman/respack/internal/otelx"
	"github.com/keithlinneman/respack/internal/packhttp"
	"github.com/keithlinneman/respack/internal/prof"
	"github.com/keithlinneman/respack/internal/ratelimit"
	"github.com/keithlinneman/respack/internal/store"
	"github.com/keithlinneman/respack/internal/version"
	"github.com/keithlinneman/respack/internal/xerrors"
	"github.com/keithlinneman/respack/resource"
)

type serveFlags struct {
	current     bool
	drainPeriod time.Duration
}

func (a *app) serveCmd() *cli.Command {
	var sf serveFlags
	const usage = "respack serve (FILE | --current) [--watch]"
	return &cli.Command{
		Name:    "serve",
		Summary: "Serve a pack's files and values over HTTP",
		Usage:   usage,
		Examples: []cli.Example{
			{Description: "serve a local pack", Command: "respack serve site.res --http-port 8080"},
			{Description: "serve the published pack and follow new publishes", Command: "respack serve --current --watch --s3-bucket packs --ssm-param /respack/current"},
		},
		Flags: a.flagSet("serve", func(fs *pflag.FlagSet) {
			fs.BoolVar(&sf.current, "current", false, "serve the pack published in SSM instead of a local file")
			fs.DurationVar(&sf.drainPeriod, "drain-period", 15*time.Second, "how long to fail readiness before stopping the listener")
		}),
		Run: func(ctx context.Context, args []string) error {
			switch {
			case sf.current && len(args) != 0:
				return cli.ArgsError(usage, 0, len(args))
			case !sf.current && !a.conf.Watch && len(args) != 1:
				return cli.ArgsError(usage, 1, len(args))
			case len(args) > 1:
				return cli.ArgsError(usage, 1, len(args))
			}
			if sf.drainPeriod < 0 {
				return fmt.Errorf("--drain-period must not be negative (got %s)", sf.drainPeriod)
			}
			ctx, err := a.setup(ctx)
			if err != nil {
				return err
			}
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return a.serve(ctx, file, sf)
		},
	}
}

func (a *app) serve(ctx context.Context, file string, sf serveFlags) error {
	L := a.logger
	conf := a.conf
	vi := version.Get()

	L.Info(ctx, "starting server",
		"version", vi.Version,
		"commit", vi.Commit,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"pack_file", file,
		"serve_current", sf.current,
		"watch", conf.Watch,
		"watch_interval", conf.WatchInterval,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"rate_limit", conf.RateLimit,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
		"s3_bucket", conf.S3Bucket,
		"ssm_param", conf.SSMParam,
	)

	m := metrics.New()
	m.SetBuildInfo(vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       version.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "serve",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer stopProf()

	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: conf.OTLPInsecure,
		Sample:   conf.TraceSample,
		Service:  version.AppName,
		Version:  vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	holder := packhttp.NewHolder()
	install := func(snap packhttp.Snapshot) {
		holder.Set(snap)
		files, values := countKinds(snap.Container)
		cur, _ := holder.Get()
		m.SetPack(cur.Name, cur.SHA256, files, values, cur.LoadedAt)
	}

	var st *store.Store
	if sf.current || conf.Watch {
		st, err = a.openStore(ctx, m)
		if err != nil {
			return err
		}
	}

	switch {
	case file != "":
		snap, err := loadSnapshot(file)
		if err != nil {
			return err
		}
		install(snap)
	case sf.current:
		c, ref, err := st.PullCurrent(ctx)
		if err != nil {
			return err
		}
		install(packhttp.Snapshot{Name: ref.Name, SHA256: ref.SHA256, Source: packhttp.SourceStore, Container: c})
	default:
		// --watch without a file: not ready until the first poll swaps a pack in
		L.Info(ctx, "no initial pack; waiting for the watcher")
	}
	if cur, ok := holder.Get(); ok {
		L.Info(ctx, "pack loaded",
			"pack", cur.Name,
			"sha256", cur.SHA256,
			"source", string(cur.Source),
			"entries", cur.Container.Len(),
		)
	}

	var rateLimitMW func(next http.Handler) http.Handler
	if conf.RateLimit > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimit, conf.RateBurst),
			ratelimit.WithOnDenied(func(string) { m.IncRateLimited() }),
			// logged once per client until it is evicted
			ratelimit.WithOnFirstDenied(func(client string) {
				L.Warn(ctx, "rate limit triggered", "client", client)
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	var gate health.ShutdownGate
	srv, err := packhttp.New(packhttp.Options{
		Logger:      L,
		Port:        conf.HTTPPort,
		Holder:      holder,
		Readiness:   gate.Probe(),
		Metrics:     m.Handler(),
		MetricsMW:   m.Middleware,
		RateLimitMW: rateLimitMW,
		OnPanic:     m.IncHTTPPanic,
	})
	if err != nil {
		return err
	}
	stopHTTP, err := srv.Start(ctx)
	if err != nil {
		return xerrors.Wrap(err, "start http listener")
	}

	stopOps := func(context.Context) error { return nil }
	if conf.AdminPort != 0 {
		stopOps, err = opshttp.Start(ctx, L, opshttp.Options{
			Port:        conf.AdminPort,
			Metrics:     m.Handler(),
			EnablePprof: conf.EnablePprof,
			Health:      health.Fixed(true, ""),
			Readiness:   health.All(gate.Probe(), holder.ReadyCheck()),
			OnPanic:     m.IncHTTPPanic,
		})
		if err != nil {
			_ = stopHTTP(context.Background())
			return xerrors.Wrap(err, "start admin listener")
		}
	}

	if conf.Watch {
		w := store.NewWatcher(store.WatcherOptions{
			Logger:        L.With("component", "watcher"),
			Fetcher:       st,
			Current:       holder.PackName(),
			CurrentSHA256: holder.PackSHA256(),
			PollInterval:  conf.WatchInterval,
			Metrics:       m,
			Apply: func(ctx context.Context, ref store.Ref, c *resource.Container) error {
				install(packhttp.Snapshot{Name: ref.Name, SHA256: ref.SHA256, Source: packhttp.SourceStore, Container: c})
				return nil
			},
		})
		go func() { _ = w.Run(ctx) }()
	}

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}
	if a.onServing != nil {
		a.onServing(holder)
	}

	<-ctx.Done()

	bg := log.WithContext(context.Background(), L)
	L.Info(bg, "shutdown signal received")
	gate.Set("draining")

	if sf.drainPeriod > 0 {
		L.Info(bg, "draining", "period", sf.drainPeriod)
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(sf.drainPeriod):
			L.Info(bg, "drain period complete")
		case <-forceCh:
			L.Warn(bg, "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()

	var errs []error
	if err := stopHTTP(shutdownCtx); err != nil {
		L.Error(bg, err, "http server shutdown")
		errs = append(errs, err)
	}
	if err := stopOps(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}

	L.Info(bg, "shutdown complete")
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// loadSnapshot reads a local pack file. The name is the file name without
// extension, the digest covers the bytes on disk.
func loadSnapshot(path string) (packhttp.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return packhttp.Snapshot{}, &resource.OpError{Op: "load", Path: path, Kind: resource.ErrIO, Err: err}
	}
	c, err := resource.Deserialize(data)
	if err != nil {
		return packhttp.Snapshot{}, fmt.Errorf("%s: %w", path, err)
	}
	return packhttp.Snapshot{
		Name:      packName(path),
		SHA256:    store.SHA256Hex(data),
		Source:    packhttp.SourceFile,
		Container: c,
	}, nil
}

func countKinds(c *resource.Container) (files, values int) {
	if c == nil {
		return 0, 0
	}
	for _, e := range c.Entries() {
		if e.Kind == resource.KindFile {
			files++
		} else {
			values++
		}
	}
	return files, values
}

// notifySystemd sends READY=1 when started as a Type=notify unit.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: %w", err)
	}
	return nil
}
