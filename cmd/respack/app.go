package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/keithlinneman/respack/internal/cfg"
	"github.com/keithlinneman/respack/internal/log"
	"github.com/keithlinneman/respack/internal/packhttp"
	"github.com/keithlinneman/respack/internal/store"
	"github.com/keithlinneman/respack/internal/version"
	"github.com/keithlinneman/respack/internal/xerrors"
)

// app carries what every subcommand shares: config bound to the flag set
// of the command being run, output streams and the logger built from them.
type app struct {
	conf   cfg.App
	flags  *pflag.FlagSet
	stdout io.Writer
	stderr io.Writer
	logger log.Logger

	// tests swap in in-memory AWS clients
	storeHook func(*store.Options)
	// called once serve is listening
	onServing func(*packhttp.Holder)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, logger: log.Nop()}
}

// flagSet returns a Command.Flags func binding the shared config plus the
// command's own flags.
func (a *app) flagSet(name string, extra func(fs *pflag.FlagSet)) func() *pflag.FlagSet {
	return func() *pflag.FlagSet {
		fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
		fs.SortFlags = false
		if extra != nil {
			extra(fs)
		}
		cfg.Register(fs, &a.conf)
		a.flags = fs
		return fs
	}
}

// setup applies env overrides, validates and builds the logger.
func (a *app) setup(ctx context.Context) (context.Context, error) {
	if a.flags != nil {
		cfg.FillFromEnv(a.flags, cfg.EnvPrefix, func(format string, args ...any) {
			fmt.Fprintf(a.stderr, format+"\n", args...)
		})
	}
	if err := cfg.Validate(a.conf); err != nil {
		return ctx, fmt.Errorf("config error: %w", err)
	}

	opts := a.conf.LogOptions(version.AppName, version.Get().Version)
	opts.Writer = a.stderr
	L, err := log.New(opts)
	if err != nil {
		return ctx, xerrors.Wrap(err, "logger init")
	}
	a.logger = L
	return log.WithContext(ctx, L), nil
}

func (a *app) openStore(ctx context.Context, m store.OpObserver) (*store.Store, error) {
	if err := cfg.RequireStore(a.conf); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	opts := store.Options{
		Logger:   a.logger.With("component", "store"),
		Bucket:   a.conf.S3Bucket,
		Prefix:   a.conf.S3Prefix,
		SSMParam: a.conf.SSMParam,
	}
	if m != nil {
		opts.Metrics = m
	}
	if a.storeHook != nil {
		a.storeHook(&opts)
	}
	return store.New(ctx, opts)
}
