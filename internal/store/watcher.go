package store

import (
	"context"
	"fmt"
	"time"

	"github.com/keithlinneman/respack/internal/log"
	"github.com/keithlinneman/respack/resource"
)

const (
	DefaultPollInterval = 30 * time.Second

	// caps exponential backoff on consecutive pointer errors
	maxBackoff = 5 * time.Minute
)

type pollResult int

const (
	pollNoChange     pollResult = iota // pointer matches what is served
	pollSwapped                        // new pack pulled and applied
	pollPointerError                   // SSM read failed; caller backs off
	pollLoadError                      // pointer moved but pull or apply failed
)

// Fetcher is what the Watcher needs from a Store.
type Fetcher interface {
	Current(ctx context.Context) (string, error)
	Pull(ctx context.Context, name string) (*resource.Container, Ref, error)
	Stat(ctx context.Context, name string) (Ref, error)
}

// WatcherMetrics is implemented by the metrics package.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(errType string)
	SetWatcherLastSuccess(t time.Time)
	SetWatcherStale(stale bool)
}

type WatcherOptions struct {
	Logger  log.Logger
	Fetcher Fetcher

	// Current is the pack already being served, so the first poll does not
	// pull it again.
	Current string

	// CurrentSHA256 is the digest of the served pack. A pack pushed again
	// under the same name is only noticed when this is set.
	CurrentSHA256 string

	// Apply installs a freshly pulled pack. An error keeps the old one.
	Apply func(ctx context.Context, ref Ref, c *resource.Container) error

	PollInterval time.Duration

	// how long without a successful pointer read before logging staleness;
	// zero means 30 minutes
	StaleThreshold time.Duration

	Metrics WatcherMetrics
}

// Watcher polls the published pointer and swaps in new packs.
type Watcher struct {
	fetcher  Fetcher
	apply    func(context.Context, Ref, *resource.Container) error
	logger   log.Logger
	interval time.Duration
	metrics  WatcherMetrics

	current         string
	currentSHA      string
	consecutiveErrs int

	staleThreshold time.Duration
	lastSuccessAt  time.Time
	staleLogged    bool

	pollCount int64
	swapCount int64
}

func NewWatcher(opts WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	stale := opts.StaleThreshold
	if stale <= 0 {
		stale = 30 * time.Minute
	}
	return &Watcher{
		fetcher:        opts.Fetcher,
		apply:          opts.Apply,
		logger:         opts.Logger,
		interval:       interval,
		metrics:        opts.Metrics,
		current:        opts.Current,
		currentSHA:     opts.CurrentSHA256,
		staleThreshold: stale,
		lastSuccessAt:  time.Now(),
	}
}

// Run polls until ctx is cancelled.
// Intended to be launched as: go w.Run(ctx)
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "pack watcher starting",
		"poll_interval", w.interval.String(),
		"current", w.current,
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "pack watcher stopping",
				"polls", w.pollCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()
		case <-ticker.C:
			result := w.checkOnce(ctx)

			if result == pollPointerError {
				w.consecutiveErrs++
				backoff := w.backoffDuration()
				w.logger.Warn(ctx, "pack watcher: backing off",
					"consecutive_errors", w.consecutiveErrs,
					"next_poll_in", backoff.String(),
				)
				ticker.Reset(backoff)
			} else if w.consecutiveErrs > 0 {
				w.logger.Info(ctx, "pack watcher: recovered", "had_consecutive_errors", w.consecutiveErrs)
				w.consecutiveErrs = 0
				ticker.Reset(w.interval)
			}

			w.trackStaleness(ctx, result)
		}
	}
}

// log once on the transition into and out of staleness
func (w *Watcher) trackStaleness(ctx context.Context, result pollResult) {
	if result != pollPointerError {
		if w.staleLogged {
			w.logger.Info(ctx, "pack watcher: staleness recovered")
			w.staleLogged = false
			if w.metrics != nil {
				w.metrics.SetWatcherStale(false)
			}
		}
		return
	}
	if since := time.Since(w.lastSuccessAt); since > w.staleThreshold && !w.staleLogged {
		w.logger.Error(ctx, fmt.Errorf("last successful pointer read was %s ago", since.Truncate(time.Second)),
			"pack watcher: served pack may be stale")
		w.staleLogged = true
		if w.metrics != nil {
			w.metrics.SetWatcherStale(true)
		}
	}
}

func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.pollCount++
	if w.metrics != nil {
		w.metrics.IncWatcherPolls()
	}

	name, err := w.fetcher.Current(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "pack watcher: pointer read failed")
		if w.metrics != nil {
			w.metrics.IncWatcherError("pointer")
		}
		return pollPointerError
	}

	now := time.Now()
	w.lastSuccessAt = now
	if w.metrics != nil {
		w.metrics.SetWatcherLastSuccess(now)
	}

	if name == w.current {
		if !w.repushed(ctx, name) {
			return pollNoChange
		}
		w.logger.Info(ctx, "pack watcher: pack pushed again under the same name", "name", name)
	} else {
		w.logger.Info(ctx, "pack watcher: new pack published", "old", w.current, "new", name)
	}

	c, ref, err := w.fetcher.Pull(ctx, name)
	if err != nil {
		w.logger.Error(ctx, err, "pack watcher: pull failed, keeping current pack", "name", name)
		if w.metrics != nil {
			w.metrics.IncWatcherError("pull")
		}
		return pollLoadError
	}
	if err := w.safeApply(ctx, ref, c); err != nil {
		w.logger.Error(ctx, err, "pack watcher: apply failed, keeping current pack", "name", name)
		if w.metrics != nil {
			w.metrics.IncWatcherError("apply")
		}
		return pollLoadError
	}

	old := w.current
	w.current = name
	w.currentSHA = ref.SHA256
	w.swapCount++
	if w.metrics != nil {
		w.metrics.IncWatcherSwaps()
	}
	w.logger.Info(ctx, "pack watcher: pack swapped",
		"old", old,
		"new", name,
		"sha256", ref.SHA256,
		"total_swaps", w.swapCount,
	)
	return pollSwapped
}

// repushed reports whether the object behind an unchanged pointer now
// carries a different digest. Stat failures count as no change; the pointer
// read already succeeded and the next poll tries again.
func (w *Watcher) repushed(ctx context.Context, name string) bool {
	if w.currentSHA == "" {
		return false
	}
	ref, err := w.fetcher.Stat(ctx, name)
	if err != nil {
		w.logger.Warn(ctx, "pack watcher: stat failed", "name", name, "error", err.Error())
		if w.metrics != nil {
			w.metrics.IncWatcherError("stat")
		}
		return false
	}
	return ref.SHA256 != "" && !HashEqual(ref.SHA256, w.currentSHA)
}

func (w *Watcher) safeApply(ctx context.Context, ref Ref, c *resource.Container) (err error) {
	if w.apply == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("apply panic: %v", r)
		}
	}()
	return w.apply(ctx, ref, c)
}

// consecutiveErrs=1 gives 2x interval, 2 gives 4x, capped at maxBackoff.
func (w *Watcher) backoffDuration() time.Duration {
	d := w.interval
	for range w.consecutiveErrs {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
