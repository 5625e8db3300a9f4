// Package scheduler owns the timers: it schedules every enabled watch
// on its interval or cron, staggers startup, enforces per-watch
// non-overlap, hot-reloads the config directory and drives shutdown.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aleister1102/webwatch/internal/config"
	"github.com/aleister1102/webwatch/internal/cronexpr"
	"github.com/aleister1102/webwatch/internal/errs"
	"github.com/aleister1102/webwatch/internal/models"
)

// WatchRunner is the slice of the runner the engine drives.
type WatchRunner interface {
	RunWatch(ctx context.Context, w *config.WatchConfig) models.CheckResult
}

// Engine is the process-wide scheduling state.
type Engine struct {
	settings *config.Settings
	runner   WatchRunner
	logger   zerolog.Logger

	// memoryRSS is injectable; nil disables the memory guard.
	memoryRSS func() (int64, error)

	mu      sync.Mutex
	watches map[string]*watchEntry
	skipped map[string]int64
	stopped bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type watchEntry struct {
	cfg  *config.WatchConfig
	hash string
	cron *cronexpr.Matcher
	stop chan struct{}
	busy bool
}

// WatchStatus is one scheduled watch as shown on the status surface.
type WatchStatus struct {
	ID       string
	Name     string
	URL      string
	Schedule string
}

// NewEngine creates the scheduler.
func NewEngine(settings *config.Settings, runner WatchRunner, logger zerolog.Logger) *Engine {
	return &Engine{
		settings:  settings,
		runner:    runner,
		logger:    logger.With().Str("component", "Scheduler").Logger(),
		memoryRSS: processRSS,
		watches:   make(map[string]*watchEntry),
		skipped:   make(map[string]int64),
		stopCh:    make(chan struct{}),
	}
}

// Start loads the config directory, schedules every enabled watch with
// an incremental startup stagger, and begins the hot-reload loop.
func (e *Engine) Start(ctx context.Context) error {
	configs, err := config.LoadWatchConfigs(e.settings.ConfigDir, e.logger)
	if err != nil {
		return errs.Wrap(err, "initial config load failed")
	}

	stagger := time.Duration(e.settings.StaggerDelayMs) * time.Millisecond
	index := 0
	for _, w := range configs {
		if !w.IsEnabled() {
			e.logger.Info().Str("watch", w.WatchID()).Msg("Watch disabled, not scheduling")
			continue
		}
		if err := e.schedule(ctx, w, time.Duration(index)*stagger); err != nil {
			e.logger.Error().Err(err).Str("watch", w.WatchID()).Msg("Failed to schedule watch")
			continue
		}
		index++
	}

	e.wg.Add(1)
	go e.reloadLoop(ctx)

	e.logger.Info().Int("watches", index).Msg("Scheduler started")
	return nil
}

// schedule registers a watch and starts its timer goroutine.
func (e *Engine) schedule(ctx context.Context, w *config.WatchConfig, stagger time.Duration) error {
	entry := &watchEntry{
		cfg:  w,
		hash: w.ConfigHash,
		stop: make(chan struct{}),
	}

	if w.Schedule != "" {
		matcher, err := cronexpr.New(w.Schedule)
		if err != nil {
			return err
		}
		entry.cron = matcher
	}

	id := w.WatchID()
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return errs.New("scheduler is stopped")
	}
	if old, exists := e.watches[id]; exists {
		close(old.stop)
	}
	e.watches[id] = entry
	e.mu.Unlock()

	e.wg.Add(1)
	go e.watchLoop(ctx, entry, stagger)
	return nil
}

// watchLoop is the per-watch timer: stagger, immediate first run, then
// either a fixed-period ticker or a minute-aligned cron ticker.
func (e *Engine) watchLoop(ctx context.Context, entry *watchEntry, stagger time.Duration) {
	defer e.wg.Done()

	if stagger > 0 {
		select {
		case <-time.After(stagger):
		case <-entry.stop:
			return
		case <-ctx.Done():
			return
		}
	}

	e.fire(ctx, entry)

	if entry.cron != nil {
		e.cronLoop(ctx, entry)
		return
	}

	interval := time.Duration(entry.cfg.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Duration(e.settings.CheckIntervalMs) * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.fire(ctx, entry)
		case <-entry.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cronLoop aligns to the next minute boundary, then evaluates the
// predicate every 60 seconds. Same-minute re-fires are suppressed by
// the matcher itself.
func (e *Engine) cronLoop(ctx context.Context, entry *watchEntry) {
	now := time.Now()
	align := now.Truncate(time.Minute).Add(time.Minute).Sub(now)
	select {
	case <-time.After(align):
	case <-entry.stop:
		return
	case <-ctx.Done():
		return
	}

	e.evaluateCron(ctx, entry)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.evaluateCron(ctx, entry)
		case <-entry.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) evaluateCron(ctx context.Context, entry *watchEntry) {
	if entry.cron.ShouldRun(time.Now()) {
		e.fire(ctx, entry)
	}
}

// fire runs the watch unless it is already running or the memory guard
// trips. Skips are counted for the metrics endpoint.
func (e *Engine) fire(ctx context.Context, entry *watchEntry) {
	id := entry.cfg.WatchID()

	e.mu.Lock()
	if entry.busy {
		e.skipped[id]++
		e.mu.Unlock()
		e.logger.Warn().Str("watch", id).Msg("Previous run still in flight, skipping tick")
		return
	}
	if e.memoryExceeded() {
		e.skipped[id]++
		e.mu.Unlock()
		e.logger.Warn().Str("watch", id).Msg("Memory limit exceeded, skipping run")
		return
	}
	entry.busy = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		entry.busy = false
		e.mu.Unlock()
	}()

	e.runner.RunWatch(ctx, entry.cfg)
}

// memoryExceeded samples process RSS against the configured cap.
// Callers hold e.mu.
func (e *Engine) memoryExceeded() bool {
	limit := e.settings.MaxMemoryMB
	if limit <= 0 || e.memoryRSS == nil {
		return false
	}
	rss, err := e.memoryRSS()
	if err != nil {
		return false
	}
	return rss > limit*1024*1024
}

// Trigger fires an out-of-band run for a scheduled watch.
func (e *Engine) Trigger(ctx context.Context, watchID string) error {
	e.mu.Lock()
	entry, ok := e.watches[watchID]
	e.mu.Unlock()
	if !ok {
		return errs.Wrapf(errs.ErrNotFound, "watch '%s'", watchID)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.fire(ctx, entry)
	}()
	return nil
}

// Watches lists the currently scheduled watches.
func (e *Engine) Watches() []WatchStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]WatchStatus, 0, len(e.watches))
	for id, entry := range e.watches {
		status := WatchStatus{
			ID:   id,
			Name: entry.cfg.Name,
			URL:  entry.cfg.URL,
		}
		if entry.cfg.Schedule != "" {
			status.Schedule = entry.cfg.Schedule
		} else {
			interval := entry.cfg.IntervalMs
			if interval <= 0 {
				interval = e.settings.CheckIntervalMs
			}
			status.Schedule = (time.Duration(interval) * time.Millisecond).String()
		}
		out = append(out, status)
	}
	return out
}

// SkippedCounts snapshots the per-watch skip counters.
func (e *Engine) SkippedCounts() map[string]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int64, len(e.skipped))
	for k, v := range e.skipped {
		out[k] = v
	}
	return out
}

// Stop tears all timers down and waits up to the shutdown grace period
// for in-flight runs.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	for _, entry := range e.watches {
		close(entry.stop)
	}
	e.mu.Unlock()

	grace := time.Duration(e.settings.ShutdownGraceMs) * time.Millisecond
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info().Msg("Scheduler stopped")
	case <-time.After(grace):
		e.logger.Warn().Dur("grace", grace).Msg("Scheduler did not stop within the grace period")
	}
}
