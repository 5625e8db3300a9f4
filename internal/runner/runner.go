// Package runner executes one full watch pipeline: navigate, act,
// extract, compare, notify, persist. A run never panics outward; every
// failure is captured in the check result.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aleister1102/webwatch/internal/action"
	"github.com/aleister1102/webwatch/internal/browser"
	"github.com/aleister1102/webwatch/internal/comparator"
	"github.com/aleister1102/webwatch/internal/config"
	"github.com/aleister1102/webwatch/internal/extractor"
	"github.com/aleister1102/webwatch/internal/models"
	"github.com/aleister1102/webwatch/internal/statestore"
)

// Notifier is the slice of the notification router the runner needs.
type Notifier interface {
	NotifyChanges(ctx context.Context, w *config.WatchConfig, changes []models.ChangeRecord, current, previous models.Snapshot) bool
	NotifyError(ctx context.Context, w *config.WatchConfig, consecutive int, errMsg string)
}

// Runner owns the per-watch bookkeeping the pipeline maintains across
// runs: last check results and consecutive error counters.
type Runner struct {
	browser     browser.Browser
	store       *statestore.Store
	history     *statestore.History
	notifier    Notifier
	actions     *action.Engine
	extractors  *extractor.Engine
	comparators *comparator.Engine
	settings    *config.Settings
	logger      zerolog.Logger

	// Now and Sleep are injectable for deterministic tests.
	Now   func() time.Time
	Sleep func(time.Duration)

	mu          sync.Mutex
	lastResults map[string]models.CheckResult
	errorCounts map[string]int
	runsTotal   map[string]int64
	errsTotal   map[string]int64
}

// NewRunner wires the pipeline engines together. history may be nil.
func NewRunner(
	b browser.Browser,
	store *statestore.Store,
	history *statestore.History,
	n Notifier,
	settings *config.Settings,
	logger zerolog.Logger,
) *Runner {
	componentLogger := logger.With().Str("component", "WatchRunner").Logger()
	return &Runner{
		browser:     b,
		store:       store,
		history:     history,
		notifier:    n,
		actions:     action.NewEngine(logger),
		extractors:  extractor.NewEngine(logger, settings.ScreenshotDir),
		comparators: comparator.NewEngine(logger),
		settings:    settings,
		logger:      componentLogger,
		Now:         time.Now,
		Sleep:       time.Sleep,
		lastResults: make(map[string]models.CheckResult),
		errorCounts: make(map[string]int),
		runsTotal:   make(map[string]int64),
		errsTotal:   make(map[string]int64),
	}
}

// RunWatch performs one end-to-end run and records the result.
func (r *Runner) RunWatch(ctx context.Context, w *config.WatchConfig) models.CheckResult {
	watchID := w.WatchID()
	started := r.Now()

	result := r.execute(ctx, w, watchID)
	finished := r.Now()

	result.WatchID = watchID
	result.Name = w.Name
	result.URL = w.URL
	result.LastCheck = finished.UTC().Format(time.RFC3339)
	result.DurationMs = finished.Sub(started).Milliseconds()

	r.mu.Lock()
	r.lastResults[watchID] = result
	r.runsTotal[watchID]++
	if !result.Success {
		r.errsTotal[watchID]++
	}
	r.mu.Unlock()

	if r.history != nil {
		r.history.Append(statestore.HistoryEntry{
			WatchID:     watchID,
			WatchName:   w.Name,
			StartedAt:   started,
			FinishedAt:  finished,
			Success:     result.Success,
			ChangeCount: len(result.Changes),
			Error:       result.Error,
		})
	}

	return result
}

// execute runs the pipeline body. The returned result carries only the
// success/data/changes/error fields; RunWatch fills in the rest.
func (r *Runner) execute(ctx context.Context, w *config.WatchConfig, watchID string) (result models.CheckResult) {
	var page browser.Page

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("watch", watchID).Interface("panic", rec).Msg("Pipeline panicked")
			result = r.failed(ctx, w, watchID, page, fmt.Errorf("pipeline panic: %v", rec))
		}
	}()

	browserCtx, err := r.browser.NewContext(r.contextOptions(w, watchID))
	if err != nil {
		return r.failed(ctx, w, watchID, nil, err)
	}
	defer func() {
		if cerr := browserCtx.Close(); cerr != nil {
			r.logger.Debug().Err(cerr).Str("watch", watchID).Msg("Context close failed")
		}
	}()

	page, err = browserCtx.NewPage()
	if err != nil {
		return r.failed(ctx, w, watchID, nil, err)
	}

	if err := r.navigateWithRetry(ctx, page, w); err != nil {
		return r.failed(ctx, w, watchID, page, err)
	}

	if _, err := r.actions.Run(page, w.Actions); err != nil {
		return r.failed(ctx, w, watchID, page, err)
	}

	if w.WaitForSelector != "" {
		if err := page.WaitSelector(w.WaitForSelector, false, 30*time.Second); err != nil {
			r.logger.Debug().Err(err).Str("watch", watchID).Str("selector", w.WaitForSelector).Msg("Post-action selector wait timed out")
		}
	}
	if w.WaitMs > 0 {
		r.Sleep(time.Duration(w.WaitMs) * time.Millisecond)
	}

	snapshot := r.extractors.Extract(page, watchID, w.Extractors)

	prior := r.store.Load(watchID)
	var priorData models.Snapshot
	if prior != nil {
		priorData = prior.Data
	}

	changes := r.comparators.Compare(snapshot, priorData, w.Extractors, comparator.Options{
		Default:     w.Comparator,
		Threshold:   w.Threshold,
		IncludeDiff: w.IncludeDiff,
	})

	if err := r.store.SaveSnapshot(watchID, snapshot, r.Now()); err != nil {
		r.logger.Error().Err(err).Str("watch", watchID).Msg("Failed to persist snapshot")
	}

	if w.PersistSession {
		sessionPath := statestore.SessionStatePath(r.settings.SessionDir, watchID)
		if err := os.MkdirAll(filepath.Dir(sessionPath), 0o755); err == nil {
			if err := browserCtx.SaveStorageState(sessionPath); err != nil {
				r.logger.Warn().Err(err).Str("watch", watchID).Msg("Failed to persist session state")
			}
		}
	}

	r.mu.Lock()
	r.errorCounts[watchID] = 0
	r.mu.Unlock()

	if len(changes) > 0 && priorData != nil {
		r.notifier.NotifyChanges(ctx, w, changes, snapshot, priorData)
	} else if len(changes) > 0 {
		r.logger.Info().Str("watch", watchID).Int("changes", len(changes)).Msg("First successful run, skipping change notification")
	} else {
		r.logger.Debug().Str("watch", watchID).Msg("No changes detected")
	}

	return models.CheckResult{
		Success: true,
		Data:    snapshot,
		Changes: changes,
	}
}

// navigateWithRetry drives the retry loop: every failed attempt, the
// last one included, is followed by a sleep of the exponential backoff.
func (r *Runner) navigateWithRetry(ctx context.Context, page browser.Page, w *config.WatchConfig) error {
	attempts := w.Retries
	if attempts <= 0 {
		attempts = r.settings.MaxRetries
	}
	if attempts <= 0 {
		attempts = 1
	}

	timeout := time.Duration(w.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseDelay := time.Duration(r.settings.RetryBaseDelayMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = page.Navigate(w.URL, timeout, w.WaitUntil)
		if lastErr == nil {
			return nil
		}

		delay := baseDelay << (attempt - 1)
		r.logger.Warn().Err(lastErr).Str("url", w.URL).
			Int("attempt", attempt).Int("max_attempts", attempts).
			Dur("backoff", delay).Msg("Navigation failed")
		r.Sleep(delay)
	}

	return fmt.Errorf("navigation failed after %d attempts: %w", attempts, lastErr)
}

// failed handles the shared error path: counter, screenshot, error
// state record, threshold notification.
func (r *Runner) failed(ctx context.Context, w *config.WatchConfig, watchID string, page browser.Page, err error) models.CheckResult {
	r.mu.Lock()
	r.errorCounts[watchID]++
	consecutive := r.errorCounts[watchID]
	r.mu.Unlock()

	r.logger.Error().Err(err).Str("watch", watchID).Int("consecutive_errors", consecutive).Msg("Watch run failed")

	result := models.CheckResult{Error: err.Error()}

	if w.ScreenshotOnError && page != nil {
		if data, serr := page.Screenshot(true); serr == nil {
			path := statestore.ScreenshotPath(r.settings.ScreenshotDir, watchID, r.Now())
			if werr := os.MkdirAll(filepath.Dir(path), 0o755); werr == nil {
				if werr := os.WriteFile(path, data, 0o644); werr == nil {
					result.ErrorScreenshot = path
				}
			}
		} else {
			r.logger.Debug().Err(serr).Str("watch", watchID).Msg("Error screenshot failed")
		}
	}

	if serr := r.store.SaveError(watchID, err.Error(), r.Now()); serr != nil {
		r.logger.Error().Err(serr).Str("watch", watchID).Msg("Failed to persist error state")
	}

	threshold := w.ErrorThreshold
	if threshold <= 0 {
		threshold = r.settings.ErrorNotifyThreshold
	}
	if w.NotifyOnError && consecutive >= threshold {
		r.notifier.NotifyError(ctx, w, consecutive, err.Error())
	}

	return result
}

func (r *Runner) contextOptions(w *config.WatchConfig, watchID string) browser.ContextOptions {
	opts := browser.ContextOptions{
		UserAgent:      w.UserAgent,
		Locale:         w.Locale,
		Timezone:       w.Timezone,
		Headers:        w.Headers,
		BlockResources: w.BlockResources,
		Stealth:        w.Stealth,
	}
	if w.Viewport != nil {
		opts.ViewportWidth = w.Viewport.Width
		opts.ViewportHeight = w.Viewport.Height
	}
	for _, c := range w.Cookies {
		opts.Cookies = append(opts.Cookies, browser.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	if w.Proxy != nil {
		opts.ProxyServer = w.Proxy.Server
		opts.ProxyUsername = w.Proxy.Username
		opts.ProxyPassword = w.Proxy.Password
	}
	if w.PersistSession {
		sessionPath := statestore.SessionStatePath(r.settings.SessionDir, watchID)
		if _, err := os.Stat(sessionPath); err == nil {
			opts.StoragePath = sessionPath
		}
	}
	return opts
}

// Result returns the last check result for a watch.
func (r *Runner) Result(watchID string) (models.CheckResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.lastResults[watchID]
	return res, ok
}

// Results snapshots all last check results.
func (r *Runner) Results() map[string]models.CheckResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.CheckResult, len(r.lastResults))
	for k, v := range r.lastResults {
		out[k] = v
	}
	return out
}

// ErrorCount returns the consecutive error counter for a watch.
func (r *Runner) ErrorCount(watchID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorCounts[watchID]
}

// Counters snapshots the runs/errors totals for the metrics endpoint.
func (r *Runner) Counters() (runs, errors map[string]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	runs = make(map[string]int64, len(r.runsTotal))
	for k, v := range r.runsTotal {
		runs[k] = v
	}
	errors = make(map[string]int64, len(r.errsTotal))
	for k, v := range r.errsTotal {
		errors[k] = v
	}
	return runs, errors
}
