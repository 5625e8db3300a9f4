package scheduler

import (
	"context"
	"time"

	"github.com/aleister1102/webwatch/internal/config"
)

// reloadLoop rescans the config directory on a fixed period and
// reconciles the scheduled set: new ids schedule, changed hashes
// reschedule (triggering an immediate run), and deleted or disabled
// configs tear their timers down.
func (e *Engine) reloadLoop(ctx context.Context) {
	defer e.wg.Done()

	interval := time.Duration(e.settings.ReloadIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Reload(ctx)
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Reload performs one reconciliation pass.
func (e *Engine) Reload(ctx context.Context) {
	configs, err := config.LoadWatchConfigs(e.settings.ConfigDir, e.logger)
	if err != nil {
		e.logger.Error().Err(err).Msg("Config rescan failed")
		return
	}

	seen := make(map[string]struct{}, len(configs))
	for _, w := range configs {
		if !w.IsEnabled() {
			continue
		}
		id := w.WatchID()
		seen[id] = struct{}{}

		e.mu.Lock()
		existing, ok := e.watches[id]
		unchanged := ok && existing.hash == w.ConfigHash
		e.mu.Unlock()

		if unchanged {
			continue
		}

		if ok {
			e.logger.Info().Str("watch", id).Str("file", w.SourceFile).Msg("Watch config changed, rescheduling")
		} else {
			e.logger.Info().Str("watch", id).Str("file", w.SourceFile).Msg("New watch config, scheduling")
		}
		if err := e.schedule(ctx, w, 0); err != nil {
			e.logger.Error().Err(err).Str("watch", id).Msg("Failed to reschedule watch")
		}
	}

	// Tear down watches whose config disappeared or was disabled.
	e.mu.Lock()
	var removed []string
	for id, entry := range e.watches {
		if _, ok := seen[id]; !ok {
			close(entry.stop)
			delete(e.watches, id)
			removed = append(removed, id)
		}
	}
	e.mu.Unlock()

	for _, id := range removed {
		e.logger.Info().Str("watch", id).Msg("Watch removed from config directory, timer stopped")
	}
}
