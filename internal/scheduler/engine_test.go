package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleister1102/webwatch/internal/config"
	"github.com/aleister1102/webwatch/internal/errs"
	"github.com/aleister1102/webwatch/internal/models"
)

// countingRunner records run invocations; block makes runs hang until
// released so overlap behavior can be observed.
type countingRunner struct {
	mu      sync.Mutex
	counts  map[string]int
	running int
	maxSeen int
	block   chan struct{}
}

func newCountingRunner() *countingRunner {
	return &countingRunner{counts: make(map[string]int)}
}

func (r *countingRunner) RunWatch(_ context.Context, w *config.WatchConfig) models.CheckResult {
	r.mu.Lock()
	r.counts[w.WatchID()]++
	r.running++
	if r.running > r.maxSeen {
		r.maxSeen = r.running
	}
	block := r.block
	r.mu.Unlock()

	if block != nil {
		<-block
	}

	r.mu.Lock()
	r.running--
	r.mu.Unlock()
	return models.CheckResult{Success: true, WatchID: w.WatchID()}
}

func (r *countingRunner) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id]
}

func writeWatchFile(t *testing.T, dir, name string, w map[string]any) string {
	t.Helper()
	data, err := json.Marshal(w)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func watchDoc(id string, intervalMs int64) map[string]any {
	return map[string]any{
		"id":       id,
		"name":     "Watch " + id,
		"url":      "https://example.com/" + id,
		"interval": intervalMs,
		"extractors": []map[string]any{
			{"name": "title", "type": "title"},
		},
	}
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.NewDefaultSettings()
	s.ConfigDir = t.TempDir()
	s.StaggerDelayMs = 1
	s.ShutdownGraceMs = 2000
	s.ReloadIntervalMs = 3600000 // reloads are driven manually in tests
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestStart_SchedulesAndRunsImmediately(t *testing.T) {
	settings := testSettings(t)
	writeWatchFile(t, settings.ConfigDir, "a.json", watchDoc("aa", 3600000))
	writeWatchFile(t, settings.ConfigDir, "b.json", watchDoc("bb", 3600000))

	runner := newCountingRunner()
	engine := NewEngine(settings, runner, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return runner.count("aa") >= 1 && runner.count("bb") >= 1
	})
	assert.Len(t, engine.Watches(), 2)
}

func TestStart_SkipsDisabledWatches(t *testing.T) {
	settings := testSettings(t)
	doc := watchDoc("off", 3600000)
	doc["enabled"] = false
	writeWatchFile(t, settings.ConfigDir, "off.json", doc)

	runner := newCountingRunner()
	engine := NewEngine(settings, runner, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, runner.count("off"))
	assert.Empty(t, engine.Watches())
}

func TestIntervalTickerRepeats(t *testing.T) {
	settings := testSettings(t)
	writeWatchFile(t, settings.ConfigDir, "a.json", watchDoc("aa", 20))

	runner := newCountingRunner()
	engine := NewEngine(settings, runner, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	waitFor(t, 2*time.Second, func() bool { return runner.count("aa") >= 3 })
}

func TestFire_NonOverlap(t *testing.T) {
	settings := testSettings(t)
	writeWatchFile(t, settings.ConfigDir, "a.json", watchDoc("aa", 3600000))

	runner := newCountingRunner()
	runner.block = make(chan struct{})
	engine := NewEngine(settings, runner, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Start(ctx))

	waitFor(t, 2*time.Second, func() bool { return runner.count("aa") == 1 })

	// The first run is still blocked; extra triggers must be skipped.
	require.NoError(t, engine.Trigger(ctx, "aa"))
	require.NoError(t, engine.Trigger(ctx, "aa"))
	waitFor(t, 2*time.Second, func() bool { return engine.SkippedCounts()["aa"] >= 2 })

	assert.Equal(t, 1, runner.count("aa"))
	assert.Equal(t, 1, runner.maxSeen)

	close(runner.block)
	engine.Stop()
}

func TestTrigger_UnknownWatch(t *testing.T) {
	settings := testSettings(t)
	engine := NewEngine(settings, newCountingRunner(), zerolog.Nop())

	err := engine.Trigger(context.Background(), "ghost")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestReload_AddsChangesAndRemoves(t *testing.T) {
	settings := testSettings(t)
	pathA := writeWatchFile(t, settings.ConfigDir, "a.json", watchDoc("aa", 3600000))

	runner := newCountingRunner()
	engine := NewEngine(settings, runner, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	waitFor(t, 2*time.Second, func() bool { return runner.count("aa") == 1 })

	// New config appears.
	writeWatchFile(t, settings.ConfigDir, "b.json", watchDoc("bb", 3600000))
	engine.Reload(ctx)
	waitFor(t, 2*time.Second, func() bool { return runner.count("bb") == 1 })
	assert.Len(t, engine.Watches(), 2)

	// Unchanged config does not re-fire.
	engine.Reload(ctx)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, runner.count("aa"))

	// Edited config reschedules and runs immediately.
	doc := watchDoc("aa", 3600000)
	doc["name"] = "Watch aa (edited)"
	writeWatchFile(t, settings.ConfigDir, "a.json", doc)
	engine.Reload(ctx)
	waitFor(t, 2*time.Second, func() bool { return runner.count("aa") == 2 })

	// Deleted config tears its timer down.
	require.NoError(t, os.Remove(pathA))
	engine.Reload(ctx)
	waitFor(t, 2*time.Second, func() bool { return len(engine.Watches()) == 1 })
	assert.Equal(t, "bb", engine.Watches()[0].ID)
}

func TestReload_DisabledTogglesTearDown(t *testing.T) {
	settings := testSettings(t)
	writeWatchFile(t, settings.ConfigDir, "a.json", watchDoc("aa", 3600000))

	runner := newCountingRunner()
	engine := NewEngine(settings, runner, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	waitFor(t, 2*time.Second, func() bool { return runner.count("aa") == 1 })

	doc := watchDoc("aa", 3600000)
	doc["enabled"] = false
	writeWatchFile(t, settings.ConfigDir, "a.json", doc)
	engine.Reload(ctx)

	waitFor(t, 2*time.Second, func() bool { return len(engine.Watches()) == 0 })
}

func TestMemoryGuardSkipsRuns(t *testing.T) {
	settings := testSettings(t)
	settings.MaxMemoryMB = 1
	writeWatchFile(t, settings.ConfigDir, "a.json", watchDoc("aa", 3600000))

	runner := newCountingRunner()
	engine := NewEngine(settings, runner, zerolog.Nop())
	engine.memoryRSS = func() (int64, error) { return 10 * 1024 * 1024, nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	waitFor(t, 2*time.Second, func() bool { return engine.SkippedCounts()["aa"] >= 1 })
	assert.Zero(t, runner.count("aa"))
}

func TestStop_Idempotent(t *testing.T) {
	settings := testSettings(t)
	engine := NewEngine(settings, newCountingRunner(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Start(ctx))

	engine.Stop()
	engine.Stop()
}
