package statestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleister1102/webwatch/internal/models"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestLoad_MissingReturnsNil(t *testing.T) {
	assert.Nil(t, newStore(t).Load("nope"))
}

func TestSaveSnapshotRoundTrip(t *testing.T) {
	store := newStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snap := models.Snapshot{"price": float64(9.99), "tags": []any{"a"}}
	require.NoError(t, store.SaveSnapshot("w1", snap, now))

	rec := store.Load("w1")
	require.NotNil(t, rec)
	assert.Equal(t, snap, rec.Data)
	assert.Equal(t, "2026-03-01T12:00:00Z", rec.Timestamp)
	assert.Empty(t, rec.LastError)
}

func TestSaveError_PreservesLastSnapshot(t *testing.T) {
	store := newStore(t)
	now := time.Now()

	snap := models.Snapshot{"count": float64(3)}
	require.NoError(t, store.SaveSnapshot("w1", snap, now))
	require.NoError(t, store.SaveError("w1", "navigation timeout", now.Add(time.Minute)))

	rec := store.Load("w1")
	require.NotNil(t, rec)
	assert.Equal(t, snap, rec.Data)
	assert.Equal(t, "navigation timeout", rec.LastError)
}

func TestSaveError_WithoutPriorSnapshot(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveError("w1", "boom", time.Now()))

	rec := store.Load("w1")
	require.NotNil(t, rec)
	assert.Nil(t, rec.Data)
	assert.Equal(t, "boom", rec.LastError)
}

func TestLoad_MalformedReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{corrupt"), 0o644))
	assert.Nil(t, store.Load("bad"))
}

func TestSave_LeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, store.SaveSnapshot("w1", models.Snapshot{"a": "b"}, time.Now()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "w1.json", entries[0].Name())
}

func TestPaths(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	assert.Equal(t, filepath.Join("shots", "error-w1-1700000000000.png"), ScreenshotPath("shots", "w1", at))
	assert.Equal(t, filepath.Join("sessions", "w1", "state.json"), SessionStatePath("sessions", "w1"))
}

func TestHistoryAppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := OpenHistory(path, zerolog.Nop())
	require.NoError(t, err)
	defer h.Close()

	start := time.Now().Add(-time.Second)
	h.Append(HistoryEntry{WatchID: "w1", WatchName: "First", StartedAt: start, FinishedAt: time.Now(), Success: true, ChangeCount: 2})
	h.Append(HistoryEntry{WatchID: "w2", WatchName: "Second", StartedAt: start, FinishedAt: time.Now(), Success: false, Error: "timeout"})

	entries, err := h.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "w2", entries[0].WatchID)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "timeout", entries[0].Error)
	assert.Equal(t, "w1", entries[1].WatchID)
	assert.True(t, entries[1].Success)
	assert.Equal(t, 2, entries[1].ChangeCount)
}
