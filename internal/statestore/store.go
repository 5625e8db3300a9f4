// Package statestore persists per-watch snapshots as one JSON file per
// watch, plus the sqlite run-history log.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aleister1102/webwatch/internal/errs"
	"github.com/aleister1102/webwatch/internal/models"
)

// Store reads and writes watch state files. The scheduler guarantees a
// single writer per watch, so writes need no locking beyond the
// write-then-rename of Save.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore creates the state directory if needed.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrapf(err, "failed to create state directory '%s'", dir)
	}
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "StateStore").Logger(),
	}, nil
}

func (s *Store) path(watchID string) string {
	return filepath.Join(s.dir, watchID+".json")
}

// Load returns the persisted record for a watch, or nil when the file
// is missing or malformed.
func (s *Store) Load(watchID string) *models.StateRecord {
	data, err := os.ReadFile(s.path(watchID))
	if err != nil {
		return nil
	}
	var rec models.StateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn().Err(err).Str("watch", watchID).Msg("Malformed state file, treating as absent")
		return nil
	}
	return &rec
}

// Save persists a snapshot record, replacing the previous file via
// write-then-rename.
func (s *Store) Save(watchID string, rec *models.StateRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errs.Wrap(err, "failed to marshal state record")
	}
	tmp := s.path(watchID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.Wrapf(err, "failed to write state for watch '%s'", watchID)
	}
	return os.Rename(tmp, s.path(watchID))
}

// SaveSnapshot records a successful run and clears the error
// side-channel.
func (s *Store) SaveSnapshot(watchID string, data models.Snapshot, now time.Time) error {
	return s.Save(watchID, &models.StateRecord{
		Data:      data,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

// SaveError annotates a failed run. The last successful snapshot is
// preserved so the next comparison still has a baseline.
func (s *Store) SaveError(watchID, message string, now time.Time) error {
	rec := s.Load(watchID)
	if rec == nil {
		rec = &models.StateRecord{}
	}
	rec.LastError = message
	rec.LastErrorAt = now.UTC().Format(time.RFC3339)
	return s.Save(watchID, rec)
}

// ScreenshotPath names an error screenshot file.
func ScreenshotPath(dir, watchID string, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("error-%s-%d.png", watchID, at.UnixMilli()))
}

// SessionStatePath names the per-watch browser storage file.
func SessionStatePath(dir, watchID string) string {
	return filepath.Join(dir, watchID, "state.json")
}
