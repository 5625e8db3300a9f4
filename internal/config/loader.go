package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aleister1102/webwatch/internal/errs"
)

// LoadWatchConfigs scans the config directory for *.json documents and
// returns the valid watches in filename order. Invalid documents are
// logged and skipped; they never abort the scan.
func LoadWatchConfigs(dir string, logger zerolog.Logger) ([]*WatchConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrapf(err, "failed to read config directory '%s'", dir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	watches := make([]*WatchConfig, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		w, err := LoadWatchConfig(path)
		if err != nil {
			logger.Error().Err(err).Str("file", path).Msg("Skipping invalid watch config")
			continue
		}
		if w.CustomComparator != "" || w.Comparator == "custom" {
			logger.Warn().Str("file", path).Msg("Custom comparators have no script evaluator in this runtime; falling back to hash")
		}
		watches = append(watches, w)
	}
	return watches, nil
}

// LoadWatchConfig parses and validates one watch document. Unknown
// fields are ignored. The source filename and a content hash are
// attached for hot-reload bookkeeping.
func LoadWatchConfig(path string) (*WatchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrapf(err, "failed to read '%s'", path)
	}

	var w WatchConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.Wrapf(err, "failed to unmarshal '%s'", path)
	}

	w.SourceFile = filepath.Base(path)
	w.ConfigHash = ComputeHash(data)

	if err := ValidateWatchConfig(&w); err != nil {
		return nil, err
	}
	return &w, nil
}
