// Package comparator computes change verdicts between the current and
// prior snapshots.
package comparator

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"math"

	"github.com/rs/zerolog"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/aleister1102/webwatch/internal/config"
	"github.com/aleister1102/webwatch/internal/models"
)

// Options configures one comparison pass over a snapshot pair.
type Options struct {
	// Default is the watch-level comparator applied to fields without a
	// per-extractor override. Empty and unknown names degrade to hash.
	Default string
	// Threshold is the watch-level numeric threshold.
	Threshold float64
	// IncludeDiff attaches a compact text diff to hash/exact change
	// records when both values are strings.
	IncludeDiff bool
}

// Engine resolves per-field comparators and emits change records in
// extractor declaration order.
type Engine struct {
	logger zerolog.Logger
	dmp    *diffmatchpatch.DiffMatchPatch
}

// NewEngine creates a comparator engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		logger: logger.With().Str("component", "ComparatorEngine").Logger(),
		dmp:    diffmatchpatch.New(),
	}
}

// Compare walks the current snapshot in extractor order and returns one
// change record per changed field.
func (e *Engine) Compare(current, prior models.Snapshot, extractors []config.ExtractorConfig, opts Options) []models.ChangeRecord {
	var changes []models.ChangeRecord

	for i := range extractors {
		ex := &extractors[i]
		cur, ok := current[ex.Name]
		if !ok {
			continue
		}
		var prev any
		if prior != nil {
			prev = prior[ex.Name]
		}

		name := resolveComparator(ex.Comparator, opts.Default)
		threshold := opts.Threshold
		if ex.Threshold != nil {
			threshold = *ex.Threshold
		}

		changed, details := e.compareField(name, cur, prev, threshold)
		if !changed {
			continue
		}

		if opts.IncludeDiff && details == nil {
			details = e.textDiff(prev, cur)
		}

		changes = append(changes, models.ChangeRecord{
			Name:       ex.Name,
			Previous:   prev,
			Current:    cur,
			Details:    details,
			Comparator: name,
		})
	}

	return changes
}

// resolveComparator picks the effective comparator name. The custom
// comparator has no trusted evaluator in this runtime and degrades to
// hash; unknown names do the same.
func resolveComparator(perField, watchDefault string) string {
	name := perField
	if name == "" {
		name = watchDefault
	}
	if name == "" {
		return "hash"
	}
	switch name {
	case "hash", "exact", "length", "added", "removed", "addedOrRemoved",
		"numeric", "increased", "decreased", "none":
		return name
	}
	return "hash"
}

func (e *Engine) compareField(name string, cur, prev any, threshold float64) (bool, any) {
	switch name {
	case "hash":
		return hashOf(cur) != hashOf(prev), nil
	case "exact":
		return canonical(cur) != canonical(prev), nil
	case "length":
		return compareLength(cur, prev)
	case "added":
		added, _ := setDiff(cur, prev)
		if len(added) == 0 {
			return false, nil
		}
		return true, &models.SetDetails{Added: added}
	case "removed":
		_, removed := setDiff(cur, prev)
		if len(removed) == 0 {
			return false, nil
		}
		return true, &models.SetDetails{Removed: removed}
	case "addedOrRemoved":
		added, removed := setDiff(cur, prev)
		if len(added) == 0 && len(removed) == 0 {
			return false, nil
		}
		return true, &models.SetDetails{Added: added, Removed: removed}
	case "numeric":
		return compareNumeric(cur, prev, threshold, func(c, p, t float64) bool {
			return math.Abs(c-p) > t
		})
	case "increased":
		return compareNumeric(cur, prev, threshold, func(c, p, t float64) bool {
			return c > p+t
		})
	case "decreased":
		return compareNumeric(cur, prev, threshold, func(c, p, t float64) bool {
			return c < p-t
		})
	case "none":
		return false, nil
	}
	return false, nil
}

// canonical is the JSON form used for exact and hash comparison. Map
// keys are sorted by the encoder, so equal values encode equally.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func hashOf(v any) string {
	sum := md5.Sum([]byte(canonical(v)))
	return hex.EncodeToString(sum[:])
}

func compareLength(cur, prev any) (bool, any) {
	curLen := lengthOf(cur)
	prevLen := lengthOf(prev)
	if curLen == prevLen {
		return false, nil
	}
	return true, &models.NumericDetails{
		Previous: float64(prevLen),
		Current:  float64(curLen),
		Diff:     float64(curLen - prevLen),
	}
}

// lengthOf is sequence length or string length; a missing value counts
// as zero.
func lengthOf(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case []any:
		return len(t)
	case string:
		return len([]rune(t))
	}
	return len([]rune(models.Stringify(v)))
}

// setDiff returns current members absent from prior and prior members
// absent from current.
func setDiff(cur, prev any) (added, removed []any) {
	curSeq, _ := cur.([]any)
	prevSeq, _ := prev.([]any)

	prevSet := memberSet(prevSeq)
	curSet := memberSet(curSeq)

	for _, el := range curSeq {
		if _, ok := prevSet[models.MemberKey(el)]; !ok {
			added = append(added, el)
		}
	}
	for _, el := range prevSeq {
		if _, ok := curSet[models.MemberKey(el)]; !ok {
			removed = append(removed, el)
		}
	}
	return added, removed
}

func memberSet(seq []any) map[string]struct{} {
	set := make(map[string]struct{}, len(seq))
	for _, el := range seq {
		set[models.MemberKey(el)] = struct{}{}
	}
	return set
}

func compareNumeric(cur, prev any, threshold float64, verdict func(c, p, t float64) bool) (bool, any) {
	c, okC := models.ToFloat(cur)
	p, okP := models.ToFloat(prev)
	if !okC || !okP {
		return false, nil
	}
	if !verdict(c, p, threshold) {
		return false, nil
	}
	return true, &models.NumericDetails{Previous: p, Current: c, Diff: c - p}
}

// diffRuneCap bounds the rendered text diff attached to change details.
const diffRuneCap = 800

// textDiff renders a compact inline diff between two string values.
// Non-string values yield nil.
func (e *Engine) textDiff(prev, cur any) any {
	prevStr, okP := prev.(string)
	curStr, okC := cur.(string)
	if !okP || !okC {
		return nil
	}

	diffs := e.dmp.DiffMain(prevStr, curStr, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)

	rendered := e.dmp.DiffPrettyText(diffs)
	runes := []rune(rendered)
	if len(runes) > diffRuneCap {
		rendered = string(runes[:diffRuneCap]) + "…"
	}
	return map[string]any{"diff": rendered}
}
