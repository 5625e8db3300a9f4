// Package transform implements the pure data reshapers applied to
// extractor output. Every transform tolerates nil by returning it
// unchanged (except parseNumber, which maps nil to 0) and no-ops
// gracefully on a type mismatch; unknown transform names are identity.
package transform

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/aleister1102/webwatch/internal/config"
	"github.com/aleister1102/webwatch/internal/jsonpath"
	"github.com/aleister1102/webwatch/internal/models"
)

type transformFunc func(v any, opts map[string]any) any

var registry = map[string]transformFunc{
	"flatten":     flatten,
	"unique":      unique,
	"sort":        sortValues,
	"reverse":     reverse,
	"join":        join,
	"split":       split,
	"first":       first,
	"last":        last,
	"slice":       sliceValues,
	"filter":      filterValues,
	"map":         pluck,
	"pluck":       pluck,
	"trim":        mapStrings(strings.TrimSpace),
	"lowercase":   mapStrings(strings.ToLower),
	"uppercase":   mapStrings(strings.ToUpper),
	"regex":       regexMatch,
	"replace":     regexReplace,
	"parseNumber": parseNumber,
	"parseJson":   parseJSON,
	"jsonPath":    jsonPathTransform,
	"compact":     compact,
}

// Apply runs the transform chain in order.
func Apply(v any, chain []config.TransformSpec) any {
	for _, spec := range chain {
		fn, ok := registry[spec.Type]
		if !ok {
			continue
		}
		v = fn(v, spec.Options)
	}
	return v
}

func optString(opts map[string]any, key, fallback string) string {
	if s, ok := opts[key].(string); ok {
		return s
	}
	return fallback
}

func optFloat(opts map[string]any, key string, fallback float64) float64 {
	if f, ok := opts[key].(float64); ok {
		return f
	}
	return fallback
}

func optBool(opts map[string]any, key string) bool {
	b, _ := opts[key].(bool)
	return b
}

func flatten(v any, opts map[string]any) any {
	seq, ok := v.([]any)
	if !ok {
		return v
	}
	depth := int(optFloat(opts, "depth", 1))
	return flattenSeq(seq, depth)
}

func flattenSeq(seq []any, depth int) []any {
	out := make([]any, 0, len(seq))
	for _, el := range seq {
		if nested, ok := el.([]any); ok && depth > 0 {
			out = append(out, flattenSeq(nested, depth-1)...)
			continue
		}
		out = append(out, el)
	}
	return out
}

func unique(v any, _ map[string]any) any {
	seq, ok := v.([]any)
	if !ok {
		return v
	}
	seen := make(map[string]struct{}, len(seq))
	out := make([]any, 0, len(seq))
	for _, el := range seq {
		key := structuralKey(el)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, el)
	}
	return out
}

// structuralKey keys an element by its JSON form so records dedupe by
// structure, not identity.
func structuralKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return models.Stringify(v)
	}
	return string(b)
}

func sortValues(v any, opts map[string]any) any {
	seq, ok := v.([]any)
	if !ok {
		return v
	}
	key := optString(opts, "key", "")
	desc := optBool(opts, "desc")

	out := make([]any, len(seq))
	copy(out, seq)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := sortable(out[i], key), sortable(out[j], key)
		less := compareSortables(a, b)
		if desc {
			return !less && a != b
		}
		return less
	})
	return out
}

func sortable(v any, key string) string {
	if key != "" {
		if rec, ok := v.(map[string]any); ok {
			v = rec[key]
		}
	}
	if f, ok := models.ToFloat(v); ok {
		return models.FormatNumber(f)
	}
	return models.Stringify(v)
}

func compareSortables(a, b string) bool {
	fa, okA := models.ToFloat(a)
	fb, okB := models.ToFloat(b)
	if okA && okB {
		return fa < fb
	}
	return a < b
}

func reverse(v any, _ map[string]any) any {
	seq, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(seq))
	for i, el := range seq {
		out[len(seq)-1-i] = el
	}
	return out
}

func join(v any, opts map[string]any) any {
	seq, ok := v.([]any)
	if !ok {
		return v
	}
	sep := optString(opts, "separator", ", ")
	parts := make([]string, len(seq))
	for i, el := range seq {
		parts[i] = models.Stringify(el)
	}
	return strings.Join(parts, sep)
}

func split(v any, opts map[string]any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	sep := optString(opts, "separator", ",")
	pieces := strings.Split(s, sep)
	out := make([]any, len(pieces))
	for i, p := range pieces {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func first(v any, _ map[string]any) any {
	if seq, ok := v.([]any); ok {
		if len(seq) == 0 {
			return nil
		}
		return seq[0]
	}
	return v
}

func last(v any, _ map[string]any) any {
	if seq, ok := v.([]any); ok {
		if len(seq) == 0 {
			return nil
		}
		return seq[len(seq)-1]
	}
	return v
}

func sliceValues(v any, opts map[string]any) any {
	seq, ok := v.([]any)
	if !ok {
		return v
	}
	start := resolveIndex(int(optFloat(opts, "start", 0)), len(seq))
	end := len(seq)
	if raw, present := opts["end"]; present {
		if f, ok := raw.(float64); ok {
			end = resolveIndex(int(f), len(seq))
		}
	}
	if start >= end {
		return []any{}
	}
	out := make([]any, end-start)
	copy(out, seq[start:end])
	return out
}

// resolveIndex clamps an index into [0, length], counting negatives
// from the end like JS Array.prototype.slice.
func resolveIndex(idx, length int) int {
	if idx < 0 {
		idx += length
	}
	if idx < 0 {
		return 0
	}
	if idx > length {
		return length
	}
	return idx
}

func filterValues(v any, opts map[string]any) any {
	seq, ok := v.([]any)
	if !ok {
		return v
	}
	include := optString(opts, "include", "")
	exclude := optString(opts, "exclude", "")
	if include == "" && exclude == "" {
		return seq
	}

	out := make([]any, 0, len(seq))
	for _, el := range seq {
		text := filterText(el)
		if include != "" && !strings.Contains(text, include) {
			continue
		}
		if exclude != "" && strings.Contains(text, exclude) {
			continue
		}
		out = append(out, el)
	}
	return out
}

// filterText compares records against their value or text field.
func filterText(el any) string {
	if rec, ok := el.(map[string]any); ok {
		if s, ok := rec["value"].(string); ok && s != "" {
			return s
		}
		if s, ok := rec["text"].(string); ok {
			return s
		}
	}
	return models.Stringify(el)
}

func pluck(v any, opts map[string]any) any {
	key := optString(opts, "key", "")
	if key == "" {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		return t[key]
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			if rec, ok := el.(map[string]any); ok {
				out[i] = rec[key]
			} else {
				out[i] = el
			}
		}
		return out
	}
	return v
}

// mapStrings lifts a string operation over scalars and sequences,
// leaving non-strings untouched.
func mapStrings(op func(string) string) transformFunc {
	return func(v any, _ map[string]any) any {
		switch t := v.(type) {
		case string:
			return op(t)
		case []any:
			out := make([]any, len(t))
			for i, el := range t {
				if s, ok := el.(string); ok {
					out[i] = op(s)
				} else {
					out[i] = el
				}
			}
			return out
		}
		return v
	}
}

func regexMatch(v any, opts map[string]any) any {
	if v == nil {
		return nil
	}
	pattern := optString(opts, "pattern", "")
	if pattern == "" {
		return v
	}
	re, err := compilePattern(pattern, optString(opts, "flags", "g"))
	if err != nil {
		return v
	}
	matches := re.FindAllString(models.Stringify(v), -1)
	if matches == nil {
		return nil
	}
	out := make([]any, len(matches))
	for i, m := range matches {
		out[i] = m
	}
	return out
}

func regexReplace(v any, opts map[string]any) any {
	if v == nil {
		return nil
	}
	pattern := optString(opts, "pattern", "")
	if pattern == "" {
		return v
	}
	flags := optString(opts, "flags", "g")
	re, err := compilePattern(pattern, flags)
	if err != nil {
		return v
	}
	replacement := optString(opts, "replacement", "")
	s := models.Stringify(v)
	if strings.Contains(flags, "g") {
		return re.ReplaceAllString(s, replacement)
	}
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + re.ReplaceAllString(s[loc[0]:loc[1]], replacement) + s[loc[1]:]
}

func compilePattern(pattern, flags string) (*regexp.Regexp, error) {
	if strings.Contains(flags, "i") {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

func parseNumber(v any, _ map[string]any) any {
	if v == nil {
		return float64(0)
	}
	if f, ok := v.(float64); ok {
		return f
	}
	stripped := nonNumeric.ReplaceAllString(models.Stringify(v), "")
	f, ok := models.ToFloat(stripped)
	if !ok {
		return float64(0)
	}
	return f
}

func parseJSON(v any, _ map[string]any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return v
	}
	return decoded
}

func jsonPathTransform(v any, opts map[string]any) any {
	path := optString(opts, "path", "")
	if path == "" {
		return v
	}
	return jsonpath.Resolve(v, path)
}

func compact(v any, _ map[string]any) any {
	seq, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, 0, len(seq))
	for _, el := range seq {
		if el == nil {
			continue
		}
		if s, isStr := el.(string); isStr && s == "" {
			continue
		}
		out = append(out, el)
	}
	return out
}
