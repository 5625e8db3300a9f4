// Package jsonpath resolves the dotted/indexed paths used by JSON
// extractors and the jsonPath transform, e.g. "data.items[2].price" or
// "$.store.book[0].title".
package jsonpath

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Resolve applies a path to a decoded JSON value and returns the
// selected sub-value, or nil when the path does not resolve. An empty
// path returns the value unchanged.
func Resolve(value any, path string) any {
	if path == "" || value == nil {
		return value
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}

	result := gjson.GetBytes(raw, normalize(path))
	if !result.Exists() {
		return nil
	}
	return result.Value()
}

// normalize converts the supported grammar to gjson syntax: a leading
// "$." or "$" is dropped and bracket indices become dotted segments.
func normalize(path string) string {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")

	var b strings.Builder
	for _, r := range path {
		switch r {
		case '[':
			b.WriteByte('.')
		case ']':
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ".")
}
