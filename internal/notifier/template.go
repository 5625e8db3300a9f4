package notifier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aleister1102/webwatch/internal/config"
	"github.com/aleister1102/webwatch/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z]+)(?:\.([a-zA-Z0-9_-]+))?\s*\}\}`)

// RenderChanges produces the notification body for a change set: the
// watch's messageTemplate with placeholders substituted, or the default
// format when no template is declared.
func RenderChanges(w *config.WatchConfig, changes []models.ChangeRecord, current, previous models.Snapshot, now time.Time) string {
	if w.MessageTemplate == "" {
		return defaultMessage(w, changes)
	}
	return renderTemplate(w, changes, current, previous, now)
}

// RenderError produces the fixed error-notification body.
func RenderError(w *config.WatchConfig, consecutive int, errMsg string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ <b>%s</b> failed %d consecutive checks\n", w.Name, consecutive)
	fmt.Fprintf(&b, "Error: %s\n", errMsg)
	b.WriteString(w.URL)
	return b.String()
}

func defaultMessage(w *config.WatchConfig, changes []models.ChangeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 <b>%s</b> changed\n", w.Name)

	for _, c := range changes {
		switch details := c.Details.(type) {
		case *models.SetDetails:
			fmt.Fprintf(&b, "%s: %d added, %d removed\n", c.Name, len(details.Added), len(details.Removed))
			for _, el := range details.Added {
				fmt.Fprintf(&b, "  + %s\n", renderItem(el))
			}
			for _, el := range details.Removed {
				fmt.Fprintf(&b, "  - %s\n", renderItem(el))
			}
		case *models.NumericDetails:
			fmt.Fprintf(&b, "%s: %s → %s (%s)\n", c.Name,
				models.FormatNumber(details.Previous),
				models.FormatNumber(details.Current),
				models.FormatSignedNumber(details.Diff))
		default:
			fmt.Fprintf(&b, "%s: %s → %s\n", c.Name, renderItem(c.Previous), renderItem(c.Current))
		}
	}

	b.WriteString(w.URL)
	return b.String()
}

func renderTemplate(w *config.WatchConfig, changes []models.ChangeRecord, current, previous models.Snapshot, now time.Time) string {
	added, removed := collectSetMembers(changes)

	return placeholderRe.ReplaceAllStringFunc(w.MessageTemplate, func(match string) string {
		groups := placeholderRe.FindStringSubmatch(match)
		key, field := groups[1], groups[2]

		switch key {
		case "name":
			return w.Name
		case "url":
			return w.URL
		case "timestamp":
			return now.UTC().Format(time.RFC3339)
		case "changes":
			return jsonString(changes)
		case "data":
			return jsonString(current)
		case "added":
			return joinItems(added, ", ")
		case "removed":
			return joinItems(removed, ", ")
		case "addedList":
			return bulletList(added)
		case "removedList":
			return bulletList(removed)
		case "addedCount":
			return fmt.Sprintf("%d", len(added))
		case "removedCount":
			return fmt.Sprintf("%d", len(removed))
		case "current":
			return renderItem(current[field])
		case "previous":
			return renderItem(previous[field])
		case "diff":
			return renderFieldDiff(previous, current, field)
		}
		return match
	})
}

// renderFieldDiff renders "prev → curr (signed diff)" when both values
// are numeric, "prev → curr" when a non-numeric prior exists, and just
// the current value when there is no prior.
func renderFieldDiff(previous, current models.Snapshot, field string) string {
	cur := current[field]
	prev, hasPrev := previous[field]
	if !hasPrev || prev == nil {
		return renderItem(cur)
	}

	curF, okC := models.ToFloat(cur)
	prevF, okP := models.ToFloat(prev)
	if okC && okP {
		return fmt.Sprintf("%s → %s (%s)",
			models.FormatNumber(prevF),
			models.FormatNumber(curF),
			models.FormatSignedNumber(curF-prevF))
	}
	return fmt.Sprintf("%s → %s", renderItem(prev), renderItem(cur))
}

func collectSetMembers(changes []models.ChangeRecord) (added, removed []any) {
	for _, c := range changes {
		if details, ok := c.Details.(*models.SetDetails); ok {
			added = append(added, details.Added...)
			removed = append(removed, details.Removed...)
		}
	}
	return added, removed
}

// renderItem renders a snapshot value for human output. Records render
// as their text or value field.
func renderItem(v any) string {
	if rec, ok := v.(map[string]any); ok {
		if s, ok := rec["text"].(string); ok && s != "" {
			return s
		}
		if s, ok := rec["value"].(string); ok && s != "" {
			return s
		}
	}
	return models.Stringify(v)
}

func joinItems(items []any, sep string) string {
	parts := make([]string, len(items))
	for i, el := range items {
		parts[i] = renderItem(el)
	}
	return strings.Join(parts, sep)
}

func bulletList(items []any) string {
	var b strings.Builder
	for _, el := range items {
		fmt.Fprintf(&b, "• %s\n", renderItem(el))
	}
	return strings.TrimRight(b.String(), "\n")
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
