// Package extractor runs declared extractors against a loaded page and
// produces the named snapshot values.
package extractor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aleister1102/webwatch/internal/browser"
	"github.com/aleister1102/webwatch/internal/config"
	"github.com/aleister1102/webwatch/internal/errs"
	"github.com/aleister1102/webwatch/internal/jsonpath"
	"github.com/aleister1102/webwatch/internal/models"
	"github.com/aleister1102/webwatch/internal/transform"
)

// Engine evaluates extractors for one run. Failures are contained per
// extractor: the declared default (or null) is substituted and the run
// continues.
type Engine struct {
	logger        zerolog.Logger
	screenshotDir string
}

// NewEngine creates an extractor engine. screenshotDir receives the
// files produced by screenshot-type extractors.
func NewEngine(logger zerolog.Logger, screenshotDir string) *Engine {
	return &Engine{
		logger:        logger.With().Str("component", "ExtractorEngine").Logger(),
		screenshotDir: screenshotDir,
	}
}

// Extract runs every extractor in declaration order and returns the
// snapshot map.
func (e *Engine) Extract(page browser.Page, watchID string, extractors []config.ExtractorConfig) models.Snapshot {
	snapshot := make(models.Snapshot, len(extractors))

	for i := range extractors {
		ex := &extractors[i]
		value, err := e.extractOne(page, watchID, ex)
		if err != nil {
			e.logger.Warn().Err(err).Str("watch", watchID).Str("extractor", ex.Name).Msg("Extractor failed, substituting default")
			value = ex.Default
		} else if isEmptyResult(value) && ex.Default != nil {
			value = ex.Default
		}

		value = transform.Apply(value, ex.TransformChain())
		snapshot[ex.Name] = value
	}

	return snapshot
}

// extractOne evaluates a single extractor against the main frame, then
// against child frames when checkFrames is set and the main frame came
// up empty.
func (e *Engine) extractOne(page browser.Page, watchID string, ex *config.ExtractorConfig) (any, error) {
	value, err := e.evaluate(page, watchID, ex)
	if err != nil {
		return nil, err
	}

	if ex.CheckFrames && isEmptyResult(value) {
		frames, ferr := page.Frames()
		if ferr != nil {
			return value, nil
		}
		for _, frame := range frames {
			fval, ferr := e.evaluate(frame, watchID, ex)
			if ferr == nil && !isEmptyResult(fval) {
				return fval, nil
			}
		}
	}

	return value, nil
}

func (e *Engine) evaluate(page browser.Page, watchID string, ex *config.ExtractorConfig) (any, error) {
	xpath := ex.XPath || ex.Type == "xpath"

	switch ex.Type {
	case "text", "xpath":
		values, err := page.Text(ex.Selector, xpath)
		return toSeq(values), err
	case "innerText":
		values, err := page.InnerText(ex.Selector, xpath)
		return toSeq(values), err
	case "attribute":
		return page.Attribute(ex.Selector, ex.Attribute, xpath)
	case "value":
		values, err := page.InputValues(ex.Selector, xpath)
		return toSeq(values), err
	case "options":
		items, err := page.SelectOptions(ex.Selector)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = map[string]any{"value": item.Value, "text": item.Text}
		}
		return out, nil
	case "html":
		values, err := page.HTML(ex.Selector, false, xpath)
		return toSeq(values), err
	case "outerHtml":
		values, err := page.HTML(ex.Selector, true, xpath)
		return toSeq(values), err
	case "count":
		n, err := page.Count(ex.Selector, xpath)
		return float64(n), err
	case "exists":
		return page.Exists(ex.Selector, xpath)
	case "url":
		return page.URL(), nil
	case "title":
		return page.Title()
	case "evaluate":
		return page.Eval(ex.Script)
	case "json":
		return e.extractJSON(page, ex)
	case "jsonFromScript":
		return e.extractScriptJSON(page, ex)
	case "screenshot":
		return e.extractScreenshot(page, watchID, ex)
	}

	return nil, errs.New("unknown extractor type '%s'", ex.Type)
}

// extractJSON parses the visible body text as JSON.
func (e *Engine) extractJSON(page browser.Page, ex *config.ExtractorConfig) (any, error) {
	body, err := page.BodyText()
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return nil, errs.Wrap(err, "body is not valid JSON")
	}
	if ex.Path != "" {
		return jsonpath.Resolve(decoded, ex.Path), nil
	}
	return decoded, nil
}

// extractScriptJSON parses the body of a JSON-typed script tag.
func (e *Engine) extractScriptJSON(page browser.Page, ex *config.ExtractorConfig) (any, error) {
	content, err := page.ScriptContent(ex.Selector)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, errs.New("no matching script tag")
	}
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return nil, errs.Wrap(err, "script body is not valid JSON")
	}
	if ex.Path != "" {
		return jsonpath.Resolve(decoded, ex.Path), nil
	}
	return decoded, nil
}

func (e *Engine) extractScreenshot(page browser.Page, watchID string, ex *config.ExtractorConfig) (any, error) {
	data, err := page.Screenshot(true)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(e.screenshotDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(e.screenshotDir, fmt.Sprintf("%s-%s-%d.png", watchID, ex.Name, time.Now().UnixMilli()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return path, nil
}

func toSeq(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// isEmptyResult reports whether a main-frame result should trigger the
// child-frame fallback: null, false, or an empty sequence.
func isEmptyResult(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case []any:
		return len(t) == 0
	}
	return false
}
