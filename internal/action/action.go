// Package action executes the declared pre-extraction script against a
// page: an ordered list of actions with optional conditions, failure
// suppression and post-delays.
package action

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aleister1102/webwatch/internal/browser"
	"github.com/aleister1102/webwatch/internal/config"
	"github.com/aleister1102/webwatch/internal/errs"
)

// Engine runs action scripts. The context map threads values between
// actions: setVariable writes slots, evaluate stores its result at
// "evalResult".
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates an action engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger.With().Str("component", "ActionEngine").Logger()}
}

// Run executes the actions in order. The returned map is the final
// action context. The first non-optional failure aborts the script.
func (e *Engine) Run(page browser.Page, actions []config.ActionConfig) (map[string]any, error) {
	actx := make(map[string]any)

	for i := range actions {
		a := &actions[i]

		if a.If != nil && !e.evalCondition(page, actx, a.If) {
			e.logger.Debug().Str("type", a.Type).Int("index", i).Msg("Condition false, skipping action")
			continue
		}

		if err := e.dispatch(page, actx, a); err != nil {
			if a.Optional {
				e.logger.Warn().Err(err).Str("type", a.Type).Int("index", i).Msg("Optional action failed, continuing")
				continue
			}
			return actx, errs.Wrapf(err, "action #%d (%s) failed", i, a.Type)
		}

		if a.DelayMs > 0 {
			time.Sleep(time.Duration(a.DelayMs) * time.Millisecond)
		}
	}

	return actx, nil
}

func (e *Engine) dispatch(page browser.Page, actx map[string]any, a *config.ActionConfig) error {
	switch a.Type {
	case "wait":
		time.Sleep(time.Duration(a.WaitMs) * time.Millisecond)
		return nil
	case "waitForSelector":
		return page.WaitSelector(a.Selector, isXPathSelector(a.Selector), waitTimeout(a))
	case "waitForXPath":
		sel := a.XPath
		if sel == "" {
			sel = a.Selector
		}
		return page.WaitSelector(sel, true, waitTimeout(a))
	case "waitForNavigation":
		return page.WaitNavigation(waitTimeout(a))
	case "click":
		return e.click(page, a)
	case "type":
		return page.Fill(a.Selector, inputText(a))
	case "typeSlowly":
		perKey := time.Duration(a.PerKeyMs) * time.Millisecond
		if perKey <= 0 {
			perKey = 100 * time.Millisecond
		}
		return page.TypeSlowly(a.Selector, inputText(a), perKey)
	case "pressKey":
		return page.PressKey(a.Key)
	case "select":
		return page.SelectValue(a.Selector, a.Value)
	case "hover":
		return page.Hover(a.Selector)
	case "scroll":
		if a.Selector != "" {
			return page.ScrollIntoView(a.Selector)
		}
		return page.ScrollBy(a.X, a.Y)
	case "evaluate":
		result, err := page.Eval(a.Script)
		if err != nil {
			return err
		}
		actx["evalResult"] = result
		return nil
	case "screenshot":
		_, err := page.Screenshot(a.FullPage)
		return err
	case "setVariable":
		actx[a.Name] = a.Value
		return nil
	case "login":
		return e.login(page, a)
	}

	e.logger.Warn().Str("type", a.Type).Msg("Unknown action type, skipping")
	return nil
}

// click probes the main frame first; unless frame probing is disabled,
// child frames are tried in document order and the first match wins.
func (e *Engine) click(page browser.Page, a *config.ActionConfig) error {
	xpath := isXPathSelector(a.Selector)

	mainErr := page.Click(a.Selector, xpath)
	if mainErr == nil {
		return nil
	}

	if a.ProbesFrames() {
		frames, err := page.Frames()
		if err == nil {
			for _, frame := range frames {
				if err := frame.Click(a.Selector, xpath); err == nil {
					return nil
				}
			}
		}
	}

	return errs.Wrapf(mainErr, "no frame matched selector '%s'", a.Selector)
}

// login is a composite: fill username, fill password, click submit, then
// best-effort wait for the navigation it usually triggers. Any subset of
// the three fields may be omitted.
func (e *Engine) login(page browser.Page, a *config.ActionConfig) error {
	if a.UsernameSelector != "" {
		if err := page.Fill(a.UsernameSelector, a.Username); err != nil {
			return errs.Wrap(err, "username field")
		}
	}
	if a.PasswordSelector != "" {
		if err := page.Fill(a.PasswordSelector, a.Password); err != nil {
			return errs.Wrap(err, "password field")
		}
	}
	if a.SubmitSelector != "" {
		if err := page.Click(a.SubmitSelector, isXPathSelector(a.SubmitSelector)); err != nil {
			return errs.Wrap(err, "submit button")
		}
	}
	if err := page.WaitNavigation(10 * time.Second); err != nil {
		e.logger.Debug().Err(err).Msg("No navigation after login submit")
	}
	return nil
}

// evalCondition decides whether an action runs. Unknown condition types
// pass.
func (e *Engine) evalCondition(page browser.Page, actx map[string]any, c *config.ConditionConfig) bool {
	switch c.Type {
	case "exists":
		ok, err := page.Exists(c.Selector, isXPathSelector(c.Selector))
		return err == nil && ok
	case "notExists":
		ok, err := page.Exists(c.Selector, isXPathSelector(c.Selector))
		return err == nil && !ok
	case "textContains":
		texts, err := page.Text(c.Selector, isXPathSelector(c.Selector))
		if err != nil || len(texts) == 0 {
			return false
		}
		return strings.Contains(texts[0], c.Text)
	case "variable":
		return truthy(actx[c.Name])
	case "evaluate":
		result, err := page.Eval(c.Script)
		if err != nil {
			return false
		}
		return truthy(result)
	}
	return true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	}
	return true
}

// isXPathSelector treats selectors starting with // as XPath.
func isXPathSelector(selector string) bool {
	return strings.HasPrefix(selector, "//")
}

func inputText(a *config.ActionConfig) string {
	if a.Text != "" {
		return a.Text
	}
	return a.Value
}

func waitTimeout(a *config.ActionConfig) time.Duration {
	if a.WaitMs > 0 {
		return time.Duration(a.WaitMs) * time.Millisecond
	}
	return 30 * time.Second
}
