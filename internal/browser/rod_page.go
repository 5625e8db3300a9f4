package browser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/aleister1102/webwatch/internal/errs"
)

type rodPage struct {
	page   *rod.Page
	logger zerolog.Logger
}

func (rp *rodPage) Navigate(url string, timeout time.Duration, waitUntil string) error {
	p := rp.page.Timeout(timeout)
	if err := p.Navigate(url); err != nil {
		return errs.Wrapf(err, "failed to navigate to %s", url)
	}
	switch waitUntil {
	case "networkidle", "networkidle0", "networkidle2":
		if err := p.WaitIdle(timeout); err != nil {
			return errs.Wrapf(err, "network idle timeout for %s", url)
		}
	default:
		if err := p.WaitLoad(); err != nil {
			return errs.Wrapf(err, "page load timeout for %s", url)
		}
	}
	return nil
}

func (rp *rodPage) WaitSelector(selector string, xpath bool, timeout time.Duration) error {
	p := rp.page.Timeout(timeout)
	var err error
	if xpath {
		_, err = p.ElementX(selector)
	} else {
		_, err = p.Element(selector)
	}
	return err
}

func (rp *rodPage) WaitNavigation(timeout time.Duration) error {
	wait := rp.page.Timeout(timeout).WaitNavigation(proto.PageLifecycleEventNameLoad)
	wait()
	return nil
}

// quote embeds a string into generated JS as a safely escaped literal.
func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// collectScript builds an in-page function that maps a projection over
// every selector match. CSS and XPath selection share the projection.
func collectScript(selector string, xpath bool, projection string) string {
	if xpath {
		return fmt.Sprintf(`() => {
			const out = [];
			const it = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			for (let i = 0; i < it.snapshotLength; i++) {
				const el = it.snapshotItem(i);
				out.push(%s);
			}
			return out;
		}`, quote(selector), projection)
	}
	return fmt.Sprintf(`() => Array.from(document.querySelectorAll(%s)).map(el => %s)`,
		quote(selector), projection)
}

func (rp *rodPage) evalStrings(script string) ([]string, error) {
	v, err := rp.Eval(script)
	if err != nil {
		return nil, err
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(seq))
	for _, el := range seq {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (rp *rodPage) Text(selector string, xpath bool) ([]string, error) {
	return rp.evalStrings(collectScript(selector, xpath, `(el.textContent || '').trim()`))
}

func (rp *rodPage) InnerText(selector string, xpath bool) ([]string, error) {
	return rp.evalStrings(collectScript(selector, xpath, `(el.innerText || '').trim()`))
}

func (rp *rodPage) Attribute(selector, attribute string, xpath bool) ([]any, error) {
	script := collectScript(selector, xpath, fmt.Sprintf(`el.getAttribute(%s)`, quote(attribute)))
	v, err := rp.Eval(script)
	if err != nil {
		return nil, err
	}
	seq, _ := v.([]any)
	return seq, nil
}

func (rp *rodPage) InputValues(selector string, xpath bool) ([]string, error) {
	return rp.evalStrings(collectScript(selector, xpath, `el.value`))
}

func (rp *rodPage) SelectOptions(selector string) ([]OptionItem, error) {
	script := fmt.Sprintf(`() => Array.from(document.querySelectorAll(%s))
		.flatMap(sel => Array.from(sel.querySelectorAll('option')))
		.filter(opt => opt.value !== '')
		.map(opt => ({value: opt.value, text: (opt.textContent || '').trim()}))`,
		quote(selector))
	v, err := rp.Eval(script)
	if err != nil {
		return nil, err
	}
	seq, _ := v.([]any)
	out := make([]OptionItem, 0, len(seq))
	for _, el := range seq {
		rec, ok := el.(map[string]any)
		if !ok {
			continue
		}
		item := OptionItem{}
		item.Value, _ = rec["value"].(string)
		item.Text, _ = rec["text"].(string)
		out = append(out, item)
	}
	return out, nil
}

func (rp *rodPage) HTML(selector string, outer, xpath bool) ([]string, error) {
	projection := `el.innerHTML`
	if outer {
		projection = `el.outerHTML`
	}
	return rp.evalStrings(collectScript(selector, xpath, projection))
}

func (rp *rodPage) Count(selector string, xpath bool) (int, error) {
	var script string
	if xpath {
		script = fmt.Sprintf(
			`() => document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotLength`,
			quote(selector))
	} else {
		script = fmt.Sprintf(`() => document.querySelectorAll(%s).length`, quote(selector))
	}
	v, err := rp.Eval(script)
	if err != nil {
		return 0, err
	}
	if f, ok := v.(float64); ok {
		return int(f), nil
	}
	return 0, nil
}

func (rp *rodPage) Exists(selector string, xpath bool) (bool, error) {
	n, err := rp.Count(selector, xpath)
	return n > 0, err
}

func (rp *rodPage) BodyText() (string, error) {
	v, err := rp.Eval(`() => document.body ? document.body.innerText : ''`)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (rp *rodPage) ScriptContent(selector string) (string, error) {
	if selector == "" {
		selector = `script[type="application/json"], script[type="application/ld+json"]`
	}
	v, err := rp.Eval(fmt.Sprintf(`() => {
		const el = document.querySelector(%s);
		return el ? el.textContent : '';
	}`, quote(selector)))
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// Eval forwards a script to the page. User-supplied scripts may be bare
// expressions or statements; they get wrapped into a function since the
// driver only evaluates functions.
func (rp *rodPage) Eval(script string) (any, error) {
	res, err := rp.page.Eval(wrapScript(script))
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

func wrapScript(script string) string {
	trimmed := strings.TrimSpace(script)
	if strings.HasPrefix(trimmed, "(") || strings.HasPrefix(trimmed, "function") ||
		strings.HasPrefix(trimmed, "async ") || strings.HasPrefix(trimmed, "() =>") {
		return trimmed
	}
	if strings.Contains(trimmed, "return") || strings.Contains(trimmed, ";") {
		return "() => { " + trimmed + " }"
	}
	return "() => (" + trimmed + ")"
}

func (rp *rodPage) element(selector string, xpath bool) (*rod.Element, error) {
	p := rp.page.Timeout(5 * time.Second)
	if xpath {
		return p.ElementX(selector)
	}
	return p.Element(selector)
}

func (rp *rodPage) Click(selector string, xpath bool) error {
	el, err := rp.element(selector, xpath)
	if err != nil {
		return errs.Wrapf(err, "element not found: %s", selector)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (rp *rodPage) Fill(selector, value string) error {
	el, err := rp.element(selector, false)
	if err != nil {
		return errs.Wrapf(err, "element not found: %s", selector)
	}
	// Select existing text so the new input replaces it.
	_ = el.SelectAllText()
	return el.Input(value)
}

func (rp *rodPage) TypeSlowly(selector, value string, perKey time.Duration) error {
	el, err := rp.element(selector, false)
	if err != nil {
		return errs.Wrapf(err, "element not found: %s", selector)
	}
	if err := el.Focus(); err != nil {
		return err
	}
	for _, r := range value {
		if err := el.Input(string(r)); err != nil {
			return err
		}
		time.Sleep(perKey)
	}
	return nil
}

// keyMap translates the common key names to driver keys.
var keyMap = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
	"Space":      input.Space,
}

func (rp *rodPage) PressKey(key string) error {
	if k, ok := keyMap[key]; ok {
		return rp.page.Keyboard.Press(k)
	}
	return rp.page.Keyboard.Type([]input.Key(key)...)
}

func (rp *rodPage) SelectValue(selector, value string) error {
	_, err := rp.page.Eval(fmt.Sprintf(`() => {
		const sel = document.querySelector(%s);
		if (!sel) throw new Error('select not found');
		sel.value = %s;
		sel.dispatchEvent(new Event('input', {bubbles: true}));
		sel.dispatchEvent(new Event('change', {bubbles: true}));
	}`, quote(selector), quote(value)))
	return err
}

func (rp *rodPage) Hover(selector string) error {
	el, err := rp.element(selector, false)
	if err != nil {
		return errs.Wrapf(err, "element not found: %s", selector)
	}
	return el.Hover()
}

func (rp *rodPage) ScrollIntoView(selector string) error {
	el, err := rp.element(selector, false)
	if err != nil {
		return errs.Wrapf(err, "element not found: %s", selector)
	}
	return el.ScrollIntoView()
}

func (rp *rodPage) ScrollBy(x, y float64) error {
	return rp.page.Mouse.Scroll(x, y, 1)
}

func (rp *rodPage) URL() string {
	info, err := rp.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (rp *rodPage) Title() (string, error) {
	v, err := rp.Eval(`() => document.title`)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (rp *rodPage) Screenshot(fullPage bool) ([]byte, error) {
	return rp.page.Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (rp *rodPage) Frames() ([]Page, error) {
	els, err := rp.page.Elements("iframe")
	if err != nil {
		return nil, err
	}
	frames := make([]Page, 0, len(els))
	for _, el := range els {
		frame, err := el.Frame()
		if err != nil {
			rp.logger.Debug().Err(err).Msg("Skipping unreachable frame")
			continue
		}
		frames = append(frames, &rodPage{page: frame, logger: rp.logger})
	}
	return frames, nil
}

func (rp *rodPage) Close() error {
	return rp.page.Close()
}
