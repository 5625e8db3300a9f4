package browser

import (
	"sync"
	"time"

	"github.com/aleister1102/webwatch/internal/errs"
)

// StubBrowser is a scripted Browser used by engine tests. It hands out
// the configured page to every context.
type StubBrowser struct {
	Page *StubPage

	mu           sync.Mutex
	ContextCount int
	LastOptions  ContextOptions
	Closed       bool
}

func (sb *StubBrowser) NewContext(opts ContextOptions) (Context, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.ContextCount++
	sb.LastOptions = opts
	return &StubContext{page: sb.Page}, nil
}

func (sb *StubBrowser) Close() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.Closed = true
	return nil
}

// StubContext wraps one stub page.
type StubContext struct {
	page       *StubPage
	SavedState []string
	Closed     bool
}

func (sc *StubContext) NewPage() (Page, error) {
	if sc.page == nil {
		return nil, errs.New("stub context has no page")
	}
	return sc.page, nil
}

func (sc *StubContext) SaveStorageState(path string) error {
	sc.SavedState = append(sc.SavedState, path)
	return nil
}

func (sc *StubContext) Close() error {
	sc.Closed = true
	return nil
}

// StubPage returns scripted content keyed by selector. Interaction
// methods record their calls so tests can assert ordering.
type StubPage struct {
	Texts      map[string][]string
	InnerTexts map[string][]string
	Attrs      map[string][]any // keyed "selector|attribute"
	Values     map[string][]string
	Options    map[string][]OptionItem
	InnerHTML  map[string][]string
	OuterHTML  map[string][]string
	Counts     map[string]int
	Body       string
	Scripts    map[string]string
	EvalFn     func(script string) (any, error)
	PageURL    string
	PageTitle  string
	PNG        []byte
	Children   []Page

	// NavErrs is consumed one per Navigate call; nil entries succeed.
	NavErrs  []error
	FailWait map[string]bool
	FailSel  map[string]bool

	mu         sync.Mutex
	NavCalls   []string
	WaitCalls  []string
	Clicks     []string
	Fills      map[string]string
	TypedSlow  map[string]string
	Keys       []string
	Selected   map[string]string
	Hovered    []string
	Scrolled   []string
	ScrolledBy [][2]float64
	EvalCalls  []string
	CloseCount int
}

func (sp *StubPage) Navigate(url string, timeout time.Duration, waitUntil string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.NavCalls = append(sp.NavCalls, url)
	if len(sp.NavErrs) > 0 {
		err := sp.NavErrs[0]
		sp.NavErrs = sp.NavErrs[1:]
		return err
	}
	return nil
}

func (sp *StubPage) WaitSelector(selector string, xpath bool, timeout time.Duration) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.WaitCalls = append(sp.WaitCalls, selector)
	if sp.FailWait[selector] {
		return errs.ErrTimeout
	}
	return nil
}

func (sp *StubPage) WaitNavigation(timeout time.Duration) error { return nil }

func (sp *StubPage) Text(selector string, xpath bool) ([]string, error) {
	return sp.Texts[selector], nil
}

func (sp *StubPage) InnerText(selector string, xpath bool) ([]string, error) {
	return sp.InnerTexts[selector], nil
}

func (sp *StubPage) Attribute(selector, attribute string, xpath bool) ([]any, error) {
	return sp.Attrs[selector+"|"+attribute], nil
}

func (sp *StubPage) InputValues(selector string, xpath bool) ([]string, error) {
	return sp.Values[selector], nil
}

func (sp *StubPage) SelectOptions(selector string) ([]OptionItem, error) {
	return sp.Options[selector], nil
}

func (sp *StubPage) HTML(selector string, outer, xpath bool) ([]string, error) {
	if outer {
		return sp.OuterHTML[selector], nil
	}
	return sp.InnerHTML[selector], nil
}

func (sp *StubPage) Count(selector string, xpath bool) (int, error) {
	if n, ok := sp.Counts[selector]; ok {
		return n, nil
	}
	if len(sp.Texts[selector]) > 0 {
		return len(sp.Texts[selector]), nil
	}
	return 0, nil
}

func (sp *StubPage) Exists(selector string, xpath bool) (bool, error) {
	n, err := sp.Count(selector, xpath)
	return n > 0, err
}

func (sp *StubPage) BodyText() (string, error) {
	return sp.Body, nil
}

func (sp *StubPage) ScriptContent(selector string) (string, error) {
	return sp.Scripts[selector], nil
}

func (sp *StubPage) Eval(script string) (any, error) {
	sp.mu.Lock()
	sp.EvalCalls = append(sp.EvalCalls, script)
	sp.mu.Unlock()
	if sp.EvalFn != nil {
		return sp.EvalFn(script)
	}
	return nil, nil
}

func (sp *StubPage) Click(selector string, xpath bool) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.FailSel[selector] {
		return errs.ErrNotFound
	}
	sp.Clicks = append(sp.Clicks, selector)
	return nil
}

func (sp *StubPage) Fill(selector, value string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.FailSel[selector] {
		return errs.ErrNotFound
	}
	if sp.Fills == nil {
		sp.Fills = make(map[string]string)
	}
	sp.Fills[selector] = value
	return nil
}

func (sp *StubPage) TypeSlowly(selector, value string, perKey time.Duration) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.TypedSlow == nil {
		sp.TypedSlow = make(map[string]string)
	}
	sp.TypedSlow[selector] = value
	return nil
}

func (sp *StubPage) PressKey(key string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.Keys = append(sp.Keys, key)
	return nil
}

func (sp *StubPage) SelectValue(selector, value string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.Selected == nil {
		sp.Selected = make(map[string]string)
	}
	sp.Selected[selector] = value
	return nil
}

func (sp *StubPage) Hover(selector string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.Hovered = append(sp.Hovered, selector)
	return nil
}

func (sp *StubPage) ScrollIntoView(selector string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.Scrolled = append(sp.Scrolled, selector)
	return nil
}

func (sp *StubPage) ScrollBy(x, y float64) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.ScrolledBy = append(sp.ScrolledBy, [2]float64{x, y})
	return nil
}

func (sp *StubPage) URL() string { return sp.PageURL }

func (sp *StubPage) Title() (string, error) { return sp.PageTitle, nil }

func (sp *StubPage) Screenshot(fullPage bool) ([]byte, error) {
	if sp.PNG == nil {
		return nil, errs.New("no screenshot configured")
	}
	return sp.PNG, nil
}

func (sp *StubPage) Frames() ([]Page, error) { return sp.Children, nil }

func (sp *StubPage) Close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.CloseCount++
	return nil
}
