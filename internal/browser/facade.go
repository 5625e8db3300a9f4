// Package browser defines the narrow facade the watch engine consumes
// from the headless browser, plus the rod-backed implementation. Engines
// depend on the interfaces only, so tests can stub pages that return
// scripted content.
package browser

import "time"

// ContextOptions configures one isolated browsing context for a single
// watch run.
type ContextOptions struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	Timezone       string
	Headers        map[string]string
	Cookies        []Cookie
	ProxyServer    string
	ProxyUsername  string
	ProxyPassword  string
	BlockResources []string
	StoragePath    string
	Stealth        bool
}

// Cookie is pre-added to a context before navigation.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
}

// OptionItem is one non-empty-value option under a matched select.
type OptionItem struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// Browser is the process-wide browser handle. Only NewContext is called
// on it concurrently.
type Browser interface {
	NewContext(opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browsing context, exclusive to one run.
type Context interface {
	NewPage() (Page, error)
	// SaveStorageState persists the context's storage to a file so a
	// later run can resume the session.
	SaveStorageState(path string) error
	Close() error
}

// Page is one tab. Query methods never wait; the Wait* methods block up
// to their timeout.
type Page interface {
	Navigate(url string, timeout time.Duration, waitUntil string) error
	WaitSelector(selector string, xpath bool, timeout time.Duration) error
	WaitNavigation(timeout time.Duration) error

	Text(selector string, xpath bool) ([]string, error)
	InnerText(selector string, xpath bool) ([]string, error)
	Attribute(selector, attribute string, xpath bool) ([]any, error)
	InputValues(selector string, xpath bool) ([]string, error)
	SelectOptions(selector string) ([]OptionItem, error)
	HTML(selector string, outer, xpath bool) ([]string, error)
	Count(selector string, xpath bool) (int, error)
	Exists(selector string, xpath bool) (bool, error)
	BodyText() (string, error)
	ScriptContent(selector string) (string, error)
	Eval(script string) (any, error)

	Click(selector string, xpath bool) error
	Fill(selector, value string) error
	TypeSlowly(selector, value string, perKey time.Duration) error
	PressKey(key string) error
	SelectValue(selector, value string) error
	Hover(selector string) error
	ScrollIntoView(selector string) error
	ScrollBy(x, y float64) error

	URL() string
	Title() (string, error)
	Screenshot(fullPage bool) ([]byte, error)
	Frames() ([]Page, error)
	Close() error
}
