package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

// WatchConfig is one declarative watch: a page to load, a script to run,
// data to extract, and how to compare and notify. One JSON document per
// file in the config directory.
type WatchConfig struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled *bool  `json:"enabled,omitempty"`

	// Scheduling: exactly one of Interval (ms) or Schedule (cron).
	IntervalMs int64  `json:"interval,omitempty"`
	Schedule   string `json:"schedule,omitempty"`

	// Browser context options.
	UserAgent      string            `json:"userAgent,omitempty"`
	Viewport       *Viewport         `json:"viewport,omitempty"`
	Locale         string            `json:"locale,omitempty"`
	Timezone       string            `json:"timezone,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Cookies        []Cookie          `json:"cookies,omitempty"`
	Proxy          *Proxy            `json:"proxy,omitempty"`
	BlockResources []string          `json:"blockResources,omitempty"`
	PersistSession bool              `json:"persistSession,omitempty"`
	Stealth        bool              `json:"stealth,omitempty"`

	// Pipeline.
	Actions          []ActionConfig    `json:"actions,omitempty"`
	WaitForSelector  string            `json:"waitForSelector,omitempty"`
	WaitMs           int64             `json:"waitMs,omitempty"`
	Extractors       []ExtractorConfig `json:"extractors"`
	Comparator       string            `json:"comparator,omitempty"`
	Threshold        float64           `json:"threshold,omitempty"`
	CustomComparator string            `json:"customComparator,omitempty"`
	IncludeDiff      bool              `json:"includeDiff,omitempty"`

	// Reliability.
	Retries           int    `json:"retries,omitempty"`
	TimeoutMs         int64  `json:"timeout,omitempty"`
	WaitUntil         string `json:"waitUntil,omitempty"`
	ScreenshotOnError bool   `json:"screenshotOnError,omitempty"`
	NotifyOnError     bool   `json:"notifyOnError,omitempty"`
	ErrorThreshold    int    `json:"errorThreshold,omitempty"`

	// Output.
	Notifications   []ChannelConfig `json:"notifications,omitempty"`
	MessageTemplate string          `json:"messageTemplate,omitempty"`

	// Internal bookkeeping attached at load time.
	SourceFile string `json:"-"`
	ConfigHash string `json:"-"`
}

// Viewport is the page viewport size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Cookie is pre-added to the browser context before navigation.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
}

// Proxy overrides the global proxy for a single watch.
type Proxy struct {
	Server   string `json:"server"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// IsEnabled treats a missing enabled field as true.
func (w *WatchConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// WatchID returns the user-supplied id, or the 8-hex prefix of the MD5
// of the URL. The id is stable across restarts as long as the URL is
// unchanged.
func (w *WatchConfig) WatchID() string {
	if w.ID != "" {
		return w.ID
	}
	sum := md5.Sum([]byte(w.URL))
	return hex.EncodeToString(sum[:])[:8]
}

// ComputeHash fingerprints the raw config document so hot reload can
// detect edits. Internal bookkeeping fields never participate because
// the hash is taken over the source bytes.
func ComputeHash(raw []byte) string {
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}

// ExtractorConfig declares one named extraction rule.
type ExtractorConfig struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Selector    string          `json:"selector,omitempty"`
	XPath       bool            `json:"xpath,omitempty"`
	Attribute   string          `json:"attribute,omitempty"`
	Path        string          `json:"path,omitempty"`
	Script      string          `json:"script,omitempty"`
	CheckFrames bool            `json:"checkFrames,omitempty"`
	Default     any             `json:"default,omitempty"`
	Transform   string          `json:"transform,omitempty"`
	Transforms  []TransformSpec `json:"transforms,omitempty"`
	Comparator  string          `json:"comparator,omitempty"`
	Threshold   *float64        `json:"threshold,omitempty"`

	// raw retains the full declaration so a single `transform` can pick
	// up options inlined on the extractor or nested under `filter`.
	raw map[string]any
}

// UnmarshalJSON keeps the raw object around for inline transform options.
func (e *ExtractorConfig) UnmarshalJSON(data []byte) error {
	type plain ExtractorConfig
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = ExtractorConfig(p)
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err == nil {
		e.raw = raw
	}
	return nil
}

// TransformChain resolves the declared transforms in application order.
// A single `transform` takes its options from a `filter` object if one
// is present, otherwise from the fields inlined on the extractor itself.
func (e *ExtractorConfig) TransformChain() []TransformSpec {
	if len(e.Transforms) > 0 {
		return e.Transforms
	}
	if e.Transform == "" {
		return nil
	}
	opts := e.raw
	if filter, ok := e.raw["filter"].(map[string]any); ok {
		opts = filter
	}
	return []TransformSpec{{Type: e.Transform, Options: opts}}
}

// TransformSpec is one step of a transform chain: either a bare name or
// an object carrying the name under `type` plus its options.
type TransformSpec struct {
	Type    string
	Options map[string]any
}

// UnmarshalJSON accepts both the string and the object form.
func (t *TransformSpec) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		t.Type = name
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if typ, ok := obj["type"].(string); ok {
		t.Type = typ
	}
	t.Options = obj
	return nil
}

// ActionConfig declares one step of the pre-extraction script.
type ActionConfig struct {
	Type     string           `json:"type"`
	Selector string           `json:"selector,omitempty"`
	XPath    string           `json:"xpath,omitempty"`
	Value    string           `json:"value,omitempty"`
	Text     string           `json:"text,omitempty"`
	Key      string           `json:"key,omitempty"`
	Script   string           `json:"script,omitempty"`
	Name     string           `json:"name,omitempty"`
	X        float64          `json:"x,omitempty"`
	Y        float64          `json:"y,omitempty"`
	WaitMs   int64            `json:"waitMs,omitempty"`
	DelayMs  int64            `json:"delay,omitempty"`
	PerKeyMs int64            `json:"perKeyDelay,omitempty"`
	Path     string           `json:"path,omitempty"`
	FullPage bool             `json:"fullPage,omitempty"`
	Optional bool             `json:"optional,omitempty"`
	If       *ConditionConfig `json:"if,omitempty"`

	// CheckFrames defaults to true for click probing; only an explicit
	// false disables the frame fallback.
	CheckFrames *bool `json:"checkFrames,omitempty"`

	// Login composite fields.
	UsernameSelector string `json:"usernameSelector,omitempty"`
	PasswordSelector string `json:"passwordSelector,omitempty"`
	SubmitSelector   string `json:"submitSelector,omitempty"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
}

// ProbesFrames reports whether a click may fall back to child frames.
func (a *ActionConfig) ProbesFrames() bool {
	return a.CheckFrames == nil || *a.CheckFrames
}

// ConditionConfig gates an action. Unknown types pass.
type ConditionConfig struct {
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Name     string `json:"name,omitempty"`
	Script   string `json:"script,omitempty"`
}

// ChannelConfig selects one notification transport for a watch. The
// transport is picked by Type, or inferred from which sub-object is
// present.
type ChannelConfig struct {
	Type     string           `json:"type,omitempty"`
	Telegram *TelegramChannel `json:"telegram,omitempty"`
	Ntfy     *NtfyChannel     `json:"ntfy,omitempty"`
	Webhook  *WebhookChannel  `json:"webhook,omitempty"`
}

// ResolveType returns the effective transport type for the channel.
func (c *ChannelConfig) ResolveType() string {
	if c.Type != "" {
		return c.Type
	}
	switch {
	case c.Telegram != nil:
		return "telegram"
	case c.Ntfy != nil:
		return "ntfy"
	case c.Webhook != nil:
		return "webhook"
	}
	return ""
}

// TelegramChannel posts through the Bot API sendMessage endpoint.
type TelegramChannel struct {
	BotToken      string `json:"botToken"`
	ChatID        string `json:"chatId"`
	EnablePreview bool   `json:"enablePreview,omitempty"`
}

// NtfyChannel posts to an ntfy topic URL.
type NtfyChannel struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Priority string `json:"priority,omitempty"`
	Tags     string `json:"tags,omitempty"`
}

// WebhookChannel posts the rendered message as JSON to an arbitrary URL.
type WebhookChannel struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}
