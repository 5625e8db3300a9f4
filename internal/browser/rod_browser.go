package browser

import (
	"encoding/json"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/aleister1102/webwatch/internal/errs"
)

// LaunchOptions configures the process-wide browser.
type LaunchOptions struct {
	ChromePath    string
	ProxyServer   string
	ProxyUsername string
	ProxyPassword string
}

// RodBrowser implements Browser on top of go-rod. One instance is
// launched at startup; each run gets its own browser context.
type RodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     LaunchOptions
	logger   zerolog.Logger
}

// Launch starts Chrome and connects to it.
func Launch(opts LaunchOptions, logger zerolog.Logger) (*RodBrowser, error) {
	l := launcher.New().
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("disable-default-apps").
		Set("disable-sync")

	if opts.ChromePath != "" {
		l = l.Bin(opts.ChromePath)
	}
	if opts.ProxyServer != "" {
		l = l.Proxy(opts.ProxyServer)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, errs.Wrap(err, "failed to launch browser")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, errs.Wrap(err, "failed to connect to browser")
	}

	logger.Info().Str("control_url", controlURL).Msg("Headless browser launched")
	return &RodBrowser{
		browser:  b,
		launcher: l,
		opts:     opts,
		logger:   logger.With().Str("component", "Browser").Logger(),
	}, nil
}

// NewContext creates an isolated browser context with the per-watch
// options applied.
func (rb *RodBrowser) NewContext(opts ContextOptions) (Context, error) {
	create := proto.TargetCreateBrowserContext{DisposeOnDetach: true}
	if opts.ProxyServer != "" {
		create.ProxyServer = opts.ProxyServer
	}
	res, err := create.Call(rb.browser)
	if err != nil {
		return nil, errs.Wrap(err, "failed to create browser context")
	}

	username, password := rb.opts.ProxyUsername, rb.opts.ProxyPassword
	if opts.ProxyUsername != "" {
		username, password = opts.ProxyUsername, opts.ProxyPassword
	}
	if username != "" {
		go func() {
			_ = rb.browser.HandleAuth(username, password)()
		}()
	}

	return &rodContext{
		browser:   rb.browser,
		contextID: res.BrowserContextID,
		opts:      opts,
		logger:    rb.logger,
	}, nil
}

// Close shuts the browser down.
func (rb *RodBrowser) Close() error {
	err := rb.browser.Close()
	if rb.launcher != nil {
		rb.launcher.Cleanup()
	}
	return err
}

type rodContext struct {
	browser   *rod.Browser
	contextID proto.BrowserBrowserContextID
	opts      ContextOptions
	logger    zerolog.Logger
}

// storageState is the persisted session: the context's cookie jar.
type storageState struct {
	Cookies []*proto.NetworkCookie `json:"cookies"`
}

func (rc *rodContext) NewPage() (Page, error) {
	target, err := proto.TargetCreateTarget{
		URL:              "about:blank",
		BrowserContextID: rc.contextID,
	}.Call(rc.browser)
	if err != nil {
		return nil, errs.Wrap(err, "failed to create target")
	}

	page, err := rc.browser.PageFromTarget(target.TargetID)
	if err != nil {
		return nil, errs.Wrap(err, "failed to attach page")
	}

	if err := rc.configurePage(page); err != nil {
		_ = page.Close()
		return nil, err
	}

	return &rodPage{page: page, logger: rc.logger}, nil
}

func (rc *rodContext) configurePage(page *rod.Page) error {
	opts := rc.opts

	if opts.Stealth {
		if err := applyStealth(page); err != nil {
			rc.logger.Warn().Err(err).Msg("Failed to apply stealth script")
		}
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			return errs.Wrap(err, "failed to set user agent")
		}
	}

	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.ViewportWidth,
			Height:            opts.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			rc.logger.Warn().Err(err).Msg("Failed to set viewport")
		}
	}

	if opts.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: opts.Locale}).Call(page); err != nil {
			rc.logger.Warn().Err(err).Str("locale", opts.Locale).Msg("Failed to set locale")
		}
	}

	if opts.Timezone != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: opts.Timezone}).Call(page); err != nil {
			rc.logger.Warn().Err(err).Str("timezone", opts.Timezone).Msg("Failed to set timezone")
		}
	}

	if len(opts.Headers) > 0 {
		kv := make([]string, 0, len(opts.Headers)*2)
		for k, v := range opts.Headers {
			kv = append(kv, k, v)
		}
		if _, err := page.SetExtraHeaders(kv); err != nil {
			return errs.Wrap(err, "failed to set extra headers")
		}
	}

	cookies := make([]*proto.NetworkCookieParam, 0, len(opts.Cookies))
	for _, c := range opts.Cookies {
		cookies = append(cookies, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}

	if opts.StoragePath != "" {
		if restored, err := loadStorageState(opts.StoragePath); err == nil {
			cookies = append(cookies, restored...)
		}
	}

	if len(cookies) > 0 {
		if err := page.SetCookies(cookies); err != nil {
			rc.logger.Warn().Err(err).Msg("Failed to set cookies")
		}
	}

	if len(opts.BlockResources) > 0 {
		applyResourceBlocking(page, opts.BlockResources)
	}

	return nil
}

// loadStorageState reads a previously saved session file into cookie
// params.
func loadStorageState(path string) ([]*proto.NetworkCookieParam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state storageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	params := make([]*proto.NetworkCookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Expires:  c.Expires,
		})
	}
	return params, nil
}

func (rc *rodContext) SaveStorageState(path string) error {
	res, err := proto.StorageGetCookies{BrowserContextID: rc.contextID}.Call(rc.browser)
	if err != nil {
		return errs.Wrap(err, "failed to read context cookies")
	}
	data, err := json.Marshal(storageState{Cookies: res.Cookies})
	if err != nil {
		return errs.Wrap(err, "failed to marshal storage state")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.Wrap(err, "failed to write storage state")
	}
	return os.Rename(tmp, path)
}

func (rc *rodContext) Close() error {
	return proto.TargetDisposeBrowserContext{BrowserContextID: rc.contextID}.Call(rc.browser)
}
