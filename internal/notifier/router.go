// Package notifier renders change and error messages, enforces the
// per-watch throttle window, and fans out to the configured transports.
package notifier

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aleister1102/webwatch/internal/config"
	"github.com/aleister1102/webwatch/internal/models"
)

// Router owns the throttle state and the globally configured transports.
type Router struct {
	settings *config.Settings
	client   *http.Client
	logger   zerolog.Logger

	// Now is injectable for throttle tests.
	Now func() time.Time

	mu           sync.Mutex
	lastNotified map[string]time.Time
	sentTotal    map[string]int64 // keyed "watchID|transport"
}

// NewRouter creates the router. The shared HTTP client is used by all
// transports.
func NewRouter(settings *config.Settings, client *http.Client, logger zerolog.Logger) *Router {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Router{
		settings:     settings,
		client:       client,
		logger:       logger.With().Str("component", "NotificationRouter").Logger(),
		Now:          time.Now,
		lastNotified: make(map[string]time.Time),
		sentTotal:    make(map[string]int64),
	}
}

// NotifyChanges renders and dispatches a change notification, honoring
// the throttle window. It reports whether anything was sent.
func (r *Router) NotifyChanges(ctx context.Context, w *config.WatchConfig, changes []models.ChangeRecord, current, previous models.Snapshot) bool {
	watchID := w.WatchID()
	now := r.Now()

	throttle := time.Duration(r.settings.NotificationThrottleMs) * time.Millisecond
	r.mu.Lock()
	last, seen := r.lastNotified[watchID]
	r.mu.Unlock()
	if seen && now.Sub(last) < throttle {
		r.logger.Info().Str("watch", watchID).Dur("since_last", now.Sub(last)).Msg("Change notification throttled")
		return false
	}

	body := RenderChanges(w, changes, current, previous, now)
	msg := Message{
		WatchID:   watchID,
		WatchName: w.Name,
		URL:       w.URL,
		Body:      body,
		Timestamp: now,
	}

	accepted := r.dispatch(ctx, w, msg)
	if accepted {
		r.mu.Lock()
		r.lastNotified[watchID] = now
		r.mu.Unlock()
	}
	return accepted
}

// NotifyError dispatches an error notification. Error notifications are
// never throttled.
func (r *Router) NotifyError(ctx context.Context, w *config.WatchConfig, consecutive int, errMsg string) {
	msg := Message{
		WatchID:   w.WatchID(),
		WatchName: w.Name,
		URL:       w.URL,
		Body:      RenderError(w, consecutive, errMsg),
		IsError:   true,
		Timestamp: r.Now(),
	}
	r.dispatch(ctx, w, msg)
}

// dispatch fans out to the watch's channels, or to the global
// transports when none are declared. Per-channel failures are logged
// and do not block the remaining channels.
func (r *Router) dispatch(ctx context.Context, w *config.WatchConfig, msg Message) bool {
	transports := r.transportsFor(w)
	if len(transports) == 0 {
		r.logger.Debug().Str("watch", msg.WatchID).Msg("No notification transports configured")
		return false
	}

	accepted := false
	for _, t := range transports {
		if err := t.Send(ctx, msg); err != nil {
			r.logger.Error().Err(err).Str("watch", msg.WatchID).Str("transport", t.Name()).Msg("Notification dispatch failed")
			continue
		}
		accepted = true
		r.mu.Lock()
		r.sentTotal[msg.WatchID+"|"+t.Name()]++
		r.mu.Unlock()
	}
	return accepted
}

func (r *Router) transportsFor(w *config.WatchConfig) []Transport {
	if len(w.Notifications) > 0 {
		var transports []Transport
		for i := range w.Notifications {
			if t := r.channelTransport(&w.Notifications[i]); t != nil {
				transports = append(transports, t)
			}
		}
		return transports
	}
	return r.globalTransports()
}

func (r *Router) channelTransport(c *config.ChannelConfig) Transport {
	switch c.ResolveType() {
	case "telegram":
		if c.Telegram != nil {
			return NewTelegramTransport(c.Telegram.BotToken, c.Telegram.ChatID, c.Telegram.EnablePreview, r.client, r.logger)
		}
	case "ntfy":
		if c.Ntfy != nil {
			return NewNtfyTransport(c.Ntfy.URL, c.Ntfy.Title, c.Ntfy.Priority, c.Ntfy.Tags, r.client, r.logger)
		}
	case "webhook":
		if c.Webhook != nil {
			return NewWebhookTransport(c.Webhook.URL, c.Webhook.Headers, r.client, r.logger)
		}
	}
	r.logger.Warn().Str("type", c.ResolveType()).Msg("Channel has no usable transport config")
	return nil
}

// globalTransports builds one transport per env-configured target.
func (r *Router) globalTransports() []Transport {
	var transports []Transport
	s := r.settings
	if s.TelegramBotToken != "" && s.TelegramChatID != "" {
		transports = append(transports, NewTelegramTransport(s.TelegramBotToken, s.TelegramChatID, false, r.client, r.logger))
	}
	if s.NtfyURL != "" {
		transports = append(transports, NewNtfyTransport(s.NtfyURL, "", "", "", r.client, r.logger))
	}
	if s.WebhookURL != "" {
		transports = append(transports, NewWebhookTransport(s.WebhookURL, nil, r.client, r.logger))
	}
	return transports
}

// SentCounts snapshots the per-watch, per-transport delivery counters
// for the metrics endpoint.
func (r *Router) SentCounts() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.sentTotal))
	for k, v := range r.sentTotal {
		out[k] = v
	}
	return out
}
