package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/aleister1102/webwatch/internal/errs"
)

// Message is one rendered notification on its way to a transport.
type Message struct {
	WatchID   string
	WatchName string
	URL       string
	Body      string
	IsError   bool
	Timestamp time.Time
}

// Transport delivers a rendered message over one wire protocol.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

const defaultTelegramAPIBase = "https://api.telegram.org"

// TelegramTransport posts through the Bot API sendMessage endpoint.
type TelegramTransport struct {
	BotToken      string
	ChatID        string
	EnablePreview bool
	// APIBase overrides the Bot API host, for tests.
	APIBase string

	client *http.Client
	logger zerolog.Logger
}

// NewTelegramTransport creates a Telegram transport.
func NewTelegramTransport(botToken, chatID string, enablePreview bool, client *http.Client, logger zerolog.Logger) *TelegramTransport {
	return &TelegramTransport{
		BotToken:      botToken,
		ChatID:        chatID,
		EnablePreview: enablePreview,
		APIBase:       defaultTelegramAPIBase,
		client:        client,
		logger:        logger.With().Str("transport", "telegram").Logger(),
	}
}

func (t *TelegramTransport) Name() string { return "telegram" }

func (t *TelegramTransport) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"chat_id":                  t.ChatID,
		"text":                     msg.Body,
		"parse_mode":               "HTML",
		"disable_web_page_preview": !t.EnablePreview,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(err, "failed to marshal telegram payload")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.APIBase, t.BotToken)
	return postJSON(ctx, t.client, url, nil, body)
}

// NtfyTransport posts to an ntfy topic. HTML tags are stripped from the
// body since ntfy renders plain text.
type NtfyTransport struct {
	URL      string
	Title    string
	Priority string
	Tags     string

	client *http.Client
	policy *bluemonday.Policy
	logger zerolog.Logger
}

// NewNtfyTransport creates an ntfy transport.
func NewNtfyTransport(url, title, priority, tags string, client *http.Client, logger zerolog.Logger) *NtfyTransport {
	return &NtfyTransport{
		URL:      url,
		Title:    title,
		Priority: priority,
		Tags:     tags,
		client:   client,
		policy:   bluemonday.StrictPolicy(),
		logger:   logger.With().Str("transport", "ntfy").Logger(),
	}
}

func (t *NtfyTransport) Name() string { return "ntfy" }

func (t *NtfyTransport) Send(ctx context.Context, msg Message) error {
	stripped := html.UnescapeString(t.policy.Sanitize(msg.Body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewBufferString(stripped))
	if err != nil {
		return errs.Wrap(err, "failed to build ntfy request")
	}

	title := t.Title
	if title == "" {
		title = msg.WatchName
	}
	req.Header.Set("Title", title)
	if t.Priority != "" {
		req.Header.Set("Priority", t.Priority)
	} else if msg.IsError {
		req.Header.Set("Priority", "high")
	}
	if t.Tags != "" {
		req.Header.Set("Tags", t.Tags)
	}

	return doRequest(t.client, req)
}

// WebhookTransport posts a JSON envelope to an arbitrary URL.
type WebhookTransport struct {
	URL     string
	Headers map[string]string

	client *http.Client
	logger zerolog.Logger
}

// NewWebhookTransport creates a webhook transport.
func NewWebhookTransport(url string, headers map[string]string, client *http.Client, logger zerolog.Logger) *WebhookTransport {
	return &WebhookTransport{
		URL:     url,
		Headers: headers,
		client:  client,
		logger:  logger.With().Str("transport", "webhook").Logger(),
	}
}

func (t *WebhookTransport) Name() string { return "webhook" }

func (t *WebhookTransport) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"watch":     msg.WatchName,
		"id":        msg.WatchID,
		"url":       msg.URL,
		"message":   msg.Body,
		"timestamp": msg.Timestamp.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(err, "failed to marshal webhook payload")
	}
	return postJSON(ctx, t.client, t.URL, t.Headers, body)
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(client, req)
}

func doRequest(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return errs.Wrapf(err, "request to %s failed", req.URL.Host)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return errs.New("transport returned HTTP %d", resp.StatusCode)
	}
	return nil
}
