package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validWatch = `{
	"name": "Price Watch",
	"url": "https://example.com/product",
	"interval": 60000,
	"extractors": [
		{"name": "price", "type": "text", "selector": ".price"}
	]
}`

func TestLoadWatchConfig_Valid(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "watch.json", validWatch)

	w, err := LoadWatchConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Price Watch", w.Name)
	assert.Equal(t, int64(60000), w.IntervalMs)
	assert.Equal(t, "watch.json", w.SourceFile)
	assert.Len(t, w.ConfigHash, 32)
	assert.True(t, w.IsEnabled())
}

func TestWatchID_DerivedFromURL(t *testing.T) {
	w := &WatchConfig{URL: "https://example.com/product"}
	id := w.WatchID()
	assert.Len(t, id, 8)
	// Stable for the same URL.
	assert.Equal(t, id, (&WatchConfig{URL: "https://example.com/product"}).WatchID())
	// User-supplied id wins.
	assert.Equal(t, "custom", (&WatchConfig{ID: "custom", URL: "https://example.com"}).WatchID())
}

func TestValidate_MissingURL(t *testing.T) {
	err := ValidateWatchConfig(&WatchConfig{
		Name:       "x",
		Extractors: []ExtractorConfig{{Name: "a", Type: "title"}},
	})
	assert.Error(t, err)
}

func TestValidate_EmptyExtractors(t *testing.T) {
	err := ValidateWatchConfig(&WatchConfig{Name: "x", URL: "https://example.com"})
	assert.Error(t, err)
}

func TestValidate_MutualExclusion(t *testing.T) {
	w := &WatchConfig{
		Name:       "x",
		URL:        "https://example.com",
		IntervalMs: 60000,
		Schedule:   "*/5 * * * *",
		Extractors: []ExtractorConfig{{Name: "a", Type: "title"}},
	}
	err := ValidateWatchConfig(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestValidate_ExtractorRequirements(t *testing.T) {
	base := func(e ExtractorConfig) *WatchConfig {
		return &WatchConfig{Name: "x", URL: "https://example.com", Extractors: []ExtractorConfig{e}}
	}

	assert.Error(t, ValidateWatchConfig(base(ExtractorConfig{Type: "text", Selector: ".a"})), "missing name")
	assert.Error(t, ValidateWatchConfig(base(ExtractorConfig{Name: "a"})), "missing type")
	assert.Error(t, ValidateWatchConfig(base(ExtractorConfig{Name: "a", Type: "text"})), "missing selector")
	assert.Error(t, ValidateWatchConfig(base(ExtractorConfig{Name: "a", Type: "attribute", Selector: ".a"})), "missing attribute")
	assert.NoError(t, ValidateWatchConfig(base(ExtractorConfig{Name: "a", Type: "url"})), "url needs no selector")
	assert.NoError(t, ValidateWatchConfig(base(ExtractorConfig{Name: "a", Type: "json"})), "json needs no selector")
}

func TestLoadWatchConfigs_SkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "good.json", validWatch)
	writeConfig(t, dir, "broken.json", `{"name": "no url"}`)
	writeConfig(t, dir, "notjson.txt", "ignored")

	watches, err := LoadWatchConfigs(dir, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, watches, 1)
	assert.Equal(t, "Price Watch", watches[0].Name)
}

func TestConfigHash_ChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "w.json", validWatch)

	w1, err := LoadWatchConfig(path)
	require.NoError(t, err)

	edited := validWatch[:len(validWatch)-1] + `, "waitMs": 500}`
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	w2, err := LoadWatchConfig(path)
	require.NoError(t, err)
	assert.NotEqual(t, w1.ConfigHash, w2.ConfigHash)
}

func TestTransformSpec_StringAndObjectForms(t *testing.T) {
	var e ExtractorConfig
	doc := `{
		"name": "price", "type": "text", "selector": ".p",
		"transforms": ["trim", {"type": "replace", "pattern": ",", "replacement": "."}]
	}`
	require.NoError(t, json.Unmarshal([]byte(doc), &e))

	chain := e.TransformChain()
	require.Len(t, chain, 2)
	assert.Equal(t, "trim", chain[0].Type)
	assert.Nil(t, chain[0].Options)
	assert.Equal(t, "replace", chain[1].Type)
	assert.Equal(t, ",", chain[1].Options["pattern"])
}

func TestTransformChain_SingleWithInlineOptions(t *testing.T) {
	var e ExtractorConfig
	doc := `{"name": "n", "type": "text", "selector": ".n", "transform": "regex", "pattern": "\\d+"}`
	require.NoError(t, json.Unmarshal([]byte(doc), &e))

	chain := e.TransformChain()
	require.Len(t, chain, 1)
	assert.Equal(t, "regex", chain[0].Type)
	assert.Equal(t, `\d+`, chain[0].Options["pattern"])
}

func TestTransformChain_SingleWithFilterOptions(t *testing.T) {
	var e ExtractorConfig
	doc := `{"name": "n", "type": "text", "selector": ".n", "transform": "filter", "filter": {"include": "eu"}}`
	require.NoError(t, json.Unmarshal([]byte(doc), &e))

	chain := e.TransformChain()
	require.Len(t, chain, 1)
	assert.Equal(t, "eu", chain[0].Options["include"])
}

func TestChannelConfig_TypeInference(t *testing.T) {
	assert.Equal(t, "telegram", (&ChannelConfig{Telegram: &TelegramChannel{}}).ResolveType())
	assert.Equal(t, "ntfy", (&ChannelConfig{Ntfy: &NtfyChannel{}}).ResolveType())
	assert.Equal(t, "webhook", (&ChannelConfig{Webhook: &WebhookChannel{}}).ResolveType())
	assert.Equal(t, "webhook", (&ChannelConfig{Type: "webhook", Telegram: &TelegramChannel{}}).ResolveType())
	assert.Equal(t, "", (&ChannelConfig{}).ResolveType())
}

func TestSettings_EnvOverrides(t *testing.T) {
	t.Setenv("CHECK_INTERVAL_MS", "120000")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("NTFY_URL", "https://ntfy.sh/topic")

	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, int64(120000), s.CheckIntervalMs)
	assert.Equal(t, 5, s.MaxRetries)
	assert.Equal(t, "https://ntfy.sh/topic", s.NtfyURL)
	// Untouched fields keep their defaults.
	assert.Equal(t, int64(60000), s.NotificationThrottleMs)
}

func TestSettings_FileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("health_port: 9000\nmax_retries: 7\n"), 0o644))

	t.Setenv("MAX_RETRIES", "2")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, s.HealthPort)
	assert.Equal(t, 2, s.MaxRetries, "env wins over file")
}

func TestUnknownFieldsIgnored(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "w.json", `{
		"name": "x", "url": "https://example.com",
		"someFutureField": {"nested": true},
		"extractors": [{"name": "t", "type": "title"}]
	}`)

	_, err := LoadWatchConfig(path)
	assert.NoError(t, err)
}
