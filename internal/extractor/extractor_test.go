package extractor

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleister1102/webwatch/internal/browser"
	"github.com/aleister1102/webwatch/internal/config"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(zerolog.Nop(), t.TempDir())
}

func TestExtract_TextAndCount(t *testing.T) {
	page := &browser.StubPage{
		Texts: map[string][]string{".item": {"one", "two"}},
	}
	snapshot := newEngine(t).Extract(page, "w1", []config.ExtractorConfig{
		{Name: "items", Type: "text", Selector: ".item"},
		{Name: "total", Type: "count", Selector: ".item"},
	})

	assert.Equal(t, []any{"one", "two"}, snapshot["items"])
	assert.Equal(t, float64(2), snapshot["total"])
}

func TestExtract_UrlTitleExists(t *testing.T) {
	page := &browser.StubPage{
		PageURL:   "https://example.com/page",
		PageTitle: "Example",
		Counts:    map[string]int{"#present": 1},
	}
	snapshot := newEngine(t).Extract(page, "w1", []config.ExtractorConfig{
		{Name: "url", Type: "url"},
		{Name: "title", Type: "title"},
		{Name: "present", Type: "exists", Selector: "#present"},
		{Name: "absent", Type: "exists", Selector: "#missing"},
	})

	assert.Equal(t, "https://example.com/page", snapshot["url"])
	assert.Equal(t, "Example", snapshot["title"])
	assert.Equal(t, true, snapshot["present"])
	assert.Equal(t, false, snapshot["absent"])
}

func TestExtract_Options(t *testing.T) {
	page := &browser.StubPage{
		Options: map[string][]browser.OptionItem{
			"select#size": {{Value: "s", Text: "Small"}, {Value: "l", Text: "Large"}},
		},
	}
	snapshot := newEngine(t).Extract(page, "w1", []config.ExtractorConfig{
		{Name: "sizes", Type: "options", Selector: "select#size"},
	})

	require.Len(t, snapshot["sizes"], 2)
	first := snapshot["sizes"].([]any)[0].(map[string]any)
	assert.Equal(t, "s", first["value"])
	assert.Equal(t, "Small", first["text"])
}

func TestExtract_JSONWithPath(t *testing.T) {
	page := &browser.StubPage{
		Body: `{"product": {"price": 19.99, "tags": ["a", "b"]}}`,
	}
	snapshot := newEngine(t).Extract(page, "w1", []config.ExtractorConfig{
		{Name: "price", Type: "json", Path: "product.price"},
		{Name: "secondTag", Type: "json", Path: "product.tags[1]"},
		{Name: "whole", Type: "json"},
	})

	assert.Equal(t, 19.99, snapshot["price"])
	assert.Equal(t, "b", snapshot["secondTag"])
	assert.Contains(t, snapshot["whole"].(map[string]any), "product")
}

func TestExtract_JSONFromScript(t *testing.T) {
	page := &browser.StubPage{
		Scripts: map[string]string{
			"#app-state": `{"cart": {"count": 3}}`,
		},
	}
	snapshot := newEngine(t).Extract(page, "w1", []config.ExtractorConfig{
		{Name: "cartCount", Type: "jsonFromScript", Selector: "#app-state", Path: "cart.count"},
	})

	assert.Equal(t, float64(3), snapshot["cartCount"])
}

func TestExtract_FailureSubstitutesDefault(t *testing.T) {
	page := &browser.StubPage{Body: "not json at all"}
	snapshot := newEngine(t).Extract(page, "w1", []config.ExtractorConfig{
		{Name: "data", Type: "json", Default: "fallback"},
		{Name: "missing", Type: "json"},
	})

	assert.Equal(t, "fallback", snapshot["data"])
	assert.Nil(t, snapshot["missing"])
}

func TestExtract_FrameFallback(t *testing.T) {
	framed := &browser.StubPage{
		Texts: map[string][]string{".inner": {"from frame"}},
	}
	page := &browser.StubPage{
		Children: []browser.Page{framed},
	}
	snapshot := newEngine(t).Extract(page, "w1", []config.ExtractorConfig{
		{Name: "framed", Type: "text", Selector: ".inner", CheckFrames: true},
		{Name: "mainOnly", Type: "text", Selector: ".inner"},
	})

	assert.Equal(t, []any{"from frame"}, snapshot["framed"])
	assert.Equal(t, []any{}, snapshot["mainOnly"])
}

func TestExtract_TransformsApplied(t *testing.T) {
	page := &browser.StubPage{
		Texts: map[string][]string{".price": {" € 120.00 "}},
	}
	snapshot := newEngine(t).Extract(page, "w1", []config.ExtractorConfig{
		{
			Name:     "price",
			Type:     "text",
			Selector: ".price",
			Transforms: []config.TransformSpec{
				{Type: "first"},
				{Type: "trim"},
				{Type: "parseNumber"},
			},
		},
	})

	assert.Equal(t, float64(120), snapshot["price"])
}

func TestExtract_Screenshot(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(zerolog.Nop(), dir)
	page := &browser.StubPage{PNG: []byte("png-bytes")}

	snapshot := engine.Extract(page, "w1", []config.ExtractorConfig{
		{Name: "shot", Type: "screenshot"},
	})

	path, ok := snapshot["shot"].(string)
	require.True(t, ok)
	assert.Equal(t, dir, filepath.Dir(path))
}

func TestExtract_UnknownTypeUsesDefault(t *testing.T) {
	snapshot := newEngine(t).Extract(&browser.StubPage{}, "w1", []config.ExtractorConfig{
		{Name: "x", Type: "holographic", Default: float64(1)},
	})
	assert.Equal(t, float64(1), snapshot["x"])
}
