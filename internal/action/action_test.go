package action

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleister1102/webwatch/internal/browser"
	"github.com/aleister1102/webwatch/internal/config"
)

func boolPtr(b bool) *bool { return &b }

func TestRun_OrderedExecution(t *testing.T) {
	page := &browser.StubPage{}
	engine := NewEngine(zerolog.Nop())

	_, err := engine.Run(page, []config.ActionConfig{
		{Type: "click", Selector: "#accept"},
		{Type: "type", Selector: "#q", Value: "golang"},
		{Type: "pressKey", Key: "Enter"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#accept"}, page.Clicks)
	assert.Equal(t, "golang", page.Fills["#q"])
	assert.Equal(t, []string{"Enter"}, page.Keys)
}

func TestRun_NonOptionalFailureAborts(t *testing.T) {
	page := &browser.StubPage{
		FailSel: map[string]bool{"#gone": true},
	}
	engine := NewEngine(zerolog.Nop())

	_, err := engine.Run(page, []config.ActionConfig{
		{Type: "click", Selector: "#gone", CheckFrames: boolPtr(false)},
		{Type: "click", Selector: "#after"},
	})

	require.Error(t, err)
	assert.Empty(t, page.Clicks)
}

func TestRun_OptionalFailureContinues(t *testing.T) {
	page := &browser.StubPage{
		FailSel: map[string]bool{"#gone": true},
	}
	engine := NewEngine(zerolog.Nop())

	_, err := engine.Run(page, []config.ActionConfig{
		{Type: "click", Selector: "#gone", Optional: true, CheckFrames: boolPtr(false)},
		{Type: "click", Selector: "#after"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#after"}, page.Clicks)
}

func TestClick_FrameFallback(t *testing.T) {
	framed := &browser.StubPage{}
	page := &browser.StubPage{
		FailSel:  map[string]bool{"#inner": true},
		Children: []browser.Page{framed},
	}
	engine := NewEngine(zerolog.Nop())

	_, err := engine.Run(page, []config.ActionConfig{
		{Type: "click", Selector: "#inner"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#inner"}, framed.Clicks)
}

func TestClick_FrameProbingDisabled(t *testing.T) {
	framed := &browser.StubPage{}
	page := &browser.StubPage{
		FailSel:  map[string]bool{"#inner": true},
		Children: []browser.Page{framed},
	}
	engine := NewEngine(zerolog.Nop())

	_, err := engine.Run(page, []config.ActionConfig{
		{Type: "click", Selector: "#inner", CheckFrames: boolPtr(false)},
	})

	require.Error(t, err)
	assert.Empty(t, framed.Clicks)
}

func TestCondition_Exists(t *testing.T) {
	page := &browser.StubPage{
		Counts: map[string]int{"#banner": 1},
	}
	engine := NewEngine(zerolog.Nop())

	_, err := engine.Run(page, []config.ActionConfig{
		{Type: "click", Selector: "#dismiss", If: &config.ConditionConfig{Type: "exists", Selector: "#banner"}},
		{Type: "click", Selector: "#never", If: &config.ConditionConfig{Type: "exists", Selector: "#absent"}},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#dismiss"}, page.Clicks)
}

func TestCondition_TextContains(t *testing.T) {
	page := &browser.StubPage{
		Texts: map[string][]string{".status": {"Out of stock"}},
	}
	engine := NewEngine(zerolog.Nop())

	_, err := engine.Run(page, []config.ActionConfig{
		{Type: "click", Selector: "#notify", If: &config.ConditionConfig{Type: "textContains", Selector: ".status", Text: "Out of"}},
		{Type: "click", Selector: "#buy", If: &config.ConditionConfig{Type: "textContains", Selector: ".status", Text: "In stock"}},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#notify"}, page.Clicks)
}

func TestCondition_VariableAndSetVariable(t *testing.T) {
	page := &browser.StubPage{}
	engine := NewEngine(zerolog.Nop())

	actx, err := engine.Run(page, []config.ActionConfig{
		{Type: "setVariable", Name: "loggedIn", Value: "yes"},
		{Type: "click", Selector: "#profile", If: &config.ConditionConfig{Type: "variable", Name: "loggedIn"}},
		{Type: "click", Selector: "#login", If: &config.ConditionConfig{Type: "variable", Name: "anonymous"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "yes", actx["loggedIn"])
	assert.Equal(t, []string{"#profile"}, page.Clicks)
}

func TestCondition_UnknownTypePasses(t *testing.T) {
	page := &browser.StubPage{}
	engine := NewEngine(zerolog.Nop())

	_, err := engine.Run(page, []config.ActionConfig{
		{Type: "click", Selector: "#x", If: &config.ConditionConfig{Type: "astrology"}},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#x"}, page.Clicks)
}

func TestEvaluate_StoresResult(t *testing.T) {
	page := &browser.StubPage{
		EvalFn: func(script string) (any, error) { return float64(42), nil },
	}
	engine := NewEngine(zerolog.Nop())

	actx, err := engine.Run(page, []config.ActionConfig{
		{Type: "evaluate", Script: "document.querySelectorAll('.row').length"},
	})

	require.NoError(t, err)
	assert.Equal(t, float64(42), actx["evalResult"])
}

func TestLogin_Composite(t *testing.T) {
	page := &browser.StubPage{}
	engine := NewEngine(zerolog.Nop())

	_, err := engine.Run(page, []config.ActionConfig{
		{
			Type:             "login",
			UsernameSelector: "#user",
			PasswordSelector: "#pass",
			SubmitSelector:   "#submit",
			Username:         "alice",
			Password:         "s3cret",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "alice", page.Fills["#user"])
	assert.Equal(t, "s3cret", page.Fills["#pass"])
	assert.Equal(t, []string{"#submit"}, page.Clicks)
}

func TestScroll(t *testing.T) {
	page := &browser.StubPage{}
	engine := NewEngine(zerolog.Nop())

	_, err := engine.Run(page, []config.ActionConfig{
		{Type: "scroll", Selector: ".footer"},
		{Type: "scroll", X: 0, Y: 600},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{".footer"}, page.Scrolled)
	assert.Equal(t, [][2]float64{{0, 600}}, page.ScrolledBy)
}

func TestUnknownActionTypeIsNoop(t *testing.T) {
	page := &browser.StubPage{}
	engine := NewEngine(zerolog.Nop())

	_, err := engine.Run(page, []config.ActionConfig{
		{Type: "teleport"},
		{Type: "click", Selector: "#x"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"#x"}, page.Clicks)
}
