package cronexpr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMatcher(t *testing.T, spec string) *Matcher {
	t.Helper()
	m, err := New(spec)
	require.NoError(t, err)
	return m
}

func TestEveryFiveMinutes_Scenario(t *testing.T) {
	m := mustMatcher(t, "*/5 * * * *")

	at := func(h, min, sec int) time.Time {
		return time.Date(2026, 3, 2, h, min, sec, 0, time.UTC)
	}

	assert.True(t, m.ShouldRun(at(10, 5, 0)))
	// Second tick in the same minute is suppressed.
	assert.False(t, m.ShouldRun(at(10, 5, 30)))
	// Non-matching minute.
	assert.False(t, m.ShouldRun(at(10, 7, 0)))
	// Next matching minute fires again.
	assert.True(t, m.ShouldRun(at(10, 10, 0)))
}

func TestLiteralAndRangeFields(t *testing.T) {
	// 09:30 on weekdays.
	m := mustMatcher(t, "30 9 * * 1-5")

	monday := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) // a Monday
	sunday := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	assert.True(t, m.ShouldRun(monday))
	assert.False(t, m.ShouldRun(sunday))
	assert.False(t, m.ShouldRun(monday.Add(time.Minute)))
}

func TestListField(t *testing.T) {
	m := mustMatcher(t, "0,15,45 * * * *")

	base := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	assert.True(t, m.ShouldRun(base))
	assert.False(t, m.ShouldRun(base.Add(5*time.Minute)))
	assert.True(t, m.ShouldRun(base.Add(15*time.Minute)))
	assert.True(t, m.ShouldRun(base.Add(45*time.Minute)))
}

func TestSundayIsZero(t *testing.T) {
	m := mustMatcher(t, "0 12 * * 0")

	sunday := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	assert.True(t, m.ShouldRun(sunday))
	assert.False(t, m.ShouldRun(monday))
}

func TestInvalidSpec(t *testing.T) {
	_, err := New("not a cron")
	assert.Error(t, err)

	_, err = New("* * *")
	assert.Error(t, err)
}

func TestSpecAccessor(t *testing.T) {
	m := mustMatcher(t, "*/10 * * * *")
	assert.Equal(t, "*/10 * * * *", m.Spec())
}
