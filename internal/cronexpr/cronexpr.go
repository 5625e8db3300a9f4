// Package cronexpr wraps the standard five-field cron grammar into a
// tick-aligned "should run now" predicate with same-minute suppression.
package cronexpr

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aleister1102/webwatch/internal/errs"
)

// parser accepts the subset documented for watches: minute, hour,
// day-of-month, month, day-of-week with *, */N, lists, ranges and
// literals. Sunday is 0.
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Matcher evaluates a cron spec against wall-clock minutes. A matcher
// fires at most once per minute: after a true verdict, subsequent
// evaluations within the same minute return false.
type Matcher struct {
	spec     string
	schedule cron.Schedule

	mu        sync.Mutex
	lastFired time.Time
}

// New parses the spec and returns a matcher.
func New(spec string) (*Matcher, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errs.Wrapf(err, "invalid cron expression '%s'", spec)
	}
	return &Matcher{spec: spec, schedule: schedule}, nil
}

// Spec returns the original expression.
func (m *Matcher) Spec() string {
	return m.spec
}

// ShouldRun reports whether the spec matches the current minute and no
// run has fired for that minute yet. A true verdict records the minute.
func (m *Matcher) ShouldRun(now time.Time) bool {
	minute := now.Truncate(time.Minute)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastFired.Equal(minute) {
		return false
	}

	// Next is strictly after its argument, so probing from one second
	// before the minute boundary tells us whether the boundary matches.
	if !m.schedule.Next(minute.Add(-time.Second)).Equal(minute) {
		return false
	}

	m.lastFired = minute
	return true
}
