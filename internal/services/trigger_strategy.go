// Package services runs the reminder engine: per-kind trigger strategies,
// the check pass that turns due reminders into notifications, and the
// scheduled Engine around it.
package services

import (
	"fmt"
	"time"

	"tally/internal/core"
)

// TriggerInput is what a strategy may look at when deciding whether a
// reminder fires now.
type TriggerInput struct {
	// Now is the pass instant in the engine's location.
	Now       time.Time
	Tolerance time.Duration
	// LastFired is the last recorded firing, zero when it never fired.
	LastFired time.Time
	// MonthToDate returns month-to-date expenses. It is evaluated lazily.
	MonthToDate func() int64
}

// TriggerStrategy decides dueness for one reminder kind.
type TriggerStrategy interface {
	IsDue(s core.Schedule, in TriggerInput) (bool, error)
}

// DailyTrigger fires inside the tolerance window after the configured time
// of day, at most once per calendar day.
type DailyTrigger struct{}

func (DailyTrigger) IsDue(s core.Schedule, in TriggerInput) (bool, error) {
	d, ok := s.(core.Daily)
	if !ok {
		return false, fmt.Errorf("daily trigger got %s schedule", s.Kind())
	}
	tod, err := core.ParseTimeOfDay(d.At)
	if err != nil {
		return false, err
	}
	if !in.LastFired.IsZero() && sameDay(in.LastFired, in.Now) {
		return false, nil
	}
	return within(in.Now, tod.On(in.Now), in.Tolerance), nil
}

// CustomTrigger fires once inside the tolerance window after the scheduled
// instant. Deactivation after firing prevents repeats.
type CustomTrigger struct{}

func (CustomTrigger) IsDue(s core.Schedule, in TriggerInput) (bool, error) {
	c, ok := s.(core.Custom)
	if !ok {
		return false, fmt.Errorf("custom trigger got %s schedule", s.Kind())
	}
	if c.At.IsZero() {
		return false, core.ErrZeroSchedule
	}
	return within(in.Now, c.At, in.Tolerance), nil
}

// SpendingLimitTrigger fires once per calendar month when month-to-date
// expenses reach the threshold.
type SpendingLimitTrigger struct{}

func (SpendingLimitTrigger) IsDue(s core.Schedule, in TriggerInput) (bool, error) {
	l, ok := s.(core.SpendingLimit)
	if !ok {
		return false, fmt.Errorf("spending limit trigger got %s schedule", s.Kind())
	}
	if l.ThresholdMinor <= 0 {
		return false, core.ErrInvalidThreshold
	}
	if !in.LastFired.IsZero() && sameMonth(in.LastFired.In(in.Now.Location()), in.Now) {
		return false, nil
	}
	if in.MonthToDate == nil {
		return false, nil
	}
	return in.MonthToDate() >= l.ThresholdMinor, nil
}

var triggerStrategies = map[core.ReminderKind]TriggerStrategy{
	core.KindDaily:         DailyTrigger{},
	core.KindCustom:        CustomTrigger{},
	core.KindSpendingLimit: SpendingLimitTrigger{},
}

// GetTriggerStrategy returns the strategy registered for kind.
func GetTriggerStrategy(kind core.ReminderKind) (TriggerStrategy, error) {
	s, ok := triggerStrategies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownReminderKind, kind)
	}
	return s, nil
}

// RegisterTriggerStrategy adds or replaces the strategy for kind.
func RegisterTriggerStrategy(kind core.ReminderKind, s TriggerStrategy) {
	triggerStrategies[kind] = s
}

// within reports whether now lies in [at, at+tolerance].
func within(now, at time.Time, tolerance time.Duration) bool {
	return !now.Before(at) && !now.After(at.Add(tolerance))
}

func sameDay(a, b time.Time) bool {
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
