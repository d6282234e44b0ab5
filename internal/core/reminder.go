package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	KindDaily         ReminderKind = "daily"
	KindCustom        ReminderKind = "custom"
	KindSpendingLimit ReminderKind = "spending_limit"
)

var (
	ErrInvalidTimeOfDay    = errors.New("time of day must be HH:MM")
	ErrInvalidThreshold    = errors.New("threshold must be greater than zero")
	ErrZeroSchedule        = errors.New("scheduled date cannot be zero")
	ErrUnknownReminderKind = errors.New("unknown reminder type")
	ErrMissingSchedule     = errors.New("reminder has no schedule")
)

type ReminderKind string

// Schedule is the trigger configuration of a reminder. Only Daily, Custom and
// SpendingLimit implement it.
type Schedule interface {
	Kind() ReminderKind
	Validate() error
	isSchedule()
}

// Daily fires once a day at a local time of day, written "HH:MM".
type Daily struct {
	At string
}

// Custom fires once at an instant and then deactivates.
type Custom struct {
	At time.Time
}

// SpendingLimit fires once per calendar month when month-to-date expenses
// reach the threshold.
type SpendingLimit struct {
	ThresholdMinor int64
}

func (Daily) Kind() ReminderKind         { return KindDaily }
func (Custom) Kind() ReminderKind        { return KindCustom }
func (SpendingLimit) Kind() ReminderKind { return KindSpendingLimit }

func (Daily) isSchedule()         {}
func (Custom) isSchedule()        {}
func (SpendingLimit) isSchedule() {}

func (d Daily) Validate() error {
	_, err := ParseTimeOfDay(d.At)
	return err
}

func (c Custom) Validate() error {
	if c.At.IsZero() {
		return ErrZeroSchedule
	}
	return nil
}

func (s SpendingLimit) Validate() error {
	if s.ThresholdMinor <= 0 {
		return ErrInvalidThreshold
	}
	return nil
}

// TimeOfDay is an hour and minute on the local clock.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, ErrInvalidTimeOfDay
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, ErrInvalidTimeOfDay
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, ErrInvalidTimeOfDay
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// On returns the instant at this time of day on the calendar day of t,
// in t's location.
func (tod TimeOfDay) On(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, tod.Hour, tod.Minute, 0, 0, t.Location())
}

func (tod TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", tod.Hour, tod.Minute)
}

// Reminder is a user-defined trigger that produces notifications.
type Reminder struct {
	ID          string
	UserID      string
	Description string
	Schedule    Schedule
	Active      bool
	CreatedAt   time.Time
}

func (r Reminder) Kind() ReminderKind {
	if r.Schedule == nil {
		return ""
	}
	return r.Schedule.Kind()
}

func (r Reminder) Validate() error {
	if r.Schedule == nil {
		return invalid("type", ErrMissingSchedule)
	}
	if err := r.Schedule.Validate(); err != nil {
		return invalid(string(r.Schedule.Kind()), err)
	}
	return nil
}

// reminderRecord is the persisted shape: a type discriminator plus the
// variant's single field.
type reminderRecord struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId,omitempty"`
	Type           ReminderKind `json:"type"`
	Description    string       `json:"description,omitempty"`
	Time           string       `json:"time,omitempty"`
	ScheduledDate  *time.Time   `json:"scheduledDate,omitempty"`
	ThresholdMinor int64        `json:"thresholdMinor,omitempty"`
	Active         bool         `json:"active"`
	CreatedAt      time.Time    `json:"createdAt"`
}

func (r Reminder) MarshalJSON() ([]byte, error) {
	rec := reminderRecord{
		ID:          r.ID,
		UserID:      r.UserID,
		Description: r.Description,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
	switch s := r.Schedule.(type) {
	case Daily:
		rec.Type, rec.Time = KindDaily, s.At
	case Custom:
		at := s.At
		rec.Type, rec.ScheduledDate = KindCustom, &at
	case SpendingLimit:
		rec.Type, rec.ThresholdMinor = KindSpendingLimit, s.ThresholdMinor
	default:
		return nil, ErrMissingSchedule
	}
	return json.Marshal(rec)
}

func (r *Reminder) UnmarshalJSON(data []byte) error {
	var rec reminderRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*r = Reminder{
		ID:          rec.ID,
		UserID:      rec.UserID,
		Description: rec.Description,
		Active:      rec.Active,
		CreatedAt:   rec.CreatedAt,
	}
	switch rec.Type {
	case KindDaily:
		r.Schedule = Daily{At: rec.Time}
	case KindCustom:
		var at time.Time
		if rec.ScheduledDate != nil {
			at = *rec.ScheduledDate
		}
		r.Schedule = Custom{At: at}
	case KindSpendingLimit:
		r.Schedule = SpendingLimit{ThresholdMinor: rec.ThresholdMinor}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReminderKind, rec.Type)
	}
	return nil
}

const (
	Above BalanceDirection = "above"
	Below BalanceDirection = "below"
)

type BalanceDirection string

// BalanceAlert notifies when the running balance crosses a threshold in the
// configured direction.
type BalanceAlert struct {
	ThresholdMinor int64            `json:"thresholdMinor"`
	Direction      BalanceDirection `json:"type"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

func (a BalanceAlert) Validate() error {
	if a.Direction != Above && a.Direction != Below {
		return invalid("type", fmt.Errorf("direction must be %q or %q", Above, Below))
	}
	return nil
}

// Matches reports whether balance satisfies the alert condition.
func (a BalanceAlert) Matches(balanceMinor int64) bool {
	if a.Direction == Below {
		return balanceMinor < a.ThresholdMinor
	}
	return balanceMinor > a.ThresholdMinor
}
