package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestReminderJSONVariants(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		reminder Reminder
		field    string
	}{
		{"daily", Reminder{ID: "r1", Schedule: Daily{At: "09:00"}, Active: true}, `"time":"09:00"`},
		{"custom", Reminder{ID: "r2", Schedule: Custom{At: at}, Active: true}, `"scheduledDate":"2025-06-01T09:00:00Z"`},
		{"spending limit", Reminder{ID: "r3", Schedule: SpendingLimit{ThresholdMinor: 50000}}, `"thresholdMinor":50000`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.reminder)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if !strings.Contains(string(data), tc.field) {
				t.Fatalf("expected %s in %s", tc.field, data)
			}
			if !strings.Contains(string(data), `"type":"`+string(tc.reminder.Kind())+`"`) {
				t.Fatalf("missing type discriminator in %s", data)
			}

			var back Reminder
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back.Kind() != tc.reminder.Kind() || back.ID != tc.reminder.ID || back.Active != tc.reminder.Active {
				t.Fatalf("round trip mismatch: %+v vs %+v", back, tc.reminder)
			}
		})
	}
}

func TestReminderUnmarshalUnknownKind(t *testing.T) {
	var r Reminder
	err := json.Unmarshal([]byte(`{"id":"x","type":"weekly","active":true}`), &r)
	if !errors.Is(err, ErrUnknownReminderKind) {
		t.Fatalf("expected ErrUnknownReminderKind, got %v", err)
	}
}

func TestReminderMalformedTimeStillDecodes(t *testing.T) {
	var r Reminder
	if err := json.Unmarshal([]byte(`{"id":"x","type":"daily","time":"nine","active":true}`), &r); err != nil {
		t.Fatalf("decode should keep malformed time for later: %v", err)
	}
	if err := r.Validate(); !errors.Is(err, ErrInvalidTimeOfDay) {
		t.Fatalf("expected ErrInvalidTimeOfDay, got %v", err)
	}
}
