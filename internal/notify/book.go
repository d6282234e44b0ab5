package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/log"
)

// ReminderUpdate changes selected fields of a stored reminder. Nil fields
// are left as they are. A new Schedule may change the reminder kind.
type ReminderUpdate struct {
	Description *string
	Schedule    core.Schedule
	Active      *bool
}

// Book stores the reminders of each user and their balance alert.
type Book struct {
	mu     sync.Mutex
	kv     kv.Store
	now    func() time.Time
	newID  func() string
	logger *log.Logger
}

type BookOption func(*Book)

func WithBookClock(now func() time.Time) BookOption {
	return func(b *Book) { b.now = now }
}

func WithBookIDGenerator(newID func() string) BookOption {
	return func(b *Book) { b.newID = newID }
}

func WithBookLogger(l *log.Logger) BookOption {
	return func(b *Book) { b.logger = l }
}

func NewBook(store kv.Store, opts ...BookOption) *Book {
	b := &Book{
		kv:     store,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent(log.ComponentReminder)
	return b
}

// entry is one element of a stored reminder collection. An element that
// does not decode keeps its raw bytes and is written back unchanged.
type entry struct {
	raw      json.RawMessage
	reminder core.Reminder
	err      error
}

func (b *Book) load(ctx context.Context, userID string) ([]entry, error) {
	var raws []json.RawMessage
	if _, err := kv.GetJSON(ctx, b.kv, kv.RemindersKey(userID), &raws); err != nil {
		return nil, err
	}
	entries := make([]entry, 0, len(raws))
	for _, raw := range raws {
		e := entry{raw: raw}
		e.err = json.Unmarshal(raw, &e.reminder)
		entries = append(entries, e)
	}
	return entries, nil
}

func (b *Book) save(ctx context.Context, userID string, entries []entry) error {
	raws := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		if e.err != nil {
			raws = append(raws, e.raw)
			continue
		}
		data, err := json.Marshal(e.reminder)
		if err != nil {
			return fmt.Errorf("encode reminder %s: %w", e.reminder.ID, err)
		}
		raws = append(raws, data)
	}
	return kv.SetJSON(ctx, b.kv, kv.RemindersKey(userID), raws)
}

// List returns every readable reminder of userID in storage order.
// Unreadable elements are logged and skipped; a storage failure yields an
// empty list.
func (b *Book) List(ctx context.Context, userID string) []core.Reminder {
	entries, err := b.load(ctx, userID)
	if err != nil {
		b.logger.LogError(ctx, "Failed to load reminders", err, log.OpList, log.ErrorTypeStorage,
			log.NewFields().WithUser(userID))
		return []core.Reminder{}
	}
	out := make([]core.Reminder, 0, len(entries))
	for i, e := range entries {
		if e.err != nil {
			b.logger.WarnContext(ctx, "Skipping unreadable reminder",
				log.FieldUserID, userID, "index", i, log.FieldError, e.err.Error())
			continue
		}
		out = append(out, e.reminder)
	}
	return out
}

// Active returns the active reminders of userID in storage order.
func (b *Book) Active(ctx context.Context, userID string) []core.Reminder {
	all := b.List(ctx, userID)
	out := make([]core.Reminder, 0, len(all))
	for _, r := range all {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// Add stores a new active reminder with the given schedule.
func (b *Book) Add(ctx context.Context, userID, description string, schedule core.Schedule) (core.Reminder, error) {
	r := core.Reminder{
		ID:          b.newID(),
		UserID:      userID,
		Description: description,
		Schedule:    schedule,
		Active:      true,
		CreatedAt:   b.now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return core.Reminder{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	fields := log.NewFields().WithUser(userID).WithReminder(r.ID, string(r.Kind()))
	rs, err := b.load(ctx, userID)
	if err != nil {
		b.logger.LogError(ctx, "Failed to load reminders", err, log.OpCreate, log.ErrorTypeStorage, fields)
		return core.Reminder{}, fmt.Errorf("load reminders: %w", err)
	}
	if err := b.save(ctx, userID, append(rs, entry{reminder: r})); err != nil {
		b.logger.LogError(ctx, "Failed to save reminder", err, log.OpCreate, log.ErrorTypeStorage, fields)
		return core.Reminder{}, fmt.Errorf("save reminder: %w", err)
	}
	b.logger.InfoContext(ctx, "Reminder added", fields.WithOperation(log.OpCreate).ToSlice()...)
	return r, nil
}

// Update applies upd to reminder id. It returns core.ErrNotFound for an
// unknown id.
func (b *Book) Update(ctx context.Context, userID, id string, upd ReminderUpdate) (core.Reminder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fields := log.NewFields().WithUser(userID).With(log.FieldReminderID, id)
	rs, err := b.load(ctx, userID)
	if err != nil {
		b.logger.LogError(ctx, "Failed to load reminders", err, log.OpUpdate, log.ErrorTypeStorage, fields)
		return core.Reminder{}, fmt.Errorf("load reminders: %w", err)
	}
	idx := reminderIndex(rs, id)
	if idx < 0 {
		return core.Reminder{}, fmt.Errorf("reminder %s: %w", id, core.ErrNotFound)
	}

	r := rs[idx].reminder
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Schedule != nil {
		r.Schedule = upd.Schedule
	}
	if upd.Active != nil {
		r.Active = *upd.Active
	}
	if err := r.Validate(); err != nil {
		return core.Reminder{}, err
	}
	rs[idx].reminder = r

	if err := b.save(ctx, userID, rs); err != nil {
		b.logger.LogError(ctx, "Failed to save reminder", err, log.OpUpdate, log.ErrorTypeStorage, fields)
		return core.Reminder{}, fmt.Errorf("save reminder: %w", err)
	}
	b.logger.DebugContext(ctx, "Reminder updated", fields.WithOperation(log.OpUpdate).With("active", r.Active).ToSlice()...)
	return r, nil
}

// Delete removes reminder id. Unknown ids are ignored.
func (b *Book) Delete(ctx context.Context, userID, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fields := log.NewFields().WithUser(userID).With(log.FieldReminderID, id)
	rs, err := b.load(ctx, userID)
	if err != nil {
		b.logger.LogError(ctx, "Failed to load reminders", err, log.OpDelete, log.ErrorTypeStorage, fields)
		return fmt.Errorf("load reminders: %w", err)
	}
	idx := reminderIndex(rs, id)
	if idx < 0 {
		return nil
	}
	rs = append(rs[:idx], rs[idx+1:]...)
	if err := b.save(ctx, userID, rs); err != nil {
		b.logger.LogError(ctx, "Failed to delete reminder", err, log.OpDelete, log.ErrorTypeStorage, fields)
		return fmt.Errorf("save reminders: %w", err)
	}
	b.logger.InfoContext(ctx, "Reminder deleted", fields.WithOperation(log.OpDelete).ToSlice()...)
	return nil
}

// SetBalanceAlert replaces the balance alert of userID.
func (b *Book) SetBalanceAlert(ctx context.Context, userID string, alert core.BalanceAlert) (core.BalanceAlert, error) {
	if err := alert.Validate(); err != nil {
		return core.BalanceAlert{}, err
	}
	alert.UpdatedAt = b.now().UTC()
	if err := kv.SetJSON(ctx, b.kv, kv.BalanceReminderKey(userID), alert); err != nil {
		b.logger.LogError(ctx, "Failed to save balance alert", err, log.OpUpdate, log.ErrorTypeStorage,
			log.NewFields().WithUser(userID))
		return core.BalanceAlert{}, fmt.Errorf("save balance alert: %w", err)
	}
	// The next pass evaluates the new alert from scratch.
	if err := b.kv.Delete(ctx, kv.BalanceAlertStateKey(userID)); err != nil {
		b.logger.LogError(ctx, "Failed to reset balance alert state", err, log.OpUpdate, log.ErrorTypeStorage,
			log.NewFields().WithUser(userID))
	}
	return alert, nil
}

// BalanceAlert returns the stored balance alert of userID, if any.
func (b *Book) BalanceAlert(ctx context.Context, userID string) (core.BalanceAlert, bool) {
	var alert core.BalanceAlert
	found, err := kv.GetJSON(ctx, b.kv, kv.BalanceReminderKey(userID), &alert)
	if err != nil {
		b.logger.LogError(ctx, "Failed to load balance alert", err, log.OpRead, log.ErrorTypeStorage,
			log.NewFields().WithUser(userID))
		return core.BalanceAlert{}, false
	}
	return alert, found
}

// ClearBalanceAlert removes the balance alert of userID.
func (b *Book) ClearBalanceAlert(ctx context.Context, userID string) error {
	if err := b.kv.Delete(ctx, kv.BalanceReminderKey(userID)); err != nil {
		return fmt.Errorf("delete balance alert: %w", err)
	}
	return b.kv.Delete(ctx, kv.BalanceAlertStateKey(userID))
}

func reminderIndex(entries []entry, id string) int {
	for i := range entries {
		if entries[i].err == nil && entries[i].reminder.ID == id {
			return i
		}
	}
	return -1
}
