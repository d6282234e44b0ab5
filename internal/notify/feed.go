// Package notify holds the per-user notification feed and reminder book.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/log"
)

// Publisher forwards appended notifications outside the process.
type Publisher interface {
	PublishNotification(ctx context.Context, userID string, n core.Notification) error
}

// Feed is a bounded, newest-first list of notifications per user.
type Feed struct {
	mu        sync.Mutex
	kv        kv.Store
	now       func() time.Time
	newID     func() string
	publisher Publisher
	logger    *log.Logger
}

type FeedOption func(*Feed)

func WithFeedClock(now func() time.Time) FeedOption {
	return func(f *Feed) { f.now = now }
}

func WithFeedIDGenerator(newID func() string) FeedOption {
	return func(f *Feed) { f.newID = newID }
}

func WithPublisher(p Publisher) FeedOption {
	return func(f *Feed) { f.publisher = p }
}

func WithFeedLogger(l *log.Logger) FeedOption {
	return func(f *Feed) { f.logger = l }
}

func NewFeed(store kv.Store, opts ...FeedOption) *Feed {
	f := &Feed{
		kv:     store,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.WithComponent(log.ComponentNotify)
	return f
}

func (f *Feed) load(ctx context.Context, userID string) ([]core.Notification, error) {
	var ns []core.Notification
	if _, err := kv.GetJSON(ctx, f.kv, kv.NotificationsKey(userID), &ns); err != nil {
		return nil, err
	}
	return ns, nil
}

func (f *Feed) save(ctx context.Context, userID string, ns []core.Notification) error {
	if ns == nil {
		ns = []core.Notification{}
	}
	return kv.SetJSON(ctx, f.kv, kv.NotificationsKey(userID), ns)
}

// List returns userID's notifications, newest first. A storage failure
// yields an empty feed.
func (f *Feed) List(ctx context.Context, userID string) []core.Notification {
	ns, err := f.load(ctx, userID)
	if err != nil {
		f.logger.LogError(ctx, "Failed to load notifications", err, log.OpList, log.ErrorTypeStorage,
			log.NewFields().WithUser(userID))
		return []core.Notification{}
	}
	if ns == nil {
		return []core.Notification{}
	}
	return ns
}

// UnreadCount returns how many notifications of userID are unread.
func (f *Feed) UnreadCount(ctx context.Context, userID string) int {
	n := 0
	for _, item := range f.List(ctx, userID) {
		if !item.Read {
			n++
		}
	}
	return n
}

// Add prepends a notification and drops the oldest entries beyond
// core.MaxNotifications.
func (f *Feed) Add(ctx context.Context, userID string, in core.NotificationInput) (core.Notification, error) {
	n := core.Notification{
		ID:        f.newID(),
		Timestamp: f.now().UTC(),
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		Category:  in.Category,
	}

	f.mu.Lock()
	ns, err := f.load(ctx, userID)
	if err != nil {
		f.mu.Unlock()
		f.logger.LogError(ctx, "Failed to load notifications", err, log.OpNotify, log.ErrorTypeStorage,
			log.NewFields().WithUser(userID))
		return core.Notification{}, fmt.Errorf("load notifications: %w", err)
	}
	ns = append([]core.Notification{n}, ns...)
	if len(ns) > core.MaxNotifications {
		ns = ns[:core.MaxNotifications]
	}
	err = f.save(ctx, userID, ns)
	f.mu.Unlock()
	if err != nil {
		f.logger.LogError(ctx, "Failed to save notification", err, log.OpNotify, log.ErrorTypeStorage,
			log.NewFields().WithUser(userID))
		return core.Notification{}, fmt.Errorf("save notification: %w", err)
	}

	f.logger.InfoContext(ctx, "Notification added",
		log.FieldUserID, userID, log.FieldNotification, n.ID, "type", n.Type)

	if f.publisher != nil {
		if err := f.publisher.PublishNotification(ctx, userID, n); err != nil {
			// Publishing is best effort.
			f.logger.LogError(ctx, "Failed to publish notification", err, log.OpPublish, log.ErrorTypeNetwork,
				log.NewFields().WithUser(userID).With(log.FieldNotification, n.ID))
		}
	}
	return n, nil
}

// MarkAsRead flags one notification as read. Unknown ids are ignored.
func (f *Feed) MarkAsRead(ctx context.Context, userID, id string) error {
	return f.mutate(ctx, userID, log.OpUpdate, func(ns []core.Notification) ([]core.Notification, bool) {
		for i := range ns {
			if ns[i].ID == id && !ns[i].Read {
				ns[i].Read = true
				return ns, true
			}
		}
		return ns, false
	})
}

// MarkAllAsRead flags every notification of userID as read.
func (f *Feed) MarkAllAsRead(ctx context.Context, userID string) error {
	return f.mutate(ctx, userID, log.OpUpdate, func(ns []core.Notification) ([]core.Notification, bool) {
		changed := false
		for i := range ns {
			if !ns[i].Read {
				ns[i].Read = true
				changed = true
			}
		}
		return ns, changed
	})
}

// Delete removes one notification. Unknown ids are ignored.
func (f *Feed) Delete(ctx context.Context, userID, id string) error {
	return f.mutate(ctx, userID, log.OpDelete, func(ns []core.Notification) ([]core.Notification, bool) {
		for i := range ns {
			if ns[i].ID == id {
				return append(ns[:i], ns[i+1:]...), true
			}
		}
		return ns, false
	})
}

// Clear empties userID's feed.
func (f *Feed) Clear(ctx context.Context, userID string) error {
	return f.mutate(ctx, userID, log.OpDelete, func(ns []core.Notification) ([]core.Notification, bool) {
		return nil, len(ns) > 0
	})
}

func (f *Feed) mutate(ctx context.Context, userID, op string, fn func([]core.Notification) ([]core.Notification, bool)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fields := log.NewFields().WithUser(userID)
	ns, err := f.load(ctx, userID)
	if err != nil {
		f.logger.LogError(ctx, "Failed to load notifications", err, op, log.ErrorTypeStorage, fields)
		return fmt.Errorf("load notifications: %w", err)
	}
	ns, changed := fn(ns)
	if !changed {
		return nil
	}
	if err := f.save(ctx, userID, ns); err != nil {
		f.logger.LogError(ctx, "Failed to save notifications", err, op, log.ErrorTypeStorage, fields)
		return fmt.Errorf("save notifications: %w", err)
	}
	return nil
}
