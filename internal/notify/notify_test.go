package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/kv/memory"
	"tally/internal/log"
)

func counterIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type recordingPublisher struct {
	published []core.Notification
	err       error
}

func (p *recordingPublisher) PublishNotification(_ context.Context, _ string, n core.Notification) error {
	p.published = append(p.published, n)
	return p.err
}

func TestFeedCapsNewestFirst(t *testing.T) {
	ctx := context.Background()
	feed := NewFeed(memory.New(), WithFeedIDGenerator(counterIDs("n")))

	for i := 1; i <= 15; i++ {
		_, err := feed.Add(ctx, "u1", core.NotificationInput{Type: "reminder", Title: fmt.Sprintf("t%d", i)})
		require.NoError(t, err)
	}

	list := feed.List(ctx, "u1")
	require.Len(t, list, core.MaxNotifications)
	for i, n := range list {
		assert.Equal(t, fmt.Sprintf("n-%d", 15-i), n.ID)
	}
	assert.Empty(t, feed.List(ctx, "u2"))
}

func TestFeedReadState(t *testing.T) {
	ctx := context.Background()
	feed := NewFeed(memory.New(), WithFeedIDGenerator(counterIDs("n")))
	for i := 0; i < 3; i++ {
		_, err := feed.Add(ctx, "u1", core.NotificationInput{Title: "x"})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, feed.UnreadCount(ctx, "u1"))

	require.NoError(t, feed.MarkAsRead(ctx, "u1", "n-2"))
	require.NoError(t, feed.MarkAsRead(ctx, "u1", "missing"))
	assert.Equal(t, 2, feed.UnreadCount(ctx, "u1"))

	require.NoError(t, feed.MarkAllAsRead(ctx, "u1"))
	assert.Zero(t, feed.UnreadCount(ctx, "u1"))

	require.NoError(t, feed.Delete(ctx, "u1", "n-1"))
	list := feed.List(ctx, "u1")
	require.Len(t, list, 2)
	assert.Equal(t, "n-3", list[0].ID)

	require.NoError(t, feed.Clear(ctx, "u1"))
	assert.Empty(t, feed.List(ctx, "u1"))
}

func TestFeedPublishes(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	feed := NewFeed(memory.New(), WithPublisher(pub), WithFeedClock(func() time.Time { return at }))

	n, err := feed.Add(ctx, "u1", core.NotificationInput{Type: "reminder", Title: "Daily Reminder"})
	require.NoError(t, err, "publish failures do not fail the append")
	assert.Equal(t, at, n.Timestamp)
	require.Len(t, pub.published, 1)
	assert.Equal(t, n.ID, pub.published[0].ID)
	assert.Len(t, feed.List(ctx, "u1"), 1)
}

func TestFeedStorageFailure(t *testing.T) {
	ctx := context.Background()
	faulty := memory.NewFaulty(memory.New())
	feed := NewFeed(faulty)

	boom := errors.New("quota exceeded")
	faulty.FailWrites(boom)
	_, err := feed.Add(ctx, "u1", core.NotificationInput{Title: "x"})
	assert.ErrorIs(t, err, boom)

	faulty.FailReads(boom)
	assert.Empty(t, feed.List(ctx, "u1"))
}

func TestBookLifecycle(t *testing.T) {
	ctx := context.Background()
	book := NewBook(memory.New(), WithBookIDGenerator(counterIDs("r")))

	daily, err := book.Add(ctx, "u1", "log spending", core.Daily{At: "09:00"})
	require.NoError(t, err)
	assert.True(t, daily.Active)
	assert.Equal(t, core.KindDaily, daily.Kind())

	_, err = book.Add(ctx, "u1", "", core.SpendingLimit{ThresholdMinor: 0})
	assert.ErrorIs(t, err, core.ErrInvalidThreshold)
	_, err = book.Add(ctx, "u1", "", core.Daily{At: "25:00"})
	assert.ErrorIs(t, err, core.ErrInvalidTimeOfDay)

	limit, err := book.Add(ctx, "u1", "", core.SpendingLimit{ThresholdMinor: 50000})
	require.NoError(t, err)

	off := false
	_, err = book.Update(ctx, "u1", daily.ID, ReminderUpdate{Active: &off})
	require.NoError(t, err)

	active := book.Active(ctx, "u1")
	require.Len(t, active, 1)
	assert.Equal(t, limit.ID, active[0].ID)
	assert.Len(t, book.List(ctx, "u1"), 2)

	_, err = book.Update(ctx, "u1", "nope", ReminderUpdate{Active: &off})
	assert.ErrorIs(t, err, core.ErrNotFound)

	moved, err := book.Update(ctx, "u1", limit.ID, ReminderUpdate{Schedule: core.SpendingLimit{ThresholdMinor: 70000}})
	require.NoError(t, err)
	assert.Equal(t, core.SpendingLimit{ThresholdMinor: 70000}, moved.Schedule)

	require.NoError(t, book.Delete(ctx, "u1", daily.ID))
	require.NoError(t, book.Delete(ctx, "u1", "missing"))
	assert.Len(t, book.List(ctx, "u1"), 1)
}

func TestBookKeepsUnreadableSiblings(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewSeeded(map[string]string{
		kv.RemindersKey("u1"): `[{"id":"r1","type":"weekly","active":true},` +
			`{"id":"r2","type":"daily","time":"09:00","active":true}]`,
	})
	book := NewBook(mem, WithBookIDGenerator(counterIDs("r-new")))

	list := book.List(ctx, "u1")
	require.Len(t, list, 1)
	assert.Equal(t, "r2", list[0].ID)
	assert.Len(t, book.Active(ctx, "u1"), 1)

	_, err := book.Add(ctx, "u1", "rent", core.SpendingLimit{ThresholdMinor: 100})
	require.NoError(t, err)
	off := false
	_, err = book.Update(ctx, "u1", "r2", ReminderUpdate{Active: &off})
	require.NoError(t, err)
	_, err = book.Update(ctx, "u1", "r1", ReminderUpdate{Active: &off})
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, book.Delete(ctx, "u1", "r1"))

	raw, _, err := mem.Read(ctx, kv.RemindersKey("u1"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `{"id":"r1","type":"weekly","active":true}`)
	assert.Len(t, book.List(ctx, "u1"), 2)
	assert.Len(t, book.Active(ctx, "u1"), 1)
}

func TestBookCorruptCollectionReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	book := NewBook(memory.NewSeeded(map[string]string{
		kv.RemindersKey("u1"): `{not json`,
	}))
	assert.Empty(t, book.List(ctx, "u1"))
}

func TestBalanceAlertStorage(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	book := NewBook(mem)

	_, ok := book.BalanceAlert(ctx, "u1")
	assert.False(t, ok)

	_, err := book.SetBalanceAlert(ctx, "u1", core.BalanceAlert{ThresholdMinor: 1000, Direction: "sideways"})
	require.Error(t, err)

	_, err = book.SetBalanceAlert(ctx, "u1", core.BalanceAlert{ThresholdMinor: 1000, Direction: core.Below})
	require.NoError(t, err)
	alert, ok := book.BalanceAlert(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, core.Below, alert.Direction)

	_, found, err := mem.Read(ctx, kv.RemindersKey("u1"))
	require.NoError(t, err)
	assert.False(t, found, "balance alert does not share the reminders key")

	require.NoError(t, book.ClearBalanceAlert(ctx, "u1"))
	_, ok = book.BalanceAlert(ctx, "u1")
	assert.False(t, ok)
}

type failingDelete struct {
	kv.Store
	err error
}

func (f failingDelete) Delete(context.Context, string) error { return f.err }

func TestSetBalanceAlertLogsStateResetFailure(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := log.New(log.Config{Handler: slog.NewTextHandler(&buf, nil)})
	book := NewBook(failingDelete{Store: memory.New(), err: errors.New("disk full")}, WithBookLogger(logger))

	_, err := book.SetBalanceAlert(ctx, "u1", core.BalanceAlert{ThresholdMinor: 1000, Direction: core.Below})
	require.NoError(t, err)
	_, ok := book.BalanceAlert(ctx, "u1")
	assert.True(t, ok)

	out := buf.String()
	assert.Contains(t, out, "Failed to reset balance alert state")
	assert.Contains(t, out, "disk full")
	assert.Contains(t, out, "u1")
}
