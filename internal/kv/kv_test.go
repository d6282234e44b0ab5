package kv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tally/internal/cache"
	"tally/internal/kv"
	"tally/internal/kv/memory"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	var d doc
	found, err := kv.GetJSON(ctx, s, "missing", &d)
	if err != nil || found {
		t.Fatalf("expected absent, found=%v err=%v", found, err)
	}

	if err := kv.SetJSON(ctx, s, "doc", doc{Name: "a", Count: 2}); err != nil {
		t.Fatalf("set: %v", err)
	}
	found, err = kv.GetJSON(ctx, s, "doc", &d)
	if err != nil || !found || d.Name != "a" || d.Count != 2 {
		t.Fatalf("unexpected get: %+v found=%v err=%v", d, found, err)
	}

	if err := s.Write(ctx, "broken", []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := kv.GetJSON(ctx, s, "broken", &d); err == nil {
		t.Fatal("expected decode error for corrupted JSON")
	}
}

func TestKeyBuilders(t *testing.T) {
	cases := map[string]string{
		kv.NotificationsKey("u1"):         "notifications_u1",
		kv.RemindersKey("u1"):             "reminders_u1",
		kv.BalanceReminderKey(""):         "balance_reminder_anon",
		kv.SpendingLimitNotifiedKey("r1"): "spending_limit_notified_r1",
		kv.DailyReminderLastKey("r1"):     "daily_reminder_r1_last",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

type countingStore struct {
	kv.Store
	reads int
}

func (c *countingStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	c.reads++
	return c.Store.Read(ctx, key)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{Store: memory.New()}
	s := kv.NewCached(inner, cache.NewLRUCache[[]byte](8, time.Minute), "k")

	if err := s.Write(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i := 0; i < 3; i++ {
		v, found, err := s.Read(ctx, "k")
		if err != nil || !found || string(v) != "v1" {
			t.Fatalf("unexpected read: %q %v %v", v, found, err)
		}
	}
	if inner.reads != 0 {
		t.Fatalf("expected reads served from cache, inner saw %d", inner.reads)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Read(ctx, "k"); found {
		t.Fatal("deleted key must not be served from cache")
	}
}

func TestCachedStoreWriteFailureInvalidates(t *testing.T) {
	ctx := context.Background()
	faulty := memory.NewFaulty(memory.New())
	s := kv.NewCached(faulty, cache.NewLRUCache[[]byte](8, time.Minute), "k")

	if err := s.Write(ctx, "k", []byte("old")); err != nil {
		t.Fatalf("write: %v", err)
	}
	faulty.FailWrites(errors.New("disk full"))
	if err := s.Write(ctx, "k", []byte("new")); err == nil {
		t.Fatal("expected write error")
	}
	faulty.FailWrites(nil)

	v, _, err := s.Read(ctx, "k")
	if err != nil || string(v) != "old" {
		t.Fatalf("expected stored value after failed write, got %q err=%v", v, err)
	}
}

func TestCachedStoreOnlyCachesListedKeys(t *testing.T) {
	ctx := context.Background()
	shared := memory.New()
	worker := kv.NewCached(shared, cache.NewLRUCache[[]byte](8, time.Minute), kv.ReferenceKeys...)

	// Another process writes the same backing store behind the cache.
	if err := worker.Write(ctx, kv.RemindersKey("u1"), []byte(`["a"]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := worker.Read(ctx, kv.RemindersKey("u1")); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := shared.Write(ctx, kv.RemindersKey("u1"), []byte(`["a","b"]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, _, err := worker.Read(ctx, kv.RemindersKey("u1"))
	if err != nil || string(v) != `["a","b"]` {
		t.Fatalf("mutable collection served stale: %q err=%v", v, err)
	}

	if err := worker.Write(ctx, kv.KeyCategories, []byte(`[]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := shared.Write(ctx, kv.KeyCategories, []byte(`[{"id":"x"}]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if v, _, _ := worker.Read(ctx, kv.KeyCategories); string(v) != `[]` {
		t.Fatalf("reference data should be served from cache, got %q", v)
	}
}
