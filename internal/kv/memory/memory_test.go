package memory

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, found, err := s.Read(ctx, "missing"); err != nil || found {
		t.Fatalf("expected absent key, found=%v err=%v", found, err)
	}

	buf := []byte("hello")
	if err := s.Write(ctx, "k", buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf[0] = 'j' // stored value must not alias caller memory

	got, found, err := s.Read(ctx, "k")
	if err != nil || !found || string(got) != "hello" {
		t.Fatalf("unexpected read: %q found=%v err=%v", got, found, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d keys", s.Len())
	}
}

func TestMemoryStoreKeys(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded(map[string]string{
		"reminders_u2":     "[]",
		"reminders_u1":     "[]",
		"notifications_u1": "[]",
	})
	keys, err := s.Keys(ctx, "reminders_")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "reminders_u1" || keys[1] != "reminders_u2" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestFaultyStore(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("quota exceeded")
	f := NewFaulty(New())

	f.FailWrites(boom)
	if err := f.Write(ctx, "k", []byte("v")); !errors.Is(err, boom) {
		t.Fatalf("expected write failure, got %v", err)
	}
	f.FailWrites(nil)
	if err := f.Write(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("write after reset: %v", err)
	}

	f.FailReads(boom)
	if _, _, err := f.Read(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("expected read failure, got %v", err)
	}
}
