package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/kv/memory"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tx-%d", n)
	}
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *memory.Store, *fixedClock) {
	t.Helper()
	mem := memory.New()
	clock := &fixedClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	base := []Option{WithClock(clock.now), WithIDGenerator(sequentialIDs())}
	return New(mem, append(base, opts...)...), mem, clock
}

func expense(amount int64, cat string, date time.Time) core.TransactionInput {
	return core.TransactionInput{Type: core.Expense, AmountMinor: amount, CategoryID: cat, Date: date, PaymentMethod: core.Card}
}

func TestSaveTransactionCreates(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)

	note := "groceries"
	in := expense(2500, "cat-food", clock.t)
	in.Note = &note
	tx, err := s.SaveTransaction(ctx, in, "u1")
	require.NoError(t, err)

	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, "u1", tx.UserID)
	assert.Equal(t, core.DefaultCurrency, tx.Currency)
	assert.False(t, tx.IsDeleted)
	assert.Equal(t, clock.t, tx.CreatedAt)
	assert.Equal(t, tx.CreatedAt, tx.UpdatedAt)

	list := s.ListTransactions(ctx, "u1")
	require.Len(t, list, 1)
	assert.Equal(t, "groceries", list[0].Note)
	assert.Empty(t, s.ListTransactions(ctx, "u2"))
}

func TestSaveTransactionRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	s, mem, clock := newTestStore(t)

	_, err := s.SaveTransaction(ctx, expense(0, "cat-food", clock.t), "u1")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = s.SaveTransaction(ctx, core.TransactionInput{Type: "gift", AmountMinor: 1, CategoryID: "c", Date: clock.t}, "u1")
	assert.ErrorIs(t, err, core.ErrInvalidType)

	_, err = s.SaveTransaction(ctx, expense(100, "cat-food", clock.t), "")
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "userId", verr.Field)

	assert.Equal(t, 0, mem.Len(), "nothing is written for rejected input")
}

func TestSaveTransactionUpdateMerges(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)

	note := "lunch"
	in := expense(500, "cat-food", clock.t)
	in.Note = &note
	created, err := s.SaveTransaction(ctx, in, "u1")
	require.NoError(t, err)

	clock.advance(time.Hour)
	updated, err := s.SaveTransaction(ctx, core.TransactionInput{ID: created.ID, AmountMinor: 750}, "u1")
	require.NoError(t, err)

	assert.Equal(t, int64(750), updated.AmountMinor)
	assert.Equal(t, "lunch", updated.Note)
	assert.Equal(t, "cat-food", updated.CategoryID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, clock.t, updated.UpdatedAt)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	got, ok := s.GetTransaction(ctx, created.ID)
	require.True(t, ok)
	assert.Equal(t, int64(750), got.AmountMinor)
}

func TestSaveTransactionUpdateUnknownOrForeign(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)

	created, err := s.SaveTransaction(ctx, expense(500, "cat-food", clock.t), "u1")
	require.NoError(t, err)

	_, err = s.SaveTransaction(ctx, core.TransactionInput{ID: "nope", AmountMinor: 1}, "u1")
	assert.True(t, IsNotFound(err))

	_, err = s.SaveTransaction(ctx, core.TransactionInput{ID: created.ID, AmountMinor: 1}, "u2")
	assert.True(t, IsNotFound(err))

	got, _ := s.GetTransaction(ctx, created.ID)
	assert.Equal(t, int64(500), got.AmountMinor)
}

func TestDeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)

	tx, err := s.SaveTransaction(ctx, expense(500, "cat-food", clock.t), "u1")
	require.NoError(t, err)

	require.NoError(t, s.DeleteTransaction(ctx, tx.ID))
	assert.Empty(t, s.ListTransactions(ctx, "u1"))
	_, ok := s.GetTransaction(ctx, tx.ID)
	assert.False(t, ok)

	require.NoError(t, s.DeleteTransaction(ctx, tx.ID), "deleting twice is a no-op")
	require.NoError(t, s.DeleteTransaction(ctx, "missing"), "unknown id is a no-op")

	require.NoError(t, s.RestoreTransaction(ctx, tx.ID))
	list := s.ListTransactions(ctx, "u1")
	require.Len(t, list, 1)
	assert.Equal(t, tx.ID, list[0].ID)
}

func TestPurgeDeleted(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, WithRetention(48*time.Hour))

	old, err := s.SaveTransaction(ctx, expense(100, "cat-food", clock.t), "u1")
	require.NoError(t, err)
	kept, err := s.SaveTransaction(ctx, expense(200, "cat-food", clock.t), "u1")
	require.NoError(t, err)
	require.NoError(t, s.DeleteTransaction(ctx, old.ID))

	n, err := s.PurgeDeleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "too recent to purge")

	clock.advance(72 * time.Hour)
	n, err = s.PurgeDeleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.RestoreTransaction(ctx, old.ID))
	list := s.ListTransactions(ctx, "u1")
	require.Len(t, list, 1)
	assert.Equal(t, kept.ID, list[0].ID)
}

func TestPurgeDisabledWithoutRetention(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)

	tx, err := s.SaveTransaction(ctx, expense(100, "cat-food", clock.t), "u1")
	require.NoError(t, err)
	require.NoError(t, s.DeleteTransaction(ctx, tx.ID))
	clock.advance(365 * 24 * time.Hour)

	n, err := s.PurgeDeleted(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStorageFailures(t *testing.T) {
	ctx := context.Background()
	faulty := memory.NewFaulty(memory.New())
	clock := &fixedClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	s := New(faulty, WithClock(clock.now))

	_, err := s.SaveTransaction(ctx, expense(100, "cat-food", clock.t), "u1")
	require.NoError(t, err)

	boom := errors.New("disk full")
	faulty.FailWrites(boom)
	_, err = s.SaveTransaction(ctx, expense(200, "cat-food", clock.t), "u1")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, s.ListTransactions(ctx, "u1"), 1)

	faulty.FailReads(boom)
	assert.Empty(t, s.ListTransactions(ctx, "u1"))
	assert.Empty(t, s.ListCategories(ctx))
}

func TestCorruptCollectionReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewSeeded(map[string]string{kv.KeyTransactions: "{oops"})
	s := New(mem)
	assert.Empty(t, s.ListTransactions(ctx, "u1"))
}

func TestSeedAndListCategories(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := newTestStore(t)

	require.NoError(t, s.SeedCategories(ctx))
	cats := s.ListCategories(ctx)
	assert.Len(t, cats, 12)

	// Seeding again leaves existing data alone.
	require.NoError(t, kv.SetJSON(ctx, mem, kv.KeyCategories, []core.Category{
		{ID: "a", Name: "A", Type: core.Expense},
		{ID: "b", Name: "B", Type: core.Expense, IsDeleted: true},
	}))
	require.NoError(t, s.SeedCategories(ctx))
	cats = s.ListCategories(ctx)
	require.Len(t, cats, 1)
	assert.Equal(t, "a", cats[0].ID)
}

func TestCategoriesFor(t *testing.T) {
	owner := "u1"
	other := "u2"
	cats := []core.Category{
		{ID: "g-exp", Type: core.Expense},
		{ID: "g-inc", Type: core.Income},
		{ID: "mine", Type: core.Expense, UserID: &owner},
		{ID: "theirs", Type: core.Expense, UserID: &other},
	}
	got := CategoriesFor(cats, "u1", core.Expense)
	require.Len(t, got, 2)
	assert.Equal(t, "g-exp", got[0].ID)
	assert.Equal(t, "mine", got[1].ID)
	assert.Len(t, CategoriesFor(cats, "u1", ""), 3)
}

func TestExportWritesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	require.NoError(t, s.SeedCategories(ctx))

	_, err := s.SaveTransaction(ctx, expense(2500, "cat-food", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)), "u1")
	require.NoError(t, err)
	_, err = s.SaveTransaction(ctx, expense(900, "cat-transport", time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)), "u1")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Export(ctx, &buf, "u1"))
	want := `"Date","Type","Amount","Category","Note","Payment Method"` + "\n" +
		`"2025-06-03","expense","9.00","Transportation","","card"` + "\n" +
		`"2025-06-01","expense","25.00","Food & Dining","","card"`
	assert.Equal(t, want, buf.String())
}

func TestExportMatchesListedDayInLocation(t *testing.T) {
	ctx := context.Background()
	kolkata := time.FixedZone("IST", 5*3600+1800)
	s, _, _ := newTestStore(t, WithLocation(kolkata))
	require.NoError(t, s.SeedCategories(ctx))

	late := time.Date(2025, 6, 5, 20, 0, 0, 0, time.UTC)
	_, err := s.SaveTransaction(ctx, expense(2500, "cat-food", late), "u1")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Export(ctx, &buf, "u1"))
	listed := s.ListTransactions(ctx, "u1")[0].Date.In(kolkata).Format(time.DateOnly)
	assert.Equal(t, "2025-06-06", listed)
	assert.Contains(t, buf.String(), `"`+listed+`","expense","25.00","Food & Dining"`)
}
