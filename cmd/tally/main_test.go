package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/auth"
	"tally/internal/config"
	"tally/internal/kv/memory"
	"tally/internal/log"
)

type harness struct {
	app *app
	out *bytes.Buffer
	now time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		out: &bytes.Buffer{},
		now: time.Date(2025, 6, 10, 9, 0, 30, 0, time.UTC),
	}
	cfg := &config.Config{
		DataBackend:       "memory",
		Currency:          "INR",
		Timezone:          "UTC",
		ReminderInterval:  time.Minute,
		ReminderTolerance: time.Minute,
		ExportDir:         t.TempDir(),
		ExportTarget:      "file",
		BcryptCost:        4,
		LogLevel:          "info",
	}
	h.app = newApp(cfg, memory.New(), h.out, log.Nop(), func() time.Time { return h.now })
	require.NoError(t, h.app.ledger.SeedCategories(context.Background()))
	return h
}

func (h *harness) run(t *testing.T, args ...string) string {
	t.Helper()
	h.out.Reset()
	require.NoError(t, h.app.run(context.Background(), args))
	return h.out.String()
}

func (h *harness) signup(t *testing.T) {
	t.Helper()
	h.run(t, "signup", "-name", "Asha", "-email", "asha@example.com", "-password", "hunter222")
}

func TestRequiresSession(t *testing.T) {
	h := newHarness(t)
	err := h.app.run(context.Background(), []string{"balance"})
	assert.ErrorIs(t, err, auth.ErrNotSignedIn)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.app.run(context.Background(), []string{"frobnicate"}), errUsage)
	assert.ErrorIs(t, h.app.run(context.Background(), nil), errUsage)
}

func TestTransactionsAndReports(t *testing.T) {
	h := newHarness(t)
	h.signup(t)

	out := h.run(t, "add", "-type", "income", "-amount", "1000", "-category", "cat-salary", "-date", "2025-06-01")
	assert.Contains(t, out, "Added income INR 1000.00")
	h.run(t, "add", "-amount", "250.50", "-category", "cat-food", "-note", "Groceries", "-method", "upi")

	out = h.run(t, "balance")
	assert.Equal(t, "Balance: INR 749.50\n", out)

	out = h.run(t, "list", "-search", "grocer")
	assert.Contains(t, out, "Groceries")
	assert.Contains(t, out, "Food & Dining")
	assert.NotContains(t, out, "Salary")

	out = h.run(t, "overview", "-month", "2025-06")
	assert.Contains(t, out, "Income:   INR 1000.00")
	assert.Contains(t, out, "Expenses: INR 250.50")

	out = h.run(t, "list", "-type", "expense", "-limit", "1")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	fields := strings.Fields(lines[1])
	id := fields[len(fields)-1]

	h.run(t, "delete", "-id", id)
	assert.Equal(t, "Balance: INR 1000.00\n", h.run(t, "balance"))
	h.run(t, "restore", "-id", id)
	assert.Equal(t, "Balance: INR 749.50\n", h.run(t, "balance"))

	h.run(t, "edit", "-id", id, "-amount", "100")
	assert.Equal(t, "Balance: INR 900.00\n", h.run(t, "balance"))
}

func TestLimitStatus(t *testing.T) {
	h := newHarness(t)
	h.signup(t)

	assert.Contains(t, h.run(t, "limit"), "No monthly expense limit set")

	h.run(t, "profile", "-limit", "200")
	h.run(t, "add", "-amount", "250", "-category", "cat-food")

	out := h.run(t, "limit")
	assert.Contains(t, out, "Spent INR 250.00 of INR 200.00 this month (125.0%)")
	assert.Contains(t, out, "Limit exceeded")
}

func TestExportToFile(t *testing.T) {
	h := newHarness(t)
	h.signup(t)
	h.run(t, "add", "-amount", "12", "-category", "cat-food", "-note", `say "hi"`, "-date", "2025-06-02")

	out := h.run(t, "export")
	path := filepath.Join(h.app.cfg.ExportDir, "transactions-2025-06-10.csv")
	assert.Equal(t, "Exported to "+path+"\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		`"Date","Type","Amount","Category","Note","Payment Method"`+"\n"+
			`"2025-06-02","expense","12.00","Food & Dining","say ""hi""",""`,
		string(data))
}

func TestRemindersFireOnCheck(t *testing.T) {
	h := newHarness(t)
	h.signup(t)

	h.run(t, "remind", "add", "-daily", "09:00", "-desc", "log spending")
	h.run(t, "remind", "balance", "-threshold", "100", "-direction", "below")

	out := h.run(t, "remind", "list")
	assert.Contains(t, out, "daily 09:00")
	assert.Contains(t, out, "below INR 100.00")

	assert.Equal(t, "2 reminders fired\n", h.run(t, "check"))
	assert.Equal(t, "0 reminders fired\n", h.run(t, "check"))

	out = h.run(t, "notifications")
	assert.Contains(t, out, "2 unread")
	assert.Contains(t, out, "Daily Reminder")
	assert.Contains(t, out, "Balance Alert")

	h.run(t, "notifications", "read-all")
	assert.Contains(t, h.run(t, "notifications", "list"), "0 unread")

	h.run(t, "notifications", "clear")
	assert.Equal(t, "0 unread\n", h.run(t, "notifications", "list"))
}

func TestRemindAddNeedsSchedule(t *testing.T) {
	h := newHarness(t)
	h.signup(t)
	err := h.app.run(context.Background(), []string{"remind", "add", "-desc", "nothing"})
	assert.ErrorIs(t, err, errUsage)
}
