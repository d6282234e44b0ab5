package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/ledger"
	"tally/internal/log"
	"tally/internal/notify"
)

// TransactionLister is the ledger read the engine depends on.
type TransactionLister interface {
	ListTransactions(ctx context.Context, userID string) []core.Transaction
}

// ProcessorConfig tunes the check pass.
type ProcessorConfig struct {
	// Tolerance is the window after a scheduled instant in which a time-based
	// reminder still fires.
	Tolerance time.Duration
	// Location is the clock daily reminders and months are evaluated in.
	Location *time.Location
	// Currency formats amounts in notification messages.
	Currency string
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Tolerance: 60 * time.Second,
		Location:  time.Local,
		Currency:  core.DefaultCurrency,
	}
}

// ReminderProcessor evaluates a user's active reminders and appends a
// notification for each one that is due.
type ReminderProcessor struct {
	kv     kv.Store
	ledger TransactionLister
	book   *notify.Book
	feed   *notify.Feed
	config ProcessorConfig
	logger *log.Logger
}

func NewReminderProcessor(store kv.Store, txs TransactionLister, book *notify.Book, feed *notify.Feed, config ProcessorConfig, logger *log.Logger) *ReminderProcessor {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Currency == "" {
		config.Currency = core.DefaultCurrency
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &ReminderProcessor{
		kv:     store,
		ledger: txs,
		book:   book,
		feed:   feed,
		config: config,
		logger: logger.WithComponent(log.ComponentReminder),
	}
}

// pass caches the ledger reads of one check pass.
type pass struct {
	ctx    context.Context
	userID string
	now    time.Time
	p      *ReminderProcessor
	txs    []core.Transaction
	loaded bool
}

func (ps *pass) transactions() []core.Transaction {
	if !ps.loaded {
		ps.txs = ps.p.ledger.ListTransactions(ps.ctx, ps.userID)
		ps.loaded = true
	}
	return ps.txs
}

func (ps *pass) monthToDate() int64 {
	return ledger.MonthToDateExpenses(ps.transactions(), ps.now)
}

// CheckPass runs one evaluation over userID's active reminders at now and
// returns how many notifications it appended. Malformed reminders are
// skipped. Failures on one reminder never stop the others; they are
// returned joined.
func (p *ReminderProcessor) CheckPass(ctx context.Context, userID string, now time.Time) (int, error) {
	now = now.In(p.config.Location)
	ps := &pass{ctx: ctx, userID: userID, now: now, p: p}

	reminders := p.book.Active(ctx, userID)
	p.logger.DebugContext(ctx, "Checking reminders",
		log.FieldUserID, userID, log.FieldCount, len(reminders), "at", now.Format(time.RFC3339))

	fired := 0
	var errs []error
	for _, r := range reminders {
		ok, err := p.check(ps, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("reminder %s: %w", r.ID, err))
		}
		if ok {
			fired++
		}
	}

	ok, err := p.checkBalanceAlert(ps)
	if err != nil {
		errs = append(errs, fmt.Errorf("balance alert: %w", err))
	}
	if ok {
		fired++
	}

	if fired > 0 {
		p.logger.InfoContext(ctx, "Reminder check complete",
			log.FieldUserID, userID, log.FieldOperation, log.OpCheck, "fired", fired)
	}
	return fired, errors.Join(errs...)
}

func (p *ReminderProcessor) check(ps *pass, r core.Reminder) (bool, error) {
	ctx := ps.ctx
	fields := log.NewFields().WithUser(ps.userID).WithReminder(r.ID, string(r.Kind())).WithOperation(log.OpCheck)

	strategy, err := GetTriggerStrategy(r.Kind())
	if err != nil {
		p.logger.WarnContext(ctx, "Skipping reminder", fields.WithError(err, log.ErrorTypeValidation).ToSlice()...)
		return false, nil
	}

	last, err := p.lastFired(ctx, r)
	if err != nil {
		p.logger.LogError(ctx, "Failed to read reminder state", err, log.OpCheck, log.ErrorTypeStorage, fields)
		return false, err
	}

	due, err := strategy.IsDue(r.Schedule, TriggerInput{
		Now:         ps.now,
		Tolerance:   p.config.Tolerance,
		LastFired:   last,
		MonthToDate: ps.monthToDate,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "Skipping malformed reminder", fields.WithError(err, log.ErrorTypeValidation).ToSlice()...)
		return false, nil
	}
	if !due {
		return false, nil
	}

	if _, err := p.feed.Add(ctx, ps.userID, p.notificationFor(ps, r)); err != nil {
		return false, err
	}
	if err := p.markFired(ctx, ps, r); err != nil {
		p.logger.LogError(ctx, "Failed to record reminder firing", err, log.OpCheck, log.ErrorTypeStorage, fields)
		return true, err
	}
	p.logger.InfoContext(ctx, "Reminder fired", fields.ToSlice()...)
	return true, nil
}

// lastFired reads the side record that suppresses repeat firings. Custom
// reminders have none.
func (p *ReminderProcessor) lastFired(ctx context.Context, r core.Reminder) (time.Time, error) {
	switch r.Kind() {
	case core.KindDaily:
		raw, found, err := kv.GetString(ctx, p.kv, kv.DailyReminderLastKey(r.ID))
		if err != nil || !found {
			return time.Time{}, err
		}
		t, perr := time.ParseInLocation(time.DateOnly, raw, p.config.Location)
		if perr != nil {
			// An unreadable marker counts as never fired.
			return time.Time{}, nil
		}
		return t, nil
	case core.KindSpendingLimit:
		raw, found, err := kv.GetString(ctx, p.kv, kv.SpendingLimitNotifiedKey(r.ID))
		if err != nil || !found {
			return time.Time{}, err
		}
		t, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return time.Time{}, nil
		}
		return t, nil
	default:
		return time.Time{}, nil
	}
}

func (p *ReminderProcessor) markFired(ctx context.Context, ps *pass, r core.Reminder) error {
	switch r.Kind() {
	case core.KindDaily:
		return kv.SetString(ctx, p.kv, kv.DailyReminderLastKey(r.ID), ps.now.Format(time.DateOnly))
	case core.KindCustom:
		inactive := false
		_, err := p.book.Update(ctx, ps.userID, r.ID, notify.ReminderUpdate{Active: &inactive})
		return err
	case core.KindSpendingLimit:
		return kv.SetString(ctx, p.kv, kv.SpendingLimitNotifiedKey(r.ID), ps.now.Format(time.RFC3339))
	}
	return nil
}

func (p *ReminderProcessor) notificationFor(ps *pass, r core.Reminder) core.NotificationInput {
	switch s := r.Schedule.(type) {
	case core.Custom:
		msg := r.Description
		if msg == "" {
			msg = "Your scheduled reminder is due."
		}
		return core.NotificationInput{Type: "reminder", Title: "Custom Reminder", Message: msg, Category: "reminder"}
	case core.SpendingLimit:
		spent := core.Money{Cents: ps.monthToDate()}.Format(p.config.Currency)
		limit := core.Money{Cents: s.ThresholdMinor}.Format(p.config.Currency)
		return core.NotificationInput{
			Type:     "spending_limit",
			Title:    "Spending Limit Exceeded!",
			Message:  fmt.Sprintf("You've spent %s this month, which exceeds your limit of %s.", spent, limit),
			Category: "alert",
		}
	default:
		return core.NotificationInput{
			Type:     "reminder",
			Title:    "Daily Reminder",
			Message:  "Don't forget to add today's spending!",
			Category: "reminder",
		}
	}
}

// checkBalanceAlert notifies when the balance starts to satisfy the user's
// alert and re-arms once it stops.
func (p *ReminderProcessor) checkBalanceAlert(ps *pass) (bool, error) {
	ctx := ps.ctx
	alert, ok := p.book.BalanceAlert(ctx, ps.userID)
	if !ok {
		return false, nil
	}

	stateKey := kv.BalanceAlertStateKey(ps.userID)
	_, triggered, err := p.kv.Read(ctx, stateKey)
	if err != nil {
		return false, err
	}

	balance := ledger.CalculateBalance(ps.transactions())
	if !alert.Matches(balance) {
		if triggered {
			return false, p.kv.Delete(ctx, stateKey)
		}
		return false, nil
	}
	if triggered {
		return false, nil
	}

	current := core.Money{Cents: balance}.Format(p.config.Currency)
	threshold := core.Money{Cents: alert.ThresholdMinor}.Format(p.config.Currency)
	if _, err := p.feed.Add(ctx, ps.userID, core.NotificationInput{
		Type:     "balance",
		Title:    "Balance Alert",
		Message:  fmt.Sprintf("Your balance of %s is %s your threshold of %s.", current, alert.Direction, threshold),
		Category: "alert",
	}); err != nil {
		return false, err
	}
	if err := kv.SetString(ctx, p.kv, stateKey, ps.now.Format(time.RFC3339)); err != nil {
		return true, err
	}
	return true, nil
}
