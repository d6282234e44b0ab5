package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"tally/internal/auth"
	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/notify"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

// flagsSet reports which flags were given on the command line.
func flagsSet(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
}

func (a *app) money(minor int64) string {
	return core.Money{Cents: minor}.Format(a.cfg.Currency)
}

func (a *app) parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s, a.cfg.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// parseAmount accepts a decimal amount in major units; "0" clears.
func parseAmount(s string) (int64, error) {
	if strings.TrimSpace(s) == "0" {
		return 0, nil
	}
	return core.ParseDecimalToCents(s)
}

// Accounts

func (a *app) signup(ctx context.Context, args []string) error {
	fs := newFlagSet("signup")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	s, err := a.auth.Signup(ctx, *name, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed up and logged in as %s <%s>\n", s.Name, s.Email)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	s, err := a.auth.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s <%s>\n", s.Name, s.Email)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	s, ok := a.auth.CurrentUser(ctx)
	if !ok {
		return auth.ErrNotSignedIn
	}
	fmt.Fprintf(a.out, "%s <%s> (%s)\n", s.Name, s.Email, s.PreferredCurrency)
	if s.ExpenseLimitMinor > 0 {
		fmt.Fprintf(a.out, "Monthly expense limit: %s\n", a.money(s.ExpenseLimitMinor))
	}
	return nil
}

func (a *app) profile(ctx context.Context, args []string) error {
	fs := newFlagSet("profile")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	avatar := fs.String("avatar", "", "avatar URL")
	currency := fs.String("currency", "", "preferred currency code")
	limit := fs.String("limit", "", "monthly expense limit, 0 to clear")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	set := flagsSet(fs)

	var p auth.Profile
	if set["name"] {
		p.Name = name
	}
	if set["email"] {
		p.Email = email
	}
	if set["avatar"] {
		p.AvatarURL = avatar
	}
	if set["currency"] {
		p.PreferredCurrency = currency
	}
	if set["limit"] {
		minor, err := parseAmount(*limit)
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		p.ExpenseLimitMinor = &minor
	}
	s, err := a.auth.UpdateProfile(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Profile updated for %s <%s>\n", s.Name, s.Email)
	return nil
}

func (a *app) passwd(ctx context.Context, args []string) error {
	fs := newFlagSet("passwd")
	current := fs.String("current", "", "current password")
	next := fs.String("new", "", "new password")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := a.auth.ChangePassword(ctx, *current, *next); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed")
	return nil
}

// Transactions

type txFlags struct {
	fs       *flag.FlagSet
	typ      *string
	amount   *string
	category *string
	note     *string
	date     *string
	method   *string
	currency *string
}

func newTxFlags(name string) *txFlags {
	fs := newFlagSet(name)
	return &txFlags{
		fs:       fs,
		typ:      fs.String("type", "expense", "income or expense"),
		amount:   fs.String("amount", "", "amount in major units, e.g. 12.50"),
		category: fs.String("category", "", "category id"),
		note:     fs.String("note", "", "free-text note"),
		date:     fs.String("date", "", "date as YYYY-MM-DD (default today)"),
		method:   fs.String("method", "", "cash, card, upi, bank_transfer, wallet or other"),
		currency: fs.String("currency", "", "currency code"),
	}
}

// txInput builds a TransactionInput from the flags that were given.
func (a *app) txInput(tf *txFlags, id string) (core.TransactionInput, error) {
	set := flagsSet(tf.fs)
	in := core.TransactionInput{
		ID:            id,
		CategoryID:    *tf.category,
		PaymentMethod: core.PaymentMethod(*tf.method),
		Currency:      strings.ToUpper(*tf.currency),
	}
	if id == "" || set["type"] {
		in.Type = core.TransactionType(*tf.typ)
	}
	if set["amount"] {
		minor, err := core.ParseDecimalToCents(*tf.amount)
		if err != nil {
			return in, fmt.Errorf("invalid amount: %w", err)
		}
		in.AmountMinor = minor
	}
	if set["note"] {
		in.Note = tf.note
	}
	switch {
	case set["date"]:
		d, err := a.parseDate(*tf.date)
		if err != nil {
			return in, err
		}
		in.Date = d
	case id == "":
		in.Date = a.now()
	}
	return in, nil
}

func (a *app) add(ctx context.Context, args []string) error {
	userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	tf := newTxFlags("add")
	if err := parseFlags(tf.fs, args); err != nil {
		return err
	}
	in, err := a.txInput(tf, "")
	if err != nil {
		return err
	}
	tx, err := a.ledger.SaveTransaction(ctx, in, userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s %s (%s)\n", tx.Type, a.money(tx.AmountMinor), tx.ID)
	return nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	tf := newTxFlags("edit")
	id := tf.fs.String("id", "", "transaction id")
	if err := parseFlags(tf.fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: edit requires -id", errUsage)
	}
	in, err := a.txInput(tf, *id)
	if err != nil {
		return err
	}
	tx, err := a.ledger.SaveTransaction(ctx, in, userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s\n", tx.ID)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	fs := newFlagSet("list")
	from := fs.String("from", "", "start date YYYY-MM-DD")
	to := fs.String("to", "", "end date YYYY-MM-DD")
	category := fs.String("category", "", "category id")
	typ := fs.String("type", "", "income or expense")
	search := fs.String("search", "", "text to find in notes")
	limit := fs.Int("limit", -1, "maximum rows, newest first")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	f := ledger.Filters{CategoryID: *category, Type: core.TransactionType(*typ), Search: *search}
	if *from != "" {
		if f.StartDate, err = a.parseDate(*from); err != nil {
			return err
		}
	}
	if *to != "" {
		end, err := a.parseDate(*to)
		if err != nil {
			return err
		}
		f.EndDate = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	txs := ledger.FilterTransactions(a.ledger.ListTransactions(ctx, userID), f)
	txs = ledger.RecentTransactions(txs, *limit)
	if len(txs) == 0 {
		fmt.Fprintln(a.out, "No transactions")
		return nil
	}

	names := make(map[string]string)
	for _, c := range a.ledger.ListCategories(ctx) {
		names[c.ID] = c.Name
	}
	w := a.table()
	fmt.Fprintln(w, "DATE\tTYPE\tAMOUNT\tCATEGORY\tNOTE\tID")
	for _, tx := range txs {
		name, ok := names[tx.CategoryID]
		if !ok {
			name = ledger.UnknownCategory
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.Date.In(a.cfg.Location()).Format(time.DateOnly), tx.Type, tx.Amount().Major(), name, tx.Note, tx.ID)
	}
	return w.Flush()
}

func (a *app) setDeleted(ctx context.Context, args []string, deleted bool) error {
	userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	name, done := "restore", "Restored"
	if deleted {
		name, done = "delete", "Deleted"
	}
	fs := newFlagSet(name)
	id := fs.String("id", "", "transaction id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: %s requires -id", errUsage, name)
	}
	if deleted {
		tx, ok := a.ledger.GetTransaction(ctx, *id)
		if !ok || tx.UserID != userID {
			return core.ErrNotFound
		}
		err = a.ledger.DeleteTransaction(ctx, *id)
	} else {
		err = a.ledger.RestoreTransaction(ctx, *id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s\n", done, *id)
	return nil
}

func (a *app) purge(ctx context.Context) error {
	n, err := a.ledger.PurgeDeleted(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Purged %d deleted transactions\n", n)
	return nil
}

func (a *app) categories(ctx context.Context, args []string) error {
	userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	fs := newFlagSet("categories")
	typ := fs.String("type", "", "income or expense")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	w := a.table()
	fmt.Fprintln(w, "ID\tNAME\tTYPE")
	for _, c := range ledger.CategoriesFor(a.ledger.ListCategories(ctx), userID, core.TransactionType(*typ)) {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.Type)
	}
	return w.Flush()
}

// Reports

func (a *app) balance(ctx context.Context) error {
	userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Balance: %s\n", a.money(ledger.CalculateBalance(a.ledger.ListTransactions(ctx, userID))))
	return nil
}

func (a *app) overview(ctx context.Context, args []string) error {
	userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	fs := newFlagSet("overview")
	month := fs.String("month", "", "month as YYYY-MM (default current)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	loc := a.cfg.Location()
	at := a.now().In(loc)
	if *month != "" {
		if at, err = time.ParseInLocation("2006-01", *month, loc); err != nil {
			return fmt.Errorf("invalid month %q: want YYYY-MM", *month)
		}
	}

	ov := ledger.MonthOverview(a.ledger.ListTransactions(ctx, userID), a.ledger.ListCategories(ctx), at.Year(), at.Month(), loc)
	fmt.Fprintf(a.out, "%04d-%02d\n", ov.Year, ov.Month)
	fmt.Fprintf(a.out, "Income:   %s\n", a.money(ov.Income.Cents))
	fmt.Fprintf(a.out, "Expenses: %s\n", a.money(ov.Expenses.Cents))
	fmt.Fprintf(a.out, "Balance:  %s\n", a.money(ov.Balance.Cents))
	if len(ov.ByCategory) == 0 {
		return nil
	}
	w := a.table()
	fmt.Fprintln(w, "CATEGORY\tSPENT")
	for _, c := range ov.ByCategory {
		fmt.Fprintf(w, "%s\t%s\n", c.Name, c.Amount.Major())
	}
	return w.Flush()
}

func (a *app) limit(ctx context.Context) error {
	s, ok := a.auth.CurrentUser(ctx)
	if !ok {
		return auth.ErrNotSignedIn
	}
	if s.ExpenseLimitMinor <= 0 {
		fmt.Fprintln(a.out, "No monthly expense limit set (tally profile -limit 500)")
		return nil
	}
	st := ledger.ExpenseLimitStatus(a.ledger.ListTransactions(ctx, s.ID), s.ExpenseLimitMinor, a.now())
	fmt.Fprintf(a.out, "Spent %s of %s this month (%.1f%%)\n",
		a.money(st.CurrentMinor), a.money(st.LimitMinor), st.PercentageUsed)
	if st.Exceeded {
		fmt.Fprintln(a.out, "Limit exceeded")
	}
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	fs := newFlagSet("export")
	target := fs.String("target", a.cfg.ExportTarget, "file or sheets")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	switch *target {
	case "file":
		path := filepath.Join(a.cfg.ExportDir, ledger.ExportFilename(a.now()))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		if err := a.ledger.Export(ctx, f, userID); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close export file: %w", err)
		}
		fmt.Fprintf(a.out, "Exported to %s\n", path)
	case "sheets":
		exporter, err := a.exporter(ctx)
		if err != nil {
			return err
		}
		txs := ledger.SortByDateDesc(a.ledger.ListTransactions(ctx, userID))
		n, err := exporter.ExportTransactions(ctx, txs, a.ledger.ListCategories(ctx))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Exported %d transactions to Google Sheets\n", n)
	default:
		return fmt.Errorf("%w: unknown export target %q", errUsage, *target)
	}
	return nil
}

// Reminders

func (a *app) remind(ctx context.Context, args []string) error {
	userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: remind needs a subcommand", errUsage)
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "add":
		fs := newFlagSet("remind add")
		daily := fs.String("daily", "", "time of day HH:MM")
		at := fs.String("at", "", "one-off instant YYYY-MM-DD HH:MM")
		limit := fs.String("limit", "", "monthly spending threshold")
		desc := fs.String("desc", "", "description")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		schedule, err := a.schedule(*daily, *at, *limit)
		if err != nil {
			return err
		}
		r, err := a.book.Add(ctx, userID, *desc, schedule)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Added %s reminder %s\n", r.Kind(), r.ID)
	case "list":
		w := a.table()
		fmt.Fprintln(w, "ID\tTYPE\tWHEN\tACTIVE\tDESCRIPTION")
		for _, r := range a.book.List(ctx, userID) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", r.ID, r.Kind(), a.describe(r.Schedule), r.Active, r.Description)
		}
		if alert, ok := a.book.BalanceAlert(ctx, userID); ok {
			fmt.Fprintf(w, "-\tbalance\t%s %s\ttrue\t\n", alert.Direction, a.money(alert.ThresholdMinor))
		}
		return w.Flush()
	case "toggle":
		fs := newFlagSet("remind toggle")
		id := fs.String("id", "", "reminder id")
		active := fs.Bool("active", true, "enable or disable")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		r, err := a.book.Update(ctx, userID, *id, notify.ReminderUpdate{Active: active})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Reminder %s active=%t\n", r.ID, r.Active)
	case "delete":
		fs := newFlagSet("remind delete")
		id := fs.String("id", "", "reminder id")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		if err := a.book.Delete(ctx, userID, *id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted reminder %s\n", *id)
	case "balance":
		fs := newFlagSet("remind balance")
		threshold := fs.String("threshold", "", "balance threshold")
		direction := fs.String("direction", string(core.Below), "above or below")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		minor, err := parseAmount(*threshold)
		if err != nil {
			return fmt.Errorf("invalid threshold: %w", err)
		}
		alert, err := a.book.SetBalanceAlert(ctx, userID, core.BalanceAlert{
			ThresholdMinor: minor,
			Direction:      core.BalanceDirection(*direction),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Balance alert set: %s %s\n", alert.Direction, a.money(alert.ThresholdMinor))
	case "balance-clear":
		if err := a.book.ClearBalanceAlert(ctx, userID); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Balance alert cleared")
	default:
		return fmt.Errorf("%w: unknown remind subcommand %q", errUsage, sub)
	}
	return nil
}

// schedule picks the reminder kind from whichever flag was given.
func (a *app) schedule(daily, at, limit string) (core.Schedule, error) {
	switch {
	case daily != "":
		return core.Daily{At: daily}, nil
	case at != "":
		t, err := time.ParseInLocation("2006-01-02 15:04", at, a.cfg.Location())
		if err != nil {
			if t, err = time.Parse(time.RFC3339, at); err != nil {
				return nil, fmt.Errorf("invalid instant %q: want YYYY-MM-DD HH:MM", at)
			}
		}
		return core.Custom{At: t}, nil
	case limit != "":
		minor, err := core.ParseDecimalToCents(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid limit: %w", err)
		}
		return core.SpendingLimit{ThresholdMinor: minor}, nil
	default:
		return nil, fmt.Errorf("%w: remind add needs -daily, -at or -limit", errUsage)
	}
}

func (a *app) describe(s core.Schedule) string {
	switch s := s.(type) {
	case core.Daily:
		return "daily " + s.At
	case core.Custom:
		return s.At.In(a.cfg.Location()).Format("2006-01-02 15:04")
	case core.SpendingLimit:
		return "over " + a.money(s.ThresholdMinor)
	default:
		return "?"
	}
}

// Notifications

func (a *app) notifications(ctx context.Context, args []string) error {
	userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	sub := "list"
	var rest []string
	if len(args) > 0 {
		sub, rest = args[0], args[1:]
	}

	idFlag := func(name string) (string, error) {
		fs := newFlagSet(name)
		id := fs.String("id", "", "notification id")
		if err := parseFlags(fs, rest); err != nil {
			return "", err
		}
		return *id, nil
	}

	switch sub {
	case "list":
		ns := a.feed.List(ctx, userID)
		fmt.Fprintf(a.out, "%d unread\n", a.feed.UnreadCount(ctx, userID))
		w := a.table()
		for _, n := range ns {
			mark := " "
			if !n.Read {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", mark, n.Timestamp.In(a.cfg.Location()).Format("2006-01-02 15:04"), n.Title, n.Message, n.ID)
		}
		return w.Flush()
	case "read":
		id, err := idFlag("notifications read")
		if err != nil {
			return err
		}
		return a.feed.MarkAsRead(ctx, userID, id)
	case "read-all":
		return a.feed.MarkAllAsRead(ctx, userID)
	case "delete":
		id, err := idFlag("notifications delete")
		if err != nil {
			return err
		}
		return a.feed.Delete(ctx, userID, id)
	case "clear":
		return a.feed.Clear(ctx, userID)
	default:
		return fmt.Errorf("%w: unknown notifications subcommand %q", errUsage, sub)
	}
}

// check runs one reminder pass for the signed-in user.
func (a *app) check(ctx context.Context) error {
	userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	fired, err := a.processor.CheckPass(ctx, userID, a.now())
	fmt.Fprintf(a.out, "%d reminders fired\n", fired)
	return err
}
