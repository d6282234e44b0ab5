// Command tally is the command-line front end of the ledger: accounts,
// transactions, reminders and the notification feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"tally/internal/auth"
	"tally/internal/cli"
	"tally/internal/config"
	"tally/internal/kv"
	"tally/internal/ledger"
	"tally/internal/log"
	"tally/internal/notify"
	"tally/internal/services"
	"tally/internal/sheets"
	gsheet "tally/internal/sheets/google"
)

const usage = `usage: tally <command> [flags]

accounts:      signup, login, logout, whoami, profile, passwd
transactions:  add, edit, list, delete, restore, purge, categories
reports:       balance, overview, limit, export
reminders:     remind add|list|toggle|delete|balance|balance-clear
notifications: notifications list|read|read-all|delete|clear
engine:        check
`

var errUsage = errors.New("invalid usage")

// app holds the services one command invocation works with.
type app struct {
	cfg       *config.Config
	out       io.Writer
	now       func() time.Time
	logger    *log.Logger
	auth      *auth.Service
	ledger    *ledger.Store
	book      *notify.Book
	feed      *notify.Feed
	processor *services.ReminderProcessor
	exporter  func(ctx context.Context) (sheets.TransactionExporter, error)
}

func newApp(cfg *config.Config, store kv.Store, out io.Writer, logger *log.Logger, now func() time.Time) *app {
	a := &app{
		cfg:    cfg,
		out:    out,
		now:    now,
		logger: logger,
		auth: auth.New(store,
			auth.WithCost(cfg.BcryptCost),
			auth.WithDefaultCurrency(cfg.Currency),
			auth.WithClock(now),
			auth.WithLogger(logger)),
		ledger: ledger.New(store,
			ledger.WithClock(now),
			ledger.WithDefaultCurrency(cfg.Currency),
			ledger.WithRetention(cfg.SoftDeleteRetention),
			ledger.WithLocation(cfg.Location()),
			ledger.WithLogger(logger)),
		book: notify.NewBook(store, notify.WithBookClock(now), notify.WithBookLogger(logger)),
		feed: notify.NewFeed(store, notify.WithFeedClock(now), notify.WithFeedLogger(logger)),
	}
	a.processor = services.NewReminderProcessor(store, a.ledger, a.book, a.feed, services.ProcessorConfig{
		Tolerance: cfg.ReminderTolerance,
		Location:  cfg.Location(),
		Currency:  cfg.Currency,
	}, logger)
	a.exporter = func(ctx context.Context) (sheets.TransactionExporter, error) {
		return gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			Location:        cfg.Location(),
		}, logger)
	}
	return a
}

func main() {
	cli.LoadEnvFile()

	// Commands print their results; logs only matter when something breaks.
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	logger := cli.SetupLogger(level)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	store := cli.OpenStore(ctx, logger, cfg)

	a := newApp(cfg, store.Store, os.Stdout, logger, time.Now)
	if err := a.ledger.SeedCategories(ctx); err != nil {
		logger.Warn("Failed to seed default categories", "error", err)
	}

	err := a.run(ctx, os.Args[1:])
	cli.CloseStore(logger, store)
	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "tally:", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "signup":
		return a.signup(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami(ctx)
	case "profile":
		return a.profile(ctx, rest)
	case "passwd":
		return a.passwd(ctx, rest)
	case "add":
		return a.add(ctx, rest)
	case "edit":
		return a.edit(ctx, rest)
	case "list":
		return a.list(ctx, rest)
	case "delete":
		return a.setDeleted(ctx, rest, true)
	case "restore":
		return a.setDeleted(ctx, rest, false)
	case "purge":
		return a.purge(ctx)
	case "categories":
		return a.categories(ctx, rest)
	case "balance":
		return a.balance(ctx)
	case "overview":
		return a.overview(ctx, rest)
	case "limit":
		return a.limit(ctx)
	case "export":
		return a.export(ctx, rest)
	case "remind":
		return a.remind(ctx, rest)
	case "notifications":
		return a.notifications(ctx, rest)
	case "check":
		return a.check(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// session returns the signed-in user or ErrNotSignedIn.
func (a *app) session(ctx context.Context) (string, error) {
	s, ok := a.auth.CurrentUser(ctx)
	if !ok {
		return "", auth.ErrNotSignedIn
	}
	return s.ID, nil
}
