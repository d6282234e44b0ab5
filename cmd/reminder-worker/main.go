package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/auth"
	"tally/internal/cli"
	"tally/internal/ledger"
	"tally/internal/log"
	"tally/internal/notify"
	"tally/internal/services"
	"tally/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting reminder-worker")

	startCtx := context.Background()
	store := cli.OpenStore(startCtx, logger, cfg)
	defer cli.CloseStore(logger, store)

	ledgerStore := ledger.New(store.Store,
		ledger.WithLogger(logger),
		ledger.WithDefaultCurrency(cfg.Currency),
		ledger.WithRetention(cfg.SoftDeleteRetention))
	if err := ledgerStore.SeedCategories(startCtx); err != nil {
		logger.Warn("Failed to seed default categories", "error", err)
	}

	users := auth.New(store.Store, auth.WithLogger(logger), auth.WithCost(cfg.BcryptCost))

	// Notifications are announced on the broker when one is configured.
	var amqpClient *amqp.Client
	feedOpts := []notify.FeedOption{notify.WithFeedLogger(logger)}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without publishing", "error", err)
		} else {
			amqpClient = client
			defer amqpClient.Close()
			feedOpts = append(feedOpts, notify.WithPublisher(amqpClient))
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - notifications stay in the local feed")
	}

	book := notify.NewBook(store.Store, notify.WithBookLogger(logger))
	feed := notify.NewFeed(store.Store, feedOpts...)

	processor := services.NewReminderProcessor(store.Store, ledgerStore, book, feed, services.ProcessorConfig{
		Tolerance: cfg.ReminderTolerance,
		Location:  cfg.Location(),
		Currency:  cfg.Currency,
	}, logger)

	engine := services.NewEngine(processor, users.UserIDs, worker.NewTickerScheduler(logger),
		services.EngineConfig{Interval: cfg.ReminderInterval},
		services.WithPurger(ledgerStore),
		services.WithEngineLogger(logger))

	logger.Info("Reminder engine configured",
		"interval", cfg.ReminderInterval,
		"tolerance", cfg.ReminderTolerance,
		"backend", cfg.DataBackend)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, engine.Stop)

	g, gctx := errgroup.WithContext(ctx)

	task, err := engine.Start(gctx)
	if err != nil {
		logger.Error("Failed to start reminder engine", "error", err)
		os.Exit(1)
	}
	g.Go(func() error {
		select {
		case <-task.Done():
		case <-gctx.Done():
			engine.Stop()
		}
		return nil
	})

	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.ConsumeNotifications(gctx, func(msg *amqp.NotificationMessage) error {
				logger.Info("Notification delivered",
					log.FieldUserID, msg.UserID,
					log.FieldNotification, msg.Notification.ID,
					"title", msg.Notification.Title)
				return nil
			})
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Reminder-worker stopped with error", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Reminder-worker shutdown complete")
}
