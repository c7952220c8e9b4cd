package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"property_due_alerts/internal/app"
	"property_due_alerts/internal/domain/obligation"
	"property_due_alerts/internal/infra/config"
	"property_due_alerts/internal/infra/database"
	"property_due_alerts/internal/infra/logger"
	"property_due_alerts/internal/infra/metrics"
	"property_due_alerts/internal/infra/notify"
	"property_due_alerts/internal/infra/scheduler"
	"property_due_alerts/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/telebot.v3"
)

// runtime is everything a subcommand needs after startup.
type runtime struct {
	cfg          *config.AppConfig
	store        *database.Store
	bot          *telebot.Bot
	alertService *app.AlertService
	adminService *app.AdminService
}

func bootstrap(ctx context.Context, migrate bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"driver":      cfg.DatabaseDriver,
		"channel":     cfg.AlertChannel,
		"admin_id":    cfg.AdminTelegramID,
	}).Info("Configuration loaded")

	store, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger.Component("database"))
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	mainLogger.Info("Database connection established successfully")

	if migrate {
		if err := store.Migrate(ctx, logger.Component("migrations")); err != nil {
			store.Close()
			return nil, fmt.Errorf("could not apply migrations: %w", err)
		}
	}

	rt := &runtime{cfg: cfg, store: store}
	if cfg.TelegramToken != "" {
		rt.bot, err = newBot(cfg.TelegramToken)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
	}

	leadTimes, err := obligation.ParseLeadTimes(cfg.DefaultLeadTimes)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("invalid DEFAULT_LEAD_TIMES: %w", err)
	}

	var tgClient telegram.Client
	if rt.bot != nil {
		tgClient = telegram.NewTelebotAdapter(rt.bot)
	}
	dispatcher, err := notify.New(cfg, tgClient, logger.Component("dispatcher"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("could not build %s dispatcher: %w", cfg.AlertChannel, err)
	}

	appLogger := logrus.NewEntry(logger.Log)
	scanner := app.NewAlertScanner(store.Obligations, appLogger)
	tracker := app.NewDispatchTracker(store.Dispatch, appLogger)
	lifecycle := app.NewObligationLifecycle(store.Obligations, leadTimes, appLogger)
	rt.alertService = app.NewAlertService(scanner, tracker, lifecycle, dispatcher, app.DispatchOptions{
		Timeout:     cfg.DispatchTimeout,
		Concurrency: cfg.DispatchConcurrency,
		RatePerSec:  cfg.DispatchRatePerSec,
	}, appLogger)
	rt.adminService = app.NewAdminService(lifecycle, rt.alertService, cfg.AdminTelegramID, cfg.OwnerID)
	mainLogger.Info("Services initialized")

	return rt, nil
}

func newBot(token string) (*telebot.Bot, error) {
	botLogger := logger.Component("telebot")
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		Client: &http.Client{Timeout: time.Minute}, // also bounds alert sends that outlive DISPATCH_TIMEOUT
		OnError: func(err error, c telebot.Context) {
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{
					"text":      c.Text(),
					"sender_id": c.Sender().ID,
					"chat_id":   c.Chat().ID,
				})
			}
			entry.Error("Telegram handler failed")
		},
	}
	return telebot.NewBot(pref)
}

// asOfDate resolves --as-of, defaulting to today in the configured zone.
func asOfDate(cfg *config.AppConfig) (time.Time, error) {
	if asOfFlag == "" {
		return obligation.DateOf(time.Now().In(cfg.Location)), nil
	}
	return obligation.ParseDate(asOfFlag)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx, !skipMigrate)
	if err != nil {
		return err
	}
	defer rt.store.Close()
	mainLogger := logger.Component("main")

	alertScheduler := scheduler.NewAlertScheduler(rt.alertService, logger.Component("scheduler"), rt.cfg.CronSpecAlertCycle, rt.cfg.Location)
	if err := alertScheduler.Start(ctx); err != nil {
		return fmt.Errorf("could not start scheduler: %w", err)
	}

	if rt.cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, rt.cfg.MetricsAddr, logger.Component("metrics")); err != nil {
				mainLogger.WithError(err).Error("Metrics endpoint stopped")
			}
		}()
	}

	if rt.bot != nil {
		handlerLogger := logger.Component("telegram")
		telegram.RegisterBotCommands(rt.bot, rt.cfg.AdminTelegramID, handlerLogger)
		telegram.RegisterAdminHandlers(ctx, rt.bot, rt.adminService, rt.cfg.Location, handlerLogger)
		telegram.RegisterAlertResponseHandlers(ctx, rt.bot, rt.adminService, rt.cfg.Location, handlerLogger)
		mainLogger.Info("Telegram handlers registered")
		go rt.bot.Start()
	} else {
		mainLogger.Warn("TELEGRAM_TOKEN is empty, bot commands are disabled")
	}

	mainLogger.Info("Application setup complete, waiting for shutdown signal")
	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	alertScheduler.Stop()
	if rt.bot != nil {
		rt.bot.Stop()
	}
	mainLogger.Info("Application shut down gracefully")
	return nil
}

func runCycle(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	asOf, err := asOfDate(rt.cfg)
	if err != nil {
		return err
	}
	report, err := rt.alertService.RunScanAndDispatchCycle(ctx, asOf)
	metrics.RecordCycle(report, err)
	if report != nil {
		printReport(report)
	}
	return err
}

func runScan(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	asOf, err := asOfDate(rt.cfg)
	if err != nil {
		return err
	}
	alerts, err := rt.alertService.PreviewDueAlerts(cmd.Context(), asOf)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Printf("No alerts due on %s.\n", asOf.Format(obligation.DateLayout))
		return nil
	}
	for _, a := range alerts {
		fmt.Printf("%s  %-12s %-16s %s (due %s)  %s\n",
			a.FireDate.Format(obligation.DateLayout),
			a.Obligation.Kind,
			a.Rule.LeadTime,
			a.Obligation.Title,
			a.Obligation.DueDate.Format(obligation.DateLayout),
			a.Rule.ID,
		)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)

	store, err := database.Open(cmd.Context(), cfg.DatabaseDriver, cfg.DatabaseURL, logger.Component("database"))
	if err != nil {
		return fmt.Errorf("could not connect to database: %w", err)
	}
	defer store.Close()
	return store.Migrate(cmd.Context(), logger.Component("migrations"))
}

func printReport(r *app.CycleReport) {
	fmt.Printf("as of %s: due=%d claimed=%d sent=%d failed=%d skipped=%d deferred=%d marked_overdue=%d took=%s\n",
		r.AsOf.Format(obligation.DateLayout), r.Due, r.Claimed, r.Sent, r.Failed,
		r.Skipped, r.Deferred, r.MarkedOverdue, r.Duration)
	for _, f := range r.Failures {
		fmt.Fprintf(os.Stderr, "  failed %s rule=%s receipt=%s: %v\n", f.ObligationID, f.RuleID, f.ReceiptID, f.Err)
	}
}
