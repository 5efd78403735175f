package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"rre_filing_agent/internal/app/lifecycle"
	"rre_filing_agent/internal/infra/bootstrap"
	"rre_filing_agent/internal/infra/config"
	"rre_filing_agent/internal/infra/httpapi"
	"rre_filing_agent/internal/infra/logger"
	"rre_filing_agent/internal/infra/scheduler"
	"rre_filing_agent/internal/infra/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	mainLogger := logger.Init(cfg, "filer")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"storage":     cfg.Storage,
		"sftp_host":   cfg.SFTP.Host,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Telegram Bot (optional)
	var bot *telebot.Bot
	var alerter lifecycle.Alerter
	if cfg.TelegramToken != "" {
		botLogger := mainLogger.WithField("component", "telebot")
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) { // Global error handler
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram handler error")
			},
		})
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		alerter = telegram.NewAdminAlerter(bot, cfg.AdminTelegramID)
	}

	app, err := bootstrap.New(ctx, cfg, mainLogger, alerter)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not initialize application")
	}
	defer app.Close()

	filingScheduler := scheduler.NewFilingScheduler(app.Runner, mainLogger, cfg.CronSpecSubmit, cfg.CronSpecPoll, cfg.JobTimeout)
	if err := filingScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	if bot != nil {
		telegram.RegisterBotCommands(bot, cfg.AdminTelegramID, mainLogger)
		telegram.NewAdminHandlers(app.Manager, app.Runner, cfg.AdminTelegramID, mainLogger).RegisterAdminHandlers(bot)
		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go bot.Start()
		mainLogger.Info("Telegram admin commands registered.")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.New(app.Manager, app.Runner, app.Registry, mainLogger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done() // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server shutdown")
	}
	if bot != nil {
		bot.Stop()
	}
	filingScheduler.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
