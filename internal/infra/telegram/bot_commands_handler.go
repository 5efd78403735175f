// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterBotCommands registers /start and /help.
func RegisterBotCommands(b *telebot.Bot, adminTelegramID int64, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID != adminTelegramID {
			logCtx.Info("User is unknown")
			return c.Send("This bot only serves the filing operations team.")
		}
		return c.Send("Filing agent is running. Use /help for the list of commands.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if senderID != adminTelegramID {
			return c.Send("There are no commands available to you.")
		}
		return c.Send(helpText(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}

func helpText() string {
	var helpText strings.Builder
	helpText.WriteString("Filing admin commands:\n\n")
	helpText.WriteString("`/filing_stats`\n - Submission counts by status.\n\n")
	helpText.WriteString("`/filing_ping`\n - Check SFTP connectivity and list both remote directories.\n\n")
	helpText.WriteString("`/filing_enqueue <report_id>`\n - Queue a report for filing.\n\n")
	helpText.WriteString("`/filing_retry <report_id>`\n - Re-queue a rejected or needs-review filing.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}
