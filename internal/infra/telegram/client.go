// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"

	"gopkg.in/telebot.v3"

	domaintg "rre_filing_agent/internal/domain/telegram"
)

// maxMessageLen is Telegram's limit for a single text message.
const maxMessageLen = 4096

// AdminAlerter sends operator alerts to the admin chat. It implements lifecycle.Alerter.
type AdminAlerter struct {
	sender  domaintg.Sender
	adminID int64
}

func NewAdminAlerter(sender domaintg.Sender, adminTelegramID int64) *AdminAlerter {
	return &AdminAlerter{sender: sender, adminID: adminTelegramID}
}

// Alert sends text to the admin chat, truncated to fit a single message.
func (a *AdminAlerter) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text = "⚠️ " + text
	if r := []rune(text); len(r) > maxMessageLen {
		text = string(r[:maxMessageLen-1]) + "…"
	}
	recipient := &telebot.User{ID: a.adminID}
	if _, err := a.sender.Send(recipient, text, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("failed to send alert to admin chat: %w", err)
	}
	return nil
}
