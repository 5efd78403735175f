package telegram

import "gopkg.in/telebot.v3"

// Sender delivers a message to a Telegram chat. *telebot.Bot satisfies it;
// tests use a recorder.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}
