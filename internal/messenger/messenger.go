// Package messenger defines the transport-neutral chat surface the organizer
// talks to: outbound messages with inline buttons and inbound user events.
package messenger

import (
	"context"
	"errors"
)

// ErrNotFound is returned by DeleteMessage when the message is already gone.
var ErrNotFound = errors.New("message not found")

// Button is an inline button whose Data is echoed back in a ButtonEvent.
type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of buttons, one slice per row.
type Keyboard [][]Button

// Row builds a single-row keyboard.
func Row(buttons ...Button) Keyboard {
	return Keyboard{buttons}
}

// Column builds a keyboard with one button per row.
func Column(buttons ...Button) Keyboard {
	kb := make(Keyboard, 0, len(buttons))
	for _, b := range buttons {
		kb = append(kb, []Button{b})
	}
	return kb
}

// Messenger sends and manages chat messages.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// TextEvent is a plain text message from a user.
type TextEvent struct {
	UserID       int64
	ChatID       int64
	MessageID    int
	Text         string
	LanguageCode string
}

// ButtonEvent is a press on an inline button. MessageID identifies the
// message carrying the button, when the transport still has it.
type ButtonEvent struct {
	UserID     int64
	ChatID     int64
	MessageID  int
	CallbackID string
	Data       string
}
