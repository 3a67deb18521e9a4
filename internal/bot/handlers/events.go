package handlers

import (
	"github.com/go-telegram/bot/models"

	"github.com/edgard/remindino/internal/messenger"
)

func textEvent(update *models.Update) (messenger.TextEvent, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return messenger.TextEvent{}, false
	}
	return messenger.TextEvent{
		UserID:       msg.From.ID,
		ChatID:       msg.Chat.ID,
		MessageID:    msg.ID,
		Text:         msg.Text,
		LanguageCode: msg.From.LanguageCode,
	}, true
}

// buttonEvent extracts a button press. When Telegram no longer has the
// message, MessageID stays 0 and replies go to the presser's private chat.
func buttonEvent(update *models.Update) (messenger.ButtonEvent, bool) {
	cq := update.CallbackQuery
	if cq == nil {
		return messenger.ButtonEvent{}, false
	}
	ev := messenger.ButtonEvent{
		UserID:     cq.From.ID,
		ChatID:     cq.From.ID,
		CallbackID: cq.ID,
		Data:       cq.Data,
	}
	switch {
	case cq.Message.Message != nil:
		ev.ChatID = cq.Message.Message.Chat.ID
		ev.MessageID = cq.Message.Message.ID
	case cq.Message.InaccessibleMessage != nil:
		ev.ChatID = cq.Message.InaccessibleMessage.Chat.ID
	}
	return ev, true
}
