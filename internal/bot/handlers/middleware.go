// Package handlers contains Telegram bot command, text and button handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/remindino/internal/i18n"
)

// PrivateOnly drops updates from groups and channels. Messages get a short
// reply; button presses are ignored.
func PrivateOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			chat, ok := updateChat(update)
			if !ok || chat.Type == models.ChatTypePrivate {
				next(ctx, bot, update)
				return
			}

			log := deps.Logger.With("middleware", "PrivateOnly")
			log.WarnContext(ctx, "Ignoring update from non-private chat", "chat_id", chat.ID, "chat_type", chat.Type)

			if update.Message == nil || deps.Messenger == nil {
				return
			}
			locale := ""
			if update.Message.From != nil {
				locale = update.Message.From.LanguageCode
			}
			if _, err := deps.Messenger.SendMessage(ctx, chat.ID, i18n.T("private_only", i18n.Normalize(locale)), nil); err != nil {
				log.ErrorContext(ctx, "Failed to send private-only notice", "error", err, "chat_id", chat.ID)
			}
		}
	}
}

func updateChat(update *models.Update) (models.Chat, bool) {
	switch {
	case update.Message != nil:
		return update.Message.Chat, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil:
		return update.CallbackQuery.Message.Message.Chat, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message.InaccessibleMessage != nil:
		return update.CallbackQuery.Message.InaccessibleMessage.Chat, true
	}
	return models.Chat{}, false
}
