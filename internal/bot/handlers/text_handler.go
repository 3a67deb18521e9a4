package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewTextHandler returns the default handler. It feeds free text into the
// active flow and ignores every other kind of update.
func NewTextHandler(deps HandlerDeps) bot.HandlerFunc {
	return textHandler{deps}.Handle
}

type textHandler struct {
	deps HandlerDeps
}

func (h textHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "text")

	ev, ok := textEvent(update)
	if !ok || ev.Text == "" {
		log.DebugContext(ctx, "Ignoring update without text", "update_id", update.ID)
		return
	}

	if err := h.deps.Conversation.HandleText(ctx, ev); err != nil {
		log.ErrorContext(ctx, "Failed to handle text message", "error", err, "chat_id", ev.ChatID, "user_id", ev.UserID)
	}
}
