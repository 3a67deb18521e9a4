package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewCallbackHandler returns a handler for inline button presses.
func NewCallbackHandler(deps HandlerDeps) bot.HandlerFunc {
	return callbackHandler{deps}.Handle
}

type callbackHandler struct {
	deps HandlerDeps
}

func (h callbackHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "callback")

	ev, ok := buttonEvent(update)
	if !ok {
		log.WarnContext(ctx, "Callback handler received update without callback query", "update_id", update.ID)
		return
	}

	log.DebugContext(ctx, "Handling button press", "user_id", ev.UserID, "data", ev.Data)

	if err := h.deps.Conversation.HandleButton(ctx, ev); err != nil {
		log.ErrorContext(ctx, "Failed to handle button press", "error", err, "user_id", ev.UserID, "data", ev.Data)
	}
}
