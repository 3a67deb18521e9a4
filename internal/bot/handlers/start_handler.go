package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

// startHandler creates or refreshes the profile and begins onboarding.
type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	ev, ok := textEvent(update)
	if !ok {
		log.WarnContext(ctx, "Start handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	log.InfoContext(ctx, "Handling /start command", "chat_id", ev.ChatID, "user_id", ev.UserID)

	if err := h.deps.Conversation.Start(ctx, ev); err != nil {
		log.ErrorContext(ctx, "Failed to start onboarding", "error", err, "chat_id", ev.ChatID)
	}
}
