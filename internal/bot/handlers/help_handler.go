package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/remindino/internal/messenger"
)

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler{deps: deps, name: "help", run: deps.Conversation.Help}.Handle
}

// NewInfoHandler returns a handler for the /info command.
func NewInfoHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler{deps: deps, name: "info", run: deps.Conversation.Info}.Handle
}

// NewMenuHandler returns a handler for the /menu command.
func NewMenuHandler(deps HandlerDeps) bot.HandlerFunc {
	return commandHandler{deps: deps, name: "menu", run: deps.Conversation.Menu}.Handle
}

// commandHandler serves the stateless commands that only render text.
type commandHandler struct {
	deps HandlerDeps
	name string
	run  func(ctx context.Context, ev messenger.TextEvent) error
}

func (h commandHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.name)

	ev, ok := textEvent(update)
	if !ok {
		log.WarnContext(ctx, "Command handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	log.InfoContext(ctx, "Handling command", "command", h.name, "chat_id", ev.ChatID, "user_id", ev.UserID)

	if err := h.run(ctx, ev); err != nil {
		log.ErrorContext(ctx, "Failed to handle command", "command", h.name, "error", err, "chat_id", ev.ChatID)
	} else {
		log.DebugContext(ctx, "Successfully handled command", "command", h.name, "chat_id", ev.ChatID)
	}
}
