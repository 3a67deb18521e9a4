package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/remindino/internal/config"
	"github.com/edgard/remindino/internal/messenger"
)

// Conversation is the organizer surface the Telegram handlers drive.
type Conversation interface {
	Start(ctx context.Context, ev messenger.TextEvent) error
	Help(ctx context.Context, ev messenger.TextEvent) error
	Info(ctx context.Context, ev messenger.TextEvent) error
	Menu(ctx context.Context, ev messenger.TextEvent) error
	HandleText(ctx context.Context, ev messenger.TextEvent) error
	HandleButton(ctx context.Context, ev messenger.ButtonEvent) error
}

// HandlerDeps provides dependencies for Telegram update handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Conversation Conversation
	Messenger    messenger.Messenger
}
