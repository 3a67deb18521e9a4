package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/edgard/remindino/internal/messenger"
	"github.com/edgard/remindino/internal/resilience"
)

// API is the subset of *bot.Bot the Messenger calls.
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Messenger implements messenger.Messenger over the Bot API. Every outbound
// call waits on a shared token bucket, then runs through the circuit breaker.
type Messenger struct {
	api     API
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *slog.Logger
}

var _ messenger.Messenger = (*Messenger)(nil)

// NewMessenger wraps api. A nil limiter disables throttling and a nil
// breaker lets every call through.
func NewMessenger(api API, limiter *rate.Limiter, breaker *resilience.Breaker, logger *slog.Logger) *Messenger {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Messenger{api: api, limiter: limiter, breaker: breaker, logger: logger.With("component", "telegram_messenger")}
}

// NewBreaker builds the Bot API breaker. Client errors such as a blocked
// user or a vanished message do not count against Telegram's health.
func NewBreaker(failures int, cooldown time.Duration, logger *slog.Logger) *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerConfig{
		Name:        "telegram_api",
		MaxFailures: failures,
		Cooldown:    cooldown,
		Counts:      apiFault,
		Logger:      logger,
	})
}

func apiFault(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return !strings.Contains(msg, "bad request") && !strings.Contains(msg, "forbidden")
}

// NewLimiter builds the outbound limiter from requests per second and burst.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (m *Messenger) call(ctx context.Context, op func(ctx context.Context) error) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limiter: %w", err)
	}
	if m.breaker == nil {
		return op(ctx)
	}
	return m.breaker.Execute(ctx, op)
}

// SendMessage sends text with an optional inline keyboard and returns the new message id.
func (m *Messenger) SendMessage(ctx context.Context, chatID int64, text string, kb messenger.Keyboard) (int, error) {
	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if markup := inlineKeyboard(kb); markup != nil {
		params.ReplyMarkup = markup
	}
	var id int
	err := m.call(ctx, func(ctx context.Context) error {
		msg, err := m.api.SendMessage(ctx, params)
		if err != nil {
			return err
		}
		id = msg.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return id, nil
}

// EditMessage replaces the text and keyboard of a message the bot sent.
func (m *Messenger) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb messenger.Keyboard) error {
	params := &bot.EditMessageTextParams{ChatID: chatID, MessageID: messageID, Text: text}
	if markup := inlineKeyboard(kb); markup != nil {
		params.ReplyMarkup = markup
	}
	err := m.call(ctx, func(ctx context.Context) error {
		_, err := m.api.EditMessageText(ctx, params)
		return err
	})
	switch classify(err) {
	case nil:
		return nil
	case errNotModified:
		return nil
	case messenger.ErrNotFound:
		return fmt.Errorf("failed to edit message %d in chat %d: %w", messageID, chatID, messenger.ErrNotFound)
	}
	return fmt.Errorf("failed to edit message %d in chat %d: %w", messageID, chatID, err)
}

// DeleteMessage deletes a message. Messages that are already gone or too old
// to delete report messenger.ErrNotFound.
func (m *Messenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	err := m.call(ctx, func(ctx context.Context) error {
		_, err := m.api.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: messageID})
		return err
	})
	switch classify(err) {
	case nil:
		return nil
	case messenger.ErrNotFound:
		return fmt.Errorf("failed to delete message %d in chat %d: %w", messageID, chatID, messenger.ErrNotFound)
	}
	return fmt.Errorf("failed to delete message %d in chat %d: %w", messageID, chatID, err)
}

// AnswerCallback acknowledges a button press, optionally with a toast.
func (m *Messenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	err := m.call(ctx, func(ctx context.Context) error {
		_, err := m.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID, Text: text})
		return err
	})
	if err != nil {
		// callbacks expire after a short while; the press itself was handled
		m.logger.DebugContext(ctx, "Failed to answer callback query", "callback_id", callbackID, "error", err)
		return fmt.Errorf("failed to answer callback %s: %w", callbackID, err)
	}
	return nil
}

func inlineKeyboard(kb messenger.Keyboard) *models.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]models.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		if len(row) == 0 {
			continue
		}
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, buttons)
	}
	if len(rows) == 0 {
		return nil
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

var errNotModified = errors.New("message is not modified")

// classify maps Bot API error descriptions onto the errors callers branch on.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "message is not modified"):
		return errNotModified
	case strings.Contains(msg, "message to delete not found"),
		strings.Contains(msg, "message to edit not found"),
		strings.Contains(msg, "message can't be deleted"),
		strings.Contains(msg, "message can't be edited"):
		return messenger.ErrNotFound
	}
	return err
}
