package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/edgard/remindino/internal/messenger"
)

// Trail is the set of message ids that belong to one user's active flow.
type Trail struct {
	Sent     []int
	Received []int
}

// Tracker records flow messages so they can be deleted once the flow ends.
type Tracker struct {
	msgr   messenger.Messenger
	logger *slog.Logger

	mu     sync.Mutex
	trails map[int64]*Trail
}

// NewTracker creates a Tracker that deletes through msgr.
func NewTracker(msgr messenger.Messenger, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tracker{
		msgr:   msgr,
		logger: logger.With("component", "tracker"),
		trails: make(map[int64]*Trail),
	}
}

func (t *Tracker) trail(userID int64) *Trail {
	tr, ok := t.trails[userID]
	if !ok {
		tr = &Trail{}
		t.trails[userID] = tr
	}
	return tr
}

// TrackSent records a message the bot sent as part of a flow.
func (t *Tracker) TrackSent(userID int64, messageID int) {
	if messageID == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	tr := t.trail(userID)
	tr.Sent = append(tr.Sent, messageID)
}

// TrackReceived records a message the user sent as part of a flow.
func (t *Tracker) TrackReceived(userID int64, messageID int) {
	if messageID == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	tr := t.trail(userID)
	tr.Received = append(tr.Received, messageID)
}

// Trail returns a copy of the user's tracked ids.
func (t *Tracker) Trail(userID int64) Trail {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.trails[userID]
	if !ok {
		return Trail{}
	}
	return Trail{
		Sent:     append([]int(nil), tr.Sent...),
		Received: append([]int(nil), tr.Received...),
	}
}

// Flush deletes every tracked message of the user and forgets them. A
// failed delete is logged and the rest still run.
func (t *Tracker) Flush(ctx context.Context, userID, chatID int64) {
	t.mu.Lock()
	tr := t.trails[userID]
	delete(t.trails, userID)
	t.mu.Unlock()

	if tr == nil {
		return
	}

	ids := append(append([]int(nil), tr.Sent...), tr.Received...)
	for _, id := range ids {
		err := t.msgr.DeleteMessage(ctx, chatID, id)
		switch {
		case err == nil:
		case errors.Is(err, messenger.ErrNotFound):
			t.logger.DebugContext(ctx, "Flow message already gone", "user_id", userID, "message_id", id)
		default:
			t.logger.WarnContext(ctx, "Failed to delete flow message", "user_id", userID, "message_id", id, "error", err)
		}
	}
}
