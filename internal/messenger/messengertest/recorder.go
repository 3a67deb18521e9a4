// Package messengertest provides an in-memory Messenger that records every
// call, for use in tests.
package messengertest

import (
	"context"
	"sync"

	"github.com/edgard/remindino/internal/messenger"
)

// Sent is a recorded SendMessage or EditMessage call.
type Sent struct {
	ChatID    int64
	MessageID int
	Text      string
	Keyboard  messenger.Keyboard
	Edit      bool
}

// Deleted is a recorded DeleteMessage call.
type Deleted struct {
	ChatID    int64
	MessageID int
}

// Answer is a recorded AnswerCallback call.
type Answer struct {
	CallbackID string
	Text       string
}

// Recorder implements messenger.Messenger in memory. Message ids start at 1
// and increase with every send.
type Recorder struct {
	mu sync.Mutex

	nextID  int
	Sent    []Sent
	Deleted []Deleted
	Answers []Answer

	// SendErr, when set, fails every SendMessage.
	SendErr error
	// DeleteErr maps a message id to the error DeleteMessage returns for it.
	DeleteErr map[int]error
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{DeleteErr: make(map[int]error)}
}

func (r *Recorder) SendMessage(_ context.Context, chatID int64, text string, kb messenger.Keyboard) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SendErr != nil {
		return 0, r.SendErr
	}
	r.nextID++
	r.Sent = append(r.Sent, Sent{ChatID: chatID, MessageID: r.nextID, Text: text, Keyboard: kb})
	return r.nextID, nil
}

func (r *Recorder) EditMessage(_ context.Context, chatID int64, messageID int, text string, kb messenger.Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, Sent{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb, Edit: true})
	return nil
}

func (r *Recorder) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deleted = append(r.Deleted, Deleted{ChatID: chatID, MessageID: messageID})
	return r.DeleteErr[messageID]
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Answers = append(r.Answers, Answer{CallbackID: callbackID, Text: text})
	return nil
}

// Last returns the most recent send or edit.
func (r *Recorder) Last() Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Sent) == 0 {
		return Sent{}
	}
	return r.Sent[len(r.Sent)-1]
}

// Reset forgets all recorded calls but keeps the id counter.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = nil
	r.Deleted = nil
	r.Answers = nil
}

// HasButton reports whether kb contains a button with the given data.
func HasButton(kb messenger.Keyboard, data string) bool {
	for _, row := range kb {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}
