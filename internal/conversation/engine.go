// Package conversation drives the multi-step dialogues of the organizer:
// onboarding, item creation, settings and the menus around them.
//
// The Engine is an event handler. Each inbound text or button press is
// handled under the sender's own lock, resumes from the State stored for
// that user, and either advances it, re-prompts after a validation error,
// or finalizes the flow. Finalizing persists the draft, flushes the flow's
// messages through the Tracker and re-arms the affected jobs.
package conversation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/remindino/internal/database"
	"github.com/edgard/remindino/internal/i18n"
	"github.com/edgard/remindino/internal/messenger"
	"github.com/edgard/remindino/internal/metrics"
	"github.com/edgard/remindino/internal/report"
)

// Store is the data access the engine needs.
type Store interface {
	report.Store
	FindUserByID(ctx context.Context, userID int64) (*database.UserProfile, error)
	UpsertUser(ctx context.Context, profile *database.UserProfile) error
	CreateTask(ctx context.Context, task *database.Task) error
	CreateGoal(ctx context.Context, goal *database.Goal) error
	CreateReminder(ctx context.Context, reminder *database.Reminder) error
	CreateCountdown(ctx context.Context, countdown *database.Countdown) error
	CreateWeeklyEvent(ctx context.Context, event *database.WeeklyEvent) error
	CreateQuote(ctx context.Context, quote *database.Quote) error
	ListQuotes(ctx context.Context, userID int64) ([]*database.Quote, error)
	DeleteByID(ctx context.Context, kind database.EntityKind, id, userID int64) error
	MarkDone(ctx context.Context, kind database.EntityKind, id, userID int64) error
}

// Planner arms the jobs derived from what a flow saved.
type Planner interface {
	ArmUser(ctx context.Context, profile *database.UserProfile) error
	ArmReminder(profile *database.UserProfile, r *database.Reminder) error
	ArmCountdown(profile *database.UserProfile, c *database.Countdown) error
	ArmWeeklyEvent(profile *database.UserProfile, ev *database.WeeklyEvent) error
	DisarmItem(kind database.EntityKind, id int64)
}

// Deps holds the collaborators of the Engine. States and Tracker are
// created when nil.
type Deps struct {
	Logger    *slog.Logger
	Store     Store
	Messenger messenger.Messenger
	Planner   Planner
	Clock     clockwork.Clock
	States    *States
	Tracker   *Tracker
}

type flow interface {
	begin(t *turn) error
	text(t *turn, text string) error
	// button reports false when data is not an answer to the current step.
	button(t *turn, data string) (bool, error)
}

// Engine is the per-user conversation state machine.
type Engine struct {
	deps  Deps
	log   *slog.Logger
	flows map[FlowKind]flow

	mu    sync.Mutex
	locks map[int64]*userLock
}

// userLock serializes the events of one user. refs counts holders and
// waiters; the entry is dropped when it reaches zero.
type userLock struct {
	sync.Mutex
	refs int
}

// New creates an Engine.
func New(deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.States == nil {
		deps.States = NewStates()
	}
	if deps.Tracker == nil {
		deps.Tracker = NewTracker(deps.Messenger, deps.Logger)
	}
	return &Engine{
		deps: deps,
		log:  deps.Logger.With("component", "conversation"),
		flows: map[FlowKind]flow{
			FlowOnboarding: onboardingFlow{},
			FlowSettings:   settingsFlow{},
			FlowTask:       taskFlow{},
			FlowGoal:       goalFlow{},
			FlowReminder:   reminderFlow{},
			FlowCountdown:  countdownFlow{},
			FlowWeekly:     weeklyFlow{},
			FlowQuote:      quoteFlow{},
		},
		locks: make(map[int64]*userLock),
	}
}

// States exposes the state table, mainly for inspection in tests.
func (e *Engine) States() *States { return e.deps.States }

// Tracker exposes the flow message tracker.
func (e *Engine) Tracker() *Tracker { return e.deps.Tracker }

func (e *Engine) lock(userID int64) func() {
	e.mu.Lock()
	l, ok := e.locks[userID]
	if !ok {
		l = &userLock{}
		e.locks[userID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, userID)
		}
		e.mu.Unlock()
	}
}

// turn is the context of handling one inbound event.
type turn struct {
	ctx    context.Context
	e      *Engine
	userID int64
	chatID int64
	// messageID is the message carrying the pressed button, 0 for text.
	messageID int
	profile   *database.UserProfile
	state     *State
	answer    string
}

func (e *Engine) newTurn(ctx context.Context, userID, chatID int64) (*turn, error) {
	profile, err := e.deps.Store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile of user %d: %w", userID, err)
	}
	t := &turn{ctx: ctx, e: e, userID: userID, chatID: chatID, profile: profile}
	if st, ok := e.deps.States.Get(userID); ok {
		t.state = &st
	}
	return t, nil
}

// settle stores the state the turn ended with.
func (e *Engine) settle(t *turn) {
	if t.state != nil {
		e.deps.States.Put(t.userID, *t.state)
	}
}

func (t *turn) locale() string {
	if t.state != nil && t.state.Draft.Locale != "" {
		return t.state.Draft.Locale
	}
	if t.profile != nil {
		return t.profile.Locale
	}
	return i18n.DefaultLocale
}

func (t *turn) tr(key string, params i18n.Params) string {
	return i18n.Translate(key, t.locale(), params)
}

func (t *turn) location() *time.Location {
	if t.profile == nil {
		return time.UTC
	}
	loc, err := t.profile.Location()
	if err != nil {
		t.e.log.WarnContext(t.ctx, "Falling back to UTC", "user_id", t.userID, "error", err)
		return time.UTC
	}
	return loc
}

func (t *turn) now() time.Time {
	return t.e.deps.Clock.Now()
}

// send sends a message that is not part of any flow.
func (t *turn) send(text string, kb messenger.Keyboard) error {
	if _, err := t.e.deps.Messenger.SendMessage(t.ctx, t.chatID, text, kb); err != nil {
		return fmt.Errorf("failed to send message to user %d: %w", t.userID, err)
	}
	return nil
}

// show replaces the pressed message, or sends a new one for text events.
func (t *turn) show(text string, kb messenger.Keyboard) error {
	if t.messageID != 0 {
		err := t.e.deps.Messenger.EditMessage(t.ctx, t.chatID, t.messageID, text, kb)
		if err == nil {
			return nil
		}
		t.e.log.DebugContext(t.ctx, "Edit failed, sending instead", "user_id", t.userID, "error", err)
	}
	return t.send(text, kb)
}

// sendTracked sends a message that belongs to the active flow.
func (t *turn) sendTracked(text string, kb messenger.Keyboard) error {
	id, err := t.e.deps.Messenger.SendMessage(t.ctx, t.chatID, text, kb)
	if err != nil {
		return fmt.Errorf("failed to send prompt to user %d: %w", t.userID, err)
	}
	t.e.deps.Tracker.TrackSent(t.userID, id)
	return nil
}

// prompt moves the flow to step and asks for its input. After a button
// press the pressed message is edited in place.
func (t *turn) prompt(step Step, text string, kb messenger.Keyboard) error {
	t.state.Step = step
	t.state.Prompt = text
	if t.messageID != 0 {
		err := t.e.deps.Messenger.EditMessage(t.ctx, t.chatID, t.messageID, text, kb)
		if err == nil {
			return nil
		}
		t.e.log.DebugContext(t.ctx, "Edit failed, sending prompt instead", "user_id", t.userID, "error", err)
	}
	return t.sendTracked(text, kb)
}

// reject re-prompts the current step after invalid input.
func (t *turn) reject(key string, params i18n.Params) error {
	text := t.tr(key, params)
	if t.state.Prompt != "" {
		text += "\n\n" + t.state.Prompt
	}
	return t.sendTracked(text, nil)
}

// useButtons answers text sent while the step waits for a button.
func (t *turn) useButtons() error {
	return t.sendTracked(t.tr("use_buttons", nil), nil)
}

// fail reports a failed save; the flow stays at its step.
func (t *turn) fail(err error) error {
	if sendErr := t.sendTracked(t.tr("save_failed", nil), nil); sendErr != nil {
		t.e.log.WarnContext(t.ctx, "Failed to report save failure", "user_id", t.userID, "error", sendErr)
	}
	return err
}

// finish ends the flow: its messages are deleted, the state is dropped and
// the confirmation is sent outside the flow.
func (t *turn) finish(text string, kb messenger.Keyboard) error {
	kind := t.state.Flow
	t.e.deps.Tracker.Flush(t.ctx, t.userID, t.state.ChatID)
	t.e.deps.States.Delete(t.userID)
	t.state = nil
	t.messageID = 0
	metrics.FlowCompleted(string(kind))
	t.e.log.InfoContext(t.ctx, "Flow completed", "user_id", t.userID, "flow", kind)
	return t.send(text, kb)
}

// begin starts a flow at its first step, or at step when given. An active
// flow is abandoned and its messages deleted.
func (e *Engine) begin(t *turn, kind FlowKind, step Step, draft Draft, revisit bool) error {
	if t.state != nil {
		e.log.InfoContext(t.ctx, "Replacing active flow", "user_id", t.userID, "old_flow", t.state.Flow, "new_flow", kind)
		e.deps.Tracker.Flush(t.ctx, t.userID, t.state.ChatID)
	}
	t.state = &State{Flow: kind, Step: step, ChatID: t.chatID, Revisit: revisit, Draft: draft}
	t.messageID = 0
	return e.flows[kind].begin(t)
}

// StartFlow starts kind for the user, replacing any active flow.
func (e *Engine) StartFlow(ctx context.Context, userID, chatID int64, kind FlowKind, draft Draft) error {
	if _, ok := e.flows[kind]; !ok {
		return fmt.Errorf("unknown flow %q", kind)
	}
	unlock := e.lock(userID)
	defer unlock()

	t, err := e.newTurn(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if t.profile == nil {
		return t.send(i18n.T("start_first", i18n.DefaultLocale), nil)
	}
	err = e.begin(t, kind, "", draft, false)
	e.settle(t)
	return err
}

// Start handles /start: it creates the profile on first contact and begins
// onboarding.
func (e *Engine) Start(ctx context.Context, ev messenger.TextEvent) error {
	unlock := e.lock(ev.UserID)
	defer unlock()

	t, err := e.newTurn(ctx, ev.UserID, ev.ChatID)
	if err != nil {
		return err
	}
	if t.profile == nil {
		t.profile = &database.UserProfile{
			UserID:      ev.UserID,
			Locale:      i18n.Normalize(ev.LanguageCode),
			Timezone:    "UTC",
			SummaryMode: database.SummaryDisabled,
		}
		e.log.InfoContext(ctx, "New user", "user_id", ev.UserID, "locale", t.profile.Locale)
	}
	if t.profile.ChatID != ev.ChatID {
		t.profile.ChatID = ev.ChatID
		if err := e.deps.Store.UpsertUser(ctx, t.profile); err != nil {
			return fmt.Errorf("failed to save profile of user %d: %w", ev.UserID, err)
		}
	}

	err = e.begin(t, FlowOnboarding, "", Draft{Locale: t.profile.Locale}, false)
	e.deps.Tracker.TrackReceived(ev.UserID, ev.MessageID)
	e.settle(t)
	return err
}

func (e *Engine) command(ctx context.Context, ev messenger.TextEvent, run func(t *turn) error) error {
	unlock := e.lock(ev.UserID)
	defer unlock()

	t, err := e.newTurn(ctx, ev.UserID, ev.ChatID)
	if err != nil {
		return err
	}
	if t.profile == nil {
		return t.send(i18n.T("start_first", i18n.Normalize(ev.LanguageCode)), nil)
	}
	return run(t)
}

// Help sends the short feature overview.
func (e *Engine) Help(ctx context.Context, ev messenger.TextEvent) error {
	return e.command(ctx, ev, func(t *turn) error { return t.send(t.tr("help", nil), nil) })
}

// Info sends the detailed feature description.
func (e *Engine) Info(ctx context.Context, ev messenger.TextEvent) error {
	return e.command(ctx, ev, func(t *turn) error { return t.send(t.tr("info", nil), nil) })
}

// Menu sends the main menu.
func (e *Engine) Menu(ctx context.Context, ev messenger.TextEvent) error {
	return e.command(ctx, ev, func(t *turn) error { return t.send(t.tr("main_menu", nil), mainMenu(t.locale())) })
}

// HandleText feeds free text into the user's active flow. Text outside a
// flow is ignored.
func (e *Engine) HandleText(ctx context.Context, ev messenger.TextEvent) error {
	unlock := e.lock(ev.UserID)
	defer unlock()

	t, err := e.newTurn(ctx, ev.UserID, ev.ChatID)
	if err != nil {
		return err
	}
	if t.profile == nil {
		return t.send(i18n.T("start_first", i18n.Normalize(ev.LanguageCode)), nil)
	}
	if t.state == nil {
		e.log.DebugContext(ctx, "Text outside of a flow ignored", "user_id", ev.UserID)
		return nil
	}

	e.deps.Tracker.TrackReceived(ev.UserID, ev.MessageID)
	err = e.flows[t.state.Flow].text(t, strings.TrimSpace(ev.Text))
	e.settle(t)
	return err
}

// HandleButton routes a button press to the menus or to the active flow.
// Every press is answered; presses that fit nothing get the generic
// unhandled notice and leave the state untouched.
func (e *Engine) HandleButton(ctx context.Context, ev messenger.ButtonEvent) error {
	unlock := e.lock(ev.UserID)
	defer unlock()

	t, err := e.newTurn(ctx, ev.UserID, ev.ChatID)
	if err != nil {
		return err
	}
	t.messageID = ev.MessageID

	if t.profile == nil {
		t.answer = i18n.T("start_first", i18n.DefaultLocale)
	} else {
		err = e.routeButton(t, ev.Data)
		e.settle(t)
	}

	if ansErr := e.deps.Messenger.AnswerCallback(ctx, ev.CallbackID, t.answer); ansErr != nil {
		e.log.WarnContext(ctx, "Failed to answer callback", "user_id", ev.UserID, "error", ansErr)
	}
	return err
}

func (e *Engine) routeButton(t *turn, data string) error {
	switch {
	case strings.HasPrefix(data, menuPrefix), data == backMain:
		return e.menu(t, data)
	case strings.HasPrefix(data, managePrefix):
		return e.manage(t, data)
	case strings.HasPrefix(data, deletePrefix):
		return e.deleteItem(t, data)
	case strings.HasPrefix(data, donePrefix):
		return e.markDone(t, data)
	case strings.HasPrefix(data, settingsPrefix):
		return e.settings(t, data)
	case strings.HasPrefix(data, checkinPrefix):
		return e.checkinAction(t, data)
	}

	if t.state == nil {
		t.unhandled(data)
		return nil
	}
	ok, err := e.flows[t.state.Flow].button(t, data)
	if !ok {
		t.unhandled(data)
	}
	return err
}

func (t *turn) unhandled(data string) {
	t.e.log.DebugContext(t.ctx, "Unhandled button", "user_id", t.userID, "data", data)
	t.answer = t.tr("unhandled_action", nil)
}
