// Package notify turns fired jobs into chat messages.
//
// Every job kind has one handler, registered with the scheduler through
// Register. Handlers resolve fresh data from the store, so a job armed for
// an item that was since deleted sends nothing. Delivery failures are
// returned to the scheduler, which logs and counts them without retrying.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/remindino/internal/database"
	"github.com/edgard/remindino/internal/i18n"
	"github.com/edgard/remindino/internal/jobs"
	"github.com/edgard/remindino/internal/messenger"
	"github.com/edgard/remindino/internal/report"
)

// Check-in quick actions.
const (
	CheckinAddTask      = "random_add_task"
	CheckinAddGoal      = "random_add_goal"
	CheckinAddReminder  = "random_add_reminder"
	CheckinAddCountdown = "random_add_countdown"
	CheckinIgnore       = "random_ignore"
)

// Registrar accepts job handlers by kind.
type Registrar interface {
	RegisterHandler(kind jobs.Kind, h jobs.Handler)
}

// Store is the data access dispatch needs.
type Store interface {
	report.Store
	FindUserByID(ctx context.Context, userID int64) (*database.UserProfile, error)
	GetReminder(ctx context.Context, id int64) (*database.Reminder, error)
	UpdateReminderTrigger(ctx context.Context, id int64, next time.Time) error
	GetCountdown(ctx context.Context, id int64) (*database.Countdown, error)
	GetWeeklyEvent(ctx context.Context, id int64) (*database.WeeklyEvent, error)
}

// Planner re-arms jobs that reschedule themselves after firing.
type Planner interface {
	ArmSummary(profile *database.UserProfile) error
	ArmRandomCheckins(profile *database.UserProfile) error
	ArmWeeklyEvent(profile *database.UserProfile, ev *database.WeeklyEvent) error
	ArmReminder(profile *database.UserProfile, r *database.Reminder) error
	DisarmItem(kind database.EntityKind, id int64)
}

// Deps holds the collaborators of the dispatch handlers.
type Deps struct {
	Logger     *slog.Logger
	Store      Store
	Messenger  messenger.Messenger
	Planner    Planner
	Clock      clockwork.Clock
	DueWindow  time.Duration
	WeeklyLead time.Duration
}

// Dispatcher implements one handler per job kind.
type Dispatcher struct {
	deps Deps
	log  *slog.Logger
}

// New creates a Dispatcher.
func New(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Dispatcher{deps: deps, log: deps.Logger.With("component", "notify")}
}

// Register installs a handler for every job kind.
func (d *Dispatcher) Register(r Registrar) {
	for kind, h := range d.Handlers() {
		r.RegisterHandler(kind, h)
	}
}

// Handlers returns the handler table keyed by job kind.
func (d *Dispatcher) Handlers() map[jobs.Kind]jobs.Handler {
	return map[jobs.Kind]jobs.Handler{
		jobs.KindSummaryDaily:   d.summaryDaily,
		jobs.KindSummaryCustom:  d.summaryCustom,
		jobs.KindRandomCheckin:  d.randomCheckin,
		jobs.KindCheckinRearm:   d.checkinRearm,
		jobs.KindWeeklyEvent:    d.weeklyEvent,
		jobs.KindNightly:        d.nightly,
		jobs.KindDueUpcoming:    d.dueUpcoming,
		jobs.KindReminder:       d.reminder,
		jobs.KindCountdownAlert: d.countdownAlert,
	}
}

// CheckinKeyboard builds the quick-action buttons of a check-in.
func CheckinKeyboard(locale string) messenger.Keyboard {
	btn := func(key, data string) messenger.Button {
		return messenger.Button{Text: i18n.T(key, locale), Data: data}
	}
	return messenger.Keyboard{
		{btn("checkin_add_task", CheckinAddTask), btn("checkin_add_goal", CheckinAddGoal)},
		{btn("checkin_add_reminder", CheckinAddReminder), btn("checkin_add_countdown", CheckinAddCountdown)},
		{btn("checkin_ignore", CheckinIgnore)},
	}
}

func (d *Dispatcher) profile(ctx context.Context, job jobs.Job) (*database.UserProfile, error) {
	profile, err := d.deps.Store.FindUserByID(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", job.UserID, err)
	}
	if profile == nil {
		return nil, fmt.Errorf("user %d not found for job %s", job.UserID, job.ID)
	}
	if profile.ChatID == 0 {
		profile.ChatID = job.ChatID
	}
	return profile, nil
}

func (d *Dispatcher) send(ctx context.Context, profile *database.UserProfile, job jobs.Job, text string, kb messenger.Keyboard) error {
	if _, err := d.deps.Messenger.SendMessage(ctx, profile.ChatID, text, kb); err != nil {
		return fmt.Errorf("failed to deliver %s to user %d: %w", job.Kind, profile.UserID, err)
	}
	return nil
}

func (d *Dispatcher) sendSummary(ctx context.Context, profile *database.UserProfile, job jobs.Job) error {
	text, err := report.Summary(ctx, d.deps.Store, profile, d.deps.Clock.Now())
	if err != nil {
		return err
	}
	return d.send(ctx, profile, job, text, nil)
}

// summaryDaily sends the summary and re-arms it for the next day, even when
// delivery failed.
func (d *Dispatcher) summaryDaily(ctx context.Context, job jobs.Job) error {
	profile, err := d.profile(ctx, job)
	if err != nil {
		return err
	}
	sendErr := d.sendSummary(ctx, profile, job)
	return errors.Join(sendErr, d.deps.Planner.ArmSummary(profile))
}

func (d *Dispatcher) summaryCustom(ctx context.Context, job jobs.Job) error {
	profile, err := d.profile(ctx, job)
	if err != nil {
		return err
	}
	return d.sendSummary(ctx, profile, job)
}

func (d *Dispatcher) randomCheckin(ctx context.Context, job jobs.Job) error {
	profile, err := d.profile(ctx, job)
	if err != nil {
		return err
	}
	return d.send(ctx, profile, job, i18n.T("checkin_prompt", profile.Locale), CheckinKeyboard(profile.Locale))
}

func (d *Dispatcher) checkinRearm(ctx context.Context, job jobs.Job) error {
	profile, err := d.profile(ctx, job)
	if err != nil {
		return err
	}
	return d.deps.Planner.ArmRandomCheckins(profile)
}

func (d *Dispatcher) weeklyEvent(ctx context.Context, job jobs.Job) error {
	ev, err := d.deps.Store.GetWeeklyEvent(ctx, job.ItemID)
	if err != nil {
		return fmt.Errorf("failed to load weekly event %d: %w", job.ItemID, err)
	}
	if ev == nil {
		d.log.DebugContext(ctx, "Weekly event gone, nothing to send", "event_id", job.ItemID)
		return nil
	}
	profile, err := d.profile(ctx, job)
	if err != nil {
		return err
	}

	text := i18n.Translate("weekly_event_soon", profile.Locale, i18n.Params{
		"minutes": int(d.deps.WeeklyLead / time.Minute),
		"title":   ev.Title,
		"time":    ev.TimeOfDay,
	})
	sendErr := d.send(ctx, profile, job, text, nil)
	return errors.Join(sendErr, d.deps.Planner.ArmWeeklyEvent(profile, ev))
}

func (d *Dispatcher) nightly(ctx context.Context, job jobs.Job) error {
	profile, err := d.profile(ctx, job)
	if err != nil {
		return err
	}
	text, ok, err := report.Nightly(ctx, d.deps.Store, profile, d.deps.Clock.Now())
	if err != nil || !ok {
		return err
	}
	return d.send(ctx, profile, job, text, nil)
}

func (d *Dispatcher) dueUpcoming(ctx context.Context, job jobs.Job) error {
	profile, err := d.profile(ctx, job)
	if err != nil {
		return err
	}
	text, ok, err := report.DueUpcoming(ctx, d.deps.Store, profile, d.deps.Clock.Now(), d.deps.DueWindow)
	if err != nil || !ok {
		return err
	}
	return d.send(ctx, profile, job, text, nil)
}

// reminder sends the reminder and, for repeating ones, stores and arms the
// next trigger.
func (d *Dispatcher) reminder(ctx context.Context, job jobs.Job) error {
	r, err := d.deps.Store.GetReminder(ctx, job.ItemID)
	if err != nil {
		return fmt.Errorf("failed to load reminder %d: %w", job.ItemID, err)
	}
	if r == nil {
		d.log.DebugContext(ctx, "Reminder gone, nothing to send", "reminder_id", job.ItemID)
		return nil
	}
	profile, err := d.profile(ctx, job)
	if err != nil {
		return err
	}

	sendErr := d.send(ctx, profile, job, i18n.Translate("reminder_fire", profile.Locale, i18n.Params{"title": r.Title}), nil)

	next, repeats := jobs.NextReminderTrigger(r, d.deps.Clock.Now())
	if !repeats {
		return sendErr
	}
	if err := d.deps.Store.UpdateReminderTrigger(ctx, r.ID, next); err != nil {
		return errors.Join(sendErr, err)
	}
	r.NextTriggerAt = next
	return errors.Join(sendErr, d.deps.Planner.ArmReminder(profile, r))
}

// countdownAlert sends the time left and disarms itself once the event is over.
func (d *Dispatcher) countdownAlert(ctx context.Context, job jobs.Job) error {
	c, err := d.deps.Store.GetCountdown(ctx, job.ItemID)
	if err != nil {
		return fmt.Errorf("failed to load countdown %d: %w", job.ItemID, err)
	}
	now := d.deps.Clock.Now()
	if c == nil || !c.EventAt.After(now) {
		d.deps.Planner.DisarmItem(database.EntityCountdown, job.ItemID)
		return nil
	}
	profile, err := d.profile(ctx, job)
	if err != nil {
		return err
	}

	text := i18n.Translate("countdown_alert", profile.Locale, i18n.Params{
		"title":     c.Title,
		"time_left": report.TimeLeft(now, c.EventAt, profile.Locale),
	})
	return d.send(ctx, profile, job, text, nil)
}
