package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/remindino/internal/config"
	"github.com/edgard/remindino/internal/database"
)

// Armer registers and removes jobs by id. Arm replaces any job with the same
// id; Disarm and DisarmPrefix are no-ops for unknown ids.
type Armer interface {
	Arm(job Job) error
	Disarm(id string)
	DisarmPrefix(prefix string)
}

// Store is the read access the planner needs to re-derive jobs.
type Store interface {
	ListUsers(ctx context.Context) ([]*database.UserProfile, error)
	ListReminders(ctx context.Context, userID int64) ([]*database.Reminder, error)
	ListCountdowns(ctx context.Context, userID int64) ([]*database.Countdown, error)
	ListWeeklyEvents(ctx context.Context, userID int64) ([]*database.WeeklyEvent, error)
}

// Settings are the parsed scheduler timing knobs.
type Settings struct {
	CheckinStart     ClockTime
	CheckinEnd       ClockTime
	NightlyAt        ClockTime
	CountdownAlertAt ClockTime
	DueWindow        time.Duration
	WeeklyLead       time.Duration
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		CheckinStart:     ClockTime{Hour: 8},
		CheckinEnd:       ClockTime{Hour: 21},
		NightlyAt:        ClockTime{Hour: 21},
		CountdownAlertAt: ClockTime{Hour: 9},
		DueWindow:        30 * time.Minute,
		WeeklyLead:       30 * time.Minute,
	}
}

// SettingsFromConfig parses the clock strings of cfg.
func SettingsFromConfig(cfg config.SchedulerConfig) (Settings, error) {
	s := Settings{DueWindow: cfg.DueWindow, WeeklyLead: cfg.WeeklyLead}
	for _, f := range []struct {
		dst *ClockTime
		src string
	}{
		{&s.CheckinStart, cfg.CheckinWindowStart},
		{&s.CheckinEnd, cfg.CheckinWindowEnd},
		{&s.NightlyAt, cfg.NightlyTime},
		{&s.CountdownAlertAt, cfg.CountdownAlertTime},
	} {
		c, err := ParseClockTime(f.src)
		if err != nil {
			return Settings{}, err
		}
		*f.dst = c
	}
	return s, nil
}

// Planner turns stored preferences and items into armed jobs.
type Planner struct {
	armer    Armer
	store    Store
	clock    clockwork.Clock
	settings Settings
	logger   *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPlanner creates a Planner. A nil rng draws from a randomly seeded source.
func NewPlanner(armer Armer, store Store, clock clockwork.Clock, settings Settings, rng *rand.Rand, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Planner{
		armer:    armer,
		store:    store,
		clock:    clock,
		settings: settings,
		rng:      rng,
		logger:   logger.With("component", "planner"),
	}
}

func location(p *database.UserProfile) (*time.Location, error) {
	loc, err := p.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchedulingComputation, err)
	}
	return loc, nil
}

// ArmUser (re)arms every job derived from the profile and its weekly events
// and countdowns. A job kind that cannot be computed is skipped; the rest
// still arm and the failures are joined into the returned error.
func (p *Planner) ArmUser(ctx context.Context, profile *database.UserProfile) error {
	errs := []error{
		p.ArmSummary(profile),
		p.ArmRandomCheckins(profile),
		p.ArmNightly(profile),
		p.ArmDueUpcoming(profile),
	}

	events, err := p.store.ListWeeklyEvents(ctx, profile.UserID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list weekly events: %w", err))
	}
	for _, ev := range events {
		errs = append(errs, p.ArmWeeklyEvent(profile, ev))
	}

	countdowns, err := p.store.ListCountdowns(ctx, profile.UserID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list countdowns: %w", err))
	}
	for _, c := range countdowns {
		errs = append(errs, p.ArmCountdown(profile, c))
	}

	if err := errors.Join(errs...); err != nil {
		p.logger.Warn("Some jobs could not be armed", "user_id", profile.UserID, "error", err)
		return err
	}
	return nil
}

// ArmSummary arms the daily or custom-interval summary and removes the other.
func (p *Planner) ArmSummary(profile *database.UserProfile) error {
	dailyID, customID := SummaryDailyID(profile.UserID), SummaryCustomID(profile.UserID)

	switch profile.SummaryMode {
	case database.SummaryDaily:
		p.armer.Disarm(customID)
		at, err := ParseClockTime(profile.SummaryTime)
		if err != nil {
			p.armer.Disarm(dailyID)
			return fmt.Errorf("%w: summary time %q for user %d: %v", ErrSchedulingComputation, profile.SummaryTime, profile.UserID, err)
		}
		loc, err := location(profile)
		if err != nil {
			p.armer.Disarm(dailyID)
			return err
		}
		return p.armer.Arm(Job{
			ID:     dailyID,
			Kind:   KindSummaryDaily,
			UserID: profile.UserID,
			ChatID: profile.ChatID,
			At:     NextDailyAt(p.clock.Now(), loc, at),
		})
	case database.SummaryCustom:
		p.armer.Disarm(dailyID)
		if profile.SummaryIntervalHours <= 0 || profile.SummaryIntervalHours > MaxIntervalHours {
			p.armer.Disarm(customID)
			return fmt.Errorf("%w: summary interval %d for user %d", ErrSchedulingComputation, profile.SummaryIntervalHours, profile.UserID)
		}
		return p.armer.Arm(Job{
			ID:     customID,
			Kind:   KindSummaryCustom,
			UserID: profile.UserID,
			ChatID: profile.ChatID,
			Every:  time.Duration(profile.SummaryIntervalHours) * time.Hour,
		})
	default:
		p.armer.Disarm(dailyID)
		p.armer.Disarm(customID)
		return nil
	}
}

// ArmRandomCheckins replaces the user's check-in slots for the current day
// and keeps the midnight re-arm job in step with the slot count.
func (p *Planner) ArmRandomCheckins(profile *database.UserProfile) error {
	p.armer.DisarmPrefix(RandomCheckinPrefix(profile.UserID))
	if profile.RandomCheckins <= 0 {
		p.armer.Disarm(CheckinRearmID(profile.UserID))
		return nil
	}

	loc, err := location(profile)
	if err != nil {
		p.armer.Disarm(CheckinRearmID(profile.UserID))
		return err
	}

	p.rngMu.Lock()
	instants := CheckinInstants(p.clock.Now(), loc, profile.RandomCheckins, p.settings.CheckinStart, p.settings.CheckinEnd, p.rng)
	p.rngMu.Unlock()

	var errs []error
	for i, at := range instants {
		errs = append(errs, p.armer.Arm(Job{
			ID:     RandomCheckinID(profile.UserID, i),
			Kind:   KindRandomCheckin,
			UserID: profile.UserID,
			ChatID: profile.ChatID,
			At:     at,
		}))
	}
	errs = append(errs, p.armer.Arm(Job{
		ID:     CheckinRearmID(profile.UserID),
		Kind:   KindCheckinRearm,
		UserID: profile.UserID,
		ChatID: profile.ChatID,
		Cron:   DailyCron(loc, ClockTime{}),
	}))
	return errors.Join(errs...)
}

// ArmNightly arms the evening preview of tomorrow's weekly events.
func (p *Planner) ArmNightly(profile *database.UserProfile) error {
	loc, err := location(profile)
	if err != nil {
		p.armer.Disarm(NightlyID(profile.UserID))
		return err
	}
	return p.armer.Arm(Job{
		ID:     NightlyID(profile.UserID),
		Kind:   KindNightly,
		UserID: profile.UserID,
		ChatID: profile.ChatID,
		Cron:   DailyCron(loc, p.settings.NightlyAt),
	})
}

// ArmDueUpcoming arms the fixed-interval due/upcoming digest.
func (p *Planner) ArmDueUpcoming(profile *database.UserProfile) error {
	return p.armer.Arm(Job{
		ID:     DueUpcomingID(profile.UserID),
		Kind:   KindDueUpcoming,
		UserID: profile.UserID,
		ChatID: profile.ChatID,
		Every:  p.settings.DueWindow,
	})
}

// ArmWeeklyEvent arms the warning before the event's next occurrence.
func (p *Planner) ArmWeeklyEvent(profile *database.UserProfile, ev *database.WeeklyEvent) error {
	at, err := ParseClockTime(ev.TimeOfDay)
	if err != nil {
		p.armer.Disarm(WeeklyEventID(ev.ID))
		return fmt.Errorf("%w: weekly event %d time %q: %v", ErrSchedulingComputation, ev.ID, ev.TimeOfDay, err)
	}
	loc, err := location(profile)
	if err != nil {
		p.armer.Disarm(WeeklyEventID(ev.ID))
		return err
	}

	fireAt, _ := NextWeeklyPreFire(p.clock.Now(), loc, ev.DayOfWeek, at, p.settings.WeeklyLead)
	return p.armer.Arm(Job{
		ID:     WeeklyEventID(ev.ID),
		Kind:   KindWeeklyEvent,
		UserID: profile.UserID,
		ChatID: profile.ChatID,
		ItemID: ev.ID,
		At:     fireAt,
	})
}

// ArmReminder arms a one-shot at the reminder's next trigger. A trigger in
// the past fires as soon as the scheduler runs.
func (p *Planner) ArmReminder(profile *database.UserProfile, r *database.Reminder) error {
	return p.armer.Arm(Job{
		ID:     ReminderID(r.ID),
		Kind:   KindReminder,
		UserID: profile.UserID,
		ChatID: profile.ChatID,
		ItemID: r.ID,
		At:     r.NextTriggerAt,
	})
}

// ArmCountdown arms periodic time-left alerts: daily, or weekly on the local
// weekday the countdown was created. Countdowns without alerts, or whose
// event has passed, are disarmed.
func (p *Planner) ArmCountdown(profile *database.UserProfile, c *database.Countdown) error {
	id := CountdownID(c.ID)
	if c.NotifySchedule == database.NotifyNone || !c.EventAt.After(p.clock.Now()) {
		p.armer.Disarm(id)
		return nil
	}

	loc, err := location(profile)
	if err != nil {
		p.armer.Disarm(id)
		return err
	}

	job := Job{
		ID:     id,
		Kind:   KindCountdownAlert,
		UserID: profile.UserID,
		ChatID: profile.ChatID,
		ItemID: c.ID,
	}
	switch c.NotifySchedule {
	case database.NotifyDaily:
		job.Cron = DailyCron(loc, p.settings.CountdownAlertAt)
	case database.NotifyWeekly:
		job.Cron = WeeklyCron(loc, p.settings.CountdownAlertAt, c.CreatedAt.In(loc).Weekday())
	default:
		p.armer.Disarm(id)
		return fmt.Errorf("%w: countdown %d has schedule %q", ErrSchedulingComputation, c.ID, c.NotifySchedule)
	}
	return p.armer.Arm(job)
}

// DisarmItem removes the job tied to a deleted item, if any.
func (p *Planner) DisarmItem(kind database.EntityKind, id int64) {
	switch kind {
	case database.EntityReminder:
		p.armer.Disarm(ReminderID(id))
	case database.EntityWeeklyEvent:
		p.armer.Disarm(WeeklyEventID(id))
	case database.EntityCountdown:
		p.armer.Disarm(CountdownID(id))
	}
}

// RestoreAll re-derives every job from the store, typically once at startup.
// Only onboarded users are armed. One-time reminders whose trigger has passed
// are treated as delivered; overdue repeating reminders fire once on start.
func (p *Planner) RestoreAll(ctx context.Context) error {
	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	var errs []error
	armed := 0
	for _, profile := range users {
		if !profile.Onboarded {
			continue
		}
		if err := p.ArmUser(ctx, profile); err != nil {
			errs = append(errs, err)
		}

		reminders, err := p.store.ListReminders(ctx, profile.UserID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to list reminders for user %d: %w", profile.UserID, err))
			continue
		}
		now := p.clock.Now()
		for _, r := range reminders {
			if r.RepeatKind == database.RepeatOneTime && !r.NextTriggerAt.After(now) {
				continue
			}
			errs = append(errs, p.ArmReminder(profile, r))
		}
		armed++
	}

	p.logger.Info("Restored scheduled jobs", "users", armed)
	return errors.Join(errs...)
}
