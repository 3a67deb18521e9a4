package database

import (
	"database/sql"
	"fmt"
	"time"
	_ "time/tzdata" // user timezones must resolve on hosts without zoneinfo
)

// SummaryMode selects how a user receives periodic summaries.
type SummaryMode string

const (
	SummaryDisabled SummaryMode = "disabled"
	SummaryDaily    SummaryMode = "daily"
	SummaryCustom   SummaryMode = "custom"
)

// UserProfile holds a user's settings. SummaryTime is a local wall-clock
// "HH:MM" string, not an instant.
type UserProfile struct {
	UserID               int64       `db:"user_id"`
	ChatID               int64       `db:"chat_id"`
	Locale               string      `db:"locale"`
	Timezone             string      `db:"timezone"`
	SummaryMode          SummaryMode `db:"summary_mode"`
	SummaryTime          string      `db:"summary_time"`
	SummaryIntervalHours int         `db:"summary_interval_hours"`
	RandomCheckins       int         `db:"random_checkins"`
	Onboarded            bool        `db:"onboarded"`
	CreatedAt            time.Time   `db:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at"`
}

// Location loads the profile's IANA timezone.
func (p *UserProfile) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("user %d has unusable timezone %q: %w", p.UserID, p.Timezone, err)
	}
	return loc, nil
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
)

// Task is a to-do item with an optional due instant.
type Task struct {
	ID        int64        `db:"id"`
	UserID    int64        `db:"user_id"`
	Title     string       `db:"title"`
	DueAt     sql.NullTime `db:"due_at"`
	Status    TaskStatus   `db:"status"`
	CreatedAt time.Time    `db:"created_at"`
}

// GoalFrequency is how often a goal is reviewed.
type GoalFrequency string

const (
	FrequencyDaily    GoalFrequency = "daily"
	FrequencyWeekly   GoalFrequency = "weekly"
	FrequencyMonthly  GoalFrequency = "monthly"
	FrequencySeasonal GoalFrequency = "seasonal"
	FrequencyYearly   GoalFrequency = "yearly"
)

var frequencyDays = map[GoalFrequency]int{
	FrequencyDaily:    1,
	FrequencyWeekly:   7,
	FrequencyMonthly:  30,
	FrequencySeasonal: 90,
	FrequencyYearly:   365,
}

// Valid reports whether f is a known frequency.
func (f GoalFrequency) Valid() bool {
	_, ok := frequencyDays[f]
	return ok
}

// NextCheck returns createdAt plus the fixed offset for f.
func (f GoalFrequency) NextCheck(createdAt time.Time) time.Time {
	return createdAt.Add(time.Duration(frequencyDays[f]) * 24 * time.Hour)
}

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

const (
	GoalInProgress GoalStatus = "in_progress"
	GoalDone       GoalStatus = "done"
)

// Goal is a long-running objective reviewed on a fixed cadence.
type Goal struct {
	ID          int64         `db:"id"`
	UserID      int64         `db:"user_id"`
	Title       string        `db:"title"`
	Frequency   GoalFrequency `db:"frequency"`
	NextCheckAt time.Time     `db:"next_check_at"`
	Status      GoalStatus    `db:"status"`
	CreatedAt   time.Time     `db:"created_at"`
}

// RepeatKind controls how a reminder recurs.
type RepeatKind string

const (
	RepeatOneTime    RepeatKind = "one_time"
	RepeatEveryHours RepeatKind = "every_x_hours"
	RepeatEveryDays  RepeatKind = "every_x_days"
	RepeatDaily      RepeatKind = "daily"
)

// Reminder fires at NextTriggerAt and, unless one-time, again after that.
// RepeatValue is set only for RepeatEveryHours and RepeatEveryDays.
type Reminder struct {
	ID            int64         `db:"id"`
	UserID        int64         `db:"user_id"`
	Title         string        `db:"title"`
	NextTriggerAt time.Time     `db:"next_trigger_at"`
	RepeatKind    RepeatKind    `db:"repeat_kind"`
	RepeatValue   sql.NullInt64 `db:"repeat_value"`
	CreatedAt     time.Time     `db:"created_at"`
}

// NotifySchedule controls periodic countdown alerts.
type NotifySchedule string

const (
	NotifyNone   NotifySchedule = "none"
	NotifyDaily  NotifySchedule = "daily"
	NotifyWeekly NotifySchedule = "weekly"
)

// Countdown tracks the time left until EventAt.
type Countdown struct {
	ID             int64          `db:"id"`
	UserID         int64          `db:"user_id"`
	Title          string         `db:"title"`
	EventAt        time.Time      `db:"event_at"`
	NotifySchedule NotifySchedule `db:"notify_schedule"`
	CreatedAt      time.Time      `db:"created_at"`
}

// WeeklyEvent recurs every week on DayOfWeek at the local "HH:MM" TimeOfDay.
type WeeklyEvent struct {
	ID        int64        `db:"id"`
	UserID    int64        `db:"user_id"`
	Title     string       `db:"title"`
	DayOfWeek time.Weekday `db:"day_of_week"`
	TimeOfDay string       `db:"time_of_day"`
	CreatedAt time.Time    `db:"created_at"`
}

// Quote is a user-supplied motivational quote.
type Quote struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Text      string    `db:"text"`
	CreatedAt time.Time `db:"created_at"`
}

// EntityKind names an item table for owner-scoped deletes.
type EntityKind string

const (
	EntityTask        EntityKind = "task"
	EntityGoal        EntityKind = "goal"
	EntityReminder    EntityKind = "reminder"
	EntityCountdown   EntityKind = "countdown"
	EntityWeeklyEvent EntityKind = "weekly_event"
	EntityQuote       EntityKind = "quote"
)

var entityTables = map[EntityKind]string{
	EntityTask:        "tasks",
	EntityGoal:        "goals",
	EntityReminder:    "reminders",
	EntityCountdown:   "countdowns",
	EntityWeeklyEvent: "weekly_events",
	EntityQuote:       "quotes",
}
