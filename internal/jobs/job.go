// Package jobs describes scheduled work as plain data records and computes
// when each kind of job should fire for a user.
//
// A Job carries exactly one schedule: a one-shot instant (At), a fixed
// interval (Every) or a cron rule evaluated in the user's timezone (Cron).
// Jobs are keyed by ID; arming a job whose ID is already armed replaces it.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSchedulingComputation marks a stored preference that cannot be turned
// into a fire time, such as a corrupt summary time or unknown timezone.
var ErrSchedulingComputation = errors.New("cannot compute schedule")

// Kind identifies what a fired job should do.
type Kind string

const (
	KindSummaryDaily   Kind = "summary_daily"
	KindSummaryCustom  Kind = "summary_custom"
	KindRandomCheckin  Kind = "random_checkin"
	KindCheckinRearm   Kind = "checkin_rearm"
	KindWeeklyEvent    Kind = "weekly_event"
	KindNightly        Kind = "nightly"
	KindDueUpcoming    Kind = "due_upcoming"
	KindReminder       Kind = "reminder"
	KindCountdownAlert Kind = "countdown"
)

// Job is a data-only description of scheduled work.
type Job struct {
	ID     string
	Kind   Kind
	UserID int64
	ChatID int64
	// ItemID references the reminder, weekly event or countdown, when any.
	ItemID int64

	At    time.Time
	Every time.Duration
	Cron  string
}

// OneShot reports whether the job fires once and is then discarded.
func (j Job) OneShot() bool {
	return j.Cron == "" && j.Every == 0
}

// Validate checks that exactly one schedule is set.
func (j Job) Validate() error {
	set := 0
	if !j.At.IsZero() {
		set++
	}
	if j.Every != 0 {
		set++
	}
	if j.Cron != "" {
		set++
	}
	switch {
	case j.ID == "":
		return errors.New("job has no id")
	case set != 1:
		return fmt.Errorf("job %s must have exactly one schedule, has %d", j.ID, set)
	case j.Every < 0:
		return fmt.Errorf("job %s has negative interval %s", j.ID, j.Every)
	}
	return nil
}

// Handler runs a fired job.
type Handler func(ctx context.Context, job Job) error

func SummaryDailyID(userID int64) string  { return fmt.Sprintf("summary_daily_%d", userID) }
func SummaryCustomID(userID int64) string { return fmt.Sprintf("summary_custom_%d", userID) }
func CheckinRearmID(userID int64) string  { return fmt.Sprintf("checkin_rearm_%d", userID) }
func NightlyID(userID int64) string       { return fmt.Sprintf("nightly_%d", userID) }
func DueUpcomingID(userID int64) string   { return fmt.Sprintf("due_upcoming_%d", userID) }
func WeeklyEventID(eventID int64) string  { return fmt.Sprintf("weekly_event_%d", eventID) }
func ReminderID(reminderID int64) string  { return fmt.Sprintf("reminder_%d", reminderID) }
func CountdownID(countdownID int64) string {
	return fmt.Sprintf("countdown_%d", countdownID)
}

// RandomCheckinPrefix is shared by every check-in slot of one user.
func RandomCheckinPrefix(userID int64) string {
	return fmt.Sprintf("random_checkin_%d_", userID)
}

func RandomCheckinID(userID int64, slot int) string {
	return fmt.Sprintf("%s%d", RandomCheckinPrefix(userID), slot)
}
