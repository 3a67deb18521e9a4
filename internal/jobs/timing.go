package jobs

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/edgard/remindino/internal/calendar"
	"github.com/edgard/remindino/internal/database"
)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime reads an "HH:MM" string.
func ParseClockTime(s string) (ClockTime, error) {
	h, m, err := calendar.ParseClock(s)
	if err != nil {
		return ClockTime{}, err
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

// On returns the instant at c on the local calendar day of day in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

func (c ClockTime) String() string {
	return calendar.FormatClock(c.Hour, c.Minute)
}

// NextDailyAt returns the next instant strictly after now at c local time,
// today or tomorrow.
func NextDailyAt(now time.Time, loc *time.Location, c ClockTime) time.Time {
	next := c.On(now, loc)
	if !next.After(now) {
		local := now.In(loc)
		next = time.Date(local.Year(), local.Month(), local.Day()+1, c.Hour, c.Minute, 0, 0, loc)
	}
	return next
}

// CheckinInstants picks n instants inside the local window [start, end]: the
// window is split into n equal slots and one instant is drawn uniformly from
// each, so results are ordered and disjoint. A window already under way is
// clipped to [now, end]; one already over moves to tomorrow.
func CheckinInstants(now time.Time, loc *time.Location, n int, start, end ClockTime, rng *rand.Rand) []time.Time {
	if n <= 0 {
		return nil
	}

	from, to := start.On(now, loc), end.On(now, loc)
	switch {
	case !now.Before(to):
		local := now.In(loc)
		tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 12, 0, 0, 0, loc)
		from, to = start.On(tomorrow, loc), end.On(tomorrow, loc)
	case now.After(from):
		from = now
	}

	slot := to.Sub(from) / time.Duration(n)
	instants := make([]time.Time, n)
	for i := range instants {
		at := from.Add(time.Duration(i) * slot)
		if slot > 0 {
			at = at.Add(time.Duration(rng.Int64N(int64(slot))))
		}
		instants[i] = at
	}
	return instants
}

// NextWeeklyPreFire returns when to warn about the next occurrence of a
// weekly event, lead before it. If this week's warning time has already
// passed, the occurrence rolls to next week.
func NextWeeklyPreFire(now time.Time, loc *time.Location, day time.Weekday, c ClockTime, lead time.Duration) (fireAt, occurrence time.Time) {
	local := now.In(loc)
	ahead := (int(day) - int(local.Weekday()) + 7) % 7
	occurrence = time.Date(local.Year(), local.Month(), local.Day()+ahead, c.Hour, c.Minute, 0, 0, loc)
	if !occurrence.Add(-lead).After(now) {
		occurrence = time.Date(occurrence.Year(), occurrence.Month(), occurrence.Day()+7, c.Hour, c.Minute, 0, 0, loc)
	}
	return occurrence.Add(-lead), occurrence
}

// Upper bounds on user-chosen intervals. Larger values overflow time.Duration
// or land beyond any useful horizon.
const (
	MaxIntervalHours = 8760
	MaxIntervalDays  = 3650
)

func repeatValue(r *database.Reminder, max int64) (int64, bool) {
	v := r.RepeatValue.Int64
	return v, r.RepeatValue.Valid && v > 0 && v <= max
}

// NextReminderTrigger advances a repeating reminder past now. It returns
// false for one-time reminders and malformed or out-of-range repeat rules.
func NextReminderTrigger(r *database.Reminder, now time.Time) (time.Time, bool) {
	var step func(time.Time) time.Time
	switch r.RepeatKind {
	case database.RepeatEveryHours:
		hours, ok := repeatValue(r, MaxIntervalHours)
		if !ok {
			return time.Time{}, false
		}
		d := time.Duration(hours) * time.Hour
		step = func(t time.Time) time.Time { return t.Add(d) }
	case database.RepeatEveryDays:
		days, ok := repeatValue(r, MaxIntervalDays)
		if !ok {
			return time.Time{}, false
		}
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, int(days)) }
	case database.RepeatDaily:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	default:
		return time.Time{}, false
	}

	prev, next := r.NextTriggerAt, step(r.NextTriggerAt)
	for {
		if !next.After(prev) {
			return time.Time{}, false
		}
		if next.After(now) {
			return next, true
		}
		prev, next = next, step(next)
	}
}

// EndOfDay returns 23:59 local on the calendar day of t.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return ClockTime{Hour: 23, Minute: 59}.On(t, loc)
}

// StartOfDay returns 00:00 local on the calendar day of t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	return ClockTime{}.On(t, loc)
}

// DailyCron builds a cron rule firing at c every day in loc.
func DailyCron(loc *time.Location, c ClockTime) string {
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", loc.String(), c.Minute, c.Hour)
}

// WeeklyCron builds a cron rule firing at c on day every week in loc.
func WeeklyCron(loc *time.Location, c ClockTime, day time.Weekday) string {
	return fmt.Sprintf("CRON_TZ=%s %d %d * * %d", loc.String(), c.Minute, c.Hour, int(day))
}
