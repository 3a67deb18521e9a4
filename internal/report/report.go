// Package report renders the localized text of summaries, nightly previews,
// due/upcoming digests and countdown time-left strings.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/edgard/remindino/internal/database"
	"github.com/edgard/remindino/internal/i18n"
)

// DateTimeLayout is how instants are shown to users, in their own timezone.
const DateTimeLayout = "2006-01-02 15:04"

// Store is the read access reports need.
type Store interface {
	ListTasks(ctx context.Context, userID int64) ([]*database.Task, error)
	ListGoals(ctx context.Context, userID int64) ([]*database.Goal, error)
	ListReminders(ctx context.Context, userID int64) ([]*database.Reminder, error)
	ListCountdowns(ctx context.Context, userID int64) ([]*database.Countdown, error)
	ListWeeklyEvents(ctx context.Context, userID int64) ([]*database.WeeklyEvent, error)
	RandomQuote(ctx context.Context, userID int64) (*database.Quote, error)
}

// FormatInstant renders t as local wall-clock time in loc.
func FormatInstant(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateTimeLayout)
}

// WeekdayName returns the localized name of day.
func WeekdayName(day time.Weekday, locale string) string {
	return i18n.T("day_"+day.String(), locale)
}

// TimeLeft renders the remaining time until event, never negative.
func TimeLeft(now, event time.Time, locale string) string {
	left := event.Sub(now)
	switch {
	case left <= 0:
		return i18n.T("event_passed", locale)
	case left < time.Minute:
		return i18n.T("time_left_minute", locale)
	}

	days := int(left / (24 * time.Hour))
	left -= time.Duration(days) * 24 * time.Hour
	hours := int(left / time.Hour)
	left -= time.Duration(hours) * time.Hour
	minutes := int(left / time.Minute)

	return i18n.Translate("time_left", locale, i18n.Params{
		"days":    days,
		"hours":   hours,
		"minutes": minutes,
	})
}

// mondayFirst orders weekdays Monday..Sunday.
func mondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func sortWeekly(events []*database.WeeklyEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.DayOfWeek != b.DayOfWeek {
			return mondayFirst(a.DayOfWeek) < mondayFirst(b.DayOfWeek)
		}
		return a.TimeOfDay < b.TimeOfDay
	})
}

type section struct {
	b      *strings.Builder
	locale string
}

func (s section) write(titleKey, emptyKey string, lines []string) {
	s.b.WriteString("\n\n")
	s.b.WriteString(i18n.T(titleKey, s.locale))
	if len(lines) == 0 {
		s.b.WriteString("\n")
		s.b.WriteString(i18n.T(emptyKey, s.locale))
		return
	}
	for _, line := range lines {
		s.b.WriteString("\n• ")
		s.b.WriteString(line)
	}
}

// Summary builds the periodic summary: pending tasks, goals in progress,
// reminders in the next 24 hours, open countdowns, the weekly schedule and
// an optional random quote.
func Summary(ctx context.Context, store Store, profile *database.UserProfile, now time.Time) (string, error) {
	loc, err := profile.Location()
	if err != nil {
		loc = time.UTC
	}
	locale := profile.Locale
	uid := profile.UserID

	tasks, err := store.ListTasks(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("failed to list tasks: %w", err)
	}
	goals, err := store.ListGoals(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("failed to list goals: %w", err)
	}
	reminders, err := store.ListReminders(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("failed to list reminders: %w", err)
	}
	countdowns, err := store.ListCountdowns(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("failed to list countdowns: %w", err)
	}
	weekly, err := store.ListWeeklyEvents(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("failed to list weekly events: %w", err)
	}
	quote, err := store.RandomQuote(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("failed to pick quote: %w", err)
	}

	var b strings.Builder
	b.WriteString(i18n.T("summary_title", locale))
	s := section{b: &b, locale: locale}

	var lines []string
	for _, t := range tasks {
		if t.Status != database.TaskPending {
			continue
		}
		line := t.Title
		if t.DueAt.Valid {
			line += " (" + i18n.Translate("due_label", locale, i18n.Params{"due": FormatInstant(t.DueAt.Time, loc)}) + ")"
		}
		lines = append(lines, line)
	}
	s.write("pending_tasks", "no_pending_tasks", lines)

	lines = nil
	for _, g := range goals {
		if g.Status != database.GoalInProgress {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s (%s)", g.Title,
			i18n.Translate("next_check_label", locale, i18n.Params{"date": g.NextCheckAt.In(loc).Format(time.DateOnly)})))
	}
	s.write("goals_in_progress", "no_goals", lines)

	lines = nil
	horizon := now.Add(24 * time.Hour)
	for _, r := range reminders {
		if r.NextTriggerAt.Before(now) || r.NextTriggerAt.After(horizon) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", FormatInstant(r.NextTriggerAt, loc), r.Title))
	}
	s.write("upcoming_reminders", "no_reminders", lines)

	lines = nil
	for _, c := range countdowns {
		if !c.EventAt.After(now) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", c.Title, TimeLeft(now, c.EventAt, locale)))
	}
	s.write("countdowns", "no_countdowns", lines)

	lines = nil
	sortWeekly(weekly)
	for _, ev := range weekly {
		lines = append(lines, fmt.Sprintf("%s %s: %s", WeekdayName(ev.DayOfWeek, locale), ev.TimeOfDay, ev.Title))
	}
	s.write("weekly_schedule", "no_weekly_events", lines)

	if quote != nil {
		b.WriteString("\n\n")
		b.WriteString(i18n.T("quote_of_the_day", locale))
		b.WriteString("\n“")
		b.WriteString(quote.Text)
		b.WriteString("”")
	}

	return b.String(), nil
}

// Nightly lists tomorrow's weekly events in the user's timezone. ok is false
// when there is nothing to send.
func Nightly(ctx context.Context, store Store, profile *database.UserProfile, now time.Time) (text string, ok bool, err error) {
	loc, err := profile.Location()
	if err != nil {
		return "", false, err
	}
	events, err := store.ListWeeklyEvents(ctx, profile.UserID)
	if err != nil {
		return "", false, fmt.Errorf("failed to list weekly events: %w", err)
	}

	tomorrow := now.In(loc).AddDate(0, 0, 1).Weekday()
	sortWeekly(events)

	var b strings.Builder
	b.WriteString(i18n.Translate("nightly_title", profile.Locale, i18n.Params{"day": WeekdayName(tomorrow, profile.Locale)}))
	for _, ev := range events {
		if ev.DayOfWeek != tomorrow {
			continue
		}
		ok = true
		fmt.Fprintf(&b, "\n• %s %s", ev.TimeOfDay, ev.Title)
	}
	return b.String(), ok, nil
}

// DueUpcoming lists pending tasks, reminders and countdowns whose instant
// falls on today's local date, and separately those within [now, now+window].
// ok is false when both lists are empty.
func DueUpcoming(ctx context.Context, store Store, profile *database.UserProfile, now time.Time, window time.Duration) (text string, ok bool, err error) {
	loc, err := profile.Location()
	if err != nil {
		return "", false, err
	}
	uid, locale := profile.UserID, profile.Locale

	tasks, err := store.ListTasks(ctx, uid)
	if err != nil {
		return "", false, fmt.Errorf("failed to list tasks: %w", err)
	}
	reminders, err := store.ListReminders(ctx, uid)
	if err != nil {
		return "", false, fmt.Errorf("failed to list reminders: %w", err)
	}
	countdowns, err := store.ListCountdowns(ctx, uid)
	if err != nil {
		return "", false, fmt.Errorf("failed to list countdowns: %w", err)
	}

	type item struct {
		at    time.Time
		title string
	}
	var items []item
	for _, t := range tasks {
		if t.Status == database.TaskPending && t.DueAt.Valid {
			items = append(items, item{t.DueAt.Time, t.Title})
		}
	}
	for _, r := range reminders {
		items = append(items, item{r.NextTriggerAt, r.Title})
	}
	for _, c := range countdowns {
		items = append(items, item{c.EventAt, c.Title})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].at.Before(items[j].at) })

	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, loc)
	soonEnd := now.Add(window)

	var today, soon []string
	for _, it := range items {
		line := fmt.Sprintf("%s %s", it.at.In(loc).Format("15:04"), it.title)
		if !it.at.Before(dayStart) && !it.at.After(dayEnd) {
			today = append(today, line)
		}
		if !it.at.Before(now) && !it.at.After(soonEnd) {
			soon = append(soon, line)
		}
	}
	if len(today) == 0 && len(soon) == 0 {
		return "", false, nil
	}

	var b strings.Builder
	if len(today) > 0 {
		b.WriteString(i18n.T("due_today_title", locale))
		for _, line := range today {
			b.WriteString("\n• " + line)
		}
	}
	if len(soon) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(i18n.Translate("upcoming_title", locale, i18n.Params{"minutes": int(window / time.Minute)}))
		for _, line := range soon {
			b.WriteString("\n• " + line)
		}
	}
	return b.String(), true, nil
}
