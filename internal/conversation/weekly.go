package conversation

import (
	"strings"
	"time"

	"github.com/edgard/remindino/internal/calendar"
	"github.com/edgard/remindino/internal/database"
	"github.com/edgard/remindino/internal/i18n"
	"github.com/edgard/remindino/internal/messenger"
	"github.com/edgard/remindino/internal/report"
)

const weekDayPrefix = "week_day_"

var weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

func parseWeekday(name string) (time.Weekday, bool) {
	for _, d := range weekdays {
		if d.String() == name {
			return d, true
		}
	}
	return 0, false
}

// weeklyFlow: Title, Day, Time.
type weeklyFlow struct{}

func (weeklyFlow) begin(t *turn) error {
	return t.prompt(StepTitle, t.tr("enter_weekly_title", nil), nil)
}

func (f weeklyFlow) text(t *turn, text string) error {
	switch t.state.Step {
	case StepTitle:
		if !acceptTitle(t, text) {
			return t.reject("invalid_title", nil)
		}
		var kb messenger.Keyboard
		for i, d := range weekdays {
			b := messenger.Button{Text: report.WeekdayName(d, t.locale()), Data: weekDayPrefix + d.String()}
			if i%2 == 0 {
				kb = append(kb, []messenger.Button{b})
			} else {
				kb[len(kb)-1] = append(kb[len(kb)-1], b)
			}
		}
		return t.prompt(StepDay, t.tr("select_weekly_day", nil), kb)

	case StepTime:
		h, m, err := calendar.ParseClock(text)
		if err != nil {
			return t.reject("invalid_time", nil)
		}
		return f.save(t, calendar.FormatClock(h, m))
	}
	return t.useButtons()
}

func (weeklyFlow) button(t *turn, data string) (bool, error) {
	if t.state.Step != StepDay {
		return false, nil
	}
	name, ok := strings.CutPrefix(data, weekDayPrefix)
	if !ok {
		return false, nil
	}
	day, ok := parseWeekday(name)
	if !ok {
		return false, nil
	}
	t.state.Draft.Day = day
	return true, t.prompt(StepTime, t.tr("enter_weekly_time", nil), nil)
}

func (weeklyFlow) save(t *turn, clock string) error {
	ev := &database.WeeklyEvent{
		UserID:    t.userID,
		Title:     t.state.Draft.Title,
		DayOfWeek: t.state.Draft.Day,
		TimeOfDay: clock,
		CreatedAt: t.now(),
	}
	if err := t.e.deps.Store.CreateWeeklyEvent(t.ctx, ev); err != nil {
		return t.fail(err)
	}
	if err := t.e.deps.Planner.ArmWeeklyEvent(t.profile, ev); err != nil {
		t.e.log.WarnContext(t.ctx, "Weekly event saved but not armed", "event_id", ev.ID, "error", err)
	}

	return t.finish(t.tr("weekly_added", i18n.Params{
		"title": ev.Title,
		"day":   report.WeekdayName(ev.DayOfWeek, t.locale()),
		"time":  ev.TimeOfDay,
	}), nil)
}
