package conversation

import (
	"strings"

	"github.com/edgard/remindino/internal/calendar"
	"github.com/edgard/remindino/internal/database"
	"github.com/edgard/remindino/internal/i18n"
	"github.com/edgard/remindino/internal/messenger"
	"github.com/edgard/remindino/internal/report"
)

const countdownNotifyPrefix = "countdown_notify_"

var alertLabels = map[database.NotifySchedule]string{
	database.NotifyNone:   "no_alerts",
	database.NotifyDaily:  "daily_alerts",
	database.NotifyWeekly: "weekly_alerts",
}

// countdownFlow: Title, EventDateTime, NotifyChoice.
type countdownFlow struct{}

func (countdownFlow) begin(t *turn) error {
	return t.prompt(StepTitle, t.tr("enter_countdown_title", nil), nil)
}

func (countdownFlow) text(t *turn, text string) error {
	switch t.state.Step {
	case StepTitle:
		if !acceptTitle(t, text) {
			return t.reject("invalid_title", nil)
		}
		return t.prompt(StepEventTime, t.tr("enter_countdown_datetime", nil), nil)

	case StepEventTime:
		at, err := calendar.ParseLocalDate(text, t.location())
		if err != nil {
			return t.reject("invalid_countdown_datetime", dateError(err))
		}
		if !at.After(t.now()) {
			return t.reject("time_in_past", nil)
		}
		t.state.Draft.At = at

		var buttons []messenger.Button
		for _, s := range []database.NotifySchedule{database.NotifyNone, database.NotifyDaily, database.NotifyWeekly} {
			buttons = append(buttons, messenger.Button{Text: t.tr(alertLabels[s], nil), Data: countdownNotifyPrefix + string(s)})
		}
		return t.prompt(StepNotifyChoice, t.tr("prompt_countdown_alerts", nil), messenger.Row(buttons...))
	}
	return t.useButtons()
}

func (countdownFlow) button(t *turn, data string) (bool, error) {
	if t.state.Step != StepNotifyChoice {
		return false, nil
	}
	raw, ok := strings.CutPrefix(data, countdownNotifyPrefix)
	schedule := database.NotifySchedule(raw)
	if _, known := alertLabels[schedule]; !ok || !known {
		return false, nil
	}

	now := t.now()
	c := &database.Countdown{
		UserID:         t.userID,
		Title:          t.state.Draft.Title,
		EventAt:        t.state.Draft.At,
		NotifySchedule: schedule,
		CreatedAt:      now,
	}
	if err := t.e.deps.Store.CreateCountdown(t.ctx, c); err != nil {
		return true, t.fail(err)
	}
	if err := t.e.deps.Planner.ArmCountdown(t.profile, c); err != nil {
		t.e.log.WarnContext(t.ctx, "Countdown saved but alerts not armed", "countdown_id", c.ID, "error", err)
	}

	return true, t.finish(t.tr("countdown_added", i18n.Params{
		"title":      c.Title,
		"event_time": report.FormatInstant(c.EventAt, t.location()),
		"time_left":  report.TimeLeft(now, c.EventAt, t.locale()),
		"alerts":     t.tr(alertLabels[schedule], nil),
	}), nil)
}
