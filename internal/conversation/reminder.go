package conversation

import (
	"database/sql"
	"time"

	"github.com/edgard/remindino/internal/calendar"
	"github.com/edgard/remindino/internal/database"
	"github.com/edgard/remindino/internal/i18n"
	"github.com/edgard/remindino/internal/jobs"
	"github.com/edgard/remindino/internal/messenger"
	"github.com/edgard/remindino/internal/report"
)

const (
	remTime1h       = "rem_time_1hr"
	remTime2h       = "rem_time_2hrs"
	remTimeTomorrow = "rem_time_tomorrow"
	remTimeCustom   = "rem_time_custom"

	remRepeatOneTime = "rem_repeat_one_time"
	remRepeatHours   = "rem_repeat_every_hours"
	remRepeatDays    = "rem_repeat_every_days"
	remRepeatDaily   = "rem_repeat_daily"
)

// reminderFlow: Title, TimeOption, [CustomTime], RepeatChoice, [RepeatValue].
type reminderFlow struct{}

func (reminderFlow) begin(t *turn) error {
	return t.prompt(StepTitle, t.tr("enter_reminder_title", nil), nil)
}

func promptReminderTime(t *turn) error {
	kb := messenger.Keyboard{
		{
			{Text: t.tr("in_1_hour", nil), Data: remTime1h},
			{Text: t.tr("in_2_hours", nil), Data: remTime2h},
		},
		{
			{Text: t.tr("tomorrow", nil), Data: remTimeTomorrow},
			{Text: t.tr("custom", nil), Data: remTimeCustom},
		},
	}
	return t.prompt(StepTimeOption, t.tr("prompt_reminder_time", nil), kb)
}

func promptRepeat(t *turn) error {
	kb := messenger.Keyboard{
		{
			{Text: t.tr("one_time", nil), Data: remRepeatOneTime},
			{Text: t.tr("daily", nil), Data: remRepeatDaily},
		},
		{
			{Text: t.tr("every_x_hours", nil), Data: remRepeatHours},
			{Text: t.tr("every_x_days", nil), Data: remRepeatDays},
		},
	}
	return t.prompt(StepRepeatChoice, t.tr("prompt_repeat_choice", nil), kb)
}

func (f reminderFlow) text(t *turn, text string) error {
	d := &t.state.Draft

	switch t.state.Step {
	case StepTitle:
		if !acceptTitle(t, text) {
			return t.reject("invalid_title", nil)
		}
		return promptReminderTime(t)

	case StepCustomTime:
		at, err := calendar.ParseLocalDate(text, t.location())
		if err != nil {
			return t.reject("invalid_date_format", dateError(err))
		}
		if !at.After(t.now()) {
			return t.reject("time_in_past", nil)
		}
		d.At = at
		return promptRepeat(t)

	case StepRepeatValue:
		n, ok := positiveInt(text)
		if !ok {
			return t.reject("invalid_repeat_interval", nil)
		}
		limit := jobs.MaxIntervalHours
		if d.RepeatKind == database.RepeatEveryDays {
			limit = jobs.MaxIntervalDays
		}
		if n > limit {
			return t.reject("interval_too_large", i18n.Params{"max": limit})
		}
		d.RepeatValue = n
		return f.save(t)
	}
	return t.useButtons()
}

func (f reminderFlow) button(t *turn, data string) (bool, error) {
	d := &t.state.Draft
	now := t.now()

	switch t.state.Step {
	case StepTimeOption:
		switch data {
		case remTime1h:
			d.At = now.Add(time.Hour)
		case remTime2h:
			d.At = now.Add(2 * time.Hour)
		case remTimeTomorrow:
			d.At = now.Add(24 * time.Hour)
		case remTimeCustom:
			return true, t.prompt(StepCustomTime, t.tr("enter_custom_time", nil), nil)
		default:
			return false, nil
		}
		return true, promptRepeat(t)

	case StepRepeatChoice:
		switch data {
		case remRepeatOneTime:
			d.RepeatKind = database.RepeatOneTime
			return true, f.save(t)
		case remRepeatDaily:
			d.RepeatKind = database.RepeatDaily
			return true, f.save(t)
		case remRepeatHours:
			d.RepeatKind = database.RepeatEveryHours
			return true, t.prompt(StepRepeatValue, t.tr("enter_repeat_hours", nil), nil)
		case remRepeatDays:
			d.RepeatKind = database.RepeatEveryDays
			return true, t.prompt(StepRepeatValue, t.tr("enter_repeat_days", nil), nil)
		}
	}
	return false, nil
}

func repeatLabel(t *turn, kind database.RepeatKind, value int) string {
	switch kind {
	case database.RepeatEveryHours:
		return t.tr("repeat_every_hours", i18n.Params{"value": value})
	case database.RepeatEveryDays:
		return t.tr("repeat_every_days", i18n.Params{"value": value})
	case database.RepeatDaily:
		return t.tr("daily", nil)
	default:
		return t.tr("one_time", nil)
	}
}

func (reminderFlow) save(t *turn) error {
	d := t.state.Draft
	r := &database.Reminder{
		UserID:        t.userID,
		Title:         d.Title,
		NextTriggerAt: d.At,
		RepeatKind:    d.RepeatKind,
		CreatedAt:     t.now(),
	}
	if d.RepeatKind == database.RepeatEveryHours || d.RepeatKind == database.RepeatEveryDays {
		r.RepeatValue = sql.NullInt64{Int64: int64(d.RepeatValue), Valid: true}
	}
	if err := t.e.deps.Store.CreateReminder(t.ctx, r); err != nil {
		return t.fail(err)
	}
	if err := t.e.deps.Planner.ArmReminder(t.profile, r); err != nil {
		t.e.log.WarnContext(t.ctx, "Reminder saved but not armed", "reminder_id", r.ID, "error", err)
	}

	return t.finish(t.tr("reminder_added", i18n.Params{
		"title":        r.Title,
		"next_trigger": report.FormatInstant(r.NextTriggerAt, t.location()),
		"repeat":       repeatLabel(t, r.RepeatKind, d.RepeatValue),
	}), nil)
}
