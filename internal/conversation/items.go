package conversation

import (
	"database/sql"
	"strings"
	"time"

	"github.com/edgard/remindino/internal/calendar"
	"github.com/edgard/remindino/internal/database"
	"github.com/edgard/remindino/internal/i18n"
	"github.com/edgard/remindino/internal/jobs"
	"github.com/edgard/remindino/internal/messenger"
	"github.com/edgard/remindino/internal/report"
)

const (
	taskDueYes      = "task_set_due_yes"
	taskDueSkip     = "task_set_due_skip"
	taskDueToday    = "task_due_today"
	taskDueTomorrow = "task_due_tomorrow"
	taskDueCustom   = "task_due_custom"

	goalFreqPrefix = "goal_freq_"
)

var goalFrequencies = []database.GoalFrequency{
	database.FrequencyDaily,
	database.FrequencyWeekly,
	database.FrequencyMonthly,
	database.FrequencySeasonal,
	database.FrequencyYearly,
}

// acceptTitle stores a non-empty title in the draft.
func acceptTitle(t *turn, text string) bool {
	if text == "" {
		return false
	}
	t.state.Draft.Title = text
	return true
}

func dateError(err error) i18n.Params {
	return i18n.Params{"error": err.Error()}
}

// taskFlow: Title, DueDecision, [DueOption, [CustomDue]].
type taskFlow struct{}

func (taskFlow) begin(t *turn) error {
	return t.prompt(StepTitle, t.tr("enter_task_title", nil), nil)
}

func (f taskFlow) text(t *turn, text string) error {
	switch t.state.Step {
	case StepTitle:
		if !acceptTitle(t, text) {
			return t.reject("invalid_title", nil)
		}
		kb := messenger.Row(
			messenger.Button{Text: t.tr("yes", nil), Data: taskDueYes},
			messenger.Button{Text: t.tr("skip", nil), Data: taskDueSkip},
		)
		return t.prompt(StepDueDecision, t.tr("set_due_date_prompt", nil), kb)

	case StepCustomDue:
		due, err := calendar.ParseLocalDate(text, t.location())
		if err != nil {
			return t.reject("invalid_date_format", dateError(err))
		}
		t.state.Draft.DueAt = &due
		return f.save(t)
	}
	return t.useButtons()
}

func (f taskFlow) button(t *turn, data string) (bool, error) {
	loc := t.location()
	now := t.now().In(loc)

	switch t.state.Step {
	case StepDueDecision:
		switch data {
		case taskDueYes:
			kb := messenger.Row(
				messenger.Button{Text: t.tr("due_date_today", nil), Data: taskDueToday},
				messenger.Button{Text: t.tr("due_date_tomorrow", nil), Data: taskDueTomorrow},
				messenger.Button{Text: t.tr("due_date_custom", nil), Data: taskDueCustom},
			)
			return true, t.prompt(StepDueOption, t.tr("select_due_date_option", nil), kb)
		case taskDueSkip:
			return true, f.save(t)
		}

	case StepDueOption:
		var due time.Time
		switch data {
		case taskDueToday:
			due = jobs.EndOfDay(now, loc)
		case taskDueTomorrow:
			due = jobs.EndOfDay(now.AddDate(0, 0, 1), loc)
		case taskDueCustom:
			return true, t.prompt(StepCustomDue, t.tr("enter_custom_due_date", nil), nil)
		default:
			return false, nil
		}
		t.state.Draft.DueAt = &due
		return true, f.save(t)
	}
	return false, nil
}

func (taskFlow) save(t *turn) error {
	d := t.state.Draft
	task := &database.Task{UserID: t.userID, Title: d.Title, CreatedAt: t.now()}
	due := t.tr("no_due_date", nil)
	if d.DueAt != nil {
		task.DueAt = sql.NullTime{Time: *d.DueAt, Valid: true}
		due = report.FormatInstant(*d.DueAt, t.location())
	}
	if err := t.e.deps.Store.CreateTask(t.ctx, task); err != nil {
		return t.fail(err)
	}
	return t.finish(t.tr("task_added", i18n.Params{"title": task.Title, "due": due}), nil)
}

// goalFlow: Title, Frequency.
type goalFlow struct{}

func (goalFlow) begin(t *turn) error {
	return t.prompt(StepTitle, t.tr("enter_goal_title", nil), nil)
}

func (goalFlow) text(t *turn, text string) error {
	if t.state.Step != StepTitle {
		return t.useButtons()
	}
	if !acceptTitle(t, text) {
		return t.reject("invalid_title", nil)
	}
	var buttons []messenger.Button
	for _, f := range goalFrequencies {
		buttons = append(buttons, messenger.Button{Text: t.tr("goal_freq_"+string(f), nil), Data: goalFreqPrefix + string(f)})
	}
	return t.prompt(StepFrequency, t.tr("select_goal_frequency", nil), messenger.Column(buttons...))
}

func (goalFlow) button(t *turn, data string) (bool, error) {
	if t.state.Step != StepFrequency {
		return false, nil
	}
	raw, ok := strings.CutPrefix(data, goalFreqPrefix)
	freq := database.GoalFrequency(raw)
	if !ok || !freq.Valid() {
		return false, nil
	}
	t.state.Draft.Frequency = freq

	goal := &database.Goal{UserID: t.userID, Title: t.state.Draft.Title, Frequency: freq, CreatedAt: t.now()}
	if err := t.e.deps.Store.CreateGoal(t.ctx, goal); err != nil {
		return true, t.fail(err)
	}
	return true, t.finish(t.tr("goal_added", i18n.Params{
		"title":      goal.Title,
		"frequency":  t.tr("goal_freq_"+string(freq), nil),
		"next_check": report.FormatInstant(goal.NextCheckAt, t.location()),
	}), nil)
}

// quoteFlow: Text.
type quoteFlow struct{}

func (quoteFlow) begin(t *turn) error {
	return t.prompt(StepText, t.tr("enter_quote_text", nil), nil)
}

func (quoteFlow) text(t *turn, text string) error {
	if text == "" {
		return t.reject("invalid_title", nil)
	}
	quote := &database.Quote{UserID: t.userID, Text: text, CreatedAt: t.now()}
	if err := t.e.deps.Store.CreateQuote(t.ctx, quote); err != nil {
		return t.fail(err)
	}
	return t.finish(t.tr("quote_added", nil), nil)
}

func (quoteFlow) button(*turn, string) (bool, error) {
	return false, nil
}
