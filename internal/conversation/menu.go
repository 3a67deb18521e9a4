package conversation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/edgard/remindino/internal/database"
	"github.com/edgard/remindino/internal/i18n"
	"github.com/edgard/remindino/internal/messenger"
	"github.com/edgard/remindino/internal/notify"
	"github.com/edgard/remindino/internal/report"
)

const (
	menuPrefix     = "menu_"
	managePrefix   = "manage_"
	deletePrefix   = "delete_"
	donePrefix     = "done_"
	settingsPrefix = "settings_"
	checkinPrefix  = "random_"
	backMain       = "back_main"

	menuAddTask     = "menu_add_task"
	menuAddGoal     = "menu_add_goal"
	menuAddReminder = "menu_add_reminder"
	menuAddCount    = "menu_add_countdown"
	menuWeekly      = "menu_weekly_schedule"
	menuSummary     = "menu_view_summary"
	menuManage      = "menu_manage_items"
	menuQuotes      = "menu_quotes"
	menuSettings    = "menu_settings"

	settingsLanguage = "settings_change_lang"
	settingsTimezone = "settings_change_tz"
	settingsSummary  = "settings_change_summary"
	settingsCheckins = "settings_change_checkins"
)

// manageKinds maps manage_ buttons onto item kinds, in menu order.
var manageKinds = []struct {
	data string
	kind database.EntityKind
	key  string
}{
	{"manage_tasks", database.EntityTask, "manage_tasks"},
	{"manage_goals", database.EntityGoal, "manage_goals"},
	{"manage_reminders", database.EntityReminder, "manage_reminders"},
	{"manage_countdowns", database.EntityCountdown, "manage_countdowns"},
	{"manage_weekly", database.EntityWeeklyEvent, "manage_weekly"},
	{"manage_quotes", database.EntityQuote, "manage_quotes"},
}

// quoteLabelRunes caps how much of a quote fits on a button.
const quoteLabelRunes = 40

func mainMenu(locale string) messenger.Keyboard {
	btn := func(key, data string) messenger.Button {
		return messenger.Button{Text: i18n.T(key, locale), Data: data}
	}
	return messenger.Keyboard{
		{btn("menu_add_task", menuAddTask), btn("menu_add_goal", menuAddGoal)},
		{btn("menu_add_reminder", menuAddReminder), btn("menu_add_countdown", menuAddCount)},
		{btn("menu_weekly_schedule", menuWeekly), btn("menu_view_summary", menuSummary)},
		{btn("menu_manage_items", menuManage), btn("menu_quotes", menuQuotes)},
		{btn("menu_settings", menuSettings)},
	}
}

func (t *turn) button(key, data string) messenger.Button {
	return messenger.Button{Text: t.tr(key, nil), Data: data}
}

func (e *Engine) menu(t *turn, data string) error {
	switch data {
	case menuAddTask:
		return e.begin(t, FlowTask, "", Draft{}, false)
	case menuAddGoal:
		return e.begin(t, FlowGoal, "", Draft{}, false)
	case menuAddReminder:
		return e.begin(t, FlowReminder, "", Draft{}, false)
	case menuAddCount:
		return e.begin(t, FlowCountdown, "", Draft{}, false)
	case menuWeekly:
		return e.begin(t, FlowWeekly, "", Draft{}, false)
	case menuQuotes:
		return e.begin(t, FlowQuote, "", Draft{}, false)

	case menuSummary:
		text, err := report.Summary(t.ctx, e.deps.Store, t.profile, t.now())
		if err != nil {
			return fmt.Errorf("failed to build summary for user %d: %w", t.userID, err)
		}
		return t.send(text, nil)

	case menuManage:
		kb := messenger.Keyboard{}
		for _, m := range manageKinds {
			kb = append(kb, []messenger.Button{t.button(m.key, m.data)})
		}
		kb = append(kb, []messenger.Button{t.button("back_to_main_menu", backMain)})
		return t.show(t.tr("manage_items_menu", nil), kb)

	case menuSettings:
		kb := messenger.Column(
			t.button("change_language", settingsLanguage),
			t.button("change_timezone", settingsTimezone),
			t.button("change_summary", settingsSummary),
			t.button("change_checkins", settingsCheckins),
			t.button("back_to_main_menu", backMain),
		)
		return t.show(t.tr("settings", nil), kb)

	case backMain:
		return t.show(t.tr("main_menu", nil), mainMenu(t.locale()))
	}

	t.unhandled(data)
	return nil
}

// manage lists the items of one kind with a delete button each, plus a done
// button for open tasks and goals.
func (e *Engine) manage(t *turn, data string) error {
	for _, m := range manageKinds {
		if m.data == data {
			return e.showItems(t, m.kind)
		}
	}
	t.unhandled(data)
	return nil
}

type listedItem struct {
	id    int64
	title string
	// open marks a task or goal that can still be marked done.
	open bool
}

func (e *Engine) listItems(t *turn, kind database.EntityKind) ([]listedItem, error) {
	var items []listedItem
	s := e.deps.Store
	uid := t.userID

	switch kind {
	case database.EntityTask:
		rows, err := s.ListTasks(t.ctx, uid)
		for _, r := range rows {
			items = append(items, listedItem{id: r.ID, title: r.Title, open: r.Status == database.TaskPending})
		}
		return items, err
	case database.EntityGoal:
		rows, err := s.ListGoals(t.ctx, uid)
		for _, r := range rows {
			items = append(items, listedItem{id: r.ID, title: r.Title, open: r.Status == database.GoalInProgress})
		}
		return items, err
	case database.EntityReminder:
		rows, err := s.ListReminders(t.ctx, uid)
		for _, r := range rows {
			items = append(items, listedItem{id: r.ID, title: r.Title})
		}
		return items, err
	case database.EntityCountdown:
		rows, err := s.ListCountdowns(t.ctx, uid)
		for _, r := range rows {
			items = append(items, listedItem{id: r.ID, title: r.Title})
		}
		return items, err
	case database.EntityQuote:
		rows, err := s.ListQuotes(t.ctx, uid)
		for _, r := range rows {
			items = append(items, listedItem{id: r.ID, title: shorten(r.Text, quoteLabelRunes)})
		}
		return items, err
	case database.EntityWeeklyEvent:
		rows, err := s.ListWeeklyEvents(t.ctx, uid)
		for _, r := range rows {
			title := fmt.Sprintf("%s (%s %s)", r.Title, report.WeekdayName(r.DayOfWeek, t.locale()), r.TimeOfDay)
			items = append(items, listedItem{id: r.ID, title: title})
		}
		return items, err
	}
	return nil, fmt.Errorf("cannot list %q", kind)
}

func (e *Engine) showItems(t *turn, kind database.EntityKind) error {
	items, err := e.listItems(t, kind)
	if err != nil {
		return fmt.Errorf("failed to list %s items of user %d: %w", kind, t.userID, err)
	}

	text := t.tr("no_items", nil)
	var kb messenger.Keyboard
	if len(items) > 0 {
		text = t.tr("manage_list_header", nil)
		for _, it := range items {
			title := it.title
			if !it.open && (kind == database.EntityTask || kind == database.EntityGoal) {
				title = t.tr("done_item", i18n.Params{"title": title})
			}
			row := []messenger.Button{{
				Text: t.tr("delete_button", i18n.Params{"title": title}),
				Data: fmt.Sprintf("%s%s_%d", deletePrefix, kind, it.id),
			}}
			if it.open {
				row = append(row, messenger.Button{
					Text: t.tr("done_button", nil),
					Data: fmt.Sprintf("%s%s_%d", donePrefix, kind, it.id),
				})
			}
			kb = append(kb, row)
		}
	}
	kb = append(kb, []messenger.Button{t.button("back_to_main_menu", backMain)})
	return t.show(text, kb)
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// parseItemButton splits "{prefix}{kind}_{id}" for a managed kind.
func parseItemButton(prefix, data string) (database.EntityKind, int64, bool) {
	rest, ok := strings.CutPrefix(data, prefix)
	if !ok {
		return "", 0, false
	}
	i := strings.LastIndex(rest, "_")
	if i <= 0 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	kind := database.EntityKind(rest[:i])
	for _, m := range manageKinds {
		if m.kind == kind {
			return kind, id, true
		}
	}
	return "", 0, false
}

// deleteItem removes an owned item and disarms its job. Ids the caller does
// not own are ignored.
func (e *Engine) deleteItem(t *turn, data string) error {
	kind, id, ok := parseItemButton(deletePrefix, data)
	if !ok {
		t.unhandled(data)
		return nil
	}

	err := e.deps.Store.DeleteByID(t.ctx, kind, id, t.userID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		e.log.DebugContext(t.ctx, "Delete of missing or foreign item ignored", "user_id", t.userID, "kind", kind, "id", id)
	case err != nil:
		return fmt.Errorf("failed to delete %s %d: %w", kind, id, err)
	default:
		e.deps.Planner.DisarmItem(kind, id)
		t.answer = t.tr("item_deleted", nil)
	}
	return e.showItems(t, kind)
}

// markDone completes an owned task or goal. Ids the caller does not own are
// ignored.
func (e *Engine) markDone(t *turn, data string) error {
	kind, id, ok := parseItemButton(donePrefix, data)
	if !ok || (kind != database.EntityTask && kind != database.EntityGoal) {
		t.unhandled(data)
		return nil
	}

	err := e.deps.Store.MarkDone(t.ctx, kind, id, t.userID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		e.log.DebugContext(t.ctx, "Completion of missing or foreign item ignored", "user_id", t.userID, "kind", kind, "id", id)
	case err != nil:
		return fmt.Errorf("failed to mark %s %d done: %w", kind, id, err)
	default:
		t.answer = t.tr("item_done", nil)
	}
	return e.showItems(t, kind)
}

func draftFromProfile(p *database.UserProfile) Draft {
	return Draft{
		Locale:          p.Locale,
		Timezone:        p.Timezone,
		SummaryMode:     p.SummaryMode,
		SummaryTime:     p.SummaryTime,
		SummaryInterval: p.SummaryIntervalHours,
		Checkins:        p.RandomCheckins,
	}
}

func (e *Engine) settings(t *turn, data string) error {
	switch data {
	case settingsLanguage:
		return e.begin(t, FlowSettings, StepLanguage, Draft{}, false)
	case settingsTimezone:
		return e.begin(t, FlowSettings, StepTimezone, Draft{}, false)
	case settingsSummary:
		return e.begin(t, FlowOnboarding, StepSummarySchedule, draftFromProfile(t.profile), true)
	case settingsCheckins:
		return e.begin(t, FlowOnboarding, StepCheckinCount, draftFromProfile(t.profile), true)
	}
	t.unhandled(data)
	return nil
}

// checkinAction handles the quick actions under a random check-in.
func (e *Engine) checkinAction(t *turn, data string) error {
	switch data {
	case notify.CheckinAddTask:
		return e.begin(t, FlowTask, "", Draft{}, false)
	case notify.CheckinAddGoal:
		return e.begin(t, FlowGoal, "", Draft{}, false)
	case notify.CheckinAddReminder:
		return e.begin(t, FlowReminder, "", Draft{}, false)
	case notify.CheckinAddCountdown:
		return e.begin(t, FlowCountdown, "", Draft{}, false)
	case notify.CheckinIgnore:
		t.answer = t.tr("checkin_ignored", nil)
		return t.show(t.tr("checkin_ignored", nil), nil)
	}
	t.unhandled(data)
	return nil
}
