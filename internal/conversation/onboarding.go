package conversation

import (
	"strconv"
	"strings"
	"time"

	"github.com/edgard/remindino/internal/calendar"
	"github.com/edgard/remindino/internal/database"
	"github.com/edgard/remindino/internal/i18n"
	"github.com/edgard/remindino/internal/jobs"
	"github.com/edgard/remindino/internal/messenger"
)

const (
	setLangPrefix    = "set_lang_"
	setTZPrefix      = "set_tz_"
	setSummaryPrefix = "set_summary_"
	onboardContinue  = "onboard_continue"

	// MaxCheckinsPerDay bounds the random check-ins a user can ask for.
	MaxCheckinsPerDay = 12
)

// Timezones are the candidates offered during onboarding and in settings.
var Timezones = []string{
	"Asia/Tehran",
	"Europe/London",
	"America/New_York",
	"Asia/Kolkata",
	"Asia/Shanghai",
	"Europe/Berlin",
	"America/Los_Angeles",
	"Australia/Sydney",
	"America/Sao_Paulo",
	"Europe/Moscow",
	"UTC",
}

func timezoneLabel(zone string) string {
	if i := strings.LastIndex(zone, "/"); i >= 0 {
		zone = zone[i+1:]
	}
	return strings.ReplaceAll(zone, "_", " ")
}

func languageKeyboard() messenger.Keyboard {
	var row []messenger.Button
	for _, loc := range i18n.Locales() {
		row = append(row, messenger.Button{Text: i18n.T("lang_"+loc, loc), Data: setLangPrefix + loc})
	}
	return messenger.Row(row...)
}

func timezoneKeyboard() messenger.Keyboard {
	var kb messenger.Keyboard
	for i, zone := range Timezones {
		b := messenger.Button{Text: timezoneLabel(zone), Data: setTZPrefix + zone}
		if i%2 == 0 {
			kb = append(kb, []messenger.Button{b})
		} else {
			kb[len(kb)-1] = append(kb[len(kb)-1], b)
		}
	}
	return kb
}

// parseLanguage returns the locale selected by a set_lang_ button.
func parseLanguage(data string) (string, bool) {
	loc, ok := strings.CutPrefix(data, setLangPrefix)
	return loc, ok && i18n.IsSupported(loc)
}

// parseTimezone returns the zone selected by a set_tz_ button.
func parseTimezone(data string) (string, bool) {
	zone, ok := strings.CutPrefix(data, setTZPrefix)
	if !ok || zone == "" {
		return "", false
	}
	if _, err := time.LoadLocation(zone); err != nil {
		return "", false
	}
	return zone, true
}

func positiveInt(text string) (int, bool) {
	n, err := strconv.Atoi(text)
	return n, err == nil && n > 0
}

// onboardingFlow collects language, timezone, summary schedule and check-in
// count. Settings re-enter it at the summary or check-in step.
type onboardingFlow struct{}

func (onboardingFlow) begin(t *turn) error {
	switch t.state.Step {
	case StepSummarySchedule:
		return promptSummarySchedule(t)
	case StepCheckinCount:
		return t.prompt(StepCheckinCount, t.tr("enter_random_checkins", nil), nil)
	default:
		return t.prompt(StepLanguage, t.tr("welcome", nil), languageKeyboard())
	}
}

func promptSummarySchedule(t *turn) error {
	kb := messenger.Row(
		messenger.Button{Text: t.tr("summary_daily", nil), Data: setSummaryPrefix + "daily"},
		messenger.Button{Text: t.tr("summary_custom", nil), Data: setSummaryPrefix + "custom"},
		messenger.Button{Text: t.tr("summary_none", nil), Data: setSummaryPrefix + "none"},
	)
	return t.prompt(StepSummarySchedule, t.tr("select_summary", nil), kb)
}

func (onboardingFlow) button(t *turn, data string) (bool, error) {
	d := &t.state.Draft

	switch t.state.Step {
	case StepLanguage:
		loc, ok := parseLanguage(data)
		if !ok {
			return false, nil
		}
		d.Locale = loc
		t.answer = t.tr("language_set", i18n.Params{"language": i18n.T("lang_"+loc, loc)})
		kb := messenger.Row(messenger.Button{Text: t.tr("onboard_continue", nil), Data: onboardContinue})
		return true, t.prompt(StepIntro, t.tr("onboard_info", nil), kb)

	case StepIntro:
		if data != onboardContinue {
			return false, nil
		}
		return true, t.prompt(StepTimezone, t.tr("select_timezone", nil), timezoneKeyboard())

	case StepTimezone:
		zone, ok := parseTimezone(data)
		if !ok {
			return false, nil
		}
		d.Timezone = zone
		t.answer = t.tr("set_timezone", i18n.Params{"timezone": zone})
		return true, promptSummarySchedule(t)

	case StepSummarySchedule:
		switch strings.TrimPrefix(data, setSummaryPrefix) {
		case "daily":
			d.SummaryMode = database.SummaryDaily
			return true, t.prompt(StepSummaryTime, t.tr("enter_daily_time", nil), nil)
		case "custom":
			d.SummaryMode = database.SummaryCustom
			return true, t.prompt(StepSummaryInterval, t.tr("enter_custom_interval", nil), nil)
		case "none":
			d.SummaryMode = database.SummaryDisabled
			return true, t.prompt(StepCheckinCount, t.tr("enter_random_checkins", nil), nil)
		}
	}
	return false, nil
}

func (f onboardingFlow) text(t *turn, text string) error {
	d := &t.state.Draft

	switch t.state.Step {
	case StepSummaryTime:
		h, m, err := calendar.ParseClock(text)
		if err != nil {
			return t.reject("invalid_time", nil)
		}
		d.SummaryTime = calendar.FormatClock(h, m)
		return t.prompt(StepCheckinCount, t.tr("enter_random_checkins", nil), nil)

	case StepSummaryInterval:
		n, ok := positiveInt(text)
		if !ok {
			return t.reject("invalid_positive_number", nil)
		}
		if n > jobs.MaxIntervalHours {
			return t.reject("interval_too_large", i18n.Params{"max": jobs.MaxIntervalHours})
		}
		d.SummaryInterval = n
		return t.prompt(StepCheckinCount, t.tr("enter_random_checkins", nil), nil)

	case StepCheckinCount:
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 {
			return t.reject("invalid_non_negative_number", nil)
		}
		if n > MaxCheckinsPerDay {
			return t.reject("invalid_checkin_count", i18n.Params{"max": MaxCheckinsPerDay})
		}
		d.Checkins = n
		return f.complete(t)
	}
	return t.useButtons()
}

// complete saves the profile, arms every job derived from it and shows the
// main menu.
func (onboardingFlow) complete(t *turn) error {
	d := t.state.Draft

	profile := *t.profile
	profile.ChatID = t.chatID
	if d.Locale != "" {
		profile.Locale = d.Locale
	}
	if d.Timezone != "" {
		profile.Timezone = d.Timezone
	}
	if d.SummaryMode != "" {
		profile.SummaryMode = d.SummaryMode
	}
	switch profile.SummaryMode {
	case database.SummaryDaily:
		if d.SummaryTime != "" {
			profile.SummaryTime = d.SummaryTime
		}
		profile.SummaryIntervalHours = 0
	case database.SummaryCustom:
		if d.SummaryInterval > 0 {
			profile.SummaryIntervalHours = d.SummaryInterval
		}
		profile.SummaryTime = ""
	default:
		profile.SummaryTime = ""
		profile.SummaryIntervalHours = 0
	}
	profile.RandomCheckins = d.Checkins
	profile.Onboarded = true

	if err := t.e.deps.Store.UpsertUser(t.ctx, &profile); err != nil {
		return t.fail(err)
	}
	t.profile = &profile

	if err := t.e.deps.Planner.ArmUser(t.ctx, &profile); err != nil {
		t.e.log.WarnContext(t.ctx, "Profile saved but some jobs were not armed", "user_id", t.userID, "error", err)
	}

	key := "onboarding_complete"
	if t.state.Revisit {
		key = "settings_saved"
	}
	if err := t.finish(t.tr(key, nil), nil); err != nil {
		return err
	}
	return t.send(t.tr("main_menu", nil), mainMenu(t.locale()))
}

// settingsFlow changes the language or the timezone with a single button.
type settingsFlow struct{}

func (settingsFlow) begin(t *turn) error {
	if t.state.Step == StepTimezone {
		return t.prompt(StepTimezone, t.tr("select_timezone", nil), timezoneKeyboard())
	}
	return t.prompt(StepLanguage, t.tr("select_language", nil), languageKeyboard())
}

func (settingsFlow) button(t *turn, data string) (bool, error) {
	profile := *t.profile

	switch t.state.Step {
	case StepLanguage:
		loc, ok := parseLanguage(data)
		if !ok {
			return false, nil
		}
		profile.Locale = loc
		if err := t.e.deps.Store.UpsertUser(t.ctx, &profile); err != nil {
			return true, t.fail(err)
		}
		t.profile = &profile
		return true, t.finish(i18n.Translate("language_set", loc, i18n.Params{"language": i18n.T("lang_"+loc, loc)}), nil)

	case StepTimezone:
		zone, ok := parseTimezone(data)
		if !ok {
			return false, nil
		}
		profile.Timezone = zone
		if err := t.e.deps.Store.UpsertUser(t.ctx, &profile); err != nil {
			return true, t.fail(err)
		}
		t.profile = &profile
		if profile.Onboarded {
			if err := t.e.deps.Planner.ArmUser(t.ctx, &profile); err != nil {
				t.e.log.WarnContext(t.ctx, "Timezone saved but some jobs were not re-armed", "user_id", t.userID, "error", err)
			}
		}
		return true, t.finish(t.tr("set_timezone", i18n.Params{"timezone": zone}), nil)
	}
	return false, nil
}

func (settingsFlow) text(t *turn, _ string) error {
	return t.useButtons()
}
