package conversation

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/remindino/internal/database"
	"github.com/edgard/remindino/internal/jobs"
	"github.com/edgard/remindino/internal/messenger"
	"github.com/edgard/remindino/internal/messenger/messengertest"
)

var testNow = time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)

type recordingArmer struct {
	mu    sync.Mutex
	armed map[string]jobs.Job
}

func (a *recordingArmer) Arm(job jobs.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed[job.ID] = job
	return nil
}

func (a *recordingArmer) Disarm(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.armed, id)
}

func (a *recordingArmer) DisarmPrefix(prefix string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id := range a.armed {
		if strings.HasPrefix(id, prefix) {
			delete(a.armed, id)
		}
	}
}

func (a *recordingArmer) job(id string) (jobs.Job, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.armed[id]
	return j, ok
}

func (a *recordingArmer) count(kind jobs.Kind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, j := range a.armed {
		if j.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   database.Store
	msgr    *messengertest.Recorder
	armer   *recordingArmer
	planner *jobs.Planner
	engine  *Engine
	nextMsg int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "conversation.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	store := database.NewStore(db, nil)
	clock := clockwork.NewFakeClockAt(testNow)
	armer := &recordingArmer{armed: map[string]jobs.Job{}}
	planner := jobs.NewPlanner(armer, store, clock, jobs.DefaultSettings(), rand.New(rand.NewPCG(1, 2)), nil)
	msgr := messengertest.New()

	return &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		msgr:    msgr,
		armer:   armer,
		planner: planner,
		engine:  New(Deps{Store: store, Messenger: msgr, Planner: planner, Clock: clock}),
		nextMsg: 1000,
	}
}

// user stores an onboarded profile.
func (f *fixture) user(uid int64, tz string) *database.UserProfile {
	f.t.Helper()
	p := &database.UserProfile{
		UserID:      uid,
		ChatID:      uid,
		Locale:      "en",
		Timezone:    tz,
		SummaryMode: database.SummaryDisabled,
		Onboarded:   true,
	}
	if err := f.store.UpsertUser(f.ctx, p); err != nil {
		f.t.Fatalf("UpsertUser: %v", err)
	}
	return p
}

func (f *fixture) start(uid int64) {
	f.t.Helper()
	f.nextMsg++
	ev := messenger.TextEvent{UserID: uid, ChatID: uid, MessageID: f.nextMsg, Text: "/start", LanguageCode: "en-US"}
	if err := f.engine.Start(f.ctx, ev); err != nil {
		f.t.Fatalf("Start: %v", err)
	}
}

func (f *fixture) flow(uid int64, kind FlowKind) {
	f.t.Helper()
	if err := f.engine.StartFlow(f.ctx, uid, uid, kind, Draft{}); err != nil {
		f.t.Fatalf("StartFlow(%s): %v", kind, err)
	}
}

func (f *fixture) text(uid int64, text string) {
	f.t.Helper()
	f.nextMsg++
	ev := messenger.TextEvent{UserID: uid, ChatID: uid, MessageID: f.nextMsg, Text: text}
	if err := f.engine.HandleText(f.ctx, ev); err != nil {
		f.t.Fatalf("HandleText(%q): %v", text, err)
	}
}

// press presses a button on the most recent message.
func (f *fixture) press(uid int64, data string) {
	f.t.Helper()
	ev := messenger.ButtonEvent{
		UserID:     uid,
		ChatID:     uid,
		MessageID:  f.msgr.Last().MessageID,
		CallbackID: "cb-" + data,
		Data:       data,
	}
	if err := f.engine.HandleButton(f.ctx, ev); err != nil {
		f.t.Fatalf("HandleButton(%q): %v", data, err)
	}
}

func (f *fixture) step(uid int64) Step {
	st, ok := f.engine.States().Get(uid)
	if !ok {
		return ""
	}
	return st.Step
}

func (f *fixture) expectStep(uid int64, want Step) {
	f.t.Helper()
	if got := f.step(uid); got != want {
		f.t.Fatalf("step = %q, want %q", got, want)
	}
}

func (f *fixture) lastAnswer() string {
	if len(f.msgr.Answers) == 0 {
		return ""
	}
	return f.msgr.Answers[len(f.msgr.Answers)-1].Text
}

// expectIdle checks that the flow is gone and ordinary text is not captured.
func (f *fixture) expectIdle(uid int64) {
	f.t.Helper()
	if _, ok := f.engine.States().Get(uid); ok {
		f.t.Fatal("state still present after finalize")
	}
	f.msgr.Reset()
	f.text(uid, "hello")
	if len(f.msgr.Sent) != 0 {
		f.t.Errorf("text after finalize produced %d messages", len(f.msgr.Sent))
	}
}

func (f *fixture) sentTexts() string {
	var b strings.Builder
	for _, s := range f.msgr.Sent {
		b.WriteString(s.Text)
		b.WriteString("\n---\n")
	}
	return b.String()
}

func TestOnboardingScenario(t *testing.T) {
	f := newFixture(t)

	f.start(1)
	f.expectStep(1, StepLanguage)
	if !messengertest.HasButton(f.msgr.Last().Keyboard, "set_lang_fa") {
		t.Fatal("welcome has no language buttons")
	}

	f.press(1, "set_lang_en")
	f.expectStep(1, StepIntro)
	f.press(1, "onboard_continue")
	f.expectStep(1, StepTimezone)
	f.press(1, "set_tz_Asia/Tehran")
	f.expectStep(1, StepSummarySchedule)
	if got := f.lastAnswer(); got != "Timezone set to Asia/Tehran. ⏰" {
		t.Errorf("timezone answer = %q", got)
	}
	f.press(1, "set_summary_daily")
	f.expectStep(1, StepSummaryTime)
	f.text(1, "20:00")
	f.expectStep(1, StepCheckinCount)
	f.text(1, "2")

	p, err := f.store.FindUserByID(f.ctx, 1)
	if err != nil || p == nil {
		t.Fatalf("FindUserByID = %v, %v", p, err)
	}
	if p.Locale != "en" || p.Timezone != "Asia/Tehran" || p.SummaryMode != database.SummaryDaily ||
		p.SummaryTime != "20:00" || p.RandomCheckins != 2 || !p.Onboarded {
		t.Errorf("profile = %+v", p)
	}

	if n := f.armer.count(jobs.KindSummaryDaily); n != 1 {
		t.Errorf("summary_daily jobs = %d, want 1", n)
	}
	if n := f.armer.count(jobs.KindRandomCheckin); n != 2 {
		t.Errorf("random_checkin jobs = %d, want 2", n)
	}
	if n := f.armer.count(jobs.KindSummaryCustom); n != 0 {
		t.Errorf("summary_custom jobs = %d, want 0", n)
	}
	summary, _ := f.armer.job(jobs.SummaryDailyID(1))
	if want := time.Date(2024, 5, 1, 16, 30, 0, 0, time.UTC); !summary.At.Equal(want) {
		t.Errorf("summary fires at %v, want %v", summary.At, want)
	}

	// welcome and check-in prompts, plus /start and both answers
	if len(f.msgr.Deleted) != 5 {
		t.Errorf("deleted %d flow messages, want 5", len(f.msgr.Deleted))
	}
	if got := f.msgr.Last().Text; got != "Main Menu:" {
		t.Errorf("last message = %q, want the main menu", got)
	}
	f.expectIdle(1)
}

func TestOnboardingCustomSummary(t *testing.T) {
	f := newFixture(t)

	f.start(1)
	f.press(1, "set_lang_fa")
	f.press(1, "onboard_continue")
	f.press(1, "set_tz_UTC")
	f.press(1, "set_summary_custom")
	f.expectStep(1, StepSummaryInterval)
	f.text(1, "0")
	f.expectStep(1, StepSummaryInterval)
	f.text(1, "3")
	f.text(1, "0")

	p, _ := f.store.FindUserByID(f.ctx, 1)
	if p.Locale != "fa" || p.SummaryMode != database.SummaryCustom || p.SummaryIntervalHours != 3 || p.RandomCheckins != 0 {
		t.Errorf("profile = %+v", p)
	}
	job, ok := f.armer.job(jobs.SummaryCustomID(1))
	if !ok || job.Every != 3*time.Hour {
		t.Errorf("custom summary job = %+v, %v", job, ok)
	}
	if n := f.armer.count(jobs.KindRandomCheckin); n != 0 {
		t.Errorf("random_checkin jobs = %d, want 0", n)
	}
}

func TestInvalidInputKeepsStep(t *testing.T) {
	onboarded := func(f *fixture) int {
		p, _ := f.store.FindUserByID(f.ctx, 1)
		if p != nil && p.Onboarded {
			return 1
		}
		return 0
	}

	tests := []struct {
		name      string
		setup     func(f *fixture)
		input     string
		want      Step
		persisted func(f *fixture) int
		reply     string
	}{
		{
			name: "onboarding summary time",
			setup: func(f *fixture) {
				f.start(1)
				f.press(1, "set_lang_en")
				f.press(1, "onboard_continue")
				f.press(1, "set_tz_UTC")
				f.press(1, "set_summary_daily")
			},
			input:     "25:99",
			want:      StepSummaryTime,
			persisted: onboarded,
		},
		{
			name: "onboarding summary interval",
			setup: func(f *fixture) {
				f.start(1)
				f.press(1, "set_lang_en")
				f.press(1, "onboard_continue")
				f.press(1, "set_tz_UTC")
				f.press(1, "set_summary_custom")
			},
			input:     "0",
			want:      StepSummaryInterval,
			persisted: onboarded,
		},
		{
			name: "onboarding summary interval too long",
			setup: func(f *fixture) {
				f.start(1)
				f.press(1, "set_lang_en")
				f.press(1, "onboard_continue")
				f.press(1, "set_tz_UTC")
				f.press(1, "set_summary_custom")
			},
			input:     "3000000",
			want:      StepSummaryInterval,
			persisted: onboarded,
			reply:     "no larger than 8760",
		},
		{
			name: "onboarding check-in count",
			setup: func(f *fixture) {
				f.start(1)
				f.press(1, "set_lang_en")
				f.press(1, "onboard_continue")
				f.press(1, "set_tz_UTC")
				f.press(1, "set_summary_none")
			},
			input:     "two",
			want:      StepCheckinCount,
			persisted: onboarded,
		},
		{
			name: "task custom due date",
			setup: func(f *fixture) {
				f.user(1, "UTC")
				f.flow(1, FlowTask)
				f.text(1, "Pay rent")
				f.press(1, "task_set_due_yes")
				f.press(1, "task_due_custom")
			},
			input: "2024-13-45 10:00",
			want:  StepCustomDue,
			persisted: func(f *fixture) int {
				tasks, _ := f.store.ListTasks(f.ctx, 1)
				return len(tasks)
			},
		},
		{
			name: "goal title",
			setup: func(f *fixture) {
				f.user(1, "UTC")
				f.flow(1, FlowGoal)
			},
			input: "   ",
			want:  StepTitle,
			persisted: func(f *fixture) int {
				goals, _ := f.store.ListGoals(f.ctx, 1)
				return len(goals)
			},
		},
		{
			name: "reminder custom time",
			setup: func(f *fixture) {
				f.user(1, "UTC")
				f.flow(1, FlowReminder)
				f.text(1, "Call mom")
				f.press(1, "rem_time_custom")
			},
			input: "next friday",
			want:  StepCustomTime,
			persisted: func(f *fixture) int {
				rs, _ := f.store.ListReminders(f.ctx, 1)
				return len(rs)
			},
		},
		{
			name: "reminder repeat value",
			setup: func(f *fixture) {
				f.user(1, "UTC")
				f.flow(1, FlowReminder)
				f.text(1, "Stretch")
				f.press(1, "rem_time_1hr")
				f.press(1, "rem_repeat_every_hours")
			},
			input: "abc",
			want:  StepRepeatValue,
			persisted: func(f *fixture) int {
				rs, _ := f.store.ListReminders(f.ctx, 1)
				return len(rs)
			},
		},
		{
			name: "reminder repeat hours too long",
			setup: func(f *fixture) {
				f.user(1, "UTC")
				f.flow(1, FlowReminder)
				f.text(1, "Stretch")
				f.press(1, "rem_time_1hr")
				f.press(1, "rem_repeat_every_hours")
			},
			input: "3000000",
			want:  StepRepeatValue,
			persisted: func(f *fixture) int {
				rs, _ := f.store.ListReminders(f.ctx, 1)
				return len(rs)
			},
			reply: "no larger than 8760",
		},
		{
			name: "reminder repeat days too long",
			setup: func(f *fixture) {
				f.user(1, "UTC")
				f.flow(1, FlowReminder)
				f.text(1, "Stretch")
				f.press(1, "rem_time_1hr")
				f.press(1, "rem_repeat_every_days")
			},
			input: "3651",
			want:  StepRepeatValue,
			persisted: func(f *fixture) int {
				rs, _ := f.store.ListReminders(f.ctx, 1)
				return len(rs)
			},
			reply: "no larger than 3650",
		},
		{
			name: "countdown date",
			setup: func(f *fixture) {
				f.user(1, "UTC")
				f.flow(1, FlowCountdown)
				f.text(1, "Exam")
			},
			input: "not a date",
			want:  StepEventTime,
			persisted: func(f *fixture) int {
				cs, _ := f.store.ListCountdowns(f.ctx, 1)
				return len(cs)
			},
		},
		{
			name: "countdown in the past",
			setup: func(f *fixture) {
				f.user(1, "UTC")
				f.flow(1, FlowCountdown)
				f.text(1, "Exam")
			},
			input: "2020-01-01 10:00",
			want:  StepEventTime,
			persisted: func(f *fixture) int {
				cs, _ := f.store.ListCountdowns(f.ctx, 1)
				return len(cs)
			},
		},
		{
			name: "weekly time",
			setup: func(f *fixture) {
				f.user(1, "UTC")
				f.flow(1, FlowWeekly)
				f.text(1, "Math Class")
				f.press(1, "week_day_Monday")
			},
			input: "9h30",
			want:  StepTime,
			persisted: func(f *fixture) int {
				evs, _ := f.store.ListWeeklyEvents(f.ctx, 1)
				return len(evs)
			},
		},
		{
			name: "quote text",
			setup: func(f *fixture) {
				f.user(1, "UTC")
				f.flow(1, FlowQuote)
			},
			input: "  ",
			want:  StepText,
			persisted: func(f *fixture) int {
				qs, _ := f.store.ListQuotes(f.ctx, 1)
				return len(qs)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			f.expectStep(1, tt.want)
			sent := len(f.msgr.Sent)

			f.text(1, tt.input)

			f.expectStep(1, tt.want)
			if n := tt.persisted(f); n != 0 {
				t.Errorf("invalid input persisted %d rows", n)
			}
			if len(f.msgr.Sent) != sent+1 || f.msgr.Last().Edit {
				t.Errorf("expected one new re-prompt, got %d new messages", len(f.msgr.Sent)-sent)
			}
			if tt.reply != "" && !strings.Contains(f.msgr.Last().Text, tt.reply) {
				t.Errorf("re-prompt = %q, want it to mention %q", f.msgr.Last().Text, tt.reply)
			}
		})
	}
}

func TestTaskFlowDueToday(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.flow(1, FlowTask)
	f.expectStep(1, StepTitle)
	f.text(1, "Pay rent")
	f.expectStep(1, StepDueDecision)
	f.press(1, "task_set_due_yes")
	f.expectStep(1, StepDueOption)
	f.press(1, "task_due_today")

	tasks, err := f.store.ListTasks(f.ctx, 1)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("ListTasks = %d, %v; want 1", len(tasks), err)
	}
	want := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	if !tasks[0].DueAt.Valid || !tasks[0].DueAt.Time.Equal(want) {
		t.Errorf("DueAt = %+v, want %v", tasks[0].DueAt, want)
	}
	if got := f.msgr.Last().Text; got != "Task added: Pay rent\nDue: 2024-05-01 23:59" {
		t.Errorf("confirmation = %q", got)
	}
	// title prompt, due prompt and the typed title
	if len(f.msgr.Deleted) != 3 {
		t.Errorf("deleted %d flow messages, want 3", len(f.msgr.Deleted))
	}
	f.expectIdle(1)
}

func TestTaskFlowSkipDue(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.flow(1, FlowTask)
	f.text(1, "Call mom")
	f.press(1, "task_set_due_skip")

	tasks, _ := f.store.ListTasks(f.ctx, 1)
	if len(tasks) != 1 || tasks[0].DueAt.Valid {
		t.Fatalf("tasks = %+v", tasks)
	}
	if got := f.msgr.Last().Text; got != "Task added: Call mom\nDue: No due date" {
		t.Errorf("confirmation = %q", got)
	}
	f.expectIdle(1)
}

func TestTaskFlowCustomDueInUserTimezone(t *testing.T) {
	f := newFixture(t)
	f.user(1, "Asia/Tehran")

	f.flow(1, FlowTask)
	f.text(1, "Submit report")
	f.press(1, "task_set_due_yes")
	f.press(1, "task_due_custom")
	f.text(1, "1403-02-13 10:00")

	tasks, _ := f.store.ListTasks(f.ctx, 1)
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	want := time.Date(2024, 5, 2, 6, 30, 0, 0, time.UTC)
	if !tasks[0].DueAt.Time.Equal(want) {
		t.Errorf("DueAt = %v, want %v", tasks[0].DueAt.Time, want)
	}
}

func TestGoalFlow(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.flow(1, FlowGoal)
	f.text(1, "Read more")
	f.expectStep(1, StepFrequency)
	f.press(1, "goal_freq_weekly")

	goals, _ := f.store.ListGoals(f.ctx, 1)
	if len(goals) != 1 {
		t.Fatalf("goals = %d, want 1", len(goals))
	}
	if want := testNow.AddDate(0, 0, 7); !goals[0].NextCheckAt.Equal(want) {
		t.Errorf("NextCheckAt = %v, want %v", goals[0].NextCheckAt, want)
	}
	if got := f.msgr.Last().Text; got != "Goal added: Read more (Weekly)\nNext check date: 2024-05-08 03:00" {
		t.Errorf("confirmation = %q", got)
	}
	f.expectIdle(1)
}

func TestReminderFlowRepeating(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.flow(1, FlowReminder)
	f.text(1, "Stretch")
	f.expectStep(1, StepTimeOption)
	f.press(1, "rem_time_1hr")
	f.expectStep(1, StepRepeatChoice)
	f.press(1, "rem_repeat_every_hours")
	f.expectStep(1, StepRepeatValue)
	f.text(1, "2")

	rs, _ := f.store.ListReminders(f.ctx, 1)
	if len(rs) != 1 {
		t.Fatalf("reminders = %d, want 1", len(rs))
	}
	r := rs[0]
	if want := testNow.Add(time.Hour); !r.NextTriggerAt.Equal(want) || r.RepeatKind != database.RepeatEveryHours || r.RepeatValue.Int64 != 2 {
		t.Errorf("reminder = %+v", r)
	}
	job, ok := f.armer.job(jobs.ReminderID(r.ID))
	if !ok || !job.At.Equal(r.NextTriggerAt) {
		t.Errorf("reminder job = %+v, %v", job, ok)
	}
	want := "Reminder added:\nTitle: Stretch\nNext Trigger: 2024-05-01 04:00\nRepeat: every 2 hours"
	if got := f.msgr.Last().Text; got != want {
		t.Errorf("confirmation = %q", got)
	}
	f.expectIdle(1)
}

func TestReminderFlowCustomTime(t *testing.T) {
	f := newFixture(t)
	f.user(1, "Asia/Tehran")

	f.flow(1, FlowReminder)
	f.text(1, "Call")
	f.press(1, "rem_time_custom")
	f.text(1, "2024-05-02 10:00")
	f.press(1, "rem_repeat_one_time")

	rs, _ := f.store.ListReminders(f.ctx, 1)
	if len(rs) != 1 {
		t.Fatalf("reminders = %d, want 1", len(rs))
	}
	if want := time.Date(2024, 5, 2, 6, 30, 0, 0, time.UTC); !rs[0].NextTriggerAt.Equal(want) {
		t.Errorf("NextTriggerAt = %v, want %v", rs[0].NextTriggerAt, want)
	}
	if rs[0].RepeatKind != database.RepeatOneTime || rs[0].RepeatValue.Valid {
		t.Errorf("repeat = %s %+v", rs[0].RepeatKind, rs[0].RepeatValue)
	}
	if !strings.Contains(f.msgr.Last().Text, "Next Trigger: 2024-05-02 10:00") {
		t.Errorf("confirmation = %q", f.msgr.Last().Text)
	}
}

func TestCountdownExamScenario(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.flow(1, FlowCountdown)
	f.text(1, "Exam")
	f.text(1, "2099-01-01 09:00")
	f.expectStep(1, StepNotifyChoice)
	f.press(1, "countdown_notify_weekly")

	cs, _ := f.store.ListCountdowns(f.ctx, 1)
	if len(cs) != 1 {
		t.Fatalf("countdowns = %d, want 1", len(cs))
	}
	c := cs[0]
	if want := time.Date(2099, 1, 1, 9, 0, 0, 0, time.UTC); !c.EventAt.Equal(want) || c.NotifySchedule != database.NotifyWeekly {
		t.Errorf("countdown = %+v", c)
	}
	got := f.msgr.Last().Text
	if !strings.Contains(got, "Time Left: ") || strings.Contains(got, "Event passed") {
		t.Errorf("confirmation = %q", got)
	}
	job, ok := f.armer.job(jobs.CountdownID(c.ID))
	if !ok || job.Cron == "" {
		t.Errorf("countdown alert job = %+v, %v", job, ok)
	}
	f.expectIdle(1)
}

func TestWeeklyFlow(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.flow(1, FlowWeekly)
	f.text(1, "Math Class")
	f.expectStep(1, StepDay)
	f.press(1, "week_day_Monday")
	f.expectStep(1, StepTime)
	f.text(1, "09:30")

	evs, _ := f.store.ListWeeklyEvents(f.ctx, 1)
	if len(evs) != 1 || evs[0].DayOfWeek != time.Monday || evs[0].TimeOfDay != "09:30" {
		t.Fatalf("weekly events = %+v", evs)
	}
	if _, ok := f.armer.job(jobs.WeeklyEventID(evs[0].ID)); !ok {
		t.Error("weekly event job not armed")
	}
	if got := f.msgr.Last().Text; got != "Weekly event added: Math Class every Monday at 09:30" {
		t.Errorf("confirmation = %q", got)
	}
	f.expectIdle(1)
}

func TestQuoteFlow(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.flow(1, FlowQuote)
	f.text(1, "Stay hungry")

	qs, _ := f.store.ListQuotes(f.ctx, 1)
	if len(qs) != 1 || qs[0].Text != "Stay hungry" {
		t.Fatalf("quotes = %+v", qs)
	}
	if got := f.msgr.Last().Text; got != "Quote added successfully!" {
		t.Errorf("confirmation = %q", got)
	}
	f.expectIdle(1)
}

func TestUnknownButtonLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.flow(1, FlowTask)
	f.text(1, "Pay rent")
	f.press(1, "goal_freq_daily")

	f.expectStep(1, StepDueDecision)
	if got := f.lastAnswer(); got != "Sorry, that button isn't active right now." {
		t.Errorf("answer = %q", got)
	}

	f.press(1, "task_due_today")
	f.expectStep(1, StepDueDecision)
	tasks, _ := f.store.ListTasks(f.ctx, 1)
	if len(tasks) != 0 {
		t.Errorf("tasks = %d, want 0", len(tasks))
	}
}

func TestButtonWithoutFlowIsUnhandled(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.press(1, "week_day_Friday")

	if got := f.lastAnswer(); got != "Sorry, that button isn't active right now." {
		t.Errorf("answer = %q", got)
	}
	if f.engine.States().Len() != 0 {
		t.Error("a state was created")
	}
}

func TestTextOnButtonStep(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.flow(1, FlowGoal)
	f.text(1, "Run")
	f.text(1, "weekly")

	f.expectStep(1, StepFrequency)
	if got := f.msgr.Last().Text; got != "Please choose one of the options using the buttons." {
		t.Errorf("reply = %q", got)
	}
}

func TestNewFlowReplacesActiveOne(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.flow(1, FlowTask)
	f.text(1, "Pay rent")
	f.flow(1, FlowGoal)

	st, ok := f.engine.States().Get(1)
	if !ok || st.Flow != FlowGoal || st.Step != StepTitle {
		t.Fatalf("state = %+v, %v", st, ok)
	}
	if len(f.msgr.Deleted) != 3 {
		t.Errorf("deleted %d messages of the abandoned flow, want 3", len(f.msgr.Deleted))
	}
	if tr := f.engine.Tracker().Trail(1); len(tr.Sent) != 1 || len(tr.Received) != 0 {
		t.Errorf("trail of the new flow = %+v", tr)
	}
}

func TestTextWithoutProfileAsksForStart(t *testing.T) {
	f := newFixture(t)

	f.text(7, "hi")

	if got := f.msgr.Last().Text; got != "Please send /start to set up your profile first." {
		t.Errorf("reply = %q", got)
	}
}

func TestMenuAndSummary(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	if err := f.engine.Menu(f.ctx, messenger.TextEvent{UserID: 1, ChatID: 1, Text: "/menu"}); err != nil {
		t.Fatalf("Menu: %v", err)
	}
	kb := f.msgr.Last().Keyboard
	for _, data := range []string{"menu_add_task", "menu_weekly_schedule", "menu_settings"} {
		if !messengertest.HasButton(kb, data) {
			t.Errorf("main menu missing %s", data)
		}
	}

	f.press(1, "menu_view_summary")
	if !strings.Contains(f.msgr.Last().Text, "Your Summary") {
		t.Errorf("summary = %q", f.msgr.Last().Text)
	}

	f.press(1, "menu_add_reminder")
	st, _ := f.engine.States().Get(1)
	if st.Flow != FlowReminder {
		t.Errorf("flow = %q, want reminder", st.Flow)
	}
}

func TestDeleteItems(t *testing.T) {
	f := newFixture(t)
	p := f.user(1, "UTC")
	f.user(2, "UTC")

	own := &database.Reminder{UserID: 1, Title: "Mine", NextTriggerAt: testNow.Add(time.Hour), RepeatKind: database.RepeatOneTime}
	if err := f.store.CreateReminder(f.ctx, own); err != nil {
		t.Fatal(err)
	}
	if err := f.planner.ArmReminder(p, own); err != nil {
		t.Fatal(err)
	}
	foreign := &database.Task{UserID: 2, Title: "Theirs"}
	if err := f.store.CreateTask(f.ctx, foreign); err != nil {
		t.Fatal(err)
	}

	f.press(1, "manage_reminders")
	if !messengertest.HasButton(f.msgr.Last().Keyboard, "delete_reminder_"+strconv.FormatInt(own.ID, 10)) {
		t.Fatalf("manage list = %+v", f.msgr.Last().Keyboard)
	}

	f.press(1, "delete_reminder_"+strconv.FormatInt(own.ID, 10))
	if rs, _ := f.store.ListReminders(f.ctx, 1); len(rs) != 0 {
		t.Errorf("reminders left = %d", len(rs))
	}
	if _, ok := f.armer.job(jobs.ReminderID(own.ID)); ok {
		t.Error("deleted reminder is still armed")
	}
	if got := f.lastAnswer(); got != "Deleted." {
		t.Errorf("answer = %q", got)
	}
	if got := f.msgr.Last().Text; got != "Nothing here yet." {
		t.Errorf("list after delete = %q", got)
	}

	f.press(1, "delete_task_"+strconv.FormatInt(foreign.ID, 10))
	if ts, _ := f.store.ListTasks(f.ctx, 2); len(ts) != 1 {
		t.Error("another user's task was deleted")
	}
}

func TestMarkItemsDone(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")
	f.user(2, "UTC")

	task := &database.Task{UserID: 1, Title: "Pay rent"}
	if err := f.store.CreateTask(f.ctx, task); err != nil {
		t.Fatal(err)
	}
	goal := &database.Goal{UserID: 1, Title: "Read more", Frequency: database.FrequencyWeekly}
	if err := f.store.CreateGoal(f.ctx, goal); err != nil {
		t.Fatal(err)
	}
	foreign := &database.Task{UserID: 2, Title: "Theirs"}
	if err := f.store.CreateTask(f.ctx, foreign); err != nil {
		t.Fatal(err)
	}
	taskID := strconv.FormatInt(task.ID, 10)

	f.press(1, "manage_tasks")
	kb := f.msgr.Last().Keyboard
	if !messengertest.HasButton(kb, "done_task_"+taskID) || !messengertest.HasButton(kb, "delete_task_"+taskID) {
		t.Fatalf("manage list = %+v", kb)
	}

	f.press(1, "done_task_"+taskID)
	if got := f.lastAnswer(); got != "Marked as done." {
		t.Errorf("answer = %q", got)
	}
	tasks, _ := f.store.ListTasks(f.ctx, 1)
	if len(tasks) != 1 || tasks[0].Status != database.TaskDone {
		t.Fatalf("tasks = %+v, want one done task", tasks)
	}
	kb = f.msgr.Last().Keyboard
	if messengertest.HasButton(kb, "done_task_"+taskID) || !messengertest.HasButton(kb, "delete_task_"+taskID) {
		t.Errorf("list after done = %+v", kb)
	}

	f.press(1, "done_goal_"+strconv.FormatInt(goal.ID, 10))
	goals, _ := f.store.ListGoals(f.ctx, 1)
	if len(goals) != 1 || goals[0].Status != database.GoalDone {
		t.Errorf("goals = %+v, want one done goal", goals)
	}

	f.press(1, "menu_view_summary")
	if text := f.msgr.Last().Text; !strings.Contains(text, "Your Summary") || strings.Contains(text, "Pay rent") || strings.Contains(text, "Read more") {
		t.Errorf("summary still lists completed items:\n%s", text)
	}

	f.press(1, "done_task_"+strconv.FormatInt(foreign.ID, 10))
	if ts, _ := f.store.ListTasks(f.ctx, 2); ts[0].Status != database.TaskPending {
		t.Error("another user's task was completed")
	}
	f.press(1, "done_reminder_1")
	if got := f.lastAnswer(); got == "Marked as done." {
		t.Error("reminders cannot be marked done")
	}
}

func TestManageQuotes(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	quote := &database.Quote{UserID: 1, Text: strings.Repeat("Stay hungry, stay foolish. ", 3)}
	if err := f.store.CreateQuote(f.ctx, quote); err != nil {
		t.Fatal(err)
	}
	data := "delete_quote_" + strconv.FormatInt(quote.ID, 10)

	f.press(1, "menu_manage_items")
	if !messengertest.HasButton(f.msgr.Last().Keyboard, "manage_quotes") {
		t.Fatalf("manage menu = %+v", f.msgr.Last().Keyboard)
	}
	f.press(1, "manage_quotes")
	var label string
	for _, row := range f.msgr.Last().Keyboard {
		for _, b := range row {
			if b.Data == data {
				label = b.Text
			}
		}
	}
	if label == "" {
		t.Fatalf("quote list = %+v", f.msgr.Last().Keyboard)
	}
	if !strings.HasSuffix(label, "…") || len([]rune(label)) > quoteLabelRunes+2 {
		t.Errorf("quote label = %q, want it shortened", label)
	}

	f.press(1, data)
	if qs, _ := f.store.ListQuotes(f.ctx, 1); len(qs) != 0 {
		t.Errorf("quotes left = %d", len(qs))
	}
	if got := f.msgr.Last().Text; got != "Nothing here yet." {
		t.Errorf("list after delete = %q", got)
	}
}

func TestParseItemButton(t *testing.T) {
	tests := []struct {
		prefix string
		data   string
		kind   database.EntityKind
		id     int64
		ok     bool
	}{
		{deletePrefix, "delete_task_12", database.EntityTask, 12, true},
		{deletePrefix, "delete_weekly_event_3", database.EntityWeeklyEvent, 3, true},
		{deletePrefix, "delete_quote_3", database.EntityQuote, 3, true},
		{deletePrefix, "delete_note_3", "", 0, false},
		{deletePrefix, "delete_task_x", "", 0, false},
		{deletePrefix, "delete_task_-1", "", 0, false},
		{deletePrefix, "delete_", "", 0, false},
		{donePrefix, "done_goal_4", database.EntityGoal, 4, true},
		{donePrefix, "delete_goal_4", "", 0, false},
	}
	for _, tt := range tests {
		kind, id, ok := parseItemButton(tt.prefix, tt.data)
		if kind != tt.kind || id != tt.id || ok != tt.ok {
			t.Errorf("parseItemButton(%q, %q) = %q, %d, %v", tt.prefix, tt.data, kind, id, ok)
		}
	}
}

func TestSettingsTimezoneRearms(t *testing.T) {
	f := newFixture(t)
	p := f.user(1, "UTC")
	p.SummaryMode = database.SummaryDaily
	p.SummaryTime = "20:00"
	if err := f.store.UpsertUser(f.ctx, p); err != nil {
		t.Fatal(err)
	}

	f.press(1, "settings_change_tz")
	st, _ := f.engine.States().Get(1)
	if st.Flow != FlowSettings || st.Step != StepTimezone {
		t.Fatalf("state = %+v", st)
	}
	f.press(1, "set_tz_Asia/Tehran")

	got, _ := f.store.FindUserByID(f.ctx, 1)
	if got.Timezone != "Asia/Tehran" {
		t.Errorf("timezone = %q", got.Timezone)
	}
	job, ok := f.armer.job(jobs.SummaryDailyID(1))
	if want := time.Date(2024, 5, 1, 16, 30, 0, 0, time.UTC); !ok || !job.At.Equal(want) {
		t.Errorf("summary job = %+v, want at %v", job, want)
	}
	f.expectIdle(1)
}

func TestSettingsSummaryRevisitsOnboarding(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.press(1, "settings_change_summary")
	f.expectStep(1, StepSummarySchedule)
	f.press(1, "set_summary_daily")
	f.text(1, "07:15")
	f.text(1, "1")

	p, _ := f.store.FindUserByID(f.ctx, 1)
	if p.SummaryMode != database.SummaryDaily || p.SummaryTime != "07:15" || p.RandomCheckins != 1 || p.Timezone != "UTC" {
		t.Errorf("profile = %+v", p)
	}
	if !strings.Contains(f.sentTexts(), "Settings saved. ✅") {
		t.Errorf("no settings confirmation in %q", f.sentTexts())
	}
}

func TestSettingsLanguage(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")

	f.press(1, "settings_change_lang")
	f.press(1, "set_lang_fa")

	p, _ := f.store.FindUserByID(f.ctx, 1)
	if p.Locale != "fa" {
		t.Errorf("locale = %q, want fa", p.Locale)
	}
	f.expectIdle(1)
}

func TestCheckinActions(t *testing.T) {
	f := newFixture(t)
	f.user(1, "UTC")
	if err := f.engine.Menu(f.ctx, messenger.TextEvent{UserID: 1, ChatID: 1}); err != nil {
		t.Fatal(err)
	}

	f.press(1, "random_ignore")
	if got := f.lastAnswer(); got != "Okay, no action taken." {
		t.Errorf("answer = %q", got)
	}
	if last := f.msgr.Last(); !last.Edit || last.Text != "Okay, no action taken." {
		t.Errorf("check-in message = %+v", last)
	}

	f.press(1, "random_add_goal")
	st, _ := f.engine.States().Get(1)
	if st.Flow != FlowGoal || st.Step != StepTitle {
		t.Errorf("state = %+v", st)
	}
}

func TestStartSeedsLocaleFromClient(t *testing.T) {
	f := newFixture(t)

	ev := messenger.TextEvent{UserID: 9, ChatID: 90, MessageID: 5, Text: "/start", LanguageCode: "fa-IR"}
	if err := f.engine.Start(f.ctx, ev); err != nil {
		t.Fatal(err)
	}
	p, _ := f.store.FindUserByID(f.ctx, 9)
	if p == nil || p.Locale != "fa" || p.ChatID != 90 || p.Onboarded {
		t.Fatalf("profile = %+v", p)
	}
	if tr := f.engine.Tracker().Trail(9); len(tr.Received) != 1 || tr.Received[0] != 5 {
		t.Errorf("trail = %+v", tr)
	}
}

func TestUserLocksAreReleased(t *testing.T) {
	e := New(Deps{Messenger: messengertest.New()})
	lockCount := func() int {
		e.mu.Lock()
		defer e.mu.Unlock()
		return len(e.locks)
	}

	unlock := e.lock(1)
	acquired := make(chan struct{})
	go func() {
		second := e.lock(1)
		close(acquired)
		second()
	}()
	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			e.lock(userID)()
		}(int64(i % 5))
	}
	wg.Wait()

	// the goroutine above may still be between close and release
	deadline := time.Now().Add(time.Second)
	for lockCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := lockCount(); n != 0 {
		t.Errorf("locks left = %d, want 0", n)
	}
}
