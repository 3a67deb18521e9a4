package report

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/edgard/remindino/internal/database"
)

type fakeStore struct {
	tasks     []*database.Task
	goals     []*database.Goal
	reminders []*database.Reminder
	countdown []*database.Countdown
	weekly    []*database.WeeklyEvent
	quote     *database.Quote
}

func (s *fakeStore) ListTasks(context.Context, int64) ([]*database.Task, error) { return s.tasks, nil }
func (s *fakeStore) ListGoals(context.Context, int64) ([]*database.Goal, error) { return s.goals, nil }
func (s *fakeStore) ListReminders(context.Context, int64) ([]*database.Reminder, error) {
	return s.reminders, nil
}
func (s *fakeStore) ListCountdowns(context.Context, int64) ([]*database.Countdown, error) {
	return s.countdown, nil
}
func (s *fakeStore) ListWeeklyEvents(context.Context, int64) ([]*database.WeeklyEvent, error) {
	return s.weekly, nil
}
func (s *fakeStore) RandomQuote(context.Context, int64) (*database.Quote, error) { return s.quote, nil }

// 2024-01-01 is a Monday.
var now = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func profile() *database.UserProfile {
	return &database.UserProfile{UserID: 1, Locale: "en", Timezone: "UTC"}
}

func TestTimeLeft(t *testing.T) {
	tests := []struct {
		name  string
		event time.Time
		want  string
	}{
		{"days hours minutes", now.Add(49*time.Hour + 5*time.Minute), "2 days, 1 hours, 5 minutes left"},
		{"under a minute", now.Add(30 * time.Second), "Less than a minute left"},
		{"exactly now", now, "Event passed"},
		{"past", now.Add(-time.Hour), "Event passed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeLeft(now, tt.event, "en"); got != tt.want {
				t.Errorf("TimeLeft = %q, want %q", got, tt.want)
			}
		})
	}

	if got := TimeLeft(now, now.Add(-time.Hour), "fa"); got == "Event passed" || got == "" {
		t.Errorf("persian TimeLeft = %q", got)
	}
}

func TestSummary(t *testing.T) {
	store := &fakeStore{
		tasks: []*database.Task{
			{Title: "Pay rent", Status: database.TaskPending, DueAt: sql.NullTime{Time: now.Add(5 * time.Hour), Valid: true}},
			{Title: "Old chore", Status: database.TaskDone},
		},
		goals: []*database.Goal{
			{Title: "Read more", Status: database.GoalInProgress, NextCheckAt: now.AddDate(0, 0, 7)},
		},
		reminders: []*database.Reminder{
			{Title: "Stretch", NextTriggerAt: now.Add(2 * time.Hour)},
			{Title: "Dentist", NextTriggerAt: now.AddDate(0, 0, 3)},
		},
		countdown: []*database.Countdown{
			{Title: "Exam", EventAt: now.Add(48 * time.Hour)},
			{Title: "Gone", EventAt: now.Add(-time.Hour)},
		},
		weekly: []*database.WeeklyEvent{
			{Title: "Gym", DayOfWeek: time.Sunday, TimeOfDay: "18:00"},
			{Title: "Math Class", DayOfWeek: time.Monday, TimeOfDay: "09:30"},
		},
		quote: &database.Quote{Text: "Stay hungry"},
	}

	got, err := Summary(context.Background(), store, profile(), now)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	for _, want := range []string{
		"📋 Your Summary",
		"• Pay rent (Due: 2024-01-01 15:00)",
		"• Read more (next check 2024-01-08)",
		"• 2024-01-01 12:00: Stretch",
		"• Exam: 2 days, 0 hours, 0 minutes left",
		"“Stay hungry”",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	for _, unwanted := range []string{"Old chore", "Dentist", "Gone"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("summary should not list %q", unwanted)
		}
	}
	if strings.Index(got, "Math Class") > strings.Index(got, "Gym") {
		t.Error("weekly schedule should start on Monday")
	}
}

func TestSummaryEmpty(t *testing.T) {
	got, err := Summary(context.Background(), &fakeStore{}, profile(), now)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"No pending tasks.", "No active goals.", "No reminders in the next 24 hours.", "No active countdowns.", "No weekly events."} {
		if !strings.Contains(got, want) {
			t.Errorf("empty summary missing %q", want)
		}
	}
	if strings.Contains(got, "Quote of the Day") {
		t.Error("quote section without quotes")
	}
}

func TestNightly(t *testing.T) {
	store := &fakeStore{weekly: []*database.WeeklyEvent{
		{Title: "Math Class", DayOfWeek: time.Tuesday, TimeOfDay: "09:30"},
		{Title: "Gym", DayOfWeek: time.Friday, TimeOfDay: "18:00"},
	}}

	got, ok, err := Nightly(context.Background(), store, profile(), now)
	if err != nil || !ok {
		t.Fatalf("Nightly = %v, %v", ok, err)
	}
	if !strings.Contains(got, "Tuesday") || !strings.Contains(got, "• 09:30 Math Class") || strings.Contains(got, "Gym") {
		t.Errorf("nightly = %q", got)
	}

	store.weekly = store.weekly[1:]
	if _, ok, _ := Nightly(context.Background(), store, profile(), now); ok {
		t.Error("nightly with no events tomorrow should not send")
	}
}

func TestDueUpcoming(t *testing.T) {
	store := &fakeStore{
		tasks: []*database.Task{
			{Title: "Pay rent", Status: database.TaskPending, DueAt: sql.NullTime{Time: time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC), Valid: true}},
		},
		reminders: []*database.Reminder{
			{Title: "Stretch", NextTriggerAt: now.Add(20 * time.Minute)},
			{Title: "Tomorrow thing", NextTriggerAt: now.AddDate(0, 0, 1)},
		},
	}

	got, ok, err := DueUpcoming(context.Background(), store, profile(), now, 30*time.Minute)
	if err != nil || !ok {
		t.Fatalf("DueUpcoming = %v, %v", ok, err)
	}
	today, soon, found := strings.Cut(got, "⏰ In the next 30 minutes:")
	if !found {
		t.Fatalf("missing upcoming section: %q", got)
	}
	if !strings.Contains(today, "23:59 Pay rent") || !strings.Contains(today, "10:20 Stretch") {
		t.Errorf("due today section = %q", today)
	}
	if !strings.Contains(soon, "10:20 Stretch") || strings.Contains(soon, "Pay rent") {
		t.Errorf("upcoming section = %q", soon)
	}
	if strings.Contains(got, "Tomorrow thing") {
		t.Error("tomorrow's reminder listed")
	}

	if _, ok, _ := DueUpcoming(context.Background(), &fakeStore{}, profile(), now, 30*time.Minute); ok {
		t.Error("empty digest should not send")
	}
}
