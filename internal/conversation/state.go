package conversation

import (
	"sync"
	"time"

	"github.com/edgard/remindino/internal/database"
)

// FlowKind names a multi-step dialogue.
type FlowKind string

const (
	FlowOnboarding FlowKind = "onboarding"
	FlowTask       FlowKind = "task"
	FlowGoal       FlowKind = "goal"
	FlowReminder   FlowKind = "reminder"
	FlowCountdown  FlowKind = "countdown"
	FlowWeekly     FlowKind = "weekly"
	FlowQuote      FlowKind = "quote"
	FlowSettings   FlowKind = "settings"
)

// Step is the position of a user inside a flow.
type Step string

const (
	StepLanguage        Step = "language"
	StepIntro           Step = "intro"
	StepTimezone        Step = "timezone"
	StepSummarySchedule Step = "summary_schedule"
	StepSummaryTime     Step = "summary_time"
	StepSummaryInterval Step = "summary_interval"
	StepCheckinCount    Step = "checkin_count"

	StepTitle        Step = "title"
	StepDueDecision  Step = "due_decision"
	StepDueOption    Step = "due_option"
	StepCustomDue    Step = "custom_due"
	StepFrequency    Step = "frequency"
	StepTimeOption   Step = "time_option"
	StepCustomTime   Step = "custom_time"
	StepRepeatChoice Step = "repeat_choice"
	StepRepeatValue  Step = "repeat_value"
	StepEventTime    Step = "event_time"
	StepNotifyChoice Step = "notify_choice"
	StepDay          Step = "day"
	StepTime         Step = "time"
	StepText         Step = "text"
)

// Draft holds the values a flow has collected so far. Only fields validated
// by an earlier step are set.
type Draft struct {
	Title string

	Locale          string
	Timezone        string
	SummaryMode     database.SummaryMode
	SummaryTime     string
	SummaryInterval int
	Checkins        int

	DueAt       *time.Time
	At          time.Time
	Frequency   database.GoalFrequency
	RepeatKind  database.RepeatKind
	RepeatValue int
	Day         time.Weekday
}

// State is the transient dialogue position of one user.
type State struct {
	Flow   FlowKind
	Step   Step
	ChatID int64
	// Prompt is the text of the last prompt, repeated after a rejected input.
	Prompt string
	// Revisit is set when a settings change re-enters onboarding.
	Revisit bool
	Draft   Draft
}

// States is the per-user table of active flows.
type States struct {
	mu sync.Mutex
	m  map[int64]State
}

// NewStates returns an empty table.
func NewStates() *States {
	return &States{m: make(map[int64]State)}
}

// Get returns a copy of the user's state.
func (s *States) Get(userID int64) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[userID]
	return st, ok
}

// Put stores the user's state, replacing any previous one.
func (s *States) Put(userID int64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = st
}

// Delete forgets the user's state.
func (s *States) Delete(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}

// Len returns the number of users inside a flow.
func (s *States) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
