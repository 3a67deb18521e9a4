package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a row does not exist or is not owned by the caller.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for database operations.
// Lookups return nil, nil when the row does not exist.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	FindUserByID(ctx context.Context, userID int64) (*UserProfile, error)
	UpsertUser(ctx context.Context, profile *UserProfile) error
	ListUsers(ctx context.Context) ([]*UserProfile, error)

	CreateTask(ctx context.Context, task *Task) error
	ListTasks(ctx context.Context, userID int64) ([]*Task, error)

	CreateGoal(ctx context.Context, goal *Goal) error
	ListGoals(ctx context.Context, userID int64) ([]*Goal, error)

	CreateReminder(ctx context.Context, reminder *Reminder) error
	GetReminder(ctx context.Context, id int64) (*Reminder, error)
	ListReminders(ctx context.Context, userID int64) ([]*Reminder, error)
	UpdateReminderTrigger(ctx context.Context, id int64, next time.Time) error

	CreateCountdown(ctx context.Context, countdown *Countdown) error
	GetCountdown(ctx context.Context, id int64) (*Countdown, error)
	ListCountdowns(ctx context.Context, userID int64) ([]*Countdown, error)

	CreateWeeklyEvent(ctx context.Context, event *WeeklyEvent) error
	GetWeeklyEvent(ctx context.Context, id int64) (*WeeklyEvent, error)
	ListWeeklyEvents(ctx context.Context, userID int64) ([]*WeeklyEvent, error)

	CreateQuote(ctx context.Context, quote *Quote) error
	ListQuotes(ctx context.Context, userID int64) ([]*Quote, error)
	RandomQuote(ctx context.Context, userID int64) (*Quote, error)

	// DeleteByID removes an item owned by userID. It returns ErrNotFound when
	// no such row belongs to that user.
	DeleteByID(ctx context.Context, kind EntityKind, id, userID int64) error
	// MarkDone sets a task or goal owned by userID to done. It returns
	// ErrNotFound when no such row belongs to that user.
	MarkDone(ctx context.Context, kind EntityKind, id, userID int64) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// insert runs a named INSERT inside a transaction and returns the new row id.
func (s *sqlxStore) insert(ctx context.Context, table, query string, arg any) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "table", table, "error", err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Error rolling back transaction", "table", table, "error", rollbackErr)
		}
	}()

	result, err := tx.NamedExecContext(ctx, query, arg)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error inserting row", "table", table, "error", err)
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read id for %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "table", table, "error", err)
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.DebugContext(ctx, "Row inserted", "table", table, "id", id)
	return id, nil
}

// selectOwned fetches every row of T owned by userID.
func selectOwned[T any](ctx context.Context, s *sqlxStore, query string, userID int64) ([]*T, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user_id cannot be zero")
	}
	var rows []*T
	if err := s.db.SelectContext(ctx, &rows, query, userID); err != nil {
		s.logger.ErrorContext(ctx, "Error listing rows", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list rows for user %d: %w", userID, err)
	}
	return rows, nil
}

// getOne fetches a single row of T, returning nil, nil when absent.
func getOne[T any](ctx context.Context, s *sqlxStore, query string, args ...any) (*T, error) {
	var row T
	err := s.db.GetContext(ctx, &row, query, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error fetching row", "error", err)
		return nil, fmt.Errorf("failed to fetch row: %w", err)
	}
	return &row, nil
}

func (s *sqlxStore) FindUserByID(ctx context.Context, userID int64) (*UserProfile, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user_id cannot be zero")
	}
	return getOne[UserProfile](ctx, s, `SELECT * FROM users WHERE user_id = ?`, userID)
}

// UpsertUser inserts a profile or overwrites every setting of an existing one.
func (s *sqlxStore) UpsertUser(ctx context.Context, profile *UserProfile) error {
	if profile == nil {
		return fmt.Errorf("cannot save nil profile")
	}
	if profile.UserID == 0 {
		return fmt.Errorf("profile must have a non-zero user_id")
	}

	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	query := `
        INSERT INTO users (user_id, chat_id, locale, timezone, summary_mode, summary_time,
                           summary_interval_hours, random_checkins, onboarded, created_at, updated_at)
        VALUES (:user_id, :chat_id, :locale, :timezone, :summary_mode, :summary_time,
                :summary_interval_hours, :random_checkins, :onboarded, :created_at, :updated_at)
        ON CONFLICT(user_id) DO UPDATE SET
            chat_id = excluded.chat_id,
            locale = excluded.locale,
            timezone = excluded.timezone,
            summary_mode = excluded.summary_mode,
            summary_time = excluded.summary_time,
            summary_interval_hours = excluded.summary_interval_hours,
            random_checkins = excluded.random_checkins,
            onboarded = excluded.onboarded,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, profile); err != nil {
		s.logger.ErrorContext(ctx, "Error saving user profile", "user_id", profile.UserID, "error", err)
		return fmt.Errorf("failed to save profile for user %d: %w", profile.UserID, err)
	}

	s.logger.DebugContext(ctx, "User profile saved", "user_id", profile.UserID)
	return nil
}

func (s *sqlxStore) ListUsers(ctx context.Context) ([]*UserProfile, error) {
	var users []*UserProfile
	if err := s.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *sqlxStore) CreateTask(ctx context.Context, task *Task) error {
	if task == nil || task.UserID == 0 || task.Title == "" {
		return fmt.Errorf("task needs an owner and a title")
	}
	if task.Status == "" {
		task.Status = TaskPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.DueAt.Valid {
		task.DueAt.Time = task.DueAt.Time.UTC()
	}

	id, err := s.insert(ctx, "tasks", `
        INSERT INTO tasks (user_id, title, due_at, status, created_at)
        VALUES (:user_id, :title, :due_at, :status, :created_at);`, task)
	if err != nil {
		return err
	}
	task.ID = id
	return nil
}

func (s *sqlxStore) ListTasks(ctx context.Context, userID int64) ([]*Task, error) {
	return selectOwned[Task](ctx, s, `SELECT * FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

func (s *sqlxStore) CreateGoal(ctx context.Context, goal *Goal) error {
	if goal == nil || goal.UserID == 0 || goal.Title == "" {
		return fmt.Errorf("goal needs an owner and a title")
	}
	if !goal.Frequency.Valid() {
		return fmt.Errorf("unknown goal frequency %q", goal.Frequency)
	}
	if goal.Status == "" {
		goal.Status = GoalInProgress
	}
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = time.Now().UTC()
	}
	goal.CreatedAt = goal.CreatedAt.UTC()
	goal.NextCheckAt = goal.Frequency.NextCheck(goal.CreatedAt)

	id, err := s.insert(ctx, "goals", `
        INSERT INTO goals (user_id, title, frequency, next_check_at, status, created_at)
        VALUES (:user_id, :title, :frequency, :next_check_at, :status, :created_at);`, goal)
	if err != nil {
		return err
	}
	goal.ID = id
	return nil
}

func (s *sqlxStore) ListGoals(ctx context.Context, userID int64) ([]*Goal, error) {
	return selectOwned[Goal](ctx, s, `SELECT * FROM goals WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

func (s *sqlxStore) CreateReminder(ctx context.Context, reminder *Reminder) error {
	if reminder == nil || reminder.UserID == 0 || reminder.Title == "" {
		return fmt.Errorf("reminder needs an owner and a title")
	}
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = time.Now().UTC()
	}
	reminder.NextTriggerAt = reminder.NextTriggerAt.UTC()

	id, err := s.insert(ctx, "reminders", `
        INSERT INTO reminders (user_id, title, next_trigger_at, repeat_kind, repeat_value, created_at)
        VALUES (:user_id, :title, :next_trigger_at, :repeat_kind, :repeat_value, :created_at);`, reminder)
	if err != nil {
		return err
	}
	reminder.ID = id
	return nil
}

func (s *sqlxStore) GetReminder(ctx context.Context, id int64) (*Reminder, error) {
	return getOne[Reminder](ctx, s, `SELECT * FROM reminders WHERE id = ?`, id)
}

func (s *sqlxStore) ListReminders(ctx context.Context, userID int64) ([]*Reminder, error) {
	return selectOwned[Reminder](ctx, s, `SELECT * FROM reminders WHERE user_id = ? ORDER BY next_trigger_at, id`, userID)
}

func (s *sqlxStore) UpdateReminderTrigger(ctx context.Context, id int64, next time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reminders SET next_trigger_at = ? WHERE id = ?`, next.UTC(), id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating reminder trigger", "reminder_id", id, "error", err)
		return fmt.Errorf("failed to update reminder %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlxStore) CreateCountdown(ctx context.Context, countdown *Countdown) error {
	if countdown == nil || countdown.UserID == 0 || countdown.Title == "" {
		return fmt.Errorf("countdown needs an owner and a title")
	}
	if countdown.NotifySchedule == "" {
		countdown.NotifySchedule = NotifyNone
	}
	if countdown.CreatedAt.IsZero() {
		countdown.CreatedAt = time.Now().UTC()
	}
	countdown.EventAt = countdown.EventAt.UTC()

	id, err := s.insert(ctx, "countdowns", `
        INSERT INTO countdowns (user_id, title, event_at, notify_schedule, created_at)
        VALUES (:user_id, :title, :event_at, :notify_schedule, :created_at);`, countdown)
	if err != nil {
		return err
	}
	countdown.ID = id
	return nil
}

func (s *sqlxStore) GetCountdown(ctx context.Context, id int64) (*Countdown, error) {
	return getOne[Countdown](ctx, s, `SELECT * FROM countdowns WHERE id = ?`, id)
}

func (s *sqlxStore) ListCountdowns(ctx context.Context, userID int64) ([]*Countdown, error) {
	return selectOwned[Countdown](ctx, s, `SELECT * FROM countdowns WHERE user_id = ? ORDER BY event_at, id`, userID)
}

func (s *sqlxStore) CreateWeeklyEvent(ctx context.Context, event *WeeklyEvent) error {
	if event == nil || event.UserID == 0 || event.Title == "" {
		return fmt.Errorf("weekly event needs an owner and a title")
	}
	if event.DayOfWeek < time.Sunday || event.DayOfWeek > time.Saturday {
		return fmt.Errorf("invalid day of week %d", event.DayOfWeek)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	id, err := s.insert(ctx, "weekly_events", `
        INSERT INTO weekly_events (user_id, title, day_of_week, time_of_day, created_at)
        VALUES (:user_id, :title, :day_of_week, :time_of_day, :created_at);`, event)
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}

func (s *sqlxStore) GetWeeklyEvent(ctx context.Context, id int64) (*WeeklyEvent, error) {
	return getOne[WeeklyEvent](ctx, s, `SELECT * FROM weekly_events WHERE id = ?`, id)
}

func (s *sqlxStore) ListWeeklyEvents(ctx context.Context, userID int64) ([]*WeeklyEvent, error) {
	return selectOwned[WeeklyEvent](ctx, s, `SELECT * FROM weekly_events WHERE user_id = ? ORDER BY day_of_week, time_of_day, id`, userID)
}

func (s *sqlxStore) CreateQuote(ctx context.Context, quote *Quote) error {
	if quote == nil || quote.UserID == 0 || quote.Text == "" {
		return fmt.Errorf("quote needs an owner and text")
	}
	if quote.CreatedAt.IsZero() {
		quote.CreatedAt = time.Now().UTC()
	}

	id, err := s.insert(ctx, "quotes", `
        INSERT INTO quotes (user_id, text, created_at)
        VALUES (:user_id, :text, :created_at);`, quote)
	if err != nil {
		return err
	}
	quote.ID = id
	return nil
}

func (s *sqlxStore) ListQuotes(ctx context.Context, userID int64) ([]*Quote, error) {
	return selectOwned[Quote](ctx, s, `SELECT * FROM quotes WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

func (s *sqlxStore) RandomQuote(ctx context.Context, userID int64) (*Quote, error) {
	return getOne[Quote](ctx, s, `SELECT * FROM quotes WHERE user_id = ? ORDER BY RANDOM() LIMIT 1`, userID)
}

func (s *sqlxStore) DeleteByID(ctx context.Context, kind EntityKind, id, userID int64) error {
	table, ok := entityTables[kind]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}

	// table comes from a fixed map, never from user input.
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting row", "table", table, "id", id, "user_id", userID, "error", err)
		return fmt.Errorf("failed to delete %s %d: %w", kind, id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.DebugContext(ctx, "Row deleted", "table", table, "id", id, "user_id", userID)
	return nil
}

func (s *sqlxStore) MarkDone(ctx context.Context, kind EntityKind, id, userID int64) error {
	var status string
	switch kind {
	case EntityTask:
		status = string(TaskDone)
	case EntityGoal:
		status = string(GoalDone)
	default:
		return fmt.Errorf("%s items cannot be marked done", kind)
	}
	table := entityTables[kind]

	res, err := s.db.ExecContext(ctx, "UPDATE "+table+" SET status = ? WHERE id = ? AND user_id = ?", status, id, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error marking row done", "table", table, "id", id, "user_id", userID, "error", err)
		return fmt.Errorf("failed to mark %s %d done: %w", kind, id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
