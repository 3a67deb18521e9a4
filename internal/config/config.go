// Package config defines the application configuration and loads it from a
// YAML file, a .env file and BOT_* environment variables.
package config

import (
	"errors"
	"time"

	"github.com/go-telegram/bot/models"
)

// ErrConfiguration wraps every failure to load or validate configuration.
var ErrConfiguration = errors.New("configuration error")

// Config holds all application settings.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LoggerConfig controls log verbosity and format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig holds Bot API credentials, outbound throttling and the
// circuit breaker guarding Bot API calls.
type TelegramConfig struct {
	Token             string        `mapstructure:"token"               validate:"required"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int           `mapstructure:"burst"               validate:"gte=1"`
	BreakerFailures   int           `mapstructure:"breaker_failures"    validate:"gte=1"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"    validate:"min=1s"`

	// BotInfo is filled at startup from getMe.
	BotInfo *models.User `mapstructure:"-"`
}

// SchedulerConfig tunes notification timing. Clock values are local "HH:MM".
type SchedulerConfig struct {
	DispatchTimeout    time.Duration         `mapstructure:"dispatch_timeout"     validate:"min=1s,max=10m"`
	CheckinWindowStart string                `mapstructure:"checkin_window_start" validate:"required,clock"`
	CheckinWindowEnd   string                `mapstructure:"checkin_window_end"   validate:"required,clock"`
	NightlyTime        string                `mapstructure:"nightly_time"         validate:"required,clock"`
	CountdownAlertTime string                `mapstructure:"countdown_alert_time" validate:"required,clock"`
	DueWindow          time.Duration         `mapstructure:"due_window"           validate:"min=1m"`
	WeeklyLead         time.Duration         `mapstructure:"weekly_lead"          validate:"min=0"`
	Tasks              map[string]TaskConfig `mapstructure:"tasks"                validate:"dive"`
}

// TaskConfig schedules one maintenance task with a cron expression.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}
