package config

import "time"

const (
	DefaultLogLevel = "info"
	DefaultDBPath   = "remindino.db"

	// Telegram allows roughly 30 messages per second across chats.
	DefaultRequestsPerSecond = 25.0
	DefaultBurst             = 5
	DefaultBreakerFailures   = 5
	DefaultBreakerCooldown   = 30 * time.Second

	DefaultDispatchTimeout    = 30 * time.Second
	DefaultCheckinWindowStart = "08:00"
	DefaultCheckinWindowEnd   = "21:00"
	DefaultNightlyTime        = "21:00"
	DefaultCountdownAlertTime = "09:00"
	DefaultDueWindow          = 30 * time.Minute
	DefaultWeeklyLead         = 30 * time.Minute

	DefaultMetricsAddr = ":9090"
)

var defaults = map[string]any{
	"logger.level": DefaultLogLevel,
	"logger.json":  false,

	"database.path": DefaultDBPath,

	"telegram.requests_per_second": DefaultRequestsPerSecond,
	"telegram.burst":               DefaultBurst,
	"telegram.breaker_failures":    DefaultBreakerFailures,
	"telegram.breaker_cooldown":    DefaultBreakerCooldown,

	"scheduler.dispatch_timeout":     DefaultDispatchTimeout,
	"scheduler.checkin_window_start": DefaultCheckinWindowStart,
	"scheduler.checkin_window_end":   DefaultCheckinWindowEnd,
	"scheduler.nightly_time":         DefaultNightlyTime,
	"scheduler.countdown_alert_time": DefaultCountdownAlertTime,
	"scheduler.due_window":           DefaultDueWindow,
	"scheduler.weekly_lead":          DefaultWeeklyLead,
	"scheduler.tasks": map[string]any{
		"sql_maintenance": map[string]any{"enabled": true, "schedule": "0 4 * * 0"},
	},

	"metrics.enabled": false,
	"metrics.addr":    DefaultMetricsAddr,
}
