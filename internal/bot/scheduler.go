package bot

import (
	"context"
	"log/slog"
	"sort"

	"github.com/edgard/remindino/internal/bot/tasks"
	"github.com/edgard/remindino/internal/config"
)

// TaskScheduler is where maintenance tasks are put on their cron schedule.
type TaskScheduler interface {
	AddCronTask(name, expr string, task func(ctx context.Context) error) error
}

// ScheduleTasks adds every enabled, registered task from cfg to s and returns
// how many were scheduled. Misconfigured tasks are skipped with a warning.
func ScheduleTasks(s TaskScheduler, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "task_scheduler")

	if cfg == nil || len(cfg.Tasks) == 0 {
		log.Warn("No scheduler tasks configured.")
		return 0
	}

	names := make([]string, 0, len(cfg.Tasks))
	for name := range cfg.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	scheduledCount := 0
	for _, taskName := range names {
		taskConfig := cfg.Tasks[taskName]
		if !taskConfig.Enabled {
			log.Info("Skipping disabled task", "task_name", taskName)
			continue
		}

		taskFunc, exists := taskMap[taskName]
		if !exists {
			log.Warn("Scheduled task configured but not found in registry, skipping", "task_name", taskName)
			continue
		}

		if taskConfig.Schedule == "" {
			log.Warn("Scheduled task enabled but has empty schedule, skipping", "task_name", taskName)
			continue
		}

		if err := s.AddCronTask(taskName, taskConfig.Schedule, taskFunc); err != nil {
			log.Error("Failed to schedule task", "task_name", taskName, "schedule", taskConfig.Schedule, "error", err)
			continue
		}

		log.Info("Scheduled task", "task_name", taskName, "schedule", taskConfig.Schedule)
		scheduledCount++
	}

	log.Info("Maintenance tasks configured", "tasks_scheduled", scheduledCount)
	return scheduledCount
}
