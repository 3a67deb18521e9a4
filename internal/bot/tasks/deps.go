// Package tasks implements the maintenance tasks run on cron schedules
// configured under scheduler.tasks.
package tasks

import (
	"context"
	"log/slog"
)

// Maintainer is the store surface maintenance tasks need.
type Maintainer interface {
	RunSQLMaintenance(ctx context.Context) error
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  Maintainer
}
