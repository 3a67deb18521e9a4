package logger

import (
	"fmt"
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

type gocronLogAdapter struct {
	log *slog.Logger
}

// SchedulerLogger routes gocron's internal logging into log.
func SchedulerLogger(log *slog.Logger) gocron.Logger {
	return &gocronLogAdapter{log: log.With("component", "gocron")}
}

func (l *gocronLogAdapter) Debug(msg string, args ...any) {
	l.log.Debug(msg, toSlogArgs(args)...)
}

func (l *gocronLogAdapter) Info(msg string, args ...any) {
	l.log.Info(msg, toSlogArgs(args)...)
}

func (l *gocronLogAdapter) Warn(msg string, args ...any) {
	l.log.Warn(msg, toSlogArgs(args)...)
}

func (l *gocronLogAdapter) Error(msg string, args ...any) {
	l.log.Error(msg, toSlogArgs(args)...)
}

// toSlogArgs turns gocron's loose key/value list into well-formed slog pairs.
func toSlogArgs(args []any) []any {
	slogArgs := make([]any, 0, len(args))

	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			key, ok := args[i].(string)
			if !ok {
				key = fmt.Sprintf("%v", args[i])
			}
			slogArgs = append(slogArgs, key, args[i+1])
		} else {
			slogArgs = append(slogArgs, "value", args[i])
		}
	}

	return slogArgs
}
