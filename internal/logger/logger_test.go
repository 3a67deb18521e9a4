package logger

import (
	"bytes"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/go-telegram/bot/models"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "..."},
		{"سلام دنیا عزیز", 8, "سلام ..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestToSlogArgs(t *testing.T) {
	got := toSlogArgs([]any{"job", "x", 7, "seven", "dangling"})
	want := []any{"job", "x", "7", "seven", "value", "dangling"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("toSlogArgs = %v, want %v", got, want)
	}
}

func TestSchedulerLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	SchedulerLogger(log).Info("job ran", "name", "nightly_1")

	out := buf.String()
	for _, want := range []string{"job ran", "name=nightly_1", "component=gocron"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestUpdateAttrs(t *testing.T) {
	update := &models.Update{
		ID: 9,
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb",
			From: models.User{ID: 5},
			Data: "menu_add_task",
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{ID: 3, Chat: models.Chat{ID: 77}},
			},
		},
	}

	attrs := UpdateAttrs(update)
	fields := map[any]any{}
	for i := 0; i+1 < len(attrs); i += 2 {
		fields[attrs[i]] = attrs[i+1]
	}
	if fields["update_type"] != "callback_query" || fields["chat_id"] != int64(77) || fields["data"] != "menu_add_task" {
		t.Errorf("attrs = %v", attrs)
	}

	if attrs := UpdateAttrs(&models.Update{ID: 1}); attrs[len(attrs)-1] != "other" {
		t.Errorf("empty update attrs = %v", attrs)
	}
}
