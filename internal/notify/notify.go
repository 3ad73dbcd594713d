// Package notify carries user-visible notifications from the core to
// whatever is presenting the dashboard.
package notify

import (
	"log/slog"
	"sync"

	"rainfall-dashboard/internal/apperrors"
)

// Level is the severity of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one message shown to the user.
type Notification struct {
	Level   Level
	Code    apperrors.Code
	Message string
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(Notification)
}

// Success builds a success notification.
func Success(message string) Notification {
	return Notification{Level: LevelSuccess, Message: message}
}

// Failure builds an error notification from err, using fallback when err
// carries no user-facing message.
func Failure(err error, fallback string) Notification {
	return Notification{
		Level:   LevelError,
		Code:    apperrors.CodeOf(err),
		Message: apperrors.Message(err, fallback),
	}
}

// Func adapts a function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Logger writes notifications to a structured logger.
type Logger struct {
	Log *slog.Logger
}

func (l Logger) Notify(n Notification) {
	logger := l.Log
	if logger == nil {
		logger = slog.Default()
	}
	if n.Level == LevelError {
		logger.Error(n.Message, "code", string(n.Code))
		return
	}
	logger.Info(n.Message)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Errors returns only the error notifications.
func (r *Recorder) Errors() []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.Level == LevelError {
			out = append(out, n)
		}
	}
	return out
}
