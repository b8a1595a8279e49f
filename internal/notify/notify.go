// Package notify carries short user-facing notices (toasts in a GUI, lines in the CLI).
package notify

import (
	"sync"

	"github.com/drallgood/gutendex-nexus/internal/logger"
)

// Level of a notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient message shown to the user
type Notification struct {
	Level   Level
	Title   string
	Message string
}

// Notifier delivers notifications to whatever displays them
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a plain function to Notifier
type Func func(Notification)

func (f Func) Notify(n Notification) {
	if f != nil {
		f(n)
	}
}

// Discard drops every notification
var Discard Notifier = Func(nil)

// Success builds a success notification
func Success(title, message string) Notification {
	return Notification{Level: LevelSuccess, Title: title, Message: message}
}

// Error builds an error notification
func Error(title, message string) Notification {
	return Notification{Level: LevelError, Title: title, Message: message}
}

// LogNotifier keeps a debug trail of every notification shown to the user
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.ForComponent("notify")
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(note Notification) {
	n.log.Debug(note.Message, map[string]interface{}{
		"title":        note.Title,
		"notification": string(note.Level),
	})
}

// Multi delivers each notification to every non-nil notifier in order
func Multi(notifiers ...Notifier) Notifier {
	return Func(func(note Notification) {
		for _, n := range notifiers {
			if n != nil {
				n.Notify(note)
			}
		}
	})
}

// Recorder keeps every notification it receives. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

// All returns a copy of the recorded notifications
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

// Count returns how many notifications of the given level were recorded
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Level == level {
			n++
		}
	}
	return n
}

// Reset forgets everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
}
