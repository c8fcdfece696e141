// Package notify is the toast collaborator: components publish one-shot
// user-visible notices through a Notifier instead of printing directly.
package notify

import (
	"sync"

	"github.com/fatih/color"
)

// Level of a toast.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notifier publishes one-shot user-visible toasts.
type Notifier interface {
	Toast(level Level, message string)
}

var (
	infoColor  = color.New(color.FgCyan)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
)

// CLINotifier prints toasts to the terminal.
type CLINotifier struct{}

// NewCLINotifier instantiates and returns a new CLI notifier.
func NewCLINotifier() *CLINotifier {
	return &CLINotifier{}
}

// Toast implements Notifier.
func (n *CLINotifier) Toast(level Level, message string) {
	switch level {
	case LevelWarn:
		warnColor.Printf("⚠ %s\n", message)
	case LevelError:
		errorColor.Printf("✗ %s\n", message)
	default:
		infoColor.Printf("ℹ %s\n", message)
	}
}

// ToastRecord is one recorded toast.
type ToastRecord struct {
	Level   Level
	Message string
}

// Recorder captures toasts for tests.
type Recorder struct {
	mu     sync.Mutex
	toasts []ToastRecord
}

// Toast implements Notifier.
func (r *Recorder) Toast(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, ToastRecord{Level: level, Message: message})
}

// Toasts returns a copy of the recorded toasts.
func (r *Recorder) Toasts() []ToastRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ToastRecord{}, r.toasts...)
}
