// Package notify carries short transient notifications for state transitions.
// Failures differ from successes by level only; nothing here blocks the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Kinds group notifications by the transition that raised them.
const (
	KindSession  = "session"
	KindOptimize = "optimize"
	KindTimer    = "timer"
	KindSync     = "sync"
	KindStore    = "store"
)

type Notification struct {
	Level   Level          `json:"level"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
	TS      time.Time      `json:"ts"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Discard drops every notification.
var Discard Notifier = NotifierFunc(func(context.Context, Notification) {})

// Multi fans a notification out to every non-nil notifier in order.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, n Notification) {
		for _, target := range notifiers {
			if target != nil {
				target.Notify(ctx, n)
			}
		}
	})
}

// Logger writes notifications to an hclog logger, mapping level to severity.
func Logger(logger hclog.Logger) Notifier {
	return NotifierFunc(func(_ context.Context, n Notification) {
		args := []any{"kind", n.Kind}
		for k, v := range n.Fields {
			args = append(args, k, v)
		}
		switch n.Level {
		case LevelError:
			logger.Error(n.Message, args...)
		case LevelWarning:
			logger.Warn(n.Message, args...)
		default:
			logger.Info(n.Message, args...)
		}
	})
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Count returns how many notifications match level and kind; an empty kind matches any.
func (r *Recorder) Count(level Level, kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Level == level && (kind == "" || item.Kind == kind) {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
