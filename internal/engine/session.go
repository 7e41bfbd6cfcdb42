package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"focusline/internal/domain"
	"focusline/internal/notify"
	"focusline/internal/reconcile"
	"focusline/internal/session"
	"focusline/internal/timer"
)

// persistEvery is how many ticks pass between queue saves while running.
const persistEvery = 10

// Session is a live timer over the stored queue. Every transition is saved back
// to the queue; completions and un-completions are synced to the task store.
type Session struct {
	Timer *timer.Engine

	engine      Engine
	ctx         context.Context
	mu          sync.Mutex
	aiOptimized bool
	// saveMu keeps the image taken and its write together, so saves land in order.
	saveMu sync.Mutex
}

// OpenSession loads the stored queue into a timer.
func (e Engine) OpenSession(ctx context.Context) (*Session, error) {
	q, err := e.Sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	s := &Session{
		Timer:       timer.New(q.Items),
		engine:      e,
		ctx:         context.WithoutCancel(ctx),
		aiOptimized: q.AIOptimized,
	}
	s.Timer.OnEvent(s.handle)
	return s, nil
}

// Queue returns the current items with the optimized flag.
func (s *Session) Queue() session.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return session.Queue{Items: s.Timer.Items(), AIOptimized: s.aiOptimized}
}

// Save writes the timer's items back to the queue.
func (s *Session) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.engine.Sessions.Save(ctx, s.Queue())
}

// Replace swaps in a freshly planned queue. A running Runner keeps ticking the
// same timer.
func (s *Session) Replace(q session.Queue) {
	s.Timer.Replace(q.Items)
	s.mu.Lock()
	s.aiOptimized = q.AIOptimized
	s.mu.Unlock()
}

func (s *Session) Remove(ctx context.Context, id string) error {
	if err := s.Timer.Remove(id); err != nil {
		return err
	}
	return s.Save(ctx)
}

// Run ticks the timer every interval until ctx ends, saving periodically and once
// more on the way out. With stopWhenIdle it also returns after a completion.
func (s *Session) Run(ctx context.Context, interval time.Duration, stopWhenIdle bool, onTick func(timer.TickResult)) error {
	if stopWhenIdle && s.Timer.ActiveID() == "" {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ticks := 0
	r := &timer.Runner{
		Engine:   s.Timer,
		Interval: interval,
		Logger:   s.engine.logger().Named("timer"),
		OnTick: func(res timer.TickResult) {
			ticks++
			if onTick != nil {
				onTick(res)
			}
			if ticks%persistEvery == 0 {
				if err := s.Save(ctx); err != nil {
					s.engine.logger().Warn("save session queue failed", "error", err)
				}
			}
			if res.Completed && stopWhenIdle {
				cancel()
			}
		},
	}
	err := r.Run(ctx)
	if saveErr := s.Save(context.WithoutCancel(ctx)); saveErr != nil {
		return saveErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Session) handle(ev timer.Event) {
	e := s.engine
	ctx := s.ctx
	fields := map[string]any{"item_id": ev.Item.ID, "task_id": ev.Item.OriginalTodoID, "remaining": ev.Item.RemainingTime}
	switch ev.Kind {
	case timer.EventStarted:
		e.notify(ctx, notify.LevelInfo, notify.KindTimer, fmt.Sprintf("Started %q", ev.Item.Text), fields)
	case timer.EventStopped:
		e.notify(ctx, notify.LevelInfo, notify.KindTimer, fmt.Sprintf("Paused %q at %s", ev.Item.Text, Clock(ev.Item.RemainingTime)), fields)
	case timer.EventReset:
		e.notify(ctx, notify.LevelInfo, notify.KindTimer, fmt.Sprintf("Reset %q", ev.Item.Text), fields)
	case timer.EventCompleted:
		e.notify(ctx, notify.LevelSuccess, notify.KindTimer, fmt.Sprintf("Completed %q", ev.Item.Text), fields)
		s.sync(ctx, ev.Item, e.Sync.SyncCompletion)
	case timer.EventUncompleted:
		e.notify(ctx, notify.LevelInfo, notify.KindTimer, fmt.Sprintf("Marked %q as not done", ev.Item.Text), fields)
		s.sync(ctx, ev.Item, e.Sync.SyncUncompletion)
	}
	if err := s.Save(ctx); err != nil {
		e.logger().Warn("save session queue failed", "error", err)
	}
}

func (s *Session) sync(ctx context.Context, item domain.PomodoroItem, fn func(context.Context, domain.PomodoroItem) error) {
	err := fn(ctx, item)
	switch {
	case err == nil, errors.Is(err, reconcile.ErrTargetNotFound):
	default:
		s.engine.logger().Error("sync to task store failed", "item", item.ID, "error", err)
		s.engine.notify(ctx, notify.LevelError, notify.KindSync, "Could not update your lists", map[string]any{"error": err.Error()})
	}
}

// Clock renders seconds as MM:SS.
func Clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
