// Package reconcile writes pomodoro outcomes back into the task store snapshot.
//
// Every call is a blind read-modify-write of the whole snapshot. An update whose
// target list or task cannot be found is dropped after one warning; nothing is
// queued or retried.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"focusline/internal/domain"
	"focusline/internal/notify"
	"focusline/internal/optimize"
	"focusline/internal/selector"
	"focusline/internal/snapshot"
)

// ErrTargetNotFound is returned after the drop has already been notified.
var ErrTargetNotFound = errors.New("reconcile: source task not found")

type Syncer struct {
	Snapshots snapshot.Repository
	Notify    notify.Notifier
	Logger    hclog.Logger
	Now       func() time.Time
}

func New(repo snapshot.Repository, n notify.Notifier, logger hclog.Logger) *Syncer {
	return &Syncer{Snapshots: repo, Notify: n, Logger: logger, Now: time.Now}
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Syncer) logger() hclog.Logger {
	if s.Logger == nil {
		return hclog.NewNullLogger()
	}
	return s.Logger
}

func (s *Syncer) notify(ctx context.Context, level notify.Level, msg string, fields map[string]any) {
	if s.Notify == nil {
		return
	}
	s.Notify.Notify(ctx, notify.Notification{Level: level, Kind: notify.KindSync, Message: msg, Fields: fields, TS: s.now()})
}

// locate returns list and task indexes; either is -1 when missing.
func locate(snap snapshot.Snapshot, listID, taskID string) (int, int) {
	li := snap.List(listID)
	if li < 0 {
		return -1, -1
	}
	return li, snap.State.Lists[li].Task(taskID)
}

// SyncCompletion marks the source task of item completed.
func (s *Syncer) SyncCompletion(ctx context.Context, item domain.PomodoroItem) error {
	return s.syncStatus(ctx, item, domain.StatusCompleted)
}

// SyncUncompletion puts the source task of item back to pending.
func (s *Syncer) SyncUncompletion(ctx context.Context, item domain.PomodoroItem) error {
	return s.syncStatus(ctx, item, domain.StatusPending)
}

func (s *Syncer) syncStatus(ctx context.Context, item domain.PomodoroItem, status domain.Status) error {
	snap, err := s.Snapshots.Load(ctx)
	if err != nil {
		return err
	}
	li, ti := locate(snap, item.OriginalListID, item.OriginalTodoID)
	if li < 0 || ti < 0 {
		s.logger().Warn("sync target not found", "list", item.OriginalListID, "task", item.OriginalTodoID, "status", status)
		s.notify(ctx, notify.LevelWarning, fmt.Sprintf("Could not update %q in your lists: task not found", item.Text),
			map[string]any{"list_id": item.OriginalListID, "task_id": item.OriginalTodoID})
		return fmt.Errorf("%w: list=%s task=%s", ErrTargetNotFound, item.OriginalListID, item.OriginalTodoID)
	}
	t := &snap.State.Lists[li].Items[ti]
	t.Status = status
	t.UpdatedAt = s.now().UTC()
	if err := s.Snapshots.Save(ctx, snap); err != nil {
		return err
	}
	msg := fmt.Sprintf("Marked %q as %s", t.Text, status)
	s.notify(ctx, notify.LevelSuccess, msg, map[string]any{"list_id": item.OriginalListID, "task_id": t.ID, "status": string(status)})
	return nil
}

// SyncOptimizedTimes copies optimized estimates onto the source tasks. Results
// are paired with originals by position. It returns how many tasks changed;
// missing tasks are skipped and reported in a single warning.
func (s *Syncer) SyncOptimizedTimes(ctx context.Context, optimized []optimize.Result, originals []selector.Candidate) (int, error) {
	snap, err := s.Snapshots.Load(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now().UTC()
	var changes []string
	missing := 0
	for i, res := range optimized {
		if i >= len(originals) {
			break
		}
		src := originals[i]
		li, ti := locate(snap, src.ListID, src.Task.ID)
		if li < 0 || ti < 0 {
			missing++
			s.logger().Warn("optimized time target not found", "list", src.ListID, "task", src.Task.ID)
			continue
		}
		t := &snap.State.Lists[li].Items[ti]
		before := t.EstimatedTime
		if before <= 0 {
			before = domain.DefaultSessionSeconds / 60
		}
		after := res.EstimatedTime
		if after <= 0 {
			after = before
		}
		if after == before && t.EstimatedTime > 0 {
			continue
		}
		t.EstimatedTime = after
		t.UpdatedAt = now
		changes = append(changes, fmt.Sprintf("%s: %d → %d min", t.Text, before, after))
	}
	if missing > 0 {
		s.notify(ctx, notify.LevelWarning, fmt.Sprintf("Could not update %d optimized times: task not found", missing),
			map[string]any{"missing": missing})
	}
	if len(changes) == 0 {
		return 0, nil
	}
	if err := s.Snapshots.Save(ctx, snap); err != nil {
		return 0, err
	}
	s.notify(ctx, notify.LevelInfo, fmt.Sprintf("Updated %d todo times: %s", len(changes), summarize(changes, 3)),
		map[string]any{"updated": len(changes)})
	return len(changes), nil
}

func summarize(items []string, max int) string {
	if len(items) <= max {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(items[:max], ", "), len(items)-max)
}
