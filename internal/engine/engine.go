package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"focusline/internal/breaks"
	"focusline/internal/domain"
	"focusline/internal/kv"
	"focusline/internal/notify"
	"focusline/internal/optimize"
	"focusline/internal/reconcile"
	"focusline/internal/selector"
	"focusline/internal/session"
	"focusline/internal/snapshot"
	"focusline/internal/store"
)

// ErrNoSelection is returned when a plan names no task that passes the filters.
var ErrNoSelection = errors.New("engine: select at least one task")

// Engine wires selection, optional optimization, the timer and write-back sync
// over one kv namespace.
type Engine struct {
	Store     *store.Store
	Sessions  *session.Store
	Optimizer *optimize.Requestor
	Sync      *reconcile.Syncer
	Notify    notify.Notifier
	Logger    hclog.Logger
	Now       func() time.Time
	NewID     func() string
}

// New builds an Engine. A nil optimizer disables the optimized path.
func New(kvStore kv.Store, n notify.Notifier, optimizer *optimize.Requestor, logger hclog.Logger) Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if n == nil {
		n = notify.Discard
	}
	repo := snapshot.NewKVRepository(kvStore, logger.Named("snapshot"))
	return Engine{
		Store:     store.New(repo),
		Sessions:  session.NewStore(kvStore, logger.Named("session")),
		Optimizer: optimizer,
		Sync:      reconcile.New(repo, n, logger.Named("sync")),
		Notify:    n,
		Logger:    logger,
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) logger() hclog.Logger {
	if e.Logger == nil {
		return hclog.NewNullLogger()
	}
	return e.Logger
}

func (e Engine) notify(ctx context.Context, level notify.Level, kind, msg string, fields map[string]any) {
	if e.Notify == nil {
		return
	}
	e.Notify.Notify(ctx, notify.Notification{Level: level, Kind: kind, Message: msg, Fields: fields, TS: e.now()})
}

// Select ranks every task that passes c.
func (e Engine) Select(ctx context.Context, c selector.Criteria) ([]selector.Candidate, error) {
	lists, err := e.Store.Lists(ctx)
	if err != nil {
		return nil, err
	}
	return selector.Select(lists, c, e.now()), nil
}

// PlanOptions describe a session to queue.
type PlanOptions struct {
	TaskIDs  []string
	Criteria selector.Criteria
	Context  optimize.Context
	Optimize bool
}

// Plan is the queued session.
type Plan struct {
	Queue session.Queue `json:"queue"`
	// FellBack is set when optimization was requested but the direct path was used.
	FellBack bool `json:"fellBack"`
	// Updated counts task estimates rewritten from optimized times.
	Updated int `json:"updated"`
}

// PlanSession converts the chosen tasks into a pomodoro queue and stores it.
// When optimization fails the direct path is used after one warning. A
// superseded optimization returns optimize.ErrStale and leaves the queue as is.
func (e Engine) PlanSession(ctx context.Context, opts PlanOptions) (Plan, error) {
	d, err := e.Prepare(ctx, opts)
	if err != nil {
		return Plan{}, err
	}
	return e.Commit(ctx, d)
}

// Draft is a plan that has been selected and optionally optimized but not
// written anywhere yet.
type Draft struct {
	opts      PlanOptions
	picked    []selector.Candidate
	optimized []optimize.Optimized
	optErr    error
	seq       uint64
}

// Prepare picks the tasks and runs the optimizer when asked. It writes nothing,
// so callers may run it without holding their write lock.
func (e Engine) Prepare(ctx context.Context, opts PlanOptions) (Draft, error) {
	if len(opts.TaskIDs) == 0 {
		return Draft{}, ErrNoSelection
	}
	candidates, err := e.Select(ctx, opts.Criteria)
	if err != nil {
		return Draft{}, err
	}
	picked := selector.Pick(candidates, opts.TaskIDs)
	if len(picked) == 0 {
		return Draft{}, fmt.Errorf("%w: none of %d ids match the filters", ErrNoSelection, len(opts.TaskIDs))
	}
	d := Draft{opts: opts, picked: picked}
	if !opts.Optimize {
		return d, nil
	}
	if e.Optimizer == nil {
		d.optErr = errors.New("optimizer is disabled")
		return d, nil
	}
	oc := opts.Context
	oc.Ranges = opts.Criteria.Ranges
	oc.Categories = opts.Criteria.Categories
	d.optimized, d.seq, d.optErr = e.Optimizer.Issue(ctx, picked, oc)
	if errors.Is(d.optErr, optimize.ErrStale) {
		return Draft{}, d.optErr
	}
	return d, nil
}

// Commit stores the draft's queue. A draft whose optimization was superseded
// since Prepare returns optimize.ErrStale without writing.
func (e Engine) Commit(ctx context.Context, d Draft) (Plan, error) {
	if d.seq != 0 && e.Optimizer != nil && !e.Optimizer.Current(d.seq) {
		return Plan{}, optimize.ErrStale
	}
	if d.opts.Optimize && d.optErr == nil {
		return e.queueOptimized(ctx, d.picked, d.optimized, d.opts.Context.FreeText)
	}
	var plan Plan
	if d.opts.Optimize {
		e.logger().Warn("falling back to direct session", "error", d.optErr)
		e.notify(ctx, notify.LevelWarning, notify.KindOptimize, "AI optimization failed. Using standard optimization instead.",
			map[string]any{"error": d.optErr.Error()})
		plan.FellBack = true
	}
	plan.Queue = session.Queue{Items: e.DirectItems(d.picked, d.opts.Context.FreeText), AIOptimized: false}
	if err := e.Sessions.Save(ctx, plan.Queue); err != nil {
		return Plan{}, err
	}
	e.notify(ctx, notify.LevelSuccess, notify.KindSession, fmt.Sprintf("Added %d todos to Pomodoro", len(plan.Queue.Items)),
		map[string]any{"count": len(plan.Queue.Items)})
	return plan, nil
}

func (e Engine) queueOptimized(ctx context.Context, picked []selector.Candidate, optimized []optimize.Optimized, freeText string) (Plan, error) {
	plan := Plan{Queue: session.Queue{Items: e.OptimizedItems(optimized, freeText), AIOptimized: true}}
	if err := e.Sessions.Save(ctx, plan.Queue); err != nil {
		return Plan{}, err
	}
	results := make([]optimize.Result, len(optimized))
	for i, o := range optimized {
		results[i] = o.Result
	}
	n, err := e.Sync.SyncOptimizedTimes(ctx, results, picked)
	if err != nil {
		e.logger().Warn("sync optimized times failed", "error", err)
	}
	plan.Updated = n
	e.notify(ctx, notify.LevelSuccess, notify.KindOptimize,
		fmt.Sprintf("AI optimized %d todos with custom breaks and time adjustments", len(plan.Queue.Items)),
		map[string]any{"count": len(plan.Queue.Items), "updated": n})
	return plan, nil
}

// DirectItems projects candidates into pomodoro items without optimization.
func (e Engine) DirectItems(picked []selector.Candidate, freeText string) []domain.PomodoroItem {
	freeText = strings.TrimSpace(freeText)
	items := make([]domain.PomodoroItem, 0, len(picked))
	for _, c := range picked {
		t := c.Task
		desc := t.Description
		if freeText != "" {
			desc = fmt.Sprintf("%s\n\nAdditional Context: %s", t.Description, freeText)
		}
		items = append(items, domain.PomodoroItem{
			ID:            e.newID(),
			Text:          t.Text,
			Description:   desc,
			Status:        domain.StatusPending,
			RemainingTime: domain.SessionSeconds(t.EstimatedTime),
			Priority:      t.Priority,
			Category:      t.Category,
			EnergyLevel:   t.EnergyLevel,
			Complexity:    t.Complexity,
			BackRef:       domain.NewBackRef(c.ListID, t),
		})
	}
	return items
}

// OptimizedItems projects optimization results, keeping back references to the
// candidates they were requested for.
func (e Engine) OptimizedItems(optimized []optimize.Optimized, freeText string) []domain.PomodoroItem {
	freeText = strings.TrimSpace(freeText)
	if freeText == "" {
		freeText = "None"
	}
	items := make([]domain.PomodoroItem, 0, len(optimized))
	for _, o := range optimized {
		src, res := o.Source.Task, o.Result
		item := domain.PomodoroItem{
			ID:            e.newID(),
			Text:          firstNonEmpty(res.Text, src.Text),
			Status:        domain.StatusPending,
			RemainingTime: res.RemainingTime,
			CustomBreak:   res.CustomBreak,
			Priority:      src.Priority,
			Category:      src.Category,
			EnergyLevel:   res.EnergyLevel,
			Complexity:    res.Complexity,
			BackRef:       domain.NewBackRef(o.Source.ListID, src),
		}
		if res.Priority != "" {
			item.Priority = res.Priority
		}
		if res.Category != "" {
			item.Category = res.Category
		}
		if item.CustomBreak == nil {
			b := breaks.ForTask(item.Category, item.Complexity, item.Priority)
			item.CustomBreak = &b
		}
		item.Description = fmt.Sprintf("%s\n\nAI Optimization:\n- Energy Level: %s\n- Complexity: %s\n- Custom Break: %s\n\nAdditional Context: %s",
			firstNonEmpty(res.Description, src.Description), item.EnergyLevel, item.Complexity, item.CustomBreak.Activity, freeText)
		items = append(items, item)
	}
	return items
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
