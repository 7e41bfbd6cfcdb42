package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusline/internal/domain"
)

func item(id string, remaining int) domain.PomodoroItem {
	return domain.PomodoroItem{
		ID: id, Text: id, Status: domain.StatusPending, RemainingTime: remaining,
		BackRef: domain.BackRef{OriginalTodoID: "todo-" + id, OriginalListID: "work"},
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func running(e *Engine) []string {
	var ids []string
	for _, it := range e.Items() {
		if it.IsRunning {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

func TestStartKeepsSingleActiveItem(t *testing.T) {
	e := New([]domain.PomodoroItem{item("A", 1500), item("B", 1500)})
	require.NoError(t, e.Start("A"))
	require.NoError(t, e.Start("B"))

	assert.Equal(t, []string{"B"}, running(e))
	assert.Equal(t, "B", e.ActiveID())
	a, _ := e.Item("A")
	assert.False(t, a.IsRunning)
	b, _ := e.Item("B")
	assert.Equal(t, domain.StatusInProgress, b.Status)
}

func TestNewDemotesExtraRunningItems(t *testing.T) {
	a, b := item("A", 10), item("B", 10)
	a.IsRunning, b.IsRunning = true, true
	e := New([]domain.PomodoroItem{a, b})
	assert.Equal(t, []string{"A"}, running(e))
	assert.Equal(t, "A", e.ActiveID())
}

func TestTickCountsDownAndCompletesOnce(t *testing.T) {
	e := New([]domain.PomodoroItem{item("A", 2)})
	rec := &recorder{}
	e.OnEvent(rec.handle)
	require.NoError(t, e.Start("A"))

	var seen []int
	for i := 0; i < 2; i++ {
		seen = append(seen, e.Tick().Remaining)
	}
	assert.Equal(t, []int{1, 0}, seen)
	assert.Equal(t, 1, rec.count(EventCompleted))

	after := e.Tick()
	assert.Equal(t, TickResult{}, after)
	assert.Equal(t, 1, rec.count(EventCompleted))

	a, _ := e.Item("A")
	assert.False(t, a.IsRunning)
	assert.True(t, a.IsCompleted())
	assert.Equal(t, domain.DefaultSessionSeconds, a.RemainingTime)
	assert.Empty(t, e.ActiveID())

	rec.mu.Lock()
	completed := rec.events[len(rec.events)-1]
	rec.mu.Unlock()
	assert.Equal(t, "todo-A", completed.Item.OriginalTodoID)
	assert.Equal(t, "work", completed.Item.OriginalListID)
}

func TestTickWithoutActiveItemIsNoop(t *testing.T) {
	e := New([]domain.PomodoroItem{item("A", 5)})
	assert.Equal(t, TickResult{}, e.Tick())
	a, _ := e.Item("A")
	assert.Equal(t, 5, a.RemainingTime)
}

func TestStopPausesWithoutReset(t *testing.T) {
	e := New([]domain.PomodoroItem{item("A", 100)})
	require.NoError(t, e.Start("A"))
	e.Tick()
	e.Tick()
	require.NoError(t, e.Stop("A"))

	a, _ := e.Item("A")
	assert.Equal(t, 98, a.RemainingTime)
	assert.False(t, a.IsRunning)
	assert.Empty(t, e.ActiveID())
	assert.Equal(t, TickResult{}, e.Tick())

	require.NoError(t, e.Start("A"))
	assert.Equal(t, 97, e.Tick().Remaining)
}

func TestResetRestoresDefault(t *testing.T) {
	e := New([]domain.PomodoroItem{item("A", 100), item("B", 40)})
	require.NoError(t, e.Start("A"))
	e.Tick()
	require.NoError(t, e.Reset("A"))
	require.NoError(t, e.Reset("B"))

	a, _ := e.Item("A")
	b, _ := e.Item("B")
	assert.Equal(t, domain.DefaultSessionSeconds, a.RemainingTime)
	assert.Equal(t, domain.DefaultSessionSeconds, b.RemainingTime)
	assert.False(t, a.IsRunning)
	assert.Equal(t, domain.StatusPending, a.Status)
	assert.Empty(t, e.ActiveID())
}

func TestUnknownItem(t *testing.T) {
	e := New(nil)
	assert.True(t, errors.Is(e.Start("x"), ErrUnknownItem))
	assert.True(t, errors.Is(e.Stop("x"), ErrUnknownItem))
	assert.True(t, errors.Is(e.Reset("x"), ErrUnknownItem))
	assert.True(t, errors.Is(e.Remove("x"), ErrUnknownItem))
	_, err := e.ToggleComplete("x")
	assert.True(t, errors.Is(err, ErrUnknownItem))
}

func TestToggleComplete(t *testing.T) {
	e := New([]domain.PomodoroItem{item("A", 300)})
	rec := &recorder{}
	e.OnEvent(rec.handle)
	require.NoError(t, e.Start("A"))

	got, err := e.ToggleComplete("A")
	require.NoError(t, err)
	assert.True(t, got.IsCompleted())
	assert.False(t, got.IsRunning)
	assert.Empty(t, e.ActiveID())
	assert.Equal(t, 1, rec.count(EventCompleted))

	got, err = e.ToggleComplete("A")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 1, rec.count(EventUncompleted))
}

func TestStartNextSkipsCompleted(t *testing.T) {
	done := item("A", 10)
	done.Status = domain.StatusCompleted
	e := New([]domain.PomodoroItem{done, item("B", 10)})
	started, err := e.StartNext()
	require.NoError(t, err)
	assert.Equal(t, "B", started.ID)

	_, _ = e.ToggleComplete("B")
	_, err = e.StartNext()
	assert.ErrorIs(t, err, ErrNothingToDo)
}

func TestItemsOrdersActiveBeforeCompleted(t *testing.T) {
	done := item("A", 10)
	done.Status = domain.StatusCompleted
	e := New([]domain.PomodoroItem{done, item("B", 10), item("C", 10)})
	var order []string
	for _, it := range e.Items() {
		order = append(order, it.ID)
	}
	assert.Equal(t, []string{"B", "C", "A"}, order)
}

func TestAddAndRemove(t *testing.T) {
	e := New(nil)
	queued := item("A", 0)
	queued.IsRunning = true
	e.Add(queued)
	a, ok := e.Item("A")
	require.True(t, ok)
	assert.False(t, a.IsRunning)
	assert.Equal(t, domain.DefaultSessionSeconds, a.RemainingTime)

	require.NoError(t, e.Start("A"))
	require.NoError(t, e.Remove("A"))
	assert.Empty(t, e.ActiveID())
	assert.Empty(t, e.Items())
}

func TestHandlersMayCallBackIntoEngine(t *testing.T) {
	e := New([]domain.PomodoroItem{item("A", 1), item("B", 5)})
	e.OnEvent(func(ev Event) {
		if ev.Kind == EventCompleted {
			_, _ = e.StartNext()
		}
	})
	require.NoError(t, e.Start("A"))
	e.Tick()
	assert.Equal(t, "B", e.ActiveID())
}

func TestRunnerTicksUntilCancelled(t *testing.T) {
	e := New([]domain.PomodoroItem{item("A", 3)})
	require.NoError(t, e.Start("A"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completed := make(chan TickResult, 1)
	r := &Runner{Engine: e, Interval: time.Millisecond, OnTick: func(res TickResult) {
		if res.Completed {
			completed <- res
		}
	}}
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case res := <-completed:
		assert.Equal(t, "A", res.ItemID)
		assert.Equal(t, 0, res.Remaining)
	case <-time.After(5 * time.Second):
		t.Fatal("runner never completed the item")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
