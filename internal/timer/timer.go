// Package timer runs pomodoro countdowns. At most one item runs at a time.
package timer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"focusline/internal/domain"
)

var (
	ErrUnknownItem = errors.New("timer: unknown item")
	ErrNothingToDo = errors.New("timer: every item is completed")
)

type EventKind string

const (
	EventStarted     EventKind = "started"
	EventStopped     EventKind = "stopped"
	EventReset       EventKind = "reset"
	EventCompleted   EventKind = "completed"
	EventUncompleted EventKind = "uncompleted"
)

// Event carries a copy of the item after the transition, back reference included.
type Event struct {
	Kind EventKind
	Item domain.PomodoroItem
}

// TickResult reports what a tick did. ItemID is empty when nothing was running.
type TickResult struct {
	ItemID    string
	Remaining int
	Completed bool
}

// Engine owns a session's items. Handlers run after the engine lock is released,
// so they may call back into the engine.
type Engine struct {
	mu       sync.Mutex
	items    []domain.PomodoroItem
	active   string
	handlers []func(Event)
}

// New takes ownership of a copy of items. If several are marked running, only the
// first keeps running.
func New(items []domain.PomodoroItem) *Engine {
	e := &Engine{}
	e.items, e.active = load(items)
	return e
}

// Replace swaps in a new set of items, keeping registered handlers.
func (e *Engine) Replace(items []domain.PomodoroItem) {
	loaded, active := load(items)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items, e.active = loaded, active
}

func load(items []domain.PomodoroItem) ([]domain.PomodoroItem, string) {
	out := make([]domain.PomodoroItem, 0, len(items))
	active := ""
	for _, it := range items {
		if it.RemainingTime < 0 {
			it.RemainingTime = 0
		}
		if it.IsRunning {
			if active == "" && !it.IsCompleted() {
				active = it.ID
			} else {
				it.IsRunning = false
			}
		}
		out = append(out, it)
	}
	return out, active
}

// OnEvent registers fn for every transition.
func (e *Engine) OnEvent(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, fn)
}

func (e *Engine) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	e.mu.Lock()
	handlers := append([]func(Event){}, e.handlers...)
	e.mu.Unlock()
	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}

func (e *Engine) index(id string) int {
	for i := range e.items {
		if e.items[i].ID == id {
			return i
		}
	}
	return -1
}

func unknown(id string) error {
	return fmt.Errorf("%w: %s", ErrUnknownItem, id)
}

// Start runs id and stops whatever else was running.
func (e *Engine) Start(id string) error {
	e.mu.Lock()
	i := e.index(id)
	if i < 0 {
		e.mu.Unlock()
		return unknown(id)
	}
	var events []Event
	for j := range e.items {
		if j != i && e.items[j].IsRunning {
			e.items[j].IsRunning = false
			events = append(events, Event{Kind: EventStopped, Item: e.items[j]})
		}
	}
	it := &e.items[i]
	if it.RemainingTime <= 0 {
		it.RemainingTime = domain.DefaultSessionSeconds
	}
	it.IsRunning = true
	it.Status = domain.StatusInProgress
	e.active = id
	events = append(events, Event{Kind: EventStarted, Item: *it})
	e.mu.Unlock()
	e.emit(events)
	return nil
}

// StartNext starts the first item that is not completed.
func (e *Engine) StartNext() (domain.PomodoroItem, error) {
	e.mu.Lock()
	next := ""
	for _, it := range e.items {
		if !it.IsCompleted() {
			next = it.ID
			break
		}
	}
	e.mu.Unlock()
	if next == "" {
		return domain.PomodoroItem{}, ErrNothingToDo
	}
	if err := e.Start(next); err != nil {
		return domain.PomodoroItem{}, err
	}
	it, _ := e.Item(next)
	return it, nil
}

// Stop pauses id. Remaining time is kept.
func (e *Engine) Stop(id string) error {
	e.mu.Lock()
	i := e.index(id)
	if i < 0 {
		e.mu.Unlock()
		return unknown(id)
	}
	it := &e.items[i]
	wasRunning := it.IsRunning
	it.IsRunning = false
	if e.active == id {
		e.active = ""
	}
	ev := Event{Kind: EventStopped, Item: *it}
	e.mu.Unlock()
	if wasRunning {
		e.emit([]Event{ev})
	}
	return nil
}

// Reset puts id back to a full default session, running or not.
func (e *Engine) Reset(id string) error {
	e.mu.Lock()
	i := e.index(id)
	if i < 0 {
		e.mu.Unlock()
		return unknown(id)
	}
	it := &e.items[i]
	it.RemainingTime = domain.DefaultSessionSeconds
	it.IsRunning = false
	if it.Status.IsInProgress() {
		it.Status = domain.StatusPending
	}
	if e.active == id {
		e.active = ""
	}
	ev := Event{Kind: EventReset, Item: *it}
	e.mu.Unlock()
	e.emit([]Event{ev})
	return nil
}

// Tick advances the active item by one second. The tick that reaches zero
// completes the item and emits exactly one completion event. Without an active
// item it does nothing.
func (e *Engine) Tick() TickResult {
	e.mu.Lock()
	if e.active == "" {
		e.mu.Unlock()
		return TickResult{}
	}
	i := e.index(e.active)
	if i < 0 {
		e.active = ""
		e.mu.Unlock()
		return TickResult{}
	}
	it := &e.items[i]
	if it.RemainingTime > 0 {
		it.RemainingTime--
	}
	res := TickResult{ItemID: it.ID, Remaining: it.RemainingTime}
	if it.RemainingTime > 0 {
		e.mu.Unlock()
		return res
	}
	it.IsRunning = false
	it.Status = domain.StatusCompleted
	it.RemainingTime = domain.DefaultSessionSeconds
	e.active = ""
	res.Completed = true
	ev := Event{Kind: EventCompleted, Item: *it}
	e.mu.Unlock()
	e.emit([]Event{ev})
	return res
}

// ToggleComplete checks or unchecks id by hand. Checking a running item stops it.
func (e *Engine) ToggleComplete(id string) (domain.PomodoroItem, error) {
	e.mu.Lock()
	i := e.index(id)
	if i < 0 {
		e.mu.Unlock()
		return domain.PomodoroItem{}, unknown(id)
	}
	it := &e.items[i]
	var ev Event
	if it.IsCompleted() {
		it.Status = domain.StatusPending
		ev = Event{Kind: EventUncompleted}
	} else {
		it.Status = domain.StatusCompleted
		it.IsRunning = false
		if e.active == id {
			e.active = ""
		}
		ev = Event{Kind: EventCompleted}
	}
	ev.Item = *it
	e.mu.Unlock()
	e.emit([]Event{ev})
	return ev.Item, nil
}

// Add appends item stopped.
func (e *Engine) Add(item domain.PomodoroItem) {
	item.IsRunning = false
	if item.RemainingTime <= 0 {
		item.RemainingTime = domain.DefaultSessionSeconds
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = append(e.items, item)
}

func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.index(id)
	if i < 0 {
		return unknown(id)
	}
	e.items = append(e.items[:i], e.items[i+1:]...)
	if e.active == id {
		e.active = ""
	}
	return nil
}

func (e *Engine) Item(id string) (domain.PomodoroItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.index(id)
	if i < 0 {
		return domain.PomodoroItem{}, false
	}
	return e.items[i], true
}

func (e *Engine) ActiveID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Items returns a copy with not-completed items first, otherwise in queue order.
func (e *Engine) Items() []domain.PomodoroItem {
	e.mu.Lock()
	out := append([]domain.PomodoroItem(nil), e.items...)
	e.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].IsCompleted() && out[j].IsCompleted()
	})
	return out
}
