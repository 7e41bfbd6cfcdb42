// Package session persists the queue of pomodoro items handed from planning to
// the timer. The queue is ephemeral; the task store stays authoritative.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-hclog"

	"focusline/internal/domain"
	"focusline/internal/kv"
)

const (
	ItemsKey     = "pomodoro-todos"
	OptimizedKey = "pomodoro-ai-optimized"
)

// Queue is a planned session.
type Queue struct {
	Items       []domain.PomodoroItem `json:"items"`
	AIOptimized bool                  `json:"aiOptimized"`
}

type Store struct {
	KV     kv.Store
	Logger hclog.Logger
}

func NewStore(store kv.Store, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{KV: store, Logger: logger}
}

func (s *Store) logger() hclog.Logger {
	if s.Logger == nil {
		return hclog.NewNullLogger()
	}
	return s.Logger
}

// Load returns the stored queue. Missing or unreadable data is an empty queue.
func (s *Store) Load(ctx context.Context) (Queue, error) {
	q := Queue{Items: []domain.PomodoroItem{}}
	data, err := s.KV.Get(ctx, ItemsKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return q, nil
	case err != nil:
		return q, fmt.Errorf("read session queue: %w", err)
	}
	if err := json.Unmarshal(data, &q.Items); err != nil {
		s.logger().Warn("discarding unreadable session queue", "key", ItemsKey, "error", err)
		return Queue{Items: []domain.PomodoroItem{}}, nil
	}
	flag, err := s.KV.Get(ctx, OptimizedKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return q, fmt.Errorf("read session flag: %w", err)
	default:
		q.AIOptimized, _ = strconv.ParseBool(string(flag))
	}
	return q, nil
}

// Save replaces the stored queue.
func (s *Store) Save(ctx context.Context, q Queue) error {
	if q.Items == nil {
		q.Items = []domain.PomodoroItem{}
	}
	data, err := json.Marshal(q.Items)
	if err != nil {
		return fmt.Errorf("marshal session queue: %w", err)
	}
	if err := s.KV.Set(ctx, ItemsKey, data); err != nil {
		return fmt.Errorf("write session queue: %w", err)
	}
	if err := s.KV.Set(ctx, OptimizedKey, []byte(strconv.FormatBool(q.AIOptimized))); err != nil {
		return fmt.Errorf("write session flag: %w", err)
	}
	return nil
}

// Clear drops the queue and its flag.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.KV.Delete(ctx, ItemsKey); err != nil {
		return err
	}
	return s.KV.Delete(ctx, OptimizedKey)
}
