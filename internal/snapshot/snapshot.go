// Package snapshot persists the whole task store as one versioned JSON document.
//
// Callers follow read full snapshot, mutate in memory, write full snapshot back.
// That is only safe with a single writer; two processes sharing a workspace can
// clobber each other's updates.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"focusline/internal/domain"
	"focusline/internal/kv"
)

// Key is the kv key holding the task store snapshot.
const Key = "mylist-store"

// CurrentVersion is the schema version written by Save.
const CurrentVersion = 2

var ErrFutureVersion = errors.New("snapshot: written by a newer schema version")

type State struct {
	Lists        []domain.List `json:"lists"`
	ActiveListID string        `json:"activeListId,omitempty"`
}

type Snapshot struct {
	Version int   `json:"version"`
	State   State `json:"state"`
}

// Empty returns a snapshot with no lists at the current version.
func Empty() Snapshot {
	return Snapshot{Version: CurrentVersion, State: State{Lists: []domain.List{}}}
}

// List returns the index of the list with the given id, or -1.
func (s Snapshot) List(id string) int {
	for i := range s.State.Lists {
		if s.State.Lists[i].ID == id {
			return i
		}
	}
	return -1
}

type Repository interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
}

// KVRepository stores the snapshot under a single kv key.
type KVRepository struct {
	KV     kv.Store
	Key    string
	Logger hclog.Logger
}

func NewKVRepository(store kv.Store, logger hclog.Logger) *KVRepository {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &KVRepository{KV: store, Key: Key, Logger: logger}
}

func (r *KVRepository) key() string {
	if r.Key == "" {
		return Key
	}
	return r.Key
}

func (r *KVRepository) logger() hclog.Logger {
	if r.Logger == nil {
		return hclog.NewNullLogger()
	}
	return r.Logger
}

// Load returns the stored snapshot migrated to CurrentVersion. A missing key or
// a document that does not parse is treated as no prior data.
func (r *KVRepository) Load(ctx context.Context) (Snapshot, error) {
	data, err := r.KV.Get(ctx, r.key())
	if errors.Is(err, kv.ErrNotFound) {
		return Empty(), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := Decode(data)
	if errors.Is(err, ErrFutureVersion) {
		return Snapshot{}, err
	}
	if err != nil {
		r.logger().Warn("discarding unreadable snapshot", "key", r.key(), "error", err)
		return Empty(), nil
	}
	return snap, nil
}

func (r *KVRepository) Save(ctx context.Context, s Snapshot) error {
	s.Version = CurrentVersion
	if s.State.Lists == nil {
		s.State.Lists = []domain.List{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.KV.Set(ctx, r.key(), data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
