package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"focusline/internal/domain"
	"focusline/internal/snapshot"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrInvalidInput = errors.New("store: invalid input")
)

// DefaultEstimate is used when a task is added without an estimate.
const DefaultEstimate = 25

// Store owns lists and tasks. Every operation loads the full snapshot, mutates
// it in memory and saves it back.
type Store struct {
	Snapshots snapshot.Repository
	Now       func() time.Time
	NewID     func() string
}

func New(repo snapshot.Repository) *Store {
	return &Store{Snapshots: repo, Now: time.Now, NewID: uuid.NewString}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Store) mutate(ctx context.Context, fn func(*snapshot.Snapshot) error) error {
	snap, err := s.Snapshots.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&snap); err != nil {
		return err
	}
	return s.Snapshots.Save(ctx, snap)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func listNotFound(id string) error {
	return fmt.Errorf("list %s: %w", id, ErrNotFound)
}

func taskNotFound(listID, id string) error {
	return fmt.Errorf("task %s in list %s: %w", id, listID, ErrNotFound)
}

// Snapshot returns the current persisted state.
func (s *Store) Snapshot(ctx context.Context) (snapshot.Snapshot, error) {
	return s.Snapshots.Load(ctx)
}

func (s *Store) Lists(ctx context.Context) ([]domain.List, error) {
	snap, err := s.Snapshots.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.State.Lists, nil
}

func (s *Store) GetList(ctx context.Context, id string) (domain.List, error) {
	snap, err := s.Snapshots.Load(ctx)
	if err != nil {
		return domain.List{}, err
	}
	i := snap.List(id)
	if i < 0 {
		return domain.List{}, listNotFound(id)
	}
	return snap.State.Lists[i], nil
}

func (s *Store) CreateList(ctx context.Context, name string, category domain.Category) (domain.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.List{}, invalid("list name is required")
	}
	if !category.IsValid() {
		return domain.List{}, invalid("unknown category %q", category)
	}
	now := s.now().UTC()
	l := domain.List{
		ID:        s.newID(),
		Name:      name,
		Category:  category,
		Items:     []domain.Task{},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.mutate(ctx, func(snap *snapshot.Snapshot) error {
		snap.State.Lists = append(snap.State.Lists, l)
		return nil
	})
	return l, err
}

type ListPatch struct {
	Name     *string
	Category *domain.Category
	IsActive *bool
}

func (s *Store) UpdateList(ctx context.Context, id string, patch ListPatch) (domain.List, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domain.List{}, invalid("list name is required")
	}
	if patch.Category != nil && !patch.Category.IsValid() {
		return domain.List{}, invalid("unknown category %q", *patch.Category)
	}
	var out domain.List
	err := s.mutate(ctx, func(snap *snapshot.Snapshot) error {
		i := snap.List(id)
		if i < 0 {
			return listNotFound(id)
		}
		l := &snap.State.Lists[i]
		if patch.Name != nil {
			l.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Category != nil {
			l.Category = *patch.Category
		}
		if patch.IsActive != nil {
			l.IsActive = *patch.IsActive
		}
		l.UpdatedAt = s.now().UTC()
		out = *l
		return nil
	})
	return out, err
}

// DeleteList removes the list and every task in it.
func (s *Store) DeleteList(ctx context.Context, id string) error {
	return s.mutate(ctx, func(snap *snapshot.Snapshot) error {
		i := snap.List(id)
		if i < 0 {
			return listNotFound(id)
		}
		snap.State.Lists = append(snap.State.Lists[:i], snap.State.Lists[i+1:]...)
		if snap.State.ActiveListID == id {
			snap.State.ActiveListID = ""
		}
		return nil
	})
}

func (s *Store) SetActiveList(ctx context.Context, id string) error {
	return s.mutate(ctx, func(snap *snapshot.Snapshot) error {
		if snap.List(id) < 0 {
			return listNotFound(id)
		}
		snap.State.ActiveListID = id
		return nil
	})
}

func (s *Store) ActiveListID(ctx context.Context) (string, error) {
	snap, err := s.Snapshots.Load(ctx)
	if err != nil {
		return "", err
	}
	return snap.State.ActiveListID, nil
}

// Seed creates one empty list per category when the store has no lists.
// It reports whether anything was written.
func (s *Store) Seed(ctx context.Context) (bool, error) {
	seeded := false
	names := map[domain.Category]string{
		domain.CategoryWork:     "Work Tasks",
		domain.CategoryPersonal: "Personal Projects",
		domain.CategoryLearning: "Learning & Study",
		domain.CategoryHealth:   "Health & Wellness",
		domain.CategoryCreative: "Creative Projects",
	}
	err := s.mutate(ctx, func(snap *snapshot.Snapshot) error {
		if len(snap.State.Lists) > 0 {
			return nil
		}
		now := s.now().UTC()
		for _, c := range domain.Categories() {
			snap.State.Lists = append(snap.State.Lists, domain.List{
				ID: string(c), Name: names[c], Category: c, Items: []domain.Task{},
				IsActive: true, CreatedAt: now, UpdatedAt: now,
			})
		}
		snap.State.ActiveListID = string(domain.CategoryWork)
		seeded = true
		return nil
	})
	return seeded, err
}

// TasksByDate returns tasks due on date across all lists.
func (s *Store) TasksByDate(ctx context.Context, date domain.Date) ([]domain.Task, error) {
	lists, err := s.Lists(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Task
	for _, l := range lists {
		for _, t := range l.Items {
			if t.DueDate != nil && *t.DueDate == date {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// TasksByCategory returns the tasks of every list whose category matches.
func (s *Store) TasksByCategory(ctx context.Context, category domain.Category) ([]domain.Task, error) {
	lists, err := s.Lists(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Task
	for _, l := range lists {
		if l.Category == category {
			out = append(out, l.Items...)
		}
	}
	return out, nil
}

// RankForEnergy orders a list's tasks for the caller's energy: priority first,
// then tasks tagged with a matching energy, then shorter tasks first when energy
// is low and longer tasks first otherwise.
func (s *Store) RankForEnergy(ctx context.Context, listID string, energy domain.EnergyLevel) ([]domain.Task, error) {
	l, err := s.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	tasks := append([]domain.Task(nil), l.Items...)
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		am, bm := a.EnergyLevel == energy, b.EnergyLevel == energy
		if am != bm {
			return am
		}
		if energy == domain.EnergyLow {
			return a.EstimatedTime < b.EstimatedTime
		}
		return a.EstimatedTime > b.EstimatedTime
	})
	return tasks, nil
}
