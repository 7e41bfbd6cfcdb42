package store

import (
	"context"
	"strings"

	"focusline/internal/domain"
	"focusline/internal/snapshot"
)

type TaskInput struct {
	Text          string
	Description   string
	Category      domain.Category
	Priority      domain.Priority
	Status        domain.Status
	EstimatedTime int
	DueDate       *domain.Date
	Tags          []string
	EnergyLevel   domain.EnergyLevel
	Complexity    domain.Complexity
}

// TaskPatch changes only the non-nil fields. ClearDueDate wins over DueDate.
type TaskPatch struct {
	Text          *string
	Description   *string
	Category      *domain.Category
	Priority      *domain.Priority
	Status        *domain.Status
	EstimatedTime *int
	DueDate       *domain.Date
	ClearDueDate  bool
	Tags          *[]string
	EnergyLevel   *domain.EnergyLevel
	Complexity    *domain.Complexity
}

func userStatus(s domain.Status) error {
	if s == domain.StatusInProgress {
		return invalid("status %s is set by the timer", s)
	}
	if !s.IsValid() {
		return invalid("unknown status %q", s)
	}
	return nil
}

// AddTask appends a task to a list. Missing category, priority and estimate
// default to the list's category, medium and DefaultEstimate.
func (s *Store) AddTask(ctx context.Context, listID string, in TaskInput) (domain.Task, error) {
	if strings.TrimSpace(in.Text) == "" {
		return domain.Task{}, invalid("task text is required")
	}
	if in.Status == "" {
		in.Status = domain.StatusPending
	}
	if err := userStatus(in.Status); err != nil {
		return domain.Task{}, err
	}
	if in.EstimatedTime < 0 {
		return domain.Task{}, invalid("estimated time must be positive")
	}
	var out domain.Task
	err := s.mutate(ctx, func(snap *snapshot.Snapshot) error {
		i := snap.List(listID)
		if i < 0 {
			return listNotFound(listID)
		}
		l := &snap.State.Lists[i]
		now := s.now().UTC()
		t := domain.Task{
			ID:            s.newID(),
			Text:          strings.TrimSpace(in.Text),
			Description:   in.Description,
			Category:      in.Category,
			Priority:      in.Priority,
			Status:        in.Status,
			EstimatedTime: in.EstimatedTime,
			DueDate:       in.DueDate,
			Tags:          domain.NormalizeTags(in.Tags),
			EnergyLevel:   in.EnergyLevel,
			Complexity:    in.Complexity,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if t.Category == "" {
			t.Category = l.Category
		}
		if t.Priority == "" {
			t.Priority = domain.PriorityMedium
		}
		if t.EstimatedTime == 0 {
			t.EstimatedTime = DefaultEstimate
		}
		if err := t.Validate(); err != nil {
			return invalid("%v", err)
		}
		l.Items = append(l.Items, t)
		l.UpdatedAt = now
		out = t
		return nil
	})
	return out, err
}

func (s *Store) UpdateTask(ctx context.Context, listID, taskID string, patch TaskPatch) (domain.Task, error) {
	if patch.Text != nil && strings.TrimSpace(*patch.Text) == "" {
		return domain.Task{}, invalid("task text is required")
	}
	if patch.Status != nil {
		if err := userStatus(*patch.Status); err != nil {
			return domain.Task{}, err
		}
	}
	var out domain.Task
	err := s.mutate(ctx, func(snap *snapshot.Snapshot) error {
		li := snap.List(listID)
		if li < 0 {
			return listNotFound(listID)
		}
		l := &snap.State.Lists[li]
		ti := l.Task(taskID)
		if ti < 0 {
			return taskNotFound(listID, taskID)
		}
		t := l.Items[ti]
		applyPatch(&t, patch)
		if err := t.Validate(); err != nil {
			return invalid("%v", err)
		}
		now := s.now().UTC()
		t.UpdatedAt = now
		l.Items[ti] = t
		l.UpdatedAt = now
		out = t
		return nil
	})
	return out, err
}

func applyPatch(t *domain.Task, p TaskPatch) {
	if p.Text != nil {
		t.Text = strings.TrimSpace(*p.Text)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.EstimatedTime != nil {
		t.EstimatedTime = *p.EstimatedTime
	}
	if p.DueDate != nil {
		due := *p.DueDate
		t.DueDate = &due
	}
	if p.ClearDueDate {
		t.DueDate = nil
	}
	if p.Tags != nil {
		t.Tags = domain.NormalizeTags(*p.Tags)
	}
	if p.EnergyLevel != nil {
		t.EnergyLevel = *p.EnergyLevel
	}
	if p.Complexity != nil {
		t.Complexity = *p.Complexity
	}
}

func (s *Store) DeleteTask(ctx context.Context, listID, taskID string) error {
	return s.mutate(ctx, func(snap *snapshot.Snapshot) error {
		li := snap.List(listID)
		if li < 0 {
			return listNotFound(listID)
		}
		l := &snap.State.Lists[li]
		ti := l.Task(taskID)
		if ti < 0 {
			return taskNotFound(listID, taskID)
		}
		l.Items = append(l.Items[:ti], l.Items[ti+1:]...)
		l.UpdatedAt = s.now().UTC()
		return nil
	})
}

// MoveTask removes a task from one list and appends it to another.
func (s *Store) MoveTask(ctx context.Context, fromListID, toListID, taskID string) (domain.Task, error) {
	var out domain.Task
	err := s.mutate(ctx, func(snap *snapshot.Snapshot) error {
		fi, ti := snap.List(fromListID), snap.List(toListID)
		if fi < 0 {
			return listNotFound(fromListID)
		}
		if ti < 0 {
			return listNotFound(toListID)
		}
		from := &snap.State.Lists[fi]
		idx := from.Task(taskID)
		if idx < 0 {
			return taskNotFound(fromListID, taskID)
		}
		if fi == ti {
			out = from.Items[idx]
			return nil
		}
		now := s.now().UTC()
		t := from.Items[idx]
		t.UpdatedAt = now
		from.Items = append(from.Items[:idx], from.Items[idx+1:]...)
		from.UpdatedAt = now
		to := &snap.State.Lists[ti]
		to.Items = append(to.Items, t)
		to.UpdatedAt = now
		out = t
		return nil
	})
	return out, err
}
