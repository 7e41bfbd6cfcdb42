package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidCategory = errors.New("domain: invalid category")
	ErrInvalidPriority = errors.New("domain: invalid priority")
	ErrInvalidStatus   = errors.New("domain: invalid status")
	ErrInvalidEnergy   = errors.New("domain: invalid energy level")
)

type Category string

const (
	CategoryWork     Category = "work"
	CategoryPersonal Category = "personal"
	CategoryLearning Category = "learning"
	CategoryHealth   Category = "health"
	CategoryCreative Category = "creative"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{CategoryWork, CategoryPersonal, CategoryLearning, CategoryHealth, CategoryCreative}
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryWork, CategoryPersonal, CategoryLearning, CategoryHealth, CategoryCreative:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	return p.Rank() > 0
}

// Rank orders priorities; unknown values rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Status is the single source of truth for task progress.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

func (s Status) IsCompleted() bool { return s == StatusCompleted }

func (s Status) IsInProgress() bool { return s == StatusInProgress }

type EnergyLevel string

const (
	EnergyLow    EnergyLevel = "low"
	EnergyMedium EnergyLevel = "medium"
	EnergyHigh   EnergyLevel = "high"
)

func (e EnergyLevel) IsValid() bool {
	switch e {
	case EnergyLow, EnergyMedium, EnergyHigh:
		return true
	default:
		return false
	}
}

type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Task is a unit of work owned by exactly one List.
type Task struct {
	ID            string      `json:"id"`
	Text          string      `json:"text"`
	Description   string      `json:"description,omitempty"`
	Category      Category    `json:"category"`
	Priority      Priority    `json:"priority"`
	Status        Status      `json:"status"`
	EstimatedTime int         `json:"estimatedTime"` // minutes
	DueDate       *Date       `json:"dueDate,omitempty"`
	Tags          []string    `json:"tags"`
	EnergyLevel   EnergyLevel `json:"energyLevel,omitempty"`
	Complexity    Complexity  `json:"complexity,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("domain: task id is required")
	}
	if strings.TrimSpace(t.Text) == "" {
		return errors.New("domain: task text is required")
	}
	if !t.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, t.Category)
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, t.Priority)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if t.EstimatedTime <= 0 {
		return errors.New("domain: task estimated time must be positive")
	}
	if t.EnergyLevel != "" && !t.EnergyLevel.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidEnergy, t.EnergyLevel)
	}
	return nil
}

// List is a named, ordered grouping of tasks. Deleting a list discards its tasks.
type List struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	Items     []Task    `json:"items"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Task returns the index of the task with the given id, or -1.
func (l List) Task(id string) int {
	for i := range l.Items {
		if l.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// NormalizeTags trims, drops empties and duplicates, and sorts, since tags are a set.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
