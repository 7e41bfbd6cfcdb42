// Package selector filters and ranks tasks across every list for a session.
package selector

import (
	"fmt"
	"sort"
	"time"

	"focusline/internal/domain"
)

type Range string

const (
	RangeToday Range = "today"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
)

func ParseRange(s string) (Range, error) {
	switch r := Range(s); r {
	case RangeToday, RangeWeek, RangeMonth:
		return r, nil
	default:
		return "", fmt.Errorf("unknown date range %q (want today, week or month)", s)
	}
}

// Window returns the inclusive calendar dates covered by r around now, in now's location.
// A week runs Sunday through Saturday.
func (r Range) Window(now time.Time) (domain.Date, domain.Date) {
	today := domain.DateOf(now)
	switch r {
	case RangeWeek:
		start := today.AddDays(-int(now.Weekday()))
		return start, start.AddDays(6)
	case RangeMonth:
		first := domain.Date{Year: today.Year, Month: today.Month, Day: 1}
		last := domain.DateOf(time.Date(today.Year, today.Month+1, 0, 0, 0, 0, 0, time.UTC))
		return first, last
	default:
		return today, today
	}
}

// Candidate is a selected task together with the list that owns it.
type Candidate struct {
	ListID string      `json:"listId"`
	Task   domain.Task `json:"task"`
}

// Criteria narrows the selection. Empty sets do not filter.
type Criteria struct {
	Ranges     []Range
	Categories []domain.Category
}

// Select flattens lists, keeps tasks matching criteria and orders them by
// priority descending then due date ascending, undated last within a priority.
// The sort is stable, so equal tasks keep their list order.
func Select(lists []domain.List, c Criteria, now time.Time) []Candidate {
	out := []Candidate{}
	for _, l := range lists {
		for _, t := range l.Items {
			if inRanges(t, c.Ranges, now) && inCategories(t, c.Categories) {
				out = append(out, Candidate{ListID: l.ID, Task: t})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].Task, out[j].Task)
	})
	return out
}

// Pick keeps the candidates whose task id is in ids, preserving ranking order.
func Pick(candidates []Candidate, ids []string) []Candidate {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := []Candidate{}
	for _, c := range candidates {
		if _, ok := want[c.Task.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func inRanges(t domain.Task, ranges []Range, now time.Time) bool {
	if len(ranges) == 0 || t.DueDate == nil {
		return true
	}
	for _, r := range ranges {
		from, to := r.Window(now)
		if t.DueDate.Within(from, to) {
			return true
		}
	}
	return false
}

func inCategories(t domain.Task, categories []domain.Category) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if t.Category == c {
			return true
		}
	}
	return false
}

func less(a, b domain.Task) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	switch {
	case a.DueDate == nil || b.DueDate == nil:
		return a.DueDate != nil && b.DueDate == nil
	default:
		return a.DueDate.Before(*b.DueDate)
	}
}
