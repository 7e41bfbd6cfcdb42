// Package optimize asks an external service to reorder and re-time a task
// selection and attach suggested breaks.
//
// The service does not echo task ids; results are correlated with the request by
// array position, so a response of a different length is rejected as malformed.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"focusline/internal/domain"
	"focusline/internal/selector"
)

var (
	// ErrStale marks a response that was superseded by a newer request.
	ErrStale = errors.New("optimize: superseded by a newer request")
	// ErrMalformed marks a response that cannot be mapped onto the request.
	ErrMalformed = errors.New("optimize: malformed response")
)

const defaultComplexity = domain.ComplexityModerate

// TaskDescriptor is one task as sent to the service.
type TaskDescriptor struct {
	Text                  string            `json:"text"`
	Description           string            `json:"description,omitempty"`
	Priority              domain.Priority   `json:"priority"`
	EstimatedTime         int               `json:"estimatedTime"`
	Category              domain.Category   `json:"category"`
	DueDate               string            `json:"dueDate,omitempty"`
	Tags                  []string          `json:"tags"`
	OriginalEstimatedTime int               `json:"originalEstimatedTime"`
	IsUrgent              bool              `json:"isUrgent"`
	Complexity            domain.Complexity `json:"complexity"`
}

type Request struct {
	Todos                  []TaskDescriptor   `json:"todos"`
	DateRanges             []string           `json:"dateRanges"`
	SelectedCategories     []string           `json:"selectedCategories"`
	AdditionalContext      string             `json:"additionalContext"`
	UserEnergyLevel        domain.EnergyLevel `json:"userEnergyLevel"`
	PreferredSessionLength int                `json:"preferredSessionLength"`
}

// Result is one optimized task. RemainingTime is in seconds.
type Result struct {
	Text          string              `json:"text"`
	Description   string              `json:"description,omitempty"`
	RemainingTime int                 `json:"remainingTime"`
	EstimatedTime int                 `json:"estimatedTime,omitempty"`
	CustomBreak   *domain.CustomBreak `json:"customBreak,omitempty"`
	Priority      domain.Priority     `json:"priority"`
	Category      domain.Category     `json:"category"`
	EnergyLevel   domain.EnergyLevel  `json:"energyLevel"`
	Complexity    domain.Complexity   `json:"complexity"`
}

// Context is what the user declares about the session.
type Context struct {
	EnergyLevel   domain.EnergyLevel
	SessionLength int // minutes
	FreeText      string
	Ranges        []selector.Range
	Categories    []domain.Category
}

// Optimized pairs a result with the candidate it was requested for.
type Optimized struct {
	Source selector.Candidate
	Result Result
}

// Requestor issues optimization requests and discards superseded responses.
type Requestor struct {
	Service Service
	Logger  hclog.Logger
	Now     func() time.Time

	seq atomic.Uint64
}

func NewRequestor(svc Service, logger hclog.Logger) *Requestor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Requestor{Service: svc, Logger: logger, Now: time.Now}
}

func (r *Requestor) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Requestor) logger() hclog.Logger {
	if r.Logger == nil {
		return hclog.NewNullLogger()
	}
	return r.Logger
}

// Optimize sends one request for selected. It never retries. A response that
// arrives after a newer call was issued returns ErrStale and must be ignored.
func (r *Requestor) Optimize(ctx context.Context, selected []selector.Candidate, oc Context) ([]Optimized, error) {
	out, _, err := r.Issue(ctx, selected, oc)
	return out, err
}

// Issue is Optimize that also returns the request's sequence number, so a
// caller that applies the results later can check Current first.
func (r *Requestor) Issue(ctx context.Context, selected []selector.Candidate, oc Context) ([]Optimized, uint64, error) {
	if r.Service == nil {
		return nil, 0, errors.New("optimize: no service configured")
	}
	seq := r.seq.Add(1)
	req := BuildRequest(selected, oc, r.now())
	start := time.Now()
	results, err := r.Service.Optimize(ctx, req)
	if !r.Current(seq) {
		r.logger().Debug("discarding superseded optimization response", "seq", seq, "latest", r.seq.Load())
		return nil, seq, ErrStale
	}
	if err != nil {
		r.logger().Warn("optimization request failed", "tasks", len(selected), "error", err)
		return nil, seq, err
	}
	out, err := mapResults(selected, results)
	if err != nil {
		r.logger().Warn("optimization response rejected", "error", err)
		return nil, seq, err
	}
	r.logger().Debug("optimization complete", "tasks", len(out), "elapsed", time.Since(start))
	return out, seq, nil
}

// Current reports whether seq is still the newest issued request.
func (r *Requestor) Current(seq uint64) bool {
	return r.seq.Load() == seq
}

func mapResults(selected []selector.Candidate, results []Result) ([]Optimized, error) {
	if len(results) != len(selected) {
		return nil, fmt.Errorf("%w: got %d results for %d tasks", ErrMalformed, len(results), len(selected))
	}
	out := make([]Optimized, len(results))
	for i, res := range results {
		res, err := normalize(res)
		if err != nil {
			return nil, fmt.Errorf("%w: result %d: %v", ErrMalformed, i, err)
		}
		out[i] = Optimized{Source: selected[i], Result: res}
	}
	return out, nil
}

// normalize fills whichever of remainingTime and estimatedTime is missing.
func normalize(res Result) (Result, error) {
	switch {
	case res.RemainingTime < 0 || res.EstimatedTime < 0:
		return res, errors.New("negative duration")
	case res.RemainingTime == 0 && res.EstimatedTime == 0:
		return res, errors.New("missing remainingTime")
	case res.RemainingTime == 0:
		res.RemainingTime = res.EstimatedTime * 60
	case res.EstimatedTime == 0:
		res.EstimatedTime = (res.RemainingTime + 59) / 60
	}
	if res.Priority != "" && !res.Priority.IsValid() {
		return res, fmt.Errorf("unknown priority %q", res.Priority)
	}
	if res.Category != "" && !res.Category.IsValid() {
		return res, fmt.Errorf("unknown category %q", res.Category)
	}
	return res, nil
}

// BuildRequest packages the selection and user context into the wire payload.
func BuildRequest(selected []selector.Candidate, oc Context, now time.Time) Request {
	today := domain.DateOf(now)
	wantsToday := containsRange(oc.Ranges, selector.RangeToday)
	req := Request{
		Todos:                  make([]TaskDescriptor, 0, len(selected)),
		DateRanges:             make([]string, 0, len(oc.Ranges)),
		SelectedCategories:     make([]string, 0, len(oc.Categories)),
		AdditionalContext:      EnhancedContext(oc, len(selected)),
		UserEnergyLevel:        oc.EnergyLevel,
		PreferredSessionLength: oc.SessionLength,
	}
	for _, r := range oc.Ranges {
		req.DateRanges = append(req.DateRanges, string(r))
	}
	for _, c := range oc.Categories {
		req.SelectedCategories = append(req.SelectedCategories, string(c))
	}
	for _, c := range selected {
		t := c.Task
		estimate := t.EstimatedTime
		if estimate <= 0 {
			estimate = domain.DefaultSessionSeconds / 60
		}
		d := TaskDescriptor{
			Text:                  t.Text,
			Description:           t.Description,
			Priority:              t.Priority,
			EstimatedTime:         estimate,
			Category:              t.Category,
			Tags:                  append([]string{}, t.Tags...),
			OriginalEstimatedTime: estimate,
			Complexity:            t.Complexity,
		}
		if d.Complexity == "" {
			d.Complexity = defaultComplexity
		}
		if t.DueDate != nil {
			d.DueDate = t.DueDate.String()
			d.IsUrgent = wantsToday && *t.DueDate == today
		}
		req.Todos = append(req.Todos, d)
	}
	return req
}

// EnhancedContext is the free-text brief sent alongside the tasks.
func EnhancedContext(oc Context, taskCount int) string {
	var b strings.Builder
	if strings.TrimSpace(oc.FreeText) != "" {
		fmt.Fprintf(&b, "User Context: %s\n", strings.TrimSpace(oc.FreeText))
	}
	fmt.Fprintf(&b, "Focus Preferences: %s energy level, %d-minute sessions\n", oc.EnergyLevel, oc.SessionLength)

	ranges := make([]string, 0, len(oc.Ranges))
	urgency := "Lower urgency"
	for _, r := range oc.Ranges {
		ranges = append(ranges, string(r))
	}
	switch {
	case containsRange(oc.Ranges, selector.RangeToday):
		urgency = "High urgency"
	case containsRange(oc.Ranges, selector.RangeWeek):
		urgency = "Medium urgency"
	}
	fmt.Fprintf(&b, "Date Urgency: %s - %s\n", strings.Join(ranges, ", "), urgency)

	focus := "All categories"
	if len(oc.Categories) > 0 {
		cats := make([]string, 0, len(oc.Categories))
		for _, c := range oc.Categories {
			cats = append(cats, string(c))
		}
		focus = strings.Join(cats, ", ")
	}
	fmt.Fprintf(&b, "Category Focus: %s\n", focus)
	fmt.Fprintf(&b, "Total Tasks: %d tasks to optimize\n", taskCount)
	fmt.Fprintf(&b, "Session Goal: Maximize focus and productivity within %d-minute blocks", oc.SessionLength)
	return b.String()
}

func containsRange(ranges []selector.Range, want selector.Range) bool {
	for _, r := range ranges {
		if r == want {
			return true
		}
	}
	return false
}
