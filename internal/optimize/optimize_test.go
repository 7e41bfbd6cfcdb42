package optimize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusline/internal/domain"
	"focusline/internal/selector"
)

var fixedNow = time.Date(2025, time.March, 12, 9, 0, 0, 0, time.Local)

func candidates() []selector.Candidate {
	due := domain.Date{Year: 2025, Month: time.March, Day: 12}
	return []selector.Candidate{
		{ListID: "work", Task: domain.Task{ID: "t1", Text: "Report", Priority: domain.PriorityHigh, Category: domain.CategoryWork,
			Status: domain.StatusPending, EstimatedTime: 25, DueDate: &due, Tags: []string{"q3"}}},
		{ListID: "health", Task: domain.Task{ID: "t2", Text: "Run", Priority: domain.PriorityLow, Category: domain.CategoryHealth,
			Status: domain.StatusPending, EstimatedTime: 40, Complexity: domain.ComplexitySimple}},
	}
}

func sessionContext() Context {
	return Context{
		EnergyLevel:   domain.EnergyHigh,
		SessionLength: 30,
		FreeText:      "deep work morning",
		Ranges:        []selector.Range{selector.RangeToday},
		Categories:    []domain.Category{domain.CategoryWork, domain.CategoryHealth},
	}
}

type serviceFunc func(ctx context.Context, req Request) ([]Result, error)

func (f serviceFunc) Optimize(ctx context.Context, req Request) ([]Result, error) { return f(ctx, req) }

func newRequestor(svc Service) *Requestor {
	r := NewRequestor(svc, nil)
	r.Now = func() time.Time { return fixedNow }
	return r
}

func TestClientPostsPayloadAndMapsByPosition(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"text":"Report","remainingTime":900,"priority":"high","category":"work","energyLevel":"high","complexity":"complex",
			 "customBreak":{"type":"long","activity":"Walk break","description":"Walk outside","duration":15}},
			{"text":"Run","remainingTime":1200,"priority":"low","category":"health","energyLevel":"medium","complexity":"simple"}
		]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.BearerToken = "secret"
	out, err := newRequestor(client).Optimize(context.Background(), candidates(), sessionContext())
	require.NoError(t, err)

	require.Len(t, got.Todos, 2)
	assert.Equal(t, "Report", got.Todos[0].Text)
	assert.Equal(t, "2025-03-12", got.Todos[0].DueDate)
	assert.True(t, got.Todos[0].IsUrgent)
	assert.False(t, got.Todos[1].IsUrgent)
	assert.Equal(t, domain.ComplexityModerate, got.Todos[0].Complexity)
	assert.Equal(t, domain.ComplexitySimple, got.Todos[1].Complexity)
	assert.Equal(t, []string{"today"}, got.DateRanges)
	assert.Equal(t, []string{"work", "health"}, got.SelectedCategories)
	assert.Equal(t, domain.EnergyHigh, got.UserEnergyLevel)
	assert.Equal(t, 30, got.PreferredSessionLength)
	assert.Contains(t, got.AdditionalContext, "User Context: deep work morning")

	require.Len(t, out, 2)
	assert.Equal(t, "t1", out[0].Source.Task.ID)
	assert.Equal(t, "work", out[0].Source.ListID)
	assert.Equal(t, 900, out[0].Result.RemainingTime)
	assert.Equal(t, 15, out[0].Result.EstimatedTime)
	require.NotNil(t, out[0].Result.CustomBreak)
	assert.Equal(t, "Walk break", out[0].Result.CustomBreak.Activity)
	assert.Equal(t, "t2", out[1].Source.Task.ID)
	assert.Equal(t, 20, out[1].Result.EstimatedTime)
}

func TestClientNonSuccessIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newRequestor(NewClient(srv.URL)).Optimize(context.Background(), candidates(), sessionContext())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "model overloaded")
}

func TestClientNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newRequestor(NewClient(url)).Optimize(context.Background(), candidates(), sessionContext())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStale))
}

func TestMalformedResponses(t *testing.T) {
	cases := map[string]string{
		"not json":     `<html>oops</html>`,
		"short":        `[{"text":"Report","remainingTime":900}]`,
		"no duration":  `[{"text":"a"},{"text":"b","remainingTime":60}]`,
		"bad priority": `[{"text":"a","remainingTime":60,"priority":"asap"},{"text":"b","remainingTime":60}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()
			_, err := newRequestor(NewClient(srv.URL)).Optimize(context.Background(), candidates(), sessionContext())
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEstimatedTimeFillsRemaining(t *testing.T) {
	svc := serviceFunc(func(_ context.Context, req Request) ([]Result, error) {
		return []Result{{Text: "a", EstimatedTime: 10}, {Text: "b", RemainingTime: 61}}, nil
	})
	out, err := newRequestor(svc).Optimize(context.Background(), candidates(), sessionContext())
	require.NoError(t, err)
	assert.Equal(t, 600, out[0].Result.RemainingTime)
	assert.Equal(t, 2, out[1].Result.EstimatedTime)
}

func TestSupersededResponseIsStale(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	r := newRequestor(serviceFunc(func(_ context.Context, req Request) ([]Result, error) {
		calls++
		if calls == 1 {
			close(entered)
			<-release
		}
		res := make([]Result, len(req.Todos))
		for i, todo := range req.Todos {
			res[i] = Result{Text: todo.Text, RemainingTime: 60}
		}
		return res, nil
	}))

	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Optimize(context.Background(), candidates(), sessionContext())
		firstErr <- err
	}()
	<-entered

	out, err := r.Optimize(context.Background(), candidates()[:1], sessionContext())
	require.NoError(t, err)
	assert.Len(t, out, 1)

	close(release)
	assert.ErrorIs(t, <-firstErr, ErrStale)
}

func TestIssueSequenceGoesStaleOnNextRequest(t *testing.T) {
	r := newRequestor(serviceFunc(func(_ context.Context, req Request) ([]Result, error) {
		return []Result{{Text: req.Todos[0].Text, RemainingTime: 60}}, nil
	}))
	_, first, err := r.Issue(context.Background(), candidates()[:1], sessionContext())
	require.NoError(t, err)
	assert.True(t, r.Current(first))

	_, second, err := r.Issue(context.Background(), candidates()[:1], sessionContext())
	require.NoError(t, err)
	assert.Greater(t, second, first)
	assert.False(t, r.Current(first))
	assert.True(t, r.Current(second))
}

func TestEnhancedContext(t *testing.T) {
	got := EnhancedContext(sessionContext(), 2)
	lines := strings.Split(got, "\n")
	assert.Equal(t, []string{
		"User Context: deep work morning",
		"Focus Preferences: high energy level, 30-minute sessions",
		"Date Urgency: today - High urgency",
		"Category Focus: work, health",
		"Total Tasks: 2 tasks to optimize",
		"Session Goal: Maximize focus and productivity within 30-minute blocks",
	}, lines)

	oc := Context{EnergyLevel: domain.EnergyLow, SessionLength: 25, Ranges: []selector.Range{selector.RangeMonth}}
	got = EnhancedContext(oc, 1)
	assert.NotContains(t, got, "User Context")
	assert.Contains(t, got, "Date Urgency: month - Lower urgency")
	assert.Contains(t, got, "Category Focus: All categories")
}
