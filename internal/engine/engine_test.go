package engine_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusline/internal/domain"
	"focusline/internal/engine"
	"focusline/internal/kv"
	"focusline/internal/notify"
	"focusline/internal/optimize"
	"focusline/internal/selector"
	"focusline/internal/session"
	"focusline/internal/store"
)

type testEnv struct {
	Engine engine.Engine
	KV     *kv.Memory
	Rec    *notify.Recorder
	Ctx    context.Context
	Tasks  []domain.Task
}

func newTestEnv(t *testing.T, svc optimize.Service) testEnv {
	return newTestEnvOn(t, svc, func(m *kv.Memory) kv.Store { return m })
}

// newTestEnvOn builds the engine over wrap(mem), so tests can intercept writes.
func newTestEnvOn(t *testing.T, svc optimize.Service, wrap func(*kv.Memory) kv.Store) testEnv {
	t.Helper()
	mem := kv.NewMemory()
	rec := &notify.Recorder{}
	clock := time.Date(2025, 3, 12, 9, 0, 0, 0, time.Local)
	var requestor *optimize.Requestor
	if svc != nil {
		requestor = optimize.NewRequestor(svc, nil)
		requestor.Now = func() time.Time { return clock }
	}
	eng := engine.New(wrap(mem), rec, requestor, nil)
	seq := 0
	eng.Now = func() time.Time { return clock }
	eng.NewID = func() string {
		seq++
		return fmt.Sprintf("p%d", seq)
	}
	// Store and sync share one clock that advances on every read.
	var clockMu sync.Mutex
	tick := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	eng.Store.Now = tick
	eng.Sync.Now = tick
	ctx := context.Background()
	_, err := eng.Store.Seed(ctx)
	require.NoError(t, err)
	env := testEnv{Engine: eng, KV: mem, Rec: rec, Ctx: ctx}
	for _, in := range []store.TaskInput{
		{Text: "Write report", Priority: domain.PriorityHigh, EstimatedTime: 25},
		{Text: "Inbox zero", Priority: domain.PriorityLow, EstimatedTime: 10},
	} {
		task, err := eng.Store.AddTask(ctx, "work", in)
		require.NoError(t, err)
		env.Tasks = append(env.Tasks, task)
	}
	rec.Reset()
	return env
}

func (env testEnv) ids() []string {
	var ids []string
	for _, task := range env.Tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

func (env testEnv) task(t *testing.T, id string) domain.Task {
	t.Helper()
	l, err := env.Engine.Store.GetList(env.Ctx, "work")
	require.NoError(t, err)
	i := l.Task(id)
	require.GreaterOrEqual(t, i, 0, "task %s missing", id)
	return l.Items[i]
}

// echoService answers every request with one result per todo.
func echoService() optimize.Service {
	return serviceFunc(func(_ context.Context, req optimize.Request) ([]optimize.Result, error) {
		res := make([]optimize.Result, len(req.Todos))
		for i, todo := range req.Todos {
			res[i] = optimize.Result{Text: todo.Text, RemainingTime: 600}
		}
		return res, nil
	})
}

type serviceFunc func(context.Context, optimize.Request) ([]optimize.Result, error)

func (f serviceFunc) Optimize(ctx context.Context, req optimize.Request) ([]optimize.Result, error) {
	return f(ctx, req)
}

func TestPlanSessionDirect(t *testing.T) {
	env := newTestEnv(t, nil)
	plan, err := env.Engine.PlanSession(env.Ctx, engine.PlanOptions{
		TaskIDs: env.ids(),
		Context: optimize.Context{FreeText: "after lunch"},
	})
	require.NoError(t, err)
	assert.False(t, plan.Queue.AIOptimized)
	assert.False(t, plan.FellBack)

	items := plan.Queue.Items
	require.Len(t, items, 2)
	assert.Equal(t, "Write report", items[0].Text)
	assert.Equal(t, "Inbox zero", items[1].Text)
	assert.Equal(t, 1500, items[0].RemainingTime)
	assert.Equal(t, 600, items[1].RemainingTime)
	assert.Equal(t, "work", items[0].OriginalListID)
	assert.Equal(t, env.Tasks[0].ID, items[0].OriginalTodoID)
	assert.NotEqual(t, env.Tasks[0].ID, items[0].ID)
	assert.Contains(t, items[0].Description, "Additional Context: after lunch")
	assert.Equal(t, 1, env.Rec.Count(notify.LevelSuccess, notify.KindSession))

	stored, err := env.Engine.Sessions.Load(env.Ctx)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	assert.False(t, stored.AIOptimized)
}

func TestPlanSessionRequiresSelection(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Engine.PlanSession(env.Ctx, engine.PlanOptions{})
	assert.ErrorIs(t, err, engine.ErrNoSelection)

	_, err = env.Engine.PlanSession(env.Ctx, engine.PlanOptions{
		TaskIDs:  env.ids(),
		Criteria: selector.Criteria{Categories: []domain.Category{domain.CategoryHealth}},
	})
	assert.ErrorIs(t, err, engine.ErrNoSelection)

	_, err = env.KV.Get(env.Ctx, session.ItemsKey)
	assert.ErrorIs(t, err, kv.ErrNotFound, "queue written on invalid input")
}

func TestPlanSessionFallsBackOnOptimizerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	env := newTestEnv(t, optimize.NewClient(url))
	plan, err := env.Engine.PlanSession(env.Ctx, engine.PlanOptions{TaskIDs: env.ids()[:1], Optimize: true,
		Context: optimize.Context{EnergyLevel: domain.EnergyMedium, SessionLength: 25}})
	require.NoError(t, err)
	assert.True(t, plan.FellBack)
	assert.False(t, plan.Queue.AIOptimized)

	item := plan.Queue.Items[0]
	assert.Equal(t, 1500, item.RemainingTime)
	assert.Nil(t, item.CustomBreak)
	assert.Equal(t, 1, env.Rec.Count(notify.LevelWarning, ""), "exactly one warning: %+v", env.Rec.All())
	assert.Equal(t, 1, env.Rec.Count(notify.LevelWarning, notify.KindOptimize))
	assert.Equal(t, 25, env.task(t, env.Tasks[0].ID).EstimatedTime, "estimate changed on fallback")
}

func TestPlanSessionOptimizedSyncsTimes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"text":"Write report","remainingTime":900,"priority":"high","category":"work","energyLevel":"high","complexity":"complex"},
			{"text":"Inbox zero","remainingTime":600,"priority":"low","category":"work","energyLevel":"low","complexity":"simple",
			 "customBreak":{"type":"short","activity":"Quick stretch","description":"Stand up","duration":5}}
		]`))
	}))
	defer srv.Close()

	env := newTestEnv(t, optimize.NewClient(srv.URL))
	before := env.task(t, env.Tasks[0].ID)
	plan, err := env.Engine.PlanSession(env.Ctx, engine.PlanOptions{TaskIDs: env.ids(), Optimize: true,
		Context: optimize.Context{EnergyLevel: domain.EnergyHigh, SessionLength: 25}})
	require.NoError(t, err)
	assert.True(t, plan.Queue.AIOptimized)
	assert.False(t, plan.FellBack)
	assert.Equal(t, 1, plan.Updated)

	first := plan.Queue.Items[0]
	assert.Equal(t, 900, first.RemainingTime)
	require.NotNil(t, first.CustomBreak)
	assert.Equal(t, domain.BreakLong, first.CustomBreak.Type)
	assert.Contains(t, first.Description, "- Complexity: complex")
	assert.Contains(t, first.Description, "Additional Context: None")
	assert.Equal(t, "Quick stretch", plan.Queue.Items[1].CustomBreak.Activity)

	after := env.task(t, env.Tasks[0].ID)
	assert.Equal(t, 15, after.EstimatedTime)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, 10, env.task(t, env.Tasks[1].ID).EstimatedTime, "unchanged task rewritten")
	assert.Zero(t, env.Rec.Count(notify.LevelWarning, ""))
}

func TestCommitOfSupersededDraftIsStale(t *testing.T) {
	env := newTestEnv(t, echoService())
	opts := engine.PlanOptions{TaskIDs: env.ids(), Optimize: true,
		Context: optimize.Context{EnergyLevel: domain.EnergyMedium, SessionLength: 25}}

	older, err := env.Engine.Prepare(env.Ctx, opts)
	require.NoError(t, err)
	newer, err := env.Engine.Prepare(env.Ctx, opts)
	require.NoError(t, err)

	_, err = env.Engine.Commit(env.Ctx, older)
	assert.ErrorIs(t, err, optimize.ErrStale)
	_, err = env.KV.Get(env.Ctx, session.ItemsKey)
	assert.ErrorIs(t, err, kv.ErrNotFound, "stale draft wrote the queue")
	assert.Equal(t, 25, env.task(t, env.Tasks[0].ID).EstimatedTime, "stale draft synced times")
	assert.Empty(t, env.Rec.All())

	plan, err := env.Engine.Commit(env.Ctx, newer)
	require.NoError(t, err)
	assert.True(t, plan.Queue.AIOptimized)
	assert.Equal(t, 10, env.task(t, env.Tasks[0].ID).EstimatedTime)
}

func TestPrepareWritesNothing(t *testing.T) {
	env := newTestEnv(t, echoService())
	writes := env.KV.Writes()
	_, err := env.Engine.Prepare(env.Ctx, engine.PlanOptions{TaskIDs: env.ids(), Optimize: true})
	require.NoError(t, err)
	assert.Equal(t, writes, env.KV.Writes())
	assert.Empty(t, env.Rec.All())
}

func TestSessionCompletionSyncsToStore(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Engine.PlanSession(env.Ctx, engine.PlanOptions{TaskIDs: env.ids()[:1]})
	require.NoError(t, err)
	sess, err := env.Engine.OpenSession(env.Ctx)
	require.NoError(t, err)
	item, err := sess.Timer.StartNext()
	require.NoError(t, err)
	for i := 0; i < item.RemainingTime; i++ {
		sess.Timer.Tick()
	}
	assert.Equal(t, domain.StatusCompleted, env.task(t, env.Tasks[0].ID).Status)

	stored, err := env.Engine.Sessions.Load(env.Ctx)
	require.NoError(t, err)
	assert.True(t, stored.Items[0].IsCompleted())
	assert.False(t, stored.Items[0].IsRunning)
	assert.Equal(t, 1500, stored.Items[0].RemainingTime)

	_, err = sess.Timer.ToggleComplete(item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, env.task(t, env.Tasks[0].ID).Status)
}

func TestSessionCompletionForDeletedTaskWarnsOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Engine.PlanSession(env.Ctx, engine.PlanOptions{TaskIDs: env.ids()[:1]})
	require.NoError(t, err)
	require.NoError(t, env.Engine.Store.DeleteTask(env.Ctx, "work", env.Tasks[0].ID))
	sess, err := env.Engine.OpenSession(env.Ctx)
	require.NoError(t, err)
	env.Rec.Reset()

	_, err = sess.Timer.ToggleComplete(sess.Timer.Items()[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Rec.Count(notify.LevelWarning, notify.KindSync))
	assert.Zero(t, env.Rec.Count(notify.LevelError, ""), "missing target should not be an error")
}

func TestSessionRunStopsAfterCompletion(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Engine.PlanSession(env.Ctx, engine.PlanOptions{TaskIDs: env.ids()[:1]})
	require.NoError(t, err)
	sess, err := env.Engine.OpenSession(env.Ctx)
	require.NoError(t, err)
	id := sess.Timer.Items()[0].ID
	sess.Timer.Replace([]domain.PomodoroItem{withRemaining(sess.Timer.Items()[0], 3)})
	require.NoError(t, sess.Timer.Start(id))

	ctx, cancel := context.WithTimeout(env.Ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Run(ctx, time.Millisecond, true, nil))
	assert.Equal(t, domain.StatusCompleted, env.task(t, env.Tasks[0].ID).Status)
}

// gatedKV holds the next queue write until release is closed.
type gatedKV struct {
	*kv.Memory
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedKV) arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = true
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *gatedKV) Set(ctx context.Context, key string, value []byte) error {
	if key == session.ItemsKey {
		g.mu.Lock()
		hold, entered, release := g.armed, g.entered, g.release
		g.armed = false
		g.mu.Unlock()
		if hold {
			close(entered)
			<-release
		}
	}
	return g.Memory.Set(ctx, key, value)
}

func TestSessionSavesLandInOrder(t *testing.T) {
	gate := &gatedKV{}
	env := newTestEnvOn(t, nil, func(m *kv.Memory) kv.Store {
		gate.Memory = m
		return gate
	})
	_, err := env.Engine.PlanSession(env.Ctx, engine.PlanOptions{TaskIDs: env.ids()[:1]})
	require.NoError(t, err)
	sess, err := env.Engine.OpenSession(env.Ctx)
	require.NoError(t, err)
	id := sess.Timer.Items()[0].ID

	gate.arm()
	idleSave := make(chan error, 1)
	go func() { idleSave <- sess.Save(env.Ctx) }()
	<-gate.entered

	// Start saves the running image; it must not be overwritten by the idle one.
	started := make(chan error, 1)
	go func() { started <- sess.Timer.Start(id) }()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)
	require.NoError(t, <-idleSave)
	require.NoError(t, <-started)

	stored, err := env.Engine.Sessions.Load(env.Ctx)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.True(t, stored.Items[0].IsRunning)
}

func withRemaining(it domain.PomodoroItem, seconds int) domain.PomodoroItem {
	it.RemainingTime = seconds
	return it
}

func TestClock(t *testing.T) {
	assert.Equal(t, "25:00", engine.Clock(1500))
	assert.Equal(t, "01:01", engine.Clock(61))
	assert.Equal(t, "00:00", engine.Clock(-5))
}
