package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusline/internal/domain"
	"focusline/internal/kv"
	"focusline/internal/notify"
	"focusline/internal/optimize"
	"focusline/internal/selector"
	"focusline/internal/snapshot"
)

var created = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	kv    *kv.Memory
	repo  *snapshot.KVRepository
	rec   *notify.Recorder
	sync  *Syncer
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{kv: kv.NewMemory(), rec: &notify.Recorder{}, clock: created.Add(time.Hour)}
	f.repo = snapshot.NewKVRepository(f.kv, nil)
	snap := snapshot.Empty()
	snap.State.Lists = []domain.List{{
		ID: "work", Name: "Work Tasks", Category: domain.CategoryWork, IsActive: true,
		Items: []domain.Task{{
			ID: "t1", Text: "Write report", Category: domain.CategoryWork, Priority: domain.PriorityHigh,
			Status: domain.StatusPending, EstimatedTime: 25, Tags: []string{}, CreatedAt: created, UpdatedAt: created,
		}},
	}}
	require.NoError(t, f.repo.Save(context.Background(), snap))
	f.sync = New(f.repo, f.rec, nil)
	f.sync.Now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) task(t *testing.T) domain.Task {
	t.Helper()
	snap, err := f.repo.Load(context.Background())
	require.NoError(t, err)
	return snap.State.Lists[0].Items[0]
}

func pomodoro(listID, todoID string) domain.PomodoroItem {
	return domain.PomodoroItem{ID: "p1", Text: "Write report", BackRef: domain.BackRef{OriginalListID: listID, OriginalTodoID: todoID}}
}

func TestSyncCompletionUpdatesStatus(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sync.SyncCompletion(context.Background(), pomodoro("work", "t1")))
	got := f.task(t)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.True(t, got.UpdatedAt.After(created))
	assert.Equal(t, 25, got.EstimatedTime)
	assert.Equal(t, 1, f.rec.Count(notify.LevelSuccess, notify.KindSync))

	require.NoError(t, f.sync.SyncUncompletion(context.Background(), pomodoro("work", "t1")))
	assert.Equal(t, domain.StatusPending, f.task(t).Status)
}

func TestSyncMissingTargetIsDropped(t *testing.T) {
	for name, item := range map[string]domain.PomodoroItem{
		"missing list": pomodoro("gone", "t1"),
		"missing task": pomodoro("work", "gone"),
		"no back ref":  {ID: "p9", Text: "orphan"},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			before, err := f.kv.Get(context.Background(), snapshot.Key)
			require.NoError(t, err)
			writes := f.kv.Writes()

			err = f.sync.SyncCompletion(context.Background(), item)
			assert.True(t, errors.Is(err, ErrTargetNotFound))

			after, err := f.kv.Get(context.Background(), snapshot.Key)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, writes, f.kv.Writes())
			assert.Len(t, f.rec.All(), 1)
			assert.Equal(t, 1, f.rec.Count(notify.LevelWarning, notify.KindSync))
		})
	}
}

func TestSyncOptimizedTimesRoundTrip(t *testing.T) {
	f := newFixture(t)
	before := f.task(t)
	originals := []selector.Candidate{{ListID: "work", Task: before}}

	n, err := f.sync.SyncOptimizedTimes(context.Background(), []optimize.Result{{Text: "Write report", RemainingTime: 900, EstimatedTime: 15}}, originals)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	after := f.task(t)
	assert.Equal(t, 15, after.EstimatedTime)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, domain.StatusPending, after.Status)
	assert.Equal(t, 1, f.rec.Count(notify.LevelInfo, notify.KindSync))
}

func TestSyncOptimizedTimesSkipsUnchangedAndMissing(t *testing.T) {
	f := newFixture(t)
	task := f.task(t)
	writes := f.kv.Writes()
	originals := []selector.Candidate{{ListID: "work", Task: task}, {ListID: "work", Task: domain.Task{ID: "deleted"}}}

	n, err := f.sync.SyncOptimizedTimes(context.Background(), []optimize.Result{{EstimatedTime: 25}, {EstimatedTime: 10}}, originals)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, writes, f.kv.Writes())
	assert.Equal(t, 1, f.rec.Count(notify.LevelWarning, notify.KindSync))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "a, b", summarize([]string{"a", "b"}, 3))
	assert.Equal(t, "a, b, c and 2 more", summarize([]string{"a", "b", "c", "d", "e"}, 3))
}
