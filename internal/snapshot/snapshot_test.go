package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusline/internal/domain"
	"focusline/internal/kv"
)

const legacyDoc = `{
  "version": 0,
  "state": {
    "lists": [
      {
        "id": "work",
        "name": "Work Tasks",
        "category": "work",
        "isActive": true,
        "createdAt": "2025-01-01T10:00:00.000Z",
        "updatedAt": "2025-01-01T10:00:00.000Z",
        "items": [
          {"id": "w1", "text": "Reports", "category": "work", "priority": "high",
           "estimatedTime": 120, "dueDate": "2025-01-03", "checked": true, "tags": ["a"],
           "createdAt": "2025-01-01T10:00:00.000Z", "updatedAt": "2025-01-01T10:00:00.000Z"},
          {"id": "w2", "text": "Prep", "category": "work", "priority": "low",
           "isCompleted": false, "dueDate": "",
           "createdAt": "2025-01-01T10:00:00.000Z", "updatedAt": "2025-01-01T10:00:00.000Z"}
        ]
      }
    ]
  }
}`

func TestDecodeMigratesLegacyStatusFlags(t *testing.T) {
	snap, err := Decode([]byte(legacyDoc))
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, snap.Version)
	assert.Equal(t, "work", snap.State.ActiveListID)

	require.Len(t, snap.State.Lists, 1)
	items := snap.State.Lists[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, domain.StatusCompleted, items[0].Status)
	require.NotNil(t, items[0].DueDate)
	assert.Equal(t, "2025-01-03", items[0].DueDate.String())

	assert.Equal(t, domain.StatusPending, items[1].Status)
	assert.Equal(t, 25, items[1].EstimatedTime)
	assert.Nil(t, items[1].DueDate)
	assert.Equal(t, []string{}, items[1].Tags)
}

func TestDecodeRejectsFutureVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version": 99, "state": {"lists": []}}`))
	assert.ErrorIs(t, err, ErrFutureVersion)
}

func TestLoadTreatsGarbageAsEmpty(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Set(ctx, Key, []byte("{not json")))

	repo := NewKVRepository(store, nil)
	snap, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.State.Lists)
}

func TestLoadMissingKeyIsEmpty(t *testing.T) {
	repo := NewKVRepository(kv.NewMemory(), nil)
	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, snap.Version)
	assert.NotNil(t, snap.State.Lists)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewKVRepository(kv.NewMemory(), nil)
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	due := domain.Date{Year: 2025, Month: time.February, Day: 3}
	in := Snapshot{State: State{
		ActiveListID: "l1",
		Lists: []domain.List{{
			ID: "l1", Name: "Mine", Category: domain.CategoryPersonal, CreatedAt: now, UpdatedAt: now,
			Items: []domain.Task{{
				ID: "t1", Text: "Walk", Category: domain.CategoryHealth, Priority: domain.PriorityMedium,
				Status: domain.StatusPending, EstimatedTime: 30, DueDate: &due, Tags: []string{"outdoor"},
				CreatedAt: now, UpdatedAt: now,
			}},
		}},
	}}
	require.NoError(t, repo.Save(ctx, in))

	out, err := repo.Load(ctx)
	require.NoError(t, err)
	in.Version = CurrentVersion
	assert.Equal(t, in, out)
	assert.Equal(t, 0, out.List("l1"))
	assert.Equal(t, -1, out.List("nope"))
}
