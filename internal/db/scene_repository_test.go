package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldstream/internal/cache"
	"github.com/udisondev/worldstream/internal/parcel"
)

func TestSceneRepositoryUpsertAndLookup(t *testing.T) {
	repo := NewSceneRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, SceneRecord{
		ID: "plaza", Name: "Plaza", Timestamp: 10,
		Parcels: []parcel.Parcel{parcel.New(0, 0), parcel.New(0, 1)},
	}))

	rec, err := repo.ByParcel(ctx, parcel.New(0, 1))
	require.NoError(t, err)
	assert.Equal(t, "plaza", rec.ID)
	assert.Equal(t, "Plaza", rec.Name)
	assert.Equal(t, int64(10), rec.Timestamp)
	assert.Equal(t, []parcel.Parcel{parcel.New(0, 0), parcel.New(0, 1)}, rec.Parcels)
	assert.False(t, rec.SeenAt.IsZero())

	_, err = repo.ByParcel(ctx, parcel.New(9, 9))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSceneRepositoryNewerDeploymentWins(t *testing.T) {
	repo := NewSceneRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, SceneRecord{
		ID: "old", Name: "Old", Timestamp: 5,
		Parcels: []parcel.Parcel{parcel.New(1, 1)},
	}))
	require.NoError(t, repo.Upsert(ctx, SceneRecord{
		ID: "new", Name: "New", Timestamp: 8,
		Parcels: []parcel.Parcel{parcel.New(1, 1), parcel.New(1, 2)},
	}))
	// Arriving late does not take parcels back.
	require.NoError(t, repo.Upsert(ctx, SceneRecord{
		ID: "older", Name: "Older", Timestamp: 2,
		Parcels: []parcel.Parcel{parcel.New(1, 2)},
	}))

	rec, err := repo.ByParcel(ctx, parcel.New(1, 2))
	require.NoError(t, err)
	assert.Equal(t, "new", rec.ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"new"}, ids, "superseded and late scenes are pruned")
	assert.Equal(t, []parcel.Parcel{parcel.New(1, 1), parcel.New(1, 2)}, all[0].Parcels)
}

func TestSceneRepositoryLateDeploymentLeavesNoRow(t *testing.T) {
	repo := NewSceneRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, SceneRecord{
		ID: "current", Name: "Current", Timestamp: 20,
		Parcels: []parcel.Parcel{parcel.New(3, 3), parcel.New(3, 4)},
	}))
	require.NoError(t, repo.Record(ctx, cache.Entry{
		ID: "stale", Timestamp: 11, Parcels: []parcel.Parcel{parcel.New(3, 4)},
	}, "Stale"))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "current", all[0].ID)

	rec, err := repo.ByParcel(ctx, parcel.New(3, 4))
	require.NoError(t, err)
	assert.Equal(t, "current", rec.ID)
}

func TestSceneRepositoryRecord(t *testing.T) {
	repo := NewSceneRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, cache.Entry{
		ID: "tower", Timestamp: 3, Parcels: []parcel.Parcel{parcel.New(-4, 7)},
	}, "Tower"))
	require.NoError(t, repo.Record(ctx, cache.Entry{
		ID: "tower", Timestamp: 3, Parcels: []parcel.Parcel{parcel.New(-4, 7)},
	}, "Tower"))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Tower", all[0].Name)
	assert.Equal(t, []parcel.Parcel{parcel.New(-4, 7)}, all[0].Parcels)
}
