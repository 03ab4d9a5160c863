package cache

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldstream/internal/content"
	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

// writeDeployment lays out a deployment the way the download pipeline does.
func writeDeployment(t *testing.T, dir, id string, ts int64, parcels ...parcel.Parcel) {
	t.Helper()
	s := &scene.Scene{
		Name:      "scene " + id,
		Parcels:   parcels,
		Timestamp: ts,
		Levels:    []scene.Level{{Name: "Outdoor"}},
	}
	require.NoError(t, scene.WriteFile(filepath.Join(dir, "2dcl", scene.FileName), s))
	require.NoError(t, content.WriteDescriptor(dir, content.Descriptor{
		ID:        id,
		Pointers:  parcel.Pointers(parcels),
		Timestamp: ts,
		Content:   []content.File{{Name: "2dcl/" + scene.FileName, Hash: "h-" + id}},
	}))
}

func stage(t *testing.T, c *Cache, id string, ts int64, parcels ...parcel.Parcel) string {
	t.Helper()
	dir := filepath.Join(c.StagingRoot(), "task-"+id, id)
	writeDeployment(t, dir, id, ts, parcels...)
	return dir
}

func openCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "scenes"), 0)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestOpenScansExistingEntries(t *testing.T) {
	root := t.TempDir()
	writeDeployment(t, filepath.Join(root, "a-old"), "a-old", 5, parcel.New(0, 0), parcel.New(0, 1))
	writeDeployment(t, filepath.Join(root, "b-new"), "b-new", 9, parcel.New(0, 1))
	writeDeployment(t, filepath.Join(root, "c-other"), "c-other", 1, parcel.New(4, 4))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "junk"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, StagingDir, "leftover"), 0o755))

	c, err := Open(root, 0)
	require.NoError(t, err)
	defer c.Close()

	e, ok := c.Lookup(parcel.New(0, 1))
	require.True(t, ok)
	assert.Equal(t, "b-new", e.ID)

	_, ok = c.Lookup(parcel.New(0, 0))
	assert.False(t, ok, "parcels of a superseded group must be dropped")

	e, ok = c.Lookup(parcel.New(4, 4))
	require.True(t, ok)
	assert.Equal(t, int64(1), e.Timestamp)

	assert.NoDirExists(t, filepath.Join(root, "a-old"))
	assert.NoDirExists(t, filepath.Join(root, "junk"))
	assert.NoDirExists(t, filepath.Join(root, StagingDir))
}

func TestRefresh(t *testing.T) {
	p00, p01, p02 := parcel.New(0, 0), parcel.New(0, 1), parcel.New(0, 2)

	t.Run("accepts and moves staged candidate", func(t *testing.T) {
		c := openCache(t)
		dir := stage(t, c, "s1", 10, p00, p01)

		e, err := c.Refresh(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(c.Root(), "s1"), e.Dir)
		assert.FileExists(t, e.ScenePath)
		assert.NoDirExists(t, filepath.Join(c.StagingRoot(), "task-s1"))

		for _, p := range []parcel.Parcel{p00, p01} {
			got, ok := c.Lookup(p)
			require.True(t, ok)
			assert.Equal(t, e, got)
		}
	})

	t.Run("equal timestamp keeps cache at that version", func(t *testing.T) {
		c := openCache(t)
		_, err := c.Refresh(stage(t, c, "s1", 10, p00))
		require.NoError(t, err)

		_, err = c.Refresh(stage(t, c, "s1", 10, p00))
		require.NoError(t, err)

		ts, ok := c.Newest([]parcel.Parcel{p00})
		require.True(t, ok)
		assert.Equal(t, int64(10), ts)
		e, _ := c.Lookup(p00)
		assert.FileExists(t, e.ScenePath)
	})

	t.Run("stale candidate is deleted", func(t *testing.T) {
		c := openCache(t)
		_, err := c.Refresh(stage(t, c, "new", 20, p01, p02))
		require.NoError(t, err)

		dir := stage(t, c, "old", 10, p00, p01)
		_, err = c.Refresh(dir)
		assert.ErrorIs(t, err, ErrStale)
		assert.NoDirExists(t, dir)

		_, ok := c.Lookup(p00)
		assert.False(t, ok)
		e, _ := c.Lookup(p01)
		assert.Equal(t, "new", e.ID)
	})

	t.Run("newer candidate supersedes overlapping groups", func(t *testing.T) {
		c := openCache(t)
		_, err := c.Refresh(stage(t, c, "left", 1, p00, p01))
		require.NoError(t, err)
		_, err = c.Refresh(stage(t, c, "right", 2, p02))
		require.NoError(t, err)

		_, err = c.Refresh(stage(t, c, "wide", 3, p01, p02))
		require.NoError(t, err)

		assert.NoDirExists(t, filepath.Join(c.Root(), "left"))
		assert.NoDirExists(t, filepath.Join(c.Root(), "right"))
		_, ok := c.Lookup(p00)
		assert.False(t, ok)
		assert.Len(t, c.Entries(), 1)
	})

	t.Run("candidate without payload is invalid", func(t *testing.T) {
		c := openCache(t)
		dir := filepath.Join(c.StagingRoot(), "t", "bad")
		require.NoError(t, content.WriteDescriptor(dir, content.Descriptor{ID: "bad", Pointers: []string{"1,1"}, Timestamp: 1}))

		_, err := c.Refresh(dir)
		assert.ErrorIs(t, err, ErrInvalid)
		assert.NoDirExists(t, dir)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("missing descriptor", func(t *testing.T) {
		c := openCache(t)
		_, err := c.Refresh(filepath.Join(c.StagingRoot(), "nothing"))
		assert.Error(t, err)
	})
}

func TestRefreshMonotonic(t *testing.T) {
	c := openCache(t)
	rng := rand.New(rand.NewPCG(7, 11))
	seen := make(map[parcel.Parcel]int64)

	for i := range 200 {
		x := int16(rng.IntN(4))
		parcels := []parcel.Parcel{parcel.New(x, 0)}
		if rng.IntN(2) == 0 {
			parcels = append(parcels, parcel.New(x+1, 0))
		}
		ts := int64(rng.IntN(50))
		_, _ = c.Refresh(stage(t, c, fmt.Sprintf("d%03d", i), ts, parcels...))

		for p, prev := range seen {
			e, ok := c.Lookup(p)
			if ok {
				assert.GreaterOrEqual(t, e.Timestamp, prev, "parcel %s regressed", p)
				seen[p] = e.Timestamp
			}
		}
		for _, e := range c.Entries() {
			for _, p := range e.Parcels {
				if _, ok := seen[p]; !ok {
					seen[p] = e.Timestamp
				}
			}
		}
	}
}

func TestLoad(t *testing.T) {
	c := openCache(t)
	p := parcel.New(-3, 8)
	_, err := c.Refresh(stage(t, c, "x", 77, p))
	require.NoError(t, err)

	s, e, err := c.Scene(p)
	require.NoError(t, err)
	assert.Equal(t, "scene x", s.Name)
	assert.Equal(t, int64(77), s.Timestamp)
	assert.Equal(t, []parcel.Parcel{p}, s.Parcels)
	assert.Equal(t, "x", e.ID)

	again, err := c.Load(e)
	require.NoError(t, err)
	assert.Equal(t, s, again)

	_, _, err = c.Scene(parcel.New(50, 50))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(e.ScenePath, []byte{0xc1}, 0o644))
	_, err = c.Load(Entry{ScenePath: e.ScenePath, Timestamp: 78})
	assert.ErrorIs(t, err, scene.ErrDecode)
}

func TestClearAll(t *testing.T) {
	c := openCache(t)
	_, err := c.Refresh(stage(t, c, "x", 1, parcel.New(0, 0)))
	require.NoError(t, err)

	require.NoError(t, c.ClearAll())
	assert.Equal(t, 0, c.Len())
	assert.DirExists(t, c.Root())
	entries, err := os.ReadDir(c.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
