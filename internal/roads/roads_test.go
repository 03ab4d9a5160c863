package roads

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/udisondev/worldstream/internal/content"
	"github.com/udisondev/worldstream/internal/parcel"
)

func TestLoadMissing(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "roads", "roads.mp"))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.IsRoad(parcel.New(0, 0)))
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roads.mp")
	require.NoError(t, os.WriteFile(path, []byte{0xc1, 0xc1}, 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestToggleRewritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roads", "roads.mp")
	m, err := Load(path)
	require.NoError(t, err)

	road, err := m.Toggle(parcel.New(2, 3))
	require.NoError(t, err)
	assert.True(t, road)
	require.NoError(t, m.Add(parcel.New(-1, 0), parcel.New(2, 3)))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []parcel.Parcel{{X: -1, Y: 0}, {X: 2, Y: 3}}, reloaded.Parcels())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string][]string
	require.NoError(t, msgpack.Unmarshal(b, &raw))
	assert.Equal(t, []string{"-1,0", "2,3"}, raw["parcels"])

	road, err = m.Toggle(parcel.New(2, 3))
	require.NoError(t, err)
	assert.False(t, road)
	require.NoError(t, m.Remove(parcel.New(-1, 0)))

	reloaded, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Len())
	assert.NoFileExists(t, path+".tmp")
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	svc, err := content.NewDir(t.TempDir())
	require.NoError(t, err)

	_, err = svc.Publish([]parcel.Parcel{{X: 0, Y: 0}, {X: 1, Y: 0}}, 1, map[string][]byte{
		MetadataFile: []byte(`{"display":{"title":"Main Road East"}}`),
	})
	require.NoError(t, err)
	_, err = svc.Publish([]parcel.Parcel{{X: 0, Y: 1}}, 1, map[string][]byte{
		MetadataFile: []byte(`{"display":{"title":"Plaza"}}`),
	})
	require.NoError(t, err)
	_, err = svc.Publish([]parcel.Parcel{{X: 1, Y: 1}}, 1, map[string][]byte{
		MetadataFile: []byte(`not json`),
	})
	require.NoError(t, err)

	m, err := Load(filepath.Join(t.TempDir(), "roads.mp"))
	require.NoError(t, err)

	n, err := Sync(ctx, svc, parcel.Ring(parcel.New(0, 0), 2), m)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []parcel.Parcel{{X: 0, Y: 0}, {X: 1, Y: 0}}, m.Parcels())
}
