// Package testutil holds fixtures shared by the streaming tests: offline
// content directories, published scenes and pre-seeded caches.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldstream/internal/cache"
	"github.com/udisondev/worldstream/internal/content"
	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

// ScenePath is where fixtures place the scene file inside a deployment.
const ScenePath = "2dcl/" + scene.FileName

// PlainScene returns a scene with a single empty outdoor level.
func PlainScene(name string) *scene.Scene {
	return &scene.Scene{Name: name, Levels: []scene.Level{{Name: "Outdoor"}}}
}

// NewContentDir creates an offline content service under the test's temp dir.
func NewContentDir(t testing.TB) *content.Dir {
	t.Helper()

	d, err := content.NewDir(filepath.Join(t.TempDir(), "content"))
	require.NoError(t, err)
	return d
}

// SceneFiles encodes sc into the file set of a deployment.
func SceneFiles(t testing.TB, sc *scene.Scene) map[string][]byte {
	t.Helper()

	b, err := scene.Marshal(sc)
	require.NoError(t, err)
	return map[string][]byte{ScenePath: b}
}

// PublishScene publishes sc as a deployment claiming parcels.
func PublishScene(t testing.TB, d *content.Dir, sc *scene.Scene, ts int64, parcels ...parcel.Parcel) content.Descriptor {
	t.Helper()

	desc, err := d.Publish(parcels, ts, SceneFiles(t, sc))
	require.NoError(t, err)
	return desc
}

// WriteCached places a deployment directly into a cache root, as if it had
// been downloaded by an earlier run.
func WriteCached(t testing.TB, root, id string, sc *scene.Scene, ts int64, parcels ...parcel.Parcel) {
	t.Helper()

	dir := filepath.Join(root, id)
	require.NoError(t, scene.WriteFile(filepath.Join(dir, filepath.FromSlash(ScenePath)), sc))
	require.NoError(t, content.WriteDescriptor(dir, content.Descriptor{
		ID:        id,
		Pointers:  parcel.Pointers(parcels),
		Timestamp: ts,
		Content:   []content.File{{Name: ScenePath, Hash: "h-" + id}},
	}))
}

// OpenCache opens a scene cache at root and closes it with the test.
func OpenCache(t testing.TB, root string) *cache.Cache {
	t.Helper()

	require.NoError(t, os.MkdirAll(root, 0o755))
	c, err := cache.Open(root, 0)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}
