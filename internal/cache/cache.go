// Package cache keeps the on-disk copy of downloaded scene deployments and
// the parcel index over it.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/udisondev/worldstream/internal/content"
	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

// StagingDir is the subdirectory of the cache root that holds downloads
// waiting to be committed.
const StagingDir = ".staging"

// DefaultMemoBytes bounds the decoded scene memo.
const DefaultMemoBytes = 64 << 20

// Entry is one cached deployment. The same entry is indexed under every
// parcel it covers.
type Entry struct {
	ID        string
	Parcels   []parcel.Parcel
	Dir       string
	ScenePath string
	Timestamp int64
}

// Cache maps parcels to cached deployments.
//
// Readers may run concurrently; Refresh and ClearAll are expected to be
// called from a single goroutine.
type Cache struct {
	root string

	mu       sync.RWMutex
	byParcel map[parcel.Parcel]*Entry

	decoded *ristretto.Cache[string, *scene.Scene]
}

// Open creates the cache root if necessary, drops unfinished downloads and
// indexes every deployment found under root.
func Open(root string, memoBytes int64) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root %s: %w", root, err)
	}
	if memoBytes <= 0 {
		memoBytes = DefaultMemoBytes
	}
	decoded, err := ristretto.NewCache(&ristretto.Config[string, *scene.Scene]{
		NumCounters: 10000,
		MaxCost:     memoBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating scene memo: %w", err)
	}

	c := &Cache{
		root:     root,
		byParcel: make(map[parcel.Parcel]*Entry),
		decoded:  decoded,
	}
	if err := os.RemoveAll(c.StagingRoot()); err != nil {
		slog.Warn("failed to drop staged downloads", "dir", c.StagingRoot(), "err", err)
	}
	if err := c.scan(); err != nil {
		decoded.Close()
		return nil, err
	}
	slog.Info("scene cache opened", "root", root, "parcels", c.Len())
	return c, nil
}

// Root returns the cache directory.
func (c *Cache) Root() string { return c.root }

// StagingRoot returns the directory downloads are staged under.
func (c *Cache) StagingRoot() string { return filepath.Join(c.root, StagingDir) }

// Close releases the decoded scene memo.
func (c *Cache) Close() {
	c.decoded.Close()
}

func (c *Cache) scan() error {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("listing cache root %s: %w", c.root, err)
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == StagingDir {
			continue
		}
		dir := filepath.Join(c.root, e.Name())
		if _, err := c.Refresh(dir); err != nil && !errors.Is(err, ErrStale) {
			slog.Warn("dropping unreadable cache entry", "dir", dir, "err", err)
		}
	}
	return nil
}

// Len returns the number of indexed parcels.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byParcel)
}

// Lookup returns the deployment cached for p.
func (c *Cache) Lookup(p parcel.Parcel) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byParcel[p]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Newest returns the highest timestamp cached for any of parcels.
func (c *Cache) Newest(parcels []parcel.Parcel) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var (
		ts    int64
		found bool
	)
	for _, p := range parcels {
		if e, ok := c.byParcel[p]; ok && (!found || e.Timestamp > ts) {
			ts = e.Timestamp
			found = true
		}
	}
	return ts, found
}

// Entries returns every distinct cached deployment.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[*Entry]struct{})
	out := make([]Entry, 0)
	for _, e := range c.byParcel {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, *e)
	}
	return out
}

// Refresh validates the deployment in dir and makes it the cached version
// of its parcels unless some of them already hold a newer one.
//
// Accepted candidates outside the cache root layout are moved to
// <root>/<id>; deployments they supersede are deleted from disk and from
// the index. A stale candidate is deleted and ErrStale returned. Invalid
// candidates are deleted as well.
func (c *Cache) Refresh(dir string) (Entry, error) {
	cand, err := c.read(dir)
	if err != nil {
		c.discard(dir)
		return Entry{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	target := filepath.Join(c.root, cand.ID)
	for _, p := range cand.Parcels {
		if cur, ok := c.byParcel[p]; ok && cur.Timestamp > cand.Timestamp {
			if filepath.Clean(dir) != filepath.Clean(cur.Dir) {
				c.discard(dir)
			}
			return Entry{}, fmt.Errorf("%w: %s at %d, parcel %s holds %d", ErrStale, cand.ID, cand.Timestamp, p, cur.Timestamp)
		}
	}

	if filepath.Clean(dir) != filepath.Clean(target) {
		if err := c.moveInto(dir, target); err != nil {
			c.discard(dir)
			return Entry{}, err
		}
		rel, err := filepath.Rel(dir, cand.ScenePath)
		if err != nil {
			return Entry{}, fmt.Errorf("locating scene file of %s: %w", cand.ID, err)
		}
		cand.Dir = target
		cand.ScenePath = filepath.Join(target, rel)
	}

	superseded := make(map[*Entry]struct{})
	for _, p := range cand.Parcels {
		if cur, ok := c.byParcel[p]; ok {
			superseded[cur] = struct{}{}
		}
	}
	for old := range superseded {
		c.evictLocked(old, target)
	}

	entry := cand
	for _, p := range entry.Parcels {
		c.byParcel[p] = &entry
	}
	slog.Debug("cache entry accepted", "id", entry.ID, "timestamp", entry.Timestamp, "parcels", len(entry.Parcels))
	return entry, nil
}

// evictLocked removes old from the index and deletes its files unless they
// live in keepDir.
func (c *Cache) evictLocked(old *Entry, keepDir string) {
	for _, p := range old.Parcels {
		if c.byParcel[p] == old {
			delete(c.byParcel, p)
		}
	}
	c.decoded.Del(memoKey(*old))
	if filepath.Clean(old.Dir) == filepath.Clean(keepDir) {
		return
	}
	if err := os.RemoveAll(old.Dir); err != nil {
		slog.Warn("failed to delete superseded cache entry", "dir", old.Dir, "err", err)
		return
	}
	slog.Debug("cache entry superseded", "id", old.ID, "timestamp", old.Timestamp)
}

func (c *Cache) read(dir string) (Entry, error) {
	desc, err := content.ReadDescriptor(dir)
	if err != nil {
		return Entry{}, err
	}
	if desc.ID == "" {
		return Entry{}, fmt.Errorf("%w: descriptor in %s has no id", ErrInvalid, dir)
	}
	parcels, err := desc.Parcels()
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(parcels) == 0 {
		return Entry{}, fmt.Errorf("%w: %s covers no parcels", ErrInvalid, desc.ID)
	}
	f, ok := desc.SceneFile()
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s has no %s", ErrInvalid, desc.ID, scene.FileName)
	}
	path, err := content.SafePath(dir, f.Name)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := os.Stat(path); err != nil {
		return Entry{}, fmt.Errorf("checking scene file: %w", err)
	}
	return Entry{
		ID:        desc.ID,
		Parcels:   parcels,
		Dir:       dir,
		ScenePath: path,
		Timestamp: desc.Timestamp,
	}, nil
}

func (c *Cache) moveInto(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clearing %s: %w", dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s into cache: %w", src, err)
	}
	c.prune(filepath.Dir(src))
	return nil
}

// discard deletes a rejected candidate and any directories it leaves empty.
func (c *Cache) discard(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to delete cache candidate", "dir", dir, "err", err)
		return
	}
	c.prune(filepath.Dir(dir))
}

// prune removes empty directories from dir up to (not including) the root.
func (c *Cache) prune(dir string) {
	root := filepath.Clean(c.root)
	for {
		dir = filepath.Clean(dir)
		if dir == root || len(dir) <= len(root) {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Load returns the decoded scene of e. Parcels and timestamp come from the
// descriptor. The returned scene is shared and must not be modified.
func (c *Cache) Load(e Entry) (*scene.Scene, error) {
	key := memoKey(e)
	if s, ok := c.decoded.Get(key); ok {
		return s, nil
	}

	s, err := scene.ReadFile(e.ScenePath)
	if err != nil {
		return nil, err
	}
	s.Parcels = append([]parcel.Parcel(nil), e.Parcels...)
	s.Timestamp = e.Timestamp

	cost := int64(1)
	if fi, err := os.Stat(e.ScenePath); err == nil && fi.Size() > 0 {
		cost = fi.Size()
	}
	c.decoded.Set(key, s, cost)
	c.decoded.Wait()
	return s, nil
}

// ClearAll deletes every cached deployment and recreates an empty root.
func (c *Cache) ClearAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(c.root); err != nil {
		return fmt.Errorf("clearing cache %s: %w", c.root, err)
	}
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return fmt.Errorf("recreating cache %s: %w", c.root, err)
	}
	c.byParcel = make(map[parcel.Parcel]*Entry)
	c.decoded.Clear()
	slog.Info("scene cache cleared", "root", c.root)
	return nil
}

func memoKey(e Entry) string {
	return e.ScenePath + "@" + strconv.FormatInt(e.Timestamp, 10)
}

// Scene looks up and decodes the deployment cached for p.
func (c *Cache) Scene(p parcel.Parcel) (*scene.Scene, Entry, error) {
	e, ok := c.Lookup(p)
	if !ok {
		return nil, Entry{}, fmt.Errorf("%w: parcel %s", ErrNotFound, p)
	}
	s, err := c.Load(e)
	if err != nil {
		return nil, e, err
	}
	return s, e, nil
}
