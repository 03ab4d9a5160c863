package content

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/udisondev/worldstream/internal/parcel"
)

// Dir serves deployments from a local directory, for offline play and
// tests. Layout:
//
//	<root>/deployments/<id>.json  descriptor
//	<root>/contents/<hash>        file bytes, hash = blake2b-256 hex
type Dir struct {
	root string
	mu   sync.Mutex
}

// NewDir returns a service rooted at root, creating it if needed.
func NewDir(root string) (*Dir, error) {
	for _, sub := range []string{"deployments", "contents"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating content dir: %w", err)
		}
	}
	return &Dir{root: root}, nil
}

// Hash returns the content address of b.
func Hash(b []byte) string {
	sum := blake2b.Sum256(b)
	return "b2" + hex.EncodeToString(sum[:])
}

// Publish stores a deployment claiming parcels and returns its descriptor.
// The deployment id is derived from the content so republishing identical
// data is idempotent.
func (d *Dir) Publish(parcels []parcel.Parcel, timestamp int64, files map[string][]byte) (Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	desc := Descriptor{
		Pointers:  parcel.Pointers(parcels),
		Timestamp: timestamp,
	}
	idHash, err := blake2b.New256(nil)
	if err != nil {
		return Descriptor{}, fmt.Errorf("creating hasher: %w", err)
	}
	fmt.Fprintf(idHash, "%d|%s", timestamp, strings.Join(desc.Pointers, ";"))

	for _, name := range names {
		b := files[name]
		h := Hash(b)
		if err := os.WriteFile(filepath.Join(d.root, "contents", h), b, 0o644); err != nil {
			return Descriptor{}, fmt.Errorf("storing %s: %w", name, err)
		}
		desc.Content = append(desc.Content, File{Name: name, Hash: h})
		fmt.Fprintf(idHash, "|%s=%s", name, h)
	}
	desc.ID = "b2" + hex.EncodeToString(idHash.Sum(nil))

	b, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return Descriptor{}, fmt.Errorf("encoding descriptor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.root, "deployments", desc.ID+".json"), b, 0o644); err != nil {
		return Descriptor{}, fmt.Errorf("storing descriptor: %w", err)
	}
	return desc, nil
}

// Descriptors implements Service. For every requested parcel the newest
// deployment claiming it is active.
func (d *Dir) Descriptors(ctx context.Context, parcels []parcel.Parcel) ([]Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := d.deployments()
	if err != nil {
		return nil, err
	}

	active := make(map[string]Descriptor)
	for _, p := range parcels {
		ptr := p.String()
		var best *Descriptor
		for i := range all {
			if !slices.Contains(all[i].Pointers, ptr) {
				continue
			}
			if best == nil || all[i].Timestamp > best.Timestamp {
				best = &all[i]
			}
		}
		if best != nil {
			active[best.ID] = *best
		}
	}

	out := make([]Descriptor, 0, len(active))
	for _, desc := range active {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Download implements Service.
func (d *Dir) Download(ctx context.Context, hash string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hash == "" || strings.ContainsAny(hash, `/\.`) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, hash)
	}
	b, err := os.ReadFile(filepath.Join(d.root, "contents", hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		return nil, fmt.Errorf("reading content %s: %w", hash, err)
	}
	if Hash(b) != hash {
		return nil, fmt.Errorf("%w: %s", ErrHashMismatch, hash)
	}
	return b, nil
}

func (d *Dir) deployments() ([]Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(d.root, "deployments"))
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	out := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(d.root, "deployments", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading deployment %s: %w", e.Name(), err)
		}
		var desc Descriptor
		if err := json.Unmarshal(b, &desc); err != nil {
			return nil, fmt.Errorf("parsing deployment %s: %w", e.Name(), err)
		}
		out = append(out, desc)
	}
	return out, nil
}
