// Package roads persists the set of parcels flagged as road.
package roads

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/udisondev/worldstream/internal/parcel"
)

type roadsFile struct {
	Parcels []parcel.Parcel `msgpack:"parcels"`
}

// Membership is the road parcel set backed by a msgpack file. Every change
// rewrites the whole file.
type Membership struct {
	path string

	mu  sync.RWMutex
	set parcel.Set
}

// Load reads the membership file. A missing file yields an empty set.
func Load(path string) (*Membership, error) {
	m := &Membership{path: path, set: parcel.NewSet()}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("reading roads %s: %w", path, err)
	}

	var f roadsFile
	if err := msgpack.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing roads %s: %w", path, err)
	}
	for _, p := range f.Parcels {
		m.set.Add(p)
	}
	slog.Debug("road membership loaded", "path", path, "parcels", len(m.set))
	return m, nil
}

// IsRoad reports whether p is flagged as road.
func (m *Membership) IsRoad(p parcel.Parcel) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Contains(p)
}

// Parcels returns the road parcels sorted by (X, Y).
func (m *Membership) Parcels() []parcel.Parcel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Slice()
}

// Len returns the number of road parcels.
func (m *Membership) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.set)
}

// Add flags parcels as road and saves the file if anything changed.
func (m *Membership) Add(parcels ...parcel.Parcel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for _, p := range parcels {
		if !m.set.Contains(p) {
			m.set.Add(p)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return m.saveLocked()
}

// Remove unflags parcels and saves the file if anything changed.
func (m *Membership) Remove(parcels ...parcel.Parcel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for _, p := range parcels {
		if m.set.Contains(p) {
			m.set.Remove(p)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return m.saveLocked()
}

// Toggle flips the flag of p and returns the new state.
func (m *Membership) Toggle(p parcel.Parcel) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	road := !m.set.Contains(p)
	if road {
		m.set.Add(p)
	} else {
		m.set.Remove(p)
	}
	if err := m.saveLocked(); err != nil {
		if road {
			m.set.Remove(p)
		} else {
			m.set.Add(p)
		}
		return !road, err
	}
	return road, nil
}

func (m *Membership) saveLocked() error {
	b, err := msgpack.Marshal(roadsFile{Parcels: m.set.Slice()})
	if err != nil {
		return fmt.Errorf("encoding roads: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating roads dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("writing roads %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replacing roads %s: %w", m.path, err)
	}
	return nil
}
