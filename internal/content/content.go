// Package content talks to the content-addressed service that hosts scene
// deployments.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

// DescriptorFile is the sidecar written next to a downloaded deployment.
const DescriptorFile = "entity.json"

// Service fetches deployment descriptors and content-addressed files.
type Service interface {
	// Descriptors returns the active deployments covering any of parcels.
	Descriptors(ctx context.Context, parcels []parcel.Parcel) ([]Descriptor, error)
	// Download returns the bytes stored under hash.
	Download(ctx context.Context, hash string) ([]byte, error)
}

// File is one named file of a deployment.
type File struct {
	Name string `json:"file"`
	Hash string `json:"hash"`
}

// Descriptor describes one deployed scene group.
type Descriptor struct {
	ID        string   `json:"id"`
	Pointers  []string `json:"pointers"`
	Timestamp int64    `json:"timestamp"`
	Content   []File   `json:"content"`
}

// Parcels parses the descriptor pointers.
func (d Descriptor) Parcels() ([]parcel.Parcel, error) {
	ps, err := parcel.ParseAll(d.Pointers)
	if err != nil {
		return nil, fmt.Errorf("descriptor %s: %w", d.ID, err)
	}
	return ps, nil
}

// SceneFile returns the 2D scene payload entry, if the deployment has one.
func (d Descriptor) SceneFile() (File, bool) {
	for _, f := range d.Content {
		if strings.HasSuffix(f.Name, scene.FileName) {
			return f, true
		}
	}
	return File{}, false
}

// File returns the entry with the given name.
func (d Descriptor) File(name string) (File, bool) {
	for _, f := range d.Content {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

// ReadDescriptor loads the sidecar from a deployment directory.
func ReadDescriptor(dir string) (Descriptor, error) {
	path := filepath.Join(dir, DescriptorFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("reading descriptor %s: %w", path, err)
	}
	var d Descriptor
	if err := json.Unmarshal(b, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parsing descriptor %s: %w", path, err)
	}
	return d, nil
}

// WriteDescriptor stores the sidecar in dir.
func WriteDescriptor(dir string, d Descriptor) error {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding descriptor %s: %w", d.ID, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, DescriptorFile)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing descriptor %s: %w", path, err)
	}
	return nil
}

// SafePath joins a deployment file name onto dir, rejecting names that
// would escape it.
func SafePath(dir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid content file name %q", name)
	}
	return filepath.Join(dir, clean), nil
}
