// Package scene holds the content tree streamed into the world and its
// binary (msgpack) encoding.
package scene

import (
	"github.com/udisondev/worldstream/internal/parcel"
)

// Vec2 is an integer vector in world units.
type Vec2 struct {
	X int32 `msgpack:"x"`
	Y int32 `msgpack:"y"`
}

// Point converts v to a world point.
func (v Vec2) Point() parcel.Point {
	return parcel.Point{X: float64(v.X), Y: float64(v.Y)}
}

// Vec2F is a float vector (scales, anchors).
type Vec2F struct {
	X float32 `msgpack:"x"`
	Y float32 `msgpack:"y"`
}

// Vec3F is a float vector with depth (rotations).
type Vec3F struct {
	X float32 `msgpack:"x"`
	Y float32 `msgpack:"y"`
	Z float32 `msgpack:"z"`
}

// Scene is a named unit of content claiming one or more parcels.
type Scene struct {
	Name      string          `msgpack:"name"`
	Levels    []Level         `msgpack:"levels"`
	Parcels   []parcel.Parcel `msgpack:"parcels"`
	Timestamp int64           `msgpack:"timestamp"`

	// IsDefault marks generated wilderness filler. It is never encoded.
	IsDefault bool `msgpack:"-"`
}

// Level is one content tree of a scene. Level 0 is the outdoor level.
type Level struct {
	Name        string   `msgpack:"name"`
	Dimensions  Vec2     `msgpack:"dimensions"`
	PlayerLayer int32    `msgpack:"player_layer"`
	SpawnPoint  Vec2     `msgpack:"spawn_point"`
	Entities    []Entity `msgpack:"entities"`
}

// Entity is a named node of a level tree.
type Entity struct {
	Name       string     `msgpack:"name"`
	Components Components `msgpack:"components"`
	Children   []Entity   `msgpack:"children"`
}

// LevelIndex resolves a level by name.
func (s *Scene) LevelIndex(name string) (int, bool) {
	for i, l := range s.Levels {
		if l.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Level returns the level at index i, or nil when out of range.
func (s *Scene) Level(i int) *Level {
	if i < 0 || i >= len(s.Levels) {
		return nil
	}
	return &s.Levels[i]
}

// Walk visits entities depth-first, parents before children. Returning
// false from fn skips the entity's children.
func Walk(entities []Entity, fn func(e *Entity) bool) {
	for i := range entities {
		e := &entities[i]
		if fn(e) {
			Walk(e.Children, fn)
		}
	}
}

// Count returns the number of entities in the forest, children included.
func Count(entities []Entity) int {
	n := 0
	Walk(entities, func(*Entity) bool {
		n++
		return true
	})
	return n
}

// Get returns the first component of type T attached to e.
func Get[T Component](e *Entity) (T, bool) {
	for _, c := range e.Components {
		if v, ok := c.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
