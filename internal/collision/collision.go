// Package collision tracks the colliders of spawned scenes in world space.
package collision

import (
	"math"

	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

// Circle is a collision circle in world space.
type Circle struct {
	Center parcel.Point
	Radius float64
}

// Shape is one collider registered by a spawned scene.
type Shape struct {
	Owner   uint64
	Parcels []parcel.Parcel
	Entity  string
	Kind    scene.CollisionType

	// Exactly one of Box or Circle is set.
	Box    *parcel.Rect
	Circle *Circle

	// LevelChange is set on triggers that lead to another level.
	LevelChange *scene.LevelChange
}

func (s Shape) overlaps(r parcel.Rect) bool {
	if s.Box != nil {
		return s.Box.Min.X < r.Max.X && s.Box.Max.X > r.Min.X &&
			s.Box.Min.Y < r.Max.Y && s.Box.Max.Y > r.Min.Y
	}
	if s.Circle != nil {
		cx := math.Max(r.Min.X, math.Min(s.Circle.Center.X, r.Max.X))
		cy := math.Max(r.Min.Y, math.Min(s.Circle.Center.Y, r.Max.Y))
		dx, dy := s.Circle.Center.X-cx, s.Circle.Center.Y-cy
		return dx*dx+dy*dy < s.Circle.Radius*s.Circle.Radius
	}
	return false
}

// Map is the set of colliders currently in the world. It is not safe for
// concurrent use.
type Map struct {
	shapes []Shape
}

// New returns an empty map.
func New() *Map {
	return &Map{}
}

// Len returns the number of registered shapes.
func (m *Map) Len() int { return len(m.shapes) }

// Clear removes every shape.
func (m *Map) Clear() { m.shapes = m.shapes[:0] }

// RemoveOwner drops the shapes of one spawned scene and returns how many
// were removed.
func (m *Map) RemoveOwner(owner uint64) int {
	kept := m.shapes[:0]
	for _, s := range m.shapes {
		if s.Owner != owner {
			kept = append(kept, s)
		}
	}
	removed := len(m.shapes) - len(kept)
	clear(m.shapes[len(kept):])
	m.shapes = kept
	return removed
}

type frame struct {
	offset parcel.Point
	scaleX float64
	scaleY float64
}

// AddScene registers the colliders of one level of s, placed with its
// origin at origin. Mask colliders need sprite pixels and are not
// registered. It returns the number of shapes added.
func (m *Map) AddScene(owner uint64, s *scene.Scene, level int, origin parcel.Point) int {
	lvl := s.Level(level)
	if lvl == nil {
		return 0
	}
	before := len(m.shapes)
	m.addEntities(owner, s.Parcels, lvl.Entities, frame{offset: origin, scaleX: 1, scaleY: 1})
	return len(m.shapes) - before
}

func (m *Map) addEntities(owner uint64, parcels []parcel.Parcel, entities []scene.Entity, parent frame) {
	for i := range entities {
		e := &entities[i]
		f := parent
		if t, ok := scene.Get[scene.Transform](e); ok {
			f.offset = parent.offset.Add(parcel.Point{
				X: float64(t.Location.X) * parent.scaleX,
				Y: float64(t.Location.Y) * parent.scaleY,
			})
			f.scaleX *= float64(t.Scale.X)
			f.scaleY *= float64(t.Scale.Y)
		}

		lc, hasLC := scene.Get[scene.LevelChange](e)
		for _, c := range e.Components {
			shape := Shape{Owner: owner, Parcels: parcels, Entity: e.Name}
			switch c := c.(type) {
			case scene.BoxCollider:
				center := f.offset.Add(parcel.Point{X: float64(c.Center.X) * f.scaleX, Y: float64(c.Center.Y) * f.scaleY})
				hw := math.Abs(float64(c.Size.X)*f.scaleX) / 2
				hh := math.Abs(float64(c.Size.Y)*f.scaleY) / 2
				shape.Box = &parcel.Rect{
					Min: parcel.Point{X: center.X - hw, Y: center.Y - hh},
					Max: parcel.Point{X: center.X + hw, Y: center.Y + hh},
				}
				shape.Kind = c.CollisionType
			case scene.CircleCollider:
				shape.Circle = &Circle{
					Center: f.offset.Add(parcel.Point{X: float64(c.Center.X) * f.scaleX, Y: float64(c.Center.Y) * f.scaleY}),
					Radius: float64(c.Radius) * math.Max(math.Abs(f.scaleX), math.Abs(f.scaleY)),
				}
				shape.Kind = scene.Solid
			default:
				continue
			}
			if shape.Kind == "" {
				shape.Kind = scene.Solid
			}
			if hasLC && shape.Kind == scene.Trigger {
				shape.LevelChange = &lc
			}
			m.shapes = append(m.shapes, shape)
		}

		m.addEntities(owner, parcels, e.Children, f)
	}
}

// Query returns every shape overlapping the box of the given size centred
// at pos.
func (m *Map) Query(pos, size parcel.Point) []Shape {
	r := parcel.Rect{
		Min: parcel.Point{X: pos.X - size.X/2, Y: pos.Y - size.Y/2},
		Max: parcel.Point{X: pos.X + size.X/2, Y: pos.Y + size.Y/2},
	}
	var out []Shape
	for _, s := range m.shapes {
		if s.overlaps(r) {
			out = append(out, s)
		}
	}
	return out
}

// Blocked reports whether a solid shape overlaps the box.
func (m *Map) Blocked(pos, size parcel.Point) bool {
	for _, s := range m.Query(pos, size) {
		if s.Kind == scene.Solid {
			return true
		}
	}
	return false
}

// Trigger returns the first level-change trigger overlapping the box.
func (m *Map) Trigger(pos, size parcel.Point) (Shape, bool) {
	for _, s := range m.Query(pos, size) {
		if s.LevelChange != nil {
			return s, true
		}
	}
	return Shape{}, false
}
