package parcel

import "math"

// Grid constants.
const (
	// Size is the edge length of a parcel in world units.
	Size = 500

	// Tile is the edge length of a background tile in world units.
	Tile = 64

	// World boundaries (parcel coordinates, inclusive)
	MinCoord = -152
	MaxCoord = 152
)

// Point is a position in world space. Y grows upwards.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Rect is an axis-aligned rectangle in world space.
type Rect struct {
	Min Point
	Max Point
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Contains reports whether pt lies inside r (edges included).
func (r Rect) Contains(pt Point) bool {
	return pt.X >= r.Min.X && pt.X <= r.Max.X && pt.Y >= r.Min.Y && pt.Y <= r.Max.Y
}

// FromWorld converts a world position to the parcel containing it.
// Parcel centers sit on multiples of Size, so both axes are rounded.
func FromWorld(pt Point) Parcel {
	return Parcel{
		X: clampCoord(math.Round(pt.X / Size)),
		Y: clampCoord(math.Round(pt.Y / Size)),
	}
}

// Center returns the world position of the parcel center.
func (p Parcel) Center() Point {
	return Point{X: float64(p.X) * Size, Y: float64(p.Y) * Size}
}

// Rect returns the world-space area covered by the parcel.
func (p Parcel) Rect() Rect {
	c := p.Center()
	return Rect{
		Min: Point{X: c.X - Size/2, Y: c.Y - Size/2},
		Max: Point{X: c.X + Size/2, Y: c.Y + Size/2},
	}
}

// Bounds returns the world-space rectangle covering every parcel of a group.
// An empty group yields the zero Rect.
func Bounds(parcels []Parcel) Rect {
	if len(parcels) == 0 {
		return Rect{}
	}
	r := parcels[0].Rect()
	for _, p := range parcels[1:] {
		pr := p.Rect()
		r.Min.X = math.Min(r.Min.X, pr.Min.X)
		r.Min.Y = math.Min(r.Min.Y, pr.Min.Y)
		r.Max.X = math.Max(r.Max.X, pr.Max.X)
		r.Max.Y = math.Max(r.Max.Y, pr.Max.Y)
	}
	return r
}

func clampCoord(v float64) int16 {
	if v < MinCoord {
		return MinCoord
	}
	if v > MaxCoord {
		return MaxCoord
	}
	return int16(v)
}
