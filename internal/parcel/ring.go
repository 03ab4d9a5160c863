package parcel

import "sort"

// Ring returns every valid parcel within Chebyshev distance radius of
// center, nearest ring first. Within a ring the order is stable: clockwise
// starting at the bottom-left corner.
func Ring(center Parcel, radius int) []Parcel {
	if radius < 0 {
		return nil
	}
	out := make([]Parcel, 0, (2*radius+1)*(2*radius+1))
	if center.Valid() {
		out = append(out, center)
	}
	for d := 1; d <= radius; d++ {
		for _, off := range ringOffsets(d) {
			x := int(center.X) + off[0]
			y := int(center.Y) + off[1]
			if x < MinCoord || x > MaxCoord || y < MinCoord || y > MaxCoord {
				continue
			}
			out = append(out, Parcel{X: int16(x), Y: int16(y)})
		}
	}
	return out
}

// ringOffsets walks the perimeter of the square of half-size d.
func ringOffsets(d int) [][2]int {
	offs := make([][2]int, 0, 8*d)
	for x := -d; x < d; x++ {
		offs = append(offs, [2]int{x, -d})
	}
	for y := -d; y < d; y++ {
		offs = append(offs, [2]int{d, y})
	}
	for x := d; x > -d; x-- {
		offs = append(offs, [2]int{x, d})
	}
	for y := d; y > -d; y-- {
		offs = append(offs, [2]int{-d, y})
	}
	return offs
}

// Distance returns the Chebyshev distance between two parcels.
func Distance(a, b Parcel) int {
	dx := int(a.X) - int(b.X)
	dy := int(a.Y) - int(b.Y)
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return max(dx, dy)
}

// Offset returns p moved by (dx, dy).
func (p Parcel) Offset(dx, dy int16) Parcel {
	return Parcel{X: p.X + dx, Y: p.Y + dy}
}

// Neighbors returns the four edge-adjacent parcels: left, right, bottom, top.
func Neighbors(p Parcel) [4]Parcel {
	return [4]Parcel{p.Offset(-1, 0), p.Offset(1, 0), p.Offset(0, -1), p.Offset(0, 1)}
}

// Diagonals returns the four corner-adjacent parcels:
// top-left, top-right, bottom-left, bottom-right.
func Diagonals(p Parcel) [4]Parcel {
	return [4]Parcel{p.Offset(-1, 1), p.Offset(1, 1), p.Offset(-1, -1), p.Offset(1, -1)}
}

// Set is an unordered collection of parcels.
type Set map[Parcel]struct{}

// NewSet builds a set from the given parcels.
func NewSet(parcels ...Parcel) Set {
	s := make(Set, len(parcels))
	for _, p := range parcels {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts p.
func (s Set) Add(p Parcel) { s[p] = struct{}{} }

// Remove deletes p.
func (s Set) Remove(p Parcel) { delete(s, p) }

// Contains reports whether p is in the set.
func (s Set) Contains(p Parcel) bool {
	_, ok := s[p]
	return ok
}

// Intersects reports whether any of parcels is in the set.
func (s Set) Intersects(parcels []Parcel) bool {
	for _, p := range parcels {
		if s.Contains(p) {
			return true
		}
	}
	return false
}

// Slice returns the members sorted by (X, Y).
func (s Set) Slice() []Parcel {
	out := make([]Parcel, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	Sort(out)
	return out
}

// Sort orders parcels by X, then Y.
func Sort(parcels []Parcel) {
	sort.Slice(parcels, func(i, j int) bool {
		if parcels[i].X != parcels[j].X {
			return parcels[i].X < parcels[j].X
		}
		return parcels[i].Y < parcels[j].Y
	})
}
