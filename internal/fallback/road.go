package fallback

import (
	"fmt"

	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

// RoadLookup reports road membership of a parcel.
type RoadLookup interface {
	IsRoad(p parcel.Parcel) bool
}

// CornerType is the shape of a road corner.
type CornerType int

const (
	CornerNone CornerType = iota
	CornerClosed
	CornerOpen
	CornerHorizontal
	CornerVertical
)

var cornerTypeNames = [...]string{"none", "closed", "open", "horizontal", "vertical"}

func (c CornerType) String() string {
	if int(c) < len(cornerTypeNames) {
		return cornerTypeNames[c]
	}
	return fmt.Sprintf("CornerType(%d)", int(c))
}

// ClassifyCorner maps the road flags around a corner to its shape: x is
// the horizontal neighbour, y the vertical one and diagonal the parcel
// across the corner.
func ClassifyCorner(x, y, diagonal bool) CornerType {
	switch {
	case !x && !y:
		return CornerClosed
	case x && y && !diagonal:
		return CornerOpen
	case x && !y:
		return CornerHorizontal
	case !x && y:
		return CornerVertical
	default:
		return CornerNone
	}
}

// Corner identifies one of the four parcel corners by the direction it
// points to.
type Corner struct {
	Name   string
	DX, DY int16
	Anchor scene.Anchor
}

// Corners in generation order.
var Corners = [4]Corner{
	{Name: "top-left", DX: -1, DY: 1, Anchor: scene.AnchorTopLeft},
	{Name: "top-right", DX: 1, DY: 1, Anchor: scene.AnchorTopRight},
	{Name: "bottom-left", DX: -1, DY: -1, Anchor: scene.AnchorBottomLeft},
	{Name: "bottom-right", DX: 1, DY: -1, Anchor: scene.AnchorBottomRight},
}

// Location returns the corner point relative to the parcel center.
func (c Corner) Location() scene.Vec2 {
	return scene.Vec2{X: int32(c.DX) * parcel.Size / 2, Y: int32(c.DY) * parcel.Size / 2}
}

func (c Corner) classify(p parcel.Parcel, roads RoadLookup) CornerType {
	return ClassifyCorner(
		roads.IsRoad(p.Offset(c.DX, 0)),
		roads.IsRoad(p.Offset(0, c.DY)),
		roads.IsRoad(p.Offset(c.DX, c.DY)),
	)
}

// Sprite returns the sprite drawn for a corner of type t, or "" when the
// corner is left open.
func (c Corner) Sprite(t CornerType) string {
	switch t {
	case CornerClosed:
		return "road-closed-" + c.Name + ".png"
	case CornerOpen:
		return "road-open-" + c.Name + ".png"
	case CornerVertical:
		if c.DX < 0 {
			return spriteBorderLeft
		}
		return spriteBorderRight
	case CornerHorizontal:
		if c.DY > 0 {
			return spriteBorderTop
		}
		return spriteBorderBottom
	default:
		return ""
	}
}

const (
	spriteRoadBackground = "road-background.png"
	spriteBorderLeft     = "road-left.png"
	spriteBorderRight    = "road-right.png"
	spriteBorderTop      = "road-top.png"
	spriteBorderBottom   = "road-bottom.png"

	roadBackgroundLayer = -3
	sidewalkLayer       = -2
	cornerLayer         = -1
)

// Road returns the road piece for p, shaped by which of its neighbours
// are roads too.
func Road(p parcel.Parcel, roads RoadLookup, cat Catalog) *scene.Scene {
	name := fmt.Sprintf("Road %d - %d", p.X, p.Y)

	corners, covered := roadCorners(p, roads)

	var entities []scene.Entity
	entities = append(entities, roadBackground(covered)...)
	if cat.Boulevards {
		entities = append(entities, boulevards(p, roads)...)
	}
	entities = append(entities, sidewalks(p, roads)...)
	entities = append(entities, corners...)

	return &scene.Scene{
		Name:    name,
		Parcels: []parcel.Parcel{p},
		Levels: []scene.Level{{
			Name:     name,
			Entities: entities,
		}},
	}
}

// roadCorners returns the corner entities and the corner points they cover.
func roadCorners(p parcel.Parcel, roads RoadLookup) ([]scene.Entity, []scene.Vec2) {
	var (
		out     []scene.Entity
		covered []scene.Vec2
	)
	for _, c := range Corners {
		sprite := c.Sprite(c.classify(p, roads))
		if sprite == "" {
			continue
		}
		out = append(out, spriteEntity("Corner", sprite, cornerLayer, c.Anchor, c.Location()))
		covered = append(covered, c.Location())
	}
	return out, covered
}

// roadBackground tiles the parcel with road surface, leaving out tiles
// that hold a corner piece.
func roadBackground(corners []scene.Vec2) []scene.Entity {
	const step = parcel.Tile * 4
	n := tilesAcross(step)
	var out []scene.Entity
	for x := range n {
		for y := range n {
			origin := scene.Vec2{X: int32(step*x - parcel.Size/2), Y: int32(step*y - parcel.Size/2)}
			if tileHoldsCorner(origin, step, corners) {
				continue
			}
			out = append(out, spriteEntity("Background", spriteRoadBackground, roadBackgroundLayer, scene.AnchorBottomLeft, origin))
		}
	}
	return out
}

func tileHoldsCorner(origin scene.Vec2, size int32, corners []scene.Vec2) bool {
	for _, c := range corners {
		if c.X >= origin.X && c.X <= origin.X+size && c.Y >= origin.Y && c.Y <= origin.Y+size {
			return true
		}
	}
	return false
}

type side struct {
	dx, dy int16
	sprite string
	anchor scene.Anchor
}

var sides = [4]side{
	{dx: -1, sprite: spriteBorderLeft, anchor: scene.AnchorBottomLeft},
	{dx: 1, sprite: spriteBorderRight, anchor: scene.AnchorBottomRight},
	{dy: -1, sprite: spriteBorderBottom, anchor: scene.AnchorBottomLeft},
	{dy: 1, sprite: spriteBorderTop, anchor: scene.AnchorTopLeft},
}

// sidewalks borders every side that does not continue into another road.
// The end tiles are left to the corners.
func sidewalks(p parcel.Parcel, roads RoadLookup) []scene.Entity {
	const step = parcel.Tile * 2
	n := int32(parcel.Size / step)
	var out []scene.Entity
	for _, s := range sides {
		if roads.IsRoad(p.Offset(s.dx, s.dy)) {
			continue
		}
		for i := int32(1); i < n-1; i++ {
			along := step*i - parcel.Size/2
			var loc scene.Vec2
			if s.dx != 0 {
				loc = scene.Vec2{X: int32(s.dx) * parcel.Size / 2, Y: along}
			} else {
				loc = scene.Vec2{X: along, Y: int32(s.dy) * parcel.Size / 2}
			}
			out = append(out, spriteEntity("Sidewalk", s.sprite, sidewalkLayer, s.anchor, loc))
		}
	}
	return out
}
