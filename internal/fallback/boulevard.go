package fallback

import (
	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

const (
	boulevardSpacing   = 4
	boulevardShortSide = 1
	boulevardLongSide  = 3
	boulevardLayer     = -2
)

// crossingX reports whether column x starts (dir < 0) or ends (dir > 0) a
// block of the boulevard grid.
func crossingX(x int16, dir int16) bool {
	m := x % boulevardSpacing
	if dir < 0 {
		return m == 1 || m == -(boulevardSpacing-1)
	}
	return m == 0
}

// crossingY is crossingX for rows; the top edge of a block is at 0.
func crossingY(y int16, dir int16) bool {
	m := y % boulevardSpacing
	if dir > 0 {
		return m == 0
	}
	return m == 1 || m == -(boulevardSpacing-1)
}

// boulevards places a small plaza with a bench and a lamp in every corner
// where the road widens into a crossing.
func boulevards(p parcel.Parcel, roads RoadLookup) []scene.Entity {
	var out []scene.Entity
	for _, c := range Corners {
		xc := crossingX(p.X, c.DX)
		yc := crossingY(p.Y, c.DY)
		if !xc && !yc {
			continue
		}
		if !roads.IsRoad(p.Offset(c.DX, 0)) || !roads.IsRoad(p.Offset(0, c.DY)) || !roads.IsRoad(p.Offset(c.DX, c.DY)) {
			continue
		}

		w, h := boulevardShortSide, boulevardShortSide
		if xc && roads.IsRoad(p.Offset(2*c.DX, 0)) && roads.IsRoad(p.Offset(2*c.DX, c.DY)) {
			w = boulevardLongSide
		}
		if yc && roads.IsRoad(p.Offset(0, 2*c.DY)) && roads.IsRoad(p.Offset(c.DX, 2*c.DY)) {
			h = boulevardLongSide
		}
		if w == boulevardShortSide && h == boulevardShortSide {
			continue
		}
		out = append(out, boulevard(c, w, h)...)
	}
	return out
}

func boulevard(c Corner, w, h int) []scene.Entity {
	const step = parcel.Tile * 2
	sx, sy := int32(c.DX), int32(c.DY)
	edgeX, edgeY := "left", "top"
	if sx < 0 {
		edgeX = "right"
	}
	if sy > 0 {
		edgeY = "bottom"
	}

	var out []scene.Entity
	for x := range w {
		for y := range h {
			sprite := "boulevard-background.png"
			switch {
			case x == w-1 && y == h-1:
				sprite = "boulevard-" + edgeY + "-" + edgeX + ".png"
			case x == w-1:
				sprite = "boulevard-" + edgeX + ".png"
			case y == h-1:
				sprite = "boulevard-" + edgeY + ".png"
			}
			loc := scene.Vec2{
				X: sx*parcel.Size/2 - sx*int32(x)*step,
				Y: sy*parcel.Size/2 - sy*int32(y)*step,
			}
			out = append(out, spriteEntity("Boulevard", sprite, boulevardLayer, c.Anchor, loc))
		}
	}
	return append(out, boulevardProps(c, w == boulevardLongSide)...)
}

func boulevardProps(c Corner, horizontal bool) []scene.Entity {
	sx, sy := int32(c.DX), int32(c.DY)
	inset := int32(parcel.Size/2 - boulevardLongSide*parcel.Tile)

	bench := scene.Vec2{X: sx * parcel.Size / 2, Y: sy * inset}
	benchSprite, shadowSprite := "Bench_V.png", "Bench_V_shadow.png"
	collider := scene.BoxCollider{Center: scene.Vec2{X: 0, Y: -40}, Size: scene.Vec2{X: 60, Y: 90}, CollisionType: scene.Solid}
	if horizontal {
		bench = scene.Vec2{X: sx * inset, Y: sy * parcel.Size / 2}
		benchSprite, shadowSprite = "Bench_H.png", "Bench_H_shadow.png"
		collider = scene.BoxCollider{Center: scene.Vec2{X: 0, Y: -20}, Size: scene.Vec2{X: 110, Y: 40}, CollisionType: scene.Solid}
	}

	benchEntity := spriteEntity("Bench", benchSprite, 0, scene.AnchorCenter, bench)
	benchEntity.Components = append(benchEntity.Components, collider)

	lamp := scene.Vec2{X: sx * parcel.Size / 2, Y: sy * parcel.Size * 4 / 9}
	lampEntity := spriteEntity("Lamp", "Lamp.png", 0, scene.AnchorBottomCenter, lamp)
	lampEntity.Components = append(lampEntity.Components, scene.BoxCollider{
		Center:        scene.Vec2{X: 0, Y: 10},
		Size:          scene.Vec2{X: 25, Y: 25},
		CollisionType: scene.Solid,
	})

	return []scene.Entity{
		benchEntity,
		spriteEntity("Bench_shadow", shadowSprite, -1, scene.AnchorCenter, bench),
		lampEntity,
		spriteEntity("Lamp_light", "Lamp_light.png", 1, scene.AnchorBottomCenter, lamp),
		spriteEntity("Lamp_shadow", "Lamp_shadow.png", -1, scene.AnchorBottomCenter, lamp),
	}
}
