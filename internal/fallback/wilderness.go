package fallback

import (
	"math/rand/v2"
	"path"

	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

// WildernessName is the name of every generated wilderness scene.
const WildernessName = "default_scene"

const (
	obstacleChance = 0.1

	backgroundLayer = -5
	decorationLayer = -1

	// Obstacles stay within this share of the parcel.
	spreadFactor = 0.8
	minOffset    = 50
)

var (
	smallCollider = scene.BoxCollider{
		Center:        scene.Vec2{X: 0, Y: 20},
		Size:          scene.Vec2{X: 30, Y: 30},
		CollisionType: scene.Solid,
	}
	bigCollider = scene.BoxCollider{
		Center:        scene.Vec2{X: 0, Y: 40},
		Size:          scene.Vec2{X: 80, Y: 80},
		CollisionType: scene.Solid,
	}
)

// Wilderness returns a filler scene for p. The result depends only on
// (p, seed, cat).
func Wilderness(p parcel.Parcel, seed uint64, cat Catalog) *scene.Scene {
	rng := parcelRand(p, seed)

	var entities []scene.Entity
	entities = append(entities, scatter(rng, cat)...)
	entities = append(entities, wildernessBackground(rng, cat.Backgrounds)...)

	return &scene.Scene{
		Name:      WildernessName,
		Parcels:   []parcel.Parcel{p},
		IsDefault: true,
		Levels: []scene.Level{{
			Name:     WildernessName,
			Entities: entities,
		}},
	}
}

func parcelRand(p parcel.Parcel, seed uint64) *rand.Rand {
	key := uint64(uint16(p.X))<<16 | uint64(uint16(p.Y))
	return rand.New(rand.NewPCG(seed, key))
}

func wildernessBackground(rng *rand.Rand, sprites []string) []scene.Entity {
	if len(sprites) == 0 {
		return nil
	}
	n := tilesAcross(parcel.Tile)
	out := make([]scene.Entity, 0, n*n)
	for x := range n {
		for y := range n {
			loc := scene.Vec2{
				X: int32(parcel.Tile*x - parcel.Size/2),
				Y: int32(parcel.Tile*y - parcel.Size/2),
			}
			out = append(out, spriteEntity("Background", sprites[rng.IntN(len(sprites))], backgroundLayer, scene.AnchorBottomLeft, loc))
		}
	}
	return out
}

func scatter(rng *rand.Rand, cat Catalog) []scene.Entity {
	var out []scene.Entity
	half := int(parcel.Size * spreadFactor / 2)

	for _, kind := range cat.Decorations {
		if rng.Float64() >= obstacleChance {
			continue
		}
		loc := scene.Vec2{
			X: int32(rng.IntN(2*half) - half),
			Y: int32(rng.IntN(2*half) - half),
		}
		for _, sprite := range kind {
			out = append(out, spriteEntity(path.Base(sprite), sprite, decorationLayer, scene.AnchorBottomCenter, loc))
		}
	}

	for _, k := range []struct {
		kinds    [][]string
		collider scene.BoxCollider
	}{
		{cat.SmallObstacles, smallCollider},
		{cat.BigObstacles, bigCollider},
	} {
		for _, kind := range k.kinds {
			if rng.Float64() >= obstacleChance {
				continue
			}
			loc := scene.Vec2{X: signedOffset(rng, half), Y: signedOffset(rng, half)}
			for _, sprite := range kind {
				e := spriteEntity(path.Base(sprite), sprite, 0, scene.AnchorBottomCenter, loc)
				e.Components = append(e.Components, k.collider)
				out = append(out, e)
			}
		}
	}
	return out
}

// signedOffset returns a value in [minOffset, limit) with a random sign, so
// colliding obstacles keep clear of the parcel center.
func signedOffset(rng *rand.Rand, limit int) int32 {
	v := int32(minOffset + rng.IntN(limit-minOffset))
	if rng.IntN(2) == 0 {
		v = -v
	}
	return v
}

func spriteEntity(name, sprite string, layer int32, anchor scene.Anchor, loc scene.Vec2) scene.Entity {
	t := scene.DefaultTransform()
	t.Location = loc
	return scene.Entity{
		Name: name,
		Components: scene.Components{
			scene.SpriteRenderer{
				Sprite: sprite,
				Color:  scene.DefaultColor,
				Layer:  layer,
				Anchor: anchor,
			},
			t,
		},
	}
}

// tilesAcross returns how many tiles of the given size cover a parcel edge.
func tilesAcross(tile int) int {
	return (parcel.Size + tile - 1) / tile
}
