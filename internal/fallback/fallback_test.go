package fallback

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

type roadSet parcel.Set

func (r roadSet) IsRoad(p parcel.Parcel) bool { return parcel.Set(r).Contains(p) }

func roadsAround(center parcel.Parcel, radius int) roadSet {
	return roadSet(parcel.NewSet(parcel.Ring(center, radius)...))
}

func TestClassifyCorner(t *testing.T) {
	tests := []struct {
		x, y, d bool
		want    CornerType
	}{
		{false, false, false, CornerClosed},
		{false, false, true, CornerClosed},
		{true, true, false, CornerOpen},
		{true, false, false, CornerHorizontal},
		{true, false, true, CornerHorizontal},
		{false, true, false, CornerVertical},
		{false, true, true, CornerVertical},
		{true, true, true, CornerNone},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("x=%t,y=%t,d=%t", tt.x, tt.y, tt.d), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyCorner(tt.x, tt.y, tt.d))
		})
	}
}

func TestCornerTableTotal(t *testing.T) {
	valid := map[CornerType]bool{
		CornerNone: true, CornerClosed: true, CornerOpen: true, CornerHorizontal: true, CornerVertical: true,
	}
	for mask := range 16 {
		x, y, d := mask&1 != 0, mask&2 != 0, mask&4 != 0
		got := ClassifyCorner(x, y, d)
		assert.True(t, valid[got], "mask %d gave %v", mask, got)
		for _, c := range Corners {
			sprite := c.Sprite(got)
			assert.Equal(t, got == CornerNone, sprite == "", "corner %s type %v", c.Name, got)
		}
	}
}

func TestCornerSprites(t *testing.T) {
	tests := []struct {
		corner Corner
		typ    CornerType
		want   string
	}{
		{Corners[0], CornerClosed, "road-closed-top-left.png"},
		{Corners[1], CornerOpen, "road-open-top-right.png"},
		{Corners[2], CornerVertical, "road-left.png"},
		{Corners[3], CornerVertical, "road-right.png"},
		{Corners[0], CornerHorizontal, "road-top.png"},
		{Corners[3], CornerHorizontal, "road-bottom.png"},
		{Corners[1], CornerNone, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.corner.Sprite(tt.typ), "%s/%v", tt.corner.Name, tt.typ)
	}
}

func countNamed(s *scene.Scene, name string) int {
	n := 0
	scene.Walk(s.Levels[0].Entities, func(e *scene.Entity) bool {
		if e.Name == name {
			n++
		}
		return true
	})
	return n
}

func sprites(s *scene.Scene, name string) []string {
	var out []string
	scene.Walk(s.Levels[0].Entities, func(e *scene.Entity) bool {
		if e.Name == name {
			r, _ := scene.Get[scene.SpriteRenderer](e)
			out = append(out, r.Sprite)
		}
		return true
	})
	return out
}

func TestRoad(t *testing.T) {
	p := parcel.New(10, 10)

	t.Run("isolated", func(t *testing.T) {
		s := Road(p, roadSet(parcel.NewSet(p)), Catalog{})
		require.Len(t, s.Levels, 1)
		assert.False(t, s.IsDefault)
		assert.Equal(t, []parcel.Parcel{p}, s.Parcels)
		assert.Equal(t, "Road 10 - 10", s.Name)
		assert.ElementsMatch(t, []string{
			"road-closed-top-left.png", "road-closed-top-right.png",
			"road-closed-bottom-left.png", "road-closed-bottom-right.png",
		}, sprites(s, "Corner"))
		assert.Equal(t, 4, countNamed(s, "Sidewalk"))
		assert.Equal(t, 0, countNamed(s, "Background"), "corner pieces hide the tiles under them")
	})

	t.Run("horizontal street", func(t *testing.T) {
		roads := roadSet(parcel.NewSet(p.Offset(-1, 0), p, p.Offset(1, 0)))
		s := Road(p, roads, Catalog{})
		assert.ElementsMatch(t, []string{
			"road-top.png", "road-top.png", "road-bottom.png", "road-bottom.png",
		}, sprites(s, "Corner"))
		assert.ElementsMatch(t, []string{"road-top.png", "road-bottom.png"}, sprites(s, "Sidewalk"))
	})

	t.Run("inner crossing", func(t *testing.T) {
		roads := roadSet(parcel.NewSet(p, p.Offset(-1, 0), p.Offset(0, 1)))
		s := Road(p, roads, Catalog{})
		assert.Contains(t, sprites(s, "Corner"), "road-open-top-left.png")
	})

	t.Run("plain road block", func(t *testing.T) {
		s := Road(p, roadsAround(p, 1), Catalog{})
		assert.Empty(t, sprites(s, "Corner"))
		assert.Equal(t, 0, countNamed(s, "Sidewalk"))
		assert.Equal(t, 4, countNamed(s, "Background"))
	})

	t.Run("deterministic", func(t *testing.T) {
		roads := roadsAround(p, 2)
		assert.Equal(t, Road(p, roads, DefaultCatalog()), Road(p, roads, DefaultCatalog()))
	})
}

func TestBoulevards(t *testing.T) {
	p := parcel.New(1, 0)
	roads := roadsAround(p, 3)

	with := Road(p, roads, Catalog{Boulevards: true})
	assert.Positive(t, countNamed(with, "Boulevard"))
	assert.Positive(t, countNamed(with, "Lamp"))

	without := Road(p, roads, Catalog{})
	assert.Equal(t, 0, countNamed(without, "Boulevard"))

	mid := Road(parcel.New(2, 2), roadsAround(parcel.New(2, 2), 3), Catalog{Boulevards: true})
	assert.Equal(t, 0, countNamed(mid, "Boulevard"))
}

func TestWilderness(t *testing.T) {
	cat := DefaultCatalog()
	p := parcel.New(5, 5)

	s := Wilderness(p, 42, cat)
	assert.True(t, s.IsDefault)
	assert.Equal(t, WildernessName, s.Name)
	assert.Equal(t, []parcel.Parcel{p}, s.Parcels)
	require.Len(t, s.Levels, 1)
	assert.Equal(t, 64, countNamed(s, "Background"))

	assert.Equal(t, s, Wilderness(p, 42, cat), "same seed and parcel must give the same scene")

	var obstacles int
	for x := int16(-10); x < 10; x++ {
		for y := int16(-10); y < 10; y++ {
			w := Wilderness(parcel.New(x, y), 7, cat)
			scene.Walk(w.Levels[0].Entities, func(e *scene.Entity) bool {
				box, ok := scene.Get[scene.BoxCollider](e)
				if !ok {
					return true
				}
				obstacles++
				tr, ok := scene.Get[scene.Transform](e)
				require.True(t, ok)
				assert.GreaterOrEqual(t, abs(tr.Location.X), int32(minOffset))
				assert.Less(t, abs(tr.Location.X), int32(parcel.Size*spreadFactor/2))
				assert.Contains(t, []scene.BoxCollider{smallCollider, bigCollider}, box)
				return true
			})
		}
	}
	assert.Positive(t, obstacles)
}

func TestWildernessEmptyCatalog(t *testing.T) {
	s := Wilderness(parcel.New(0, 0), 1, Catalog{})
	require.Len(t, s.Levels, 1)
	assert.Empty(t, s.Levels[0].Entities)
	assert.True(t, s.IsDefault)
}

func TestLoadCatalog(t *testing.T) {
	root := t.TempDir()
	write := func(rel string) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}
	write("background/b.png")
	write("background/a.png")
	write("background/notes.txt")
	write("randomized/big_collision/oak/oak.png")
	write("randomized/big_collision/oak/shadow.png")

	cat, err := LoadCatalog(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"background/a.png", "background/b.png"}, cat.Backgrounds)
	assert.Equal(t, [][]string{{"randomized/big_collision/oak/oak.png", "randomized/big_collision/oak/shadow.png"}}, cat.BigObstacles)
	assert.Equal(t, DefaultCatalog().SmallObstacles, cat.SmallObstacles)

	missing, err := LoadCatalog(filepath.Join(root, "nope"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), missing)
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
