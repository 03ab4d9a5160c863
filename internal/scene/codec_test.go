package scene

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/udisondev/worldstream/internal/parcel"
)

func sampleScene() *Scene {
	return &Scene{
		Name:      "Harbor",
		Parcels:   []parcel.Parcel{{X: 0, Y: 0}, {X: 1, Y: 0}},
		Timestamp: 1700000000123,
		Levels: []Level{
			{
				Name:        "Outdoor",
				Dimensions:  Vec2{X: 1000, Y: 500},
				PlayerLayer: 1,
				Entities: []Entity{
					{
						Name: "house",
						Components: Components{
							Transform{Location: Vec2{X: 10, Y: -20}, Scale: Vec2F{X: 1, Y: 1}},
							SpriteRenderer{Sprite: "house.png", Color: DefaultColor, Layer: 2, Anchor: AnchorBottomCenter},
							BoxCollider{Center: Vec2{X: 0, Y: 30}, Size: Vec2{X: 120, Y: 60}, CollisionType: Solid},
						},
						Children: []Entity{
							{
								Name: "door",
								Components: Components{
									Transform{Location: Vec2{X: 0, Y: 5}, Scale: Vec2F{X: 1, Y: 1}},
									BoxCollider{Size: Vec2{X: 20, Y: 10}, CollisionType: Trigger},
									LevelChange{Level: "Cave", SpawnPoint: Vec2{X: 3, Y: 4}},
								},
							},
							{
								Name:       "chimney",
								Components: Components{CircleCollider{Radius: 8}},
							},
						},
					},
					{
						Name:       "pond",
						Components: Components{MaskCollider{Sprite: "pond.png", Channel: ChannelA, Anchor: AnchorCenter}},
					},
				},
			},
			{
				Name:       "Cave",
				SpawnPoint: Vec2{X: -40, Y: 12},
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	in := sampleScene()

	b, err := Marshal(in)
	require.NoError(t, err)

	out, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	in := sampleScene()

	require.NoError(t, WriteFile(path, in))
	out, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParcelsEncodedAsPointers(t *testing.T) {
	b, err := Marshal(&Scene{Name: "a", Parcels: []parcel.Parcel{{X: -2, Y: 7}}})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, msgpack.Unmarshal(b, &raw))
	assert.Equal(t, []any{"-2,7"}, raw["parcels"])
}

func TestUnknownComponentSkipped(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	require.NoError(t, enc.Encode(map[string]any{
		"name":      "future",
		"timestamp": 5,
		"parcels":   []string{"3,3"},
		"levels": []any{
			map[string]any{
				"name": "Outdoor",
				"entities": []any{
					map[string]any{
						"name": "lamp",
						"components": []any{
							map[string]any{"ParticleEmitter": map[string]any{"rate": 12, "colors": []int{1, 2}}},
							map[string]any{"CircleCollider": map[string]any{"radius": 4}},
						},
					},
				},
			},
		},
	}))

	s, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, s.Levels, 1)
	require.Len(t, s.Levels[0].Entities, 1)
	assert.Equal(t, Components{CircleCollider{Radius: 4}}, s.Levels[0].Entities[0].Components)
	assert.Equal(t, []parcel.Parcel{{X: 3, Y: 3}}, s.Parcels)
}

func TestDecodeCorrupt(t *testing.T) {
	_, err := Unmarshal([]byte{0xc1, 0x00, 0x13})
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Unmarshal(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrDecode)
}

func TestLevelIndex(t *testing.T) {
	s := sampleScene()

	idx, ok := s.LevelIndex("Cave")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = s.LevelIndex("Attic")
	assert.False(t, ok)
	assert.Equal(t, 0, idx)

	assert.Nil(t, s.Level(5))
	assert.Equal(t, "Outdoor", s.Level(0).Name)
}

func TestWalk(t *testing.T) {
	s := sampleScene()
	var names []string
	Walk(s.Levels[0].Entities, func(e *Entity) bool {
		names = append(names, e.Name)
		return e.Name != "house"
	})
	assert.Equal(t, []string{"house", "pond"}, names)
	assert.Equal(t, 4, Count(s.Levels[0].Entities))

	door := &s.Levels[0].Entities[0].Children[0]
	lc, ok := Get[LevelChange](door)
	require.True(t, ok)
	assert.Equal(t, "Cave", lc.Level)
	_, ok = Get[SpriteRenderer](door)
	assert.False(t, ok)
}
