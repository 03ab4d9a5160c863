package scene

// Component is one of the known component variants. The set is closed:
// only types in this package implement it.
type Component interface {
	componentTag() string
}

// Component tags as they appear on the wire.
const (
	TagTransform      = "Transform"
	TagSpriteRenderer = "SpriteRenderer"
	TagBoxCollider    = "BoxCollider"
	TagCircleCollider = "CircleCollider"
	TagMaskCollider   = "MaskCollider"
	TagLevelChange    = "LevelChange"
)

// CollisionType tells whether a collider blocks movement or only reports overlap.
type CollisionType string

const (
	Solid   CollisionType = "Solid"
	Trigger CollisionType = "Trigger"
)

// Anchor is the sprite pivot.
type Anchor string

const (
	AnchorCenter       Anchor = "Center"
	AnchorBottomLeft   Anchor = "BottomLeft"
	AnchorBottomCenter Anchor = "BottomCenter"
	AnchorBottomRight  Anchor = "BottomRight"
	AnchorCenterLeft   Anchor = "CenterLeft"
	AnchorCenterRight  Anchor = "CenterRight"
	AnchorTopLeft      Anchor = "TopLeft"
	AnchorTopCenter    Anchor = "TopCenter"
	AnchorTopRight     Anchor = "TopRight"
)

// Channel selects the image channel a mask collider samples.
type Channel string

const (
	ChannelR Channel = "R"
	ChannelG Channel = "G"
	ChannelB Channel = "B"
	ChannelA Channel = "A"
)

// Transform places an entity relative to its parent.
type Transform struct {
	Location Vec2  `msgpack:"location"`
	Rotation Vec3F `msgpack:"rotation"`
	Scale    Vec2F `msgpack:"scale"`
}

// SpriteRenderer draws a sprite from the scene's assets.
type SpriteRenderer struct {
	Sprite string     `msgpack:"sprite"`
	Color  [4]float32 `msgpack:"color"`
	Layer  int32      `msgpack:"layer"`
	FlipX  bool       `msgpack:"flip_x"`
	FlipY  bool       `msgpack:"flip_y"`
	Anchor Anchor     `msgpack:"anchor"`
}

// BoxCollider is an axis-aligned collision box relative to the entity.
type BoxCollider struct {
	Center        Vec2          `msgpack:"center"`
	Size          Vec2          `msgpack:"size"`
	CollisionType CollisionType `msgpack:"collision_type"`
}

// CircleCollider is a collision circle relative to the entity.
type CircleCollider struct {
	Center Vec2  `msgpack:"center"`
	Radius int32 `msgpack:"radius"`
}

// MaskCollider derives collision from the pixels of a sprite channel.
type MaskCollider struct {
	Sprite  string  `msgpack:"sprite"`
	Channel Channel `msgpack:"channel"`
	Anchor  Anchor  `msgpack:"anchor"`
}

// LevelChange moves the player to another level of the owning scene when
// the entity's trigger is used.
type LevelChange struct {
	Level      string `msgpack:"level"`
	SpawnPoint Vec2   `msgpack:"spawn_point"`
}

func (Transform) componentTag() string      { return TagTransform }
func (SpriteRenderer) componentTag() string { return TagSpriteRenderer }
func (BoxCollider) componentTag() string    { return TagBoxCollider }
func (CircleCollider) componentTag() string { return TagCircleCollider }
func (MaskCollider) componentTag() string   { return TagMaskCollider }
func (LevelChange) componentTag() string    { return TagLevelChange }

// DefaultTransform is the identity transform.
func DefaultTransform() Transform {
	return Transform{Scale: Vec2F{X: 1, Y: 1}}
}

// DefaultColor is opaque white.
var DefaultColor = [4]float32{1, 1, 1, 1}
