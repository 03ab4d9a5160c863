package stream

import (
	"fmt"

	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

// Kind tells where a spawned scene came from.
type Kind int

const (
	Authored Kind = iota
	Road
	Wilderness
)

var kindNames = [...]string{"authored", "road", "wilderness"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Hidden is the level of an instance whose trees are all despawned while
// the player is inside another scene.
const Hidden = -1

// Instance is a scene spawned into the world.
type Instance struct {
	ID    uint64
	Scene *scene.Scene
	Kind  Kind
	// EntryID is the cache entry an authored instance was loaded from.
	EntryID string
	// Parcels are the parcels this instance covers. Road parcels claimed by
	// an authored scene are left to the road generator.
	Parcels   []parcel.Parcel
	Timestamp int64
	// Center is the world-space center of every parcel the scene claims.
	Center parcel.Point
	// Level is the spawned level tree, or Hidden.
	Level int
}

// IsDefault reports whether the instance is generated filler.
func (i *Instance) IsDefault() bool {
	return i.Scene.IsDefault
}

// outranks reports whether i wins a parcel shared with o.
func (i *Instance) outranks(o *Instance) bool {
	if i.IsDefault() != o.IsDefault() {
		return !i.IsDefault()
	}
	if i.Timestamp != o.Timestamp {
		return i.Timestamp > o.Timestamp
	}
	return i.ID > o.ID
}
