// Package level implements the transitions between the outdoor world and
// the nested levels of a scene.
package level

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

// Outdoor is the level id of the parcel-streamed overworld.
const Outdoor = 0

// Phase is the transition phase of a player.
type Phase int

const (
	Normal Phase = iota
	LoadingLevel
	ExitingLevel
)

var phaseNames = [...]string{"normal", "loading_level", "exiting_level"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Target is where a level-change trigger leads.
type Target struct {
	// Level is resolved by name inside the owning scene.
	Level      string
	SpawnPoint scene.Vec2
	// Owner is the spawned scene instance holding the trigger.
	Owner uint64
	// Parcel locates the owner again if it is replaced before the
	// transition applies.
	Parcel parcel.Parcel
}

// Return is a saved position to come back to when leaving a level.
type Return struct {
	Level    int
	Owner    uint64
	Position parcel.Point
}

// State is the player's place in the world.
type State struct {
	Parcel   parcel.Parcel
	Level    int
	Owner    uint64
	Position parcel.Point
	Stack    []Return
}

// Move places the player at pos and updates the parcel.
func (s *State) Move(pos parcel.Point) {
	s.Position = pos
	s.Parcel = parcel.FromWorld(pos)
}

// Placement is the spawned scene instance a transition lands in.
type Placement struct {
	Owner  uint64
	Scene  *scene.Scene
	Center parcel.Point
}

// Resolver finds the spawned scene instance a target refers to.
type Resolver func(t Target) (Placement, bool)

// Transition describes a completed level change.
type Transition struct {
	From, To int
	Owner    uint64
	Exit     bool
}

// Machine drives level changes of one player.
type Machine struct {
	phase  Phase
	target Target
	fade   *Fade
}

// NewMachine returns a machine whose fades take fadeDuration per direction.
func NewMachine(fadeDuration time.Duration) *Machine {
	return &Machine{fade: NewFade(fadeDuration)}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Fade exposes the screen transition.
func (m *Machine) Fade() *Fade { return m.fade }

// Enter starts the transition to t. World state is untouched until the
// fade out completes.
func (m *Machine) Enter(t Target) error {
	if m.phase != Normal {
		return fmt.Errorf("entering %q: %w", t.Level, ErrBusy)
	}
	m.phase = LoadingLevel
	m.target = t
	m.fade.Start(FadeOut)
	slog.Debug("level change started", "target", t.Level, "owner", t.Owner)
	return nil
}

// Exit starts the transition back to the last saved position.
func (m *Machine) Exit(st *State) error {
	if m.phase != Normal {
		return fmt.Errorf("exiting level: %w", ErrBusy)
	}
	if len(st.Stack) == 0 {
		return ErrNoReturn
	}
	m.phase = ExitingLevel
	m.fade.Start(FadeOut)
	slog.Debug("level exit started", "level", st.Level)
	return nil
}

// Advance moves the fade forward and applies the pending transition once
// the screen is covered. It returns the transition applied during this
// call, if any.
func (m *Machine) Advance(dt time.Duration, st *State, resolve Resolver) (Transition, bool) {
	if m.fade.Advance(dt) != FadeOut {
		return Transition{}, false
	}

	var (
		tr Transition
		ok bool
	)
	switch m.phase {
	case LoadingLevel:
		tr, ok = m.load(st, resolve)
	case ExitingLevel:
		tr, ok = m.pop(st)
	}
	m.phase = Normal
	m.target = Target{}
	m.fade.Start(FadeIn)
	return tr, ok
}

func (m *Machine) load(st *State, resolve Resolver) (Transition, bool) {
	t := m.target
	pl, ok := resolve(t)
	if !ok {
		slog.Warn("level change target scene is gone", "target", t.Level, "owner", t.Owner)
		return Transition{}, false
	}
	s := pl.Scene

	idx, found := s.LevelIndex(t.Level)
	if !found {
		slog.Debug("level not found, using outdoor level", "scene", s.Name, "target", t.Level)
	}

	tr := Transition{From: st.Level, To: idx, Owner: pl.Owner}
	if idx == Outdoor {
		st.Stack = st.Stack[:0]
		st.Owner = 0
	} else {
		st.Stack = append(st.Stack, Return{Level: st.Level, Owner: st.Owner, Position: st.Position})
		st.Owner = pl.Owner
	}
	st.Level = idx
	st.Move(t.SpawnPoint.Point().Add(pl.Center))

	slog.Info("level changed", "scene", s.Name, "from", tr.From, "to", tr.To, "depth", len(st.Stack))
	return tr, true
}

func (m *Machine) pop(st *State) (Transition, bool) {
	if len(st.Stack) == 0 {
		return Transition{}, false
	}
	r := st.Stack[len(st.Stack)-1]
	st.Stack = st.Stack[:len(st.Stack)-1]

	tr := Transition{From: st.Level, To: r.Level, Owner: r.Owner, Exit: true}
	st.Level = r.Level
	st.Owner = r.Owner
	st.Move(r.Position)

	slog.Info("level exited", "from", tr.From, "to", tr.To, "depth", len(st.Stack))
	return tr, true
}
