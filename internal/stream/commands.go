package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/worldstream/internal/collision"
	"github.com/udisondev/worldstream/internal/level"
	"github.com/udisondev/worldstream/internal/parcel"
)

// Command is a player input queued for the stream loop.
type Command interface {
	apply(s *Streamer) error
	name() string
}

// MoveCommand places the player at Position.
type MoveCommand struct{ Position parcel.Point }

// InteractCommand uses the level change trigger under the player.
type InteractCommand struct{}

// ExitCommand leaves the current level.
type ExitCommand struct{}

// ToggleRoadCommand flips the road flag of Parcel.
type ToggleRoadCommand struct{ Parcel parcel.Parcel }

func (MoveCommand) name() string       { return "move" }
func (InteractCommand) name() string   { return "interact" }
func (ExitCommand) name() string       { return "exit" }
func (ToggleRoadCommand) name() string { return "toggle_road" }

func (c MoveCommand) apply(s *Streamer) error {
	s.Move(c.Position)
	return nil
}

func (InteractCommand) apply(s *Streamer) error { return s.Interact() }

func (ExitCommand) apply(s *Streamer) error { return s.ExitLevel() }

func (c ToggleRoadCommand) apply(s *Streamer) error {
	_, err := s.ToggleRoad(c.Parcel)
	return err
}

// Submit queues cmd for the next tick. It never blocks.
func (s *Streamer) Submit(cmd Command) error {
	select {
	case s.inbox <- cmd:
		return nil
	default:
		return ErrInboxFull
	}
}

// Subscribe returns a channel of world events and a function that
// unsubscribes and closes it. Events are dropped for subscribers that do
// not keep up.
func (s *Streamer) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// Run ticks the streamer until ctx is done. Queued commands are applied
// at the start of each tick.
func (s *Streamer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	slog.Info("stream loop started",
		"parcel", s.CurrentParcel(),
		"want_radius", s.opts.MinRadius,
		"keep_radius", s.opts.MaxRadius,
		"tick", s.opts.TickInterval)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.records.Wait()
			s.events.closeAll()
			slog.Info("stream loop stopped")
			return nil
		case now := <-ticker.C:
			s.drainInbox()
			s.Tick(ctx, now.Sub(last))
			last = now
		}
	}
}

func (s *Streamer) drainInbox() {
	for {
		select {
		case cmd := <-s.inbox:
			if err := cmd.apply(s); err != nil {
				slog.Debug("command rejected", "command", cmd.name(), "err", err)
				s.events.publish(Event{
					Type:    EventRejected,
					Command: cmd.name(),
					Error:   err.Error(),
					Level:   s.CurrentLevel(),
				})
			}
		default:
			return
		}
	}
}

// Move places the player at pos.
func (s *Streamer) Move(pos parcel.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.player.Parcel
	s.player.Move(pos)
	if s.player.Parcel != prev {
		s.events.publish(Event{
			Type:     EventMoved,
			Level:    s.player.Level,
			Position: s.player.Position,
			Parcel:   s.player.Parcel,
		})
	}
}

// Interact starts a level change if the player stands on a trigger.
func (s *Streamer) Interact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shape, ok := s.collisions.Trigger(s.player.Position, s.opts.PlayerSize)
	if !ok {
		return ErrNoTrigger
	}
	anchor := s.player.Parcel
	if owner, ok := s.instances[shape.Owner]; ok && !owner.covers(anchor) && len(owner.Parcels) > 0 {
		anchor = owner.Parcels[0]
	}
	return s.machine.Enter(level.Target{
		Level:      shape.LevelChange.Level,
		SpawnPoint: shape.LevelChange.SpawnPoint,
		Owner:      shape.Owner,
		Parcel:     anchor,
	})
}

// ExitLevel starts the way back to the last saved position.
func (s *Streamer) ExitLevel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Exit(&s.player)
}

// ToggleRoad flips the road flag of p, persists it and respawns p and its
// neighbours. It returns whether p is a road now.
func (s *Streamer) ToggleRoad(p parcel.Parcel) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	isRoad, err := s.roads.Toggle(p)
	if err != nil {
		return false, fmt.Errorf("toggling road %s: %w", p, err)
	}

	neighbors, diagonals := parcel.Neighbors(p), parcel.Diagonals(p)
	affected := append([]parcel.Parcel{p}, neighbors[:]...)
	affected = append(affected, diagonals[:]...)

	var respawn []parcel.Parcel
	for _, q := range affected {
		id, ok := s.byParcel[q]
		if !ok || s.pinned(id) {
			continue
		}
		// Authored neighbours do not depend on the road layout.
		if s.instances[id].Kind == Authored && q != p {
			continue
		}
		s.despawn(id)
		respawn = append(respawn, q)
	}
	for _, q := range respawn {
		if !s.covered(q) {
			s.spawnFor(q)
		}
	}
	s.fillHoles()

	slog.Info("road toggled", "parcel", p, "road", isRoad)
	return isRoad, nil
}

// CurrentParcel returns the parcel under the player.
func (s *Streamer) CurrentParcel() parcel.Parcel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player.Parcel
}

// CurrentLevel returns the index of the level the player is in.
func (s *Streamer) CurrentLevel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player.Level
}

// Position returns the player's world position.
func (s *Streamer) Position() parcel.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player.Position
}

// Player returns a copy of the player state.
func (s *Streamer) Player() level.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.player
	st.Stack = append([]level.Return(nil), s.player.Stack...)
	return st
}

// Phase returns the phase of the level machine.
func (s *Streamer) Phase() level.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.machine.Phase()
}

// FadeAlpha returns the opacity of the screen transition overlay.
func (s *Streamer) FadeAlpha() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.machine.Fade().Alpha()
}

// Collisions returns the shapes overlapping a box of the given size
// centred at pos.
func (s *Streamer) Collisions(pos, size parcel.Point) []collision.Shape {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collisions.Query(pos, size)
}

// Blocked reports whether a solid collider overlaps the box.
func (s *Streamer) Blocked(pos, size parcel.Point) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collisions.Blocked(pos, size)
}

// Spawned returns copies of all spawned instances ordered by id.
func (s *Streamer) Spawned() []Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Instance, 0, len(s.instances))
	for _, id := range s.sortedIDs() {
		out = append(out, *s.instances[id])
	}
	return out
}

// Covering returns the instance covering p.
func (s *Streamer) Covering(p parcel.Parcel) (Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byParcel[p]
	if !ok {
		return Instance{}, false
	}
	return *s.instances[id], true
}
