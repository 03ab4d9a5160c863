// Package stream keeps the scenes around the player spawned while
// authored content streams in from the network.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/udisondev/worldstream/internal/cache"
	"github.com/udisondev/worldstream/internal/collision"
	"github.com/udisondev/worldstream/internal/download"
	"github.com/udisondev/worldstream/internal/fallback"
	"github.com/udisondev/worldstream/internal/level"
	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/roads"
	"github.com/udisondev/worldstream/internal/scene"
)

// Recorder receives every deployment committed to the cache.
type Recorder interface {
	Record(ctx context.Context, e cache.Entry, name string) error
}

// Options configure a Streamer.
type Options struct {
	// MinRadius is the want radius: parcels this close are always covered.
	MinRadius int
	// MaxRadius is the keep radius: scenes with no parcel this close are
	// despawned. It must be larger than MinRadius.
	MaxRadius int

	Seed         uint64
	Catalog      fallback.Catalog
	FadeDuration time.Duration
	TickInterval time.Duration
	// RetryInterval is how long a parcel still covered by wilderness waits
	// after a finished download before it is fetched again.
	RetryInterval time.Duration
	// PlayerSize is the collision box of the player.
	PlayerSize parcel.Point
	Start      parcel.Point

	InboxSize   int
	EventBuffer int
	Recorder    Recorder
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MinRadius:     2,
		MaxRadius:     5,
		Catalog:       fallback.DefaultCatalog(),
		FadeDuration:  500 * time.Millisecond,
		TickInterval:  50 * time.Millisecond,
		RetryInterval: 5 * time.Second,
		PlayerSize:    parcel.Point{X: 18, Y: 18},
		InboxSize:     64,
		EventBuffer:   256,
	}
}

// Streamer owns the spawned world of one player. Tick mutates it from a
// single goroutine; queries may come from any goroutine.
type Streamer struct {
	opts     Options
	cache    *cache.Cache
	roads    *roads.Membership
	pipeline *download.Pipeline

	mu         sync.RWMutex
	player     level.State
	machine    *level.Machine
	collisions *collision.Map
	instances  map[uint64]*Instance
	byParcel   map[parcel.Parcel]uint64
	nextID     uint64

	wantOrder []parcel.Parcel
	want      parcel.Set
	keep      parcel.Set
	// holes are parcels left uncovered by a despawn during this tick.
	holes parcel.Set
	// updated are committed parcels whose instances still need replacing.
	updated parcel.Set
	// retryAt holds when a parcel may be fetched again.
	retryAt map[parcel.Parcel]time.Time

	inbox   chan Command
	events  *hub
	records sync.WaitGroup
}

// New returns a streamer with the player standing at opts.Start.
func New(c *cache.Cache, r *roads.Membership, p *download.Pipeline, opts Options) (*Streamer, error) {
	if opts.MinRadius < 0 || opts.MaxRadius <= opts.MinRadius {
		return nil, fmt.Errorf("keep radius %d must exceed want radius %d", opts.MaxRadius, opts.MinRadius)
	}
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = def.RetryInterval
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = def.InboxSize
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}
	if opts.PlayerSize == (parcel.Point{}) {
		opts.PlayerSize = def.PlayerSize
	}

	s := &Streamer{
		opts:       opts,
		cache:      c,
		roads:      r,
		pipeline:   p,
		machine:    level.NewMachine(opts.FadeDuration),
		collisions: collision.New(),
		instances:  make(map[uint64]*Instance),
		byParcel:   make(map[parcel.Parcel]uint64),
		want:       parcel.NewSet(),
		keep:       parcel.NewSet(),
		holes:      parcel.NewSet(),
		updated:    parcel.NewSet(),
		retryAt:    make(map[parcel.Parcel]time.Time),
		inbox:      make(chan Command, opts.InboxSize),
		events:     newHub(opts.EventBuffer),
	}
	s.player.Move(opts.Start)
	return s, nil
}

// Tick runs one reconciliation pass. dt is the time since the last tick.
// It never waits on the network.
func (s *Streamer) Tick(ctx context.Context, dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outdoor := s.player.Level == level.Outdoor
	if outdoor {
		fetch := s.computeWant()
		s.reconcile()
		s.dispatch(ctx, fetch)
	}
	s.applyResults(ctx, outdoor)
	if outdoor {
		s.enforceKeep()
		s.resolveConflicts()
	}
	s.advanceLevel(dt)
}

// computeWant refreshes the want ring and returns the wanted parcels that
// should be fetched from the network: those with nothing spawned and those
// only covered by wilderness, once their retry delay has passed.
func (s *Streamer) computeWant() []parcel.Parcel {
	s.wantOrder = parcel.Ring(s.player.Parcel, s.opts.MinRadius)
	s.want = parcel.NewSet(s.wantOrder...)

	now := time.Now()
	var fetch []parcel.Parcel
	for _, p := range s.wantOrder {
		if s.roads.IsRoad(p) || s.pipeline.InFlight(p) {
			continue
		}
		if id, ok := s.byParcel[p]; ok && s.instances[id].Kind != Wilderness {
			continue
		}
		if at, ok := s.retryAt[p]; ok && now.Before(at) {
			continue
		}
		fetch = append(fetch, p)
	}
	return fetch
}

// reconcile spawns whatever is available right now for every uncovered
// wanted parcel.
func (s *Streamer) reconcile() {
	for _, p := range s.wantOrder {
		if !s.covered(p) {
			s.holes.Add(p)
		}
	}
	s.fillHoles()
}

// dispatch hands the parcels picked by computeWant to the download
// pipeline. The pipeline drops parcels already in flight.
func (s *Streamer) dispatch(ctx context.Context, fetch []parcel.Parcel) {
	if len(fetch) == 0 {
		return
	}
	s.pipeline.Dispatch(ctx, fetch, nil)
}

// applyResults commits finished downloads and replaces spawned scenes that
// no longer match the cache. Replacement waits until the player is
// outdoors again.
func (s *Streamer) applyResults(ctx context.Context, outdoor bool) {
	retry := time.Now().Add(s.opts.RetryInterval)
	for _, res := range s.pipeline.Poll() {
		if res.Err != nil {
			slog.Warn("scene download failed, will retry", "task", res.TaskID, "parcels", len(res.Parcels), "err", res.Err)
		}
		for _, p := range res.Parcels {
			s.retryAt[p] = retry
		}
		for _, st := range res.Staged {
			e, err := s.cache.Refresh(st.Dir)
			switch {
			case errors.Is(err, cache.ErrStale):
				slog.Debug("downloaded scene is stale", "id", st.ID, "err", err)
				continue
			case err != nil:
				slog.Warn("failed to commit downloaded scene", "id", st.ID, "err", err)
				continue
			}
			for _, p := range e.Parcels {
				s.updated.Add(p)
			}
			s.record(ctx, e)
		}
	}
	if !outdoor || len(s.updated) == 0 {
		return
	}

	updated := s.updated.Slice()
	s.updated = parcel.NewSet()
	for _, p := range updated {
		id, ok := s.byParcel[p]
		if !ok {
			continue
		}
		inst := s.instances[id]
		if inst.Kind == Road {
			continue
		}
		e, ok := s.cache.Lookup(p)
		if !ok {
			continue
		}
		if inst.Kind == Authored && inst.EntryID == e.ID && inst.Timestamp == e.Timestamp {
			continue
		}
		sc, err := s.cache.Load(e)
		if err != nil {
			slog.Warn("failed to load updated scene", "id", e.ID, "err", err)
			continue
		}
		s.despawn(id)
		s.spawn(sc, Authored, e)
	}
	s.fillHoles()
}

// enforceKeep despawns scenes with no parcel in the keep ring.
func (s *Streamer) enforceKeep() {
	s.keep = parcel.NewSet(parcel.Ring(s.player.Parcel, s.opts.MaxRadius)...)
	for id, inst := range s.instances {
		if !s.keep.Intersects(inst.Parcels) {
			s.despawn(id)
		}
	}
	for p := range s.retryAt {
		if !s.keep.Contains(p) {
			delete(s.retryAt, p)
		}
	}
	s.holes = parcel.NewSet()
}

// resolveConflicts despawns every scene sharing a parcel with a scene that
// outranks it: generated filler loses to anything else, then the newer
// timestamp wins.
func (s *Streamer) resolveConflicts() {
	owners := make(map[parcel.Parcel]*Instance)
	losers := make(map[uint64]struct{})
	for _, id := range s.sortedIDs() {
		inst := s.instances[id]
		for _, p := range inst.Parcels {
			cur, ok := owners[p]
			switch {
			case !ok:
				owners[p] = inst
			case inst.outranks(cur):
				losers[cur.ID] = struct{}{}
				owners[p] = inst
			default:
				losers[inst.ID] = struct{}{}
			}
		}
	}
	if len(losers) == 0 {
		return
	}

	for id := range losers {
		slog.Debug("scene lost parcel conflict", "instance", id)
		s.despawn(id)
	}
	for id, inst := range s.instances {
		for _, p := range inst.Parcels {
			s.byParcel[p] = id
		}
	}
	s.fillHoles()
}

// advanceLevel moves the screen fade and swaps level trees once the
// machine applies a transition.
func (s *Streamer) advanceLevel(dt time.Duration) {
	tr, ok := s.machine.Advance(dt, &s.player, s.resolve)
	if !ok {
		return
	}

	s.collisions.Clear()
	for _, inst := range s.instances {
		switch {
		case s.player.Level == level.Outdoor:
			inst.Level = level.Outdoor
		case inst.ID == s.player.Owner:
			inst.Level = s.player.Level
		default:
			inst.Level = Hidden
		}
		if inst.Level != Hidden {
			s.collisions.AddScene(inst.ID, inst.Scene, inst.Level, inst.Center)
		}
	}

	s.events.publish(Event{
		Type:     EventLevelChanged,
		Instance: tr.Owner,
		Level:    s.player.Level,
		Position: s.player.Position,
		Parcel:   s.player.Parcel,
	})
}

// resolve finds the instance a level change lands in. When the trigger's
// owner was replaced during the fade, whatever now covers its parcel takes
// its place.
func (s *Streamer) resolve(t level.Target) (level.Placement, bool) {
	inst, ok := s.instances[t.Owner]
	if !ok {
		id, covered := s.byParcel[t.Parcel]
		if !covered {
			return level.Placement{}, false
		}
		inst = s.instances[id]
		slog.Debug("level change owner replaced", "old", t.Owner, "new", inst.ID, "parcel", t.Parcel)
	}
	return level.Placement{Owner: inst.ID, Scene: inst.Scene, Center: inst.Center}, true
}

// fillHoles spawns content for wanted parcels left uncovered. Spawning can
// displace multi-parcel scenes, so it repeats until nothing changes.
func (s *Streamer) fillHoles() {
	for pass := 0; pass <= len(s.wantOrder); pass++ {
		holes := s.holes
		s.holes = parcel.NewSet()
		filled := false
		for _, p := range s.wantOrder {
			if !holes.Contains(p) || s.covered(p) {
				continue
			}
			s.spawnFor(p)
			filled = true
		}
		if !filled {
			break
		}
	}
	s.holes = parcel.NewSet()
}

// spawnFor spawns the road piece, the cached scene or wilderness for p,
// in that order of precedence.
func (s *Streamer) spawnFor(p parcel.Parcel) *Instance {
	if s.roads.IsRoad(p) {
		return s.spawn(fallback.Road(p, s.roads, s.opts.Catalog), Road, cache.Entry{})
	}

	sc, e, err := s.cache.Scene(p)
	switch {
	case err == nil:
		if inst := s.spawn(sc, Authored, e); inst != nil && inst.covers(p) {
			return inst
		}
	case errors.Is(err, cache.ErrNotFound):
	default:
		slog.Warn("cached scene unreadable, using wilderness", "parcel", p, "err", err)
	}
	return s.spawn(fallback.Wilderness(p, s.opts.Seed, s.opts.Catalog), Wilderness, cache.Entry{})
}

// spawn places sc into the world after despawning whatever covers its
// parcels. It returns nil when sc covers no parcel.
func (s *Streamer) spawn(sc *scene.Scene, kind Kind, e cache.Entry) *Instance {
	var claimed, covers []parcel.Parcel
	for _, p := range sc.Parcels {
		if !p.Valid() {
			continue
		}
		claimed = append(claimed, p)
		if kind == Authored && s.roads.IsRoad(p) {
			continue
		}
		covers = append(covers, p)
	}
	if len(covers) == 0 {
		return nil
	}

	for _, p := range covers {
		if id, ok := s.byParcel[p]; ok {
			s.despawn(id)
		}
	}

	s.nextID++
	inst := &Instance{
		ID:        s.nextID,
		Scene:     sc,
		Kind:      kind,
		EntryID:   e.ID,
		Parcels:   covers,
		Timestamp: sc.Timestamp,
		Center:    parcel.Bounds(claimed).Center(),
		Level:     level.Outdoor,
	}
	if s.player.Level != level.Outdoor {
		inst.Level = Hidden
	}
	s.instances[inst.ID] = inst
	for _, p := range covers {
		s.byParcel[p] = inst.ID
	}
	if inst.Level != Hidden {
		s.collisions.AddScene(inst.ID, sc, inst.Level, inst.Center)
	}

	slog.Debug("scene spawned", "instance", inst.ID, "kind", kind, "name", sc.Name, "parcels", len(covers), "timestamp", inst.Timestamp)
	s.events.publish(Event{
		Type:      EventSpawned,
		Instance:  inst.ID,
		Kind:      kind.String(),
		Name:      sc.Name,
		Parcels:   covers,
		Timestamp: inst.Timestamp,
		Level:     inst.Level,
		Position:  inst.Center,
	})
	return inst
}

// despawn removes an instance with its whole tree and colliders.
func (s *Streamer) despawn(id uint64) {
	inst, ok := s.instances[id]
	if !ok {
		return
	}
	delete(s.instances, id)
	for _, p := range inst.Parcels {
		if s.byParcel[p] == id {
			delete(s.byParcel, p)
			s.holes.Add(p)
		}
	}
	s.collisions.RemoveOwner(id)

	slog.Debug("scene despawned", "instance", id, "kind", inst.Kind, "name", inst.Scene.Name)
	s.events.publish(Event{
		Type:     EventDespawned,
		Instance: id,
		Kind:     inst.Kind.String(),
		Name:     inst.Scene.Name,
		Parcels:  inst.Parcels,
	})
}

func (s *Streamer) covered(p parcel.Parcel) bool {
	_, ok := s.byParcel[p]
	return ok
}

// pinned reports whether the player is inside id or will return to it.
func (s *Streamer) pinned(id uint64) bool {
	if s.player.Owner == id {
		return true
	}
	return slices.ContainsFunc(s.player.Stack, func(r level.Return) bool { return r.Owner == id })
}

func (s *Streamer) sortedIDs() []uint64 {
	ids := make([]uint64, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Streamer) record(ctx context.Context, e cache.Entry) {
	rec := s.opts.Recorder
	if rec == nil {
		return
	}
	var name string
	if sc, err := s.cache.Load(e); err == nil {
		name = sc.Name
	}
	s.records.Add(1)
	go func() {
		defer s.records.Done()
		if err := rec.Record(ctx, e, name); err != nil {
			slog.Warn("failed to record scene", "id", e.ID, "err", err)
		}
	}()
}

func (i *Instance) covers(p parcel.Parcel) bool {
	return slices.Contains(i.Parcels, p)
}
