// Package download fetches authored scene deployments in the background and
// stages them for the scene cache.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/udisondev/worldstream/internal/cache"
	"github.com/udisondev/worldstream/internal/content"
	"github.com/udisondev/worldstream/internal/parcel"
)

// Options tune the pipeline.
type Options struct {
	// MaxConcurrent bounds parallel group downloads inside one task.
	MaxConcurrent int
	// BatchesPerSecond limits how often tasks may hit the service.
	BatchesPerSecond float64
	// Timeout bounds a whole task.
	Timeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent:    4,
		BatchesPerSecond: 4,
		Timeout:          60 * time.Second,
	}
}

// Staged is a downloaded deployment waiting for cache.Refresh.
type Staged struct {
	ID        string
	Dir       string
	Parcels   []parcel.Parcel
	Timestamp int64
}

// Result is the outcome of one task.
type Result struct {
	TaskID  uuid.UUID
	Parcels []parcel.Parcel
	Staged  []Staged
	// Skipped counts groups not newer than the cache or without a 2D scene.
	Skipped int
	// Failed counts groups dropped after a download error.
	Failed int
	// Err is set when the descriptor request itself failed.
	Err error
}

// Task is the handle of one dispatched batch.
type Task struct {
	ID      uuid.UUID
	Parcels []parcel.Parcel

	done   chan Result
	result *Result
}

// Poll returns the result once the task has finished. It never blocks.
func (t *Task) Poll() (Result, bool) {
	if t.result != nil {
		return *t.result, true
	}
	select {
	case r := <-t.done:
		t.result = &r
		return r, true
	default:
		return Result{}, false
	}
}

// Pipeline dispatches download tasks. At most one task is in flight for a
// given parcel.
type Pipeline struct {
	svc     content.Service
	cache   *cache.Cache
	opts    Options
	limiter *rate.Limiter
	files   singleflight.Group

	mu       sync.Mutex
	inFlight map[parcel.Parcel]uuid.UUID
	groups   map[string]uuid.UUID
	tasks    []*Task
}

// New returns a pipeline staging into c.
func New(svc content.Service, c *cache.Cache, opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = def.MaxConcurrent
	}
	if opts.BatchesPerSecond <= 0 {
		opts.BatchesPerSecond = def.BatchesPerSecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Pipeline{
		svc:      svc,
		cache:    c,
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Limit(opts.BatchesPerSecond), 1),
		inFlight: make(map[parcel.Parcel]uuid.UUID),
		groups:   make(map[string]uuid.UUID),
	}
}

// InFlight reports whether a task is fetching p.
func (p *Pipeline) InFlight(pc parcel.Parcel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[pc]
	return ok
}

// Pending returns the number of tasks not yet collected by Poll.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Dispatch starts one task for the parcels of batch that are neither
// covered (as reported by covered, may be nil) nor already in flight. It
// returns nil when nothing is left to fetch.
func (p *Pipeline) Dispatch(ctx context.Context, batch []parcel.Parcel, covered func(parcel.Parcel) bool) *Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := parcel.NewSet()
	var todo []parcel.Parcel
	for _, pc := range batch {
		if seen.Contains(pc) {
			continue
		}
		seen.Add(pc)
		if _, busy := p.inFlight[pc]; busy {
			continue
		}
		if covered != nil && covered(pc) {
			continue
		}
		todo = append(todo, pc)
	}
	if len(todo) == 0 {
		return nil
	}

	t := &Task{
		ID:      uuid.New(),
		Parcels: todo,
		done:    make(chan Result, 1),
	}
	for _, pc := range todo {
		p.inFlight[pc] = t.ID
	}
	p.tasks = append(p.tasks, t)

	slog.Debug("download task dispatched", "task", t.ID, "parcels", len(todo))
	go func() {
		t.done <- p.run(ctx, t)
	}()
	return t
}

// Poll collects every finished task and releases its parcels.
func (p *Pipeline) Poll() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Result
	pending := p.tasks[:0]
	for _, t := range p.tasks {
		r, ok := t.Poll()
		if !ok {
			pending = append(pending, t)
			continue
		}
		for _, pc := range t.Parcels {
			if p.inFlight[pc] == t.ID {
				delete(p.inFlight, pc)
			}
		}
		for id, owner := range p.groups {
			if owner == t.ID {
				delete(p.groups, id)
			}
		}
		out = append(out, r)
	}
	clear(p.tasks[len(pending):])
	p.tasks = pending
	return out
}

var (
	errNotNewer = errors.New("not newer than cached version")
	errNoScene  = errors.New("deployment has no 2D scene")
	errClaimed  = errors.New("group is being fetched by another task")
)

func (p *Pipeline) run(ctx context.Context, t *Task) Result {
	res := Result{TaskID: t.ID, Parcels: t.Parcels}

	if err := p.limiter.Wait(ctx); err != nil {
		res.Err = fmt.Errorf("waiting for download slot: %w", err)
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	descs, err := p.svc.Descriptors(ctx, t.Parcels)
	if err != nil {
		slog.Warn("fetching scene descriptors failed", "task", t.ID, "parcels", len(t.Parcels), "err", err)
		res.Err = fmt.Errorf("fetching descriptors: %w", err)
		return res
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxConcurrent)
	for _, d := range descs {
		g.Go(func() error {
			st, err := p.fetchGroup(gctx, t.ID, d)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, errNotNewer), errors.Is(err, errNoScene), errors.Is(err, errClaimed):
				slog.Debug("scene group skipped", "task", t.ID, "id", d.ID, "reason", err)
				res.Skipped++
			case err != nil:
				slog.Warn("scene group download failed", "task", t.ID, "id", d.ID, "err", err)
				res.Failed++
			default:
				res.Staged = append(res.Staged, st)
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Debug("download task finished", "task", t.ID, "staged", len(res.Staged), "skipped", res.Skipped, "failed", res.Failed)
	return res
}

// fetchGroup stages one deployment unless the cache already holds it or a
// newer one.
func (p *Pipeline) fetchGroup(ctx context.Context, taskID uuid.UUID, d content.Descriptor) (Staged, error) {
	parcels, err := d.Parcels()
	if err != nil {
		return Staged{}, err
	}
	if newest, ok := p.cache.Newest(parcels); ok && d.Timestamp <= newest {
		return Staged{}, errNotNewer
	}
	if _, ok := d.SceneFile(); !ok {
		return Staged{}, errNoScene
	}
	if d.ID == "" || strings.ContainsAny(d.ID, `/\`) || strings.HasPrefix(d.ID, ".") {
		return Staged{}, fmt.Errorf("invalid deployment id %q", d.ID)
	}
	if !p.claim(d.ID, taskID) {
		return Staged{}, errClaimed
	}

	dir := filepath.Join(p.cache.StagingRoot(), taskID.String(), d.ID)
	if err := p.stage(ctx, dir, d); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			slog.Warn("failed to clean staged group", "dir", dir, "err", rmErr)
		}
		return Staged{}, err
	}
	return Staged{ID: d.ID, Dir: dir, Parcels: parcels, Timestamp: d.Timestamp}, nil
}

func (p *Pipeline) claim(id string, taskID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if owner, ok := p.groups[id]; ok && owner != taskID {
		return false
	}
	p.groups[id] = taskID
	return true
}

func (p *Pipeline) stage(ctx context.Context, dir string, d content.Descriptor) error {
	for _, f := range d.Content {
		path, err := content.SafePath(dir, f.Name)
		if err != nil {
			return err
		}
		b, err := p.download(ctx, f.Hash)
		if err != nil {
			return fmt.Errorf("downloading %s: %w", f.Name, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return content.WriteDescriptor(dir, d)
}

// download fetches a file once even when several groups share its hash.
func (p *Pipeline) download(ctx context.Context, hash string) ([]byte, error) {
	v, err, _ := p.files.Do(hash, func() (any, error) {
		return p.svc.Download(ctx, hash)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
