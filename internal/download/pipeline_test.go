package download

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldstream/internal/cache"
	"github.com/udisondev/worldstream/internal/content"
	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/testutil"
)

// countingService wraps a content.Service, counts calls and optionally holds
// descriptor requests until release is closed.
type countingService struct {
	content.Service
	release     chan struct{}
	descriptors atomic.Int32
	downloads   atomic.Int32
	fail        error
}

func (s *countingService) Descriptors(ctx context.Context, parcels []parcel.Parcel) ([]content.Descriptor, error) {
	s.descriptors.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.fail != nil {
		return nil, s.fail
	}
	return s.Service.Descriptors(ctx, parcels)
}

func (s *countingService) Download(ctx context.Context, hash string) ([]byte, error) {
	s.downloads.Add(1)
	return s.Service.Download(ctx, hash)
}

func publish(t *testing.T, d *content.Dir, ts int64, parcels ...parcel.Parcel) content.Descriptor {
	t.Helper()
	files := testutil.SceneFiles(t, testutil.PlainScene("authored"))
	files["assets/tree.png"] = []byte("shared sprite")
	desc, err := d.Publish(parcels, ts, files)
	require.NoError(t, err)
	return desc
}

func setup(t *testing.T) (*content.Dir, *cache.Cache) {
	t.Helper()
	return testutil.NewContentDir(t), testutil.OpenCache(t, filepath.Join(t.TempDir(), "scenes"))
}

func fastOptions() Options {
	return Options{MaxConcurrent: 2, BatchesPerSecond: 1000, Timeout: 5 * time.Second}
}

// drain polls p until no task is pending.
func drain(t *testing.T, p *Pipeline) []Result {
	t.Helper()
	var out []Result
	require.Eventually(t, func() bool {
		out = append(out, p.Poll()...)
		return p.Pending() == 0
	}, 5*time.Second, 5*time.Millisecond)
	return out
}

func TestDispatchStagesDeployments(t *testing.T) {
	dir, c := setup(t)
	a := publish(t, dir, 10, parcel.New(0, 0), parcel.New(0, 1))
	b := publish(t, dir, 11, parcel.New(3, 3))

	svc := &countingService{Service: dir}
	p := New(svc, c, fastOptions())

	task := p.Dispatch(context.Background(), []parcel.Parcel{parcel.New(0, 0), parcel.New(0, 1), parcel.New(3, 3), parcel.New(9, 9)}, nil)
	require.NotNil(t, task)
	assert.True(t, p.InFlight(parcel.New(9, 9)))

	results := drain(t, p)
	require.Len(t, results, 1)
	res := results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, task.ID, res.TaskID)
	assert.Len(t, res.Staged, 2)
	assert.Zero(t, res.Failed)
	assert.False(t, p.InFlight(parcel.New(9, 9)))

	// The sprite shared by both deployments may be fetched once or twice
	// depending on timing, never more.
	assert.LessOrEqual(t, svc.downloads.Load(), int32(4))

	for _, st := range res.Staged {
		entry, err := c.Refresh(st.Dir)
		require.NoError(t, err)
		assert.Equal(t, st.ID, entry.ID)
	}
	got, ok := c.Lookup(parcel.New(0, 1))
	require.True(t, ok)
	assert.Equal(t, a.ID, got.ID)
	got, ok = c.Lookup(parcel.New(3, 3))
	require.True(t, ok)
	assert.Equal(t, b.ID, got.ID)
}

func TestDispatchSkipsCoveredAndInFlight(t *testing.T) {
	dir, c := setup(t)
	publish(t, dir, 1, parcel.New(1, 1))

	svc := &countingService{Service: dir, release: make(chan struct{})}
	p := New(svc, c, fastOptions())
	ctx := context.Background()

	covered := func(pc parcel.Parcel) bool { return pc == parcel.New(0, 0) }
	first := p.Dispatch(ctx, []parcel.Parcel{parcel.New(0, 0), parcel.New(1, 1), parcel.New(1, 1)}, covered)
	require.NotNil(t, first)
	assert.Equal(t, []parcel.Parcel{parcel.New(1, 1)}, first.Parcels)

	// Same parcels again while the first task is still running.
	assert.Nil(t, p.Dispatch(ctx, []parcel.Parcel{parcel.New(1, 1)}, covered))
	assert.Nil(t, p.Dispatch(ctx, []parcel.Parcel{parcel.New(0, 0)}, covered))

	second := p.Dispatch(ctx, []parcel.Parcel{parcel.New(1, 1), parcel.New(2, 2)}, covered)
	require.NotNil(t, second)
	assert.Equal(t, []parcel.Parcel{parcel.New(2, 2)}, second.Parcels)
	assert.Equal(t, 2, p.Pending())

	_, done := first.Poll()
	assert.False(t, done)

	close(svc.release)
	drain(t, p)
	assert.False(t, p.InFlight(parcel.New(1, 1)))
	assert.NotNil(t, p.Dispatch(ctx, []parcel.Parcel{parcel.New(1, 1)}, covered))
	drain(t, p)
}

func TestDispatchSkipsGroupsNotNewerThanCache(t *testing.T) {
	dir, c := setup(t)
	publish(t, dir, 5, parcel.New(0, 0))

	svc := &countingService{Service: dir}
	p := New(svc, c, fastOptions())
	res := drainOne(t, p, parcel.New(0, 0))
	require.Len(t, res.Staged, 1)
	_, err := c.Refresh(res.Staged[0].Dir)
	require.NoError(t, err)
	downloads := svc.downloads.Load()

	res = drainOne(t, p, parcel.New(0, 0))
	assert.Empty(t, res.Staged)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, downloads, svc.downloads.Load(), "payload of a cached deployment must not be fetched again")
	entry, ok := c.Lookup(parcel.New(0, 0))
	require.True(t, ok)
	assert.Equal(t, int64(5), entry.Timestamp)

	publish(t, dir, 6, parcel.New(0, 0))
	res = drainOne(t, p, parcel.New(0, 0))
	require.Len(t, res.Staged, 1)
	assert.Equal(t, int64(6), res.Staged[0].Timestamp)
}

func TestDispatchSkipsDeploymentsWithoutScene(t *testing.T) {
	dir, c := setup(t)
	_, err := dir.Publish([]parcel.Parcel{parcel.New(7, 7)}, 1, map[string][]byte{"main.js": []byte("3d only")})
	require.NoError(t, err)

	res := drainOne(t, New(dir, c, fastOptions()), parcel.New(7, 7))
	assert.Empty(t, res.Staged)
	assert.Equal(t, 1, res.Skipped)
}

func TestDispatchReportsServiceFailure(t *testing.T) {
	dir, c := setup(t)
	svc := &countingService{Service: dir, fail: testutil.ErrSimulated}

	res := drainOne(t, New(svc, c, fastOptions()), parcel.New(0, 0))
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, testutil.ErrSimulated))
}

func TestConcurrentDispatchNeverDuplicatesParcels(t *testing.T) {
	dir, c := setup(t)
	svc := &countingService{Service: dir, release: make(chan struct{})}
	p := New(svc, c, fastOptions())

	batch := parcel.Ring(parcel.New(0, 0), 2)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		owned = make(map[parcel.Parcel]int)
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := p.Dispatch(context.Background(), batch, nil)
			if task == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, pc := range task.Parcels {
				owned[pc]++
			}
		}()
	}
	wg.Wait()

	for pc, n := range owned {
		assert.Equal(t, 1, n, "parcel %s", pc)
	}
	assert.Len(t, owned, len(batch))
	close(svc.release)
	drain(t, p)
}

func drainOne(t *testing.T, p *Pipeline, parcels ...parcel.Parcel) Result {
	t.Helper()
	require.NotNil(t, p.Dispatch(context.Background(), parcels, nil))
	results := drain(t, p)
	require.Len(t, results, 1)
	return results[0]
}
