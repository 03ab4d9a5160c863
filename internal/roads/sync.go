package roads

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/worldstream/internal/content"
	"github.com/udisondev/worldstream/internal/parcel"
)

// MetadataFile holds the authored metadata of a deployment.
const MetadataFile = "scene.json"

const (
	syncBatch       = 100
	syncConcurrency = 8
)

type sceneMetadata struct {
	Display struct {
		Title string `json:"title"`
	} `json:"display"`
}

// Sync scans area for deployments whose title mentions "road" and flags
// all their parcels. It returns the number of road parcels found.
// Deployments that fail to download are logged and skipped.
func Sync(ctx context.Context, svc content.Service, area []parcel.Parcel, m *Membership) (int, error) {
	var (
		mu    sync.Mutex
		found = parcel.NewSet()
		seen  = make(map[string]struct{})
	)

	for start := 0; start < len(area); start += syncBatch {
		end := min(start+syncBatch, len(area))
		descs, err := svc.Descriptors(ctx, area[start:end])
		if err != nil {
			return 0, fmt.Errorf("fetching descriptors: %w", err)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(syncConcurrency)
		for _, d := range descs {
			if _, ok := seen[d.ID]; ok {
				continue
			}
			seen[d.ID] = struct{}{}

			g.Go(func() error {
				road, err := isRoadDeployment(gctx, svc, d)
				if err != nil {
					slog.Warn("skipping deployment in road sync", "id", d.ID, "err", err)
					return nil
				}
				if !road {
					return nil
				}
				parcels, err := d.Parcels()
				if err != nil {
					slog.Warn("skipping deployment in road sync", "id", d.ID, "err", err)
					return nil
				}
				mu.Lock()
				for _, p := range parcels {
					found.Add(p)
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}

	if err := m.Add(found.Slice()...); err != nil {
		return 0, err
	}
	slog.Info("road sync finished", "scanned", len(area), "deployments", len(seen), "road_parcels", len(found))
	return len(found), nil
}

func isRoadDeployment(ctx context.Context, svc content.Service, d content.Descriptor) (bool, error) {
	f, ok := d.File(MetadataFile)
	if !ok {
		return false, nil
	}
	b, err := svc.Download(ctx, f.Hash)
	if err != nil {
		return false, err
	}
	var meta sceneMetadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return false, fmt.Errorf("parsing %s: %w", MetadataFile, err)
	}
	return strings.Contains(strings.ToLower(meta.Display.Title), "road"), nil
}
