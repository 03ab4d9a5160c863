// where lists the deployments around a parcel and the scene each one
// carries. With a database configured it also records them in the scene
// index.
//
// Usage:
//
//	go run ./cmd/where -x 10 -y -4 -radius 2
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/udisondev/worldstream/internal/app"
	"github.com/udisondev/worldstream/internal/cache"
	"github.com/udisondev/worldstream/internal/content"
	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/scene"
)

func main() {
	x := flag.Int("x", 0, "center parcel x")
	y := flag.Int("y", 0, "center parcel y")
	radius := flag.Int("radius", 1, "scan radius in parcels")
	flag.Parse()

	center, err := parcel.Checked(*x, *y)
	if err != nil {
		slog.Error("invalid center", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, center, *radius); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, center parcel.Parcel, radius int) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	svc, err := app.ContentService(cfg)
	if err != nil {
		return err
	}
	index, err := app.OpenIndex(ctx, cfg)
	if err != nil {
		return err
	}
	if index != nil {
		defer index.Close()
	}

	descs, err := svc.Descriptors(ctx, parcel.Ring(center, radius))
	if err != nil {
		return fmt.Errorf("fetching descriptors: %w", err)
	}
	if len(descs) == 0 {
		fmt.Println("no deployments")
		return nil
	}

	for _, d := range descs {
		parcels, err := d.Parcels()
		if err != nil {
			slog.Warn("skipping deployment", "id", d.ID, "err", err)
			continue
		}
		name, err := sceneName(ctx, svc, d)
		if err != nil {
			slog.Warn("skipping deployment", "id", d.ID, "err", err)
			continue
		}
		for _, p := range parcels {
			fmt.Printf("(%d, %d) -> %s\n", p.X, p.Y, name)
		}
		if index == nil {
			continue
		}
		entry := cache.Entry{ID: d.ID, Parcels: parcels, Timestamp: d.Timestamp}
		if err := index.Scenes().Record(ctx, entry, name); err != nil {
			return fmt.Errorf("recording %s: %w", d.ID, err)
		}
	}
	return nil
}

func sceneName(ctx context.Context, svc content.Service, d content.Descriptor) (string, error) {
	f, ok := d.SceneFile()
	if !ok {
		return "", fmt.Errorf("no %s", scene.FileName)
	}
	b, err := svc.Download(ctx, f.Hash)
	if err != nil {
		return "", err
	}
	s, err := scene.Unmarshal(b)
	if err != nil {
		return "", err
	}
	return s.Name, nil
}
