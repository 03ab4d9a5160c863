// roadsync flags every parcel of deployments titled as roads around a
// point of the map.
//
// Usage:
//
//	go run ./cmd/roadsync -x 0 -y 0 -radius 30
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
	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/roads"
)

func main() {
	x := flag.Int("x", 0, "center parcel x")
	y := flag.Int("y", 0, "center parcel y")
	radius := flag.Int("radius", 20, "scan radius in parcels")
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
	membership, err := roads.Load(cfg.RoadsFile)
	if err != nil {
		return fmt.Errorf("loading roads: %w", err)
	}

	before := membership.Len()
	added, err := roads.Sync(ctx, svc, parcel.Ring(center, radius), membership)
	if err != nil {
		return err
	}
	fmt.Printf("road parcels: %d (+%d) in %s\n", membership.Len(), membership.Len()-before, cfg.RoadsFile)
	slog.Debug("road sync finished", "center", center, "radius", radius, "flagged", added)
	return nil
}
