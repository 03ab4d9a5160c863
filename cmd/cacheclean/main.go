// cacheclean deletes every downloaded scene from the local cache.
//
// Usage:
//
//	go run ./cmd/cacheclean
//	WORLDSTREAM_CONFIG=config/dev.yaml go run ./cmd/cacheclean
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/udisondev/worldstream/internal/app"
	"github.com/udisondev/worldstream/internal/cache"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	scenes, err := cache.Open(cfg.CacheDir, 0)
	if err != nil {
		return fmt.Errorf("opening scene cache: %w", err)
	}
	defer scenes.Close()

	n := scenes.Len()
	if err := scenes.ClearAll(); err != nil {
		return err
	}
	fmt.Printf("removed %d cached parcels from %s\n", n, cfg.CacheDir)
	return nil
}
