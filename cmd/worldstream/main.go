package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/worldstream/internal/app"
	"github.com/udisondev/worldstream/internal/cache"
	"github.com/udisondev/worldstream/internal/download"
	"github.com/udisondev/worldstream/internal/parcel"
	"github.com/udisondev/worldstream/internal/roads"
	"github.com/udisondev/worldstream/internal/stream"
	"github.com/udisondev/worldstream/internal/transport/ws"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	slog.Info("worldstream starting",
		"cache", cfg.CacheDir,
		"want_radius", cfg.MinRadius,
		"keep_radius", cfg.MaxRadius)

	svc, err := app.ContentService(cfg)
	if err != nil {
		return err
	}
	catalog, err := app.Catalog(cfg)
	if err != nil {
		return err
	}

	// Failing to create the cache root is the one unrecoverable local error.
	scenes, err := cache.Open(cfg.CacheDir, cfg.CacheMemoBytes)
	if err != nil {
		return fmt.Errorf("opening scene cache: %w", err)
	}
	defer scenes.Close()

	membership, err := roads.Load(cfg.RoadsFile)
	if err != nil {
		return fmt.Errorf("loading roads: %w", err)
	}
	slog.Info("roads loaded", "file", cfg.RoadsFile, "parcels", membership.Len())

	pipeline := download.New(svc, scenes, download.Options{
		MaxConcurrent:    cfg.Download.MaxConcurrent,
		BatchesPerSecond: cfg.Download.BatchesPerSecond,
		Timeout:          cfg.Download.Timeout,
	})

	opts := stream.DefaultOptions()
	opts.MinRadius = cfg.MinRadius
	opts.MaxRadius = cfg.MaxRadius
	opts.Seed = cfg.Seed
	opts.Catalog = catalog
	opts.FadeDuration = cfg.FadeDuration
	opts.TickInterval = cfg.TickInterval
	opts.RetryInterval = cfg.Download.RetryInterval
	opts.Start = parcel.Point{X: cfg.Start.X, Y: cfg.Start.Y}
	opts.EventBuffer = cfg.SendQueueSize

	index, err := app.OpenIndex(ctx, cfg)
	if err != nil {
		return err
	}
	if index != nil {
		defer index.Close()
		opts.Recorder = index.Scenes()
	}

	streamer, err := stream.New(scenes, membership, pipeline, opts)
	if err != nil {
		return fmt.Errorf("creating streamer: %w", err)
	}

	wsServer := ws.NewServer(streamer, ws.Options{
		WriteTimeout:  cfg.WriteTimeout,
		SendQueueSize: cfg.SendQueueSize,
	})
	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer.Handler())
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return streamer.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("player transport listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving players: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("worldstream stopped")
	return nil
}
