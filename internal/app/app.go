// Package app builds the services shared by the worldstream binaries from
// configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/udisondev/worldstream/internal/config"
	"github.com/udisondev/worldstream/internal/content"
	"github.com/udisondev/worldstream/internal/db"
	"github.com/udisondev/worldstream/internal/fallback"
)

// LoadConfig reads the config named by config.Path and installs the
// default logger at its level.
func LoadConfig() (config.Streamer, error) {
	path := config.Path()
	cfg, err := config.LoadStreamer(path)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	SetupLogging(cfg.LogLevel)
	slog.Debug("config loaded", "path", path)
	return cfg, nil
}

// SetupLogging installs a text slog handler on stdout.
func SetupLogging(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	})))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContentService returns the offline directory when configured, the
// catalyst server otherwise.
func ContentService(cfg config.Streamer) (content.Service, error) {
	if cfg.OfflineDir != "" {
		dir, err := content.NewDir(cfg.OfflineDir)
		if err != nil {
			return nil, fmt.Errorf("opening offline content: %w", err)
		}
		slog.Info("using offline content", "dir", cfg.OfflineDir)
		return dir, nil
	}
	slog.Info("using content server", "url", cfg.ContentServer)
	return content.NewCatalyst(cfg.ContentServer, cfg.Download.RequestTimeout), nil
}

// Catalog returns the fallback sprite catalog.
func Catalog(cfg config.Streamer) (fallback.Catalog, error) {
	cat := fallback.DefaultCatalog()
	if cfg.AssetsDir != "" {
		var err error
		cat, err = fallback.LoadCatalog(cfg.AssetsDir)
		if err != nil {
			return cat, fmt.Errorf("loading sprite catalog: %w", err)
		}
	}
	cat.Boulevards = cfg.Boulevards
	return cat, nil
}

// OpenIndex connects to the scene index and applies migrations. It returns
// nil when no database is configured.
func OpenIndex(ctx context.Context, cfg config.Streamer) (*db.DB, error) {
	if !cfg.Database.Enabled() {
		return nil, nil
	}
	dsn := cfg.Database.DSN()
	if err := db.RunMigrations(ctx, dsn); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	database, err := db.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	slog.Info("scene index connected", "host", cfg.Database.Host, "db", cfg.Database.DBName)
	return database, nil
}
