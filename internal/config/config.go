package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable overriding the config path.
const EnvPath = "WORLDSTREAM_CONFIG"

// DefaultPath is used when EnvPath is not set.
const DefaultPath = "config/worldstream.yaml"

// Download tunes the background scene download pipeline.
type Download struct {
	MaxConcurrent    int           `yaml:"max_concurrent"`     // parallel groups per batch
	BatchesPerSecond float64       `yaml:"batches_per_second"` // network batches per second
	Timeout          time.Duration `yaml:"timeout"`            // whole batch
	RequestTimeout   time.Duration `yaml:"request_timeout"`    // one HTTP request
	RetryInterval    time.Duration `yaml:"retry_interval"`     // refetch delay for parcels left as wilderness
}

// Position is a world-space point.
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Streamer holds all configuration for the world streamer and its tools.
type Streamer struct {
	LogLevel string `yaml:"log_level"`

	// Local storage
	CacheDir       string `yaml:"cache_dir"`
	CacheMemoBytes int64  `yaml:"cache_memo_bytes"`
	RoadsFile      string `yaml:"roads_file"`
	AssetsDir      string `yaml:"assets_dir"` // empty: built-in sprite names
	Boulevards     bool   `yaml:"boulevards"`
	Seed           uint64 `yaml:"seed"`

	// Content service. OfflineDir wins over ContentServer when set.
	ContentServer string   `yaml:"content_server"`
	OfflineDir    string   `yaml:"offline_dir"`
	Download      Download `yaml:"download"`

	// Streaming
	MinRadius    int           `yaml:"min_radius"` // want ring, inclusive
	MaxRadius    int           `yaml:"max_radius"` // keep ring, inclusive
	TickInterval time.Duration `yaml:"tick_interval"`
	FadeDuration time.Duration `yaml:"fade_duration"`
	Start        Position      `yaml:"start"`

	// Player transport
	BindAddress   string        `yaml:"bind_address"`
	Port          int           `yaml:"port"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	SendQueueSize int           `yaml:"send_queue_size"`

	// Scene index. An empty host disables it.
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// DefaultStreamer returns Streamer config with sensible defaults.
func DefaultStreamer() Streamer {
	return Streamer{
		LogLevel:       "info",
		CacheDir:       "data/scenes",
		CacheMemoBytes: 64 << 20,
		RoadsFile:      "data/roads.bin",
		Boulevards:     true,
		ContentServer:  "https://peer.decentraland.org",
		Download: Download{
			MaxConcurrent:    4,
			BatchesPerSecond: 4,
			Timeout:          60 * time.Second,
			RequestTimeout:   30 * time.Second,
			RetryInterval:    5 * time.Second,
		},
		MinRadius:     2,
		MaxRadius:     5,
		TickInterval:  50 * time.Millisecond,
		FadeDuration:  500 * time.Millisecond,
		BindAddress:   "127.0.0.1",
		Port:          8420,
		WriteTimeout:  5 * time.Second,
		SendQueueSize: 256,
		Database: DatabaseConfig{
			Port:     5432,
			User:     "worldstream",
			Password: "worldstream",
			DBName:   "worldstream",
			SSLMode:  "disable",
		},
	}
}

// LoadStreamer loads streamer config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadStreamer(path string) (Streamer, error) {
	cfg := DefaultStreamer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Path returns the config path from EnvPath, or DefaultPath.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Validate checks settings that have no usable fallback.
func (c Streamer) Validate() error {
	var errs []error
	if c.MinRadius < 0 {
		errs = append(errs, fmt.Errorf("min_radius %d is negative", c.MinRadius))
	}
	if c.MaxRadius <= c.MinRadius {
		errs = append(errs, fmt.Errorf("max_radius %d must exceed min_radius %d", c.MaxRadius, c.MinRadius))
	}
	if c.CacheDir == "" {
		errs = append(errs, errors.New("cache_dir is empty"))
	}
	if c.ContentServer == "" && c.OfflineDir == "" {
		errs = append(errs, errors.New("neither content_server nor offline_dir is set"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval %s must be positive", c.TickInterval))
	}
	return errors.Join(errs...)
}
