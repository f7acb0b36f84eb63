// Package config loads the arthylene runtime configuration.
//
// Every field is a pointer so a partial JSON file only overrides what it
// names; the Get* accessors supply the defaults for everything else.
// Environment variables prefixed with ARTHYLENE_ are applied on top of
// the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/arthylene/internal/plane"
	"github.com/banshee-data/arthylene/internal/scene"
	"github.com/banshee-data/arthylene/internal/session"
	"github.com/banshee-data/arthylene/internal/tracking"
	"github.com/caarlos0/env/v11"
)

// DefaultConfigPath is the canonical defaults file.
const DefaultConfigPath = "config/arthylene.defaults.json"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARTHYLENE_"

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config is the root configuration.
type Config struct {
	// Plane finder
	SearchRadiusPx    *float64 `json:"search_radius_px,omitempty" env:"SEARCH_RADIUS_PX"`
	MinDepthM         *float64 `json:"min_depth_m,omitempty" env:"MIN_DEPTH_M"`
	MaxDepthM         *float64 `json:"max_depth_m,omitempty" env:"MAX_DEPTH_M"`
	MinPoints         *int     `json:"min_points,omitempty" env:"MIN_POINTS"`
	RansacIterations  *int     `json:"ransac_iterations,omitempty" env:"RANSAC_ITERATIONS"`
	InlierThresholdM  *float64 `json:"inlier_threshold_m,omitempty" env:"INLIER_THRESHOLD_M"`
	MinInlierRatio    *float64 `json:"min_inlier_ratio,omitempty" env:"MIN_INLIER_RATIO"`
	FacingMaxAngleDeg *float64 `json:"facing_max_angle_deg,omitempty" env:"FACING_MAX_ANGLE_DEG"`
	RansacSeed        *uint64  `json:"ransac_seed,omitempty" env:"RANSAC_SEED"`

	// Session
	ScreenWidth    *float64 `json:"screen_width,omitempty" env:"SCREEN_WIDTH"`
	ScreenHeight   *float64 `json:"screen_height,omitempty" env:"SCREEN_HEIGHT"`
	HFOVDeg        *float64 `json:"hfov_deg,omitempty" env:"HFOV_DEG"`
	TickInterval   *string  `json:"tick_interval,omitempty" env:"TICK_INTERVAL"` // duration string like "16ms"
	DefaultMapName *string  `json:"default_map_name,omitempty" env:"DEFAULT_MAP_NAME"`
	HideFrames     *int     `json:"hide_frames,omitempty" env:"HIDE_FRAMES"`

	// Simulated engine
	SaveLatency *string `json:"save_latency,omitempty" env:"SAVE_LATENCY"`
	SaveSteps   *int    `json:"save_steps,omitempty" env:"SAVE_STEPS"`

	// Storage
	Store   *string `json:"store,omitempty" env:"STORE"`
	DataDir *string `json:"data_dir,omitempty" env:"DATA_DIR"`
	DBPath  *string `json:"db_path,omitempty" env:"DB_PATH"`

	// Debug monitor
	Listen *string `json:"listen,omitempty" env:"LISTEN"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with every field unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file. The file must have a .json
// extension and be under 1MB. Fields omitted from the file keep their
// defaults.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ARTHYLENE_* variables. A nil environ
// reads the process environment.
func (c *Config) ApplyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return nil
}

// Load reads path, or starts empty when path is "", then applies the
// process environment.
func Load(path string) (*Config, error) {
	cfg := EmptyConfig()
	if path != "" {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from
// the working directory. It panics when the file cannot be found and is
// meant for tests.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.Store != nil && *c.Store != StoreFile && *c.Store != StoreSQLite {
		return fmt.Errorf("store must be %q or %q, got %q", StoreFile, StoreSQLite, *c.Store)
	}
	for name, s := range map[string]*string{"tick_interval": c.TickInterval, "save_latency": c.SaveLatency} {
		if s == nil || *s == "" {
			continue
		}
		d, err := time.ParseDuration(*s)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}
	if c.HideFrames != nil && *c.HideFrames < 1 {
		return fmt.Errorf("hide_frames must be positive, got %d", *c.HideFrames)
	}
	if c.SaveSteps != nil && *c.SaveSteps < 1 {
		return fmt.Errorf("save_steps must be positive, got %d", *c.SaveSteps)
	}
	if c.HFOVDeg != nil && (*c.HFOVDeg <= 0 || *c.HFOVDeg >= 180) {
		return fmt.Errorf("hfov_deg must be in (0, 180), got %g", *c.HFOVDeg)
	}
	if err := c.PlaneConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// PlaneConfig returns the plane finder settings.
func (c *Config) PlaneConfig() plane.Config {
	cfg := plane.DefaultConfig()
	if c.SearchRadiusPx != nil {
		cfg.SearchRadiusPx = *c.SearchRadiusPx
	}
	if c.MinDepthM != nil {
		cfg.MinDepthM = *c.MinDepthM
	}
	if c.MaxDepthM != nil {
		cfg.MaxDepthM = *c.MaxDepthM
	}
	if c.MinPoints != nil {
		cfg.MinPoints = *c.MinPoints
	}
	if c.RansacIterations != nil {
		cfg.Iterations = *c.RansacIterations
	}
	if c.InlierThresholdM != nil {
		cfg.InlierThresholdM = *c.InlierThresholdM
	}
	if c.MinInlierRatio != nil {
		cfg.MinInlierRatio = *c.MinInlierRatio
	}
	if c.FacingMaxAngleDeg != nil {
		cfg.FacingMaxAngleDeg = *c.FacingMaxAngleDeg
	}
	if c.RansacSeed != nil {
		cfg.Seed = *c.RansacSeed
	}
	return cfg
}

// SessionOptions returns the session settings.
func (c *Config) SessionOptions() session.Options {
	opts := session.DefaultOptions()
	if c.ScreenWidth != nil {
		opts.ScreenWidth = *c.ScreenWidth
	}
	if c.ScreenHeight != nil {
		opts.ScreenHeight = *c.ScreenHeight
	}
	if c.HFOVDeg != nil {
		opts.HFOVDeg = *c.HFOVDeg
	}
	opts.TickInterval = c.GetTickInterval()
	if c.DefaultMapName != nil && *c.DefaultMapName != "" {
		opts.DefaultMapName = *c.DefaultMapName
	}
	return opts
}

// SimOptions returns the simulated engine settings.
func (c *Config) SimOptions() tracking.SimOptions {
	opts := tracking.DefaultSimOptions()
	opts.SaveLatency = c.GetSaveLatency()
	if c.SaveSteps != nil {
		opts.SaveSteps = *c.SaveSteps
	}
	return opts
}

// GetTickInterval returns the session frame period.
func (c *Config) GetTickInterval() time.Duration {
	return parseDuration(c.TickInterval, session.DefaultOptions().TickInterval)
}

// GetSaveLatency returns the simulated map save duration.
func (c *Config) GetSaveLatency() time.Duration {
	return parseDuration(c.SaveLatency, 0)
}

// GetHideFrames returns the hide animation length.
func (c *Config) GetHideFrames() int {
	if c.HideFrames == nil {
		return scene.DefaultHideFrames
	}
	return *c.HideFrames
}

// GetStore returns the anchor store backend.
func (c *Config) GetStore() string {
	if c.Store == nil || *c.Store == "" {
		return StoreSQLite
	}
	return *c.Store
}

// GetDataDir returns the directory of the file store.
func (c *Config) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return "data/anchors"
	}
	return *c.DataDir
}

// GetDBPath returns the SQLite database path.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "arthylene.db"
	}
	return *c.DBPath
}

// GetListen returns the debug monitor listen address.
func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return "localhost:8081"
	}
	return *c.Listen
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
