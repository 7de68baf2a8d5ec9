// Package config handles animation engine configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-anim/internal/logger"
)

// Config holds all engine and tool settings.
type Config struct {
	Animation AnimationConfig `yaml:"animation"`
	Data      DataConfig      `yaml:"data"`
	Bench     BenchConfig     `yaml:"bench"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AnimationConfig holds the animation system's runtime settings.
type AnimationConfig struct {
	Enabled       bool    `yaml:"enabled"`
	TimeScale     float32 `yaml:"time_scale"`
	DirtyThrottle int     `yaml:"dirty_throttle"` // <= 0 flushes every dirty instance
	Workers       int     `yaml:"workers"`        // 0 uses GOMAXPROCS
	BatchSize     int     `yaml:"batch_size"`
}

// DataConfig holds model definition locations.
type DataConfig struct {
	ModelDirs []string `yaml:"model_dirs"` // Directories searched for model files
	Models    []string `yaml:"models"`     // Model names to load; empty loads all
}

// BenchConfig holds settings of the animbench driver.
type BenchConfig struct {
	Instances int  `yaml:"instances"`
	Frames    int  `yaml:"frames"`
	FrameRate int  `yaml:"frame_rate"`
	Watch     bool `yaml:"watch"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Animation: AnimationConfig{
			Enabled:       true,
			TimeScale:     1,
			DirtyThrottle: 256,
			Workers:       0,
			BatchSize:     64,
		},
		Data: DataConfig{
			ModelDirs: []string{"models"},
		},
		Bench: BenchConfig{
			Instances: 1000,
			Frames:    600,
			FrameRate: 60,
			Watch:     false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Animation.TimeScale < 0:
		return fmt.Errorf("%w: animation.time_scale %v is negative", ErrInvalid, c.Animation.TimeScale)
	case c.Animation.Workers < 0:
		return fmt.Errorf("%w: animation.workers %d is negative", ErrInvalid, c.Animation.Workers)
	case c.Bench.Instances < 0:
		return fmt.Errorf("%w: bench.instances %d is negative", ErrInvalid, c.Bench.Instances)
	case c.Bench.FrameRate <= 0:
		return fmt.Errorf("%w: bench.frame_rate must be positive", ErrInvalid)
	case len(c.Data.ModelDirs) == 0:
		return fmt.Errorf("%w: data.model_dirs is empty", ErrInvalid)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalid, err)
	}
	return nil
}
