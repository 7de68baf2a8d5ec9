package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagModels    = flag.String("models", "", "Model definition directory")
	flagInstances = flag.Int("instances", 0, "Number of animated instances")
	flagFrames    = flag.Int("frames", 0, "Number of frames to run")
	flagThrottle  = flag.Int("throttle", -1, "Instances flushed per frame, 0 for all")
	flagTimeScale = flag.Float64("timescale", 0, "Animation time scale")
	flagWorkers   = flag.Int("workers", 0, "Update worker goroutines")
	flagWatch     = flag.Bool("watch", false, "Reload model definitions when they change")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagModels != "" {
		cfg.Data.ModelDirs = []string{*flagModels}
	}
	if *flagInstances > 0 {
		cfg.Bench.Instances = *flagInstances
	}
	if *flagFrames > 0 {
		cfg.Bench.Frames = *flagFrames
	}
	if *flagThrottle >= 0 {
		cfg.Animation.DirtyThrottle = *flagThrottle
	}
	if *flagTimeScale > 0 {
		cfg.Animation.TimeScale = float32(*flagTimeScale)
	}
	if *flagWorkers > 0 {
		cfg.Animation.Workers = *flagWorkers
	}
	if *flagWatch {
		cfg.Bench.Watch = true
	}
}
