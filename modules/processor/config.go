package processor

import (
	"flag"
	"fmt"
	"time"

	"github.com/lanot/goesrecover/pkg/util"
)

// Engine modes.
const (
	ModeReal      = "real"
	ModeSimulator = "simulador"
)

type Config struct {
	Mode             string          `yaml:"mode"`
	DownloadPath     string          `yaml:"download_path"`
	S3Fallback       bool            `yaml:"s3_fallback_enabled"`
	FileTimeout      time.Duration   `yaml:"file_processing_timeout"`
	MaxFilesPerQuery int             `yaml:"max_files_per_query"`
	S3ProgressStep   int             `yaml:"s3_progress_step"`
	Simulator        SimulatorConfig `yaml:"simulator"`
}

// SimulatorConfig tunes the synthetic engine. Seed zero means
// time-seeded; tests pin it for reproducible outcomes. StageDelay is the
// unit one weight point of a simulated stage sleeps for.
type SimulatorConfig struct {
	LocalSuccessRate float64       `yaml:"local_success_rate"`
	S3SuccessRate    float64       `yaml:"s3_success_rate"`
	Seed             int64         `yaml:"seed"`
	StageDelay       time.Duration `yaml:"stage_delay"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.Mode = ModeReal
	cfg.S3Fallback = true
	cfg.FileTimeout = 120 * time.Second
	cfg.MaxFilesPerQuery = 0
	cfg.S3ProgressStep = 100
	cfg.Simulator.LocalSuccessRate = 0.8
	cfg.Simulator.S3SuccessRate = 0.5
	cfg.Simulator.StageDelay = time.Second

	f.StringVar(&cfg.DownloadPath, util.PrefixConfig(prefix, "download-path"), "/data/tmp", "Base directory query results are assembled into.")
}

func ValidateConfig(cfg *Config) error {
	if cfg.Mode != ModeReal && cfg.Mode != ModeSimulator {
		return fmt.Errorf("modo de procesador '%s' no es soportado", cfg.Mode)
	}

	if cfg.DownloadPath == "" {
		return fmt.Errorf("download path is required")
	}

	if cfg.S3ProgressStep <= 0 {
		return fmt.Errorf("positive s3 progress step required")
	}

	return nil
}
