package snapshot

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"realtime.onebusaway.org/internal/appconf"
)

// Config holds the Source's tunables. MaxSnapshotFrequency and
// LogFrequency are validated with go-playground/validator struct tags,
// following the teacher's config-loading idiom.
type Config struct {
	// MaxSnapshotFrequency bounds how often getTimetableSnapshot commits a
	// fresh snapshot; default 1000ms.
	MaxSnapshotFrequency time.Duration `yaml:"max_snapshot_frequency" validate:"gt=0"`
	// LogFrequency is how many applied updates elapse between informational
	// log lines.
	LogFrequency int `yaml:"log_frequency" validate:"gt=0"`
	// PurgeExpiredData enables the end-of-batch purge policy.
	PurgeExpiredData bool `yaml:"purge_expired_data"`
	// Env selects the runtime environment, mirroring appconf.Environment
	// usage across the module.
	Env appconf.Environment `yaml:"env" validate:"required,oneof=development test production"`
}

// DefaultConfig returns the engine's default tunables.
func DefaultConfig() Config {
	return Config{
		MaxSnapshotFrequency: 1000 * time.Millisecond,
		LogFrequency:         100,
		PurgeExpiredData:     true,
		Env:                  appconf.Production,
	}
}

// LoadConfig reads and validates a YAML config file at path, starting from
// DefaultConfig so unspecified fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading snapshot config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing snapshot config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validating snapshot config: %w", err)
	}

	return cfg, nil
}
