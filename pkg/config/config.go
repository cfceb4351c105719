// Package config loads and validates the trainer configuration. String
// variants coming from the file (loop kind, clipper kind, store kind) are
// resolved here, at the configuration boundary, into typed components;
// past this package everything is a concrete value.
package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/gradkit/gradkit/internal/checkpoints"
	"github.com/gradkit/gradkit/internal/observability/logging"
	"github.com/gradkit/gradkit/pkg/errors"
)

// Config is the root configuration of a training run.
type Config struct {
	Run         RunConfig         `mapstructure:"run" yaml:"run"`
	Logging     logging.Config    `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Training    TrainingConfig    `mapstructure:"training" yaml:"training"`
	Evaluation  EvaluationConfig  `mapstructure:"evaluation" yaml:"evaluation"`
	Checkpoint  CheckpointConfig  `mapstructure:"checkpoint" yaml:"checkpoint"`
	Distributed DistributedConfig `mapstructure:"distributed" yaml:"distributed"`
}

// RunConfig identifies the run.
type RunConfig struct {
	Name      string `mapstructure:"name" yaml:"name"`
	MaxEpochs int    `mapstructure:"max_epochs" yaml:"max_epochs" validate:"gt=0"`
	Seed      int64  `mapstructure:"seed" yaml:"seed"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// TrainingConfig configures the training pass.
type TrainingConfig struct {
	Tag           string          `mapstructure:"tag" yaml:"tag"`
	Loop          string          `mapstructure:"loop" yaml:"loop" validate:"oneof=vanilla scaled"`
	SetGradToNone bool            `mapstructure:"set_grad_to_none" yaml:"set_grad_to_none"`
	ClipGrad      *ClipGradConfig `mapstructure:"clip_grad" yaml:"clip_grad"`
	Scaler        ScalerConfig    `mapstructure:"scaler" yaml:"scaler"`
}

// ClipGradConfig selects and parameterizes gradient clipping. Zero-value
// parameters fall back to the clipping defaults.
type ClipGradConfig struct {
	Kind     string  `mapstructure:"kind" yaml:"kind" validate:"oneof=clip_grad_value clip_grad_norm value norm"`
	Value    float64 `mapstructure:"value" yaml:"value" validate:"gte=0"`
	MaxNorm  float64 `mapstructure:"max_norm" yaml:"max_norm" validate:"gte=0"`
	NormType float64 `mapstructure:"norm_type" yaml:"norm_type" validate:"gte=0"`
}

// ScalerConfig configures the dynamic loss scaler of the scaled loop.
type ScalerConfig struct {
	InitScale      float64 `mapstructure:"init_scale" yaml:"init_scale" validate:"gte=0"`
	GrowthFactor   float64 `mapstructure:"growth_factor" yaml:"growth_factor" validate:"gte=0"`
	BackoffFactor  float64 `mapstructure:"backoff_factor" yaml:"backoff_factor" validate:"gte=0,lt=1"`
	GrowthInterval int     `mapstructure:"growth_interval" yaml:"growth_interval" validate:"gte=0"`
}

// EvaluationConfig configures the evaluation pass.
type EvaluationConfig struct {
	Tag         string `mapstructure:"tag" yaml:"tag"`
	GradEnabled bool   `mapstructure:"grad_enabled" yaml:"grad_enabled"`
}

// CheckpointConfig configures periodic checkpointing.
type CheckpointConfig struct {
	Enabled bool                    `mapstructure:"enabled" yaml:"enabled"`
	Freq    int                     `mapstructure:"freq" yaml:"freq" validate:"gte=0"`
	Store   string                  `mapstructure:"store" yaml:"store" validate:"oneof=local minio"`
	Dir     string                  `mapstructure:"dir" yaml:"dir"`
	Minio   checkpoints.MinioConfig `mapstructure:"minio" yaml:"minio"`
}

// DistributedConfig configures the in-process worker group.
type DistributedConfig struct {
	WorldSize int `mapstructure:"world_size" yaml:"world_size" validate:"gte=0"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Name:      "gradkit-run",
			MaxEpochs: 1,
			Seed:      42,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Training: TrainingConfig{
			Tag:  "train",
			Loop: "vanilla",
			Scaler: ScalerConfig{
				InitScale:      65536,
				GrowthFactor:   2,
				BackoffFactor:  0.5,
				GrowthInterval: 2000,
			},
		},
		Evaluation: EvaluationConfig{
			Tag: "eval",
		},
		Checkpoint: CheckpointConfig{
			Freq:  1,
			Store: "local",
			Dir:   "checkpoints",
		},
		Distributed: DistributedConfig{
			WorldSize: 1,
		},
	}
}

// Load reads the configuration file at path, applies GRADKIT_* environment
// overrides, and validates the result. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GRADKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "CONFIG_READ", "cannot read configuration file")
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, errors.Wrap(err, "CONFIG_PARSE", "cannot parse configuration")
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the structural constraints of a configuration
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(err, "CONFIG_INVALID", "invalid configuration")
	}
	return nil
}
