package config

import (
	"context"

	"github.com/gradkit/gradkit/internal/checkpoints"
	"github.com/gradkit/gradkit/internal/distributed"
	"github.com/gradkit/gradkit/internal/loops"
	"github.com/gradkit/gradkit/internal/observability/logging"
	"github.com/gradkit/gradkit/internal/observability/metrics"
	"github.com/gradkit/gradkit/internal/seed"
	"github.com/gradkit/gradkit/pkg/errors"
)

// Loop kinds accepted by BuildTrainingLoop.
const (
	LoopVanilla = "vanilla"
	LoopScaled  = "scaled"
)

// Clipper kinds accepted by BuildClipper. The short forms are accepted
// as aliases.
const (
	ClipValue = "clip_grad_value"
	ClipNorm  = "clip_grad_norm"

	clipValueShort = "value"
	clipNormShort  = "norm"
)

// Store kinds accepted by BuildStore.
const (
	StoreLocal = "local"
	StoreMinio = "minio"
)

// BuildClipper resolves a clipping configuration into a typed clipper.
// A nil configuration disables clipping; an unknown kind is an error.
func BuildClipper(cfg *ClipGradConfig) (loops.GradClipper, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Kind {
	case ClipValue, clipValueShort:
		value := cfg.Value
		if value == 0 {
			value = loops.DefaultClipValue
		}
		return loops.NewValueClipper(value), nil
	case ClipNorm, clipNormShort:
		maxNorm := cfg.MaxNorm
		if maxNorm == 0 {
			maxNorm = loops.DefaultClipMaxNorm
		}
		normType := cfg.NormType
		if normType == 0 {
			normType = loops.DefaultClipNormType
		}
		return loops.NewNormClipper(maxNorm, normType), nil
	default:
		return nil, errors.ValidationErrorf("unknown gradient clipper kind: %q", cfg.Kind)
	}
}

// BuildDeps carries the ambient collaborators shared by the built
// components.
type BuildDeps struct {
	Logger  logging.Logger
	Metrics metrics.Collector
	Comm    distributed.Communicator
	Seeds   *seed.Registry
}

// BuildTrainingLoop resolves the training section into a configured loop
func BuildTrainingLoop(cfg TrainingConfig, deps BuildDeps) (*loops.TrainingLoop, error) {
	clipper, err := BuildClipper(cfg.ClipGrad)
	if err != nil {
		return nil, err
	}

	var strategy loops.BatchStrategy
	switch cfg.Loop {
	case LoopVanilla, "":
		strategy = loops.VanillaStrategy{Logger: deps.Logger}
	case LoopScaled:
		scaler, err := loops.NewGradScalerWith(
			orDefault(cfg.Scaler.InitScale, loops.DefaultScalerInitScale),
			orDefault(cfg.Scaler.GrowthFactor, loops.DefaultScalerGrowthFactor),
			orDefault(cfg.Scaler.BackoffFactor, loops.DefaultScalerBackoffFactor),
			orDefaultInt(cfg.Scaler.GrowthInterval, loops.DefaultScalerGrowthInterval))
		if err != nil {
			return nil, err
		}
		s := loops.NewScaledStrategy(scaler)
		s.Logger = deps.Logger
		strategy = s
	default:
		return nil, errors.ValidationErrorf("unknown training loop kind: %q", cfg.Loop)
	}

	return loops.NewTrainingLoop(loops.TrainingLoopOptions{
		Tag:           cfg.Tag,
		Clipper:       clipper,
		SetGradToNone: cfg.SetGradToNone,
		Strategy:      strategy,
		Seeds:         deps.Seeds,
		Comm:          deps.Comm,
		Logger:        deps.Logger,
		Metrics:       deps.Metrics,
	}), nil
}

// BuildEvaluationLoop resolves the evaluation section into a configured
// loop
func BuildEvaluationLoop(cfg EvaluationConfig, deps BuildDeps) *loops.EvaluationLoop {
	return loops.NewEvaluationLoop(loops.EvaluationLoopOptions{
		Tag:         cfg.Tag,
		GradEnabled: cfg.GradEnabled,
		Comm:        deps.Comm,
		Logger:      deps.Logger,
		Metrics:     deps.Metrics,
	})
}

// BuildStore resolves the checkpoint section into a store
func BuildStore(ctx context.Context, cfg CheckpointConfig) (checkpoints.Store, error) {
	switch cfg.Store {
	case StoreLocal, "":
		return checkpoints.NewLocalStore(cfg.Dir)
	case StoreMinio:
		return checkpoints.NewMinioStore(ctx, cfg.Minio)
	default:
		return nil, errors.ValidationErrorf("unknown checkpoint store kind: %q", cfg.Store)
	}
}

func orDefault(value, fallback float64) float64 {
	if value == 0 {
		return fallback
	}
	return value
}

func orDefaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}
