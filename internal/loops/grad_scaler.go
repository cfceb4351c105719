package loops

import (
	"math"

	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/internal/statedict"
	"github.com/gradkit/gradkit/pkg/errors"
)

// GradScaler defaults.
const (
	DefaultScalerInitScale      = 65536.0
	DefaultScalerGrowthFactor   = 2.0
	DefaultScalerBackoffFactor  = 0.5
	DefaultScalerGrowthInterval = 2000
)

// GradScaler implements dynamic loss scaling for reduced-precision
// training. Losses are scaled up before backward so small gradients
// survive the narrow dynamic range; when scaled gradients overflow, the
// step is skipped and the scale backs off. After GrowthInterval
// consecutive good steps the scale grows again.
type GradScaler struct {
	scale          float64
	growthFactor   float64
	backoffFactor  float64
	growthInterval int
	growthTracker  int
}

// NewGradScaler creates a scaler with the default schedule
func NewGradScaler() *GradScaler {
	s, _ := NewGradScalerWith(DefaultScalerInitScale, DefaultScalerGrowthFactor,
		DefaultScalerBackoffFactor, DefaultScalerGrowthInterval)
	return s
}

// NewGradScalerWith creates a scaler with an explicit schedule
func NewGradScalerWith(initScale, growthFactor, backoffFactor float64, growthInterval int) (*GradScaler, error) {
	if initScale <= 0 {
		return nil, errors.ValidationErrorf("init scale must be positive (received: %g)", initScale)
	}
	if growthFactor <= 1 {
		return nil, errors.ValidationErrorf("growth factor must be greater than 1 (received: %g)", growthFactor)
	}
	if backoffFactor <= 0 || backoffFactor >= 1 {
		return nil, errors.ValidationErrorf("backoff factor must be in (0, 1) (received: %g)", backoffFactor)
	}
	if growthInterval <= 0 {
		return nil, errors.ValidationErrorf("growth interval must be positive (received: %d)", growthInterval)
	}
	return &GradScaler{
		scale:          initScale,
		growthFactor:   growthFactor,
		backoffFactor:  backoffFactor,
		growthInterval: growthInterval,
	}, nil
}

// Scale returns the current loss scale
func (s *GradScaler) Scale() float64 {
	return s.scale
}

// Unscale divides the gradients by the current scale and reports whether
// all of them are finite. When it returns false the gradients must be
// discarded and the step skipped.
func (s *GradScaler) Unscale(params []*engine.Parameter) bool {
	finite := true
	inv := 1 / s.scale
	for _, p := range params {
		for i, g := range p.Grad {
			if math.IsNaN(g) || math.IsInf(g, 0) {
				finite = false
			}
			p.Grad[i] = g * inv
		}
	}
	return finite
}

// UpdateOnSuccess advances the growth schedule after a successful step
func (s *GradScaler) UpdateOnSuccess() {
	s.growthTracker++
	if s.growthTracker >= s.growthInterval {
		s.scale *= s.growthFactor
		s.growthTracker = 0
	}
}

// UpdateOnOverflow backs the scale off after a skipped step
func (s *GradScaler) UpdateOnOverflow() {
	s.scale *= s.backoffFactor
	s.growthTracker = 0
}

// StateDict returns the scaler state
func (s *GradScaler) StateDict() map[string]any {
	return map[string]any{
		"scale":          s.scale,
		"growth_tracker": s.growthTracker,
	}
}

// LoadStateDict restores the scaler state
func (s *GradScaler) LoadStateDict(state map[string]any) error {
	scale, err := statedict.Float64(state, "scale")
	if err != nil {
		return err
	}
	tracker, err := statedict.Int(state, "growth_tracker")
	if err != nil {
		return err
	}
	if scale <= 0 {
		return errors.ValidationErrorf("scale must be positive (received: %g)", scale)
	}
	s.scale = scale
	s.growthTracker = tracker
	return nil
}
