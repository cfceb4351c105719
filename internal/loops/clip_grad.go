package loops

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/gradkit/gradkit/internal/engine"
)

// Gradient clipping defaults.
const (
	DefaultClipValue    = 0.25
	DefaultClipMaxNorm  = 1.0
	DefaultClipNormType = 2.0
)

// GradClipper bounds the gradients of a parameter set before the
// optimizer step.
type GradClipper interface {
	Clip(params []*engine.Parameter)
}

// ValueClipper clamps every gradient element to [-Value, Value].
type ValueClipper struct {
	Value float64
}

// NewValueClipper creates a clipper clamping elements to [-value, value]
func NewValueClipper(value float64) ValueClipper {
	return ValueClipper{Value: value}
}

func (c ValueClipper) Clip(params []*engine.Parameter) {
	for _, p := range params {
		for i, g := range p.Grad {
			if g > c.Value {
				p.Grad[i] = c.Value
			} else if g < -c.Value {
				p.Grad[i] = -c.Value
			}
		}
	}
}

// NormClipper rescales the gradients so their joint NormType-norm does
// not exceed MaxNorm.
type NormClipper struct {
	MaxNorm  float64
	NormType float64
}

// NewNormClipper creates a clipper bounding the joint gradient norm
func NewNormClipper(maxNorm, normType float64) NormClipper {
	return NormClipper{MaxNorm: maxNorm, NormType: normType}
}

func (c NormClipper) Clip(params []*engine.Parameter) {
	total := c.totalNorm(params)
	if total <= c.MaxNorm || total == 0 {
		return
	}
	scale := c.MaxNorm / (total + 1e-6)
	for _, p := range params {
		if p.Grad != nil {
			floats.Scale(scale, p.Grad)
		}
	}
}

func (c NormClipper) totalNorm(params []*engine.Parameter) float64 {
	if math.IsInf(c.NormType, 1) {
		total := 0.0
		for _, p := range params {
			if len(p.Grad) == 0 {
				continue
			}
			total = math.Max(total, floats.Norm(p.Grad, math.Inf(1)))
		}
		return total
	}
	total := 0.0
	for _, p := range params {
		if len(p.Grad) == 0 {
			continue
		}
		total += math.Pow(floats.Norm(p.Grad, c.NormType), c.NormType)
	}
	return math.Pow(total, 1/c.NormType)
}
