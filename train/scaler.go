package train

// Default scaling schedule: start high, halve on overflow, double again
// after a long run of clean steps.
const (
	defaultInitScale      = 65536
	defaultGrowthFactor   = 2
	defaultBackoffFactor  = 0.5
	defaultGrowthInterval = 2000
)

// LossScaler owns the single scaling factor that keeps reduced-precision
// gradients out of the underflow range. Losses are multiplied by Scale
// before back-propagation and gradients divided by it before the optimizer
// step. Disabled (fp32) scalers pin the factor at 1 and ignore updates.
type LossScaler struct {
	enabled bool
	scale   float64

	growthFactor   float64
	backoffFactor  float64
	growthInterval int
	goodSteps      int
}

// NewLossScaler ...
func NewLossScaler(enabled bool) *LossScaler {
	return &LossScaler{
		enabled:        enabled,
		scale:          defaultInitScale,
		growthFactor:   defaultGrowthFactor,
		backoffFactor:  defaultBackoffFactor,
		growthInterval: defaultGrowthInterval,
	}
}

// Scale returns the current scaling factor
func (s *LossScaler) Scale() float64 {
	if !s.enabled {
		return 1
	}
	return s.scale
}

// Update advances the schedule after one optimizer step attempt: shrink on
// overflow, grow after growthInterval consecutive clean steps.
func (s *LossScaler) Update(overflow bool) {
	if !s.enabled {
		return
	}
	if overflow {
		s.scale *= s.backoffFactor
		if s.scale < 1 {
			s.scale = 1
		}
		s.goodSteps = 0
		return
	}
	s.goodSteps++
	if s.goodSteps >= s.growthInterval {
		s.scale *= s.growthFactor
		s.goodSteps = 0
	}
}
