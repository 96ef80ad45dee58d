package train

import (
	"github.com/retortml/retort/model"
)

// Accumulator amortizes optimizer updates over groups of consecutive
// batches: each batch's losses are divided by the accumulation factor and
// back-propagated under the current loss scale, and on the group boundary
// (or the final, possibly shorter, group of an epoch) both models are
// unscaled, clipped, stepped, and zeroed as one unit. The two models'
// accumulated gradients are fully independent; they share only the group
// boundary itself.
type Accumulator struct {
	scaler *LossScaler
	steps  int
	clip   float64
}

// StepResult reports what happened at a group boundary
type StepResult struct {
	// Stepped is true when this batch closed a group
	Stepped bool
	// GenApplied / DscApplied report whether that model's update was
	// applied; false with Stepped true means non-finite gradients were
	// detected during unscale and the update was discarded.
	GenApplied bool
	DscApplied bool
}

// NewAccumulator ...
func NewAccumulator(scaler *LossScaler, steps int, clip float64) *Accumulator {
	return &Accumulator{
		scaler: scaler,
		steps:  steps,
		clip:   clip,
	}
}

// Add folds one batch's coupled losses into the open group. idx is the
// 1-based batch index within the epoch and total the number of batches in
// it; the group closes every steps batches and on the epoch's final batch.
func (a *Accumulator) Add(gen model.Generator, dsc model.Discriminator, losses LossPair, idx, total int) StepResult {
	scale := a.scaler.Scale()
	n := float64(a.steps)

	gen.Backward(losses.Gen / n * scale)
	dsc.Backward(losses.Dsc / n * scale)

	if idx%a.steps != 0 && idx != total {
		return StepResult{}
	}
	return a.step(gen, dsc, scale)
}

// step is the atomic unit at a group boundary: unscale, clip, step, update
// the scale, zero. A model whose unscaled gradients are non-finite skips its
// optimizer step; its corrupt accumulation is discarded by the zeroing
// rather than partially applied.
func (a *Accumulator) step(gen model.Generator, dsc model.Discriminator, scale float64) StepResult {
	inv := 1 / scale
	genOK := gen.UnscaleGrads(inv)
	dscOK := dsc.UnscaleGrads(inv)

	if genOK {
		gen.ClipGradNorm(a.clip)
		gen.Step()
	}
	if dscOK {
		dsc.ClipGradNorm(a.clip)
		dsc.Step()
	}

	a.scaler.Update(!genOK || !dscOK)

	gen.ZeroGrads()
	dsc.ZeroGrads()

	return StepResult{Stepped: true, GenApplied: genOK, DscApplied: dscOK}
}
