// Package model defines the capability surface the training coordinator
// requires of the two sequence models. Forward math, decoding, and
// tokenization live behind these interfaces; the coordinator only sees
// text in, scores and losses out, and a handful of gradient operations.
package model

// Judgment holds the discriminator's view of one scored batch: a per-example
// authenticity score in [0, 1] and the scalar classification loss against
// the labels it was given.
type Judgment struct {
	Scores []float64
	Loss   float64
}

// Snapshot is a point-in-time copy of a model's parameters and optimizer
// state, keyed by tensor name. Checkpoints persist exactly this.
type Snapshot struct {
	Params    map[string][]float64
	Optimizer map[string][]float64
}

// Trainable is what the accumulation engine and the session need from a
// model: mode switching, gradient accumulation against the most recent
// forward pass, and optimizer control. Implementations own their optimizer;
// the learning-rate schedule is driven from outside through LR/SetLR.
type Trainable interface {
	// SetTraining toggles between training and evaluation mode
	SetTraining(training bool)

	// Backward accumulates gradients for the most recent forward pass,
	// scaled by the provided loss value. Gradients must sum across calls
	// until ZeroGrads.
	Backward(scaledLoss float64)

	// UnscaleGrads multiplies the accumulated gradients by inv and reports
	// whether every gradient is still finite. A false return means the
	// accumulated state is corrupt and must not be applied.
	UnscaleGrads(inv float64) bool

	// ClipGradNorm rescales the accumulated gradients so their global norm
	// is at most max, returning the pre-clip norm.
	ClipGradNorm(max float64) float64

	// Step applies the accumulated gradients through the optimizer
	Step()

	// ZeroGrads discards any accumulated gradients
	ZeroGrads()

	LR() float64
	SetLR(lr float64)

	// Snapshot copies the current parameters and optimizer state
	Snapshot() (Snapshot, error)
}

// Generator produces a bounded-length candidate response for each utterance
type Generator interface {
	Trainable
	Generate(uttrs []string, maxNewTokens int) ([]string, error)
}

// Discriminator scores whether each text is a genuine response (label 1) or
// a generated one (label 0), and must cache the pass so a following Backward
// accumulates gradients for it.
type Discriminator interface {
	Trainable
	Score(texts []string, labels []float64) (Judgment, error)
}
