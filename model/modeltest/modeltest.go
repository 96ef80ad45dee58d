// Package modeltest provides deterministic Trainable implementations with a
// single scalar parameter and full call bookkeeping, for exercising the
// training coordinator without any real model math.
package modeltest

import (
	"fmt"
	"math"

	"github.com/retortml/retort/model"
)

var (
	_ model.Generator     = &Generator{}
	_ model.Discriminator = &Discriminator{}
)

// Base implements model.Trainable over one scalar parameter with plain SGD.
// Every operation is counted so tests can assert on the exact call pattern
// the coordinator produces.
type Base struct {
	Param  float64
	Grad   float64
	Moment float64

	Training bool

	Backwards int
	Unscales  int
	Clips     int
	Steps     int
	Zeros     int

	// GradsAtStep records the gradient value applied by each Step call
	GradsAtStep []float64

	lr float64
}

// NewBase returns a Base with the provided learning rate
func NewBase(lr float64) *Base {
	return &Base{lr: lr}
}

// SetTraining implements model.Trainable
func (b *Base) SetTraining(training bool) {
	b.Training = training
}

// Backward implements model.Trainable
func (b *Base) Backward(scaledLoss float64) {
	b.Grad += scaledLoss
	b.Backwards++
}

// UnscaleGrads implements model.Trainable
func (b *Base) UnscaleGrads(inv float64) bool {
	b.Grad *= inv
	b.Unscales++
	return !math.IsNaN(b.Grad) && !math.IsInf(b.Grad, 0)
}

// ClipGradNorm implements model.Trainable
func (b *Base) ClipGradNorm(max float64) float64 {
	norm := math.Abs(b.Grad)
	if norm > max {
		b.Grad *= max / norm
	}
	b.Clips++
	return norm
}

// Step implements model.Trainable
func (b *Base) Step() {
	b.GradsAtStep = append(b.GradsAtStep, b.Grad)
	b.Moment = b.Grad
	b.Param -= b.lr * b.Grad
	b.Steps++
}

// ZeroGrads implements model.Trainable
func (b *Base) ZeroGrads() {
	b.Grad = 0
	b.Zeros++
}

// LR implements model.Trainable
func (b *Base) LR() float64 {
	return b.lr
}

// SetLR implements model.Trainable
func (b *Base) SetLR(lr float64) {
	b.lr = lr
}

// Snapshot implements model.Trainable
func (b *Base) Snapshot() (model.Snapshot, error) {
	return model.Snapshot{
		Params:    map[string][]float64{"param": {b.Param}},
		Optimizer: map[string][]float64{"moment": {b.Moment}},
	}, nil
}

// Generator is a canned-response model.Generator
type Generator struct {
	*Base

	// Respond maps an utterance to the generated candidate; the default
	// tags the utterance so generated texts are distinguishable.
	Respond func(uttr string) string

	Generations int
}

// NewGenerator ...
func NewGenerator(lr float64) *Generator {
	return &Generator{
		Base: NewBase(lr),
		Respond: func(uttr string) string {
			return "generated: " + uttr
		},
	}
}

// Generate implements model.Generator
func (g *Generator) Generate(uttrs []string, maxNewTokens int) ([]string, error) {
	g.Generations++
	out := make([]string, 0, len(uttrs))
	for _, u := range uttrs {
		out = append(out, g.Respond(u))
	}
	return out, nil
}

// Discriminator is a scripted model.Discriminator: ScoreOf decides the
// per-example score and LossOf the scalar loss, and every scored pass is
// recorded for inspection.
type Discriminator struct {
	*Base

	// ScoreOf returns the authenticity score for one example; the default
	// is a perfect discriminator (score equals the label).
	ScoreOf func(text string, label float64) float64

	// LossOf returns the scalar loss for one pass; the default is the mean
	// squared error against the labels.
	LossOf func(scores, labels []float64) float64

	LastTexts  []string
	LastLabels []float64
	Scored     int
}

// NewDiscriminator ...
func NewDiscriminator(lr float64) *Discriminator {
	return &Discriminator{
		Base: NewBase(lr),
		ScoreOf: func(text string, label float64) float64 {
			return label
		},
		LossOf: func(scores, labels []float64) float64 {
			var sum float64
			for i := range scores {
				d := scores[i] - labels[i]
				sum += d * d
			}
			return sum / float64(len(scores))
		},
	}
}

// Score implements model.Discriminator
func (d *Discriminator) Score(texts []string, labels []float64) (model.Judgment, error) {
	if len(texts) != len(labels) {
		return model.Judgment{}, fmt.Errorf("got %d texts for %d labels", len(texts), len(labels))
	}
	d.Scored++
	d.LastTexts = append([]string(nil), texts...)
	d.LastLabels = append([]float64(nil), labels...)

	scores := make([]float64, 0, len(texts))
	for i, text := range texts {
		scores = append(scores, d.ScoreOf(text, labels[i]))
	}
	return model.Judgment{Scores: scores, Loss: d.LossOf(scores, labels)}, nil
}
