// Package reference ships small pure-Go implementations of the model
// capability interfaces so the training binary runs end to end without an
// external runtime: a bigram-chain response generator and a hashed
// bag-of-words logistic discriminator. Words are hashed into a fixed-length
// feature vector, so there will be collisions; that is acceptable at this
// model scale.
package reference

import (
	"math"
	"math/rand"
	"strings"
	"sync"

	spooky "github.com/dgryski/go-spooky"

	"github.com/retortml/retort/dialog"
	"github.com/retortml/retort/errors"
	"github.com/retortml/retort/model"
)

const momentum = 0.9

var (
	_ model.Generator     = &Generator{}
	_ model.Discriminator = &Discriminator{}
)

func hashWord(w string, dim uint64) uint64 {
	return spooky.Hash64([]byte(w)) % dim
}

// Discriminator is a logistic regression over hashed bag-of-words features,
// trained with momentum SGD. Score caches the pass so Backward can
// accumulate the binary cross-entropy gradient for it.
type Discriminator struct {
	mu sync.Mutex

	dim     uint64
	weights []float64
	bias    float64

	grads    []float64
	biasGrad float64

	moments    []float64
	biasMoment float64

	lr       float64
	training bool

	// cached forward pass
	lastFeatures [][]uint64
	lastProbs    []float64
	lastLabels   []float64
	lastLoss     float64
}

// NewDiscriminator creates a discriminator with the given feature dimension
func NewDiscriminator(dim uint64, lr float64) *Discriminator {
	return &Discriminator{
		dim:     dim,
		weights: make([]float64, dim),
		grads:   make([]float64, dim),
		moments: make([]float64, dim),
		lr:      lr,
	}
}

// Score implements model.Discriminator
func (d *Discriminator) Score(texts []string, labels []float64) (model.Judgment, error) {
	if len(texts) != len(labels) {
		return model.Judgment{}, errors.Errorf("got %d texts for %d labels", len(texts), len(labels))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastFeatures = d.lastFeatures[:0]
	d.lastProbs = d.lastProbs[:0]
	d.lastLabels = append(d.lastLabels[:0], labels...)

	var loss float64
	scores := make([]float64, 0, len(texts))
	for i, text := range texts {
		feats := d.features(text)
		z := d.bias
		for _, f := range feats {
			z += d.weights[f]
		}
		p := 1 / (1 + math.Exp(-z))
		scores = append(scores, p)
		loss += bce(p, labels[i])

		d.lastFeatures = append(d.lastFeatures, feats)
		d.lastProbs = append(d.lastProbs, p)
	}
	loss /= float64(len(texts))
	d.lastLoss = loss

	return model.Judgment{Scores: scores, Loss: loss}, nil
}

func (d *Discriminator) features(text string) []uint64 {
	words := strings.Fields(strings.ToLower(text))
	feats := make([]uint64, 0, len(words))
	for _, w := range words {
		feats = append(feats, hashWord(w, d.dim))
	}
	return feats
}

// the probability is clamped away from 0 and 1 so the loss stays finite
func bce(p, y float64) float64 {
	const eps = 1e-12
	if p < eps {
		p = eps
	} else if p > 1-eps {
		p = 1 - eps
	}
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

// SetTraining implements model.Trainable
func (d *Discriminator) SetTraining(training bool) {
	d.training = training
}

// Backward implements model.Trainable. The caller hands us the scaled loss;
// the gradient of the cached pass is accumulated multiplied by
// scaledLoss/loss so loss scaling and accumulation-factor division flow
// through without the engine knowing any model internals.
func (d *Discriminator) Backward(scaledLoss float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.lastProbs) == 0 || d.lastLoss == 0 {
		return
	}
	mult := scaledLoss / d.lastLoss / float64(len(d.lastProbs))

	for i, feats := range d.lastFeatures {
		g := (d.lastProbs[i] - d.lastLabels[i]) * mult
		for _, f := range feats {
			d.grads[f] += g
		}
		d.biasGrad += g
	}
}

// UnscaleGrads implements model.Trainable
func (d *Discriminator) UnscaleGrads(inv float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	finite := true
	d.biasGrad *= inv
	if !isFinite(d.biasGrad) {
		finite = false
	}
	for i := range d.grads {
		d.grads[i] *= inv
		if !isFinite(d.grads[i]) {
			finite = false
		}
	}
	return finite
}

// ClipGradNorm implements model.Trainable
func (d *Discriminator) ClipGradNorm(max float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	var sq float64
	for _, g := range d.grads {
		sq += g * g
	}
	sq += d.biasGrad * d.biasGrad
	norm := math.Sqrt(sq)
	if norm > max && norm > 0 {
		f := max / norm
		for i := range d.grads {
			d.grads[i] *= f
		}
		d.biasGrad *= f
	}
	return norm
}

// Step implements model.Trainable
func (d *Discriminator) Step() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.weights {
		d.moments[i] = momentum*d.moments[i] + d.grads[i]
		d.weights[i] -= d.lr * d.moments[i]
	}
	d.biasMoment = momentum*d.biasMoment + d.biasGrad
	d.bias -= d.lr * d.biasMoment
}

// ZeroGrads implements model.Trainable
func (d *Discriminator) ZeroGrads() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.grads {
		d.grads[i] = 0
	}
	d.biasGrad = 0
}

// LR implements model.Trainable
func (d *Discriminator) LR() float64 {
	return d.lr
}

// SetLR implements model.Trainable
func (d *Discriminator) SetLR(lr float64) {
	d.lr = lr
}

// Snapshot implements model.Trainable
func (d *Discriminator) Snapshot() (model.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return model.Snapshot{
		Params: map[string][]float64{
			"weights": append([]float64(nil), d.weights...),
			"bias":    {d.bias},
		},
		Optimizer: map[string][]float64{
			"moments":     append([]float64(nil), d.moments...),
			"bias_moment": {d.biasMoment},
		},
	}, nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Generator samples responses from a bigram chain fit on the training
// corpus. Its single trainable parameter is the sampling temperature, nudged
// by the adversarial signal through Backward; the chain itself is fixed
// after Fit.
type Generator struct {
	mu sync.Mutex

	chain  map[string][]weighted
	starts []weighted

	temperature float64
	grad        float64
	moment      float64

	lr       float64
	training bool
	rng      *rand.Rand
}

type weighted struct {
	word  string
	count float64
}

// NewGenerator ...
func NewGenerator(lr float64, seed int64) *Generator {
	return &Generator{
		chain:       make(map[string][]weighted),
		temperature: 1,
		lr:          lr,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Fit builds the bigram chain from the corpus responses
func (g *Generator) Fit(examples []dialog.Example) {
	g.mu.Lock()
	defer g.mu.Unlock()

	counts := make(map[string]map[string]float64)
	startCounts := make(map[string]float64)
	for _, ex := range examples {
		words := strings.Fields(strings.ToLower(ex.Resp))
		if len(words) == 0 {
			continue
		}
		startCounts[words[0]]++
		for i := 0; i+1 < len(words); i++ {
			m := counts[words[i]]
			if m == nil {
				m = make(map[string]float64)
				counts[words[i]] = m
			}
			m[words[i+1]]++
		}
	}

	g.chain = make(map[string][]weighted, len(counts))
	for w, nexts := range counts {
		ws := make([]weighted, 0, len(nexts))
		for n, c := range nexts {
			ws = append(ws, weighted{word: n, count: c})
		}
		g.chain[w] = ws
	}
	g.starts = g.starts[:0]
	for w, c := range startCounts {
		g.starts = append(g.starts, weighted{word: w, count: c})
	}
}

// Generate implements model.Generator
func (g *Generator) Generate(uttrs []string, maxNewTokens int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.starts) == 0 {
		return nil, errors.Errorf("generator has not been fit")
	}

	out := make([]string, 0, len(uttrs))
	for _, uttr := range uttrs {
		out = append(out, g.sample(uttr, maxNewTokens))
	}
	return out, nil
}

func (g *Generator) sample(uttr string, maxNewTokens int) string {
	// seed the chain from the utterance's last word when we know it
	var cur string
	if words := strings.Fields(strings.ToLower(uttr)); len(words) > 0 {
		if _, ok := g.chain[words[len(words)-1]]; ok {
			cur = words[len(words)-1]
		}
	}
	if cur == "" {
		cur = g.pick(g.starts)
	}

	words := []string{}
	if _, ok := g.chain[cur]; !ok {
		words = append(words, cur)
	}
	for len(words) < maxNewTokens {
		nexts, ok := g.chain[cur]
		if !ok {
			break
		}
		cur = g.pick(nexts)
		words = append(words, cur)
		if strings.HasSuffix(cur, ".") || strings.HasSuffix(cur, "?") || strings.HasSuffix(cur, "!") {
			break
		}
	}
	return strings.Join(words, " ")
}

func (g *Generator) pick(ws []weighted) string {
	var total float64
	for _, w := range ws {
		total += math.Pow(w.count, 1/g.temperature)
	}
	r := g.rng.Float64() * total
	for _, w := range ws {
		r -= math.Pow(w.count, 1/g.temperature)
		if r <= 0 {
			return w.word
		}
	}
	return ws[len(ws)-1].word
}

// SetTraining implements model.Trainable
func (g *Generator) SetTraining(training bool) {
	g.training = training
}

// Backward implements model.Trainable. The adversarial loss arrives as a
// scalar with no differentiable path through sampling, so it acts directly
// as a pseudo-gradient on the temperature.
func (g *Generator) Backward(scaledLoss float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grad += scaledLoss
}

// UnscaleGrads implements model.Trainable
func (g *Generator) UnscaleGrads(inv float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grad *= inv
	return isFinite(g.grad)
}

// ClipGradNorm implements model.Trainable
func (g *Generator) ClipGradNorm(max float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	norm := math.Abs(g.grad)
	if norm > max {
		g.grad *= max / norm
	}
	return norm
}

// Step implements model.Trainable
func (g *Generator) Step() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.moment = momentum*g.moment + g.grad
	g.temperature -= g.lr * g.moment

	// keep sampling sane
	if g.temperature < 0.1 {
		g.temperature = 0.1
	} else if g.temperature > 3 {
		g.temperature = 3
	}
}

// ZeroGrads implements model.Trainable
func (g *Generator) ZeroGrads() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grad = 0
}

// LR implements model.Trainable
func (g *Generator) LR() float64 {
	return g.lr
}

// SetLR implements model.Trainable
func (g *Generator) SetLR(lr float64) {
	g.lr = lr
}

// Snapshot implements model.Trainable
func (g *Generator) Snapshot() (model.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return model.Snapshot{
		Params:    map[string][]float64{"temperature": {g.temperature}},
		Optimizer: map[string][]float64{"moment": {g.moment}},
	}, nil
}
