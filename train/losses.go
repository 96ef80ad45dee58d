package train

import (
	"math"
	"math/rand"
	"time"

	"github.com/retortml/retort/dialog"
	"github.com/retortml/retort/errors"
	"github.com/retortml/retort/model"
)

// Labels the discriminator is trained against
const (
	labelFake = 0.0
	labelReal = 1.0
)

// decisionThreshold is the score above which the discriminator is taken to
// have judged an example genuine.
const decisionThreshold = 0.5

// LossPair couples the generator and discriminator losses computed from one
// shared discriminator pass. Both values are finite and non-negative.
type LossPair struct {
	Gen float64
	Dsc float64
}

// Coupler produces both adversarial losses for a batch from a single
// discriminator forward pass, so they are always computed against the exact
// same permutation and inputs.
type Coupler struct {
	gen    model.Generator
	dsc    model.Discriminator
	maxLen int
	rng    *rand.Rand

	// UsePretrained takes the batch's stored negatives as the fakes
	// instead of running the generator (discriminator pretraining)
	UsePretrained bool
}

// NewCoupler ...
func NewCoupler(gen model.Generator, dsc model.Discriminator, maxLen int, seed int64) *Coupler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Coupler{
		gen:    gen,
		dsc:    dsc,
		maxLen: maxLen,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Losses runs the generator over the batch's utterances, interleaves the
// candidates with the ground-truth responses under one shared random
// permutation, scores the permuted set, and derives both losses. No model
// parameters are mutated.
func (c *Coupler) Losses(batch dialog.Batch) (LossPair, error) {
	size := batch.Size()
	if size == 0 || len(batch.Resps) != size {
		return LossPair{}, errors.Errorf("malformed batch: %d utterances, %d responses", size, len(batch.Resps))
	}

	preds, err := c.fakes(batch)
	if err != nil {
		return LossPair{}, err
	}

	// candidates labeled fake, ground truth labeled real, shuffled under
	// one permutation so position cannot leak the label
	texts := make([]string, 0, 2*size)
	texts = append(texts, preds...)
	texts = append(texts, batch.Resps...)
	labels := make([]float64, 2*size)
	for i := size; i < 2*size; i++ {
		labels[i] = labelReal
	}

	perm := c.rng.Perm(2 * size)
	shufTexts := make([]string, 2*size)
	shufLabels := make([]float64, 2*size)
	for to, from := range perm {
		shufTexts[to] = texts[from]
		shufLabels[to] = labels[from]
	}

	judgment, err := c.dsc.Score(shufTexts, shufLabels)
	if err != nil {
		return LossPair{}, errors.Wrapf(err, "unable to score discriminator batch")
	}
	if len(judgment.Scores) != 2*size {
		return LossPair{}, errors.Errorf("discriminator returned %d scores for %d inputs", len(judgment.Scores), 2*size)
	}
	if !finite(judgment.Loss) || judgment.Loss < 0 {
		return LossPair{}, errors.Errorf("discriminator loss %f is not a finite non-negative value", judgment.Loss)
	}

	// the generator is rewarded for every fake the discriminator
	// misclassifies as genuine
	var fooled int
	for i, score := range judgment.Scores {
		if shufLabels[i] == labelFake && score > decisionThreshold {
			fooled++
		}
	}

	gLoss := degenerateGenLoss(size)
	if fooled > 0 {
		gLoss = -math.Log(float64(fooled) / float64(size))
	}

	return LossPair{Gen: gLoss, Dsc: judgment.Loss}, nil
}

// fakes produces the batch's fake responses: generated candidates in the
// adversarial regime, the corpus's stored negatives when pretraining.
func (c *Coupler) fakes(batch dialog.Batch) ([]string, error) {
	size := batch.Size()

	if c.UsePretrained {
		if len(batch.Preds) != size {
			return nil, errors.Errorf("pretraining batch has %d stored negatives for %d utterances", len(batch.Preds), size)
		}
		for i, p := range batch.Preds {
			if p == "" {
				return nil, errors.Errorf("pretraining corpus is missing the pred field for example %d", i)
			}
		}
		return batch.Preds, nil
	}

	preds, err := c.gen.Generate(batch.Uttrs, c.maxLen)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to generate candidate responses")
	}
	if len(preds) != size {
		return nil, errors.Errorf("generator returned %d candidates for %d utterances", len(preds), size)
	}
	return preds, nil
}

// degenerateGenLoss stands in for -log(0) when the discriminator was never
// fooled: strictly above the worst attainable finite loss -log(1/B), and
// finite so it can flow into the accumulated gradient without poisoning the
// scaling engine.
func degenerateGenLoss(batchSize int) float64 {
	return math.Log(2 * float64(batchSize))
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
