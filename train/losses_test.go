package train

import (
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retortml/retort/dialog"
	"github.com/retortml/retort/model/modeltest"
)

func testBatch(size int) dialog.Batch {
	b := dialog.Batch{}
	for i := 0; i < size; i++ {
		b.Uttrs = append(b.Uttrs, fmt.Sprintf("uttr %d", i))
		b.Resps = append(b.Resps, fmt.Sprintf("resp %d", i))
	}
	return b
}

func TestCouplerLabelCardinality(t *testing.T) {
	gen := modeltest.NewGenerator(0.1)
	dsc := modeltest.NewDiscriminator(0.1)
	coupler := NewCoupler(gen, dsc, 32, 5)

	_, err := coupler.Losses(testBatch(4))
	require.NoError(t, err)

	require.Len(t, dsc.LastLabels, 8)
	var real int
	for _, l := range dsc.LastLabels {
		if l == labelReal {
			real++
		}
	}
	assert.Equal(t, 4, real, "exactly half the labels are real")
}

func TestCouplerPermutationIsBijection(t *testing.T) {
	gen := modeltest.NewGenerator(0.1)
	dsc := modeltest.NewDiscriminator(0.1)
	coupler := NewCoupler(gen, dsc, 32, 5)

	batch := testBatch(8)
	_, err := coupler.Losses(batch)
	require.NoError(t, err)

	// the multiset of (text, label) pairs is invariant under the shuffle
	var got []string
	for i, text := range dsc.LastTexts {
		got = append(got, fmt.Sprintf("%s|%v", text, dsc.LastLabels[i]))
	}
	var want []string
	for _, u := range batch.Uttrs {
		want = append(want, fmt.Sprintf("generated: %s|%v", u, labelFake))
	}
	for _, r := range batch.Resps {
		want = append(want, fmt.Sprintf("%s|%v", r, labelReal))
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestCouplerSharedPermutation(t *testing.T) {
	gen := modeltest.NewGenerator(0.1)
	dsc := modeltest.NewDiscriminator(0.1)
	coupler := NewCoupler(gen, dsc, 32, 5)

	_, err := coupler.Losses(testBatch(8))
	require.NoError(t, err)

	// labels must have moved with the texts: a generated text always
	// carries the fake label regardless of its shuffled position
	for i, text := range dsc.LastTexts {
		if len(text) > 10 && text[:10] == "generated:" {
			assert.Equal(t, labelFake, dsc.LastLabels[i], "position %d", i)
		} else {
			assert.Equal(t, labelReal, dsc.LastLabels[i], "position %d", i)
		}
	}
}

func TestCouplerGeneratorLoss(t *testing.T) {
	gen := modeltest.NewGenerator(0.1)
	dsc := modeltest.NewDiscriminator(0.1)

	// fool the discriminator on every fake
	dsc.ScoreOf = func(text string, label float64) float64 {
		if label == labelFake {
			return 0.9
		}
		return 0.9
	}
	coupler := NewCoupler(gen, dsc, 32, 5)

	pair, err := coupler.Losses(testBatch(4))
	require.NoError(t, err)
	assert.InDelta(t, 0, pair.Gen, 1e-12, "-log(4/4)")

	// fool it on nothing: the degenerate case must be a defined, finite,
	// clamped extreme rather than +Inf or a crash
	dsc.ScoreOf = func(text string, label float64) float64 { return label }
	pair, err = coupler.Losses(testBatch(4))
	require.NoError(t, err)
	assert.Equal(t, math.Log(8), pair.Gen)
	assert.False(t, math.IsInf(pair.Gen, 0))
	assert.Greater(t, pair.Gen, -math.Log(1.0/4.0), "clamp sits above the worst finite loss")
}

func TestCouplerRejectsBadModelOutput(t *testing.T) {
	gen := modeltest.NewGenerator(0.1)
	dsc := modeltest.NewDiscriminator(0.1)
	dsc.LossOf = func(scores, labels []float64) float64 { return math.NaN() }
	coupler := NewCoupler(gen, dsc, 32, 5)

	_, err := coupler.Losses(testBatch(4))
	require.Error(t, err)

	_, err = coupler.Losses(dialog.Batch{})
	require.Error(t, err)
}

func TestCouplerPretrainedNegatives(t *testing.T) {
	gen := modeltest.NewGenerator(0.1)
	dsc := modeltest.NewDiscriminator(0.1)
	coupler := NewCoupler(gen, dsc, 32, 5)
	coupler.UsePretrained = true

	batch := testBatch(4)
	for i := range batch.Uttrs {
		batch.Preds = append(batch.Preds, fmt.Sprintf("negative %d", i))
	}

	_, err := coupler.Losses(batch)
	require.NoError(t, err)
	assert.Zero(t, gen.Generations, "pretraining never runs the generator")
	for i, text := range dsc.LastTexts {
		if dsc.LastLabels[i] == labelFake {
			assert.Contains(t, text, "negative")
		}
	}

	// a pretraining corpus without stored negatives is unusable
	coupler2 := NewCoupler(gen, dsc, 32, 5)
	coupler2.UsePretrained = true
	_, err = coupler2.Losses(testBatch(4))
	require.Error(t, err)
}

func TestCouplerDeterministicUnderSeed(t *testing.T) {
	run := func() []float64 {
		gen := modeltest.NewGenerator(0.1)
		dsc := modeltest.NewDiscriminator(0.1)
		coupler := NewCoupler(gen, dsc, 32, 99)
		_, err := coupler.Losses(testBatch(8))
		require.NoError(t, err)
		return dsc.LastLabels
	}
	assert.Equal(t, run(), run())
}
