package dialog

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corpus(n int) []Example {
	examples := make([]Example, 0, n)
	for i := 0; i < n; i++ {
		examples = append(examples, Example{
			Uttr: fmt.Sprintf("uttr %d", i),
			Resp: fmt.Sprintf("resp %d", i),
		})
	}
	return examples
}

func drain(l *Loader) []Batch {
	var batches []Batch
	for b := range l.Batches() {
		batches = append(batches, b)
	}
	return batches
}

func TestLoaderBatchSizes(t *testing.T) {
	l, err := NewLoader(corpus(10), LoaderOptions{BatchSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 10, l.NumExamples())

	batches := drain(l)
	require.Len(t, batches, 3)
	// full batches except the last, and always as many responses as utterances
	assert.Equal(t, 4, batches[0].Size())
	assert.Equal(t, 4, batches[1].Size())
	assert.Equal(t, 2, batches[2].Size())
	for _, b := range batches {
		assert.Equal(t, len(b.Uttrs), len(b.Resps))
	}
}

func TestLoaderRestartable(t *testing.T) {
	l, err := NewLoader(corpus(7), LoaderOptions{BatchSize: 3})
	require.NoError(t, err)

	first := drain(l)
	second := drain(l)
	// without shuffle both passes deliver the same ordered sequence
	assert.Equal(t, first, second)

	var uttrs []string
	for _, b := range first {
		uttrs = append(uttrs, b.Uttrs...)
	}
	assert.Len(t, uttrs, 7)
}

func TestLoaderShuffleCoversCorpus(t *testing.T) {
	l, err := NewLoader(corpus(20), LoaderOptions{BatchSize: 6, Shuffle: true, Seed: 11})
	require.NoError(t, err)

	var uttrs []string
	for _, b := range drain(l) {
		uttrs = append(uttrs, b.Uttrs...)
	}
	require.Len(t, uttrs, 20)

	// a pass is a permutation, never a repetition or omission
	sort.Strings(uttrs)
	var want []string
	for _, ex := range corpus(20) {
		want = append(want, ex.Uttr)
	}
	sort.Strings(want)
	assert.Equal(t, want, uttrs)
}

func TestLoaderShuffleDeterministicUnderSeed(t *testing.T) {
	a, err := NewLoader(corpus(16), LoaderOptions{BatchSize: 4, Shuffle: true, Seed: 7})
	require.NoError(t, err)
	b, err := NewLoader(corpus(16), LoaderOptions{BatchSize: 4, Shuffle: true, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, drain(a), drain(b))
}

func TestLoaderRejectsBadOptions(t *testing.T) {
	_, err := NewLoader(corpus(3), LoaderOptions{BatchSize: 0})
	require.Error(t, err)

	_, err = NewLoader(nil, LoaderOptions{BatchSize: 2})
	require.Error(t, err)
}
