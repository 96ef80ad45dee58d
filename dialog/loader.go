package dialog

import (
	"math/rand"
	"time"

	"github.com/retortml/retort/errors"
)

// Batch is one fixed-size run of utterance/response pairs. Every batch in a
// pass has the configured size except possibly the last. Preds carries the
// pre-generated negative responses when the corpus has them (discriminator
// pretraining); entries are empty otherwise.
type Batch struct {
	Uttrs []string
	Resps []string
	Preds []string
}

// Size returns the number of pairs in the batch
func (b Batch) Size() int {
	return len(b.Uttrs)
}

// LoaderOptions configures a Loader
type LoaderOptions struct {
	BatchSize int
	// Shuffle permutes example order once per pass. Callers disable it
	// outside plain training mode.
	Shuffle bool
	// Prefetch is the number of batches buffered ahead of the consumer
	Prefetch int
	// Seed fixes the shuffle order across runs; 0 seeds from the clock
	Seed int64
}

// Loader produces finite, restartable passes over a corpus: each call to
// Batches yields every example exactly once, in order, as a blocking
// sequence. Prefetching happens behind a buffered channel so the consumer
// never observes reordered or duplicated batches.
type Loader struct {
	examples []Example
	opts     LoaderOptions
	rng      *rand.Rand
}

// NewLoader validates the options and wraps the examples
func NewLoader(examples []Example, opts LoaderOptions) (*Loader, error) {
	if opts.BatchSize < 1 {
		return nil, errors.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if len(examples) == 0 {
		return nil, errors.Errorf("no examples to load")
	}
	if opts.Prefetch < 0 {
		opts.Prefetch = 0
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Loader{
		examples: examples,
		opts:     opts,
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// Len returns the number of batches in one pass
func (l *Loader) Len() int {
	n := len(l.examples) / l.opts.BatchSize
	if len(l.examples)%l.opts.BatchSize != 0 {
		n++
	}
	return n
}

// NumExamples returns the corpus size
func (l *Loader) NumExamples() int {
	return len(l.examples)
}

// Batches starts a fresh pass over the corpus. The channel is closed once
// every example has been delivered; the caller must drain it.
func (l *Loader) Batches() <-chan Batch {
	order := make([]int, len(l.examples))
	for i := range order {
		order[i] = i
	}
	// shuffle on the caller's goroutine so passes stay deterministic
	// under a fixed seed
	if l.opts.Shuffle {
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	out := make(chan Batch, l.opts.Prefetch)
	go func() {
		defer close(out)
		for start := 0; start < len(order); start += l.opts.BatchSize {
			end := start + l.opts.BatchSize
			if end > len(order) {
				end = len(order)
			}
			batch := Batch{
				Uttrs: make([]string, 0, end-start),
				Resps: make([]string, 0, end-start),
				Preds: make([]string, 0, end-start),
			}
			for _, idx := range order[start:end] {
				batch.Uttrs = append(batch.Uttrs, l.examples[idx].Uttr)
				batch.Resps = append(batch.Resps, l.examples[idx].Resp)
				batch.Preds = append(batch.Preds, l.examples[idx].Pred)
			}
			out <- batch
		}
	}()
	return out
}
