package train

import (
	"github.com/montanaflynn/stats"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"

	"github.com/retortml/retort/dialog"
	"github.com/retortml/retort/errors"
)

// runTrainingEpoch consumes one full training pass: every batch is coupled
// into a LossPair and folded into the accumulator, which steps the
// optimizers on group boundaries. Returns the rounded mean per-batch losses.
func (s *Session) runTrainingEpoch() (float64, float64, error) {
	s.gen.SetTraining(true)
	s.dsc.SetTraining(true)

	total := s.train.Len()
	gBatch := make([]float64, 0, total)
	dBatch := make([]float64, 0, total)

	err := s.forEachBatch(s.train.Batches(), total, "training", func(idx int, batch dialog.Batch) error {
		pair, err := s.coupler.Losses(batch)
		if err != nil {
			return errors.Wrapf(err, "batch %d", idx)
		}
		s.accum.Add(s.gen, s.dsc, pair, idx, total)
		gBatch = append(gBatch, pair.Gen)
		dBatch = append(dBatch, pair.Dsc)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return meanLosses(gBatch, dBatch)
}

// runValidationEpoch computes the same coupled losses over one full
// validation pass with both models in evaluation mode and no gradient or
// accumulation activity.
func (s *Session) runValidationEpoch() (float64, float64, error) {
	s.gen.SetTraining(false)
	s.dsc.SetTraining(false)

	total := s.valid.Len()
	gBatch := make([]float64, 0, total)
	dBatch := make([]float64, 0, total)

	err := s.forEachBatch(s.valid.Batches(), total, "validating", func(idx int, batch dialog.Batch) error {
		pair, err := s.coupler.Losses(batch)
		if err != nil {
			return errors.Wrapf(err, "batch %d", idx)
		}
		gBatch = append(gBatch, pair.Gen)
		dBatch = append(dBatch, pair.Dsc)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return meanLosses(gBatch, dBatch)
}

func meanLosses(gBatch, dBatch []float64) (float64, float64, error) {
	gMean, err := stats.Mean(gBatch)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "unable to aggregate generator losses")
	}
	dMean, err := stats.Mean(dBatch)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "unable to aggregate discriminator losses")
	}
	return round3(gMean), round3(dMean), nil
}

// forEachBatch drives fn over an ordered batch sequence, optionally behind a
// progress bar. The channel is always drained so the loader's producer can
// exit even when fn fails partway through a pass.
func (s *Session) forEachBatch(batches <-chan dialog.Batch, total int, desc string, fn func(idx int, batch dialog.Batch) error) error {
	defer func() {
		for range batches {
		}
	}()

	if !s.Progress {
		idx := 0
		for batch := range batches {
			idx++
			if err := fn(idx, batch); err != nil {
				return err
			}
		}
		return nil
	}

	var loopErr error
	idx := 0
	err := tqdm.With(iterators.Interval(0, total), desc, func(interface{}) (brk bool) {
		batch, ok := <-batches
		if !ok {
			return true
		}
		idx++
		if err := fn(idx, batch); err != nil {
			loopErr = err
			return true
		}
		return false
	})
	if loopErr != nil {
		return loopErr
	}
	return err
}
