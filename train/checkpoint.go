package train

import (
	"github.com/retortml/retort/errors"
	"github.com/retortml/retort/model"
	"github.com/retortml/retort/serialization"
)

// Checkpoint is the persisted best-so-far state for one model: the epoch the
// snapshot was taken at, the parameters, and the optimizer state. Each model
// has its own checkpoint stream, overwritten in place on improvement.
type Checkpoint struct {
	Epoch     int
	Params    map[string][]float64
	Optimizer map[string][]float64
}

// writeCheckpoint snapshots the model at the moment of the decision and
// writes it synchronously; any failure is fatal for the session.
func writeCheckpoint(path string, epoch int, m model.Trainable) error {
	snap, err := m.Snapshot()
	if err != nil {
		return errors.Wrapf(err, "unable to snapshot model for epoch %d", epoch)
	}
	ckpt := Checkpoint{
		Epoch:     epoch,
		Params:    snap.Params,
		Optimizer: snap.Optimizer,
	}
	if err := serialization.Encode(path, ckpt); err != nil {
		return errors.Wrapf(err, "unable to write checkpoint %s", path)
	}
	return nil
}

// ReadCheckpoint loads a checkpoint written by a previous session
func ReadCheckpoint(path string) (Checkpoint, error) {
	var ckpt Checkpoint
	if err := serialization.Decode(path, &ckpt); err != nil {
		return Checkpoint{}, errors.Wrapf(err, "unable to read checkpoint %s", path)
	}
	return ckpt, nil
}
