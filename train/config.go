package train

import (
	"github.com/retortml/retort/errors"
)

// Operating regimes. Shuffling and the adversarial update are only active in
// plain training; pretraining and test runs reuse the same loop with the
// relevant parts disabled by the caller.
const (
	ModeTrain    = "train"
	ModePretrain = "pretrain"
	ModeTest     = "test"
)

// Precision targets for the compute regions
const (
	PrecisionFP16 = "fp16"
	PrecisionFP32 = "fp32"
)

// Config is the full configuration surface of the coordinator. It is passed
// explicitly at construction; nothing here lives in package state.
type Config struct {
	Mode      string
	Device    string
	Precision string

	// MaxLen bounds generated response length in new tokens
	MaxLen int

	Epochs   int
	ClipNorm float64

	// AccumSteps is the number of batches folded into one optimizer step
	AccumSteps int

	EarlyStop bool
	Patience  int

	// GenCkpt and DscCkpt are the per-model checkpoint paths, each
	// overwritten in place whenever that model's validation loss improves
	GenCkpt string
	DscCkpt string

	// RecordPath receives the full epoch record log at session end
	RecordPath string

	LR float64

	// Seed fixes the coupler's permutation stream; 0 seeds from the clock
	Seed int64
}

// Validate returns nil if the config describes a runnable session
func (c Config) Validate() error {
	switch c.Mode {
	case ModeTrain, ModePretrain, ModeTest:
	default:
		return errors.Errorf("unknown mode %q", c.Mode)
	}
	switch c.Precision {
	case PrecisionFP16, PrecisionFP32:
	default:
		return errors.Errorf("unknown precision %q", c.Precision)
	}
	if c.MaxLen < 1 {
		return errors.Errorf("max length must be positive, got %d", c.MaxLen)
	}
	if c.Epochs < 1 {
		return errors.Errorf("epoch count must be positive, got %d", c.Epochs)
	}
	if c.ClipNorm <= 0 {
		return errors.Errorf("clip norm must be positive, got %f", c.ClipNorm)
	}
	if c.AccumSteps < 1 {
		return errors.Errorf("accumulation factor must be positive, got %d", c.AccumSteps)
	}
	if c.EarlyStop && c.Patience < 1 {
		return errors.Errorf("early stopping requires positive patience, got %d", c.Patience)
	}
	if c.GenCkpt == "" || c.DscCkpt == "" {
		return errors.Errorf("both checkpoint paths must be set")
	}
	if c.RecordPath == "" {
		return errors.Errorf("record path must be set")
	}
	if c.LR <= 0 {
		return errors.Errorf("learning rate must be positive, got %f", c.LR)
	}
	return nil
}
