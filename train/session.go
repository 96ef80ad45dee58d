// Package train implements the adversarial training coordinator: the
// per-batch protocol that couples the generator's and discriminator's
// losses, the gradient-accumulation and loss-scaling discipline around the
// two optimizers, and the epoch-level control loop with plateau scheduling,
// independent best-so-far checkpointing, and early stopping.
package train

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/retortml/retort/dialog"
	"github.com/retortml/retort/errors"
	"github.com/retortml/retort/model"
)

// State is the session's position in its lifecycle
type State int

// Idle -> Running -> {Completed | EarlyStopped}; there is no resumption from
// a terminal state.
const (
	Idle State = iota
	Running
	Completed
	EarlyStopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case EarlyStopped:
		return "early stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session owns the top-level epoch loop and everything with process
// lifetime: the two model bundles, their schedulers, the best-loss state,
// and the record log. One Session is one training run.
type Session struct {
	cfg Config

	gen model.Generator
	dsc model.Discriminator

	train *dialog.Loader
	valid *dialog.Loader

	coupler  *Coupler
	accum    *Accumulator
	genSched *Plateau
	dscSched *Plateau

	state   State
	records []EpochRecord

	// Output receives the per-epoch summaries; defaults to stdout
	Output io.Writer
	// Progress enables batch-level progress bars
	Progress bool
}

// NewSession validates the config and assembles the coordinator around the
// provided models and loaders. Both models start at the configured learning
// rate.
func NewSession(cfg Config, gen model.Generator, dsc model.Discriminator, train, valid *dialog.Loader) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid training config")
	}
	if train == nil || valid == nil {
		return nil, errors.Errorf("both training and validation loaders are required")
	}

	gen.SetLR(cfg.LR)
	dsc.SetLR(cfg.LR)

	scaler := NewLossScaler(cfg.Precision == PrecisionFP16)

	coupler := NewCoupler(gen, dsc, cfg.MaxLen, cfg.Seed)
	coupler.UsePretrained = cfg.Mode == ModePretrain

	return &Session{
		cfg:      cfg,
		gen:      gen,
		dsc:      dsc,
		train:    train,
		valid:    valid,
		coupler:  coupler,
		accum:    NewAccumulator(scaler, cfg.AccumSteps, cfg.ClipNorm),
		genSched: NewPlateau(gen),
		dscSched: NewPlateau(dsc),
		state:    Idle,
		Output:   os.Stdout,
	}, nil
}

// State returns the session's current lifecycle state
func (s *Session) State() State {
	return s.state
}

// Records returns the per-epoch log accumulated so far
func (s *Session) Records() []EpochRecord {
	return s.records
}

// Run drives the full training session and returns the terminal state. The
// record log is flushed once on either terminal transition; checkpoint or
// record write failures abort the session with the last completed epoch's
// artifacts intact on disk.
func (s *Session) Run() (State, error) {
	if s.state != Idle {
		return s.state, errors.Errorf("session already ran to %s", s.state)
	}
	s.state = Running

	genBest := math.Inf(1)
	dscBest := math.Inf(1)
	patience := s.cfg.Patience

	for epoch := 1; epoch <= s.cfg.Epochs; epoch++ {
		start := time.Now()

		gTrain, dTrain, err := s.runTrainingEpoch()
		if err != nil {
			return s.state, errors.Wrapf(err, "training epoch %d", epoch)
		}
		gValid, dValid, err := s.runValidationEpoch()
		if err != nil {
			return s.state, errors.Wrapf(err, "validation epoch %d", epoch)
		}

		record := EpochRecord{
			Epoch:        epoch,
			GenTrainLoss: gTrain,
			GenValidLoss: gValid,
			DscTrainLoss: dTrain,
			DscValidLoss: dValid,
			GenLR:        s.gen.LR(),
			DscLR:        s.dsc.LR(),
			EpochTime:    measureTime(start, time.Now()),
		}
		s.records = append(s.records, record)
		s.printEpoch(record)

		s.genSched.Step(gValid)
		s.dscSched.Step(dValid)

		// the two best-so-far decisions are independent: the
		// discriminator checkpoint never couples to the generator's
		// patience and vice versa
		if dValid <= dscBest {
			dscBest = dValid
			if err := writeCheckpoint(s.cfg.DscCkpt, epoch, s.dsc); err != nil {
				return s.state, err
			}
		}

		if gValid <= genBest {
			genBest = gValid
			if err := writeCheckpoint(s.cfg.GenCkpt, epoch, s.gen); err != nil {
				return s.state, err
			}
			if s.cfg.EarlyStop {
				patience = s.cfg.Patience
			}
		} else if s.cfg.EarlyStop {
			patience--
			if patience == 0 {
				fmt.Fprintln(s.Output, "\n--- training early stopped ---")
				s.state = EarlyStopped
				break
			}
		}
	}

	if s.state != EarlyStopped {
		s.state = Completed
	}

	if err := writeRecords(s.cfg.RecordPath, s.records); err != nil {
		return s.state, err
	}
	return s.state, nil
}

func (s *Session) printEpoch(r EpochRecord) {
	fmt.Fprintf(s.Output, "Epoch %d/%d | Time: %s\n", r.Epoch, s.cfg.Epochs, r.EpochTime)
	fmt.Fprintf(s.Output, "  >> Generator Train Loss: %.3f | Generator Valid Loss: %.3f\n", r.GenTrainLoss, r.GenValidLoss)
	fmt.Fprintf(s.Output, "  >> Discriminator Train Loss: %.3f | Discriminator Valid Loss: %.3f\n", r.DscTrainLoss, r.DscValidLoss)
}
