package train

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retortml/retort/dialog"
	"github.com/retortml/retort/model"
	"github.com/retortml/retort/model/modeltest"
)

// phasedGen counts checkpoint snapshots
type phasedGen struct {
	*modeltest.Generator
	ckpts int
}

func (p *phasedGen) Snapshot() (model.Snapshot, error) {
	p.ckpts++
	return p.Generator.Snapshot()
}

// phasedDsc tracks which validation pass is underway so tests can script
// per-epoch losses and fooling behavior. The session switches the model to
// eval mode exactly once per epoch, at validation start.
type phasedDsc struct {
	*modeltest.Discriminator
	phase      int
	ckptPhases []int
}

func (p *phasedDsc) SetTraining(training bool) {
	if !training {
		p.phase++
	}
	p.Discriminator.SetTraining(training)
}

func (p *phasedDsc) Snapshot() (model.Snapshot, error) {
	p.ckptPhases = append(p.ckptPhases, p.phase)
	return p.Discriminator.Snapshot()
}

func newPhasedModels() (*phasedGen, *phasedDsc) {
	return &phasedGen{Generator: modeltest.NewGenerator(0.1)},
		&phasedDsc{Discriminator: modeltest.NewDiscriminator(0.1)}
}

func sessionConfig(dir string, epochs int, earlyStop bool, patience int) Config {
	return Config{
		Mode:       ModeTrain,
		Device:     "cpu",
		Precision:  PrecisionFP16,
		MaxLen:     16,
		Epochs:     epochs,
		ClipNorm:   1,
		AccumSteps: 2,
		EarlyStop:  earlyStop,
		Patience:   patience,
		GenCkpt:    filepath.Join(dir, "generator.gob"),
		DscCkpt:    filepath.Join(dir, "discriminator.gob"),
		RecordPath: filepath.Join(dir, "train.json"),
		LR:         0.01,
		Seed:       3,
	}
}

func sessionLoaders(t *testing.T) (*dialog.Loader, *dialog.Loader) {
	t.Helper()
	var examples []dialog.Example
	for i := 0; i < 8; i++ {
		examples = append(examples, dialog.Example{
			Uttr: fmt.Sprintf("uttr %d", i),
			Resp: fmt.Sprintf("resp %d", i),
		})
	}
	train, err := dialog.NewLoader(examples, dialog.LoaderOptions{BatchSize: 2, Shuffle: true, Seed: 3})
	require.NoError(t, err)
	valid, err := dialog.NewLoader(examples[:4], dialog.LoaderOptions{BatchSize: 2, Seed: 3})
	require.NoError(t, err)
	return train, valid
}

func TestSessionCompletes(t *testing.T) {
	dir, err := ioutil.TempDir("", "session")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	gen, dsc := newPhasedModels()
	trainLoader, validLoader := sessionLoaders(t)
	cfg := sessionConfig(dir, 3, false, 0)

	var out bytes.Buffer
	session, err := NewSession(cfg, gen, dsc, trainLoader, validLoader)
	require.NoError(t, err)
	session.Output = &out

	assert.Equal(t, Idle, session.State())

	state, err := session.Run()
	require.NoError(t, err)
	assert.Equal(t, Completed, state)
	assert.Equal(t, Completed, session.State())

	records := session.Records()
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, i+1, r.Epoch)
		// the perfect default discriminator is never fooled: the
		// generator loss is the defined clamped extreme, not Inf
		assert.Equal(t, round3(math.Log(4)), r.GenTrainLoss)
		assert.False(t, math.IsInf(r.GenValidLoss, 0))
		assert.NotEmpty(t, r.EpochTime)
	}

	// record log is flushed once at the terminal transition
	got, err := ReadRecords(cfg.RecordPath)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	// equal-or-better losses re-checkpoint both models every epoch
	assert.Equal(t, 3, gen.ckpts)
	assert.Equal(t, []int{1, 2, 3}, dsc.ckptPhases)

	assert.Contains(t, out.String(), "Epoch 1/3")
	assert.Contains(t, out.String(), "Generator Train Loss")
	assert.NotContains(t, out.String(), "early stopped")
}

func TestSessionCheckpointMonotonicity(t *testing.T) {
	dir, err := ioutil.TempDir("", "session")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	gen, dsc := newPhasedModels()

	// validation losses 0.9, 0.95, 0.7 must checkpoint at epochs 1 and 3 only
	script := []float64{0.9, 0.95, 0.7}
	dsc.Discriminator.LossOf = func(scores, labels []float64) float64 {
		idx := dsc.phase - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(script) {
			idx = len(script) - 1
		}
		return script[idx]
	}

	trainLoader, validLoader := sessionLoaders(t)
	session, err := NewSession(sessionConfig(dir, 3, false, 0), gen, dsc, trainLoader, validLoader)
	require.NoError(t, err)
	session.Output = ioutil.Discard

	state, err := session.Run()
	require.NoError(t, err)
	assert.Equal(t, Completed, state)
	assert.Equal(t, []int{1, 3}, dsc.ckptPhases)

	ckpt, err := ReadCheckpoint(filepath.Join(dir, "discriminator.gob"))
	require.NoError(t, err)
	assert.Equal(t, 3, ckpt.Epoch)
}

func TestSessionEarlyStops(t *testing.T) {
	dir, err := ioutil.TempDir("", "session")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	gen, dsc := newPhasedModels()

	// every fake fools the discriminator in the first validation pass and
	// none afterwards, so the generator never improves again
	dsc.Discriminator.ScoreOf = func(text string, label float64) float64 {
		if label == 0 && dsc.phase == 1 {
			return 0.9
		}
		return label
	}

	trainLoader, validLoader := sessionLoaders(t)
	cfg := sessionConfig(dir, 10, true, 2)

	var out bytes.Buffer
	session, err := NewSession(cfg, gen, dsc, trainLoader, validLoader)
	require.NoError(t, err)
	session.Output = &out

	state, err := session.Run()
	require.NoError(t, err)
	assert.Equal(t, EarlyStopped, state)

	// patience 2 after the epoch-1 improvement: epochs 2 and 3 burn it
	require.Len(t, session.Records(), 3)
	assert.Contains(t, out.String(), "early stopped")

	// the record log holds the epochs actually run, never the configured max
	records, err := ReadRecords(cfg.RecordPath)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestSessionPatienceResetOnImprovement(t *testing.T) {
	dir, err := ioutil.TempDir("", "session")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	gen, dsc := newPhasedModels()

	// the generator improves in validation passes 1 and 3, so the patience
	// that epoch 2 burned is restored before epochs 4 and 5 exhaust it
	fool := map[int]bool{1: true, 3: true}
	dsc.Discriminator.ScoreOf = func(text string, label float64) float64 {
		if label == 0 && fool[dsc.phase] {
			return 0.9
		}
		return label
	}

	trainLoader, validLoader := sessionLoaders(t)
	session, err := NewSession(sessionConfig(dir, 10, true, 2), gen, dsc, trainLoader, validLoader)
	require.NoError(t, err)
	session.Output = ioutil.Discard

	state, err := session.Run()
	require.NoError(t, err)
	assert.Equal(t, EarlyStopped, state)
	assert.Len(t, session.Records(), 5)
}

func TestSessionRunsOnlyOnce(t *testing.T) {
	dir, err := ioutil.TempDir("", "session")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	gen, dsc := newPhasedModels()
	trainLoader, validLoader := sessionLoaders(t)
	session, err := NewSession(sessionConfig(dir, 1, false, 0), gen, dsc, trainLoader, validLoader)
	require.NoError(t, err)
	session.Output = ioutil.Discard

	_, err = session.Run()
	require.NoError(t, err)
	_, err = session.Run()
	require.Error(t, err, "no resumption from a terminal state")
}

func TestNewSessionValidates(t *testing.T) {
	gen, dsc := newPhasedModels()
	trainLoader, validLoader := sessionLoaders(t)

	cfg := sessionConfig("/tmp", 3, false, 0)
	cfg.Mode = "bogus"
	_, err := NewSession(cfg, gen, dsc, trainLoader, validLoader)
	require.Error(t, err)

	cfg = sessionConfig("/tmp", 3, false, 0)
	_, err = NewSession(cfg, gen, dsc, nil, validLoader)
	require.Error(t, err)
}
