package train

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpochRecordRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "records")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	records := []EpochRecord{
		{
			Epoch:        1,
			GenTrainLoss: round3(1.23456),
			GenValidLoss: round3(0.99999),
			DscTrainLoss: round3(0.5004),
			DscValidLoss: round3(0.6995),
			GenLR:        1e-4,
			DscLR:        1e-5,
			EpochTime:    "3m 12s",
		},
		{Epoch: 2, GenTrainLoss: 0.5, GenValidLoss: 0.25, EpochTime: "0m 2s"},
	}

	path := filepath.Join(dir, "train.json")
	require.NoError(t, writeRecords(path, records))

	got, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Equal(t, records, got, "rounded losses survive serialization exactly")
}

func TestRound3(t *testing.T) {
	assert.Equal(t, 1.235, round3(1.23456))
	assert.Equal(t, 1.0, round3(0.99999))
	assert.Equal(t, 0.5, round3(0.5004))
	assert.Equal(t, 0.7, round3(0.6995))
}

func TestMeasureTime(t *testing.T) {
	start := time.Now()
	assert.Equal(t, "3m 12s", measureTime(start, start.Add(3*time.Minute+12*time.Second)))
	assert.Equal(t, "0m 0s", measureTime(start, start))
	assert.Equal(t, "60m 1s", measureTime(start, start.Add(time.Hour+time.Second)))
}

func TestWriteRecordsBadPath(t *testing.T) {
	err := writeRecords("/nonexistent-dir/train.json", nil)
	require.Error(t, err)
}
