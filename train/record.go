package train

import (
	"fmt"
	"math"
	"time"

	"github.com/retortml/retort/errors"
	"github.com/retortml/retort/serialization"
)

// EpochRecord is one row of the training log, appended per completed epoch
// independently of any checkpointing decision. Losses are rounded to three
// decimal places before recording.
type EpochRecord struct {
	Epoch        int     `json:"epoch"`
	GenTrainLoss float64 `json:"g_train_loss"`
	GenValidLoss float64 `json:"g_valid_loss"`
	DscTrainLoss float64 `json:"d_train_loss"`
	DscValidLoss float64 `json:"d_valid_loss"`
	GenLR        float64 `json:"g_lr"`
	DscLR        float64 `json:"d_lr"`
	EpochTime    string  `json:"epoch_time"`
}

// writeRecords flushes the full record sequence as one JSON array
func writeRecords(path string, records []EpochRecord) error {
	if err := serialization.Encode(path, records); err != nil {
		return errors.Wrapf(err, "unable to write training records to %s", path)
	}
	return nil
}

// ReadRecords loads a record log written by a previous session
func ReadRecords(path string) ([]EpochRecord, error) {
	var records []EpochRecord
	if err := serialization.Decode(path, &records); err != nil {
		return nil, errors.Wrapf(err, "unable to read training records from %s", path)
	}
	return records, nil
}

// measureTime renders an epoch duration as minutes and seconds
func measureTime(start, end time.Time) string {
	elapsed := end.Sub(start)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) - mins*60
	return fmt.Sprintf("%dm %ds", mins, secs)
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
