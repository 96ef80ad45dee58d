package dialog

import (
	"path/filepath"

	"github.com/retortml/retort/errors"
	"github.com/retortml/retort/serialization"
)

// Example is one conversational exchange: the utterance a speaker produced
// and the response that actually followed it. Pred carries a pre-generated
// negative response and is only present in discriminator pretraining corpora.
type Example struct {
	Uttr string `json:"uttr"`
	Resp string `json:"resp"`
	Pred string `json:"pred,omitempty"`
}

// Valid returns nil if the example has the required fields
func (e Example) Valid() error {
	if e.Uttr == "" {
		return errors.Errorf("missing uttr field")
	}
	if e.Resp == "" {
		return errors.Errorf("missing resp field")
	}
	return nil
}

// LoadExamples reads a JSON array of examples from the provided path and
// validates every record before returning, so malformed corpora surface
// before any training iteration begins.
func LoadExamples(path string) ([]Example, error) {
	var examples []Example
	if err := serialization.Decode(path, &examples); err != nil {
		return nil, errors.Wrapf(err, "unable to load examples from %s", path)
	}
	if len(examples) == 0 {
		return nil, errors.Errorf("no examples found in %s", path)
	}
	for i, ex := range examples {
		if err := ex.Valid(); err != nil {
			return nil, errors.Wrapf(err, "invalid record %d in %s", i, path)
		}
	}
	return examples, nil
}

// SplitSizes controls how many examples are held out from the tail of the
// corpus for the validation and test splits; everything before the held-out
// tail becomes the training split.
type SplitSizes struct {
	Valid int
	Test  int
}

// SaveSplits partitions the examples into train/valid/test files under dir
func SaveSplits(dir string, examples []Example, sizes SplitSizes) error {
	held := sizes.Valid + sizes.Test
	if held <= 0 {
		return errors.Errorf("split sizes must be positive")
	}
	if len(examples) <= held {
		return errors.Errorf("%d examples cannot cover %d held-out records", len(examples), held)
	}

	cut := len(examples) - held
	splits := map[string][]Example{
		"train": examples[:cut],
		"valid": examples[cut : cut+sizes.Valid],
		"test":  examples[cut+sizes.Valid:],
	}

	for name, split := range splits {
		path := filepath.Join(dir, name+".json")
		if err := serialization.Encode(path, split); err != nil {
			return errors.Wrapf(err, "unable to write %s split", name)
		}
	}
	return nil
}
