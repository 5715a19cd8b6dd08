package finetune

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type trainingRecord struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

func processTrainingData(pairs []TrainingPair, promptSuffix, completionSuffix string) []trainingRecord {
	records := make([]trainingRecord, 0, len(pairs))
	for _, pair := range pairs {
		records = append(records, trainingRecord{
			Prompt:     pair.Prompt + promptSuffix,
			Completion: pair.Completion + completionSuffix,
		})
	}
	return records
}

// SerializeJSONL writes one JSON object per line. The output only depends on the
// records, so identical datasets always hash to the same filename.
func SerializeJSONL[T any](records []T) ([]byte, error) {
	// assume at least 10 bytes per record
	buf := bytes.NewBuffer(make([]byte, 0, len(records)*10))

	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)

	for i, record := range records {
		if err := encoder.Encode(record); err != nil {
			return nil, fmt.Errorf("error encoding training record %d: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

func serializeTrainingData(pairs []TrainingPair, promptSuffix, completionSuffix string) ([]byte, error) {
	return SerializeJSONL(processTrainingData(pairs, promptSuffix, completionSuffix))
}
