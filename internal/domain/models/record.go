package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one unit of output data: an analysis result, a poll sample, a trade event.
// There is no fixed schema; required keys are checked per call site.
type Record map[string]any

// Batch is an ordered sequence of records submitted together.
type Batch []Record

// Has reports whether every key is present in the record.
func (r Record) Has(keys ...string) bool {
	if r == nil {
		return false
	}
	for _, k := range keys {
		if _, ok := r[k]; !ok {
			return false
		}
	}
	return true
}

// Pretty renders the record as indented JSON, the format used by the log and stdout sinks.
func (r Record) Pretty() (string, error) {
	b, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(b), nil
}

// Keys returns the record keys, useful for logging a payload without its values.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	return keys
}

// DecodeBatch parses a queue or HTTP payload into a batch.
// Accepts a JSON array of objects or a single JSON object.
func DecodeBatch(b []byte) (Batch, error) {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrValidation)
	}

	if trimmed[0] == '{' {
		var r Record
		if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		return Batch{r}, nil
	}

	var batch Batch
	if err := json.Unmarshal([]byte(trimmed), &batch); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return batch, nil
}
