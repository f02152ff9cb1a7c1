package models

import (
	"fmt"
	"strings"
)

// DefaultRequiredKeys is the key set checked on every batch handed to the dispatcher.
var DefaultRequiredKeys = []string{"text"}

// ValidateRecord checks that the record exists and carries every key.
func ValidateRecord(r Record, keys []string) error {
	if r == nil {
		return fmt.Errorf("%w: record is nil", ErrValidation)
	}
	var missing []string
	for _, k := range keys {
		if _, ok := r[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing keys %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// ValidateBatch is all-or-nothing: the first bad record fails the whole batch.
func ValidateBatch(b Batch, keys []string) error {
	for i, r := range b {
		if err := ValidateRecord(r, keys); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// IsValidPayload reports whether a poll sample carries symbol and timestamp.
func IsValidPayload(r Record) bool {
	return r.Has("symbol", "timestamp")
}

// IsValidBatch reports whether every record is a valid poll sample.
func IsValidBatch(b Batch) bool {
	for _, r := range b {
		if !IsValidPayload(r) {
			return false
		}
	}
	return true
}

// IsValidTradeEvent reports whether a record is a usable paper-trade event.
func IsValidTradeEvent(r Record) bool {
	if !r.Has("symbol", "action", "quantity", "price", "timestamp") {
		return false
	}
	action, ok := r["action"].(string)
	if !ok {
		return false
	}
	switch strings.ToUpper(action) {
	case "BUY", "SELL":
		return true
	default:
		return false
	}
}
