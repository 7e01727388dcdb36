package storage

import (
	"encoding/json"
	"fmt"

	"github.com/jonathan/problem-workshop/internal/schemas"
	"github.com/jonathan/problem-workshop/internal/types"
)

// Encode returns the JSON payload every backend stores for a record.
func Encode(record *types.UserRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot encode nil record")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

// Decode validates a stored payload against the record schema and parses it,
// folding legacy layouts into the current one.
func Decode(data []byte) (*types.UserRecord, error) {
	if err := schemas.ValidateRecord(data); err != nil {
		return nil, fmt.Errorf("stored record is invalid: %w", err)
	}
	var record types.UserRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &record, nil
}
