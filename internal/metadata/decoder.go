// Package metadata decodes package descriptors extracted from archives.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/ralt/condainspect/internal/models"
)

// Decode parses index.json content into a record. The content must be valid
// UTF-8 holding a single JSON object. Only syntax and field types are
// checked; unknown keys are kept.
func Decode(data []byte) (*models.IndexJSON, error) {
	if !utf8.Valid(data) {
		return nil, models.Errorf(models.ErrMalformedMetadata,
			"index.json is not valid UTF-8 (at byte %d)", firstInvalidUTF8(data))
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, models.Errorf(models.ErrMalformedMetadata, "index.json is empty")
	}
	if trimmed[0] != '{' {
		return nil, models.Errorf(models.ErrMalformedMetadata,
			"index.json must hold a JSON object, found %q", trimmed[0])
	}

	// Checked separately so syntax errors carry their offset
	var raw json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, models.NewError(models.ErrMalformedMetadata, fmt.Errorf("invalid JSON: %w", err))
	}

	record := &models.IndexJSON{}
	if err := json.Unmarshal(trimmed, record); err != nil {
		return nil, models.NewError(models.ErrMalformedMetadata, fmt.Errorf("invalid index.json: %w", err))
	}

	return record, nil
}

func firstInvalidUTF8(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}
