package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// exportJSON exports entries as a JSON array
func exportJSON(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}

// exportNDJSON exports entries as newline-delimited JSON
func exportNDJSON(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return nil, fmt.Errorf("failed to encode entry: %w", err)
		}
	}

	return buf.Bytes(), nil
}
