package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MalformedResponseError means model text did not decode to the expected
// JSON. Cleaned carries the fence-stripped text for diagnostics; it is
// surfaced to the caller rather than hidden behind a generic message.
type MalformedResponseError struct {
	Cleaned string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// CleanJSON strips markdown code fences from the start and end of model
// output. Models routinely wrap JSON in ```json ... ``` despite
// instructions not to. Idempotent: already-clean text passes through.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "\n")
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
	}

	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "`"))
}

// ParseJSON cleans raw model output and decodes it as a strict JSON
// object. There is no partial recovery: anything that does not decode is
// a *MalformedResponseError carrying the cleaned text.
func ParseJSON(raw string) (map[string]any, error) {
	clean := CleanJSON(raw)

	var out map[string]any
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, &MalformedResponseError{Cleaned: clean, Err: err}
	}
	return out, nil
}

// DecodeJSON cleans raw model output and decodes it into v. Same failure
// contract as ParseJSON.
func DecodeJSON(raw string, v any) error {
	clean := CleanJSON(raw)
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return &MalformedResponseError{Cleaned: clean, Err: err}
	}
	return nil
}
