package client

import (
	"bytes"
	"encoding/json"
)

// Result is the JSON payload of a model call: the model's result or an
// {"error": ...} object.
type Result json.RawMessage

// emptyResult is returned for inputs rejected before any RPC.
var emptyResult = Result(`{}`)

// Err returns the in-band error, or nil when r is a model result.
func (r Result) Err() error {
	if msg, ok := r.errorMessage(); ok {
		return &RemoteError{Message: msg}
	}
	return nil
}

func (r Result) errorMessage() (string, bool) {
	trimmed := bytes.TrimSpace(r)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var payload struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil || payload.Error == nil {
		return "", false
	}
	return *payload.Error, true
}

// IsEmpty reports whether r is the empty object returned for bad input.
func (r Result) IsEmpty() bool {
	return bytes.Equal(bytes.TrimSpace(r), emptyResult)
}

// Decode unmarshals the payload into v.
func (r Result) Decode(v any) error { return json.Unmarshal(r, v) }

func (r Result) String() string { return string(r) }

// MarshalJSON keeps Result embeddable in other JSON documents.
func (r Result) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}
