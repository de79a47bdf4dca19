package protocol

import (
	"encoding/json"
	"fmt"
)

// Request represents one batched call to the live-data source.
// Refs carries one opaque reference per original caller, in submission order.
type Request struct {
	Version string            `json:"v"`
	ID      int64             `json:"id"`
	Intent  string            `json:"intent"`
	Role    string            `json:"role"`
	Refs    []json.RawMessage `json:"refs"`
}

// NewRequest creates a new protocol request
func NewRequest(id int64, intent, role string, refs []json.RawMessage) *Request {
	return &Request{
		Version: Version,
		ID:      id,
		Intent:  intent,
		Role:    role,
		Refs:    refs,
	}
}

// Validate checks if the request is valid
func (r *Request) Validate() error {
	if r.Version != Version {
		return fmt.Errorf("invalid protocol version: %s", r.Version)
	}
	if r.Intent == "" {
		return fmt.Errorf("intent is required")
	}
	if len(r.Refs) == 0 {
		return fmt.Errorf("at least one ref is required")
	}
	return nil
}

// Bytes returns the request as JSON bytes
func (r *Request) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// ParseRequest parses a protocol request from bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}
