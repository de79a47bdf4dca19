package protocol

import (
	"encoding/json"
	"fmt"
)

// Response represents the outcome of one batched call.
// On success Results carries exactly one element per request ref, in
// the same order. Error is set when the whole call failed.
type Response struct {
	Version string          `json:"v"`
	ID      int64           `json:"id"`
	Results []ResultElement `json:"results,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// HasError returns true if the whole call failed
func (r *Response) HasError() bool {
	return r.Error != nil
}

// NewResponse creates a successful response
func NewResponse(id int64, results []ResultElement) *Response {
	return &Response{
		Version: Version,
		ID:      id,
		Results: results,
	}
}

// NewErrorResponse creates a whole-call error response
func NewErrorResponse(id int64, err *Error) *Response {
	return &Response{
		Version: Version,
		ID:      id,
		Error:   err,
	}
}

// ValidateFor checks that the response matches the given request shape
func (r *Response) ValidateFor(req *Request) error {
	if r.Error != nil {
		return nil
	}
	if len(r.Results) != len(req.Refs) {
		return fmt.Errorf("result count mismatch: expected %d, got %d", len(req.Refs), len(r.Results))
	}
	return nil
}

// Bytes returns the response as JSON bytes
func (r *Response) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// ParseResponse parses a protocol response from bytes
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}
