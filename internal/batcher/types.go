package batcher

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Key identifies which pending batch a submission joins.
// Two submissions with the same key in the same open window land in
// the same batch.
type Key struct {
	Intent string
	Role   string
}

// String returns the key in intent:role form
func (k Key) String() string {
	return k.Intent + ":" + k.Role
}

// Result is the outcome delivered to one submitter. Err carries a
// per-member domain failure; Payload is the raw result value.
type Result struct {
	Payload json.RawMessage
	Err     error
}

// Handler executes one upstream call for a whole batch. It must return
// one Result per payload, in the same order the payloads were
// submitted. A non-nil error fails every member of the batch.
type Handler func(ctx context.Context, key Key, payloads []json.RawMessage) ([]Result, error)

// SingleFunc processes one payload individually when no batch handler
// is registered for an intent. It still goes through the resource pool.
type SingleFunc func(ctx context.Context, key Key, payload json.RawMessage) (json.RawMessage, error)

var (
	// ErrWaitTimeout is returned when a caller waited past its deadline
	// for its own result
	ErrWaitTimeout = errors.New("batcher: timed out waiting for batch result")

	// ErrHandlerFailed is returned to every member of a batch whose
	// handler failed
	ErrHandlerFailed = errors.New("batcher: batch handler failed")

	// ErrNoHandler is returned when an intent has neither a batch
	// handler nor a fallback
	ErrNoHandler = errors.New("batcher: no handler registered for intent")
)

type batchState int

const (
	stateOpen batchState = iota
	stateFlushing
	stateDone
)

// member pairs one submission with its result slot. The slot is a
// single-assignment channel: written exactly once by the flush owner,
// read at most once by the original caller.
type member struct {
	payload json.RawMessage
	slot    chan Result
}

// batch accumulates members for one key. State transitions
// (Open -> Flushing -> Done) happen only under the coalescer mutex;
// once Flushing, no member may be appended.
type batch struct {
	key     Key
	members []*member
	state   batchState
	timer   *time.Timer
}
