package backend

import (
	"context"
	"encoding/json"
	"time"

	"livegate/internal/batcher"
	"livegate/internal/pool"
)

// Intent types served by the live-data source
const (
	IntentClaimStatus    = "claim_status"
	IntentPaymentStatus  = "payment_status"
	IntentPensionInquiry = "pension_inquiry"
)

// Intents lists the intents registered at startup
func Intents() []string {
	return []string{IntentClaimStatus, IntentPaymentStatus, IntentPensionInquiry}
}

// BatchHandler returns a batch handler that resolves a whole batch
// with one upstream call, holding a single pool ticket for its
// duration. The ticket is released on every exit path.
func BatchHandler(c *Client, p *pool.Pool, timeout time.Duration) batcher.Handler {
	return func(ctx context.Context, key batcher.Key, payloads []json.RawMessage) ([]batcher.Result, error) {
		ticket, err := p.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer ticket.Release()

		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := c.Fetch(fetchCtx, key.Intent, key.Role, payloads)
		if err != nil {
			return nil, err
		}
		if resp.HasError() {
			return nil, resp.Error
		}

		results := make([]batcher.Result, len(resp.Results))
		for i, el := range resp.Results {
			if el.HasError() {
				results[i] = batcher.Result{Err: el.Error}
			} else {
				results[i] = batcher.Result{Payload: el.Value}
			}
		}
		return results, nil
	}
}

// SingleHandler returns the fallback path for intents without a batch
// handler: one ref per upstream call, still bounded by the pool.
func SingleHandler(c *Client, p *pool.Pool, timeout time.Duration) batcher.SingleFunc {
	return func(ctx context.Context, key batcher.Key, payload json.RawMessage) (json.RawMessage, error) {
		ticket, err := p.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer ticket.Release()

		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := c.Fetch(fetchCtx, key.Intent, key.Role, []json.RawMessage{payload})
		if err != nil {
			return nil, err
		}
		if resp.HasError() {
			return nil, resp.Error
		}

		el := resp.Results[0]
		if el.HasError() {
			return nil, el.Error
		}
		return el.Value, nil
	}
}
