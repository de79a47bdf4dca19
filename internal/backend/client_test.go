package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livegate/internal/batcher"
	"livegate/internal/pool"
	"livegate/internal/protocol"
)

// newSourceServer runs a WebSocket server that answers each protocol
// request with respond(req)
func newSourceServer(t *testing.T, respond func(req *protocol.Request) *protocol.Response) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			req, err := protocol.ParseRequest(data)
			if err != nil {
				continue
			}
			out, err := respond(req).Bytes()
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echoSource returns one value element per ref, echoing the ref.
// Refs equal to "bad" get a per-ref not-found error instead.
func echoSource(req *protocol.Request) *protocol.Response {
	results := make([]protocol.ResultElement, len(req.Refs))
	for i, ref := range req.Refs {
		if string(ref) == `"bad"` {
			results[i] = protocol.ResultElement{Error: protocol.ErrNotFound}
		} else {
			results[i] = protocol.ResultElement{Value: ref}
		}
	}
	return protocol.NewResponse(req.ID, results)
}

func newConnectedClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(wsURL(srv), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestClient_FetchOrdered(t *testing.T) {
	srv := newSourceServer(t, echoSource)
	c := newConnectedClient(t, srv)

	refs := []json.RawMessage{
		json.RawMessage(`"CLM-001"`),
		json.RawMessage(`"CLM-002"`),
		json.RawMessage(`"CLM-003"`),
	}

	resp, err := c.Fetch(context.Background(), IntentClaimStatus, "beneficiary", refs)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(resp.Results) != len(refs) {
		t.Fatalf("got %d results, want %d", len(resp.Results), len(refs))
	}
	for i, el := range resp.Results {
		if string(el.Value) != string(refs[i]) {
			t.Errorf("result %d = %s, want %s", i, el.Value, refs[i])
		}
	}
}

func TestClient_FetchCountMismatch(t *testing.T) {
	srv := newSourceServer(t, func(req *protocol.Request) *protocol.Response {
		return protocol.NewResponse(req.ID, []protocol.ResultElement{
			{Value: json.RawMessage(`"only-one"`)},
		})
	})
	c := newConnectedClient(t, srv)

	refs := []json.RawMessage{json.RawMessage(`"a"`), json.RawMessage(`"b"`)}
	_, err := c.Fetch(context.Background(), IntentClaimStatus, "beneficiary", refs)
	if err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestClient_FetchContextCancelled(t *testing.T) {
	// a server that never answers
	srv := newSourceServer(t, func(req *protocol.Request) *protocol.Response {
		time.Sleep(time.Second)
		return protocol.NewErrorResponse(req.ID, protocol.ErrUnavailable)
	})
	c := newConnectedClient(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, IntentClaimStatus, "beneficiary", []json.RawMessage{json.RawMessage(`"a"`)})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestBatchHandler_MapsPerRefErrors(t *testing.T) {
	srv := newSourceServer(t, echoSource)
	c := newConnectedClient(t, srv)

	p := pool.New(1, time.Second, zerolog.Nop())
	handler := BatchHandler(c, p, time.Second)

	payloads := []json.RawMessage{
		json.RawMessage(`"CLM-001"`),
		json.RawMessage(`"bad"`),
		json.RawMessage(`"CLM-002"`),
	}

	results, err := handler(context.Background(), batcher.Key{Intent: IntentClaimStatus, Role: "beneficiary"}, payloads)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	if results[0].Err != nil || string(results[0].Payload) != `"CLM-001"` {
		t.Errorf("result 0 = %+v", results[0])
	}
	var perr *protocol.Error
	if !errors.As(results[1].Err, &perr) || perr.Code != protocol.CodeNotFound {
		t.Errorf("result 1 err = %v, want protocol not-found", results[1].Err)
	}
	if results[2].Err != nil || string(results[2].Payload) != `"CLM-002"` {
		t.Errorf("result 2 = %+v", results[2])
	}

	// ticket released on the success path
	if inUse := p.InUse(); inUse != 0 {
		t.Errorf("InUse = %d after handler, want 0", inUse)
	}
}

func TestBatchHandler_WholeCallError(t *testing.T) {
	srv := newSourceServer(t, func(req *protocol.Request) *protocol.Response {
		return protocol.NewErrorResponse(req.ID, protocol.ErrUnavailable)
	})
	c := newConnectedClient(t, srv)

	p := pool.New(1, time.Second, zerolog.Nop())
	handler := BatchHandler(c, p, time.Second)

	_, err := handler(context.Background(), batcher.Key{Intent: IntentPaymentStatus, Role: "employer"},
		[]json.RawMessage{json.RawMessage(`"PAY-001"`)})

	var perr *protocol.Error
	if !errors.As(err, &perr) || perr.Code != protocol.CodeUnavailable {
		t.Fatalf("err = %v, want protocol unavailable", err)
	}

	// ticket released on the failure path too
	if inUse := p.InUse(); inUse != 0 {
		t.Errorf("InUse = %d after failed handler, want 0", inUse)
	}
}

func TestSingleHandler(t *testing.T) {
	srv := newSourceServer(t, echoSource)
	c := newConnectedClient(t, srv)

	p := pool.New(1, time.Second, zerolog.Nop())
	single := SingleHandler(c, p, time.Second)

	key := batcher.Key{Intent: IntentPensionInquiry, Role: "beneficiary"}

	result, err := single(context.Background(), key, json.RawMessage(`"PEN-001"`))
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	if string(result) != `"PEN-001"` {
		t.Errorf("result = %s, want \"PEN-001\"", result)
	}

	_, err = single(context.Background(), key, json.RawMessage(`"bad"`))
	var perr *protocol.Error
	if !errors.As(err, &perr) || perr.Code != protocol.CodeNotFound {
		t.Errorf("err = %v, want protocol not-found", err)
	}

	if inUse := p.InUse(); inUse != 0 {
		t.Errorf("InUse = %d, want 0", inUse)
	}
}
