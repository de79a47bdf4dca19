package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livegate/internal/protocol"
)

// Client owns a WebSocket session to the live-data source and
// multiplexes request/response pairs on it by correlation ID. Sessions
// to the source are scarce; the resource pool bounds how many calls
// are in flight, the client only carries them over the wire.
type Client struct {
	url    string
	logger zerolog.Logger

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	pending   map[int64]chan *protocol.Response
	pendingMu sync.Mutex
	reqID     int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a client for the given WebSocket URL
func NewClient(url string, logger zerolog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:     url,
		logger:  logger.With().Str("component", "backend").Logger(),
		pending: make(map[int64]chan *protocol.Response),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect establishes the WebSocket session and starts the reader
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	if c.conn != nil {
		c.connMu.Unlock()
		return nil
	}
	c.connMu.Unlock()

	c.logger.Info().Str("url", c.url).Msg("connecting to live-data source")
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info().Msg("connected")
	c.wg.Add(1)
	go c.readLoop()
	return nil
}

// Connected returns true if the session is established
func (c *Client) Connected() bool {
	c.connMu.RLock()
	ok := c.conn != nil
	c.connMu.RUnlock()
	return ok
}

// Fetch issues one batched call and waits for the matching response.
// The response carries exactly one result element per ref, in order;
// a count mismatch is surfaced as an error.
func (c *Client) Fetch(ctx context.Context, intent, role string, refs []json.RawMessage) (*protocol.Response, error) {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	reqID := atomic.AddInt64(&c.reqID, 1)
	respChan := make(chan *protocol.Response, 1)

	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()

	req := protocol.NewRequest(reqID, intent, role, refs)
	reqBytes, err := req.Bytes()
	if err != nil {
		c.dropPending(reqID)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.writeMu.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, reqBytes)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.dropPending(reqID)
		return nil, fmt.Errorf("failed to send request: %w", writeErr)
	}

	select {
	case resp := <-respChan:
		if resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		if err := resp.ValidateFor(req); err != nil {
			return nil, err
		}
		return resp, nil
	case <-ctx.Done():
		c.dropPending(reqID)
		return nil, ctx.Err()
	}
}

func (c *Client) dropPending(reqID int64) {
	c.pendingMu.Lock()
	delete(c.pending, reqID)
	c.pendingMu.Unlock()
}

// readLoop routes incoming responses to their pending callers
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.logger.Error().Err(err).Msg("read failed")
			}
			c.failPending()
			return
		}

		resp, err := protocol.ParseResponse(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("unparseable response frame")
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()

		if !ok {
			c.logger.Warn().Int64("id", resp.ID).Msg("response with no pending request")
			continue
		}
		ch <- resp
	}
}

// failPending wakes every in-flight caller with a closed channel
func (c *Client) failPending() {
	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[int64]chan *protocol.Response)
	c.pendingMu.Unlock()
}

// Close shuts down the session
func (c *Client) Close() {
	c.cancel()
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.failPending()
	c.wg.Wait()
	c.logger.Info().Msg("disconnected")
}
