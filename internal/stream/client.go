package stream

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// sendBufferSize bounds the per-connection outbound queue. A consumer that
// falls this far behind is treated as broken and dropped.
const sendBufferSize = 256

// Client errors.
var (
	// ErrClientClosed is returned by Send after the client has been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrSendBufferFull is returned by Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client wraps one websocket connection with a buffered outbound queue.
// gorilla/websocket permits only one writer at a time, so all writes go
// through the queue and a single WritePump goroutine drains it. Send never
// blocks, which keeps fan-out from stalling on slow consumers.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewClient wraps an upgraded websocket connection. The caller must start
// WritePump in its own goroutine before expecting queued frames to be
// delivered; frames queued earlier are delivered first.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// Send queues one text frame for delivery. It never blocks: a full queue or
// a closed client fails immediately.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// SendJSON marshals v and queues it.
func (c *Client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// WritePump drains the outbound queue onto the socket. It exits when the
// client is closed or a write fails; a failed write closes the client so
// subsequent reads and sends fail fast.
func (c *Client) WritePump() {
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// ReadMessage reads the next inbound frame from the socket.
func (c *Client) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// ClosePolicyViolation sends a policy-violation close frame. Used when
// authentication fails during the handshake, before the client is registered.
func (c *Client) ClosePolicyViolation(reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	_ = c.Close()
}

// Close shuts the client down exactly once: the pump stops and the
// underlying socket is closed, which also unblocks any pending read.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
