package eventbridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is the coordinator side of the bridge stream. It yields StepEvents
// and writes StepAcks back over the same socket.
type Client struct {
	conn   *websocket.Conn
	events chan StepEvent
	logger Logger

	writeMu sync.Mutex
	done    chan struct{}
	err     error
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClientLogger overrides the client logger.
func WithClientLogger(l Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Dial connects to a bridge stream such as ws://127.0.0.1:8765/ws.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("eventbridge: dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	c := &Client{
		conn:   conn,
		events: make(chan StepEvent, defaultEventBuffer),
		logger: nopLogger{},
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	go c.readLoop()
	return c, nil
}

// Events yields events until the connection drops; the channel is then closed.
func (c *Client) Events() <-chan StepEvent {
	return c.events
}

// Done is closed once the read loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the read loop exited. Valid after Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Ack sends an acknowledgment to the kitchen.
func (c *Client) Ack(ack StepAck) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(ack); err != nil {
		return fmt.Errorf("eventbridge: send ack: %w", err)
	}
	return nil
}

// Close shuts the connection down politely.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.err = err
			}
			return
		}
		evt, err := DecodeEvent(msg)
		if err != nil {
			c.logger.Printf("eventbridge: rejected event: %v", err)
			continue
		}
		c.events <- evt
	}
}
