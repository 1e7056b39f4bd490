// Package mock provides an in-process fake oracle: a scripted push-channel
// transport plus scripted status/result endpoints. Used by the engine tests
// and by the CLI's --mock mode.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/verisync/verisync/internal/channel"
)

// ErrConnClosed is returned by ReadMessage after the fake connection drops.
var ErrConnClosed = errors.New("mock: connection closed")

// Conn is a fake push-channel connection. The test side injects events with
// Push and severs the link with Drop; the client side reads them through the
// channel.Conn interface.
type Conn struct {
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once

	mu          sync.Mutex
	writes      []map[string]interface{}
	onSubscribe func(correlationID string)
}

func newConn(onSubscribe func(string)) *Conn {
	return &Conn{
		incoming:    make(chan []byte, 16),
		closed:      make(chan struct{}),
		onSubscribe: onSubscribe,
	}
}

// Push delivers one raw event to the client. The event is marshaled to JSON.
func (c *Conn) Push(event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case c.incoming <- data:
		return nil
	case <-c.closed:
		return ErrConnClosed
	}
}

// Drop severs the connection; the client's read loop observes an error.
func (c *Conn) Drop() {
	c.once.Do(func() { close(c.closed) })
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.incoming:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, ErrConnClosed
	}
}

func (c *Conn) WriteJSON(v interface{}) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	c.mu.Lock()
	c.writes = append(c.writes, frame)
	hook := c.onSubscribe
	c.mu.Unlock()
	if hook != nil {
		if t, _ := frame["type"].(string); t == "subscribe" {
			if corr, _ := frame["correlationId"].(string); corr != "" {
				go hook(corr)
			}
		}
	}
	return nil
}

func (c *Conn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
		return nil
	}
}

func (c *Conn) Close() error {
	c.Drop()
	return nil
}

func (c *Conn) SetReadDeadline(t time.Time) error  { return nil }
func (c *Conn) SetWriteDeadline(t time.Time) error { return nil }
func (c *Conn) SetPongHandler(h func(string) error) {}

// Writes returns every JSON frame the client wrote, in order.
func (c *Conn) Writes() []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]interface{}, len(c.writes))
	copy(out, c.writes)
	return out
}

// ControlFrames returns the written frames of the given control type.
func (c *Conn) ControlFrames(frameType string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, f := range c.Writes() {
		if t, _ := f["type"].(string); t == frameType {
			out = append(out, f)
		}
	}
	return out
}

// Dialer hands out fake connections. FailDials makes the first n dial
// attempts fail; Block makes dials hang until the handshake deadline.
type Dialer struct {
	mu          sync.Mutex
	conns       []*Conn
	failDials   int
	block       bool
	dials       int
	onSubscribe func(correlationID string)
}

func NewDialer() *Dialer {
	return &Dialer{}
}

// FailDials makes the next n dial attempts return an error.
func (d *Dialer) FailDials(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failDials = n
}

// Block makes every dial hang until its context expires, simulating a
// stalled handshake.
func (d *Dialer) Block(block bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.block = block
}

// OnSubscribe registers a hook invoked whenever a connection sees a
// subscribe control frame.
func (d *Dialer) OnSubscribe(fn func(correlationID string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSubscribe = fn
}

func (d *Dialer) Dial(ctx context.Context, url string, header http.Header) (channel.Conn, error) {
	d.mu.Lock()
	block := d.block
	fail := d.failDials > 0
	if fail {
		d.failDials--
	}
	hook := d.onSubscribe
	d.dials++
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, fmt.Errorf("mock: dial refused")
	}

	conn := newConn(hook)
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

// Dials returns how many dial attempts were made.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// LastConn returns the most recently dialed connection, or nil.
func (d *Dialer) LastConn() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// WaitConn polls until a connection exists or the timeout elapses.
func (d *Dialer) WaitConn(timeout time.Duration) *Conn {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c := d.LastConn(); c != nil {
			return c
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// WaitConns polls until at least n connections were dialed, returning the
// latest, or nil on timeout.
func (d *Dialer) WaitConns(n int, timeout time.Duration) *Conn {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		count := len(d.conns)
		d.mu.Unlock()
		if count >= n {
			return d.LastConn()
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}
