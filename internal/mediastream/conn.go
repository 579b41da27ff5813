package mediastream

import (
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uleaarn/paahi-backend/internal/playout"
)

const writeWait = 5 * time.Second

var errConnClosed = errors.New("mediastream: connection closed")

// Conn is the outbound half of a Media Stream. Writes are serialized since
// gorilla connections allow a single concurrent writer.
type Conn struct {
	ws *websocket.Conn

	mu        sync.Mutex
	streamSID string
	closed    bool
}

func newConn(ws *websocket.Conn) *Conn { return &Conn{ws: ws} }

func (c *Conn) setStreamSID(sid string) {
	c.mu.Lock()
	c.streamSID = sid
	c.mu.Unlock()
}

// SendFrame writes one media message carrying a single frame.
func (c *Conn) SendFrame(f playout.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	msg := outboundMedia{
		Event:     EventMedia,
		StreamSID: c.streamSID,
		Media:     mediaPayload{Payload: base64.StdEncoding.EncodeToString(f.Payload)},
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

// Clear tells Twilio to drop audio it has buffered for playback.
func (c *Conn) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(outboundClear{Event: "clear", StreamSID: c.streamSID})
}

func (c *Conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.ws.Close()
}
