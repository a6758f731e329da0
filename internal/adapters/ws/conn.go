// Package ws adapts a gorilla/websocket connection to the relay's push
// client interface: inbound frames become relay commands, outbound events
// become typed JSON envelopes.
package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

// pushEnvelope is the outbound wire format.
type pushEnvelope struct {
	Type      string   `json:"type"`
	Text      string   `json:"text,omitempty"`
	Users     []string `json:"users,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Conn wraps one websocket connection. It implements core.PushClient: a
// push that cannot be queued (client not draining) or lands on a closed
// connection reports failure, which the broadcaster treats as the endpoint
// being gone.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, send: make(chan []byte, 32)}
}

func (c *Conn) ReceiveMessage(text string) error {
	return c.push(pushEnvelope{Type: "message", Text: text})
}

func (c *Conn) UpdateUserList(names []string) error {
	return c.push(pushEnvelope{Type: "user_list", Users: names})
}

func (c *Conn) NotifyChatStarted(timestamp string) error {
	return c.push(pushEnvelope{Type: "chat_started", Timestamp: timestamp})
}

func (c *Conn) NotifyChatEnded(timestamp string) error {
	return c.push(pushEnvelope{Type: "chat_ended", Timestamp: timestamp})
}

func (c *Conn) push(env pushEnvelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.trySend(b)
}

func (c *Conn) trySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

func (c *Conn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
