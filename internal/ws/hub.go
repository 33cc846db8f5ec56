// Package ws keeps the registry of live WebSocket connections per session
// and pushes review events to them.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bank-report-review/internal/events"
	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/session"
)

const (
	writeWait   = 10 * time.Second
	authWait    = 10 * time.Second
	sendBuffer  = 16
	maxReadSize = 4096
)

// Conn is one authenticated client connection.  Writes go through a
// buffered channel drained by a single writer goroutine.
type Conn struct {
	ws       *websocket.Conn
	session  string
	identity model.Identity
	send     chan []byte
	once     sync.Once
	done     chan struct{}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub maps session ids to their open connections.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
	log   logrus.FieldLogger

	// OnChange, when set, receives the number of open connections after
	// each register or unregister.
	OnChange func(open int)
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{conns: map[string]map[*Conn]struct{}{}, log: log}
}

// Register adds c under its session.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	set, ok := h.conns[c.session]
	if !ok {
		set = map[*Conn]struct{}{}
		h.conns[c.session] = set
	}
	set[c] = struct{}{}
	n := h.countLocked()
	h.mu.Unlock()
	h.changed(n)
}

// Unregister removes c.  Unknown connections are ignored.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	if set, ok := h.conns[c.session]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.session)
		}
	}
	n := h.countLocked()
	h.mu.Unlock()
	c.close()
	h.changed(n)
}

// Broadcast queues ev on every open connection.  A connection whose buffer
// is full is skipped for this event.
func (h *Hub) Broadcast(ev events.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).WithField("event", ev.Type).Error("ws: marshal event failed")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.conns {
		for c := range set {
			select {
			case c.send <- msg:
			default:
				h.log.WithField("user", c.identity.Username).Warn("ws: send buffer full, dropping event")
			}
		}
	}
}

// CloseSession closes every connection bound to session sid and returns
// how many were closed.
func (h *Hub) CloseSession(sid string) int {
	h.mu.Lock()
	set := h.conns[sid]
	delete(h.conns, sid)
	n := h.countLocked()
	h.mu.Unlock()
	for c := range set {
		c.close()
	}
	if len(set) > 0 {
		h.changed(n)
	}
	return len(set)
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

// Sessions returns the number of connections per session id.
func (h *Hub) Sessions() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.conns))
	for sid, set := range h.conns {
		out[sid] = len(set)
	}
	return out
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.conns {
		n += len(set)
	}
	return n
}

func (h *Hub) changed(n int) {
	if h.OnChange != nil {
		h.OnChange(n)
	}
}

type authMessage struct {
	Token string `json:"token"`
}

var errNoToken = errors.New("missing token")

// Serve runs the session-authenticated protocol on an upgraded connection:
// the first text frame must be {"token": ...}.  An invalid or missing token
// is answered with a policy-violation close frame.  Otherwise the
// connection is registered, acknowledged with {"type":"connected"} and
// kept open until the client leaves or the session ends.  Serve returns
// when the connection is closed.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, store session.Store) error {
	defer conn.Close()
	conn.SetReadLimit(maxReadSize)

	_ = conn.SetReadDeadline(time.Now().Add(authWait))
	rec, err := authenticate(ctx, conn, store)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return err
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &Conn{
		ws:       conn,
		session:  rec.ID,
		identity: rec.Identity(),
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	h.Register(c)
	defer h.Unregister(c)

	ack, _ := json.Marshal(map[string]any{"type": "connected", "user": c.identity})
	c.send <- ack

	// reads are drained only to notice the client going away
	go func() {
		defer c.close()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		}
	}
}

func authenticate(ctx context.Context, conn *websocket.Conn, store session.Store) (model.SessionRecord, error) {
	typ, raw, err := conn.ReadMessage()
	if err != nil {
		return model.SessionRecord{}, err
	}
	if typ != websocket.TextMessage {
		return model.SessionRecord{}, errNoToken
	}
	var m authMessage
	if err := json.Unmarshal(raw, &m); err != nil || m.Token == "" {
		return model.SessionRecord{}, errNoToken
	}
	return store.Lookup(ctx, m.Token)
}
