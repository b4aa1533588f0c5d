/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Gateway delivers events to connections. Payloads are encoded before the
// call returns, so callers may keep mutating their state afterwards.
type Gateway interface {
	Subscribe(connID, roomID string)
	Broadcast(roomID, event string, payload any)
	SendTo(connID, event string, payload any)
	CloseRoom(roomID string)
}

// Dispatcher receives inbound traffic. Both methods are run on the loop.
type Dispatcher interface {
	Handle(connID string, msg ClientMessage)
	Disconnect(connID string)
}

type Client struct {
	id   string
	room string
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks websocket clients and the room each one is subscribed to.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	loop *Loop
	log  zerolog.Logger
}

func NewHub(loop *Loop, logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		loop:    loop,
		log:     logger.With().Str("component", "gateway").Logger(),
	}
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Type: event, Data: payload})
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
}

// unregister removes c and closes its send channel. It is safe to call
// more than once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *Client) {
	if current, ok := h.clients[c.id]; !ok || current != c {
		return
	}

	h.unsubscribeLocked(c)
	delete(h.clients, c.id)
	close(c.send)
}

func (h *Hub) unsubscribeLocked(c *Client) {
	if c.room == "" {
		return
	}

	if members, ok := h.rooms[c.room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}

	c.room = ""
}

func (h *Hub) Subscribe(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}

	h.unsubscribeLocked(c)

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[connID] = c
	c.room = roomID
}

func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.rooms[roomID] {
		c.room = ""
	}
	delete(h.rooms, roomID)
}

func (h *Hub) Broadcast(roomID, event string, payload any) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[roomID]

	// dropLocked mutates members, so iterate over a copy.
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		h.deliverLocked(members[id], data)
	}
}

func (h *Hub) SendTo(connID, event string, payload any) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[connID]; ok {
		h.deliverLocked(c, data)
	}
}

// deliverLocked queues data for c, dropping the client if it can't keep up.
func (h *Hub) deliverLocked(c *Client, data []byte) {
	if c == nil {
		return
	}

	select {
	case c.send <- data:
	default:
		h.log.Warn().Str("connection_id", c.id).Msg("send buffer full, dropping client")
		h.dropLocked(c)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

func newUpgrader(cfg *Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(cfg.corsOrigins, "*") {
				return true
			}

			return slices.Contains(cfg.corsOrigins, origin)
		},
	}
}

func serveWS(cfg *Config, hub *Hub, d Dispatcher) httprouter.Handle {
	upgrader := newUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Debug().Err(err).Str("remote", realIP(r)).Msg("upgrade failed")
			return
		}

		c := &Client{
			id:   uuid.NewString(),
			conn: conn,
			send: make(chan []byte, sendBuffer),
		}

		hub.register(c)

		hub.log.Debug().
			Str("connection_id", c.id).
			Str("remote", realIP(r)).
			Msg("client connected")

		go c.writePump(hub)
		c.readPump(cfg, hub, d)
	}
}

func (c *Client) readPump(cfg *Config, h *Hub, d Dispatcher) {
	defer func() {
		h.unregister(c)
		h.loop.Post(func() {
			d.Disconnect(c.id)
		})
		_ = c.conn.Close()

		h.log.Debug().Str("connection_id", c.id).Msg("client disconnected")
	}()

	c.conn.SetReadLimit(cfg.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("connection_id", c.id).Msg("unexpected close")
			}
			return
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := decodeClientMessage(data)
		if err != nil {
			h.SendTo(c.id, evtError, ErrorMessage{Message: err.Error()})
			continue
		}

		h.loop.Post(func() {
			d.Handle(c.id, msg)
		})
	}
}

func (c *Client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug().Err(err).Str("connection_id", c.id).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
