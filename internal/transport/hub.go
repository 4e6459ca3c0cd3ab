// Package transport implements the Connection/Room contract over
// gorilla/websocket, generalizing socket.Hub from a single flat client set
// to per-room broadcast membership. Read/write pump shapes (ping/pong
// keepalive, write deadlines, bounded Send channel) are carried over from
// socket/socket.go unchanged.
package transport

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Envelope is the wire frame every inbound/outbound message is wrapped in:
// {event, payload}, generalizing ClientMessage.Type's single discriminator
// to the shared commands vocabulary.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler is invoked for each event a Client emits. event is the
// envelope's Event field; payload is the still-encoded JSON payload so the
// caller can unmarshal into the concrete type it expects.
type Handler func(c *Client, event string, payload json.RawMessage)

// ConnectHandler is invoked once per newly-registered connection, letting
// SessionRouter wire its join/syncWithServer handlers onto the new Client.
type ConnectHandler func(c *Client)

// DisconnectHandler is invoked once a connection's pumps have stopped.
type DisconnectHandler func(c *Client)

// Hub owns every live connection and every room's membership set.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	OnConnect    ConnectHandler
	OnDisconnect DisconnectHandler
	OnMessage    Handler
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Client represents a single WebSocket connection, implementing the
// editprocessor/sessionrouter Connection contracts.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	id      string
	userID  string
	token   string
	rooms   map[string]struct{}
	roomsMu sync.Mutex
}

// ID returns the connection's identifier.
func (c *Client) ID() string { return c.id }

// UserID returns the identity this connection presented at upgrade time
// (the "userId" query param, not verified; empty if absent).
func (c *Client) UserID() string { return c.userID }

// Token returns the bearer token this connection presented at upgrade
// time (query param or Authorization header), or "" if none was given.
// Bind attaches it to the context of every syncWithServer dispatch so
// adapter.CheckDiffs implementations can authorize the edit.
func (c *Client) Token() string { return c.token }

// Join registers the client as a member of room for future broadcasts.
func (c *Client) Join(room string) {
	c.roomsMu.Lock()
	c.rooms[room] = struct{}{}
	c.roomsMu.Unlock()
	c.hub.joinRoom(room, c)
}

// Emit sends a single {event, payload} envelope to this connection only.
func (c *Client) Emit(event string, payload interface{}) {
	data, err := encodeEnvelope(event, payload)
	if err != nil {
		log.Printf("transport: failed to encode envelope for %s: %v", c.id, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("transport: send buffer full for client %s, dropping message", c.id)
	}
}

func encodeEnvelope(event string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

func (h *Hub) joinRoom(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.id] = c
}

// Leave removes the client from room's broadcast membership.
func (h *Hub) Leave(room, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// BroadcastToRoom implements editprocessor.Broadcaster: delivers event to
// every connection currently joined to room, narrowing Hub.Broadcast from
// all clients down to one room's registeredSockets.
func (h *Hub) BroadcastToRoom(room, event string, payload interface{}) {
	data, err := encodeEnvelope(event, payload)
	if err != nil {
		log.Printf("transport: failed to encode broadcast for room %s: %v", room, err)
		return
	}

	h.mu.Lock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.Unlock()

	for _, c := range members {
		select {
		case c.send <- data:
		default:
			log.Printf("transport: send buffer full for client %s, dropping broadcast", c.id)
		}
	}
}

// ServeWs upgrades an HTTP connection to WebSocket, mints a client ID with
// google/uuid if the request didn't supply one, registers the connection,
// and starts its read/write pumps. The bearer token checked by
// adapter.CheckDiffs is read from the "token" query param, falling back to
// an "Authorization: Bearer <token>" header — query param first since
// browser WebSocket clients cannot set request headers.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	userID := r.URL.Query().Get("userId")
	token := tokenFromRequest(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("transport: websocket upgrade failed: %v", err)
		return
	}

	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		id:     clientID,
		userID: userID,
		token:  token,
		rooms:  make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	if h.OnConnect != nil {
		h.OnConnect(c)
	}

	go c.writePump()
	go c.readPump()
}

func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if prefix := "Bearer "; strings.HasPrefix(auth, prefix) {
		return strings.TrimPrefix(auth, prefix)
	}
	return ""
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.roomsMu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.roomsMu.Unlock()
	for _, room := range rooms {
		h.Leave(room, c.id)
	}

	if h.OnDisconnect != nil {
		h.OnDisconnect(c)
	}
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("transport: websocket error from %s: %v", c.id, err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("transport: invalid envelope from %s: %v", c.id, err)
			continue
		}
		if c.hub.OnMessage != nil {
			c.hub.OnMessage(c, env.Event, env.Payload)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
