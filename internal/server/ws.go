package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// defaultProbeInterval is the application-level latency probe rate.
const defaultProbeInterval = time.Second

// kickDrainDelay gives the write pump time to flush a final notice before a
// forced close.
const kickDrainDelay = 250 * time.Millisecond

// Client represents one connected socket. UserID is zero for guests; the
// identity fields beyond ID are filled during admission.
type Client struct {
	ID            string // connection id, unique per socket
	UserID        int64
	Username      string
	Token         string
	RequestedRoom string
	RoomID        string

	conn *websocket.Conn
	send chan WSMessage
}

// SessionHandler drives the connection protocol: admission, inbound
// messages, disconnect cleanup.
type SessionHandler interface {
	// HandleConnect admits the client. A returned error closes the socket;
	// the handler has already sent any rejection notice itself.
	HandleConnect(ctx context.Context, c *Client) error
	HandleMessage(ctx context.Context, c *Client, msg WSMessage)
	HandleDisconnect(c *Client)
}

// Hub manages all WebSocket clients and room-level broadcast groups.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	handler       SessionHandler
	readLimit     int64
	probeInterval time.Duration
	logger        *slog.Logger
}

func NewHub(readLimit int64, probeInterval time.Duration, logger *slog.Logger) *Hub {
	if probeInterval <= 0 {
		probeInterval = defaultProbeInterval
	}
	return &Hub{
		clients:       make(map[string]*Client),
		rooms:         make(map[string]map[string]*Client),
		readLimit:     readLimit,
		probeInterval: probeInterval,
		logger:        logger,
	}
}

// SetHandler wires the protocol layer (set once at startup, breaks the
// hub/engine construction cycle).
func (h *Hub) SetHandler(handler SessionHandler) {
	h.handler = handler
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("ws accept", "err", err)
		return
	}
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	q := r.URL.Query()
	userID, _ := strconv.ParseInt(q.Get("userId"), 10, 64)
	client := &Client{
		ID:            uuid.NewString(),
		UserID:        userID,
		Username:      q.Get("username"),
		Token:         q.Get("token"),
		RequestedRoom: q.Get("roomId"),
		conn:          conn,
		send:          make(chan WSMessage, 64),
	}

	h.register(client)
	defer h.unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(ctx, client)

	if err := h.handler.HandleConnect(ctx, client); err != nil {
		h.logger.Info("connection rejected", "conn", client.ID, "reason", err)
		time.Sleep(kickDrainDelay)
		conn.Close(websocket.StatusNormalClosure, "rejected")
		return
	}
	defer h.handler.HandleDisconnect(client)

	h.readPump(ctx, client)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	if c.RoomID != "" {
		if members, ok := h.rooms[c.RoomID]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, c.RoomID)
			}
		}
	}
}

// JoinRoom adds a client to a room broadcast group.
func (h *Hub) JoinRoom(clientID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	if c.RoomID != "" && c.RoomID != roomID {
		if members, ok := h.rooms[c.RoomID]; ok {
			delete(members, c.ID)
		}
	}
	c.RoomID = roomID
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][c.ID] = c
}

// BroadcastRoom sends a message to every client in a room.
func (h *Hub) BroadcastRoom(roomID string, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for _, c := range members {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("client send buffer full", "conn", c.ID)
		}
	}
}

// SendTo sends a message to a specific client.
func (h *Hub) SendTo(clientID string, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// Kick sends a final notice and then force-closes the connection once the
// write pump has had a chance to flush it.
func (h *Hub) Kick(clientID string, msg WSMessage, reason string) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
	time.AfterFunc(kickDrainDelay, func() {
		c.conn.Close(websocket.StatusNormalClosure, reason)
	})
}

func (h *Hub) readPump(ctx context.Context, c *Client) {
	defer func() {
		if err := c.conn.CloseNow(); err != nil && ctx.Err() == nil {
			h.logger.Debug("close conn", "conn", c.ID, "err", err)
		}
	}()
	for {
		var msg WSMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return
		}
		h.handler.HandleMessage(ctx, c, msg)
	}
}

func (h *Hub) writePump(ctx context.Context, c *Client) {
	probe := time.NewTicker(h.probeInterval)
	defer probe.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, c.conn, msg); err != nil {
				return
			}
		case <-probe.C:
			payload, _ := json.Marshal(time.Now().UnixMilli())
			if err := wsjson.Write(ctx, c.conn, WSMessage{Type: "ping", Payload: payload}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
