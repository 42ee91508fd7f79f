package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tunables
// ──────────────────────────────────────────────────────────────────────────────

const (
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 35 * time.Second // must be > pingInterval
	maxMessageSize = 512              // bytes; clients only send pongs
	sendBufferSize = 256              // messages in each client send channel
)

// ──────────────────────────────────────────────────────────────────────────────
// Client
// ──────────────────────────────────────────────────────────────────────────────

// Client represents one connected WebSocket endpoint.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte // buffered outbound message queue
}

// ──────────────────────────────────────────────────────────────────────────────
// Hub
// ──────────────────────────────────────────────────────────────────────────────

// Hub maintains the set of active clients, the odds relay's last-known-good
// snapshot per bet, and routes broadcast messages. Run() must be called in a
// dedicated goroutine before ServeWs is used.
type Hub struct {
	// Registered clients and their concurrency guard.
	mu      sync.RWMutex
	clients map[*Client]bool

	// snapshot holds the most recently broadcast option odds per bet, so a
	// newly connected client can be caught up immediately instead of waiting
	// for the next relayed update (§6: WS sends a snapshot on connect).
	snapMu   sync.RWMutex
	snapshot map[uuid.UUID][]OptionOdds

	// channels consumed by Run()
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// upgrader is safe for concurrent use after construction.
	upgrader websocket.Upgrader
}

// NewHub creates a Hub ready to be started with Run(). The odds feed is
// public and read-only, so connections carry no identity — allowedOrigins
// is the only access control, matching the REST layer's CORS policy.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		snapshot:   make(map[uuid.UUID][]OptionOdds),
		broadcast:  make(chan []byte, 512),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true // dev mode: allow all
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Run — hub event loop
// ──────────────────────────────────────────────────────────────────────────────

// Run processes registration, unregistration, and broadcast events
// sequentially.  Call it once as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer full — drop the message for this client.
					// The writePump will detect a stalled connection separately.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ConnectedCount returns the current number of connected clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ──────────────────────────────────────────────────────────────────────────────
// ServeWs — HTTP → WebSocket upgrade
// ──────────────────────────────────────────────────────────────────────────────

// ServeWs upgrades an HTTP request to a WebSocket connection, sends the
// current odds snapshot, and starts the read/write pumps.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws.ServeWs: upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.register <- client
	h.sendSnapshot(client)

	go client.writePump()
	go client.readPump()
}

// Snapshot returns a copy of the odds last broadcast for every bet, so the
// REST GET /odds handler can serve the same state the WS feed hands a
// freshly connected client.
func (h *Hub) Snapshot() map[uuid.UUID][]OptionOdds {
	h.snapMu.RLock()
	defer h.snapMu.RUnlock()
	bets := make(map[uuid.UUID][]OptionOdds, len(h.snapshot))
	for betID, opts := range h.snapshot {
		bets[betID] = opts
	}
	return bets
}

// sendSnapshot writes the current per-bet odds snapshot directly to one
// freshly connected client, ahead of anything still in the broadcast queue.
func (h *Hub) sendSnapshot(client *Client) {
	data, err := json.Marshal(OddsSnapshotMessage{
		Type:      MsgTypeOddsSnapshot,
		Bets:      h.Snapshot(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Client pumps
// ──────────────────────────────────────────────────────────────────────────────

// writePump drains the client's send channel and writes messages to the
// WebSocket connection.  It also sends ping frames every pingInterval.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the WebSocket connection.  Only pong messages
// are handled (they reset the read deadline).  All other inbound messages are
// discarded — this is a server-push-only protocol.  When the connection drops
// the client is unregistered.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws.readPump: unexpected close: %v", err)
			}
			return
		}
		// All inbound messages are silently dropped; server is push-only.
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Broadcast helpers — implement relay.Broadcaster
// ──────────────────────────────────────────────────────────────────────────────

// BroadcastOdds updates the held snapshot for a bet and serialises an
// OddsUpdateMessage to every connected client.
func (h *Hub) BroadcastOdds(betID uuid.UUID, options []OptionOdds) {
	h.snapMu.Lock()
	h.snapshot[betID] = options
	h.snapMu.Unlock()

	h.broadcastJSON(OddsUpdateMessage{
		Type:      MsgTypeOddsUpdate,
		BetID:     betID,
		Options:   options,
		Timestamp: time.Now().UTC(),
	})
}

// BroadcastBetResolved drops betID from the held snapshot and notifies
// clients of the settled outcome.
func (h *Hub) BroadcastBetResolved(betID, resultOptionID uuid.UUID) {
	h.snapMu.Lock()
	delete(h.snapshot, betID)
	h.snapMu.Unlock()

	h.broadcastJSON(BetResolvedMessage{
		Type:           MsgTypeBetResolved,
		BetID:          betID,
		ResultOptionID: resultOptionID,
		Timestamp:      time.Now().UTC(),
	})
}

// BroadcastNewBet seeds the snapshot for a freshly opened bet and notifies
// clients.
func (h *Hub) BroadcastNewBet(betID uuid.UUID, title string, closesAt time.Time, options []OptionOdds) {
	h.snapMu.Lock()
	h.snapshot[betID] = options
	h.snapMu.Unlock()

	h.broadcastJSON(NewBetMessage{
		Type:      MsgTypeNewBet,
		BetID:     betID,
		Title:     title,
		ClosesAt:  closesAt,
		Options:   options,
		Timestamp: time.Now().UTC(),
	})
}

// broadcastJSON is the common marshalling path.
func (h *Hub) broadcastJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws.Hub: marshal error: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("ws.Hub: broadcast channel full, message dropped")
	}
}

// SendError writes an error message directly to one client's send channel.
func (h *Hub) SendError(client *Client, code, message string) {
	data, err := json.Marshal(ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}
