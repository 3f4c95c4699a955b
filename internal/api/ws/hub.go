package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/fusion-core/engine/internal/observability"
	"github.com/fusion-core/engine/pkg/dto"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Client represents a connected WebSocket client subscribed to job
// lifecycle events, optionally narrowed to one job and/or a set of
// statuses (e.g. "?job_id=...&status=job_succeeded,job_failed" to watch
// only for terminal outcomes).
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	jobID    string
	statuses map[string]bool // empty means "all statuses"
}

// matches reports whether evt passes this client's job/status filters.
func (c *Client) matches(evt *dto.WSJobEvent) bool {
	if c.jobID != "" && evt.JobID.String() != c.jobID {
		return false
	}
	if len(c.statuses) > 0 && !c.statuses[evt.Type] {
		return false
	}
	return true
}

// Hub maintains active WebSocket clients and broadcasts job events to
// whichever clients' filters match.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "job_filter", client.jobID, "status_filter", client.statuses)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			observability.WSConnections.Dec()
			slog.Debug("ws client disconnected")

		case message := <-h.broadcast:
			var evt dto.WSJobEvent
			if err := json.Unmarshal(message, &evt); err != nil {
				slog.Error("ws broadcast: malformed job event, dropping", "error", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				if !client.matches(&evt) {
					continue
				}

				select {
				case client.send <- message:
				default:
					// Client buffer full — disconnect
					h.mu.RUnlock()
					h.mu.Lock()
					delete(h.clients, client)
					close(client.send)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastEvent sends a job lifecycle event to every client whose
// job/status filter matches it.
func (h *Hub) BroadcastEvent(event *dto.WSJobEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	h.broadcast <- data
}

// HandleWS handles WebSocket upgrade requests. job_id narrows to one
// job's events; status is a comma-separated subset of job_queued,
// job_running, job_succeeded, job_failed, job_cancelled.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	var statuses map[string]bool
	if raw := c.Query("status"); raw != "" {
		statuses = make(map[string]bool)
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses[s] = true
			}
		}
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 64),
		jobID:    c.Query("job_id"),
		statuses: statuses,
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

// writePump forwards queued events to the socket and sends a periodic
// ping so a dead peer is detected within pongWait rather than held open
// indefinitely by a half-closed TCP connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// We don't process incoming messages from clients.
		// This loop exists to detect disconnection and keep the read
		// deadline refreshed by pongs.
	}
}
