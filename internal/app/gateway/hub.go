// Package gateway is the websocket real-time layer: per-user rooms, presence
// tracking and event push for messaging.
package gateway

import (
	"encoding/json"
	"sync"

	"github.com/verse-social/verse/internal/app/domain/message"
	"github.com/verse-social/verse/internal/app/metrics"
	"github.com/verse-social/verse/pkg/logger"
)

// Event is the wire envelope for gateway traffic in both directions.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Outbound event names.
const (
	EventReceiveMessage   = "receiveMessage"
	EventOnlineUsers      = "onlineUsers"
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
	EventMessagesRead     = "messages_read"
	EventPlayNotification = "playNotification"
)

// Inbound event names.
const (
	eventJoinRoom       = "joinRoom"
	eventGetOnlineUsers = "getOnlineUsers"
	eventTyping         = "typing"
	eventStopTyping     = "stopTyping"
)

// Hub maintains the set of active clients, keyed by user. A user may hold
// several connections; presence counts users, not sockets. The presence map
// never leaves the hub, callers query it through IsOnline and OnlineUsers.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once

	mu      sync.RWMutex
	clients map[string]map[*Client]bool

	log *logger.Logger
}

// NewHub creates a hub. Run must be called before clients attach.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("gateway")
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]bool),
		log:        log,
	}
}

// Run processes connect and disconnect events until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Close stops the run loop and drops every connection.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	conns, existed := h.clients[c.userID]
	if conns == nil {
		conns = make(map[*Client]bool)
		h.clients[c.userID] = conns
	}
	conns[c] = true
	h.mu.Unlock()

	metrics.ConnectionOpened()
	if !existed {
		h.Broadcast(Event{Event: EventUserOnline, Data: map[string]string{"userId": c.userID}})
	}
	h.log.WithField("user_id", c.userID).Info("client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	offline := false
	removed := false
	if conns, ok := h.clients[c.userID]; ok && conns[c] {
		delete(conns, c)
		close(c.send)
		removed = true
		if len(conns) == 0 {
			delete(h.clients, c.userID)
			offline = true
		}
	}
	h.mu.Unlock()

	if removed {
		metrics.ConnectionClosed()
	}

	if offline {
		h.Broadcast(Event{Event: EventUserOffline, Data: map[string]string{"userId": c.userID}})
	}
	h.log.WithField("user_id", c.userID).Info("client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.clients {
		for c := range conns {
			close(c.send)
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}

// Emit pushes an event to every connection of one user. Slow consumers with
// a full send buffer are skipped rather than blocking the hub.
func (h *Hub) Emit(userID string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).WithField("event", ev.Event).Error("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// Broadcast pushes an event to every connected user.
func (h *Hub) Broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).WithField("event", ev.Event).Error("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.clients {
		for c := range conns {
			select {
			case c.send <- payload:
			default:
			}
		}
	}
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// OnlineUsers returns the IDs of all connected users.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.clients))
	for id := range h.clients {
		users = append(users, id)
	}
	return users
}

// MessageCreated delivers a new message to both participants and pings the
// receiver. Implements the messaging notifier.
func (h *Hub) MessageCreated(m message.Message) {
	ev := Event{Event: EventReceiveMessage, Data: m}
	h.Emit(m.Sender, ev)
	h.Emit(m.Receiver, ev)
	h.Emit(m.Receiver, Event{Event: EventPlayNotification, Data: map[string]string{"from": m.Sender}})
}

// ConversationRead tells the original sender their messages were read.
func (h *Hub) ConversationRead(readerID, senderID string) {
	h.Emit(senderID, Event{Event: EventMessagesRead, Data: map[string]string{"reader": readerID}})
}
