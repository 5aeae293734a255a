package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8 * 1024
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type targetPayload struct {
	To string `json:"to"`
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var ev inboundEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		c.handleEvent(ev)
	}
}

func (c *Client) handleEvent(ev inboundEvent) {
	switch ev.Event {
	case eventJoinRoom:
		// Connections join their own user room at registration; accepted
		// for client compatibility.

	case eventGetOnlineUsers:
		c.enqueue(Event{Event: EventOnlineUsers, Data: c.hub.OnlineUsers()})

	case eventTyping, eventStopTyping:
		var target targetPayload
		if err := json.Unmarshal(ev.Data, &target); err != nil || target.To == "" {
			return
		}
		c.hub.Emit(target.To, Event{Event: ev.Event, Data: map[string]string{"from": c.userID}})
	}
}

func (c *Client) enqueue(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
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
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
