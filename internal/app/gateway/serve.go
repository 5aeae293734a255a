package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/verse-social/verse/internal/app/auth"
	"github.com/verse-social/verse/internal/app/domain/message"
	"github.com/verse-social/verse/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway authenticates websocket handshakes and hands connections to the
// hub. It implements the system service interface and the messaging
// notifier.
type Gateway struct {
	hub    *Hub
	tokens *auth.Manager
	log    *logger.Logger
}

// New constructs a gateway.
func New(tokens *auth.Manager, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.NewDefault("gateway")
	}
	return &Gateway{hub: NewHub(log), tokens: tokens, log: log}
}

// Name implements the system service interface.
func (g *Gateway) Name() string { return "gateway" }

// Start launches the hub run loop.
func (g *Gateway) Start(_ context.Context) error {
	go g.hub.Run()
	return nil
}

// Stop drops all connections and halts the hub.
func (g *Gateway) Stop(_ context.Context) error {
	g.hub.Close()
	return nil
}

// ServeHTTP upgrades an authenticated request to a websocket connection. The
// token comes from the Authorization header or, for browser websocket
// clients that cannot set headers, the token query parameter.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := g.tokens.Verify(token)
	if err != nil {
		g.log.WithError(err).Warn("websocket handshake rejected")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:    g.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: claims.UserID,
	}
	// A handshake racing Stop must not block on a hub that no longer runs.
	select {
	case g.hub.register <- client:
	case <-g.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

// IsOnline reports whether the user has a live connection.
func (g *Gateway) IsOnline(userID string) bool { return g.hub.IsOnline(userID) }

// OnlineUsers returns the IDs of all connected users.
func (g *Gateway) OnlineUsers() []string { return g.hub.OnlineUsers() }

// MessageCreated forwards a new message to the hub for delivery.
func (g *Gateway) MessageCreated(m message.Message) { g.hub.MessageCreated(m) }

// ConversationRead forwards a read receipt to the hub.
func (g *Gateway) ConversationRead(readerID, senderID string) {
	g.hub.ConversationRead(readerID, senderID)
}
