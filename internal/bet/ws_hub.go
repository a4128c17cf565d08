// WebSocket hub for real-time bet notifications.

package bet

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/betx/exchange-engine/internal/metrics"
	"github.com/betx/exchange-engine/internal/model"
)

const (
	TypeBetPlaced  = "bet_placed"
	TypeBetSettled = "bet_settled"
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type      string `json:"type"`
	BetID     string `json:"bet_id"`
	UserID    string `json:"user_id"`
	EventID   string `json:"event_id"`
	MarketID  string `json:"market_id"`
	Category  string `json:"category"`
	Side      string `json:"side"`
	Status    string `json:"status"`
	Stake     string `json:"stake,omitempty"`
	Payout    string `json:"payout,omitempty"`
	SettledAt string `json:"settled_at,omitempty"`
}

func betMessage(typ string, b model.Bet) WSMessage {
	msg := WSMessage{
		Type:     typ,
		BetID:    b.ID,
		UserID:   b.UserID,
		EventID:  b.EventID,
		MarketID: b.MarketID,
		Category: string(b.Category),
		Side:     string(b.Side),
		Status:   string(b.Status),
		Stake:    b.Stake.String(),
		Payout:   b.Payout.String(),
	}
	if b.SettledAt != nil {
		msg.SettledAt = b.SettledAt.Format(time.RFC3339)
	}
	return msg
}

// WSHub manages WebSocket connections and broadcasts messages to all
// connected clients when bets are placed or settled.
type WSHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop until ctx is done. Must be called
// in a goroutine.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking placement.
	}
}

// NotifySettled broadcasts one message per settled bet.
func (h *WSHub) NotifySettled(_ context.Context, _ string, bets []model.Bet) error {
	for _, b := range bets {
		h.Broadcast(betMessage(TypeBetSettled, b))
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}()
}
