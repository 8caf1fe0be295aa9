package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"mazequiz/internal/ranking"
	"mazequiz/pkg/interfaces"
	"mazequiz/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is a deployment concern; the reverse proxy
		// in front of this service enforces it.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// EventSink receives validated inbound envelopes for processing. The
// hub implements it.
type EventSink interface {
	Submit(connID string, env *types.Envelope) error
}

// HandlerConfig carries the per-connection tuning knobs: heartbeat
// cadence, transport deadlines, write queue depth and the inbound event
// limiter.
type HandlerConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
	EventsPerSec float64
	EventBurst   int
}

// Handler upgrades HTTP requests to WebSocket connections, registers
// them and pumps inbound events into the sink.
type Handler struct {
	registry     *Registry
	store        interfaces.SessionStore
	sink         EventSink
	ranking      *ranking.Broadcaster
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	bufferSize   int
	eventRate    rate.Limit
	burst        int
}

// NewHandler creates a WebSocket handler. Non-positive durations in cfg
// fall back to production defaults.
func NewHandler(registry *Registry, store interfaces.SessionStore, sink EventSink, rankingB *ranking.Broadcaster, cfg HandlerConfig) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}

	return &Handler{
		registry:     registry,
		store:        store,
		sink:         sink,
		ranking:      rankingB,
		pingInterval: cfg.PingInterval,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		bufferSize:   cfg.BufferSize,
		eventRate:    rate.Limit(cfg.EventsPerSec),
		burst:        cfg.EventBurst,
	}
}

// HandleWebSocket validates the request, upgrades it, ensures the user
// row exists and runs the connection's read pump until it closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	username := r.URL.Query().Get("username")

	if userID == "" {
		http.Error(w, "Missing required query parameter: user_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(userID) {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}
	if username == "" {
		username = userID
	}

	if _, err := h.store.EnsureUser(r.Context(), userID, username); err != nil {
		log.Printf("Failed to ensure user %s: %v", userID, err)
		http.Error(w, "User lookup failed", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.bufferSize, h.writeTimeout)
	client, err := h.registry.Register(userID, username, wsConn)
	if err != nil {
		log.Printf("Failed to register connection for %s: %v", userID, err)
		_ = wsConn.Close()
		return
	}

	// New connections get the current leaderboard immediately.
	h.ranking.SendTo(client)

	go h.handleConnection(wsConn, client)
}

// handleConnection runs heartbeat monitoring and the read pump for one
// connection, tearing the client down when either fails.
func (h *Handler) handleConnection(conn *Connection, client *Client) {
	defer func() {
		h.registry.OnDisconnect(client)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(conn.writeTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	limiter := rate.NewLimiter(h.eventRate, h.burst)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for user %s: %v", client.UserID(), err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if !limiter.Allow() {
			client.notifyError("Too many events, slow down")
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			client.notifyError("Invalid message format")
			continue
		}
		if err := env.Validate(); err != nil {
			client.notifyError(err.Error())
			continue
		}

		if err := h.sink.Submit(client.ID(), &env); err != nil {
			log.Printf("Event submit failed for user %s: %v", client.UserID(), err)
			client.notifyError("Server is busy, please retry")
		}
	}
}
