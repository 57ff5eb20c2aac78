package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"termslens/internal/models"
	"termslens/internal/repository"
)

const subscribeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// conn serializes writes; gorilla connections allow one writer at a time.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Hub pushes chat state snapshots to every socket watching a session. With a
// Redis client, snapshots travel over pub/sub so any server process can
// deliver them; without one they are broadcast in-process.
type Hub struct {
	mu            sync.RWMutex
	connections   map[uuid.UUID][]*conn
	redisClient   *redis.Client
	sessions      repository.SessionRepo
	subscriptions map[uuid.UUID]*subscription
}

// subscription is the pub/sub listener shared by a session's sockets. ready
// is closed once Redis has confirmed it.
type subscription struct {
	cancel context.CancelFunc
	ready  chan struct{}
}

func NewHub(sessions repository.SessionRepo, redisClient *redis.Client) *Hub {
	return &Hub{
		connections:   make(map[uuid.UUID][]*conn),
		redisClient:   redisClient,
		sessions:      sessions,
		subscriptions: make(map[uuid.UUID]*subscription),
	}
}

func channelName(sessionID uuid.UUID) string {
	return "session_updates:" + sessionID.String()
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	_, err = h.sessions.GetByID(r.Context(), sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Printf("WebSocket session lookup failed for %s: %v", sessionID, err)
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// Register before reading the snapshot: anything saved after the read
	// is then published to this socket too.
	c := &conn{ws: ws}
	select {
	case <-h.registerConnection(sessionID, c):
	case <-time.After(subscribeTimeout):
		log.Printf("WebSocket subscription for session %s not confirmed in %s", sessionID, subscribeTimeout)
	}

	if err := h.sendCurrent(r.Context(), sessionID, c); err != nil {
		log.Printf("WebSocket initial state failed for session %s: %v", sessionID, err)
		h.unregisterConnection(sessionID, c)
		return
	}

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(sessionID, c)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) sendCurrent(ctx context.Context, sessionID uuid.UUID, c *conn) error {
	session, err := h.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(session.Chat)
	if err != nil {
		return err
	}
	return c.write(data)
}

// Publish delivers a chat state snapshot to the session's watchers.
func (h *Hub) Publish(ctx context.Context, sessionID uuid.UUID, state models.ChatState) {
	data, err := json.Marshal(state)
	if err != nil {
		log.Printf("WebSocket encode failed for session %s: %v", sessionID, err)
		return
	}

	if h.redisClient == nil {
		h.broadcast(sessionID, data)
		return
	}

	if err := h.redisClient.Publish(ctx, channelName(sessionID), data).Err(); err != nil {
		log.Printf("WebSocket publish failed for session %s: %v", sessionID, err)
	}
}

// Watchers returns the number of sockets open for a session.
func (h *Hub) Watchers(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}

// registerConnection adds c to the session's watchers. The returned channel
// is closed once the session's updates will reach c.
func (h *Hub) registerConnection(sessionID uuid.UUID, c *conn) <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[sessionID] = append(h.connections[sessionID], c)
	log.Printf("WebSocket connected: session %s (total: %d)", sessionID, len(h.connections[sessionID]))

	if h.redisClient == nil {
		ready := make(chan struct{})
		close(ready)
		return ready
	}

	// Start pub/sub subscription if this is the first connection for this session
	sub, ok := h.subscriptions[sessionID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		sub = &subscription{cancel: cancel, ready: make(chan struct{})}
		h.subscriptions[sessionID] = sub
		go h.subscribeToPubSub(ctx, sessionID, sub.ready)
	}
	return sub.ready
}

func (h *Hub) unregisterConnection(sessionID uuid.UUID, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.ws.Close()

	conns := h.connections[sessionID]
	for i, existing := range conns {
		if existing == c {
			h.connections[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
		if sub, ok := h.subscriptions[sessionID]; ok {
			sub.cancel()
			delete(h.subscriptions, sessionID)
		}
	}

	log.Printf("WebSocket disconnected: session %s", sessionID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, sessionID uuid.UUID, ready chan struct{}) {
	pubsub := h.redisClient.Subscribe(ctx, channelName(sessionID))
	defer pubsub.Close()

	_, err := pubsub.Receive(ctx)
	close(ready)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("WebSocket subscribe failed for session %s: %v", sessionID, err)
		}
		return
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(sessionID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(sessionID uuid.UUID, data []byte) {
	h.mu.RLock()
	conns := append([]*conn(nil), h.connections[sessionID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			log.Printf("WebSocket write failed for session %s: %v", sessionID, err)
		}
	}
}
