package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/jamesruggles/carbonara/internal/tools"
)

const writeTimeout = 5 * time.Second

// Hub manages WebSocket clients subscribed to run output.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]struct{}
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]map[*websocket.Conn]struct{}),
		log:     log,
	}
}

func (h *Hub) Subscribe(runID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[runID] == nil {
		h.clients[runID] = make(map[*websocket.Conn]struct{})
	}
	h.clients[runID][conn] = struct{}{}
}

func (h *Hub) Unsubscribe(runID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[runID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, runID)
		}
	}
}

// Subscribers reports how many clients follow runID.
func (h *Hub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[runID])
}

func (h *Hub) Broadcast(runID string, line tools.OutputLine) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[runID]))
	for conn := range h.clients[runID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(line)
	if err != nil {
		return
	}

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.log.Debug("ws write error", zap.String("run_id", runID), zap.Error(err))
			h.Unsubscribe(runID, conn)
			conn.Close(websocket.StatusNormalClosure, "")
		}
	}
}

type wsSubscribeMsg struct {
	RunID string `json:"runId"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Editor webviews connect from their own origins.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("ws accept error", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// Read subscribe message
	_, data, err := conn.Read(r.Context())
	if err != nil {
		return
	}

	var msg wsSubscribeMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.RunID == "" {
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid subscribe message")
		return
	}

	s.hub.Subscribe(msg.RunID, conn)
	defer s.hub.Unsubscribe(msg.RunID, conn)

	// Keep the connection open until the client goes away.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}
