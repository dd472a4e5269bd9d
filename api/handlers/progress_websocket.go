package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/app"
	"github.com/yourusername/dl-progress/internal/domain"
)

const (
	streamOutboxSize = 64
	streamPingPeriod = 30 * time.Second
	streamWriteWait  = 10 * time.Second
)

// Stream message types
const (
	MessageSnapshot   = "snapshot"
	MessageProgress   = "progress"
	MessageCompletion = "completion"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is one frame of the progress stream
type StreamMessage struct {
	Type     string                  `json:"type"`
	ID       string                  `json:"id"`
	Progress *domain.DownloadRequest `json:"progress,omitempty"`
	Outcome  *domain.FetcherResponse `json:"outcome,omitempty"`
}

// ProgressWebSocketHandler streams registry events to WebSocket clients
type ProgressWebSocketHandler struct {
	registry *app.Registry
	logger   *zap.Logger
}

// NewProgressWebSocketHandler creates a new WebSocket handler
func NewProgressWebSocketHandler(registry *app.Registry, logger *zap.Logger) *ProgressWebSocketHandler {
	return &ProgressWebSocketHandler{
		registry: registry,
		logger:   logger,
	}
}

// streamClient observes the registry on behalf of one connection.
// Callbacks only enqueue; the handler goroutine owns all writes.
type streamClient struct {
	filter  string
	outbox  chan StreamMessage
	closing chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

func (s *streamClient) wants(id string) bool {
	return s.filter == "" || s.filter == id
}

func (s *streamClient) DownloadDidUpdate(progress domain.DownloadRequest) {
	if !s.wants(progress.ID) {
		return
	}
	select {
	case s.outbox <- StreamMessage{Type: MessageProgress, ID: progress.ID, Progress: &progress}:
	default:
		// Later ticks supersede this one.
		s.logger.Debug("Stream outbox full, dropping progress", zap.String("id", progress.ID))
	}
}

func (s *streamClient) DownloadWasCompleted(id string, response domain.FetcherResponse) {
	if !s.wants(id) {
		return
	}
	select {
	case s.outbox <- StreamMessage{Type: MessageCompletion, ID: id, Outcome: &response}:
	default:
		s.logger.Warn("Stream client too slow, closing", zap.String("id", id))
		s.close()
	}
}

func (s *streamClient) close() {
	s.once.Do(func() { close(s.closing) })
}

// HandleWebSocket handles GET /api/v1/progress/stream[?id=]
func (h *ProgressWebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &streamClient{
		filter:  c.Query("id"),
		outbox:  make(chan StreamMessage, streamOutboxSize),
		closing: make(chan struct{}),
		logger:  h.logger,
	}
	sub := h.registry.Subscribe(client)
	defer sub.Unsubscribe()

	h.logger.Info("Progress stream connected",
		zap.String("filter", client.filter),
		zap.String("remote_addr", c.Request.RemoteAddr))

	for _, snap := range h.registry.List() {
		if !client.wants(snap.ID) {
			continue
		}
		snap := snap
		if err := h.write(conn, StreamMessage{Type: MessageSnapshot, ID: snap.ID, Progress: &snap}); err != nil {
			return
		}
	}

	// Reader goroutine: drains control frames and notices the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-client.outbox:
			if err := h.write(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "client too slow"),
				time.Now().Add(streamWriteWait))
			return
		case <-done:
			h.logger.Info("Progress stream disconnected", zap.String("remote_addr", c.Request.RemoteAddr))
			return
		}
	}
}

func (h *ProgressWebSocketHandler) write(conn *websocket.Conn, msg StreamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("Failed to write stream message", zap.Error(err))
		return err
	}
	return nil
}

// marshalWithOutcome encodes a snapshot and adds the outcome key
func marshalWithOutcome(snap domain.DownloadRequest, outcome *domain.FetcherResponse) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil || outcome == nil {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(outcome)
	if err != nil {
		return nil, err
	}
	fields["outcome"] = raw
	return json.Marshal(fields)
}
