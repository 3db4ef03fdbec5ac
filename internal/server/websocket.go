package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"doodle-duel/internal/game"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteWait    = 10 * time.Second
	streamPingInterval = 30 * time.Second
	streamReadLimit    = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type streamQuery struct {
	LastEventID int64 `form:"last_event_id" binding:"min=0"`
}

// streamCommand is the only message a client sends: a cursor rewind.
type streamCommand struct {
	LastEventID *int64 `json:"last_event_id"`
}

type streamHub struct {
	mu     sync.Mutex
	groups map[string]map[*websocket.Conn]struct{}
}

func newStreamHub() *streamHub {
	return &streamHub{
		groups: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *streamHub) Add(roomID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[roomID]
	if group == nil {
		group = make(map[*websocket.Conn]struct{})
		h.groups[roomID] = group
	}
	group[conn] = struct{}{}
}

func (h *streamHub) Remove(roomID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[roomID]
	if group == nil {
		return
	}
	delete(group, conn)
	_ = conn.Close()
	if len(group) == 0 {
		delete(h.groups, roomID)
	}
}

func (h *streamHub) Count(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[roomID])
}

func (h *streamHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, group := range h.groups {
		for conn := range group {
			_ = conn.Close()
		}
		delete(h.groups, roomID)
	}
}

// handleStream pushes catch-up payloads to a websocket client: one on connect
// and one after every wake-up of the room's event log. A client that falls
// behind misses wake-ups, never events, since each payload starts at its
// cursor.
func (s *Server) handleStream(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	var query streamQuery
	if !bindQuery(c, &query) {
		return
	}
	sub, err := s.manager.Subscribe(uri.RoomID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("room_id", uri.RoomID), zap.Error(err))
		return
	}
	streamID := uuid.NewString()
	s.streams.Add(uri.RoomID, conn)
	s.metrics.StreamsConnected.Inc()
	s.logger.Info("stream connected",
		zap.String("room_id", uri.RoomID),
		zap.String("stream_id", streamID),
		zap.String("ip", c.ClientIP()))
	defer func() {
		s.streams.Remove(uri.RoomID, conn)
		s.metrics.StreamsConnected.Dec()
		s.logger.Info("stream disconnected", zap.String("room_id", uri.RoomID), zap.String("stream_id", streamID))
	}()

	rewind := make(chan int64, 1)
	gone := make(chan struct{})
	go s.readStream(conn, rewind, gone)
	s.pumpStream(conn, uri.RoomID, query.LastEventID, sub, rewind, gone)
}

// pumpStream is the only writer on conn.
func (s *Server) pumpStream(conn *websocket.Conn, roomID string, cursor int64, sub *game.Subscription, rewind <-chan int64, gone <-chan struct{}) {
	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	send := func(force bool) bool {
		catchUp, err := s.manager.CatchUp(roomID, cursor)
		if err != nil {
			return false
		}
		if !force && len(catchUp.Events) == 0 {
			return true
		}
		if err := writeStreamJSON(conn, catchUp); err != nil {
			return false
		}
		cursor = catchUp.LastEventID
		return true
	}

	if !send(true) {
		return
	}
	for {
		select {
		case <-sub.C:
			if !send(false) {
				return
			}
		case after := <-rewind:
			cursor = after
			if !send(true) {
				return
			}
		case <-sub.Done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"),
				time.Now().Add(streamWriteWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Server) readStream(conn *websocket.Conn, rewind chan int64, gone chan struct{}) {
	defer close(gone)
	conn.SetReadLimit(streamReadLimit)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd streamCommand
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.LastEventID == nil || *cmd.LastEventID < 0 {
			continue
		}
		// Keep only the latest rewind.
		select {
		case <-rewind:
		default:
		}
		rewind <- *cmd.LastEventID
	}
}

func writeStreamJSON(conn *websocket.Conn, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
