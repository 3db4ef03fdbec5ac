package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type roomURI struct {
	RoomID string `uri:"roomID" binding:"required,alphanum,max=12"`
}

type createRoomRequest struct {
	HostID     string `json:"host_id" binding:"required,playerid"`
	Nickname   string `json:"nickname" binding:"required,nickname"`
	JudgeModel string `json:"judge_model" binding:"max=32"`
}

type joinRequest struct {
	PlayerID string `json:"player_id" binding:"required,playerid"`
	Nickname string `json:"nickname" binding:"required,nickname"`
}

type playerRequest struct {
	PlayerID string `json:"player_id" binding:"required,playerid"`
}

type hostRequest struct {
	HostID string `json:"host_id" binding:"required,playerid"`
}

type handOverRequest struct {
	HostID    string `json:"host_id" binding:"required,playerid"`
	NewHostID string `json:"new_host_id" binding:"required,playerid"`
}

// CanvasData must be present but may be empty: a blank canvas still counts as
// a submission.
type drawingRequest struct {
	PlayerID   string  `json:"player_id" binding:"required,playerid"`
	CanvasData *string `json:"canvas_data" binding:"required,max=2097152"`
}

type eventsQuery struct {
	After int64 `form:"after" binding:"min=0"`
}

type historyQuery struct {
	Limit int `form:"limit" binding:"min=0,max=1000"`
}

type historyEvent struct {
	EventID   int64           `json:"eventId"`
	Instance  string          `json:"instance"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type historyRound struct {
	EventID     int64           `json:"eventId"`
	Instance    string          `json:"instance"`
	RoundNumber int             `json:"roundNumber"`
	WinnerID    string          `json:"winnerId,omitempty"`
	Scores      json.RawMessage `json:"scores"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if !bindJSON(c, &req, playerMessages, "invalid room request") {
		return
	}
	snapshot, err := s.manager.CreateRoom(req.HostID, normalizeText(req.Nickname), strings.TrimSpace(req.JudgeModel))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"roomId":  snapshot.Room.ID,
		"room":    snapshot.Room,
		"players": snapshot.Players,
	})
}

func (s *Server) handleJoin(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	var req joinRequest
	if !bindJSON(c, &req, playerMessages, "invalid join request") {
		return
	}
	result, err := s.manager.JoinRoom(uri.RoomID, req.PlayerID, normalizeText(req.Nickname))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleLeave(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	var req playerRequest
	if !bindJSON(c, &req, playerMessages, "invalid leave request") {
		return
	}
	result, err := s.manager.LeaveRoom(uri.RoomID, req.PlayerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleStart(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	var req hostRequest
	if !bindJSON(c, &req, playerMessages, "invalid start request") {
		return
	}
	start, err := s.manager.StartGame(uri.RoomID, req.HostID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, start)
}

func (s *Server) handleNextRound(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	var req hostRequest
	if !bindJSON(c, &req, playerMessages, "invalid next round request") {
		return
	}
	start, err := s.manager.NextRound(uri.RoomID, req.HostID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, start)
}

// handleSubmitDrawing blocks until the round is scored when this submission
// completes it.
func (s *Server) handleSubmitDrawing(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	var req drawingRequest
	if !bindJSON(c, &req, playerMessages, "invalid drawing") {
		return
	}
	result, err := s.manager.SubmitDrawing(uri.RoomID, req.PlayerID, *req.CanvasData)
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := gin.H{"allSubmitted": result.AllSubmitted}
	if result.Result != nil {
		resp["roundNumber"] = result.Result.RoundNumber
		resp["scores"] = result.Result.Scores
		resp["winner"] = result.Result.Winner
		resp["evaluation"] = result.Result.Evaluation
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	var req playerRequest
	if !bindJSON(c, &req, playerMessages, "invalid heartbeat") {
		return
	}
	if err := s.manager.Heartbeat(uri.RoomID, req.PlayerID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleHandOverHost(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	var req handOverRequest
	if !bindJSON(c, &req, playerMessages, "invalid host request") {
		return
	}
	if err := s.manager.HandOverHost(uri.RoomID, req.HostID, req.NewHostID); err != nil {
		s.writeError(c, err)
		return
	}
	snapshot, err := s.manager.Snapshot(uri.RoomID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleSnapshot(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	snapshot, err := s.manager.Snapshot(uri.RoomID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleResults(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	results, err := s.manager.Results(uri.RoomID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// handleEvents returns the room state and the events after the cursor,
// oldest first.
func (s *Server) handleEvents(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	var query eventsQuery
	if !bindQuery(c, &query) {
		return
	}
	catchUp, err := s.manager.CatchUp(uri.RoomID, query.After)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, catchUp)
}

func (s *Server) handleHistory(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	var query historyQuery
	if !bindQuery(c, &query) {
		return
	}
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "event archive is not configured",
			"reason": "unavailable",
		})
		return
	}
	roomID := strings.ToUpper(uri.RoomID)
	ctx := c.Request.Context()
	events, err := s.history.History(ctx, roomID, query.Limit)
	if err != nil {
		s.logger.Warn("history read failed", zap.String("room_id", roomID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history unavailable", "reason": "unavailable"})
		return
	}
	rounds, err := s.history.Rounds(ctx, roomID)
	if err != nil {
		s.logger.Warn("round history read failed", zap.String("room_id", roomID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history unavailable", "reason": "unavailable"})
		return
	}

	eventsOut := make([]historyEvent, 0, len(events))
	for _, event := range events {
		eventsOut = append(eventsOut, historyEvent{
			EventID:   event.EventID,
			Instance:  event.Instance,
			Type:      event.Type,
			Data:      json.RawMessage(event.Payload),
			CreatedAt: event.CreatedAt,
		})
	}
	roundsOut := make([]historyRound, 0, len(rounds))
	for _, round := range rounds {
		roundsOut = append(roundsOut, historyRound{
			EventID:     round.EventID,
			Instance:    round.Instance,
			RoundNumber: round.RoundNumber,
			WinnerID:    round.WinnerID,
			Scores:      json.RawMessage(round.Scores),
			CreatedAt:   round.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"roomId": roomID,
		"events": eventsOut,
		"rounds": roundsOut,
	})
}
