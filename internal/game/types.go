package game

import (
	"time"

	"doodle-duel/internal/judge"
)

type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusPlaying  RoomStatus = "playing"
	StatusScoring  RoomStatus = "scoring"
	StatusFinished RoomStatus = "finished"
)

const (
	EventRoomCreated         = "room_created"
	EventPlayerJoined        = "player_joined"
	EventPlayerLeft          = "player_left"
	EventGameStarted         = "game_started"
	EventNextRoundStarted    = "next_round_started"
	EventDrawingSubmitted    = "drawing_submitted"
	EventEvaluationStarted   = "ai_evaluation_started"
	EventEvaluationFailed    = "ai_evaluation_failed"
	EventRoundCompleted      = "round_completed"
	EventHostTransferred     = "host_transferred"
	reasonAllSubmitted       = "all_submitted"
	reasonTimeout            = "timeout"
	reasonLeft               = "left"
	reasonInactive           = "inactive"
	reasonCreateFailed       = "create_failed"
	scoreSourceJudge         = "judge"
	scoreSourceFallback      = "fallback"
	scoreSourcePlaceholder   = "placeholder"
	scoreSourceNoSubmissions = "empty"
)

type Room struct {
	ID             string     `json:"id"`
	HostID         string     `json:"hostId"`
	Status         RoomStatus `json:"status"`
	CurrentKeyword string     `json:"currentKeyword,omitempty"`
	TimeLeft       int        `json:"timeLeft"`
	RoundNumber    int        `json:"roundNumber"`
	JudgeModel     string     `json:"judgeModel"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type Player struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"roomId"`
	Nickname     string    `json:"nickname"`
	IsHost       bool      `json:"isHost"`
	HasSubmitted bool      `json:"hasSubmitted"`
	Score        int       `json:"score"`
	JoinedAt     time.Time `json:"joinedAt"`
	LastActive   time.Time `json:"lastActive"`
	joinSeq      int64
}

type Drawing struct {
	ID          int64     `json:"id"`
	PlayerID    string    `json:"playerId"`
	RoomID      string    `json:"roomId"`
	RoundNumber int       `json:"roundNumber"`
	CanvasData  string    `json:"canvasData"`
	Keyword     string    `json:"keyword"`
	Score       *int      `json:"score,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type GameEvent struct {
	ID        int64         `json:"id"`
	RoomID    string        `json:"roomId"`
	Type      string        `json:"type"`
	Data      *EventPayload `json:"data,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// EventPayload is the union of fields carried by game events. Each event type
// fills only the fields that describe it.
type EventPayload struct {
	HostID      string            `json:"hostId,omitempty"`
	PlayerID    string            `json:"playerId,omitempty"`
	Nickname    string            `json:"nickname,omitempty"`
	JudgeModel  string            `json:"judgeModel,omitempty"`
	Roster      []Player          `json:"roster,omitempty"`
	Keyword     string            `json:"keyword,omitempty"`
	RoundNumber int               `json:"roundNumber,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Scores      []RoundScore      `json:"scores,omitempty"`
	Winner      *Standing         `json:"winner,omitempty"`
	Evaluation  *judge.Evaluation `json:"evaluation,omitempty"`
	OldHostID   string            `json:"oldHostId,omitempty"`
	NewHostID   string            `json:"newHostId,omitempty"`
}

// RoundScore is one player's line in a round's results.
type RoundScore struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Rank     int    `json:"rank"`
	Score    int    `json:"score"`
	Total    int    `json:"total"`
	Comment  string `json:"comment,omitempty"`
}

type Standing struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

type RoundResult struct {
	RoundNumber int               `json:"roundNumber"`
	Keyword     string            `json:"keyword"`
	Source      string            `json:"source"`
	Scores      []RoundScore      `json:"scores"`
	Winner      *Standing         `json:"winner,omitempty"`
	Evaluation  *judge.Evaluation `json:"evaluation,omitempty"`
}

type Snapshot struct {
	Room    Room     `json:"room"`
	Players []Player `json:"players"`
}

type JoinResult struct {
	Snapshot
	IsHost bool `json:"isHost"`
}

type LeaveResult struct {
	WasHost    bool   `json:"isHost"`
	NewHostID  string `json:"newHostId,omitempty"`
	RoomClosed bool   `json:"roomClosed"`
}

type RoundStart struct {
	Keyword     string `json:"keyword"`
	RoundNumber int    `json:"roundNumber"`
	TimeLeft    int    `json:"timeLeft"`
}

type SubmitResult struct {
	AllSubmitted bool         `json:"allSubmitted"`
	Result       *RoundResult `json:"result,omitempty"`
}

type Results struct {
	Room       Room              `json:"room"`
	Players    []Player          `json:"players"`
	Scores     []RoundScore      `json:"scores"`
	Winner     *Standing         `json:"winner,omitempty"`
	Evaluation *judge.Evaluation `json:"evaluation,omitempty"`
}

// CatchUp carries the current room state plus every event after the caller's
// cursor, oldest first.
type CatchUp struct {
	Room        Room        `json:"room"`
	Players     []Player    `json:"players"`
	Events      []GameEvent `json:"events"`
	LastEventID int64       `json:"lastEventId"`
}
