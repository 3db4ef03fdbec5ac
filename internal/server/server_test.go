package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"doodle-duel/internal/db"
	"doodle-duel/internal/game"
	"doodle-duel/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoomAndJoin(t *testing.T) {
	ts := newTestServer(t, testConfig(), Options{})

	roomID := createRoom(t, ts)
	assert.Len(t, roomID, 6)

	resp := doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/join", map[string]string{
		"player_id": "p1",
		"nickname":  "  Ada   Lovelace ",
	})
	requireStatus(t, resp, http.StatusOK)
	var joined game.JoinResult
	decodeInto(t, resp, &joined)
	assert.False(t, joined.IsHost)
	require.Len(t, joined.Players, 2)
	assert.Equal(t, "Ada Lovelace", joined.Players[1].Nickname)

	resp = doRequest(t, ts, http.MethodGet, "/api/rooms/"+roomID, nil)
	requireStatus(t, resp, http.StatusOK)
	var snapshot game.Snapshot
	decodeInto(t, resp, &snapshot)
	assert.Equal(t, "host", snapshot.Room.HostID)
	assert.Equal(t, game.StatusWaiting, snapshot.Room.Status)
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t, testConfig(), Options{})
	roomID := createRoom(t, ts)

	cases := []struct {
		name   string
		path   string
		body   any
		status int
		reason string
		error  string
	}{
		{
			name:   "missing host id",
			path:   "/api/rooms",
			body:   map[string]string{"nickname": "Host"},
			status: http.StatusBadRequest,
			reason: "invalid_input",
			error:  "host id is required",
		},
		{
			name:   "unsafe nickname",
			path:   "/api/rooms",
			body:   map[string]string{"host_id": "h2", "nickname": "<script>"},
			status: http.StatusBadRequest,
			reason: "invalid_input",
			error:  "nickname must be 1-20 plain characters",
		},
		{
			name:   "bad player id",
			path:   "/api/rooms/" + roomID + "/join",
			body:   map[string]string{"player_id": "no spaces", "nickname": "Bo"},
			status: http.StatusBadRequest,
			reason: "invalid_input",
			error:  "player id must be 1-64 letters, digits, '-' or '_'",
		},
		{
			name:   "unknown judge",
			path:   "/api/rooms",
			body:   map[string]string{"host_id": "h3", "nickname": "Cy", "judge_model": "oracle"},
			status: http.StatusBadRequest,
			reason: "unknown_judge",
		},
		{
			name:   "unknown room",
			path:   "/api/rooms/NOPE99/join",
			body:   map[string]string{"player_id": "p9", "nickname": "Di"},
			status: http.StatusNotFound,
			reason: "not_found",
		},
		{
			name:   "unknown player",
			path:   "/api/rooms/" + roomID + "/heartbeat",
			body:   map[string]string{"player_id": "ghost"},
			status: http.StatusNotFound,
			reason: "player_not_found",
		},
		{
			name:   "nickname taken",
			path:   "/api/rooms/" + roomID + "/join",
			body:   map[string]string{"player_id": "p4", "nickname": "Host"},
			status: http.StatusConflict,
			reason: "nickname_taken",
		},
		{
			name:   "player id reused across rooms",
			path:   "/api/rooms",
			body:   map[string]string{"host_id": "host", "nickname": "Again"},
			status: http.StatusConflict,
			reason: "player_exists",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, ts, http.MethodPost, tc.path, tc.body)
			requireStatus(t, resp, tc.status)
			body := decodeBody(t, resp)
			assert.Equal(t, tc.reason, body["reason"])
			if tc.error != "" {
				assert.Equal(t, tc.error, body["error"])
			}
		})
	}
}

func TestRoundOverHTTP(t *testing.T) {
	ts := newTestServer(t, testConfig(), Options{})
	roomID := createRoom(t, ts)
	joinRoom(t, ts, roomID, "p1", "Ada")

	resp := doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/start", map[string]string{"host_id": "p1"})
	requireStatus(t, resp, http.StatusConflict)
	assert.Equal(t, "not_host", decodeBody(t, resp)["reason"])

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/start", map[string]string{"host_id": "host"})
	requireStatus(t, resp, http.StatusOK)
	var start game.RoundStart
	decodeInto(t, resp, &start)
	assert.NotEmpty(t, start.Keyword)
	assert.Equal(t, 1, start.RoundNumber)

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/join", map[string]string{"player_id": "late", "nickname": "Late"})
	requireStatus(t, resp, http.StatusConflict)
	assert.Equal(t, "not_waiting", decodeBody(t, resp)["reason"])

	drawing := func(playerID string) *http.Response {
		return doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/drawings", map[string]string{
			"player_id":   playerID,
			"canvas_data": testCanvas,
		})
	}
	resp = drawing("host")
	requireStatus(t, resp, http.StatusOK)
	assert.Equal(t, false, decodeBody(t, resp)["allSubmitted"])

	resp = drawing("host")
	requireStatus(t, resp, http.StatusConflict)
	assert.Equal(t, "already_submitted", decodeBody(t, resp)["reason"])

	resp = drawing("p1")
	requireStatus(t, resp, http.StatusOK)
	var submitted struct {
		AllSubmitted bool              `json:"allSubmitted"`
		Scores       []game.RoundScore `json:"scores"`
		Winner       *game.Standing    `json:"winner"`
	}
	decodeInto(t, resp, &submitted)
	assert.True(t, submitted.AllSubmitted)
	require.Len(t, submitted.Scores, 2)
	require.NotNil(t, submitted.Winner)
	assert.Equal(t, submitted.Scores[0].PlayerID, submitted.Winner.PlayerID)

	resp = doRequest(t, ts, http.MethodGet, "/api/rooms/"+roomID+"/results", nil)
	requireStatus(t, resp, http.StatusOK)
	var results game.Results
	decodeInto(t, resp, &results)
	assert.Equal(t, game.StatusFinished, results.Room.Status)
	assert.Len(t, results.Scores, 2)
	require.NotNil(t, results.Evaluation)

	resp = doRequest(t, ts, http.MethodGet, "/api/rooms/"+roomID+"/events?after=0", nil)
	requireStatus(t, resp, http.StatusOK)
	var catchUp game.CatchUp
	decodeInto(t, resp, &catchUp)
	types := make([]string, 0, len(catchUp.Events))
	for i, event := range catchUp.Events {
		types = append(types, event.Type)
		if i > 0 {
			assert.Greater(t, event.ID, catchUp.Events[i-1].ID)
		}
	}
	assert.Equal(t, game.EventRoomCreated, types[0])
	assert.Contains(t, types, game.EventGameStarted)
	assert.Contains(t, types, game.EventEvaluationStarted)
	assert.Equal(t, game.EventRoundCompleted, types[len(types)-1])
	assert.Equal(t, catchUp.Events[len(catchUp.Events)-1].ID, catchUp.LastEventID)

	resp = doRequest(t, ts, http.MethodGet, "/api/rooms/"+roomID+"/events?after="+itoa(catchUp.LastEventID), nil)
	requireStatus(t, resp, http.StatusOK)
	var empty game.CatchUp
	decodeInto(t, resp, &empty)
	assert.Empty(t, empty.Events)
	assert.Equal(t, catchUp.LastEventID, empty.LastEventID)

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/next", map[string]string{"host_id": "host"})
	requireStatus(t, resp, http.StatusOK)
	decodeInto(t, resp, &start)
	assert.Equal(t, 2, start.RoundNumber)
}

func TestEventsRejectsNegativeCursor(t *testing.T) {
	ts := newTestServer(t, testConfig(), Options{})
	roomID := createRoom(t, ts)

	resp := doRequest(t, ts, http.MethodGet, "/api/rooms/"+roomID+"/events?after=-1", nil)
	requireStatus(t, resp, http.StatusBadRequest)
}

func TestHostHandOverAndLeave(t *testing.T) {
	ts := newTestServer(t, testConfig(), Options{})
	roomID := createRoom(t, ts)
	joinRoom(t, ts, roomID, "p1", "Ada")
	joinRoom(t, ts, roomID, "p2", "Bo")

	resp := doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/host", map[string]string{
		"host_id":     "p1",
		"new_host_id": "p2",
	})
	requireStatus(t, resp, http.StatusConflict)
	assert.Equal(t, "not_host", decodeBody(t, resp)["reason"])

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/host", map[string]string{
		"host_id":     "host",
		"new_host_id": "p2",
	})
	requireStatus(t, resp, http.StatusOK)
	var snapshot game.Snapshot
	decodeInto(t, resp, &snapshot)
	assert.Equal(t, "p2", snapshot.Room.HostID)

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/leave", map[string]string{"player_id": "p2"})
	requireStatus(t, resp, http.StatusOK)
	var left game.LeaveResult
	decodeInto(t, resp, &left)
	assert.True(t, left.WasHost)
	assert.Equal(t, "host", left.NewHostID)
	assert.False(t, left.RoomClosed)

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/heartbeat", map[string]string{"player_id": "p2"})
	requireStatus(t, resp, http.StatusNotFound)

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/heartbeat", map[string]string{"player_id": "p1"})
	requireStatus(t, resp, http.StatusOK)
}

func TestHistoryWithoutArchive(t *testing.T) {
	ts := newTestServer(t, testConfig(), Options{})
	roomID := createRoom(t, ts)

	resp := doRequest(t, ts, http.MethodGet, "/api/rooms/"+roomID+"/history", nil)
	requireStatus(t, resp, http.StatusServiceUnavailable)
	assert.Equal(t, "unavailable", decodeBody(t, resp)["reason"])
}

func TestHistoryFromArchive(t *testing.T) {
	conn, err := db.Open(":memory:", db.PoolConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() { _ = db.Close(conn) })
	archive := db.NewArchive(conn, 64, nil, nil)

	ts := newTestServer(t, testConfig(), Options{History: archive})
	roomID := createRoom(t, ts)
	joinRoom(t, ts, roomID, "p1", "Ada")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, archive.Close(ctx))

	resp := doRequest(t, ts, http.MethodGet, "/api/rooms/"+roomID+"/history", nil)
	requireStatus(t, resp, http.StatusOK)
	var history struct {
		RoomID string         `json:"roomId"`
		Events []historyEvent `json:"events"`
		Rounds []historyRound `json:"rounds"`
	}
	decodeInto(t, resp, &history)
	assert.Equal(t, roomID, history.RoomID)
	require.Len(t, history.Events, 2)
	assert.Equal(t, game.EventRoomCreated, history.Events[0].Type)
	assert.Equal(t, game.EventPlayerJoined, history.Events[1].Type)
	assert.Equal(t, archive.Instance(), history.Events[0].Instance)
	assert.Empty(t, history.Rounds)
}

func TestRateLimitAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig()
	cfg.RateLimitPerSecond = 0.001
	cfg.RateLimitBurst = 1
	ts := newTestServer(t, cfg, Options{Metrics: metrics.New(reg), Gatherer: reg})

	roomID := createRoom(t, ts)
	resp := doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/join", map[string]string{
		"player_id": "p1",
		"nickname":  "Ada",
	})
	requireStatus(t, resp, http.StatusTooManyRequests)
	assert.Equal(t, "rate_limited", decodeBody(t, resp)["reason"])

	// Reads are not limited.
	resp = doRequest(t, ts, http.MethodGet, "/api/rooms/"+roomID, nil)
	requireStatus(t, resp, http.StatusOK)

	resp = doRequest(t, ts, http.MethodGet, "/healthz", nil)
	requireStatus(t, resp, http.StatusOK)
	assert.Equal(t, float64(1), decodeBody(t, resp)["rooms"])

	resp = doRequest(t, ts, http.MethodGet, "/metrics", nil)
	requireStatus(t, resp, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "doodle_requests_rate_limited_total 1")
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, testConfig(), Options{})

	resp := doRequest(t, ts, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestEmptyCanvasCountsAsSubmitted(t *testing.T) {
	ts := newTestServer(t, testConfig(), Options{})
	roomID := createRoom(t, ts)
	joinRoom(t, ts, roomID, "p1", "Ada")
	resp := doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/start", map[string]string{"host_id": "host"})
	requireStatus(t, resp, http.StatusOK)

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/drawings", map[string]string{"player_id": "p1"})
	requireStatus(t, resp, http.StatusBadRequest)
	body := decodeBody(t, resp)
	assert.Equal(t, "invalid_input", body["reason"])
	assert.Equal(t, "canvas data is required", body["error"])

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/drawings", map[string]string{
		"player_id":   "p1",
		"canvas_data": "",
	})
	requireStatus(t, resp, http.StatusOK)
	assert.Equal(t, false, decodeBody(t, resp)["allSubmitted"])

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/drawings", map[string]string{
		"player_id":   "host",
		"canvas_data": testCanvas,
	})
	requireStatus(t, resp, http.StatusOK)
	var submitted struct {
		AllSubmitted bool              `json:"allSubmitted"`
		Scores       []game.RoundScore `json:"scores"`
	}
	decodeInto(t, resp, &submitted)
	assert.True(t, submitted.AllSubmitted)
	require.Len(t, submitted.Scores, 2)
	assert.Equal(t, "p1", submitted.Scores[1].PlayerID)
	assert.Equal(t, 0, submitted.Scores[1].Score)
}
