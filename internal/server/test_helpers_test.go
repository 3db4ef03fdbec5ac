package server

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"doodle-duel/internal/config"
	"doodle-duel/internal/game"
	"doodle-duel/internal/judge"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var testCanvas = "data:image/png;base64," + strings.Repeat("A", 400)

type testServer struct {
	*httptest.Server
	manager *game.Manager
	server  *Server
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RateLimitPerSecond = 0
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	judges := judge.NewRegistry(judge.ModelRandom)
	judges.Register(judge.ModelRandom, judge.NewRandom(11))
	manager := game.NewManager(game.Options{
		RoundSeconds:    60,
		TickInterval:    time.Hour,
		MinCanvasLength: 200,
		Judges:          judges,
		Evaluator: judge.NewEvaluator(judges, judge.EvaluatorConfig{
			Attempts: 2,
			Backoff:  time.Millisecond,
			Timeout:  time.Second,
		}, nil, nil),
		Recorder: recorderFrom(opts.History),
	})
	t.Cleanup(manager.Close)

	srv := New(manager, cfg, opts)
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(func() {
		srv.CloseStreams()
		ts.Close()
	})
	return &testServer{Server: ts, manager: manager, server: srv}
}

// recorderFrom wires an archive used as the history reader into the manager.
func recorderFrom(history HistoryReader) game.Recorder {
	if recorder, ok := history.(game.Recorder); ok {
		return recorder
	}
	return nil
}

func doRequest(t *testing.T, ts *testServer, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func decodeInto(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func requireStatus(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	require.Equal(t, status, resp.StatusCode, "%s %s", resp.Request.Method, resp.Request.URL.Path)
}

// createRoom creates a room hosted by "host" and returns its code.
func createRoom(t *testing.T, ts *testServer) string {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/rooms", map[string]string{
		"host_id":  "host",
		"nickname": "Host",
	})
	requireStatus(t, resp, http.StatusCreated)
	body := decodeBody(t, resp)
	roomID, ok := body["roomId"].(string)
	require.True(t, ok, "roomId missing: %v", body)
	return roomID
}

func joinRoom(t *testing.T, ts *testServer, roomID, playerID, nickname string) {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/join", map[string]string{
		"player_id": playerID,
		"nickname":  nickname,
	})
	requireStatus(t, resp, http.StatusOK)
}
