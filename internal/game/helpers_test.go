package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"doodle-duel/internal/judge"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
)

var testCanvas = "data:image/png;base64," + strings.Repeat("A", 400)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func randomRegistry(extra map[string]judge.Judge) *judge.Registry {
	reg := judge.NewRegistry(judge.ModelRandom)
	reg.Register(judge.ModelRandom, judge.NewRandom(7))
	for model, j := range extra {
		reg.Register(model, j)
	}
	return reg
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.Judges == nil {
		opts.Judges = randomRegistry(nil)
	}
	if opts.Evaluator == nil {
		opts.Evaluator = judge.NewEvaluator(opts.Judges, judge.EvaluatorConfig{Attempts: 3, Backoff: time.Millisecond, Timeout: time.Second}, nil, nil)
	}
	if opts.TickInterval == 0 {
		opts.TickInterval = time.Hour
	}
	if opts.MinCanvasLength == 0 {
		opts.MinCanvasLength = 200
	}
	m := NewManager(opts)
	t.Cleanup(m.Close)
	return m
}

// newRoom creates a room hosted by "host" with the given extra players.
func newRoom(t *testing.T, m *Manager, players ...string) string {
	t.Helper()
	snapshot, err := m.CreateRoom("host", "Host", "")
	require.NoError(t, err)
	for _, id := range players {
		_, err := m.JoinRoom(snapshot.Room.ID, id, "nick-"+id)
		require.NoError(t, err)
	}
	return snapshot.Room.ID
}

func eventTypes(events []GameEvent) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		out = append(out, event.Type)
	}
	return out
}

func requireIncreasingIDs(t *testing.T, events []GameEvent) {
	t.Helper()
	for i := 1; i < len(events); i++ {
		require.Greater(t, events[i].ID, events[i-1].ID, "event %d (%s)", i, events[i].Type)
	}
}

func fakePlayers(seed uint64, n int) []string {
	faker := gofakeit.New(seed)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, fmt.Sprintf("%s-%d", faker.Username(), i))
	}
	return ids
}

// gateJudge blocks every evaluation until released.
type gateJudge struct {
	entered chan struct{}
	release chan struct{}
}

func newGateJudge() *gateJudge {
	return &gateJudge{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gateJudge) Evaluate(ctx context.Context, submissions []judge.Submission, keyword string) (judge.Evaluation, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return judge.Evaluation{}, ctx.Err()
	}
	return judge.NewRandom(1).Evaluate(ctx, submissions, keyword)
}
