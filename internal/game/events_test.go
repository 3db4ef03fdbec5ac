package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorderFunc func(GameEvent)

func (f recorderFunc) Record(event GameEvent) { f(event) }

func TestEventLogSinceIsOldestFirst(t *testing.T) {
	var recorded []int64
	log := NewEventLog(recorderFunc(func(e GameEvent) { recorded = append(recorded, e.ID) }))

	a1 := log.Append("A", EventRoomCreated, nil)
	b1 := log.Append("B", EventRoomCreated, nil)
	a2 := log.Append("A", EventPlayerJoined, &EventPayload{PlayerID: "p"})
	a3 := log.Append("A", EventGameStarted, &EventPayload{Keyword: "cat", RoundNumber: 1})

	assert.Greater(t, b1.ID, a1.ID)
	assert.Equal(t, []int64{a1.ID, b1.ID, a2.ID, a3.ID}, recorded)

	all := log.Since("A", 0)
	assert.Equal(t, []string{EventRoomCreated, EventPlayerJoined, EventGameStarted}, eventTypes(all))

	later := log.Since("A", a2.ID)
	require.Len(t, later, 1)
	assert.Equal(t, a3.ID, later[0].ID)
	assert.Empty(t, log.Since("A", a3.ID))
	assert.Equal(t, a3.ID, log.LastID("A"))
	assert.Empty(t, log.Since("missing", 0))
}

func TestEventLogConcurrentAppendsStayOrdered(t *testing.T) {
	log := NewEventLog(nil)
	rooms := []string{"A", "B", "C"}
	var wg sync.WaitGroup
	for _, room := range rooms {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(room string) {
				defer wg.Done()
				log.Append(room, EventDrawingSubmitted, nil)
			}(room)
		}
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, room := range rooms {
		events := log.Since(room, 0)
		require.Len(t, events, 50)
		requireIncreasingIDs(t, events)
		for _, event := range events {
			assert.False(t, seen[event.ID], "duplicate id %d", event.ID)
			seen[event.ID] = true
		}
	}
}

func TestSubscriptionWakesAndEnds(t *testing.T) {
	log := NewEventLog(nil)
	log.Append("A", EventRoomCreated, nil)

	sub := log.Subscribe("A")
	log.Append("A", EventPlayerJoined, nil)
	log.Append("A", EventPlayerJoined, nil)

	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("expected wakeup")
	}
	select {
	case <-sub.C:
		t.Fatal("wakeups should coalesce")
	default:
	}

	log.DeleteRoom("A")
	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("expected subscription to end with the room")
	}
	sub.Close()

	gone := log.Subscribe("A")
	select {
	case <-gone.Done:
	default:
		t.Fatal("subscribing to a deleted room should end immediately")
	}
}
