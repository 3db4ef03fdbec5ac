package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"doodle-duel/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := Open(":memory:", PoolConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, Migrate(conn))
	t.Cleanup(func() { _ = Close(conn) })
	return conn
}

func TestArchiveWritesEventsAndRounds(t *testing.T) {
	conn := openTestDB(t)
	archive := NewArchive(conn, 16, nil, nil)
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	archive.Record(game.GameEvent{ID: 1, RoomID: "ABC234", Type: game.EventRoomCreated, Data: &game.EventPayload{HostID: "h"}, CreatedAt: at})
	archive.Record(game.GameEvent{ID: 2, RoomID: "ZZZ999", Type: game.EventRoomCreated, CreatedAt: at})
	archive.Record(game.GameEvent{
		ID:     3,
		RoomID: "ABC234",
		Type:   game.EventRoundCompleted,
		Data: &game.EventPayload{
			RoundNumber: 1,
			Scores:      []game.RoundScore{{PlayerID: "h", Rank: 1, Score: 80, Total: 80}},
			Winner:      &game.Standing{PlayerID: "h", Score: 80},
		},
		CreatedAt: at.Add(time.Minute),
	})
	// A duplicate delivery is ignored.
	archive.Record(game.GameEvent{ID: 1, RoomID: "ABC234", Type: game.EventRoomCreated, CreatedAt: at})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, archive.Close(ctx))

	events, err := archive.History(ctx, "ABC234", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].EventID)
	assert.Equal(t, game.EventRoundCompleted, events[1].Type)
	assert.Equal(t, archive.Instance(), events[0].Instance)

	var payload game.EventPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "h", payload.HostID)

	rounds, err := archive.Rounds(ctx, "ABC234")
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, "h", rounds[0].WinnerID)
	assert.Equal(t, 1, rounds[0].RoundNumber)
}

func TestArchiveDropsAfterClose(t *testing.T) {
	conn := openTestDB(t)
	archive := NewArchive(conn, 1, nil, nil)
	require.NoError(t, archive.Close(context.Background()))

	archive.Record(game.GameEvent{ID: 9, RoomID: "ABC234", Type: game.EventRoomCreated})

	events, err := archive.History(context.Background(), "ABC234", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestArchiveRecordsManagerEvents(t *testing.T) {
	conn := openTestDB(t)
	archive := NewArchive(conn, 64, nil, nil)
	m := game.NewManager(game.Options{Recorder: archive})

	snapshot, err := m.CreateRoom("host", "Host", "")
	require.NoError(t, err)
	_, err = m.JoinRoom(snapshot.Room.ID, "p2", "Two")
	require.NoError(t, err)
	m.Close()
	require.NoError(t, archive.Close(context.Background()))

	events, err := archive.History(context.Background(), snapshot.Room.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, game.EventRoomCreated, events[0].Type)
	assert.Equal(t, game.EventPlayerJoined, events[1].Type)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("  ", PoolConfig{}, nil)
	assert.Error(t, err)
	assert.Error(t, Migrate(nil))
	assert.NoError(t, Close(nil))
}
