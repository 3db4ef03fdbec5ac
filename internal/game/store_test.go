package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	require.True(t, s.InsertRoom(Room{ID: "ROOM1", Status: StatusWaiting}))
	assert.False(t, s.InsertRoom(Room{ID: "ROOM1"}))

	room, ok := s.Room("ROOM1")
	require.True(t, ok)
	room.Status = StatusPlaying

	stored, _ := s.Room("ROOM1")
	assert.Equal(t, StatusWaiting, stored.Status)
}

func TestStoreUpdateRollsBackOnError(t *testing.T) {
	s := NewStore()
	s.InsertRoom(Room{ID: "ROOM1", Status: StatusWaiting})

	_, err := s.UpdateRoom("ROOM1", func(r *Room) error {
		r.CurrentKeyword = "cat"
		return ErrInvalidState
	})
	require.ErrorIs(t, err, ErrInvalidState)
	room, _ := s.Room("ROOM1")
	assert.Empty(t, room.CurrentKeyword)

	_, err = s.UpdateRoom("MISSING", func(r *Room) error { return nil })
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestStorePlayersInJoinOrder(t *testing.T) {
	s := NewStore()
	s.InsertRoom(Room{ID: "ROOM1"})
	s.InsertRoom(Room{ID: "ROOM2"})
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"c", "a", "b"} {
		_, err := s.InsertPlayer(Player{ID: id, RoomID: "ROOM1", JoinedAt: at})
		require.NoError(t, err)
	}
	_, err := s.InsertPlayer(Player{ID: "z", RoomID: "ROOM2", JoinedAt: at.Add(-time.Hour)})
	require.NoError(t, err)

	_, err = s.InsertPlayer(Player{ID: "a", RoomID: "ROOM2"})
	assert.ErrorIs(t, err, ErrPlayerExists)
	_, err = s.InsertPlayer(Player{ID: "q", RoomID: "NOPE"})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	var ids []string
	for _, p := range s.PlayersInRoom("ROOM1") {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Len(t, s.Players(), 4)
}

func TestStoreDeleteRoomCascades(t *testing.T) {
	s := NewStore()
	s.InsertRoom(Room{ID: "ROOM1"})
	s.InsertRoom(Room{ID: "ROOM2"})
	_, _ = s.InsertPlayer(Player{ID: "a", RoomID: "ROOM1"})
	_, _ = s.InsertPlayer(Player{ID: "b", RoomID: "ROOM2"})
	s.InsertDrawing(Drawing{PlayerID: "a", RoomID: "ROOM1", RoundNumber: 1})
	s.InsertDrawing(Drawing{PlayerID: "b", RoomID: "ROOM2", RoundNumber: 1})

	s.DeleteRoom("ROOM1")

	_, ok := s.Player("a")
	assert.False(t, ok)
	assert.Empty(t, s.DrawingsForRound("ROOM1", 1))
	assert.Len(t, s.DrawingsForRound("ROOM2", 1), 1)
	assert.Equal(t, []string{"ROOM2"}, s.RoomIDs())
}

func TestStoreDrawingScoreIsFinal(t *testing.T) {
	s := NewStore()
	first := s.InsertDrawing(Drawing{PlayerID: "a", RoomID: "ROOM1", RoundNumber: 1})
	second := s.InsertDrawing(Drawing{PlayerID: "b", RoomID: "ROOM1", RoundNumber: 1})
	s.InsertDrawing(Drawing{PlayerID: "a", RoomID: "ROOM1", RoundNumber: 2})
	assert.Greater(t, second.ID, first.ID)

	require.NoError(t, s.SetDrawingScore(first.ID, 70))
	assert.ErrorIs(t, s.SetDrawingScore(first.ID, 10), errDrawingScored)
	assert.Error(t, s.SetDrawingScore(999, 10))

	drawings := s.DrawingsForRound("ROOM1", 1)
	require.Len(t, drawings, 2)
	require.NotNil(t, drawings[0].Score)
	assert.Equal(t, 70, *drawings[0].Score)
	assert.Nil(t, drawings[1].Score)

	*drawings[0].Score = 5
	again := s.DrawingsForRound("ROOM1", 1)
	assert.Equal(t, 70, *again[0].Score)
}
