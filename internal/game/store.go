package game

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

var errDrawingScored = errors.New("drawing already scored")

// Store keeps rooms, players and drawings. Relations are plain id fields and
// every accessor returns copies, so callers never share mutable records.
// Callers coordinate multi-record changes for one room through the room lock
// held by the Manager.
type Store struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	players    map[string]*Player
	drawings   map[int64]*Drawing
	drawingSeq atomic.Int64
	joinSeq    int64
}

func NewStore() *Store {
	return &Store{
		rooms:    make(map[string]*Room),
		players:  make(map[string]*Player),
		drawings: make(map[int64]*Drawing),
	}
}

func (s *Store) InsertRoom(room Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return false
	}
	s.rooms[room.ID] = &room
	return true
}

func (s *Store) Room(id string) (Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return Room{}, false
	}
	return *room, true
}

// UpdateRoom applies update to a working copy and keeps it only when update
// succeeds.
func (s *Store) UpdateRoom(id string, update func(room *Room) error) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	next := *room
	if err := update(&next); err != nil {
		return Room{}, err
	}
	*room = next
	return next, nil
}

// DeleteRoom removes the room together with its players and drawings.
func (s *Store) DeleteRoom(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	for playerID, player := range s.players {
		if player.RoomID == id {
			delete(s.players, playerID)
		}
	}
	for drawingID, drawing := range s.drawings {
		if drawing.RoomID == id {
			delete(s.drawings, drawingID)
		}
	}
}

func (s *Store) RoomIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InsertPlayer stores a new player and stamps its join order. Player ids are
// unique across all rooms.
func (s *Store) InsertPlayer(player Player) (Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[player.ID]; ok {
		return Player{}, ErrPlayerExists
	}
	if _, ok := s.rooms[player.RoomID]; !ok {
		return Player{}, ErrRoomNotFound
	}
	s.joinSeq++
	player.joinSeq = s.joinSeq
	s.players[player.ID] = &player
	return player, nil
}

func (s *Store) Player(id string) (Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return Player{}, false
	}
	return *player, true
}

func (s *Store) UpdatePlayer(id string, update func(player *Player) error) (Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[id]
	if !ok {
		return Player{}, ErrPlayerNotFound
	}
	next := *player
	if err := update(&next); err != nil {
		return Player{}, err
	}
	*player = next
	return next, nil
}

// UpdatePlayersInRoom applies update to every player of the room in one step.
func (s *Store) UpdatePlayersInRoom(roomID string, update func(player *Player)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, player := range s.players {
		if player.RoomID == roomID {
			update(player)
		}
	}
}

func (s *Store) DeletePlayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[id]; !ok {
		return false
	}
	delete(s.players, id)
	return true
}

// PlayersInRoom returns the room's players in join order.
func (s *Store) PlayersInRoom(roomID string) []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make([]Player, 0)
	for _, player := range s.players {
		if player.RoomID == roomID {
			players = append(players, *player)
		}
	}
	sortByJoinOrder(players)
	return players
}

// Players returns every player of every room.
func (s *Store) Players() []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make([]Player, 0, len(s.players))
	for _, player := range s.players {
		players = append(players, *player)
	}
	sortByJoinOrder(players)
	return players
}

func (s *Store) InsertDrawing(drawing Drawing) Drawing {
	drawing.ID = s.drawingSeq.Add(1)
	drawing.Score = nil
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawings[drawing.ID] = &drawing
	return drawing
}

// DrawingsForRound returns the drawings of one round in submission order.
func (s *Store) DrawingsForRound(roomID string, round int) []Drawing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	drawings := make([]Drawing, 0)
	for _, drawing := range s.drawings {
		if drawing.RoomID == roomID && drawing.RoundNumber == round {
			drawings = append(drawings, cloneDrawing(drawing))
		}
	}
	sort.Slice(drawings, func(i, j int) bool {
		return drawings[i].ID < drawings[j].ID
	})
	return drawings
}

// SetDrawingScore records a drawing's score once. Scored drawings are final.
func (s *Store) SetDrawingScore(id int64, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drawing, ok := s.drawings[id]
	if !ok {
		return errors.New("drawing not found")
	}
	if drawing.Score != nil {
		return errDrawingScored
	}
	drawing.Score = &score
	return nil
}

func cloneDrawing(drawing *Drawing) Drawing {
	out := *drawing
	if drawing.Score != nil {
		score := *drawing.Score
		out.Score = &score
	}
	return out
}

func sortByJoinOrder(players []Player) {
	sort.Slice(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].joinSeq < players[j].joinSeq
	})
}
