package game

var statusTransitions = map[RoomStatus][]RoomStatus{
	StatusWaiting:  {StatusPlaying},
	StatusPlaying:  {StatusScoring},
	StatusScoring:  {StatusFinished},
	StatusFinished: {StatusPlaying},
}

func canTransition(from, to RoomStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves the room to status to when the table allows it.
func transition(to RoomStatus, mutate func(room *Room)) func(room *Room) error {
	return func(room *Room) error {
		if !canTransition(room.Status, to) {
			return ErrInvalidState
		}
		room.Status = to
		if mutate != nil {
			mutate(room)
		}
		return nil
	}
}
