package game

import (
	"sort"
	"sync"
	"time"
)

// Recorder receives every appended event. Record is called while the room
// lock is held and must not block.
type Recorder interface {
	Record(event GameEvent)
}

// EventLog is the append-only per-room event history. Ids come from one global
// sequence, so they strictly increase within a room and across rooms.
type EventLog struct {
	mu       sync.RWMutex
	nextID   int64
	rooms    map[string][]GameEvent
	watchers map[string]map[*Subscription]struct{}
	recorder Recorder
	now      func() time.Time
	onAppend func(eventType string)
}

func NewEventLog(recorder Recorder) *EventLog {
	return &EventLog{
		rooms:    make(map[string][]GameEvent),
		watchers: make(map[string]map[*Subscription]struct{}),
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (l *EventLog) Append(roomID, eventType string, payload *EventPayload) GameEvent {
	l.mu.Lock()
	l.nextID++
	event := GameEvent{
		ID:        l.nextID,
		RoomID:    roomID,
		Type:      eventType,
		Data:      payload,
		CreatedAt: l.now(),
	}
	l.rooms[roomID] = append(l.rooms[roomID], event)
	for sub := range l.watchers[roomID] {
		sub.notify()
	}
	l.mu.Unlock()

	if l.onAppend != nil {
		l.onAppend(eventType)
	}
	if l.recorder != nil {
		l.recorder.Record(event)
	}
	return event
}

// Since returns the room's events with an id greater than afterID, oldest
// first.
func (l *EventLog) Since(roomID string, afterID int64) []GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	events := l.rooms[roomID]
	start := sort.Search(len(events), func(i int) bool {
		return events[i].ID > afterID
	})
	out := make([]GameEvent, len(events)-start)
	copy(out, events[start:])
	return out
}

func (l *EventLog) LastID(roomID string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	events := l.rooms[roomID]
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].ID
}

// DeleteRoom drops the room's history and ends its subscriptions.
func (l *EventLog) DeleteRoom(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rooms, roomID)
	for sub := range l.watchers[roomID] {
		sub.end()
	}
	delete(l.watchers, roomID)
}

// Subscription wakes a reader whenever the room gets new events. Wakeups
// coalesce: a reader that falls behind sees one pending signal and catches up
// with Since.
type Subscription struct {
	C    <-chan struct{}
	Done <-chan struct{}

	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
	log    *EventLog
	roomID string
}

func (l *EventLog) Subscribe(roomID string) *Subscription {
	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	sub := &Subscription{C: wake, Done: done, wake: wake, done: done, log: l, roomID: roomID}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.rooms[roomID]; !ok {
		sub.end()
		return sub
	}
	if l.watchers[roomID] == nil {
		l.watchers[roomID] = make(map[*Subscription]struct{})
	}
	l.watchers[roomID][sub] = struct{}{}
	return sub
}

func (s *Subscription) Close() {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	if watchers, ok := s.log.watchers[s.roomID]; ok {
		delete(watchers, s)
		if len(watchers) == 0 {
			delete(s.log.watchers, s.roomID)
		}
	}
	s.end()
}

func (s *Subscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) end() {
	s.once.Do(func() { close(s.done) })
}
