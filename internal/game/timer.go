package game

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var errStaleTimer = errors.New("timer no longer current")

// roundTimer counts one round down. A room has at most one live timer; a
// timer replaced or cancelled by the room stops at its next tick.
type roundTimer struct {
	round int
	stop  chan struct{}
	once  sync.Once
}

func (t *roundTimer) cancel() {
	t.once.Do(func() { close(t.stop) })
}

func (m *Manager) startTimerLocked(sess *session, round int) {
	sess.stopTimer()
	t := &roundTimer{round: round, stop: make(chan struct{})}
	sess.timer = t
	m.wg.Add(1)
	go m.runTimer(sess, t)
}

func (m *Manager) runTimer(sess *session, t *roundTimer) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			round, done := m.tick(sess, t)
			if round > 0 {
				if _, err := m.scoreRound(m.ctx, sess, round); err != nil &&
					!errors.Is(err, errRoundSuperseded) && !errors.Is(err, ErrRoomNotFound) {
					m.logger.Error("round scoring failed",
						zap.String("room_id", sess.roomID),
						zap.Int("round", round),
						zap.Error(err))
				}
			}
			if done {
				return
			}
		}
	}
}

// tick decrements time_left by one second. At zero it moves the room to
// scoring and returns the round to score.
func (m *Manager) tick(sess *session, t *roundTimer) (int, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed || sess.timer != t {
		return 0, true
	}
	room, err := m.store.UpdateRoom(sess.roomID, func(r *Room) error {
		if r.Status != StatusPlaying || r.RoundNumber != t.round {
			return errStaleTimer
		}
		if r.TimeLeft > 0 {
			r.TimeLeft--
		}
		return nil
	})
	if err != nil {
		sess.stopTimer()
		return 0, true
	}
	if room.TimeLeft > 0 {
		return 0, false
	}
	round, err := m.beginScoringLocked(sess, reasonTimeout)
	if err != nil {
		return 0, true
	}
	return round, true
}
