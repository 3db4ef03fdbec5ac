package game

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Monitor evicts players whose last heartbeat is older than the inactivity
// threshold. A host is replaced before being removed.
type Monitor struct {
	manager   *Manager
	interval  time.Duration
	threshold time.Duration
	logger    *zap.Logger
}

func NewMonitor(manager *Manager, interval, threshold time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if threshold <= 0 {
		threshold = 30 * time.Second
	}
	return &Monitor{
		manager:   manager,
		interval:  interval,
		threshold: threshold,
		logger:    manager.logger.Named("liveness"),
	}
}

func (mon *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mon.Sweep()
		}
	}
}

// Sweep checks every player once and returns how many were evicted.
func (mon *Monitor) Sweep() int {
	cutoff := mon.manager.now().Add(-mon.threshold)
	evicted := 0
	for _, player := range mon.manager.store.Players() {
		if !player.LastActive.Before(cutoff) {
			continue
		}
		ok, err := mon.manager.EvictIfInactive(player.RoomID, player.ID, cutoff)
		if err != nil {
			if !IsNotFound(err) {
				mon.logger.Error("evict player failed",
					zap.String("room_id", player.RoomID),
					zap.String("player_id", player.ID),
					zap.Error(err))
			}
			continue
		}
		if ok {
			evicted++
		}
	}
	return evicted
}

// EvictIfInactive removes the player when their last activity is still before
// cutoff once the room lock is held. A heartbeat that landed in between keeps
// the player.
func (m *Manager) EvictIfInactive(roomID, playerID string, cutoff time.Time) (bool, error) {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return false, err
	}
	player, err := m.playerInRoomLocked(sess, playerID)
	if err != nil {
		sess.mu.Unlock()
		return false, err
	}
	if !player.LastActive.Before(cutoff) {
		sess.mu.Unlock()
		return false, nil
	}
	result, round, err := m.leaveLocked(sess, player, reasonInactive)
	sess.mu.Unlock()
	if err != nil {
		var invariant *InvariantError
		if errors.As(err, &invariant) {
			m.logger.Error("eviction aborted", zap.String("room_id", roomID), zap.Error(err))
		}
		return false, err
	}
	m.metrics.PlayersEvicted.Inc()
	m.logger.Info("player evicted",
		zap.String("room_id", roomID),
		zap.String("player_id", playerID),
		zap.Bool("was_host", result.WasHost),
		zap.String("new_host_id", result.NewHostID),
		zap.Bool("room_closed", result.RoomClosed))
	if round > 0 {
		m.scoreAsync(sess, round)
	}
	return true, nil
}
