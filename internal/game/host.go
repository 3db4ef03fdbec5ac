package game

import (
	"fmt"

	"go.uber.org/zap"
)

// FindNewHost returns the earliest joined player of the room other than
// excludeID.
func (m *Manager) FindNewHost(roomID, excludeID string) (Player, bool) {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return Player{}, false
	}
	defer sess.mu.Unlock()
	return findNewHost(m.store.PlayersInRoom(sess.roomID), excludeID)
}

func findNewHost(players []Player, excludeID string) (Player, bool) {
	for _, player := range players {
		if player.ID != excludeID {
			return player, true
		}
	}
	return Player{}, false
}

// TransferHost makes newHostID the room's host.
func (m *Manager) TransferHost(roomID, newHostID string) error {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()
	return m.transferHostLocked(sess, newHostID)
}

// HandOverHost lets the current host pass the role to another player.
func (m *Manager) HandOverHost(roomID, hostID, newHostID string) error {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()
	room, err := m.roomLocked(sess)
	if err != nil {
		return err
	}
	if room.HostID != hostID {
		return ErrNotHost
	}
	return m.transferHostLocked(sess, newHostID)
}

func (m *Manager) transferHostLocked(sess *session, newHostID string) error {
	room, err := m.roomLocked(sess)
	if err != nil {
		return err
	}
	if _, err := m.playerInRoomLocked(sess, newHostID); err != nil {
		return err
	}
	oldHostID := room.HostID
	if oldHostID == newHostID {
		return m.verifyHostLocked(sess)
	}

	if _, ok := m.store.Player(oldHostID); ok {
		if _, err := m.store.UpdatePlayer(oldHostID, func(p *Player) error {
			p.IsHost = false
			return nil
		}); err != nil {
			return err
		}
	}
	if _, err := m.store.UpdatePlayer(newHostID, func(p *Player) error {
		p.IsHost = true
		return nil
	}); err != nil {
		return err
	}
	if _, err := m.store.UpdateRoom(room.ID, func(r *Room) error {
		r.HostID = newHostID
		return nil
	}); err != nil {
		return err
	}
	if err := m.verifyHostLocked(sess); err != nil {
		return err
	}

	m.events.Append(room.ID, EventHostTransferred, &EventPayload{OldHostID: oldHostID, NewHostID: newHostID})
	m.logger.Info("host transferred",
		zap.String("room_id", room.ID),
		zap.String("old_host_id", oldHostID),
		zap.String("new_host_id", newHostID))
	return nil
}

// CheckHost reports whether the room has exactly one host and that host
// matches the room record.
func (m *Manager) CheckHost(roomID string) error {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()
	return m.verifyHostLocked(sess)
}

func (m *Manager) verifyHostLocked(sess *session) error {
	room, err := m.roomLocked(sess)
	if err != nil {
		return err
	}
	hosts := 0
	flagged := ""
	for _, player := range m.store.PlayersInRoom(room.ID) {
		if player.IsHost {
			hosts++
			flagged = player.ID
		}
	}
	if hosts == 1 && flagged == room.HostID {
		return nil
	}
	err = &InvariantError{
		RoomID: room.ID,
		Hosts:  hosts,
		Detail: fmt.Sprintf("room host %q, flagged host %q", room.HostID, flagged),
	}
	m.logger.Error("host check failed", zap.String("room_id", room.ID), zap.Error(err))
	return err
}
