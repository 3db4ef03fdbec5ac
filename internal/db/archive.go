package db

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"doodle-duel/internal/game"
	"doodle-duel/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Archive copies game events to the database on a single worker. Recording
// never blocks the game: when the queue is full the event is dropped and
// counted.
type Archive struct {
	conn     *gorm.DB
	instance string
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan game.GameEvent
	done   chan struct{}
}

func NewArchive(conn *gorm.DB, buffer int, logger *zap.Logger, m *metrics.Metrics) *Archive {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	a := &Archive{
		conn:     conn,
		instance: uuid.NewString(),
		logger:   logger.Named("archive"),
		metrics:  m,
		queue:    make(chan game.GameEvent, buffer),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Archive) Instance() string {
	return a.instance
}

// Record queues the event for writing.
func (a *Archive) Record(event game.GameEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop(event, "archive closed")
		return
	}
	select {
	case a.queue <- event:
	default:
		a.drop(event, "archive queue full")
	}
}

func (a *Archive) drop(event game.GameEvent, reason string) {
	a.metrics.ArchiveDropped.Inc()
	a.logger.Warn("event not archived",
		zap.String("room_id", event.RoomID),
		zap.Int64("event_id", event.ID),
		zap.String("reason", reason))
}

// Close stops accepting events and waits until the queue is written or ctx
// ends.
func (a *Archive) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Archive) run() {
	defer close(a.done)
	for event := range a.queue {
		if err := a.write(context.Background(), event); err != nil {
			a.logger.Warn("archive write failed",
				zap.String("room_id", event.RoomID),
				zap.Int64("event_id", event.ID),
				zap.Error(err))
		}
	}
}

func (a *Archive) write(ctx context.Context, event game.GameEvent) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	row := Event{
		Instance:  a.instance,
		EventID:   event.ID,
		RoomID:    event.RoomID,
		Type:      event.Type,
		Payload:   datatypes.JSON(payload),
		CreatedAt: event.CreatedAt,
	}
	conn := a.conn.WithContext(ctx)
	if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return err
	}
	if event.Type != game.EventRoundCompleted || event.Data == nil {
		return nil
	}

	scores, err := json.Marshal(event.Data.Scores)
	if err != nil {
		return err
	}
	summary := RoundResult{
		Instance:    a.instance,
		EventID:     event.ID,
		RoomID:      event.RoomID,
		RoundNumber: event.Data.RoundNumber,
		Scores:      datatypes.JSON(scores),
		CreatedAt:   event.CreatedAt,
	}
	if event.Data.Winner != nil {
		summary.WinnerID = event.Data.Winner.PlayerID
	}
	return conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&summary).Error
}

// History returns archived events for a room code, oldest first.
func (a *Archive) History(ctx context.Context, roomID string, limit int) ([]Event, error) {
	if roomID == "" {
		return nil, errors.New("room id is required")
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var events []Event
	err := a.conn.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// Rounds returns the archived round summaries for a room code, oldest first.
func (a *Archive) Rounds(ctx context.Context, roomID string) ([]RoundResult, error) {
	var rounds []RoundResult
	err := a.conn.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id ASC").
		Find(&rounds).Error
	return rounds, err
}
