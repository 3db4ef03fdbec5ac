package db

import (
	"time"

	"gorm.io/datatypes"
)

// Event is one archived game event. EventID is the in-process event id;
// Instance tells apart the runs of the server, since ids restart at one.
type Event struct {
	ID        uint           `gorm:"primaryKey"`
	Instance  string         `gorm:"size:36;not null;uniqueIndex:idx_game_events_instance_event"`
	EventID   int64          `gorm:"not null;uniqueIndex:idx_game_events_instance_event"`
	RoomID    string         `gorm:"size:12;index;not null"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (Event) TableName() string {
	return "game_events"
}

// RoundResult summarizes a completed round for reporting.
type RoundResult struct {
	ID          uint           `gorm:"primaryKey"`
	Instance    string         `gorm:"size:36;not null;uniqueIndex:idx_round_results_instance_event"`
	EventID     int64          `gorm:"not null;uniqueIndex:idx_round_results_instance_event"`
	RoomID      string         `gorm:"size:12;index;not null"`
	RoundNumber int            `gorm:"not null"`
	WinnerID    string         `gorm:"size:64"`
	Scores      datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null"`
}
