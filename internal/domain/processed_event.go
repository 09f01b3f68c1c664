package domain

import "time"

// ProcessedEvent records that a consumer has already applied an event. The
// (consumer, event_id) pair is unique, so an exact redelivery can be
// short-circuited before the aggregate is touched. Rows expire after the
// configured inbox TTL.
type ProcessedEvent struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Consumer  string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_consumer_event,priority:1"`
	EventID   string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_consumer_event,priority:2"`
	EventType string    `gorm:"type:varchar(64);not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (ProcessedEvent) TableName() string { return "processed_events" }
