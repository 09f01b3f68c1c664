package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/clinical-intake/internal/domain"
)

// IsProcessed reports whether consumer has a non-expired inbox record for eventID.
func IsProcessed(ctx context.Context, db *gorm.DB, consumer, eventID string, now time.Time) (bool, error) {
	var rec domain.ProcessedEvent
	err := db.WithContext(ctx).
		Select("id").
		Where("consumer = ? AND event_id = ? AND expires_at > ?", consumer, eventID, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkProcessed records that consumer applied eventID. Recording the same
// event again refreshes its expiry.
func MarkProcessed(ctx context.Context, db *gorm.DB, consumer, eventID, eventType string, ttl time.Duration, now time.Time) error {
	rec := &domain.ProcessedEvent{
		ID:        uuid.NewString(),
		Consumer:  consumer,
		EventID:   eventID,
		EventType: eventType,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "consumer"}, {Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
		}).
		Create(rec).Error
}

// PurgeExpired deletes inbox records that expired before now and returns how
// many were removed.
func PurgeExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.ProcessedEvent{})
	return res.RowsAffected, res.Error
}
