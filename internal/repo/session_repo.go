package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/clinical-intake/internal/domain"
)

// CreateSession inserts a new session together with its initial messages.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	return db.WithContext(ctx).Create(s).Error
}

// SaveSession persists the mutable header fields of s, inserts messages that
// have not been stored yet (ID == 0) and the summary when it is new. Stored
// messages are never rewritten.
func SaveSession(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Session{}).
			Where("id = ?", s.ID).
			Updates(map[string]any{
				"status":       s.Status,
				"updated_at":   s.UpdatedAt,
				"completed_at": s.CompletedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		for i := range s.Messages {
			m := &s.Messages[i]
			if m.ID != 0 {
				continue
			}
			m.SessionID = s.ID
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}

		if s.Summary != nil && s.Summary.ID == 0 {
			s.Summary.SessionID = s.ID
			if err := tx.Create(s.Summary).Error; err != nil {
				if isDuplicate(err) {
					return ErrDuplicate
				}
				return err
			}
		}
		return nil
	})
}

// GetSession loads a session with its ordered message log and summary.
func GetSession(ctx context.Context, db *gorm.DB, id int64) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Preload("Messages", func(tx *gorm.DB) *gorm.DB { return tx.Order("seq asc") }).
		Preload("Summary").
		First(&s, id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SessionFilter narrows ListSessions. Zero values are ignored.
type SessionFilter struct {
	OwnerID int64
	Status  domain.SessionStatus
}

func (f SessionFilter) apply(tx *gorm.DB) *gorm.DB {
	if f.OwnerID > 0 {
		tx = tx.Where("owner_id = ?", f.OwnerID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	return tx
}

// CountSessions returns the number of sessions matching f.
func CountSessions(ctx context.Context, db *gorm.DB, f SessionFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Session{})).Count(&total).Error
	return total, err
}

// ListSessionsPage returns sessions matching f, newest first, without their
// message logs.
func ListSessionsPage(ctx context.Context, db *gorm.DB, f SessionFilter, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := f.apply(db.WithContext(ctx)).
		Order("created_at desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListCompletedSince returns completed sessions (with summaries) whose
// completion time is at or after since, oldest first. A non-positive limit
// returns every match.
func ListCompletedSince(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = -1
	}
	var out []domain.Session
	err := db.WithContext(ctx).
		Preload("Summary").
		Where("status = ? AND completed_at >= ?", domain.SessionCompleted, since).
		Order("completed_at asc").
		Order("id asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
