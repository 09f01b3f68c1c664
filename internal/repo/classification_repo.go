package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/clinical-intake/internal/domain"
)

// CreateClassification inserts c. A second record for the same session is
// rejected by ux_classification_session and reported as ErrDuplicate.
func CreateClassification(ctx context.Context, db *gorm.DB, c *domain.Classification) error {
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetClassification fetches a classification by id.
func GetClassification(ctx context.Context, db *gorm.DB, id int64) (*domain.Classification, error) {
	var c domain.Classification
	if err := db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClassificationBySession fetches the classification of a session.
func GetClassificationBySession(ctx context.Context, db *gorm.DB, sessionID int64) (*domain.Classification, error) {
	var c domain.Classification
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkClassificationAnnounced stamps announced_at once ClassificationCreated
// has been published for the record.
func MarkClassificationAnnounced(ctx context.Context, db *gorm.DB, id int64, at time.Time) error {
	return markAnnounced(ctx, db, &domain.Classification{}, id, at)
}

// ClassificationFilter narrows ListClassificationsPage. Zero values are ignored.
type ClassificationFilter struct {
	OwnerID int64
	Urgency domain.Urgency
}

func (f ClassificationFilter) apply(tx *gorm.DB) *gorm.DB {
	if f.OwnerID > 0 {
		tx = tx.Where("owner_id = ?", f.OwnerID)
	}
	if f.Urgency != "" {
		tx = tx.Where("urgency = ?", f.Urgency)
	}
	return tx
}

// CountClassifications returns the number of records matching f.
func CountClassifications(ctx context.Context, db *gorm.DB, f ClassificationFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Classification{})).Count(&total).Error
	return total, err
}

// ListClassificationsPage returns records matching f, newest first.
func ListClassificationsPage(ctx context.Context, db *gorm.DB, f ClassificationFilter, offset, limit int) ([]domain.Classification, error) {
	var out []domain.Classification
	err := f.apply(db.WithContext(ctx)).
		Order("created_at desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
