package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/clinical-intake/internal/domain"
)

// CreateCase inserts c. A second case for the same session is rejected by
// ux_case_session and reported as ErrDuplicate.
func CreateCase(ctx context.Context, db *gorm.DB, c *domain.Case) error {
	if err := db.WithContext(ctx).Omit("Notes").Create(c).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetCase loads a case with its notes in insertion order.
func GetCase(ctx context.Context, db *gorm.DB, id int64) (*domain.Case, error) {
	var c domain.Case
	err := db.WithContext(ctx).
		Preload("Notes", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		First(&c, id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCaseBySession fetches the case opened for a session.
func GetCaseBySession(ctx context.Context, db *gorm.DB, sessionID int64) (*domain.Case, error) {
	var c domain.Case
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCase persists the mutable fields of c. Notes are stored separately
// through AddCaseNote.
func SaveCase(ctx context.Context, db *gorm.DB, c *domain.Case) error {
	res := db.WithContext(ctx).
		Model(&domain.Case{}).
		Where("id = ?", c.ID).
		Updates(map[string]any{
			"status":             c.Status,
			"assigned_doctor_id": c.AssignedDoctorID,
			"updated_at":         c.UpdatedAt,
			"closed_at":          c.ClosedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCaseAnnounced stamps announced_at once CaseCreated has been published
// for the case.
func MarkCaseAnnounced(ctx context.Context, db *gorm.DB, id int64, at time.Time) error {
	return markAnnounced(ctx, db, &domain.Case{}, id, at)
}

func markAnnounced(ctx context.Context, db *gorm.DB, model any, id int64, at time.Time) error {
	res := db.WithContext(ctx).Model(model).Where("id = ?", id).UpdateColumn("announced_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCaseNote appends a note row.
func AddCaseNote(ctx context.Context, db *gorm.DB, n *domain.CaseNote) error {
	return db.WithContext(ctx).Create(n).Error
}

// CaseFilter narrows ListCasesPage. Zero values are ignored.
type CaseFilter struct {
	DoctorID  int64
	PatientID int64
	Status    domain.CaseStatus
	Urgency   domain.Urgency
}

func (f CaseFilter) apply(tx *gorm.DB) *gorm.DB {
	if f.DoctorID > 0 {
		tx = tx.Where("assigned_doctor_id = ?", f.DoctorID)
	}
	if f.PatientID > 0 {
		tx = tx.Where("patient_id = ?", f.PatientID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.Urgency != "" {
		tx = tx.Where("urgency = ?", f.Urgency)
	}
	return tx
}

// urgencyRank orders the most severe cases first.
const urgencyRank = "CASE urgency WHEN 'EMERGENCY' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MODERATE' THEN 2 WHEN 'LOW' THEN 1 ELSE 0 END DESC"

// CountCases returns the number of cases matching f.
func CountCases(ctx context.Context, db *gorm.DB, f CaseFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Case{})).Count(&total).Error
	return total, err
}

// ListCasesPage returns cases matching f, most urgent first and oldest first
// within the same urgency.
func ListCasesPage(ctx context.Context, db *gorm.DB, f CaseFilter, offset, limit int) ([]domain.Case, error) {
	var out []domain.Case
	err := f.apply(db.WithContext(ctx)).
		Order(urgencyRank).
		Order("created_at asc").
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
