package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/clinical-intake/internal/domain"
)

// ListStats describes a filtered result set cheaply enough to derive a
// conditional-response validator (ETag) from it.
type ListStats struct {
	Count         int64
	LastUpdatedAt *time.Time // nil when Count is 0
}

// SessionsStats returns the row count and latest UpdatedAt of the sessions
// matching f.
func SessionsStats(ctx context.Context, db *gorm.DB, f SessionFilter) (ListStats, error) {
	return listStats(f.apply(db.WithContext(ctx).Model(&domain.Session{})))
}

// CasesStats returns the row count and latest UpdatedAt of the cases matching f.
func CasesStats(ctx context.Context, db *gorm.DB, f CaseFilter) (ListStats, error) {
	return listStats(f.apply(db.WithContext(ctx).Model(&domain.Case{})))
}

func listStats(q *gorm.DB) (ListStats, error) {
	var st ListStats
	if err := q.Session(&gorm.Session{}).Count(&st.Count).Error; err != nil {
		return ListStats{}, err
	}
	if st.Count == 0 {
		return st, nil
	}

	// Avoid MAX() which comes back as TEXT in SQLite.
	var row struct {
		UpdatedAt time.Time
	}
	if err := q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return ListStats{}, err
	}
	st.LastUpdatedAt = &row.UpdatedAt
	return st, nil
}
