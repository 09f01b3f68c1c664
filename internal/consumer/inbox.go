package consumer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/clinical-intake/internal/repo"
)

// DBInbox stores processed event ids in the stage database.
type DBInbox struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

// NewDBInbox returns an inbox whose records live for ttl.
func NewDBInbox(db *gorm.DB, ttl time.Duration) *DBInbox {
	return &DBInbox{DB: db, TTL: ttl, Now: time.Now}
}

func (i *DBInbox) IsProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	return repo.IsProcessed(ctx, i.DB, consumer, eventID, i.Now().UTC())
}

func (i *DBInbox) MarkProcessed(ctx context.Context, consumer, eventID, eventType string) error {
	return repo.MarkProcessed(ctx, i.DB, consumer, eventID, eventType, i.TTL, i.Now().UTC())
}

// PurgeEvery deletes expired records every interval until ctx is done.
func (i *DBInbox) PurgeEvery(ctx context.Context, interval time.Duration, log zerolog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeExpired(ctx, i.DB, i.Now().UTC())
			if err != nil {
				log.Warn().Err(err).Msg("inbox purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("inbox purged")
			}
		}
	}
}
