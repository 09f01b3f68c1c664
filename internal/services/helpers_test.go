package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/events"
	"github.com/tbourn/clinical-intake/internal/repo"
)

// ---------- test helpers ----------

var t0 = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func fixedNow() time.Time { return t0 }

type fakePublisher struct {
	mu   sync.Mutex
	sent []events.Payload
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, p events.Payload) (events.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return events.Envelope{EventID: "failed"}, f.err
	}
	f.sent = append(f.sent, p)
	return events.New(p, t0)
}

func (f *fakePublisher) payloads() []events.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Payload(nil), f.sent...)
}

type fakeProfiles struct {
	byUser map[int64]*domain.PatientContext
	err    error
	calls  int
}

func (f *fakeProfiles) PatientContext(_ context.Context, userID int64) (*domain.PatientContext, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

type fakeConsent struct {
	ok  bool
	err error
}

func (f fakeConsent) HasAIConsent(context.Context, int64) (bool, error) { return f.ok, f.err }

type fakeAssistant struct {
	reply   string
	err     error
	gotCtx  *domain.PatientContext
	summary *domain.Summary
}

func (f *fakeAssistant) Reply(_ context.Context, _ *domain.Session, p *domain.PatientContext) (string, error) {
	f.gotCtx = p
	return f.reply, f.err
}

func (f *fakeAssistant) Summarize(_ context.Context, _ *domain.Session, p *domain.PatientContext) (*domain.Summary, error) {
	f.gotCtx = p
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

var errBoom = errors.New("boom")
