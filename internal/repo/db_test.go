package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/clinical-intake/internal/config"
	"github.com/tbourn/clinical-intake/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Be tolerant across platforms/drivers:
	// - Windows: *os.PathError ("CreateFile ... cannot find the file specified")
	// - SQLite:  "unable to open database file" / "out of memory (14)"
	// - Unix:    "no such file or directory"
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	// --- Verify PRAGMAs set by OpenSQLite ---
	var (
		journalMode string
		syncVal     int
		fkOn        int
		busyMS      int
	)

	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}

	if err := db.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	// NORMAL == 1
	if syncVal != 1 {
		t.Fatalf("expected synchronous=1 (NORMAL), got %d", syncVal)
	}

	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}

	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}

	// --- Verify pool tuning applied ---
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	// --- AutoMigrate should create all tables ---
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{
		&domain.Session{}, &domain.SessionMessage{}, &domain.Summary{},
		&domain.Classification{}, &domain.Case{}, &domain.CaseNote{}, &domain.ProcessedEvent{},
	} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Quick insert round-trip to prove schema is usable.
	now := time.Now().UTC()
	s, _ := domain.NewSession(7, "tos", now)
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("insert session: %v", err)
	}
	var got domain.Session
	if err := db.Preload("Messages").First(&got, s.ID).Error; err != nil || got.OwnerID != 7 || len(got.Messages) != 1 {
		t.Fatalf("readback session failed: err=%v got=%+v", err, got)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(config.DBConfig{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestOpen_SQLiteInstallsTracing(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "intake.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if _, ok := db.Config.Plugins["otelgorm"]; !ok {
		t.Fatalf("expected tracing plugin registered, got %v", db.Config.Plugins)
	}
}

func TestModelsFor(t *testing.T) {
	cases := map[string]int{"sessions": 3, "triage": 2, "casedesk": 3, "audit": 1, "nope": 0}
	for stage, want := range cases {
		if got := len(ModelsFor(stage)); got != want {
			t.Fatalf("ModelsFor(%q) = %d models, want %d", stage, got, want)
		}
	}
}

func TestAutoMigrate_StageTablesOnly(t *testing.T) {
	db := newTestDB(t)
	if err := AutoMigrate(db, TriageModels...); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable(&domain.Classification{}) || !m.HasTable(&domain.ProcessedEvent{}) {
		t.Fatalf("triage tables missing")
	}
	if m.HasTable(&domain.Case{}) || m.HasTable(&domain.Session{}) {
		t.Fatalf("triage migration must not create other stages' tables")
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
