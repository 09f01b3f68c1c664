package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"
	t.Setenv("REQUEST_TIMEOUT", "2500ms")
	t.Setenv("RATE_RPS", "0.5")
	t.Setenv("RATE_BURST", "3")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// Logging
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	// Storage
	t.Setenv("DB_DRIVER", "PostgreSQL")
	t.Setenv("DATABASE_URL", "postgres://intake@db/intake")

	// Bus
	t.Setenv("BUS_DRIVER", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_GROUP_PREFIX", "clinic")
	t.Setenv("CONSUMER_MAX_BACKOFF", "nope") // -> default 30s
	t.Setenv("INBOX_TTL", "48h")
	t.Setenv("TOPIC_CASE_EVENTS", "cases")

	// Collaborators
	t.Setenv("PROFILE_SERVICE_URL", "http://profiles:8080/")
	t.Setenv("PROFILE_RPS", "x") // -> default 20
	t.Setenv("OPENAI_MODEL", "gpt-test")
	t.Setenv("AUDIT_BUCKET", "audit")
	t.Setenv("AUDIT_PREFIX", "/archive/")

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.RequestTimeout != 2500*time.Millisecond || cfg.RateRPS != 0.5 || cfg.RateBurst != 3 || cfg.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("http edge fields unexpected: %+v", cfg)
	}

	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging unexpected: %+v", cfg)
	}

	if cfg.DB.Driver != "postgres" || cfg.DB.DSN != "postgres://intake@db/intake" {
		t.Fatalf("db unexpected: %+v", cfg.DB)
	}

	if cfg.Bus.Driver != "kafka" || !reflect.DeepEqual(cfg.Bus.Brokers, []string{"k1:9092", "k2:9092"}) ||
		cfg.Bus.GroupPrefix != "clinic" || cfg.Bus.MaxBackoff != 30*time.Second || cfg.Bus.InboxTTL != 48*time.Hour {
		t.Fatalf("bus unexpected: %+v", cfg.Bus)
	}
	if cfg.Bus.Topics.CaseEvents != "cases" || cfg.Bus.Topics.SessionEvents != "intake.session-events" {
		t.Fatalf("topics unexpected: %+v", cfg.Bus.Topics)
	}

	if cfg.Profile.BaseURL != "http://profiles:8080" || cfg.Profile.RPS != 20 {
		t.Fatalf("profile unexpected: %+v", cfg.Profile)
	}
	if cfg.Assistant.Model != "gpt-test" || cfg.Audit.Bucket != "audit" || cfg.Audit.Prefix != "archive" {
		t.Fatalf("assistant/audit unexpected: %+v %+v", cfg.Assistant, cfg.Audit)
	}

	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}

	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"request timeout above write timeout", map[string]string{"REQUEST_TIMEOUT": "40s"}, "REQUEST_TIMEOUT"},
		{"rate burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"postgres without DSN", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"unknown DB driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"unknown bus driver", map[string]string{"BUS_DRIVER": "nats"}, "BUS_DRIVER"},
		{"kafka without brokers", map[string]string{"KAFKA_BROKERS": " , "}, "KAFKA_BROKERS"},
		{"duplicate topics", map[string]string{"TOPIC_SESSION_EVENTS": "x", "TOPIC_CASE_EVENTS": "x"}, "distinct"},
		{"inbox ttl non-positive", map[string]string{"INBOX_TTL": "0s"}, "INBOX_TTL"},
		{"backoff non-positive", map[string]string{"CONSUMER_MAX_BACKOFF": "-1s"}, "CONSUMER_MAX_BACKOFF"},
		{"profile rps negative", map[string]string{"PROFILE_RPS": "-1"}, "PROFILE_RPS"},
		{"profile burst < 1", map[string]string{"PROFILE_BURST": "0"}, "PROFILE_BURST"},
		{"profile timeout", map[string]string{"PROFILE_TIMEOUT": "0s"}, "PROFILE_TIMEOUT"},
		{"history < 1", map[string]string{"ASSISTANT_MAX_HISTORY": "0"}, "ASSISTANT_MAX_HISTORY"},
		{"otel sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); !containsErr(err, tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	trueVals := []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"}
	for i, v := range trueVals {
		k := "B_T_" + config_strconv(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	falseVals := []string{"0", "false", "FALSE", " no ", "N", "off", "Off"}
	for i, v := range falseVals {
		k := "B_F_" + config_strconv(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	// default on unset/empty
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	in := " a, ,b ,  c  ,"
	want := []string{"a", "b", "c"}
	if got := splitCSV(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}

	// normalizeBasePath
	if normalizeBasePath("") != "/" {
		t.Fatalf("normalizeBasePath empty -> '/' failed")
	}
	if normalizeBasePath("v1") != "/v1" {
		t.Fatalf("normalizeBasePath missing leading slash failed")
	}
	if normalizeBasePath("/v1/") != "/v1" {
		t.Fatalf("normalizeBasePath trailing slash trim failed")
	}
	if normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath whitespace failed")
	}
}

// small helper (avoid fmt just for ints)
func config_strconv(i int) string { return string('a' + rune(i)) }

// Ensure tests don't inherit pipeline env from the shell.
func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "DB_DRIVER", "BUS_DRIVER", "KAFKA_BROKERS", "OPENAI_API_KEY", "PROFILE_SERVICE_URL"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
	if cfg.DB.Driver != "sqlite" || cfg.Bus.Driver != "kafka" || cfg.Audit.Prefix != "case-events" {
		t.Fatalf("unexpected defaults: db=%+v bus=%s audit=%+v", cfg.DB, cfg.Bus.Driver, cfg.Audit)
	}
	if cfg.Assistant.OpenAIKey != "" || cfg.Profile.BaseURL != "" {
		t.Fatalf("collaborators must be unset by default")
	}
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	// No special env needed; defaults are valid.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}
