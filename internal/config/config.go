// Package config provides pipeline configuration loaded from environment
// variables with defaults and validation. One Config serves every stage; each
// stage reads only the sections it needs.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME; the stage name is appended
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the storage backend of a stage.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file
	DSN    string // Postgres connection string
}

// TopicsConfig names the three event streams.
type TopicsConfig struct {
	SessionEvents        string
	ClassificationEvents string
	CaseEvents           string
}

// BusConfig selects and configures the event transport.
type BusConfig struct {
	Driver      string   // kafka|sqs|memory
	Brokers     []string // Kafka bootstrap servers
	GroupPrefix string   // consumer group = prefix + "-" + stage
	MaxBackoff  time.Duration
	InboxTTL    time.Duration // how long processed event ids are remembered
	Topics      TopicsConfig
}

// ProfileConfig points at the patient profile service.
type ProfileConfig struct {
	BaseURL string
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// AssistantConfig configures reply and summary generation.
type AssistantConfig struct {
	OpenAIKey     string
	Model         string
	KnowledgePath string
	MaxHistory    int // messages sent as context
}

// AuditConfig configures the S3 archive of case events.
type AuditConfig struct {
	Bucket string
	Prefix string
}

// Config holds all configuration values for the pipeline.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test
	RequestTimeout    time.Duration // per-request service deadline

	// HTTP edge
	RateRPS    float64       // per-caller requests/second (0 disables)
	RateBurst  int           // per-caller burst
	HSTSMaxAge time.Duration // 0 disables HSTS

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	DB        DBConfig
	Bus       BusConfig
	Profile   ProfileConfig
	Assistant AssistantConfig
	Audit     AuditConfig
	CORS      CORSConfig
	OTEL      OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		RequestTimeout:    getdur("REQUEST_TIMEOUT", 25*time.Second),

		RateRPS:    getfloat("RATE_RPS", 5),
		RateBurst:  getint("RATE_BURST", 10),
		HSTSMaxAge: getdur("HSTS_MAX_AGE", 0),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "intake.db"),
			DSN:    getenv("DATABASE_URL", ""),
		},
		Bus: BusConfig{
			Driver:      strings.ToLower(getenv("BUS_DRIVER", "kafka")),
			Brokers:     splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
			GroupPrefix: getenv("KAFKA_GROUP_PREFIX", "intake"),
			MaxBackoff:  getdur("CONSUMER_MAX_BACKOFF", 30*time.Second),
			InboxTTL:    getdur("INBOX_TTL", 7*24*time.Hour),
			Topics: TopicsConfig{
				SessionEvents:        getenv("TOPIC_SESSION_EVENTS", "intake.session-events"),
				ClassificationEvents: getenv("TOPIC_CLASSIFICATION_EVENTS", "intake.classification-events"),
				CaseEvents:           getenv("TOPIC_CASE_EVENTS", "intake.case-events"),
			},
		},
		Profile: ProfileConfig{
			BaseURL: strings.TrimRight(getenv("PROFILE_SERVICE_URL", ""), "/"),
			Timeout: getdur("PROFILE_TIMEOUT", 3*time.Second),
			RPS:     getfloat("PROFILE_RPS", 20),
			Burst:   getint("PROFILE_BURST", 10),
		},
		Assistant: AssistantConfig{
			OpenAIKey:     getenv("OPENAI_API_KEY", ""),
			Model:         getenv("OPENAI_MODEL", "gpt-4o-mini"),
			KnowledgePath: getenv("KNOWLEDGE_PATH", "data/medical_knowledge.json"),
			MaxHistory:    getint("ASSISTANT_MAX_HISTORY", 20),
		},
		Audit: AuditConfig{
			Bucket: getenv("AUDIT_BUCKET", ""),
			Prefix: strings.Trim(getenv("AUDIT_PREFIX", "case-events"), "/"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "clinical-intake"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.RequestTimeout <= 0 || cfg.RequestTimeout >= cfg.WriteTimeout {
		return cfg, errors.New("REQUEST_TIMEOUT must be positive and below WRITE_TIMEOUT")
	}
	if cfg.RateRPS < 0 || cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_RPS must be >= 0 and RATE_BURST >= 1")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.Bus.Driver {
	case "kafka":
		if len(cfg.Bus.Brokers) == 0 {
			return cfg, errors.New("KAFKA_BROKERS must list at least one broker")
		}
	case "sqs", "memory":
	default:
		return cfg, errors.New("BUS_DRIVER must be one of: kafka, sqs, memory")
	}
	t := cfg.Bus.Topics
	if t.SessionEvents == "" || t.ClassificationEvents == "" || t.CaseEvents == "" {
		return cfg, errors.New("event topics must not be empty")
	}
	if t.SessionEvents == t.ClassificationEvents || t.SessionEvents == t.CaseEvents || t.ClassificationEvents == t.CaseEvents {
		return cfg, errors.New("event topics must be distinct")
	}
	if cfg.Bus.MaxBackoff <= 0 {
		return cfg, errors.New("CONSUMER_MAX_BACKOFF must be > 0")
	}
	if cfg.Bus.InboxTTL <= 0 {
		return cfg, errors.New("INBOX_TTL must be > 0")
	}
	if cfg.Profile.Timeout <= 0 {
		return cfg, errors.New("PROFILE_TIMEOUT must be > 0")
	}
	if cfg.Profile.RPS < 0 {
		return cfg, errors.New("PROFILE_RPS must be >= 0")
	}
	if cfg.Profile.Burst < 1 {
		return cfg, errors.New("PROFILE_BURST must be >= 1")
	}
	if cfg.Assistant.MaxHistory < 1 {
		return cfg, errors.New("ASSISTANT_MAX_HISTORY must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
