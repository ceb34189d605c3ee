// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, classifier, change-notification, rate limiting, and
// observability settings.
package config

import (
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-complaint-triage/internal/sysutil"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Classifier providers.
const (
	ProviderOpenAI = "openai"
	ProviderRules  = "rules"
)

// Change-notification backends.
const (
	NotifyMemory   = "memory"
	NotifyRedis    = "redis"
	NotifyPostgres = "postgres"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For is believed
	// when resolving the client address. Empty trusts none.
	TrustedProxies []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the record store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite)
	URL    string // DATABASE_URL (postgres)
}

// ClassifierConfig configures the classifier gateway.
type ClassifierConfig struct {
	Provider    string        // CLASSIFIER_PROVIDER: openai|rules
	APIKey      string        // OPENAI_API_KEY
	BaseURL     string        // OPENAI_BASE_URL (optional, OpenAI-compatible)
	Model       string        // OPENAI_MODEL
	Temperature float64       // CLASSIFIER_TEMPERATURE in [0,2]
	MaxTokens   int           // CLASSIFIER_MAX_TOKENS
	JSONMode    bool          // CLASSIFIER_JSON_MODE: request a JSON object response
	Timeout     time.Duration // CLASSIFIER_TIMEOUT, per attempt
	MaxRetries  int           // CLASSIFIER_MAX_RETRIES, after the first attempt
	RetryBase   time.Duration // CLASSIFIER_RETRY_BASE
	RetryMax    time.Duration // CLASSIFIER_RETRY_MAX
	RulesPath   string        // CLASSIFIER_RULES_PATH: optional exemplar markdown
}

// NotifyConfig configures change notifications and live streams.
type NotifyConfig struct {
	Backend   string        // NOTIFY_BACKEND: memory|redis|postgres
	RedisURL  string        // REDIS_URL
	Channel   string        // NOTIFY_CHANNEL (redis channel / postgres LISTEN channel)
	Buffer    int           // NOTIFY_BUFFER, per subscriber
	Timeout   time.Duration // NOTIFY_TIMEOUT, bounds one publish
	KeepAlive time.Duration // STREAM_KEEPALIVE, websocket ping / SSE heartbeat
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s; must exceed the classifier budget
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage, classification, notifications
	DB         DBConfig
	Classifier ClassifierConfig
	Notify     NotifyConfig

	// Submissions and reads
	MaxComplaintRunes int // 0 = unbounded
	ListDefaultLimit  int
	ListMaxLimit      int

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(strings.TrimSpace(getenv("DB_DRIVER", DriverSQLite))),
			Path:   getenv("DB_PATH", "complaints.db"),
			URL:    getenv("DATABASE_URL", ""),
		},

		Classifier: ClassifierConfig{
			Provider:    strings.ToLower(strings.TrimSpace(getenv("CLASSIFIER_PROVIDER", ProviderOpenAI))),
			APIKey:      strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
			BaseURL:     getenv("OPENAI_BASE_URL", ""),
			Model:       getenv("OPENAI_MODEL", "gpt-3.5-turbo"),
			Temperature: getfloat("CLASSIFIER_TEMPERATURE", 0.3),
			MaxTokens:   getint("CLASSIFIER_MAX_TOKENS", 200),
			JSONMode:    getbool("CLASSIFIER_JSON_MODE", true),
			Timeout:     getdur("CLASSIFIER_TIMEOUT", 20*time.Second),
			MaxRetries:  getint("CLASSIFIER_MAX_RETRIES", 2),
			RetryBase:   getdur("CLASSIFIER_RETRY_BASE", 250*time.Millisecond),
			RetryMax:    getdur("CLASSIFIER_RETRY_MAX", 4*time.Second),
			RulesPath:   getenv("CLASSIFIER_RULES_PATH", ""),
		},

		Notify: NotifyConfig{
			Backend:   strings.ToLower(strings.TrimSpace(getenv("NOTIFY_BACKEND", NotifyMemory))),
			RedisURL:  getenv("REDIS_URL", "redis://localhost:6379/0"),
			Channel:   getenv("NOTIFY_CHANNEL", "complaints_changes"),
			Buffer:    getint("NOTIFY_BUFFER", 16),
			Timeout:   getdur("NOTIFY_TIMEOUT", 2*time.Second),
			KeepAlive: getdur("STREAM_KEEPALIVE", 30*time.Second),
		},

		MaxComplaintRunes: getint("MAX_COMPLAINT_RUNES", 0),
		ListDefaultLimit:  getint("LIST_DEFAULT_LIMIT", 50),
		ListMaxLimit:      getint("LIST_MAX_LIMIT", 500),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS:     getbool("ENABLE_HSTS", false),
			HSTSMaxAge:     getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			TrustedProxies: splitCSV(getenv("TRUSTED_PROXIES", "")),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-complaint-triage"),
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
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}

	switch cfg.DB.Driver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}

	switch cfg.Classifier.Provider {
	case ProviderOpenAI:
		if cfg.Classifier.APIKey == "" {
			return cfg, errors.New("OPENAI_API_KEY is required when CLASSIFIER_PROVIDER=openai")
		}
	case ProviderRules:
	default:
		return cfg, errors.New("CLASSIFIER_PROVIDER must be one of: openai, rules")
	}
	if cfg.Classifier.Temperature < 0 || cfg.Classifier.Temperature > 2 {
		return cfg, errors.New("CLASSIFIER_TEMPERATURE must be in [0,2]")
	}
	if cfg.Classifier.MaxTokens < 1 {
		return cfg, errors.New("CLASSIFIER_MAX_TOKENS must be >= 1")
	}
	if cfg.Classifier.Timeout <= 0 {
		return cfg, errors.New("CLASSIFIER_TIMEOUT must be > 0")
	}
	if cfg.Classifier.MaxRetries < 0 || cfg.Classifier.MaxRetries > 10 {
		return cfg, errors.New("CLASSIFIER_MAX_RETRIES must be in [0,10]")
	}
	if cfg.Classifier.RetryBase <= 0 || cfg.Classifier.RetryMax < cfg.Classifier.RetryBase {
		return cfg, errors.New("CLASSIFIER_RETRY_BASE must be > 0 and <= CLASSIFIER_RETRY_MAX")
	}

	switch cfg.Notify.Backend {
	case NotifyMemory:
	case NotifyRedis:
		if strings.TrimSpace(cfg.Notify.RedisURL) == "" {
			return cfg, errors.New("REDIS_URL is required when NOTIFY_BACKEND=redis")
		}
	case NotifyPostgres:
		if cfg.DB.Driver != DriverPostgres {
			return cfg, errors.New("NOTIFY_BACKEND=postgres requires DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("NOTIFY_BACKEND must be one of: memory, redis, postgres")
	}
	if strings.TrimSpace(cfg.Notify.Channel) == "" {
		return cfg, errors.New("NOTIFY_CHANNEL must not be empty")
	}
	if cfg.Notify.Buffer < 1 {
		return cfg, errors.New("NOTIFY_BUFFER must be >= 1")
	}
	if cfg.Notify.Timeout <= 0 || cfg.Notify.KeepAlive <= 0 {
		return cfg, errors.New("NOTIFY_TIMEOUT and STREAM_KEEPALIVE must be > 0")
	}

	if cfg.MaxComplaintRunes < 0 {
		return cfg, errors.New("MAX_COMPLAINT_RUNES must be >= 0")
	}
	if cfg.ListDefaultLimit < 1 || cfg.ListMaxLimit < cfg.ListDefaultLimit {
		return cfg, errors.New("LIST_DEFAULT_LIMIT must be >= 1 and <= LIST_MAX_LIMIT")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	for _, p := range cfg.Security.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return cfg, errors.New("TRUSTED_PROXIES entries must be IPs or CIDRs")
			}
		}
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

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
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
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
