package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIPort     string
	MetricsPort string
	LogLevel    string
	LogFormat   string

	StoragePath    string
	MaxUploadBytes int64

	SubjectsFile      string
	DefaultCohortYear int
	StickyPolicy      string

	OCREngine       string
	OCRLanguages    []string
	OCRTimeout      time.Duration
	OCRMaxDimension int

	NATSURL             string
	NATSBatchSubject    string
	NATSProgressSubject string

	PostgresDSN string

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxConnections int
	ShutdownTimeout   time.Duration

	ResilienceRetryMaxAttempts    int
	ResilienceRetryInitialBackoff time.Duration
	ResilienceRetryMaxBackoff     time.Duration
	ResilienceBreakerEnabled      bool
	ResilienceBreakerMinRequests  int
	ResilienceBreakerFailureRatio float64
	ResilienceBreakerOpenTimeout  time.Duration
}

func Load() Config {
	return Config{
		APIPort:     mustEnv("API_PORT", "8080"),
		MetricsPort: mustEnv("METRICS_PORT", "9090"),
		LogLevel:    mustEnv("LOG_LEVEL", "info"),
		LogFormat:   mustEnv("LOG_FORMAT", "json"),

		StoragePath:    mustEnv("STORAGE_PATH", "./data/scans"),
		MaxUploadBytes: int64(mustEnvInt("MAX_UPLOAD_BYTES", 64<<20)),

		SubjectsFile:      mustEnv("SUBJECTS_FILE", ""),
		DefaultCohortYear: mustEnvInt("DEFAULT_COHORT_YEAR", 2024),
		StickyPolicy:      mustEnv("STICKY_POLICY", "after-first"),

		OCREngine:       mustEnv("OCR_ENGINE", "tesseract"),
		OCRLanguages:    mustEnvList("OCR_LANGUAGES", []string{"eng"}),
		OCRTimeout:      mustEnvDuration("OCR_TIMEOUT", 2*time.Minute),
		OCRMaxDimension: mustEnvInt("OCR_MAX_DIMENSION", 3500),

		NATSURL:             mustEnv("NATS_URL", ""),
		NATSBatchSubject:    mustEnv("NATS_BATCH_SUBJECT", "ocr.batches"),
		NATSProgressSubject: mustEnv("NATS_PROGRESS_SUBJECT", "ocr.progress"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxConnections: mustEnvInt("API_MAX_CONNECTIONS", 256),
		ShutdownTimeout:   mustEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		ResilienceRetryMaxAttempts:    mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		ResilienceRetryInitialBackoff: mustEnvDuration("RESILIENCE_RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
		ResilienceRetryMaxBackoff:     mustEnvDuration("RESILIENCE_RETRY_MAX_BACKOFF", 2*time.Second),
		ResilienceBreakerEnabled:      mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerMinRequests:  mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", 5),
		ResilienceBreakerFailureRatio: mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.6),
		ResilienceBreakerOpenTimeout:  mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", 30*time.Second),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// mustEnvList splits on '+' or ',' so Tesseract-style "eng+fra" works too.
func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == '+' || r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
