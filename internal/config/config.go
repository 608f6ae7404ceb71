package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	LedgerMongo    = "mongo"
	LedgerPostgres = "postgres"
)

// app config, read from environment variables
type Config struct {
	Port string

	MongoURI    string
	MongoDBName string

	LedgerBackend    string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisAddr string
	JWTSecret string

	DetectorURL     string
	DetectorTimeout time.Duration

	EvidenceDir     string
	EvidenceBaseURL string

	FaceMatchThreshold float64
	EmbeddingCacheTTL  time.Duration
	EmbeddingCacheSize int

	PenaltyPerIncident int
	MaxEvidenceImages  int

	Provider   string
	LLMTimeout time.Duration

	FinalizerSchedule string
	SessionMaxAge     time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies may set X-Forwarded-For. Empty means no proxy is trusted.
	TrustedProxies []netip.Prefix

	LogFile      string
	OTLPEndpoint string
}

// loads configuration from environment variables
func LoadConfig() (*Config, error) {
	var errs []error
	config := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		MongoURI:    os.Getenv("MONGO_URI"),
		MongoDBName: getEnvOrDefault("MONGO_DB_NAME", "mockmate"),

		LedgerBackend:    getEnvOrDefault("LEDGER_BACKEND", LedgerMongo),
		PostgresHost:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresSSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		DetectorURL:     getEnvOrDefault("DETECTOR_URL", "http://localhost:8000"),
		DetectorTimeout: getEnvDuration("DETECTOR_TIMEOUT", 5*time.Second, &errs),

		EvidenceDir:     getEnvOrDefault("EVIDENCE_DIR", "uploads/cheating"),
		EvidenceBaseURL: getEnvOrDefault("EVIDENCE_BASE_URL", "/uploads/cheating"),

		FaceMatchThreshold: getEnvFloat("FACE_MATCH_THRESHOLD", 0.96, &errs),
		EmbeddingCacheTTL:  getEnvDuration("EMBEDDING_CACHE_TTL", 5*time.Minute, &errs),
		EmbeddingCacheSize: getEnvInt("EMBEDDING_CACHE_SIZE", 1024, &errs),

		PenaltyPerIncident: getEnvInt("PENALTY_PER_INCIDENT", 10, &errs),
		MaxEvidenceImages:  getEnvInt("MAX_EVIDENCE_IMAGES", 2, &errs),

		Provider:   getEnvOrDefault("AI_PROVIDER", "gemini"),
		LLMTimeout: getEnvDuration("LLM_TIMEOUT", 20*time.Second, &errs),

		FinalizerSchedule: getEnvOrDefault("SESSION_FINALIZER_SCHEDULE", "@every 10m"),
		SessionMaxAge:     getEnvDuration("SESSION_MAX_AGE", 3*time.Hour, &errs),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 2, &errs),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20, &errs),
		TrustedProxies: getEnvPrefixes("TRUSTED_PROXIES", &errs),

		LogFile:      os.Getenv("LOG_FILE"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// PostgresEnabled reports whether the violation ledger lives in postgres.
func (c *Config) PostgresEnabled() bool {
	return c.LedgerBackend == LedgerPostgres
}

func validateConfig(config *Config) error {
	if config.MongoURI == "" {
		return errors.New("MONGO_URI is required")
	}
	if config.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch config.LedgerBackend {
	case LedgerMongo:
	case LedgerPostgres:
		if config.PostgresUser == "" || config.PostgresDB == "" {
			return errors.New("POSTGRES_USER and POSTGRES_DB are required when LEDGER_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unsupported LEDGER_BACKEND %q. Currently supported: mongo, postgres", config.LedgerBackend)
	}
	if config.Provider != "gemini" {
		return errors.New("unsupported AI provider: " + config.Provider + ". Currently supported: gemini")
	}
	if config.FaceMatchThreshold <= 0 || config.FaceMatchThreshold > 1 {
		return fmt.Errorf("FACE_MATCH_THRESHOLD must be in (0, 1], got %v", config.FaceMatchThreshold)
	}
	if config.PenaltyPerIncident < 0 {
		return errors.New("PENALTY_PER_INCIDENT must not be negative")
	}
	if config.MaxEvidenceImages < 0 {
		return errors.New("MAX_EVIDENCE_IMAGES must not be negative")
	}
	if config.RateLimitRPS <= 0 || config.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a number", key, raw))
		return defaultValue
	}
	return v
}

func getEnvPrefixes(key string, errs *[]error) []netip.Prefix {
	prefixes, err := parsePrefixes(os.Getenv(key))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return nil
	}
	return prefixes
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a positive duration", key, raw))
		return defaultValue
	}
	return v
}

// parsePrefixes reads a comma separated list of IPs and CIDR ranges.
func parsePrefixes(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		ip, err := netip.ParseAddr(part)
		if err != nil {
			return nil, err
		}
		ip = ip.Unmap()
		out = append(out, netip.PrefixFrom(ip, ip.BitLen()))
	}
	return out, nil
}
