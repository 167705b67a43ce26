// Package config builds the process-wide immutable configuration once at
// startup. Cryptographic secrets live here and are passed by reference into
// the services that need them; nothing else reads the environment.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment.
type Config struct {
	Addr        string
	DevMode     bool
	DatabaseURL string

	// EncryptionKey is the 32-byte AES-256-GCM key, supplied hex-encoded in
	// ENCRYPTION_KEY. SaltSecret feeds pseudonymization. Both are mandatory.
	EncryptionKey []byte
	SaltSecret    string

	AllowedOrigins []string
	ConsentTTL     time.Duration

	RedisURL          string
	RateLimitWindow   time.Duration
	RateLimitRequests int

	KafkaBrokers    []string
	KafkaAuditTopic string

	JWTSigningKey string
	JWTIssuer     string
}

// FromEnv builds a Config from environment variables so main stays lean.
// It fails hard on missing or malformed cryptographic material: a process
// without its secrets must not serve a single request.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Addr:              envOr("TRAILGUARD_ADDR", ":3000"),
		DevMode:           os.Getenv("TRAILGUARD_ENV") == "development",
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SaltSecret:        os.Getenv("SALT_SECRET"),
		ConsentTTL:        2 * 365 * 24 * time.Hour,
		RedisURL:          os.Getenv("REDIS_URL"),
		RateLimitWindow:   15 * time.Minute,
		RateLimitRequests: 100,
		KafkaAuditTopic:   envOr("KAFKA_AUDIT_TOPIC", "trailguard.audit.compliance"),
		JWTSigningKey:     os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:         envOr("JWT_ISSUER", "trailguard"),
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitTrim(origins)
	} else {
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitTrim(brokers)
	}
	if n := os.Getenv("RATE_LIMIT_REQUESTS"); n != "" {
		parsed, err := strconv.Atoi(n)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("config: RATE_LIMIT_REQUESTS must be a positive integer, got %q", n)
		}
		cfg.RateLimitRequests = parsed
	}

	if cfg.SaltSecret == "" {
		return nil, fmt.Errorf("config: SALT_SECRET is not set; refusing to pseudonymize without a secret")
	}
	keyHex := os.Getenv("ENCRYPTION_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("config: ENCRYPTION_KEY is not set")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("config: ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("config: ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	cfg.EncryptionKey = key

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
