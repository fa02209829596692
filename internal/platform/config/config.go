package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	// Phone numbering scheme for bearer identity matching.
	PhoneCountryCode string
	PhoneTrunkPrefix string

	// Optional keyed-MAC secret for self-encoded tokens. Empty preserves the
	// legacy unsigned format.
	TokenMACSecret string

	// Upper bound for any single store round trip; slower operations surface
	// as store_unavailable to the bearer session.
	StoreTimeout time.Duration

	Redis    RedisConfig
	Kafka    KafkaConfig
	AuditDSN string
}

// RedisConfig controls the go-redis client used by the production stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig controls the audit event publisher. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:             envOr("BALLOTGATE_ADDR", ":8080"),
		JWTSigningKey:    os.Getenv("BALLOTGATE_JWT_SIGNING_KEY"),
		PhoneCountryCode: envOr("BALLOTGATE_PHONE_COUNTRY_CODE", "92"),
		PhoneTrunkPrefix: envOr("BALLOTGATE_PHONE_TRUNK_PREFIX", "0"),
		TokenMACSecret:   os.Getenv("BALLOTGATE_TOKEN_MAC_SECRET"),
		StoreTimeout:     envDurationOr("BALLOTGATE_STORE_TIMEOUT", 5*time.Second),
		AuditDSN:         os.Getenv("BALLOTGATE_AUDIT_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("BALLOTGATE_REDIS_URL"),
			PoolSize:     envIntOr("BALLOTGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("BALLOTGATE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("BALLOTGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("BALLOTGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("BALLOTGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Topic: envOr("BALLOTGATE_AUDIT_TOPIC", "ballotgate.audit"),
		},
	}

	if brokers := os.Getenv("BALLOTGATE_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}

	if cfg.JWTSigningKey == "" {
		// Development fallback - must be overridden in production.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
