package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds sawctl/server configuration, loaded from the environment.
type Config struct {
	Port            string
	LogLevel        string
	DatabaseURL     string
	RedisURL        string
	EvidenceDir     string
	AttestationKey  string
	LockTTL         time.Duration
	RunTimeout      time.Duration
	ObservabilityOn bool
	OTLPEndpoint    string
}

// Load loads configuration from environment variables, falling back to
// local-development defaults for everything that isn't set except
// REDIS_URL.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "file:saw.db?_pragma=foreign_keys(1)"
	}

	// No default: an unset REDIS_URL leaves the distributed run lock off.
	redisURL := os.Getenv("REDIS_URL")

	evidenceDir := os.Getenv("EVIDENCE_DIR")
	if evidenceDir == "" {
		evidenceDir = "./evidence"
	}

	attestationKey := os.Getenv("SAW_ATTESTATION_KEY")
	if attestationKey == "" {
		attestationKey = "dev-only-insecure-key"
	}

	lockTTL := 30 * time.Second
	if raw := os.Getenv("SAW_LOCK_TTL_SECONDS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			lockTTL = time.Duration(n) * time.Second
		}
	}

	runTimeout := 30 * time.Second
	if raw := os.Getenv("SAWCTL_TIMEOUT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			runTimeout = time.Duration(n) * time.Second
		}
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		DatabaseURL:     dbURL,
		RedisURL:        redisURL,
		EvidenceDir:     evidenceDir,
		AttestationKey:  attestationKey,
		LockTTL:         lockTTL,
		RunTimeout:      runTimeout,
		ObservabilityOn: os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:    otlpEndpoint,
	}
}
