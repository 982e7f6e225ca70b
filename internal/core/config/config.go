// Package config provides configuration management for claimscrub services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// ScrubAPIConfig holds configuration for the gRPC scrub API service.
type ScrubAPIConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
	MaxBatchSize   int
	DataDir        string
	MetricsPort    int // 0 disables the metrics listener

	// Engine
	StopOnDeny      bool
	Workers         int
	ConflictBudget  int // 0 = unlimited
	ConflictTimeout time.Duration
	MaxSampleSize   int
	TestTimeout     time.Duration
}

// DefaultScrubAPIConfig returns configuration with default values.
func DefaultScrubAPIConfig() *ScrubAPIConfig {
	return &ScrubAPIConfig{
		Host:            "0.0.0.0",
		Port:            50051,
		MaxConnections:  1000,
		RequestTimeout:  30 * time.Second,
		MaxBatchSize:    1000,
		DataDir:         "./data",
		MetricsPort:     9090,
		StopOnDeny:      false,
		Workers:         8,
		ConflictBudget:  0,
		ConflictTimeout: 60 * time.Second,
		MaxSampleSize:   10000,
		TestTimeout:     120 * time.Second,
	}
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports CS_HMAC_SECRET (single) and CS_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("CS_HMAC_SECRET"); val != "" {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("CS_HMAC_SECRET: %w", err)
		}
		secrets[secretID] = decoded
	}

	// Numbered secrets keep old and new keys valid during rotation
	for i := 1; ; i++ {
		key := fmt.Sprintf("CS_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return nil, fmt.Errorf("duplicate secret_id '%s' found in environment variables (check CS_HMAC_SECRET and CS_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
	}

	return secrets, nil
}

// ParseHMACSecret decodes a base64-encoded HMAC secret.
func ParseHMACSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 lowercase hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	id, encoded, ok := strings.Cut(strings.TrimSpace(envValue), ":")
	if !ok {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	if len(id) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = ParseHMACSecret(encoded)
	if err != nil {
		return "", nil, err
	}
	return id, secret, nil
}
