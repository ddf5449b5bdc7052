// Package config holds the env-var-driven settings for both roles,
// matching the table in §6 of SPEC_FULL.md. Parsing (CSV splitting,
// duration defaults) lives here so cmd/primaryd and cmd/replicad stay
// thin cobra wrappers.
package config

import (
	"strings"
	"time"
)

// Primary is the primary node's configuration.
type Primary struct {
	Secondaries    []string
	Host           string
	Port           int
	LogLevel       string
	LogFormat      string
	HealthInterval time.Duration
	HealthTimeout  time.Duration
	StatsdAddr     string
}

// Replica is the replica node's configuration.
type Replica struct {
	Host       string
	Port       int
	DelayMs    int
	LogLevel   string
	LogFormat  string
	StatsdAddr string
}

// DefaultPrimary returns a Primary with SPEC_FULL.md's documented defaults.
func DefaultPrimary() Primary {
	return Primary{
		Host:           "0.0.0.0",
		Port:           8000,
		LogLevel:       "info",
		LogFormat:      "auto",
		HealthInterval: time.Second,
		HealthTimeout:  3 * time.Second,
	}
}

// DefaultReplica returns a Replica with SPEC_FULL.md's documented defaults.
func DefaultReplica() Replica {
	return Replica{
		Host:      "0.0.0.0",
		Port:      8001,
		LogLevel:  "info",
		LogFormat: "auto",
	}
}

// ParseSecondaries splits a comma-separated SECONDARIES value into trimmed,
// non-empty base URLs.
func ParseSecondaries(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// HealthTimeoutFor returns the default grace window (3x interval) used
// when HEALTH_TIMEOUT_MS is not explicitly set.
func HealthTimeoutFor(interval time.Duration) time.Duration {
	return 3 * interval
}
