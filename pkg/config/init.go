package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// InitConfig creates a sample configuration file at the default
// location ($XDG_CONFIG_HOME/eldcore/config.yaml).
//
// Returns the path of the created file. Fails if a config file already
// exists unless force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given
// path, creating parent directories as needed. Fails if the file
// already exists unless force is true.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	sample, err := sampleConfig()
	if err != nil {
		return err
	}

	// 0600: the sample embeds a generated JWT secret.
	if err := os.WriteFile(path, []byte(sample), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// sampleConfig renders the annotated sample configuration.
//
// Duration-typed settings are left commented out: the sample must stay
// parseable by plain yaml.Unmarshal, which does not understand "30s"
// style strings. Viper parses them once a user uncomments a line.
func sampleConfig() (string, error) {
	secret, err := generateDevSecret()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`# eldcore Configuration File
#
# ELD event ingestion server configuration. Values commented out show
# their defaults. Every setting can also be supplied through the
# environment with the ELDCORE_ prefix, e.g. ELDCORE_LOGGING_LEVEL=DEBUG.

logging:
  level: "INFO"    # DEBUG, INFO, WARN, ERROR
  format: "text"   # text, json
  output: "stdout" # stdout, stderr, or a file path

# Maximum time to wait for in-flight requests during shutdown.
# shutdown_timeout: 30s

database:
  # sqlite is the single-node default; postgres enables HA deployments
  # with time-partitioned event storage.
  type: sqlite
  # sqlite:
  #   path: /var/lib/eldcore/eldcore.db
  #
  # type: postgres
  # postgres:
  #   host: localhost
  #   port: 5432
  #   database: eldcore
  #   user: eldcore
  #   password: ""
  #   sslmode: disable

api:
  port: 8080
  # read_timeout: 10s
  # write_timeout: 10s
  # idle_timeout: 60s
  # Body cap for event uploads; also bounds gzipped bodies after
  # decompression. Accepts sizes like "2Mi" or "500KB".
  # max_body_size: 2Mi
  jwt:
    # Generated for development. For production, prefer the environment
    # variable (it takes precedence over this file):
    #   export ELDCORE_API_SECRET=$(openssl rand -hex 32)
    secret: "%s"
    # access_token_duration: 15m
    # refresh_token_duration: 168h

metrics:
  # Prometheus scrape endpoint on its own port.
  enabled: false
  # port: 9090

idempotency:
  # Replay store for the X-Idempotency-Key protocol.
  #   memory - per-process, lost on restart (default)
  #   badger - persistent, single node
  #   redis  - shared across replicas
  backend: memory
  # path: /var/lib/eldcore/idempotency
  # redis:
  #   addr: localhost:6379
  # in_flight_ttl: 15m
  # completed_ttl: 24h

ingest:
  # Transient database failures are retried with exponential backoff
  # before the event is parked in the dead letter queue.
  # retry:
  #   max_attempts: 3
  #   base_delay: 1s
  #   max_delay: 30s
  #
  # Pending dead-letter count that trips the alert flag in stats.
  # dlq_alert_threshold: 100
  #
  # Cadence of background maintenance: expiring stale reservation
  # blocks and refreshing dead-letter depth.
  # sweep_interval: 5m

telemetry:
  enabled: false
  # endpoint: localhost:4317
  # sample_rate: 1.0
  # profiling:
  #   enabled: false
  #   endpoint: http://localhost:4040
`, secret), nil
}

// generateDevSecret returns a random 64-character hex secret for the
// sample config.
func generateDevSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
