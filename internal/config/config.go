package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Persistence PersistenceConfig
	Correlation CorrelationConfig
	Baseline    BaselineConfig
	Risk        RiskConfig
	Playbook    PlaybookConfig
	Tracing     TracingConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string
	Port int
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// PersistenceConfig contains persistence configuration
type PersistenceConfig struct {
	Type       string // "memory", "badger"
	DataDir    string
	SyncWrites bool
}

// CorrelationConfig tunes the correlation engine and its scheduler
type CorrelationConfig struct {
	Window        time.Duration
	MinSeverity   float64
	SweepInterval time.Duration
	SweepEnabled  bool
	Orgs          []string // orgs swept by the scheduler
}

// BaselineConfig tunes the behavioral baseline store
type BaselineConfig struct {
	WindowSize int // rolling observation window per actor
	IPSetSize  int // bounded seen-IP set per actor
	MinSamples int // below this the scorer falls back to heuristics
}

// RiskConfig holds the static policy thresholds. These are defaults,
// designed as the override point for a future per-org policy.
type RiskConfig struct {
	MFAThreshold   int
	BlockThreshold int
}

// PlaybookConfig contains playbook bootstrap configuration
type PlaybookConfig struct {
	BootstrapDir string // optional directory of YAML playbook files
}

// TracingConfig contains OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRatio  float64
	InsecureConn   bool
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host: getEnvString("PRAETOR_HOST", ""),
			Port: getEnvInt("PRAETOR_PORT", 8710),
		},
		Log: LogConfig{
			Level:  getEnvString("PRAETOR_LOG_LEVEL", "info"),
			Format: getEnvString("PRAETOR_LOG_FORMAT", "text"),
		},
		Persistence: PersistenceConfig{
			Type:       getEnvString("PRAETOR_PERSISTENCE_TYPE", "badger"),
			DataDir:    getEnvString("PRAETOR_DATA_DIR", "./data"),
			SyncWrites: getEnvBool("PRAETOR_SYNC_WRITES", true),
		},
		Correlation: CorrelationConfig{
			Window:        getEnvDuration("PRAETOR_CORRELATION_WINDOW", 15*time.Minute),
			MinSeverity:   getEnvFloat("PRAETOR_CORRELATION_MIN_SEVERITY", 50),
			SweepInterval: getEnvDuration("PRAETOR_CORRELATION_SWEEP_INTERVAL", time.Minute),
			SweepEnabled:  getEnvBool("PRAETOR_CORRELATION_SWEEP_ENABLED", true),
			Orgs:          getEnvStringSlice("PRAETOR_CORRELATION_ORGS", nil),
		},
		Baseline: BaselineConfig{
			WindowSize: getEnvInt("PRAETOR_BASELINE_WINDOW", 50),
			IPSetSize:  getEnvInt("PRAETOR_BASELINE_IP_SET", 128),
			MinSamples: getEnvInt("PRAETOR_BASELINE_MIN_SAMPLES", 5),
		},
		Risk: RiskConfig{
			MFAThreshold:   getEnvInt("PRAETOR_RISK_MFA_THRESHOLD", 30),
			BlockThreshold: getEnvInt("PRAETOR_RISK_BLOCK_THRESHOLD", 80),
		},
		Playbook: PlaybookConfig{
			BootstrapDir: getEnvString("PRAETOR_PLAYBOOK_DIR", ""),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvBool("PRAETOR_TRACING_ENABLED", false),
			Endpoint:       getEnvString("PRAETOR_TRACING_ENDPOINT", "otel-collector:4318"),
			ServiceName:    getEnvString("PRAETOR_TRACING_SERVICE_NAME", "praetor"),
			ServiceVersion: getEnvString("PRAETOR_TRACING_SERVICE_VERSION", "1.0.0"),
			Environment:    getEnvString("PRAETOR_TRACING_ENVIRONMENT", "development"),
			SamplingRatio:  getEnvFloat("PRAETOR_TRACING_SAMPLING_RATIO", 1.0),
			InsecureConn:   getEnvBool("PRAETOR_TRACING_INSECURE", true),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	validPersistenceTypes := map[string]bool{
		"memory": true,
		"badger": true,
	}
	if !validPersistenceTypes[c.Persistence.Type] {
		return fmt.Errorf("invalid persistence type: %s (must be memory or badger)", c.Persistence.Type)
	}
	if c.Persistence.Type == "badger" && c.Persistence.DataDir == "" {
		return fmt.Errorf("data directory must be specified for badger persistence")
	}

	if c.Correlation.Window <= 0 {
		return fmt.Errorf("invalid correlation window: %v (must be positive)", c.Correlation.Window)
	}
	if c.Correlation.SweepEnabled && c.Correlation.SweepInterval <= 0 {
		return fmt.Errorf("invalid sweep interval: %v (must be positive)", c.Correlation.SweepInterval)
	}

	if c.Baseline.WindowSize <= 0 {
		return fmt.Errorf("baseline window must be positive")
	}
	if c.Baseline.IPSetSize <= 0 {
		return fmt.Errorf("baseline IP set size must be positive")
	}
	if c.Baseline.MinSamples <= 0 {
		return fmt.Errorf("baseline minimum samples must be positive")
	}

	if c.Risk.MFAThreshold < 0 || c.Risk.MFAThreshold > 100 {
		return fmt.Errorf("MFA threshold must be in [0,100]")
	}
	if c.Risk.BlockThreshold < 0 || c.Risk.BlockThreshold > 100 {
		return fmt.Errorf("block threshold must be in [0,100]")
	}
	if c.Risk.BlockThreshold < c.Risk.MFAThreshold {
		return fmt.Errorf("block threshold (%d) must not be below MFA threshold (%d)",
			c.Risk.BlockThreshold, c.Risk.MFAThreshold)
	}

	return nil
}

// Address returns the server address in host:port format
func (c *Config) Address() string {
	if c.Server.Host == "" {
		return fmt.Sprintf(":%d", c.Server.Port)
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvString gets a string environment variable with a default value
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvStringSlice gets a comma-separated string environment variable as a slice
func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
