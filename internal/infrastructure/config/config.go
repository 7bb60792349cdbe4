package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for AV Bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site         SiteConfig         `yaml:"site"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
	State        StateConfig        `yaml:"state"`
	Valkey       ValkeyConfig       `yaml:"valkey"`
	Definitions  DefinitionsConfig  `yaml:"definitions"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
	Locale   string `yaml:"locale"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// State store backends.
const (
	StateBackendSQLite = "sqlite"
	StateBackendValkey = "valkey"
	StateBackendMemory = "memory"
)

// StateConfig selects where the active scenario snapshot is persisted.
type StateConfig struct {
	// Backend is one of "sqlite", "valkey" or "memory".
	Backend string `yaml:"backend"`

	// KeyPrefix is prepended to every state key (e.g. "avbridge:").
	// Empty means keys are stored as-is ("scenario:last").
	KeyPrefix string `yaml:"key_prefix"`
}

// ValkeyConfig contains Valkey (Redis protocol) connection settings.
type ValkeyConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DefinitionsConfig points at the declarative device, room and scenario sources.
type DefinitionsConfig struct {
	DevicesFile  string `yaml:"devices_file"`
	RoomsFile    string `yaml:"rooms_file"`
	ScenariosDir string `yaml:"scenarios_dir"`
}

// OrchestratorConfig tunes the scenario manager.
type OrchestratorConfig struct {
	// RejectWhenBusy makes a second switch/role request fail with a busy
	// error instead of queueing behind the one in flight.
	RejectWhenBusy bool `yaml:"reject_when_busy"`

	// DefaultGraceful is used by callers that do not specify graceful.
	DefaultGraceful bool `yaml:"default_graceful"`

	// CommandTimeout bounds a single device command when the device
	// definition does not set its own.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// RestoreOnStartup re-adopts the last persisted scenario at boot.
	RestoreOnStartup bool `yaml:"restore_on_startup"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file next to the config file (only sets variables not already set)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: AVBRIDGE_SECTION_KEY
// For example: AVBRIDGE_DATABASE_PATH, AVBRIDGE_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv populates the process environment from a dotenv file.
// A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "AV Bridge",
			Timezone: "UTC",
			Locale:   "en",
		},
		Database: DatabaseConfig{
			Path:        "./data/avbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "avbridge-core",
			},
			QoS:         1,
			TopicPrefix: "avbridge",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		State: StateConfig{
			Backend: StateBackendSQLite,
		},
		Valkey: ValkeyConfig{
			Address: "localhost:6379",
		},
		Definitions: DefinitionsConfig{
			DevicesFile:  "configs/devices.yaml",
			RoomsFile:    "configs/rooms.yaml",
			ScenariosDir: "configs/scenarios",
		},
		Orchestrator: OrchestratorConfig{
			DefaultGraceful:  true,
			CommandTimeout:   5 * time.Second,
			RestoreOnStartup: true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AVBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("AVBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("AVBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AVBRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("AVBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AVBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("AVBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// State store
	if v := os.Getenv("AVBRIDGE_STATE_BACKEND"); v != "" {
		cfg.State.Backend = v
	}
	if v := os.Getenv("AVBRIDGE_VALKEY_ADDRESS"); v != "" {
		cfg.Valkey.Address = v
	}
	if v := os.Getenv("AVBRIDGE_VALKEY_PASSWORD"); v != "" {
		cfg.Valkey.Password = v
	}

	// Definitions
	if v := os.Getenv("AVBRIDGE_DEVICES_FILE"); v != "" {
		cfg.Definitions.DevicesFile = v
	}
	if v := os.Getenv("AVBRIDGE_ROOMS_FILE"); v != "" {
		cfg.Definitions.RoomsFile = v
	}
	if v := os.Getenv("AVBRIDGE_SCENARIOS_DIR"); v != "" {
		cfg.Definitions.ScenariosDir = v
	}

	// Logging
	if v := os.Getenv("AVBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "#+") {
		errs = append(errs, "mqtt.topic_prefix must be non-empty and contain no wildcards")
	}

	switch c.State.Backend {
	case StateBackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite state backend")
		}
	case StateBackendValkey:
		if c.Valkey.Address == "" {
			errs = append(errs, "valkey.address is required for the valkey state backend")
		}
	case StateBackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("state.backend %q is not one of sqlite, valkey, memory", c.State.Backend))
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Definitions.DevicesFile == "" {
		errs = append(errs, "definitions.devices_file is required")
	}
	if c.Definitions.ScenariosDir == "" {
		errs = append(errs, "definitions.scenarios_dir is required")
	}

	if c.Orchestrator.CommandTimeout < 0 {
		errs = append(errs, "orchestrator.command_timeout must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
