package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Flora Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site          SiteConfig          `yaml:"site"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
	Security      SecurityConfig      `yaml:"security"`
	Authorization AuthorizationConfig `yaml:"authorization"`
	Readings      ReadingsConfig      `yaml:"readings"`
	External      ExternalConfig      `yaml:"external"`
	Secrets       SecretsConfig       `yaml:"secrets"`
}

// SiteConfig identifies this deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
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

// MQTTTopicsConfig names the topics Flora subscribes to.
type MQTTTopicsConfig struct {
	// SensorData is the subscription filter for device uploads.
	// The single-level wildcard must sit where the device ID goes.
	SensorData string `yaml:"sensor_data"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	TLS       TLSConfig        `yaml:"tls"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// RateLimitConfig contains per-client request limits for the HTTP API.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// WebSocketConfig contains live reading stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`

	// AllowSignup enables self-service account creation via POST /auth/register.
	AllowSignup bool `yaml:"allow_signup"`
}

// JWTConfig contains JWT token settings. TTLs are in minutes.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

// Authorization modes.
const (
	AuthorizationModeLocal = "local"
	AuthorizationModeHTTP  = "http"
)

// AuthorizationConfig controls how device ownership is checked before
// readings are returned.
type AuthorizationConfig struct {
	// Mode is "local" (in-process device registry) or "http" (remote registry).
	Mode string `yaml:"mode"`

	// RegistryURL is the base URL of the remote registry when Mode is "http".
	RegistryURL string `yaml:"registry_url"`

	// TimeoutMS bounds a single ownership lookup. A lookup that runs out of
	// time is treated as a denial.
	TimeoutMS int `yaml:"timeout_ms"`
}

// MinReadingsPageSize is the smallest accepted readings.max_page_size. It
// must not fall below the DAILY range cap or DAILY pages would be clamped.
const MinReadingsPageSize = 96

// ReadingsConfig contains sensor reading retention and query settings.
type ReadingsConfig struct {
	RetentionDays   int   `yaml:"retention_days"`
	LookbackSeconds int64 `yaml:"lookback_seconds"`
	MaxPageSize     int   `yaml:"max_page_size"`
	SweepInterval   int   `yaml:"sweep_interval"` // seconds
}

// ExternalConfig contains settings for third-party HTTP APIs.
type ExternalConfig struct {
	AccuWeather ExternalAPIConfig `yaml:"accuweather"`
	Perenual    ExternalAPIConfig `yaml:"perenual"`
	Timeout     int               `yaml:"timeout"` // seconds
}

// ExternalAPIConfig describes one third-party API.
type ExternalAPIConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeySecretID    string  `yaml:"api_key_secret_id"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Secret providers.
const (
	SecretsProviderEnv       = "env"
	SecretsProviderExtension = "extension"
)

// SecretsConfig selects where API keys and client secrets come from.
type SecretsConfig struct {
	Provider      string `yaml:"provider"`
	ExtensionPort int    `yaml:"extension_port"`
	SessionToken  string `yaml:"session_token"`
	CacheTTL      int    `yaml:"cache_ttl"` // seconds
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FLORA_SECTION_KEY
// For example: FLORA_DATABASE_PATH, FLORA_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "flora-001",
			Name: "Flora",
		},
		Database: DatabaseConfig{
			Path:        "./data/flora.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "flora-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: MQTTTopicsConfig{
				SensorData: "flora/sensors/+/data",
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "flora",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  60,
				RefreshTokenTTL: 43200,
			},
		},
		Authorization: AuthorizationConfig{
			Mode:      AuthorizationModeLocal,
			TimeoutMS: 3000,
		},
		Readings: ReadingsConfig{
			RetentionDays:   730,
			LookbackSeconds: 31557600,
			MaxPageSize:     500,
			SweepInterval:   3600,
		},
		External: ExternalConfig{
			AccuWeather: ExternalAPIConfig{
				BaseURL:           "https://dataservice.accuweather.com",
				APIKeySecretID:    "accuweather-api-key",
				RequestsPerSecond: 5,
			},
			Perenual: ExternalAPIConfig{
				BaseURL:           "https://perenual.com",
				APIKeySecretID:    "perenual-api-key",
				RequestsPerSecond: 2,
			},
			Timeout: 10,
		},
		Secrets: SecretsConfig{
			Provider:      SecretsProviderEnv,
			ExtensionPort: 2773,
			CacheTTL:      300,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FLORA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLORA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("FLORA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLORA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLORA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("FLORA_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("FLORA_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("FLORA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Always override the JWT secret in production.
	if v := os.Getenv("FLORA_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := os.Getenv("FLORA_REGISTRY_URL"); v != "" {
		cfg.Authorization.RegistryURL = v
	}

	// Set by the runtime when the parameters and secrets extension is in use.
	if v := os.Getenv("AWS_SESSION_TOKEN"); v != "" && cfg.Secrets.SessionToken == "" {
		cfg.Secrets.SessionToken = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if !strings.Contains(c.MQTT.Topics.SensorData, "+") {
		errs = append(errs, "mqtt.topics.sensor_data must contain a + wildcard for the device ID")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set FLORA_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	switch c.Authorization.Mode {
	case AuthorizationModeLocal:
	case AuthorizationModeHTTP:
		if c.Authorization.RegistryURL == "" {
			errs = append(errs, "authorization.registry_url is required when mode is http")
		}
	default:
		errs = append(errs, fmt.Sprintf("authorization.mode %q is not one of local, http", c.Authorization.Mode))
	}
	if c.Authorization.TimeoutMS <= 0 {
		errs = append(errs, "authorization.timeout_ms must be positive")
	}

	if c.Readings.RetentionDays <= 0 {
		errs = append(errs, "readings.retention_days must be positive")
	}
	if c.Readings.LookbackSeconds <= 0 {
		errs = append(errs, "readings.lookback_seconds must be positive")
	}
	if c.Readings.MaxPageSize < MinReadingsPageSize {
		errs = append(errs, fmt.Sprintf("readings.max_page_size must be at least %d", MinReadingsPageSize))
	}

	switch c.Secrets.Provider {
	case SecretsProviderEnv, SecretsProviderExtension:
	default:
		errs = append(errs, fmt.Sprintf("secrets.provider %q is not one of env, extension", c.Secrets.Provider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// Retention returns how long a reading is kept after ingestion.
func (r ReadingsConfig) Retention() time.Duration {
	return time.Duration(r.RetentionDays) * 24 * time.Hour
}

// Timeout returns the authorization lookup deadline.
func (a AuthorizationConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMS) * time.Millisecond
}
