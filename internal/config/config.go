package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the system-wide settings coordinator.
// ARCHITECTURAL DISCOVERY: Clean separation between configuration management
// and business logic; components receive values, never read the environment
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	GoalSeek  *GoalSeekConfig  `json:"goal_seek"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// GoalSeekConfig holds the calculation and intervention knobs.
// FUNCTIONAL DISCOVERY: MaxConnections bounds the whole server, not a
// per-user quota; the capacity check runs before authentication
type GoalSeekConfig struct {
	MaxConnections     int           `json:"max_connections"`
	CalculationTimeout time.Duration `json:"calculation_timeout"`
	InterventionTTL    time.Duration `json:"intervention_ttl"`
	AuthSecret         string        `json:"auth_secret"`
}

// DefaultConfig returns production-ready defaults
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./goalseek.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		GoalSeek: &GoalSeekConfig{
			MaxConnections:     3,
			CalculationTimeout: 10 * time.Second,
			InterventionTTL:    time.Hour,
		},
	}
}

// Validate ensures the configuration can run the system.
// AuthSecret is deliberately not validated here: the application layer
// rejects an empty secret at startup so tests can build configs freely.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.GoalSeek == nil {
		return fmt.Errorf("goal-seek configuration is required")
	}
	if c.GoalSeek.MaxConnections <= 0 {
		return fmt.Errorf("goal-seek max connections must be positive")
	}
	if c.GoalSeek.CalculationTimeout <= 0 {
		return fmt.Errorf("goal-seek calculation timeout must be positive")
	}
	if c.GoalSeek.InterventionTTL <= 0 {
		return fmt.Errorf("goal-seek intervention TTL must be positive")
	}

	return nil
}

// LoadFromEnv reads configuration from GOALSEEK_* environment variables,
// falling back to defaults for anything unset
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("GOALSEEK_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("GOALSEEK_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if readTimeout := os.Getenv("GOALSEEK_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("GOALSEEK_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if dbPath := os.Getenv("GOALSEEK_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("GOALSEEK_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}

	if pingInterval := os.Getenv("GOALSEEK_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if wsReadTimeout := os.Getenv("GOALSEEK_WEBSOCKET_READ_TIMEOUT"); wsReadTimeout != "" {
		if timeout, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}
	if wsWriteTimeout := os.Getenv("GOALSEEK_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if timeout, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if bufferSize := os.Getenv("GOALSEEK_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}

	if maxConns := os.Getenv("GOALSEEK_MAX_CONNECTIONS"); maxConns != "" {
		if n, err := strconv.Atoi(maxConns); err == nil {
			config.GoalSeek.MaxConnections = n
		}
	}
	if calcTimeout := os.Getenv("GOALSEEK_CALCULATION_TIMEOUT"); calcTimeout != "" {
		if timeout, err := time.ParseDuration(calcTimeout); err == nil {
			config.GoalSeek.CalculationTimeout = timeout
		}
	}
	if ttl := os.Getenv("GOALSEEK_INTERVENTION_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			config.GoalSeek.InterventionTTL = d
		}
	}
	if secret := os.Getenv("GOALSEEK_AUTH_SECRET"); secret != "" {
		config.GoalSeek.AuthSecret = secret
	}

	return config
}

// ConfigFile is the JSON structure for file-based configuration.
// FUNCTIONAL DISCOVERY: Separate struct so durations can be human-readable
// strings ("30s") instead of nanosecond integers
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	GoalSeek  *GoalSeekConfigFile  `json:"goal_seek"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type GoalSeekConfigFile struct {
	MaxConnections     int    `json:"max_connections"`
	CalculationTimeout string `json:"calculation_timeout"`
	InterventionTTL    string `json:"intervention_ttl"`
	AuthSecret         string `json:"auth_secret"`
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		if configFile.Database.Timeout != "" {
			if timeout, err := time.ParseDuration(configFile.Database.Timeout); err == nil {
				config.Database.Timeout = timeout
			}
		}
	}

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		if configFile.HTTP.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = timeout
			}
		}
		if configFile.HTTP.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = timeout
			}
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		if configFile.WebSocket.PingInterval != "" {
			if interval, err := time.ParseDuration(configFile.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = interval
			}
		}
		if configFile.WebSocket.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = timeout
			}
		}
		if configFile.WebSocket.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = timeout
			}
		}
	}

	if configFile.GoalSeek != nil {
		if configFile.GoalSeek.MaxConnections > 0 {
			config.GoalSeek.MaxConnections = configFile.GoalSeek.MaxConnections
		}
		if configFile.GoalSeek.CalculationTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.GoalSeek.CalculationTimeout); err == nil {
				config.GoalSeek.CalculationTimeout = timeout
			}
		}
		if configFile.GoalSeek.InterventionTTL != "" {
			if ttl, err := time.ParseDuration(configFile.GoalSeek.InterventionTTL); err == nil {
				config.GoalSeek.InterventionTTL = ttl
			}
		}
		if configFile.GoalSeek.AuthSecret != "" {
			config.GoalSeek.AuthSecret = configFile.GoalSeek.AuthSecret
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment > defaults
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// Silently ignore file errors - environment/defaults still work
	}

	return config
}
