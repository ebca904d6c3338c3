package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Reflectors ReflectorsConfig `mapstructure:"reflectors"`
	ACL        ACLConfig        `mapstructure:"acl"`
	Reporter   ReporterConfig   `mapstructure:"reporter"`
	Web        WebConfig        `mapstructure:"web"`
	Database   DatabaseConfig   `mapstructure:"database"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ServerConfig holds server identification
type ServerConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// ReflectorsConfig groups the per-protocol reflector settings
type ReflectorsConfig struct {
	P25  P25Config  `mapstructure:"p25"`
	NXDN NXDNConfig `mapstructure:"nxdn"`
	YSF  YSFConfig  `mapstructure:"ysf"`
	M17  M17Config  `mapstructure:"m17"`
}

// ReflectorConfig holds the settings every protocol engine shares
type ReflectorConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Debug        bool   `mapstructure:"debug"`
	ACL          bool   `mapstructure:"acl"`
	Timeout      int    `mapstructure:"timeout"`       // Seconds of silence before a peer is reaped, 0 disables
	ReapInterval int    `mapstructure:"reap_interval"` // Seconds between reaper sweeps
}

// PeerTimeout returns the configured inactivity timeout
func (r ReflectorConfig) PeerTimeout() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// SweepInterval returns the configured reaper interval
func (r ReflectorConfig) SweepInterval() time.Duration {
	return time.Duration(r.ReapInterval) * time.Second
}

// P25Config holds P25 reflector configuration
type P25Config struct {
	ReflectorConfig `mapstructure:",squash"`
}

// NXDNConfig holds NXDN reflector configuration
type NXDNConfig struct {
	ReflectorConfig `mapstructure:",squash"`
	TargetGroup     uint16 `mapstructure:"target_group"`
}

// YSFConfig holds YSF reflector configuration
type YSFConfig struct {
	ReflectorConfig `mapstructure:",squash"`
	ID              uint32 `mapstructure:"id"`
	Name            string `mapstructure:"name"`
	Description     string `mapstructure:"description"`
}

// M17Config holds M17 reflector configuration
type M17Config struct {
	ReflectorConfig `mapstructure:",squash"`
	Reflector       string         `mapstructure:"reflector"` // Three character designator, e.g. "USA" for M17-USA
	Modules         []ModuleConfig `mapstructure:"modules"`
}

// ModuleConfig enables or disables a single M17 module
type ModuleConfig struct {
	Module  string `mapstructure:"module"`
	Enabled bool   `mapstructure:"enabled"`
}

// EnabledModules returns the modules a client may link to
func (m M17Config) EnabledModules() []string {
	var mods []string
	for _, mod := range m.Modules {
		if mod.Enabled {
			mods = append(mods, mod.Module)
		}
	}
	return mods
}

// ACLConfig holds the location of the callsign access list
type ACLConfig struct {
	Path string `mapstructure:"path"`
}

// ReporterConfig holds the outbound webhook settings
type ReporterConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Timeout int    `mapstructure:"timeout"` // Seconds
}

// WebConfig holds the management API configuration
type WebConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`      // Plain password, used when password_hash is empty
	PasswordHash string `mapstructure:"password_hash"` // "salt:hash", base64, PBKDF2-SHA256
	TokenTTL     int    `mapstructure:"token_ttl"`     // Minutes
}

// DatabaseConfig holds call history database configuration
type DatabaseConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// MQTTConfig holds MQTT client configuration
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	QoS         byte   `mapstructure:"qos"`
	Retained    bool   `mapstructure:"retained"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/reflector-nexus")
	}

	// REFLECTOR_WEB_PORT overrides web.port
	viper.SetEnvPrefix("REFLECTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - that's also OK
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.name", "Reflector-Nexus")
	viper.SetDefault("server.description", "Multi-mode reflector")

	// Reflector defaults
	viper.SetDefault("reflectors.p25.enabled", false)
	viper.SetDefault("reflectors.p25.host", "0.0.0.0")
	viper.SetDefault("reflectors.p25.port", 41000)
	viper.SetDefault("reflectors.p25.timeout", 30)
	viper.SetDefault("reflectors.p25.reap_interval", 5)

	viper.SetDefault("reflectors.nxdn.enabled", false)
	viper.SetDefault("reflectors.nxdn.host", "0.0.0.0")
	viper.SetDefault("reflectors.nxdn.port", 41400)
	viper.SetDefault("reflectors.nxdn.timeout", 0)
	viper.SetDefault("reflectors.nxdn.reap_interval", 5)
	viper.SetDefault("reflectors.nxdn.target_group", 65000)

	viper.SetDefault("reflectors.ysf.enabled", false)
	viper.SetDefault("reflectors.ysf.host", "0.0.0.0")
	viper.SetDefault("reflectors.ysf.port", 42000)
	viper.SetDefault("reflectors.ysf.timeout", 15)
	viper.SetDefault("reflectors.ysf.reap_interval", 5)
	viper.SetDefault("reflectors.ysf.name", "Nexus")
	viper.SetDefault("reflectors.ysf.description", "Reflector")

	viper.SetDefault("reflectors.m17.enabled", false)
	viper.SetDefault("reflectors.m17.host", "0.0.0.0")
	viper.SetDefault("reflectors.m17.port", 17000)
	viper.SetDefault("reflectors.m17.timeout", 30)
	viper.SetDefault("reflectors.m17.reap_interval", 5)

	viper.SetDefault("acl.path", "acl.yaml")

	viper.SetDefault("reporter.enabled", false)
	viper.SetDefault("reporter.host", "127.0.0.1")
	viper.SetDefault("reporter.port", 3000)
	viper.SetDefault("reporter.timeout", 5)

	// Web defaults
	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8080)
	viper.SetDefault("web.token_ttl", 60)

	viper.SetDefault("database.enabled", true)
	viper.SetDefault("database.path", "data/reflector-nexus.db")
	viper.SetDefault("database.retention_days", 30)

	// MQTT defaults
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.topic_prefix", "reflector/nexus")
	viper.SetDefault("mqtt.client_id", "reflector-nexus")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retained", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prometheus.enabled", true)
	viper.SetDefault("metrics.prometheus.port", 9090)
	viper.SetDefault("metrics.prometheus.path", "/metrics")
}
