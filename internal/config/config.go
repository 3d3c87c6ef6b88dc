// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Printer   PrinterConfig   `mapstructure:"printer"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
}

// DatabaseConfig represents job history database configuration
type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	MigrateOnStart bool          `mapstructure:"migrate_on_start"`
	Retention      time.Duration `mapstructure:"retention"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// PrinterConfig represents printer driver configuration
type PrinterConfig struct {
	Address       string           `mapstructure:"address"`
	Threshold     int              `mapstructure:"threshold"`
	Timeout       time.Duration    `mapstructure:"timeout"`
	RetryAttempts int              `mapstructure:"retry_attempts"`
	RetryInterval time.Duration    `mapstructure:"retry_interval"`
	PollInterval  time.Duration    `mapstructure:"poll_interval"`
	PreambleSize  int              `mapstructure:"preamble_size"`
	Dither        bool             `mapstructure:"dither"`
	ScaleToFit    bool             `mapstructure:"scale_to_fit"`
	Serial        SerialPortConfig `mapstructure:"serial"`
	TCP           TCPPortConfig    `mapstructure:"tcp"`
	USB           USBPortConfig    `mapstructure:"usb"`
}

// SerialPortConfig represents serial port configuration
type SerialPortConfig struct {
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	StopBits int           `mapstructure:"stop_bits"`
	Parity   string        `mapstructure:"parity"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TCPPortConfig represents TCP port configuration
type TCPPortConfig struct {
	Port           int           `mapstructure:"port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	KeepAlive      bool          `mapstructure:"keep_alive"`
}

// USBPortConfig represents USB port configuration
type USBPortConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// DiscoveryConfig represents printer discovery configuration
type DiscoveryConfig struct {
	USBEnabled    bool          `mapstructure:"usb_enabled"`
	SerialEnabled bool          `mapstructure:"serial_enabled"`
	CharDevGlob   string        `mapstructure:"chardev_glob"`
	TCPHosts      []string      `mapstructure:"tcp_hosts"`
	QueryStatus   bool          `mapstructure:"query_status"`
	ScanTimeout   time.Duration `mapstructure:"scan_timeout"`
}

// Load loads configuration from the default search paths and environment variables
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper(), "")
}

// LoadFrom loads configuration into v. An explicit configFile must exist; the
// default search paths are optional.
func LoadFrom(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ql-service")
	}

	// Environment variable support
	v.SetEnvPrefix("QLSVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "ql-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_upload_mb", 16)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "ql_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrate_on_start", true)
	v.SetDefault("database.retention", "720h")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Printer defaults
	v.SetDefault("printer.address", "/dev/usb/lp0")
	v.SetDefault("printer.threshold", 128)
	v.SetDefault("printer.timeout", "5s")
	v.SetDefault("printer.retry_attempts", 100)
	v.SetDefault("printer.retry_interval", "5ms")
	v.SetDefault("printer.poll_interval", "50ms")
	v.SetDefault("printer.preamble_size", 200)
	v.SetDefault("printer.dither", false)
	v.SetDefault("printer.scale_to_fit", false)

	// Printer port defaults
	v.SetDefault("printer.serial.baud_rate", 9600)
	v.SetDefault("printer.serial.data_bits", 8)
	v.SetDefault("printer.serial.stop_bits", 1)
	v.SetDefault("printer.serial.parity", "none")
	v.SetDefault("printer.serial.timeout", "100ms")

	v.SetDefault("printer.tcp.port", 9100)
	v.SetDefault("printer.tcp.connect_timeout", "10s")
	v.SetDefault("printer.tcp.keep_alive", true)

	v.SetDefault("printer.usb.timeout", "5s")

	// Discovery defaults
	v.SetDefault("discovery.usb_enabled", true)
	v.SetDefault("discovery.serial_enabled", false)
	v.SetDefault("discovery.chardev_glob", "/dev/usb/lp*")
	v.SetDefault("discovery.tcp_hosts", []string{})
	v.SetDefault("discovery.query_status", false)
	v.SetDefault("discovery.scan_timeout", "10s")
}

// validate validates the configuration
func validate(config *Config) error {
	// Basic validation
	if config.Printer.Address == "" {
		return fmt.Errorf("printer.address is required")
	}
	if config.Printer.Threshold < 0 || config.Printer.Threshold > 255 {
		return fmt.Errorf("printer.threshold must be between 0 and 255, got %d", config.Printer.Threshold)
	}
	if config.Printer.Timeout <= 0 {
		return fmt.Errorf("printer.timeout must be positive")
	}
	if config.Printer.RetryAttempts <= 0 {
		return fmt.Errorf("printer.retry_attempts must be positive")
	}
	if config.Printer.PreambleSize < 0 {
		return fmt.Errorf("printer.preamble_size must not be negative")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when the database is enabled")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// DSN returns the lib/pq connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == "development"
}
