package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format" validate:"omitempty,oneof=console json"`

	DatabaseDriver string `mapstructure:"database_driver" yaml:"database_driver" validate:"oneof=sqlite3 postgres"`
	DatabaseDSN    string `mapstructure:"database_dsn" yaml:"database_dsn" validate:"required"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret" validate:"required,min=8"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl" validate:"gt=0"`

	// AuthTimeout bounds how long an upgraded socket may stay unauthenticated.
	AuthTimeout     time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout" validate:"gt=0"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes" validate:"gt=0"`
	MaxTextLength   int           `mapstructure:"max_text_length" yaml:"max_text_length" validate:"gt=0"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst" validate:"gte=0"`

	// RedisAddr enables the presence mirror when set.
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db" validate:"gte=0"`

	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabaseDriver:    DriverSQLite,
		DatabaseDSN:       "wiredm.db",
		JWTSecret:         "change-me-please",
		JWTIssuer:         "wiredm",
		JWTAudience:       "wiredm",
		JWTTTL:            24 * time.Hour,
		AuthTimeout:       10 * time.Second,
		MaxMessageBytes:   1 << 16,
		MaxTextLength:     4000,
		RateLimitRPS:      20,
		RateLimitBurst:    40,
	}
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
