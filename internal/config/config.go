// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`

	DBDriver       string `mapstructure:"DB_DRIVER"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	SQLitePath     string `mapstructure:"SQLITE_PATH"`
	DBMaxOpenConns int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	RedisURL       string `mapstructure:"REDIS_URL"`

	TxMaxAttempts      int `mapstructure:"TX_MAX_ATTEMPTS"`
	TxBackoffInitialMS int `mapstructure:"TX_BACKOFF_INITIAL_MS"`
	TxBackoffMaxMS     int `mapstructure:"TX_BACKOFF_MAX_MS"`

	CommentFetchCap int `mapstructure:"COMMENT_FETCH_CAP"`
	RepairBatchSize int `mapstructure:"REPAIR_BATCH_SIZE"`

	LevelsFile      string `mapstructure:"LEVELS_FILE"`
	XPRewardPost    int64  `mapstructure:"XP_REWARD_POST"`
	XPRewardComment int64  `mapstructure:"XP_REWARD_COMMENT"`
	XPRewardLike    int64  `mapstructure:"XP_REWARD_LIKE"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	OTelExporter       string  `mapstructure:"OTEL_EXPORTER"`
	OTelEndpoint       string  `mapstructure:"OTEL_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("FEATURE_FLAGS", "xp_awards=on,post_cache=on")

	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "agora")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("SQLITE_PATH", "agora.db")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("TX_MAX_ATTEMPTS", 5)
	viper.SetDefault("TX_BACKOFF_INITIAL_MS", 10)
	viper.SetDefault("TX_BACKOFF_MAX_MS", 250)

	viper.SetDefault("COMMENT_FETCH_CAP", 50)
	viper.SetDefault("REPAIR_BATCH_SIZE", 200)

	viper.SetDefault("LEVELS_FILE", "")
	viper.SetDefault("XP_REWARD_POST", 25)
	viper.SetDefault("XP_REWARD_COMMENT", 10)
	viper.SetDefault("XP_REWARD_LIKE", 2)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("OTEL_EXPORTER", "stdout")
	viper.SetDefault("OTEL_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// TxBackoffInitial returns the first retry delay of a conflicting transaction.
func (c *Config) TxBackoffInitial() time.Duration {
	return time.Duration(c.TxBackoffInitialMS) * time.Millisecond
}

// TxBackoffMax caps the retry delay of a conflicting transaction.
func (c *Config) TxBackoffMax() time.Duration {
	return time.Duration(c.TxBackoffMaxMS) * time.Millisecond
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "postgres":
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when DB_DRIVER is sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.TxMaxAttempts < 1 {
		return errors.New("TX_MAX_ATTEMPTS must be at least 1")
	}
	if c.CommentFetchCap < 1 {
		return errors.New("COMMENT_FETCH_CAP must be positive")
	}
	if c.XPRewardPost < 0 || c.XPRewardComment < 0 || c.XPRewardLike < 0 {
		return errors.New("XP rewards cannot be negative")
	}

	if c.IsProduction() {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver != "postgres" {
			return errors.New("DB_DRIVER must be postgres in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
