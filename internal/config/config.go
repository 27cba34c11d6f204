package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Booking  BookingConfig  `mapstructure:"booking"`
	Log      LogConfig      `mapstructure:"log"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"` // mongo or sqlite
	URI        string `mapstructure:"uri"`
	Name       string `mapstructure:"name"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type S3Config struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	BucketName      string        `mapstructure:"bucket_name"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	URLExpiry       time.Duration `mapstructure:"url_expiry"`
}

// Enabled reports whether attachments can be stored at all.
func (c S3Config) Enabled() bool {
	return c.BucketName != ""
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// BookingConfig tunes conflict checks and the request state machine.
type BookingConfig struct {
	GraceWindow             time.Duration `mapstructure:"grace_window"`
	DefaultDurationMinutes  int           `mapstructure:"default_duration_minutes"`
	StoreTimeout            time.Duration `mapstructure:"store_timeout"`
	LockTTL                 time.Duration `mapstructure:"lock_ttl"`
	LockPollInterval        time.Duration `mapstructure:"lock_poll_interval"`
	RescheduleDeclinePolicy string        `mapstructure:"reschedule_decline_policy"` // keep_session or restore_requested
	PlanOwnerCacheTTL       time.Duration `mapstructure:"plan_owner_cache_ttl"`
	PlanOwnerCacheSize      int           `mapstructure:"plan_owner_cache_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// AdminConfig seeds one admin account at startup when Email is set.
type AdminConfig struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// LoadConfig reads configuration from path/config.yaml, path/.env and the environment.
// Environment variables win over the file: booking.store_timeout -> BOOKING_STORE_TIMEOUT.
func LoadConfig(path string) (config Config, err error) {
	// A .env file is optional; real environment variables are never overwritten by it.
	if err = godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil // Fine to run on defaults and env vars alone
	} else if err != nil {
		return config, err
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, err
	}
	return config, config.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "120s")

	v.SetDefault("database.driver", DriverMongo)
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "session_booking")
	v.SetDefault("database.sqlite_path", "session_booking.db")

	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("s3.url_expiry", "15m")
	// Registered so AutomaticEnv can fill them without a config file.
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", "1h")

	v.SetDefault("booking.grace_window", "5m")
	v.SetDefault("booking.default_duration_minutes", 60)
	v.SetDefault("booking.store_timeout", "5s")
	v.SetDefault("booking.lock_ttl", "30s")
	v.SetDefault("booking.lock_poll_interval", "25ms")
	v.SetDefault("booking.reschedule_decline_policy", "keep_session")
	v.SetDefault("booking.plan_owner_cache_ttl", "5m")
	v.SetDefault("booking.plan_owner_cache_size", 1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("admin.name", "Administrator")
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	switch c.Database.Driver {
	case DriverMongo:
		if c.Database.URI == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("database.uri and database.name are required for the mongo driver"))
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("database.sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of mongo, sqlite", c.Database.Driver))
	}
	switch c.Booking.RescheduleDeclinePolicy {
	case "keep_session", "restore_requested":
	default:
		errs = append(errs, fmt.Errorf("booking.reschedule_decline_policy %q is not one of keep_session, restore_requested", c.Booking.RescheduleDeclinePolicy))
	}
	if c.Booking.StoreTimeout <= 0 {
		errs = append(errs, errors.New("booking.store_timeout must be positive"))
	}
	// A lock must outlive the request holding it, or a second process can take it
	// mid check-and-write.
	if c.Booking.LockTTL <= c.Booking.StoreTimeout {
		errs = append(errs, fmt.Errorf("booking.lock_ttl (%s) must be longer than booking.store_timeout (%s)", c.Booking.LockTTL, c.Booking.StoreTimeout))
	}
	if c.Booking.GraceWindow < 0 {
		errs = append(errs, errors.New("booking.grace_window must not be negative"))
	}
	if c.Admin.Email != "" && len(c.Admin.Password) < 8 {
		errs = append(errs, errors.New("admin.password must be at least 8 characters"))
	}
	return errors.Join(errs...)
}
