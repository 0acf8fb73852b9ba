package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string
	Mode     string
	Database DatabaseConfig
	JWT      JWTConfig
	Archive  ArchiveConfig
	Publish  PublishConfig
	Summary  SummaryConfig
	RedisURL string
}

type DatabaseConfig struct {
	Driver   string
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	Secret     []byte
	Expiration time.Duration
}

// ArchiveConfig holds the URLs and identity stamped into version metadata.
type ArchiveConfig struct {
	WebAppURL            string
	ManifestBaseURL      string
	SchemaContextBaseURL string
	APIVersion           string
}

type PublishConfig struct {
	RequireAdmin bool
	RequireValid bool
	MaxAttempts  int
	LockTTL      time.Duration
}

// SummaryConfig bounds the assetsSummary scan over a version's assets.
type SummaryConfig struct {
	BatchSize int
	Budget    time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("app_mode", "development")

	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_name", "dandi")
	v.SetDefault("db_sslmode", "disable")

	v.SetDefault("jwt_secret", "your-secret-key-change-this-in-production")
	v.SetDefault("jwt_expiration", 24*time.Hour)

	v.SetDefault("dandi_web_app_url", "https://dandiarchive.org")
	v.SetDefault("dandi_manifest_base_url", "https://dandiarchive.s3.amazonaws.com")
	v.SetDefault("dandi_schema_context_base_url", "https://raw.githubusercontent.com/dandi/schema/master/releases")
	v.SetDefault("dandi_api_version", "0.1.0")

	v.SetDefault("publish_requires_admin", true)
	v.SetDefault("publish_requires_valid", false)
	v.SetDefault("publish_max_attempts", 3)
	v.SetDefault("publish_lock_ttl", 30*time.Second)

	v.SetDefault("summary_batch_size", 500)
	v.SetDefault("summary_budget", 10*time.Second)
}

// Load reads .env (if present) and the process environment into a Config.
// Flags bound to v take precedence over the environment.
func Load(v *viper.Viper) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Port: v.GetString("port"),
		Mode: v.GetString("app_mode"),
		Database: DatabaseConfig{
			Driver:   strings.ToLower(v.GetString("db_driver")),
			DSN:      v.GetString("db_dsn"),
			Host:     v.GetString("db_host"),
			Port:     v.GetString("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			Name:     v.GetString("db_name"),
			SSLMode:  v.GetString("db_sslmode"),
		},
		JWT: JWTConfig{
			Secret:     []byte(v.GetString("jwt_secret")),
			Expiration: v.GetDuration("jwt_expiration"),
		},
		Archive: ArchiveConfig{
			WebAppURL:            strings.TrimRight(v.GetString("dandi_web_app_url"), "/"),
			ManifestBaseURL:      strings.TrimRight(v.GetString("dandi_manifest_base_url"), "/"),
			SchemaContextBaseURL: strings.TrimRight(v.GetString("dandi_schema_context_base_url"), "/"),
			APIVersion:           v.GetString("dandi_api_version"),
		},
		Publish: PublishConfig{
			RequireAdmin: v.GetBool("publish_requires_admin"),
			RequireValid: v.GetBool("publish_requires_valid"),
			MaxAttempts:  v.GetInt("publish_max_attempts"),
			LockTTL:      v.GetDuration("publish_lock_ttl"),
		},
		Summary: SummaryConfig{
			BatchSize: v.GetInt("summary_batch_size"),
			Budget:    v.GetDuration("summary_budget"),
		},
		RedisURL: v.GetString("redis_url"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (expected postgres or sqlite)", c.Database.Driver)
	}
	if len(c.JWT.Secret) == 0 {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.Publish.MaxAttempts < 1 {
		return fmt.Errorf("PUBLISH_MAX_ATTEMPTS must be at least 1, got %d", c.Publish.MaxAttempts)
	}
	if c.Summary.BatchSize < 1 {
		return fmt.Errorf("SUMMARY_BATCH_SIZE must be at least 1, got %d", c.Summary.BatchSize)
	}
	return nil
}

// PostgresDSN builds a DSN from the discrete settings unless DB_DSN is set.
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}
