package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string `env:"CHOREQUEST_PORT" envDefault:"8080"`
	DBPath    string `env:"CHOREQUEST_DB_PATH" envDefault:"chorequest.db"`
	LogLevel  string `env:"CHOREQUEST_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CHOREQUEST_LOG_FORMAT" envDefault:"text"` // text, json
	Timezone  string `env:"CHOREQUEST_TZ" envDefault:"Local"`

	JWTSecret string        `env:"CHOREQUEST_JWT_SECRET,required,notEmpty"`
	TokenTTL  time.Duration `env:"CHOREQUEST_TOKEN_TTL" envDefault:"168h"`

	SchedulerEnabled  bool          `env:"CHOREQUEST_SCHEDULER_ENABLED" envDefault:"true"`
	SchedulerInterval time.Duration `env:"CHOREQUEST_SCHEDULER_INTERVAL" envDefault:"60s"`
	JobTimeout        time.Duration `env:"CHOREQUEST_JOB_TIMEOUT" envDefault:"30s"`
	CronSecret        string        `env:"CHOREQUEST_CRON_SECRET"`

	// Redis is optional; without it the scheduler lock is process-local.
	RedisAddr     string `env:"CHOREQUEST_REDIS_ADDR"`
	RedisPassword string `env:"CHOREQUEST_REDIS_PASSWORD"`
	RedisDB       int    `env:"CHOREQUEST_REDIS_DB" envDefault:"0"`

	S3Endpoint      string `env:"CHOREQUEST_S3_ENDPOINT"`
	S3Bucket        string `env:"CHOREQUEST_S3_BUCKET"`
	S3Region        string `env:"CHOREQUEST_S3_REGION" envDefault:"us-east-1"`
	S3AccessKey     string `env:"CHOREQUEST_S3_ACCESS_KEY"`
	S3SecretKey     string `env:"CHOREQUEST_S3_SECRET_KEY"`
	S3PublicBaseURL string `env:"CHOREQUEST_S3_PUBLIC_URL"`

	// Backups reuse the S3 bucket and run after each daily reset.
	BackupPassphrase    string `env:"CHOREQUEST_BACKUP_PASSPHRASE"`
	BackupRetentionDays int    `env:"CHOREQUEST_BACKUP_RETENTION_DAYS" envDefault:"14"`

	VAPIDPublicKey  string `env:"CHOREQUEST_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"CHOREQUEST_VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"CHOREQUEST_VAPID_SUBJECT" envDefault:"mailto:noreply@chorequest.app"`

	InterestRate float64 `env:"CHOREQUEST_INTEREST_RATE" envDefault:"0.01"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location resolves the configured timezone used for calendar-day logic.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) BackupEnabled() bool {
	return c.S3Enabled() && c.BackupPassphrase != ""
}

func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}
