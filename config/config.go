// Package config reads service settings from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port     string
	LogLevel string
	Database DatabaseConfig
	Redis    RedisConfig

	WebOrigin     string
	RPID          string
	RPOrigins     []string
	SessionTTL    time.Duration // WebAuthn ceremony data
	AppSessionTTL time.Duration // login cookie
	AdminEmails   []string

	BootstrapEmail string

	Lifecycle LifecycleConfig
	RabbitMQ  RabbitMQConfig
	Minio     MinioConfig
	SMTP      SMTPConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders a libpq-style keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.DBName, d.Port, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
}

type LifecycleConfig struct {
	StoreTimeout     time.Duration
	StoreRetries     uint64
	RetryBackoff     time.Duration
	DefaultDailyFine decimal.Decimal
}

type RabbitMQConfig struct {
	URL          string
	Queue        string
	QueueDurable bool
}

func (r RabbitMQConfig) Enabled() bool { return strings.TrimSpace(r.URL) != "" }

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

func (m MinioConfig) Enabled() bool { return strings.TrimSpace(m.Endpoint) != "" }

// SMTPConfig drives invite mail. Without a host the link is only logged.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	AppName  string
}

func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && (s.Username != "" || s.From != "")
}

// Sender is the envelope address; it falls back to the login name.
func (s SMTPConfig) Sender() string {
	if s.From != "" {
		return s.From
	}
	return s.Username
}

// Load reads .env (if any) and the environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() Config {
	return Config{
		Port:     getEnv("PORT", "3001"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "toolhub"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		WebOrigin:      getEnv("WEB_ORIGIN", "http://localhost:5173"),
		RPID:           getEnv("RP_ID", "localhost"),
		RPOrigins:      splitCSV(getEnv("RP_ORIGINS", "http://localhost:5173"), false),
		SessionTTL:     time.Duration(getEnvInt("SESSION_TTL_SECONDS", 600)) * time.Second,
		AppSessionTTL:  time.Duration(getEnvInt("APP_SESSION_TTL_HOURS", 24)) * time.Hour,
		AdminEmails:    splitCSV(os.Getenv("ADMIN_EMAILS"), true),
		BootstrapEmail: strings.ToLower(strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_EMAIL"))),
		Lifecycle: LifecycleConfig{
			StoreTimeout:     time.Duration(getEnvInt("STORE_TIMEOUT_MS", 3000)) * time.Millisecond,
			StoreRetries:     uint64(getEnvInt("STORE_RETRIES", 3)),
			RetryBackoff:     time.Duration(getEnvInt("STORE_RETRY_BACKOFF_MS", 100)) * time.Millisecond,
			DefaultDailyFine: getEnvDecimal("FINE_DEFAULT_DAILY_RATE", decimal.Zero),
		},
		RabbitMQ: RabbitMQConfig{
			URL:          os.Getenv("RABBITMQ_URL"),
			Queue:        getEnv("LOAN_EVENTS_QUEUE", "loan-events"),
			QueueDurable: getEnvBool("LOAN_EVENTS_DURABLE", true),
		},
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "item-images"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			PublicURL: os.Getenv("MINIO_PUBLIC_URL"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			AppName:  getEnv("APP_NAME", "ToolHub"),
		},
	}
}

// IsAdminEmail reports whether the address is in ADMIN_EMAILS.
func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range c.AdminEmails {
		if a == email {
			return true
		}
	}
	return false
}

// SecureCookies is true when the web origin is served over TLS.
func (c Config) SecureCookies() bool { return strings.HasPrefix(c.WebOrigin, "https://") }

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvInt(key string, def int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v, err := decimal.NewFromString(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func splitCSV(s string, lower bool) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			if lower {
				p = strings.ToLower(p)
			}
			out = append(out, p)
		}
	}
	return out
}
