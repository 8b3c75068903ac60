package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MigrationsPath  string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type PayHereConfig struct {
	MerchantID     string
	MerchantSecret string
	Currency       string
	ReturnURL      string
	CancelURL      string
	NotifyURL      string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type Config struct {
	App struct {
		Port string
	}
	Postgres PostgresConfig
	PayHere  PayHereConfig
	Auth     AuthConfig
}

// Load reads configuration from the environment, optionally seeded from a .env
// file. Missing required variables fail startup instead of surfacing later as
// broken connections or unverifiable signatures.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}

	cfg.App.Port = getEnv("APP_PORT", "8080")

	var err error
	if cfg.Postgres.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Port, err = requireEnv("DB_PORT"); err != nil {
		return nil, err
	}
	if cfg.Postgres.User, err = requireEnv("DB_USER"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Postgres.DBName, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "migrations")
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2
	cfg.Postgres.MaxConnLifetime = 30 * time.Minute

	if cfg.PayHere.MerchantID, err = requireEnv("PAYHERE_MERCHANT_ID"); err != nil {
		return nil, err
	}
	if cfg.PayHere.MerchantSecret, err = requireEnv("PAYHERE_MERCHANT_SECRET"); err != nil {
		return nil, err
	}
	cfg.PayHere.Currency = getEnv("PAYHERE_CURRENCY", "LKR")
	frontendURL := getEnv("FRONTEND_URL", "http://localhost:5173")
	apiURL := getEnv("API_URL", "http://localhost:8080")
	cfg.PayHere.ReturnURL = frontendURL + "/payment-success"
	cfg.PayHere.CancelURL = frontendURL + "/payment-cancel"
	cfg.PayHere.NotifyURL = apiURL + "/api/v1/payments/payhere/notify"

	if cfg.Auth.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}
	cfg.Auth.TokenTTL = 24 * time.Hour

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("config: %s is required", key)
	}
	return v, nil
}
