package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // あればPOSTGRES_*より優先
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	JWTSecret string // JWT署名シークレット

	RedisAddr      string // 空なら二重送信防止キーは使わない
	RedisPassword  string
	RedisDB        int
	IdempotencyTTL time.Duration

	LogLevel string // debug/info/warn/error
	GoEnv    string // dev/prod

	OTLPEndpoint string // 空ならトレース無効
	ServiceName  string
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port: getenv("PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		LogLevel: getenv("LOG_LEVEL", "info"),
		GoEnv:    getenv("GO_ENV", "dev"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:  getenv("SERVICE_NAME", "purchase-service"),
	}

	var err error
	if cfg.PostgresPort, err = atoiDefault("POSTGRES_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = atoiDefault("REDIS_DB", 0); err != nil {
		return Config{}, err
	}

	ttl := getenv("IDEMPOTENCY_TTL", "24h")
	cfg.IdempotencyTTL, err = time.ParseDuration(ttl)
	if err != nil {
		return Config{}, fmt.Errorf("IDEMPOTENCY_TTL must be duration: %w", err)
	}
	if cfg.IdempotencyTTL <= 0 {
		return Config{}, fmt.Errorf("IDEMPOTENCY_TTL must be positive")
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DatabaseURL == "" {
		if cfg.PostgresUser == "" {
			return Config{}, fmt.Errorf("POSTGRES_USER is required")
		}
		if cfg.PostgresPassword == "" {
			return Config{}, fmt.Errorf("POSTGRES_PASSWORD is required")
		}
		if cfg.PostgresDB == "" {
			return Config{}, fmt.Errorf("POSTGRES_DB is required")
		}
		if cfg.PostgresHost == "" {
			return Config{}, fmt.Errorf("POSTGRES_HOST is required")
		}
	}

	return cfg, nil
}

// DATABASE_URLが無ければPOSTGRES_*から組み立てる
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func (c Config) IsDev() bool {
	return c.GoEnv == "dev"
}

func (c Config) Addr() string {
	if c.Port != "" && c.Port[0] == ':' {
		return c.Port
	}
	return ":" + c.Port
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}
