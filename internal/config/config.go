// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// ストアドライバー名
const (
	StoreMongo  = "mongo"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// minReleaseSecretBytes は release モードで要求するトークン署名鍵の最小長です。
const minReleaseSecretBytes = 32

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port     string `env:"PORT" envDefault:"5000"`
	GinMode  string `env:"GIN_MODE" envDefault:"debug"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// CORS設定（カンマ区切り）
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// 永続化設定
	StoreDriver   string        `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoURL      string        `env:"MONGO_URL" envDefault:"mongodb://127.0.0.1:27017"`
	MongoDatabase string        `env:"MONGO_DATABASE" envDefault:"userauth"`
	RedisURL      string        `env:"REDIS_URL" envDefault:"redis://127.0.0.1:6379/0"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// 認証設定
	TokenSecret     string        `env:"TOKEN_SECRET"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	HashCost        int           `env:"HASH_COST" envDefault:"10"`
	HashConcurrency int           `env:"HASH_CONCURRENCY" envDefault:"0"`
	CookieSecure    bool          `env:"COOKIE_SECURE" envDefault:"false"`

	// ジョブ/キュー設定（空の場合はセッション失効ジョブを無効化）
	QueueRedisURL string `env:"QUEUE_REDIS_URL"`

	// EphemeralTokenSecret は TOKEN_SECRET 未設定のため起動時に乱数鍵を生成したことを示します。
	EphemeralTokenSecret bool
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.TokenSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		cfg.TokenSecret = secret
		cfg.EphemeralTokenSecret = true
	}

	return cfg, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGO_URL is required when STORE_DRIVER=mongo")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_DRIVER=redis")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.HashCost < bcrypt.MinCost || c.HashCost > bcrypt.MaxCost {
		return fmt.Errorf("HASH_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.HashConcurrency < 0 {
		return fmt.Errorf("HASH_CONCURRENCY must not be negative")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}

	// ローカル開発では署名鍵は任意（起動ごとに乱数鍵を生成する）
	if c.GinMode == "release" {
		if c.TokenSecret == "" {
			return fmt.Errorf("TOKEN_SECRET is required in release mode")
		}
		if len(c.TokenSecret) < minReleaseSecretBytes {
			return fmt.Errorf("TOKEN_SECRET must be at least %d bytes in release mode", minReleaseSecretBytes)
		}
	}

	return nil
}

// Addr は HTTP サーバーの待ち受けアドレスを返します。
func (c *Config) Addr() string {
	return ":" + c.Port
}

func randomSecret() (string, error) {
	buf := make([]byte, minReleaseSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
