package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string
	Env      string
	RedisURL string

	// Official-account credentials for the default tenant.
	AppID            string
	AppSecret        string
	EchoToken        string
	AESKey           string // 43-char console form, empty for plaintext mode
	OAuthRedirectURL string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		RedisURL:         os.Getenv("REDIS_URL"),
		AppID:            os.Getenv("WECHAT_APP_ID"),
		AppSecret:        os.Getenv("WECHAT_APP_SECRET"),
		EchoToken:        os.Getenv("WECHAT_ECHO_TOKEN"),
		AESKey:           os.Getenv("WECHAT_AES_KEY"),
		OAuthRedirectURL: os.Getenv("WECHAT_OAUTH_REDIRECT_URL"),
	}

	// In production, require the account credentials and redis
	if cfg.Env == "production" {
		if cfg.AppID == "" {
			panic("WECHAT_APP_ID is required in production")
		}
		if cfg.AppSecret == "" {
			panic("WECHAT_APP_SECRET is required in production")
		}
		if cfg.EchoToken == "" {
			panic("WECHAT_ECHO_TOKEN is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
