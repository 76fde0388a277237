package config

import (
	"os"
	"strconv"
	"time"
)

// TokenPackage is a purchasable bundle of generation tokens.
type TokenPackage struct {
	ID         string
	Name       string
	Tokens     int
	PriceCents int64
}

type TokenConfig struct {
	Packages map[string]TokenPackage
	Currency string
}

type GenerationConfig struct {
	EmojiDir       string
	MaxUploadBytes int64
	CallTimeout    time.Duration
}

type AuthConfig struct {
	CodeLength       int
	CodeTTL          time.Duration
	MaxCodesPerEmail int
	RateLimitWindow  time.Duration
}

func LoadTokenConfig() *TokenConfig {
	return &TokenConfig{
		Currency: getEnv("TOKEN_CURRENCY", "usd"),
		Packages: map[string]TokenPackage{
			"starter": {ID: "starter", Name: "Starter Pack", Tokens: 50, PriceCents: 499},
			"popular": {ID: "popular", Name: "Popular Pack", Tokens: 200, PriceCents: 1499},
			"pro":     {ID: "pro", Name: "Pro Pack", Tokens: 500, PriceCents: 2999},
		},
	}
}

func LoadGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		EmojiDir:       getEnv("EMOJI_DIR", "./static/emojis"),
		MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		CallTimeout:    getEnvAsDuration("GENERATION_TIMEOUT", 60*time.Second),
	}
}

func LoadAuthConfig() *AuthConfig {
	return &AuthConfig{
		CodeLength:       getEnvAsInt("LOGIN_CODE_LENGTH", 6),
		CodeTTL:          getEnvAsDuration("LOGIN_CODE_TTL", 10*time.Minute),
		MaxCodesPerEmail: getEnvAsInt("LOGIN_MAX_CODES_PER_EMAIL", 5),
		RateLimitWindow:  getEnvAsDuration("LOGIN_RATE_LIMIT_WINDOW", 1*time.Hour),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
