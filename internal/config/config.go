package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	RedisChannel         string        `mapstructure:"REDIS_CHANNEL"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL          string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience         string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey       string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BlockDurationHours   int           `mapstructure:"BLOCK_DURATION_HOURS"`
	DayStartHour         int           `mapstructure:"DAY_START_HOUR"`
	DayEndHour           int           `mapstructure:"DAY_END_HOUR"`
	ScanExtractorURL     string        `mapstructure:"SCAN_EXTRACTOR_URL"`
	ScanExtractorTimeout time.Duration `mapstructure:"SCAN_EXTRACTOR_TIMEOUT"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "REDIS_CHANNEL",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"BLOCK_DURATION_HOURS", "DAY_START_HOUR", "DAY_END_HOUR",
	"SCAN_EXTRACTOR_URL", "SCAN_EXTRACTOR_TIMEOUT",
}

// Load reads configuration from the environment and an optional .env file.
// DATABASE_URL is the only required key.
func Load() (*Config, error) {
	cfg, err := LoadWithoutDatabase()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, unauthenticated requests get clinician access.")
	}
	return cfg, nil
}

// LoadWithoutDatabase is Load for commands that never open a pool, such as
// the offline analyze command.
func LoadWithoutDatabase() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("REDIS_CHANNEL", "diary-changes")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BLOCK_DURATION_HOURS", 72)
	v.SetDefault("DAY_START_HOUR", 6)
	v.SetDefault("DAY_END_HOUR", 22)
	v.SetDefault("SCAN_EXTRACTOR_TIMEOUT", "60s")

	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// BlockDuration is the fixed length of a recording block.
func (c *Config) BlockDuration() time.Duration {
	return time.Duration(c.BlockDurationHours) * time.Hour
}

// Validate checks that the configuration is safe to run. Outside development
// either AUTH_ISSUER (JWKS validation) or AUTH_SIGNING_KEY (HMAC) must be set.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q; refusing to start without authentication", c.Env)
	}
	if c.AuthSigningKey != "" {
		if _, err := hex.DecodeString(c.AuthSigningKey); err != nil {
			return fmt.Errorf("AUTH_SIGNING_KEY is not valid hex: %w", err)
		}
	}
	if c.DayStartHour < 0 || c.DayEndHour > 24 || c.DayStartHour >= c.DayEndHour {
		return fmt.Errorf("day window %d-%d is invalid: need 0 <= DAY_START_HOUR < DAY_END_HOUR <= 24",
			c.DayStartHour, c.DayEndHour)
	}
	if c.BlockDurationHours <= 0 {
		return fmt.Errorf("BLOCK_DURATION_HOURS must be positive, got %d", c.BlockDurationHours)
	}
	return nil
}

// SigningKey decodes AUTH_SIGNING_KEY. Validate has already rejected bad hex.
func (c *Config) SigningKey() []byte {
	if c.AuthSigningKey == "" {
		return nil
	}
	b, _ := hex.DecodeString(c.AuthSigningKey)
	return b
}
