package config

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/viper"
)

// ReferralConfig controls the referral ledger and its notifications
type ReferralConfig struct {
	BonusAmount    int64
	MaxTxAttempts  int
	NotifyAttempts int
	EventDedupTTL  time.Duration
	PublicBaseURL  string
}

// PurgeConfig controls the scheduled inactive-account purge
type PurgeConfig struct {
	Enabled       bool
	InactiveAfter time.Duration
	BatchSize     int
	Interval      time.Duration
}

// ServerConfig holds HTTP and auth settings
type ServerConfig struct {
	Port         string
	JWTSecretKey string
}

var envBindings = map[string]string{
	"database.host":     "DATABASE_HOST",
	"database.port":     "DATABASE_PORT",
	"database.user":     "DATABASE_USER",
	"database.password": "DATABASE_PASSWORD",
	"database.name":     "DATABASE_NAME",
	"database.ssl_mode": "DATABASE_SSL_MODE",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key": "JWT_SECRET_KEY",
	"server.port":    "PORT",

	"referral.bonus_amount":    "REFERRAL_BONUS_AMOUNT",
	"referral.max_tx_attempts": "REFERRAL_MAX_TX_ATTEMPTS",
	"referral.notify_attempts": "REFERRAL_NOTIFY_ATTEMPTS",
	"referral.event_dedup_ttl": "REFERRAL_EVENT_DEDUP_TTL",
	"referral.public_base_url": "PUBLIC_BASE_URL",

	"purge.enabled":        "PURGE_ENABLED",
	"purge.inactive_after": "PURGE_INACTIVE_AFTER",
	"purge.batch_size":     "PURGE_BATCH_SIZE",
	"purge.interval":       "PURGE_INTERVAL",
}

// Init reads .env (if present) and binds environment variables to config keys
func Init() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}
}

func LoadReferralConfig() *ReferralConfig {
	viper.SetDefault("referral.bonus_amount", 1000)
	viper.SetDefault("referral.max_tx_attempts", 5)
	viper.SetDefault("referral.notify_attempts", 3)
	viper.SetDefault("referral.event_dedup_ttl", 24*time.Hour)
	viper.SetDefault("referral.public_base_url", "http://localhost:8080")

	cfg := &ReferralConfig{
		BonusAmount:    viper.GetInt64("referral.bonus_amount"),
		MaxTxAttempts:  viper.GetInt("referral.max_tx_attempts"),
		NotifyAttempts: viper.GetInt("referral.notify_attempts"),
		EventDedupTTL:  viper.GetDuration("referral.event_dedup_ttl"),
		PublicBaseURL:  viper.GetString("referral.public_base_url"),
	}
	if cfg.MaxTxAttempts < 1 {
		cfg.MaxTxAttempts = 1
	}
	if cfg.NotifyAttempts < 1 {
		cfg.NotifyAttempts = 1
	}
	return cfg
}

func LoadPurgeConfig() *PurgeConfig {
	viper.SetDefault("purge.enabled", true)
	viper.SetDefault("purge.inactive_after", 180*24*time.Hour)
	viper.SetDefault("purge.batch_size", 100)
	viper.SetDefault("purge.interval", 24*time.Hour)

	cfg := &PurgeConfig{
		Enabled:       viper.GetBool("purge.enabled"),
		InactiveAfter: viper.GetDuration("purge.inactive_after"),
		BatchSize:     viper.GetInt("purge.batch_size"),
		Interval:      viper.GetDuration("purge.interval"),
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	return cfg
}

// Validate reports settings the server must not start without
func (c *ServerConfig) Validate() error {
	if c.JWTSecretKey == "" {
		return errors.New("JWT_SECRET_KEY is required")
	}
	return nil
}

func LoadServerConfig() *ServerConfig {
	viper.SetDefault("server.port", "8080")

	return &ServerConfig{
		Port:         viper.GetString("server.port"),
		JWTSecretKey: viper.GetString("jwt.secret_key"),
	}
}
