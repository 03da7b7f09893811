package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	Env               string `mapstructure:"ENV"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisEventsDB int    `mapstructure:"REDIS_EVENTS_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Stripe (wallet top-ups only).
	StripeKey string `mapstructure:"STRIPE_KEY"`

	// Billing policy. Not reloaded mid-consultation; the rate and commission
	// in force at billing start apply for that consultation's lifetime.
	PlatformCommissionRate        float64 `mapstructure:"PLATFORM_COMMISSION_RATE"`
	FreeTrialEnabled              bool    `mapstructure:"FREE_TRIAL_ENABLED"`
	StuckCallThresholdMinutes     int     `mapstructure:"STUCK_CALL_THRESHOLD_MINUTES"`
	PendingAcceptTimeoutMinutes   int     `mapstructure:"PENDING_ACCEPT_TIMEOUT_MINUTES"`
	BalanceCheckIntervalSeconds   int     `mapstructure:"BALANCE_CHECK_INTERVAL_SECONDS"`
	CompensateProviderOnShortfall bool    `mapstructure:"COMPENSATE_PROVIDER_ON_SHORTFALL"`
	Currency                      string  `mapstructure:"CURRENCY"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_EVENTS_DB", 1)
	viper.SetDefault("REDIS_QUEUE_DB", 2)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("STRIPE_KEY", "")
	viper.SetDefault("PLATFORM_COMMISSION_RATE", 0.05)
	viper.SetDefault("FREE_TRIAL_ENABLED", false)
	viper.SetDefault("STUCK_CALL_THRESHOLD_MINUTES", 60)
	viper.SetDefault("PENDING_ACCEPT_TIMEOUT_MINUTES", 5)
	viper.SetDefault("BALANCE_CHECK_INTERVAL_SECONDS", 60)
	viper.SetDefault("COMPENSATE_PROVIDER_ON_SHORTFALL", false)
	viper.SetDefault("CURRENCY", "INR")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
