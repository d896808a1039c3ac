/**
 * @description
 * Configuration management for the payments service. All configuration comes
 * from environment variables; a local .env file is loaded when present.
 */
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`
	JWKSURL              string `mapstructure:"JWKS_URL"`
	PaymentGatewayURL    string `mapstructure:"PAYMENT_GATEWAY_URL"`
	PaymentGatewayAPIKey string `mapstructure:"PAYMENT_GATEWAY_API_KEY"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`

	PlatformFeePercent              int64  `mapstructure:"PLATFORM_FEE_PERCENT"`
	DefaultSessionRate              int64  `mapstructure:"DEFAULT_SESSION_RATE"`
	MaxChargeAttempts               int    `mapstructure:"MAX_CHARGE_ATTEMPTS"`
	RetryBackoffHours               int    `mapstructure:"RETRY_BACKOFF_HOURS"`
	StuckProcessingThresholdMinutes int    `mapstructure:"STUCK_PROCESSING_THRESHOLD_MINUTES"`
	PaymentRunSchedule              string `mapstructure:"PAYMENT_RUN_SCHEDULE"`
	ReclaimJobSchedule              string `mapstructure:"RECLAIM_JOB_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	_ = godotenv.Load()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PLATFORM_FEE_PERCENT", 15)
	viper.SetDefault("DEFAULT_SESSION_RATE", 5000)
	viper.SetDefault("MAX_CHARGE_ATTEMPTS", 3)
	viper.SetDefault("RETRY_BACKOFF_HOURS", 24)
	viper.SetDefault("STUCK_PROCESSING_THRESHOLD_MINUTES", 60)
	viper.SetDefault("PAYMENT_RUN_SCHEDULE", "0 2 * * *")
	viper.SetDefault("RECLAIM_JOB_SCHEDULE", "30 * * * *")
	viper.AutomaticEnv()

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("PAYMENT_GATEWAY_URL")
	_ = viper.BindEnv("PAYMENT_GATEWAY_API_KEY")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PLATFORM_FEE_PERCENT")
	_ = viper.BindEnv("DEFAULT_SESSION_RATE")
	_ = viper.BindEnv("MAX_CHARGE_ATTEMPTS")
	_ = viper.BindEnv("RETRY_BACKOFF_HOURS")
	_ = viper.BindEnv("STUCK_PROCESSING_THRESHOLD_MINUTES")
	_ = viper.BindEnv("PAYMENT_RUN_SCHEDULE")
	_ = viper.BindEnv("RECLAIM_JOB_SCHEDULE")

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := os.Getenv("PORT"); port != "" {
		config.ServerPort = port
	}

	if config.DatabaseURL == "" {
		return config, fmt.Errorf("DATABASE_URL is required")
	}
	if config.PaymentGatewayURL == "" {
		return config, fmt.Errorf("PAYMENT_GATEWAY_URL is required")
	}
	if config.PlatformFeePercent < 0 || config.PlatformFeePercent > 100 {
		return config, fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %d", config.PlatformFeePercent)
	}
	if config.MaxChargeAttempts < 1 {
		return config, fmt.Errorf("MAX_CHARGE_ATTEMPTS must be at least 1, got %d", config.MaxChargeAttempts)
	}

	return
}
