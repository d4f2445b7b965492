/**
 * @description
 * This package handles the configuration management for the billing service.
 * It uses the Viper library to read configuration from environment variables
 * (with an optional .env file for local development), providing a centralized
 * and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the billing service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	JWTSecret            string `mapstructure:"JWT_SECRET"`

	OnePipeAPIBaseURL    string `mapstructure:"ONEPIPE_API_BASE_URL"`
	OnePipeAPIKey        string `mapstructure:"ONEPIPE_API_KEY"`
	OnePipeWebhookSecret string `mapstructure:"ONEPIPE_WEBHOOK_SECRET"`

	BillingJobSchedule      string `mapstructure:"BILLING_JOB_SCHEDULE"`
	CounterResetJobSchedule string `mapstructure:"COUNTER_RESET_JOB_SCHEDULE"`

	PaymentRateLimitPerMinute  int `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`
	TrackingRateLimitPerMinute int `mapstructure:"TRACKING_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "bukafresh:rate_limit")
	viper.SetDefault("BILLING_JOB_SCHEDULE", "0 0 * * *")
	viper.SetDefault("COUNTER_RESET_JOB_SCHEDULE", "0 0 1 * *")
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("TRACKING_RATE_LIMIT_PER_MINUTE", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("ONEPIPE_API_BASE_URL")
	_ = viper.BindEnv("ONEPIPE_API_KEY")
	_ = viper.BindEnv("ONEPIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("BILLING_JOB_SCHEDULE")
	_ = viper.BindEnv("COUNTER_RESET_JOB_SCHEDULE")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("TRACKING_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	return
}
