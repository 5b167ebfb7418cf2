/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	EventExchange              string `mapstructure:"EVENT_EXCHANGE"`
	InterbankAPIBaseURL        string `mapstructure:"INTERBANK_API_BASE_URL"`
	InterbankAPIKey            string `mapstructure:"INTERBANK_API_KEY"`
	InterbankWebhookSecret     string `mapstructure:"INTERBANK_WEBHOOK_SECRET"`
	GatewayAPIBaseURL          string `mapstructure:"GATEWAY_API_BASE_URL"`
	GatewaySecretKey           string `mapstructure:"GATEWAY_SECRET_KEY"`
	RailTimeoutSeconds         int    `mapstructure:"RAIL_TIMEOUT_SECONDS"`
	JWTSecret                  string `mapstructure:"JWT_SECRET"`
	BankName                   string `mapstructure:"BANK_NAME"`
	BankCode                   string `mapstructure:"BANK_CODE"`
	MinTransferKobo            int64  `mapstructure:"MIN_TRANSFER_KOBO"`
	TransferRateLimitPerMinute int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	AutoChargeSchedule         string `mapstructure:"AUTO_CHARGE_SCHEDULE"`
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
	viper.SetDefault("EVENT_EXCHANGE", "banka.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "banka:rate_limit")
	viper.SetDefault("BANK_NAME", "Banka Bank")
	viper.SetDefault("BANK_CODE", "000099")
	viper.SetDefault("MIN_TRANSFER_KOBO", 100_00)
	viper.SetDefault("RAIL_TIMEOUT_SECONDS", 30)
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("AUTO_CHARGE_SCHEDULE", "@every 60s")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("INTERBANK_API_BASE_URL")
	_ = viper.BindEnv("INTERBANK_API_KEY")
	_ = viper.BindEnv("INTERBANK_WEBHOOK_SECRET")
	_ = viper.BindEnv("GATEWAY_API_BASE_URL")
	_ = viper.BindEnv("GATEWAY_SECRET_KEY")
	_ = viper.BindEnv("RAIL_TIMEOUT_SECONDS")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "LEDGER_SERVICE_JWT_SECRET")
	_ = viper.BindEnv("BANK_NAME")
	_ = viper.BindEnv("BANK_CODE")
	_ = viper.BindEnv("MIN_TRANSFER_KOBO")
	_ = viper.BindEnv("MIN_TRANSFER_NAIRA")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("AUTO_CHARGE_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.JWTSecret) == "" {
		config.JWTSecret = strings.TrimSpace(os.Getenv("LEDGER_SERVICE_JWT_SECRET"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "banka:rate_limit"
	}

	// Allow specifying the transfer minimum in whole currency units.
	if viper.IsSet("MIN_TRANSFER_NAIRA") {
		minStr := strings.TrimSpace(viper.GetString("MIN_TRANSFER_NAIRA"))
		if minStr != "" {
			minValue, parseErr := strconv.ParseFloat(minStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid MIN_TRANSFER_NAIRA\" value=%q err=%v", minStr, parseErr)
			} else {
				config.MinTransferKobo = int64(math.Round(minValue * 100))
			}
		}
	}

	if config.MinTransferKobo < 0 {
		log.Printf("level=warn component=config msg=\"negative transfer minimum configured; coercing to zero\" min_kobo=%d", config.MinTransferKobo)
		config.MinTransferKobo = 0
	}
	if config.TransferRateLimitPerMinute <= 0 {
		config.TransferRateLimitPerMinute = 30
	}
	if config.RailTimeoutSeconds <= 0 {
		config.RailTimeoutSeconds = 30
	}
	if strings.TrimSpace(config.AutoChargeSchedule) == "" {
		config.AutoChargeSchedule = "@every 60s"
	}

	return
}
