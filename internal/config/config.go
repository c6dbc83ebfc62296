/**
 * @description
 * Configuration for the fitness commerce service. Values come from environment
 * variables, optionally seeded from a .env file, and are read through Viper.
 *
 * @dependencies
 * - github.com/spf13/viper: environment and .env binding.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultServerPort             = "8080"
	defaultRateLimitPrefix        = "fitness:rate_limit"
	defaultEventsExchange         = "fitness.events"
	defaultIntaSendBaseURL        = "https://payment.intasend.com"
	defaultPaymentCurrency        = "KES"
	defaultPaymentTimeoutSeconds  = 15
	defaultCheckoutRatePerMinute  = 10
	defaultBookingRatePerMinute   = 30
	defaultOutboxPollIntervalMs   = 1200
	defaultSlotCompletionSchedule = "*/5 * * * *"
	defaultSubscriptionSchedule   = "5 0 * * *"
)

// Config holds every setting the API and scheduler binaries read.
type Config struct {
	ServerPort                    string `mapstructure:"SERVER_PORT"`
	DatabaseURL                   string `mapstructure:"DATABASE_URL"`
	RedisURL                      string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix          string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                   string `mapstructure:"RABBITMQ_URL"`
	EventsExchange                string `mapstructure:"EVENTS_EXCHANGE"`
	JWTSecret                     string `mapstructure:"JWT_SECRET"`
	InternalAPIKey                string `mapstructure:"INTERNAL_API_KEY"`
	IntaSendBaseURL               string `mapstructure:"INTASEND_BASE_URL"`
	IntaSendPublicKey             string `mapstructure:"INTASEND_PUBLIC_KEY"`
	IntaSendWebhookChallenge      string `mapstructure:"INTASEND_WEBHOOK_CHALLENGE"`
	PaymentCurrency               string `mapstructure:"PAYMENT_CURRENCY"`
	PaymentTimeoutSeconds         int    `mapstructure:"PAYMENT_TIMEOUT_SECONDS"`
	AppBaseURL                    string `mapstructure:"APP_BASE_URL"`
	PublicAPIBaseURL              string `mapstructure:"PUBLIC_API_BASE_URL"`
	CheckoutRateLimitPerMinute    int    `mapstructure:"CHECKOUT_RATE_LIMIT_PER_MINUTE"`
	BookingRateLimitPerMinute     int    `mapstructure:"BOOKING_RATE_LIMIT_PER_MINUTE"`
	RequireSubscriptionForBooking bool   `mapstructure:"REQUIRE_SUBSCRIPTION_FOR_BOOKING"`
	CORSAllowedOrigins            string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	SlotCompletionSchedule        string `mapstructure:"SLOT_COMPLETION_SCHEDULE"`
	SubscriptionExpirySchedule    string `mapstructure:"SUBSCRIPTION_EXPIRY_SCHEDULE"`
	OutboxPollIntervalMs          int    `mapstructure:"OUTBOX_POLL_INTERVAL_MS"`
	RunMigrations                 bool   `mapstructure:"RUN_MIGRATIONS"`
	LogLevel                      string `mapstructure:"LOG_LEVEL"`
}

// LoadConfig reads configuration from the environment, falling back to a
// .env file in path when present.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("INTASEND_BASE_URL", defaultIntaSendBaseURL)
	viper.SetDefault("PAYMENT_CURRENCY", defaultPaymentCurrency)
	viper.SetDefault("PAYMENT_TIMEOUT_SECONDS", defaultPaymentTimeoutSeconds)
	viper.SetDefault("CHECKOUT_RATE_LIMIT_PER_MINUTE", defaultCheckoutRatePerMinute)
	viper.SetDefault("BOOKING_RATE_LIMIT_PER_MINUTE", defaultBookingRatePerMinute)
	viper.SetDefault("REQUIRE_SUBSCRIPTION_FOR_BOOKING", false)
	viper.SetDefault("SLOT_COMPLETION_SCHEDULE", defaultSlotCompletionSchedule)
	viper.SetDefault("SUBSCRIPTION_EXPIRY_SCHEDULE", defaultSubscriptionSchedule)
	viper.SetDefault("OUTBOX_POLL_INTERVAL_MS", defaultOutboxPollIntervalMs)
	viper.SetDefault("RUN_MIGRATIONS", false)
	viper.SetDefault("LOG_LEVEL", "info")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "SUPABASE_JWT_SECRET")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("INTASEND_BASE_URL")
	_ = viper.BindEnv("INTASEND_PUBLIC_KEY", "INTASEND_PUBLIC_KEY", "INTASEND_PUBLISHABLE_KEY")
	_ = viper.BindEnv("INTASEND_WEBHOOK_CHALLENGE")
	_ = viper.BindEnv("PAYMENT_CURRENCY")
	_ = viper.BindEnv("PAYMENT_TIMEOUT_SECONDS")
	_ = viper.BindEnv("APP_BASE_URL")
	_ = viper.BindEnv("PUBLIC_API_BASE_URL")
	_ = viper.BindEnv("CHECKOUT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("BOOKING_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("REQUIRE_SUBSCRIPTION_FOR_BOOKING")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("SLOT_COMPLETION_SCHEDULE")
	_ = viper.BindEnv("SUBSCRIPTION_EXPIRY_SCHEDULE")
	_ = viper.BindEnv("OUTBOX_POLL_INTERVAL_MS")
	_ = viper.BindEnv("RUN_MIGRATIONS")
	_ = viper.BindEnv("LOG_LEVEL")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.IntaSendPublicKey = strings.TrimSpace(config.IntaSendPublicKey)
	config.IntaSendWebhookChallenge = strings.TrimSpace(config.IntaSendWebhookChallenge)
	config.AppBaseURL = strings.TrimRight(strings.TrimSpace(config.AppBaseURL), "/")
	config.PublicAPIBaseURL = strings.TrimRight(strings.TrimSpace(config.PublicAPIBaseURL), "/")
	config.IntaSendBaseURL = strings.TrimRight(strings.TrimSpace(config.IntaSendBaseURL), "/")
	config.LogLevel = strings.ToLower(strings.TrimSpace(config.LogLevel))

	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	config.EventsExchange = strings.TrimSpace(config.EventsExchange)
	if config.EventsExchange == "" {
		config.EventsExchange = defaultEventsExchange
	}
	config.PaymentCurrency = strings.ToUpper(strings.TrimSpace(config.PaymentCurrency))
	if config.PaymentCurrency == "" {
		config.PaymentCurrency = defaultPaymentCurrency
	}

	if config.PaymentTimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"invalid PAYMENT_TIMEOUT_SECONDS; using default\" value=%d default=%d", config.PaymentTimeoutSeconds, defaultPaymentTimeoutSeconds)
		config.PaymentTimeoutSeconds = defaultPaymentTimeoutSeconds
	}
	if config.CheckoutRateLimitPerMinute < 0 {
		config.CheckoutRateLimitPerMinute = defaultCheckoutRatePerMinute
	}
	if config.BookingRateLimitPerMinute < 0 {
		config.BookingRateLimitPerMinute = defaultBookingRatePerMinute
	}
	if config.OutboxPollIntervalMs <= 0 {
		log.Printf("level=warn component=config msg=\"invalid OUTBOX_POLL_INTERVAL_MS; using default\" value=%d default=%d", config.OutboxPollIntervalMs, defaultOutboxPollIntervalMs)
		config.OutboxPollIntervalMs = defaultOutboxPollIntervalMs
	}
	config.SlotCompletionSchedule = strings.TrimSpace(config.SlotCompletionSchedule)
	config.SubscriptionExpirySchedule = strings.TrimSpace(config.SubscriptionExpirySchedule)

	return
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
