// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	WhatsApp struct {
		APIURL      string
		NumberID    string
		APIKey      string
		VerifyToken string
	}
	Astria struct {
		APIURL        string
		APIKey        string
		RetryAttempts int
		RetryDelay    time.Duration
	}
	Images struct {
		Threshold   int
		GuideURL    string
		ExamplesURL string
		StorageURL  string
	}
	Webhook struct {
		TuneCallbackURL string
	}
	Tiers struct {
		LitePrice     string
		StandardPrice string
		PremiumPrice  string
		LiteLink      string
		StandardLink  string
		PremiumLink   string
	}
	Stripe struct {
		SecretKey       string
		PublicKey       string
		WebhookKey      string
		LitePriceID     string
		StandardPriceID string
		PremiumPriceID  string
		SuccessURL      string
		CancelURL       string
	}
	DB struct {
		Host         string
		Port         string
		User         string
		Password     string
		DBName       string
		SSLMode      string
		MaxOpenConns int
		MaxIdleConns int
		ConnLifetime time.Duration
	}
	Server struct {
		Port string
	}
	ShutdownTimeout time.Duration
}

// Load loads the configuration
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Create a new viper instance
	v := viper.New()

	// Set the config name (without extension)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Add paths where to look for the config file
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.picme-bot")

	// Set default values
	v.SetDefault("ShutdownTimeout", 10*time.Second)
	v.SetDefault("Server.Port", "8080")
	v.SetDefault("WhatsApp.APIURL", "https://graph.facebook.com/v17.0")
	v.SetDefault("Astria.RetryAttempts", 3)
	v.SetDefault("Astria.RetryDelay", 2*time.Second)
	v.SetDefault("Images.Threshold", 8)
	v.SetDefault("DB.MaxOpenConns", 20)
	v.SetDefault("DB.MaxIdleConns", 10)
	v.SetDefault("DB.ConnLifetime", 5*time.Minute)

	// Enable environment variables to override config values
	v.AutomaticEnv()

	// Try to read config file
	err := v.ReadInConfig()

	// If can't find config file, build the config from environment variables
	if err != nil {
		fmt.Printf("Config file not found: %v\n", err)
		fmt.Println("Falling back to environment variables...")

		cfg := &Config{}

		cfg.WhatsApp.APIURL = getEnvOr("WHATSAPP_API_URL", "https://graph.facebook.com/v17.0")
		cfg.WhatsApp.NumberID = os.Getenv("WHATSAPP_NUMBER_ID")
		cfg.WhatsApp.APIKey = os.Getenv("WHATSAPP_API_KEY")
		cfg.WhatsApp.VerifyToken = os.Getenv("WHATSAPP_VERIFY_TOKEN")
		cfg.Astria.APIURL = os.Getenv("ASTRIA_API_URL")
		cfg.Astria.APIKey = os.Getenv("ASTRIA_API_KEY")
		cfg.Astria.RetryAttempts = getEnvIntOr("ASTRIA_RETRY_ATTEMPTS", 3)
		cfg.Astria.RetryDelay = time.Duration(getEnvIntOr("ASTRIA_RETRY_DELAY_SECONDS", 2)) * time.Second
		cfg.Images.Threshold = getEnvIntOr("MAX_IMAGES_THRESHOLD", 8)
		cfg.Images.GuideURL = os.Getenv("IMAGE_GUIDE_URL")
		cfg.Images.ExamplesURL = os.Getenv("RECOMMENDED_PHOTOS")
		cfg.Images.StorageURL = os.Getenv("STORAGE_BLOB_URL")
		cfg.Webhook.TuneCallbackURL = os.Getenv("WEBHOOK_URL")
		cfg.Tiers.LitePrice = os.Getenv("LITE_TIER_PRICE")
		cfg.Tiers.StandardPrice = os.Getenv("STANDARD_TIER_PRICE")
		cfg.Tiers.PremiumPrice = os.Getenv("PREMIUM_TIER_PRICE")
		cfg.Tiers.LiteLink = os.Getenv("LITE_TIER_PAYMENT_LINK")
		cfg.Tiers.StandardLink = os.Getenv("STANDARD_TIER_PAYMENT_LINK")
		cfg.Tiers.PremiumLink = os.Getenv("PREMIUM_TIER_PAYMENT_LINK")
		cfg.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
		cfg.Stripe.PublicKey = os.Getenv("STRIPE_PUBLIC_KEY")
		cfg.Stripe.WebhookKey = os.Getenv("STRIPE_WEBHOOK_KEY")
		cfg.Stripe.LitePriceID = os.Getenv("STRIPE_LITE_PRICE_ID")
		cfg.Stripe.StandardPriceID = os.Getenv("STRIPE_STANDARD_PRICE_ID")
		cfg.Stripe.PremiumPriceID = os.Getenv("STRIPE_PREMIUM_PRICE_ID")
		cfg.Stripe.SuccessURL = os.Getenv("STRIPE_SUCCESS_URL")
		cfg.Stripe.CancelURL = os.Getenv("STRIPE_CANCEL_URL")
		cfg.DB.Host = getEnvOr("DB_HOST", "localhost")
		cfg.DB.Port = getEnvOr("DB_PORT", "5432")
		cfg.DB.User = getEnvOr("DB_USER", "postgres")
		cfg.DB.Password = getEnvOr("DB_PASSWORD", "postgres")
		cfg.DB.DBName = getEnvOr("DB_NAME", "picme_bot")
		cfg.DB.SSLMode = getEnvOr("DB_SSL_MODE", "require")
		cfg.DB.MaxOpenConns = getEnvIntOr("DB_MAX_OPEN_CONNS", 20)
		cfg.DB.MaxIdleConns = getEnvIntOr("DB_MAX_IDLE_CONNS", 10)
		cfg.DB.ConnLifetime = 5 * time.Minute
		cfg.Server.Port = getEnvOr("SERVER_PORT", "8080")
		cfg.ShutdownTimeout = 10 * time.Second

		return cfg, nil
	}

	// Process any ${ENV_VAR} syntax in the config values
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
			envValue := os.Getenv(envVar)
			if envValue != "" {
				v.Set(key, envValue)
			}
		}
	}

	// Unmarshal config to struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Helper function to get environment variable with default value
func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOr(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
