package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	// AppURL is the public base URL of the site the checkout flow
	// redirects back to (pricing page, settings pages).
	AppURL        string
	DefaultLocale string

	AuthJWTSecret    string
	AuthCookieSecure bool

	// PricingPath is an extra directory searched for the pricing.yml
	// catalog, ahead of the working directory.
	PricingPath string

	// DefaultPaymentProvider is used when a checkout request does not
	// name a provider explicitly. Validated against the adapter registry
	// at startup.
	DefaultPaymentProvider string

	Stripe StripeConfig
	PayPal PayPalConfig
	Creem  CreemConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	Environment  string
}

type CreemConfig struct {
	APIKey        string
	WebhookSecret string
	Environment   string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:     getenv("APP_SERVICE", "payflow"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		AppURL:        strings.TrimRight(getenv("APP_URL", "http://localhost:8080"), "/"),
		DefaultLocale: getenv("DEFAULT_LOCALE", "en"),

		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthCookieSecure: authCookieSecure,

		PricingPath: getenv("PRICING_PATH", ""),

		DefaultPaymentProvider: strings.ToLower(strings.TrimSpace(getenv("DEFAULT_PAYMENT_PROVIDER", ""))),

		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		},
		PayPal: PayPalConfig{
			ClientID:     strings.TrimSpace(getenv("PAYPAL_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("PAYPAL_CLIENT_SECRET", "")),
			WebhookID:    strings.TrimSpace(getenv("PAYPAL_WEBHOOK_ID", "")),
			Environment:  getenv("PAYPAL_ENVIRONMENT", "sandbox"),
		},
		Creem: CreemConfig{
			APIKey:        strings.TrimSpace(getenv("CREEM_API_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("CREEM_WEBHOOK_SECRET", "")),
			Environment:   getenv("CREEM_ENVIRONMENT", "sandbox"),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),
	}
}

// PricingURL returns the pricing page users land on after a failed or
// abandoned checkout.
func (c Config) PricingURL() string {
	return c.AppURL + "/pricing"
}

// BillingSettingsURL returns the billing settings page used while a
// payment is still settling.
func (c Config) BillingSettingsURL() string {
	return c.AppURL + "/settings/billing"
}

// PaymentsSettingsURL returns the payment history page one-time purchases
// land on after success.
func (c Config) PaymentsSettingsURL() string {
	return c.AppURL + "/settings/payments"
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
