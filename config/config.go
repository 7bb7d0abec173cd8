package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Payment  PaymentConfig  `yaml:"payment"`
	Stripe   StripeConfig   `yaml:"stripe"`
	PayPal   PayPalConfig   `yaml:"paypal"`
	Amadeus  AmadeusConfig  `yaml:"amadeus"`
	SendGrid SendGridConfig `yaml:"sendgrid"`
	Log      LogConfig      `yaml:"log"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig selects the booking store backend: "memory" or "postgres".
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type BookingConfig struct {
	// PendingTTLMinutes enables the expiry sweep when positive.
	PendingTTLMinutes int     `yaml:"pending_ttl_minutes"`
	FlightsCacheTTL   int     `yaml:"flights_cache_ttl_seconds"`
	FallbackUnitPrice float64 `yaml:"fallback_unit_price"`
	DefaultCurrency   string  `yaml:"default_currency"`
	TicketBaseURL     string  `yaml:"ticket_base_url"`
	MaxPassengers     int     `yaml:"max_passengers"`
}

type PaymentConfig struct {
	ProviderTimeoutSeconds int `yaml:"provider_timeout_seconds"`
	LockTTLSeconds         int `yaml:"lock_ttl_seconds"`
}

func (p PaymentConfig) ProviderTimeout() time.Duration {
	return time.Duration(p.ProviderTimeoutSeconds) * time.Second
}

func (p PaymentConfig) LockTTL() time.Duration {
	return time.Duration(p.LockTTLSeconds) * time.Second
}

type StripeConfig struct {
	SecretKey      string `yaml:"secret_key"`
	PublishableKey string `yaml:"publishable_key"`
	WebhookSecret  string `yaml:"webhook_secret"`
}

type PayPalConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type AmadeusConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
}

func (w WorkerConfig) ExpirationSweep() time.Duration {
	return time.Duration(w.ExpirationSweepMinutes) * time.Minute
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and fills defaults. Environment overrides are not applied.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Booking.FlightsCacheTTL == 0 {
		c.Booking.FlightsCacheTTL = 300
	}
	if c.Booking.FallbackUnitPrice == 0 {
		c.Booking.FallbackUnitPrice = 15
	}
	if c.Booking.DefaultCurrency == "" {
		c.Booking.DefaultCurrency = "USD"
	}
	if c.Booking.TicketBaseURL == "" {
		c.Booking.TicketBaseURL = "http://localhost:8080/tickets"
	}
	if c.Booking.MaxPassengers == 0 {
		c.Booking.MaxPassengers = 9
	}
	if c.Payment.ProviderTimeoutSeconds == 0 {
		c.Payment.ProviderTimeoutSeconds = 10
	}
	if c.Payment.LockTTLSeconds == 0 {
		c.Payment.LockTTLSeconds = 30
	}
	if c.PayPal.BaseURL == "" {
		c.PayPal.BaseURL = "https://api-m.sandbox.paypal.com"
	}
	if c.Amadeus.BaseURL == "" {
		c.Amadeus.BaseURL = "https://test.api.amadeus.com"
	}
	if c.Kafka.BookingEventsTopic == "" {
		c.Kafka.BookingEventsTopic = "booking-events"
	}
	if c.Kafka.NotificationsTopic == "" {
		c.Kafka.NotificationsTopic = "booking-notifications"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "skybooking-worker"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Worker.ExpirationSweepMinutes == 0 {
		c.Worker.ExpirationSweepMinutes = 5
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Booking.MaxPassengers < 1 {
		return fmt.Errorf("booking.max_passengers must be positive")
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe.webhook_secret is required when stripe.secret_key is set")
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	override := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	override(&c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	override(&c.PayPal.ClientSecret, "PAYPAL_CLIENT_SECRET")
	override(&c.Amadeus.ClientSecret, "AMADEUS_CLIENT_SECRET")
	override(&c.SendGrid.APIKey, "SENDGRID_API_KEY")
	override(&c.Database.Password, "DATABASE_PASSWORD")
}
