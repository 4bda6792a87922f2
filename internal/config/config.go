package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	JWTSecret  string

	// InternalKey grants trusted services the internal rate-limit tier.
	InternalKey string
	// ReceiptSequencer selects ledger, counter or redis. Empty picks redis
	// when Redis is configured and ledger otherwise.
	ReceiptSequencer string

	Redis   RedisConfig
	Mpesa   MpesaConfig
	Waafi   WaafiConfig
	Amounts Amounts
	Sweep   SweepConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MpesaConfig holds the Daraja STK Push credentials.
type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
}

// WaafiConfig holds the WaafiPay EVC Plus credentials.
type WaafiConfig struct {
	Endpoint    string
	MerchantUID string
	APIUserID   string
	APIKey      string
}

// Amounts are the fixed listing charges per provider. Clients never supply them.
type Amounts struct {
	Mpesa   decimal.Decimal
	EvcPlus decimal.Decimal
}

// SweepConfig controls the stale PENDING sweeper. A zero Expiry disables it.
type SweepConfig struct {
	Expiry   time.Duration
	Interval time.Duration
}

const (
	defaultMpesaBaseURL  = "https://sandbox.safaricom.co.ke"
	defaultWaafiEndpoint = "https://api.waafipay.net/asm"
	defaultMpesaAmount   = "1"
	defaultEvcAmount     = "1"
	defaultSweepInterval = 5 * time.Minute
)

var ErrMissingDBHost = errors.New("environment variables not loaded properly")

// Load reads the environment (and .env when present) into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    getenvDefault("APP_PORT", "8080"),
		AppEnv:     os.Getenv("APP_ENV"),
		JWTSecret:  os.Getenv("JWT_SECRET"),

		InternalKey:      os.Getenv("INTERNAL_SECRET_KEY"),
		ReceiptSequencer: os.Getenv("RECEIPT_SEQUENCER"),
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Mpesa: MpesaConfig{
			BaseURL:        getenvDefault("MPESA_BASE_URL", defaultMpesaBaseURL),
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
			ShortCode:      os.Getenv("MPESA_BUSINESS_SHORT_CODE"),
			Passkey:        os.Getenv("MPESA_PASSKEY"),
			CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
		},
		Waafi: WaafiConfig{
			Endpoint:    getenvDefault("WAAFI_API_ENDPOINT", defaultWaafiEndpoint),
			MerchantUID: os.Getenv("WAAFI_MERCHANT_UID"),
			APIUserID:   os.Getenv("WAAFI_API_USER_ID"),
			APIKey:      os.Getenv("WAAFI_API_KEY"),
		},
	}

	if cfg.DBHost == "" {
		return nil, ErrMissingDBHost
	}

	var err error
	if v := os.Getenv("REDIS_DB"); v != "" {
		if cfg.Redis.DB, err = strconv.Atoi(v); err != nil {
			return nil, errors.New("REDIS_DB must be an integer")
		}
	}

	if cfg.Amounts.Mpesa, err = decimal.NewFromString(getenvDefault("MPESA_AMOUNT", defaultMpesaAmount)); err != nil {
		return nil, errors.New("MPESA_AMOUNT must be a decimal")
	}
	if cfg.Amounts.EvcPlus, err = decimal.NewFromString(getenvDefault("EVC_PLUS_AMOUNT", defaultEvcAmount)); err != nil {
		return nil, errors.New("EVC_PLUS_AMOUNT must be a decimal")
	}

	if cfg.Sweep.Expiry, err = parseDuration("PENDING_EXPIRY", 0); err != nil {
		return nil, err
	}
	if cfg.Sweep.Interval, err = parseDuration("SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfig is Load for entrypoints: it exits on error.
func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.New(key + " must be a duration (e.g. 30m)")
	}
	return d, nil
}
