package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultShippingFee = 30000
	defaultVATPercent  = 10
	defaultRedisChan   = "order_updates"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	SecretKey  string

	RedisAddr     string
	RedisPassword string
	RedisChannel  string

	ShippingFee      int64
	VATPercent       int64
	CODPaymentPolicy string

	BankCode             string
	BankAccountNo        string
	BankAccountName      string
	PaymentCallbackToken string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    os.Getenv("APP_PORT"),
		AppEnv:     os.Getenv("APP_ENV"),
		SecretKey:  os.Getenv("SECRET_KEY"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisChannel:  envOr("REDIS_CHANNEL", defaultRedisChan),

		ShippingFee:      envInt64("SHIPPING_FEE", defaultShippingFee),
		VATPercent:       envInt64("VAT_PERCENT", defaultVATPercent),
		CODPaymentPolicy: envOr("COD_PAYMENT_POLICY", "on_delivery"),

		BankCode:             os.Getenv("BANK_CODE"),
		BankAccountNo:        os.Getenv("BANK_ACCOUNT_NO"),
		BankAccountName:      os.Getenv("BANK_ACCOUNT_NAME"),
		PaymentCallbackToken: os.Getenv("PAYMENT_CALLBACK_TOKEN"),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	if cfg.AppPort == "" {
		cfg.AppPort = "8080"
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt64 falls back on missing or malformed values.
func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		log.Printf("invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
