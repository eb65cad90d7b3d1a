package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("DB_USER", "testuser")
		t.Setenv("DB_PASSWORD", "testpass")
		t.Setenv("DB_NAME", "testdb")
		t.Setenv("DB_PORT", "5432")
		t.Setenv("APP_PORT", "9090")
		t.Setenv("APP_ENV", "test")
		t.Setenv("SHIPPING_FEE", "500000")
		t.Setenv("VAT_PERCENT", "8")
		t.Setenv("COD_PAYMENT_POLICY", "manual")
		t.Setenv("BANK_CODE", "MB")

		cfg := LoadConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "testuser", cfg.DBUser)
		assert.Equal(t, "testpass", cfg.DBPassword)
		assert.Equal(t, "testdb", cfg.DBName)
		assert.Equal(t, "5432", cfg.DBPort)
		assert.Equal(t, "9090", cfg.AppPort)
		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, int64(500000), cfg.ShippingFee)
		assert.Equal(t, int64(8), cfg.VATPercent)
		assert.Equal(t, "manual", cfg.CODPaymentPolicy)
		assert.Equal(t, "MB", cfg.BankCode)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("APP_PORT", "")
		t.Setenv("SHIPPING_FEE", "not-a-number")
		t.Setenv("VAT_PERCENT", "")
		t.Setenv("REDIS_CHANNEL", "")
		t.Setenv("COD_PAYMENT_POLICY", "")

		cfg := LoadConfig()

		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, int64(defaultShippingFee), cfg.ShippingFee)
		assert.Equal(t, int64(defaultVATPercent), cfg.VATPercent)
		assert.Equal(t, defaultRedisChan, cfg.RedisChannel)
		assert.Equal(t, "on_delivery", cfg.CODPaymentPolicy)
	})
}
