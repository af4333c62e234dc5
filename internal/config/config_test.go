package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	path := writeFile(t, "minishop.yaml", `
service: shop-a
http_addr: ":9000"
shutdown_timeout: 3s
redis:
  addr: localhost:6379
seed:
  customers:
    - id: cust-1
      balance: "500.00"
  products:
    - id: prod-1
      merchant_id: merchant-1
      name: Lamp
      price: "100.00"
      stock: 10
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":9100")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "shop-a", cfg.Service)
	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "minishop:notifications", cfg.Redis.Channel)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Tracing.Enabled)
	require.Len(t, cfg.Seed.Products, 1)
	assert.Equal(t, 10, cfg.Seed.Products[0].Stock)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFileRejectsOtherExtensions(t *testing.T) {
	err := Default().LoadFile(writeFile(t, "minishop.json", "{}"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"postgres without url", func(c *Config) { c.Store.Driver = DriverPostgres }},
		{"empty addr", func(c *Config) { c.HTTPAddr = "" }},
		{"zero shutdown", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"kafka without topic", func(c *Config) { c.Kafka = KafkaConfig{Brokers: []string{"k:9092"}} }},
		{"negative balance", func(c *Config) {
			c.Seed.Customers = []SeedCustomer{{ID: "c", Balance: "-1"}}
		}},
		{"duplicate product", func(c *Config) {
			p := SeedProduct{ID: "p", MerchantID: "m", Price: "1"}
			c.Seed.Products = []SeedProduct{p, p}
		}},
		{"bad price", func(c *Config) {
			c.Seed.Products = []SeedProduct{{ID: "p", MerchantID: "m", Price: "ten"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
