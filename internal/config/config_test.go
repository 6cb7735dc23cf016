package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiration)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshExpiration)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30, cfg.Redis.PoolSize)
	assert.Equal(t, 30, cfg.Database.MaxConns)
	assert.Equal(t, 1024, cfg.Audit.QueueSize)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
redis:
  addr: redis.internal:6379
  pool_size: 10
database:
  max_conns: 5
accounts:
  service_url: http://accounts:8081
audit:
  queue_size: 64
`), 0o600))

	t.Setenv("PORT", "7070")
	t.Setenv("JWT_ACCESS_EXPIRATION", "60000")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port, "environment beats the file")
	assert.Equal(t, time.Minute, cfg.JWT.AccessExpiration, "expirations are configured in milliseconds")
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, 5, cfg.Database.MaxConns)
	assert.Equal(t, "http://accounts:8081", cfg.Accounts.ServiceURL)
	assert.Equal(t, 64, cfg.Audit.QueueSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidateGateway(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
		cfg.Database.DSN = "postgres://localhost/finlab"
		cfg.Accounts.ServiceURL = "http://accounts:8081"
		cfg.Security.APIKey = "internal-service-key"
		return cfg
	}

	assert.NoError(t, base().ValidateGateway())

	cfg := base()
	cfg.JWT.Secret = "short"
	assert.ErrorContains(t, cfg.ValidateGateway(), "JWT_SECRET")

	cfg = base()
	cfg.Database.DSN = ""
	assert.ErrorContains(t, cfg.ValidateGateway(), "DATABASE_URL")

	cfg = base()
	cfg.Accounts.ServiceURL = ""
	assert.ErrorContains(t, cfg.ValidateGateway(), "ACCOUNTS_SERVICE_URL")

	cfg = base()
	cfg.Security.APIKey = ""
	assert.ErrorContains(t, cfg.ValidateGateway(), "API_KEY")
}

func TestValidateAccounts(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Database.DSN = "postgres://localhost/finlab"
	cfg.Security.APIKey = "internal-service-key"
	assert.NoError(t, cfg.ValidateAccounts())

	cfg.Security.APIKey = ""
	assert.ErrorContains(t, cfg.ValidateAccounts(), "API_KEY")
}

func TestInvalidDurationEnvFallsBack(t *testing.T) {
	t.Setenv("JWT_ACCESS_EXPIRATION", "not-a-number")
	t.Setenv("JWT_REFRESH_EXPIRATION", "-5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiration)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshExpiration)
}
