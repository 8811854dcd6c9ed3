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
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "sqlite", cfg.Ledger.Backend)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, time.Minute, cfg.Bonus.ShortTTL)
	assert.Equal(t, "providers.yaml", cfg.Engine.ProvidersFile)
	assert.Equal(t, "provider.callbacks", cfg.Kafka.CallbackTopic)
	assert.Equal(t, time.Minute, cfg.Engine.StaleAfter)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/provider?sslmode=disable")
	t.Setenv("LEDGER_BACKEND", "formance")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("BONUS_CACHE_SHORT_TTL", "30s")
	t.Setenv("DEFAULT_MAX_PAYOUT", "2500.50")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ACTION_STALE_AFTER", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "formance", cfg.Ledger.Backend)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Second, cfg.Bonus.ShortTTL)
	assert.Equal(t, "2500.50", cfg.Engine.DefaultMaxPayout)
	assert.Equal(t, "k1:9092,k2:9092", cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.Engine.StaleAfter)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"DB_PING_TIMEOUT": "soon"}},
		{"bad stale cutoff", map[string]string{"ACTION_STALE_AFTER": "later"}},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"postgres without dsn", map[string]string{"DATABASE_DRIVER": "postgres"}},
		{"unknown ledger", map[string]string{"LEDGER_BACKEND": "paper"}},
		{"bad payout", map[string]string{"DEFAULT_MAX_PAYOUT": "lots"}},
		{"ttl order", map[string]string{"BONUS_CACHE_SHORT_TTL": "2h", "BONUS_CACHE_LONG_TTL": "1h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "many")
	assert.Equal(t, 3, getEnvInt("SOME_INT", 3))
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: acme\nlimit: 5\n"), 0o600))

	var out struct {
		Name  string `yaml:"name"`
		Limit int    `yaml:"limit"`
	}
	require.NoError(t, LoadYAML(path, &out))
	assert.Equal(t, "acme", out.Name)
	assert.Equal(t, 5, out.Limit)

	assert.Error(t, LoadYAML(filepath.Join(dir, "missing.yaml"), &out))
}
