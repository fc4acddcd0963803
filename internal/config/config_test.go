package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.User.ID)
	assert.Equal(t, "CLP", cfg.User.Currency)
	assert.Equal(t, "gemini-2.5-pro", cfg.Gemini.Model)
	assert.Equal(t, 60, cfg.Gemini.RequestsPerMinute)
	assert.Equal(t, 3, cfg.Scan.Workers)
	assert.Equal(t, 60*time.Second, cfg.Scan.ItemTimeout)
	assert.InDelta(t, 0.9, cfg.Scan.QuickSaveConfidence, 0.0001)
	assert.InDelta(t, 0.01, cfg.Scan.TotalTolerance, 0.0001)
	assert.False(t, cfg.Credits.AllowOverdraft)
	assert.Equal(t, "sandbox", cfg.Plaid.Environment)
	assert.Contains(t, cfg.Database.Path, "boleta.db")
	assert.Contains(t, cfg.Database.SnapshotPath, "snapshots.db")
}

func TestLoadReadsViperValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("user.id", "gabriel")
	viper.Set("user.currency", "usd")
	viper.Set("gemini.api_key", "test-key")
	viper.Set("gemini.model", "gemini-2.0-flash")
	viper.Set("database.path", "/tmp/test.db")
	viper.Set("scan.workers", 5)
	viper.Set("scan.item_timeout", "30s")
	viper.Set("credits.allow_overdraft", true)
	viper.Set("plaid.environment", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gabriel", cfg.User.ID)
	assert.Equal(t, "usd", cfg.User.Currency)
	assert.Equal(t, "test-key", cfg.Gemini.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Scan.Workers)
	assert.Equal(t, 30*time.Second, cfg.Scan.ItemTimeout)
	assert.True(t, cfg.Credits.AllowOverdraft)
	assert.Equal(t, "production", cfg.Plaid.Environment)
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	t.Setenv("BOLETA_TEST_DIR", "/data")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain path", in: "/var/lib/boleta.db", want: "/var/lib/boleta.db"},
		{name: "tilde only", in: "~", want: "/home/test"},
		{name: "tilde prefix", in: "~/boleta/db.sqlite", want: "/home/test/boleta/db.sqlite"},
		{name: "env var", in: "$BOLETA_TEST_DIR/boleta.db", want: "/data/boleta.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
