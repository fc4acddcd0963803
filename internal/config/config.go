package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the application configuration, populated from the config file,
// BOLETA_* environment variables, and bound flags.
type Config struct {
	User     UserConfig
	Gemini   GeminiConfig
	Database DatabaseConfig
	Scan     ScanConfig
	Credits  CreditsConfig
	Plaid    PlaidConfig
}

// UserConfig identifies the ledger owner. Single-user installs can leave
// the defaults alone.
type UserConfig struct {
	ID       string
	Currency string
}

// GeminiConfig configures the vision analyzer.
type GeminiConfig struct {
	APIKey            string
	Model             string
	RequestsPerMinute int
	MaxRetries        int
}

// DatabaseConfig locates the expense database and the scan snapshot store.
type DatabaseConfig struct {
	Path         string
	SnapshotPath string
}

// ScanConfig tunes the scan pipeline.
type ScanConfig struct {
	Workers             int
	ItemTimeout         time.Duration
	QuickSaveConfidence float64
	TotalTolerance      float64
}

// CreditsConfig controls the credit policy.
type CreditsConfig struct {
	AllowOverdraft bool
}

// PlaidConfig holds the Plaid API credentials for statement fetches.
type PlaidConfig struct {
	ClientID    string
	Secret      string
	Environment string
	AccessToken string
}

// Load reads the configuration out of viper. Viper must already be
// initialized (config file read, env bound); Load only applies typing,
// defaults, and path expansion.
func Load() (*Config, error) {
	cfg := &Config{
		User: UserConfig{
			ID:       viper.GetString("user.id"),
			Currency: viper.GetString("user.currency"),
		},
		Gemini: GeminiConfig{
			APIKey:            viper.GetString("gemini.api_key"),
			Model:             viper.GetString("gemini.model"),
			RequestsPerMinute: viper.GetInt("gemini.requests_per_minute"),
			MaxRetries:        viper.GetInt("gemini.max_retries"),
		},
		Database: DatabaseConfig{
			Path:         ExpandPath(viper.GetString("database.path")),
			SnapshotPath: ExpandPath(viper.GetString("database.snapshot_path")),
		},
		Scan: ScanConfig{
			Workers:             viper.GetInt("scan.workers"),
			ItemTimeout:         viper.GetDuration("scan.item_timeout"),
			QuickSaveConfidence: viper.GetFloat64("scan.quick_save_confidence"),
			TotalTolerance:      viper.GetFloat64("scan.total_tolerance"),
		},
		Credits: CreditsConfig{
			AllowOverdraft: viper.GetBool("credits.allow_overdraft"),
		},
		Plaid: PlaidConfig{
			ClientID:    viper.GetString("plaid.client_id"),
			Secret:      viper.GetString("plaid.secret"),
			Environment: viper.GetString("plaid.environment"),
			AccessToken: viper.GetString("plaid.access_token"),
		},
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.User.ID == "" {
		c.User.ID = "local"
	}
	if c.User.Currency == "" {
		c.User.Currency = "CLP"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-pro"
	}
	if c.Gemini.RequestsPerMinute <= 0 {
		c.Gemini.RequestsPerMinute = 60
	}
	if c.Gemini.MaxRetries <= 0 {
		c.Gemini.MaxRetries = 3
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(DataDir(), "boleta.db")
	}
	if c.Database.SnapshotPath == "" {
		c.Database.SnapshotPath = filepath.Join(DataDir(), "snapshots.db")
	}
	if c.Scan.Workers <= 0 {
		c.Scan.Workers = 3
	}
	if c.Scan.ItemTimeout <= 0 {
		c.Scan.ItemTimeout = 60 * time.Second
	}
	if c.Scan.QuickSaveConfidence <= 0 {
		c.Scan.QuickSaveConfidence = 0.9
	}
	if c.Scan.TotalTolerance <= 0 {
		c.Scan.TotalTolerance = 0.01
	}
	if c.Plaid.Environment == "" {
		c.Plaid.Environment = "sandbox"
	}
}
