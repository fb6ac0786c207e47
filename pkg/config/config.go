// Package config loads and validates the ksiemgowy configuration: the
// YAML file describing watched accounts, report labels, category rules
// and correction overlays, plus secrets taken from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hakierspejs/ksiemgowy/pkg/report"
)

// Environment variable names for values that don't belong in the YAML
// file.
const (
	EnvAnonymizationKey = "KSIEMGOWY_ANONYMIZATION_KEY"
	EnvDatabasePath     = "KSIEMGOWY_DATABASE_PATH"
)

// Config is the full application configuration. It is validated once
// at load time and used as-is afterwards; nothing downstream
// re-validates it.
type Config struct {
	// DatabasePath locates the SQLite ledger. Overridable via
	// KSIEMGOWY_DATABASE_PATH.
	DatabasePath string `yaml:"database_path"`
	// AnonymizationKey is the cryptographic pepper used to digest
	// identifying fields. Normally supplied via the environment, not
	// the file.
	AnonymizationKey string `yaml:"anonymization_key"`
	// WatchedAccounts are the organization's raw account numbers as
	// they appear in notifications.
	WatchedAccounts []string `yaml:"watched_accounts"`
	// SpoolDir holds notification documents waiting to be processed;
	// the file name doubles as the notification identifier.
	SpoolDir string `yaml:"spool_dir"`
	// ReportPath is where the published report JSON lives.
	ReportPath string `yaml:"report_path"`
	// SendMail enables confirmation and reminder e-mails.
	SendMail bool `yaml:"send_mail"`
	// FromAddress is the bookkeeper address messages are sent from.
	FromAddress string `yaml:"from_address"`
	// OutboxDir is where prepared mail payloads are handed to the
	// delivery collaborator.
	OutboxDir string `yaml:"outbox_dir"`

	Report report.Config `yaml:"report"`
}

// Load reads the configuration file, applies .env and environment
// overrides and validates the result. The optional envPath names a
// specific .env file; by default the current directory's .env is used
// when present.
func Load(configPath string, envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if v := os.Getenv(EnvAnonymizationKey); v != "" {
		cfg.AnonymizationKey = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		cfg.DatabasePath = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that everything the processing passes need is present.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabasePath == "" {
		missing = append(missing, "database_path")
	}
	if c.AnonymizationKey == "" {
		missing = append(missing, "anonymization_key ("+EnvAnonymizationKey+")")
	}
	if len(c.WatchedAccounts) == 0 {
		missing = append(missing, "watched_accounts")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}

	if c.SendMail && c.FromAddress == "" {
		return fmt.Errorf("send_mail requires from_address")
	}
	for i, rule := range c.Report.CategoryRules {
		if rule.RecipientAccount == "" || rule.Label == "" {
			return fmt.Errorf("category rule %d needs both recipient_account and label", i)
		}
	}
	for _, due := range c.Report.RecurringDues {
		if due.AccountLabel == "" {
			return fmt.Errorf("recurring due needs an account_label")
		}
		if due.End.Before(due.Start) {
			return fmt.Errorf("recurring due for %q ends before it starts", due.AccountLabel)
		}
	}
	return nil
}

// Pepper returns the anonymization key as bytes.
func (c *Config) Pepper() []byte {
	return []byte(c.AnonymizationKey)
}
