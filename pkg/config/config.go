// Package config provides configuration management for the importer.
// Environment settings come from variables and .env files; the source
// definitions come from a YAML accounts file.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	// JournalPath is the ledger file reconciled against.
	JournalPath string
	// AccountsPath is the YAML file defining the import sources.
	AccountsPath string
	// DataDir is the root under which source data files live.
	DataDir string
	Debug   bool
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	config := &Config{
		JournalPath:  os.Getenv("LEDGER_JOURNAL"),
		AccountsPath: getEnvOrDefault("LEDGER_ACCOUNTS", "accounts.yaml"),
		DataDir:      getEnvOrDefault("LEDGER_DATA_DIR", "."),
		Debug:        os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	var missing []string
	if c.JournalPath == "" {
		missing = append(missing, "LEDGER_JOURNAL")
	}
	if c.AccountsPath == "" {
		missing = append(missing, "LEDGER_ACCOUNTS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}
	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
