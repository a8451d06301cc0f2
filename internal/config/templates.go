package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Notes Tracker Configuration

[database]
# SQLite database path (defaults next to this file)
path = ""

[prices]
# Minimum spacing between price API calls in milliseconds
delay_millis = 1000
# Default history window in days when syncing prices
lookback_days = 370

[engine]
# Parallel workers for batch evaluation
workers = 4
# What happens to deferred memory coupons when a note knocks out:
# "forfeit" or "pay_at_ko"
deferred_policy = "forfeit"

[ui]
# Enable colored output
color_enabled = true
# Date format
date_format = "2006-01-02"
`

const credentialsTemplate = `# Notes Tracker Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[openai]
api_key = ""
model = "gpt-4o"
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
