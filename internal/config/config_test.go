package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesTemplates(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	if err == nil {
		t.Fatal("Expected template-created error on first load")
	}

	if _, statErr := os.Stat(filepath.Join(dir, "config.toml")); statErr != nil {
		t.Errorf("config.toml template not created: %v", statErr)
	}

	// Second load picks up the template config and fills in the missing
	// credentials template.
	if _, err := Load(dir); err != nil {
		t.Fatalf("Load after template creation failed: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "credentials.toml")); statErr != nil {
		t.Errorf("credentials.toml template not created: %v", statErr)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	configContent := `
[database]
path = "/tmp/custom.db"

[prices]
delay_millis = 250
lookback_days = 90

[engine]
workers = 8
deferred_policy = "pay_at_ko"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte("[openai]\napi_key = \"sk-test\"\n"), 0600); err != nil {
		t.Fatalf("Failed to write credentials: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "/tmp/custom.db" {
		t.Errorf("Database path = %s", cfg.Database.Path)
	}
	if cfg.Prices.DelayMillis != 250 || cfg.Prices.LookbackDays != 90 {
		t.Errorf("Prices config mismatch: %+v", cfg.Prices)
	}
	if cfg.Engine.Workers != 8 || cfg.Engine.DeferredPolicy != "pay_at_ko" {
		t.Errorf("Engine config mismatch: %+v", cfg.Engine)
	}
	if cfg.Credentials.OpenAI.APIKey != "sk-test" {
		t.Errorf("Credentials not loaded: %+v", cfg.Credentials.OpenAI)
	}
	if cfg.Credentials.OpenAI.Model != "gpt-4o" {
		t.Errorf("Model default not applied: %s", cfg.Credentials.OpenAI.Model)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(""), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("NOTES_DB_PATH", "/tmp/env.db")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Credentials.OpenAI.APIKey != "sk-env" {
		t.Errorf("OPENAI_API_KEY override not applied: %s", cfg.Credentials.OpenAI.APIKey)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("NOTES_DB_PATH override not applied: %s", cfg.Database.Path)
	}
}

func TestValidate(t *testing.T) {
	valid := &Config{
		Prices: PricesConfig{DelayMillis: 1000, LookbackDays: 370},
		Engine: EngineConfig{Workers: 4, DeferredPolicy: "forfeit"},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Valid config rejected: %v", err)
	}

	bad := &Config{
		Prices: PricesConfig{DelayMillis: 1000, LookbackDays: 370},
		Engine: EngineConfig{Workers: 4, DeferredPolicy: "carry"},
	}
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for unknown deferred policy")
	}

	negative := &Config{
		Prices: PricesConfig{DelayMillis: -1, LookbackDays: 370},
		Engine: EngineConfig{Workers: 4, DeferredPolicy: "forfeit"},
	}
	if err := negative.Validate(); err == nil {
		t.Error("Expected error for negative delay")
	}
}
