package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	content := `
server:
  port: 9090
  host: "127.0.0.1"

database:
  host: "testdb"
  port: 5432
  user: "testuser"
  password: "testpass"
  dbname: "podbrief_test"

providers:
  transcriptionModel: "whisper-1"
  generationModel: "gpt-4o-mini"

billing:
  trialDays: 7
`

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", cfg.Server.Host)
	}

	if cfg.Database.DBName != "podbrief_test" {
		t.Errorf("Expected dbname podbrief_test, got %s", cfg.Database.DBName)
	}

	if cfg.Billing.TrialDays != 7 {
		t.Errorf("Expected 7 trial days, got %d", cfg.Billing.TrialDays)
	}

	// Defaults fill sections the file does not set.
	if cfg.Providers.TranscriptionURL == "" {
		t.Error("Expected default transcription URL")
	}

	if cfg.Metrics.Port != 9091 {
		t.Errorf("Expected default metrics port 9091, got %d", cfg.Metrics.Port)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent file")
	}
}
