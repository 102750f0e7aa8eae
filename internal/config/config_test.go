package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("reads yaml file", func(t *testing.T) {
		path := writeConfig(t, `
port: "9090"
postgres_url: postgres://localhost/brewtab
kafka_brokers:
  - kafka-1:9092
  - kafka-2:9092
payment:
  processor_url: http://paymentsim:8085
  api_key: sk_test
  webhook_secret: whsec_test
  timeout_seconds: 5
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Port != "9090" {
			t.Errorf("expected port 9090, got %s", cfg.Port)
		}
		if cfg.PostgresURL != "postgres://localhost/brewtab" {
			t.Errorf("unexpected postgres url: %s", cfg.PostgresURL)
		}
		if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "kafka-1:9092" {
			t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
		}
		if cfg.Payment.TimeoutSeconds != 5 {
			t.Errorf("expected timeout 5, got %d", cfg.Payment.TimeoutSeconds)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := writeConfig(t, `
port: "9090"
postgres_url: postgres://localhost/fromfile
`)
		t.Setenv("POSTGRES_URL", "postgres://localhost/fromenv")
		t.Setenv("KAFKA_BROKERS", "kafka-3:9092,kafka-4:9092")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.PostgresURL != "postgres://localhost/fromenv" {
			t.Errorf("expected env to win, got %s", cfg.PostgresURL)
		}
		if cfg.Port != "9090" {
			t.Errorf("untouched file value must survive, got %s", cfg.Port)
		}
		if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-4:9092" {
			t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
		}
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Payment.TimeoutSeconds != 10 {
			t.Errorf("expected default timeout 10, got %d", cfg.Payment.TimeoutSeconds)
		}
	})

	t.Run("empty path is env only", func(t *testing.T) {
		t.Setenv("PAYMENT_API_KEY", "sk_env")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Payment.APIKey != "sk_env" {
			t.Errorf("expected sk_env, got %s", cfg.Payment.APIKey)
		}
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := writeConfig(t, "port: [not: valid")
		if _, err := Load(path); err == nil {
			t.Fatal("expected parse error")
		}
	})
}

func TestRequire(t *testing.T) {
	t.Run("all present", func(t *testing.T) {
		err := Require(map[string]string{"A": "1", "B": "2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing values named in sorted order", func(t *testing.T) {
		err := Require(map[string]string{
			"POSTGRES_URL":    "",
			"PAYMENT_API_KEY": "",
			"PORT":            "8080",
		})
		if err == nil {
			t.Fatal("expected error")
		}
		want := "missing required configuration: PAYMENT_API_KEY, POSTGRES_URL"
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q, got %q", want, err.Error())
		}
	})
}
