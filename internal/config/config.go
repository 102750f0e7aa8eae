// Package config loads service configuration from an optional YAML file,
// with environment variables taking precedence so container deployments
// can override everything without a file.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port         string   `yaml:"port"`
	PostgresURL  string   `yaml:"postgres_url"`
	KafkaBrokers []string `yaml:"kafka_brokers"`

	Gateway struct {
		SettlementURL string `yaml:"settlement_url"`
		CatalogURL    string `yaml:"catalog_url"`
	} `yaml:"gateway"`

	Payment struct {
		ProcessorURL   string `yaml:"processor_url"`
		APIKey         string `yaml:"api_key"`
		WebhookSecret  string `yaml:"webhook_secret"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"payment"`

	Worker struct {
		NotifyURL     string `yaml:"notify_url"`
		SettlementURL string `yaml:"settlement_url"`
	} `yaml:"worker"`

	Paymentsim struct {
		DataPath   string `yaml:"data_path"`
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"paymentsim"`
}

// Load reads path when it exists and then applies env overrides. A missing
// file is not an error; env-only configuration is the common case.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Payment.TimeoutSeconds = 10

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.PostgresURL, "POSTGRES_URL")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	setString(&cfg.Gateway.SettlementURL, "SETTLEMENT_SERVICE_URL")
	setString(&cfg.Gateway.CatalogURL, "CATALOG_SERVICE_URL")
	setString(&cfg.Payment.ProcessorURL, "PAYMENT_PROCESSOR_URL")
	setString(&cfg.Payment.APIKey, "PAYMENT_API_KEY")
	setString(&cfg.Payment.WebhookSecret, "PAYMENT_WEBHOOK_SECRET")
	setString(&cfg.Worker.NotifyURL, "NOTIFY_SERVICE_URL")
	setString(&cfg.Worker.SettlementURL, "SETTLEMENT_SERVICE_URL")
	setString(&cfg.Paymentsim.DataPath, "PAYMENTSIM_DATA_PATH")
	setString(&cfg.Paymentsim.WebhookURL, "PAYMENTSIM_WEBHOOK_URL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Require returns an error naming every missing field so mains can fail
// fast with one message.
func Require(pairs map[string]string) error {
	var missing []string
	for name, value := range pairs {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
