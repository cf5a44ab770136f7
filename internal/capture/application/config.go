package application

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines capture engine configuration.
type Config struct {
	BatchSize      int    `yaml:"batch_size"`
	ChartsPerMeter int    `yaml:"charts_per_meter"`
	PausePollMs    int    `yaml:"pause_poll_ms"`
	ItemTimeoutMs  int    `yaml:"item_timeout_ms"`
	StorageRoot    string `yaml:"storage_root"`
	WebhookURL     string `yaml:"webhook_url"`
}

// LoadConfig loads capture config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		BatchSize:      getenvIntDefault("CAPTURE_BATCH_SIZE", 3),
		ChartsPerMeter: getenvIntDefault("CAPTURE_CHARTS_PER_METER", 6),
		PausePollMs:    getenvIntDefault("CAPTURE_PAUSE_POLL_MS", 100),
		ItemTimeoutMs:  getenvIntDefault("CAPTURE_ITEM_TIMEOUT_MS", 0),
		StorageRoot:    getenvDefault("CAPTURE_STORAGE_ROOT", filepath.FromSlash("var/charts")),
		WebhookURL:     os.Getenv("CAPTURE_WEBHOOK_URL"),
	}

	if path := os.Getenv("CAPTURE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks config invariants.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return errors.New("capture config: batch size must be positive")
	}
	if c.ChartsPerMeter <= 0 {
		return errors.New("capture config: charts per meter must be positive")
	}
	if c.PausePollMs <= 0 {
		return errors.New("capture config: pause poll interval must be positive")
	}
	if c.ItemTimeoutMs < 0 {
		return errors.New("capture config: negative item timeout")
	}
	if c.StorageRoot == "" {
		return errors.New("capture config: storage root required")
	}
	return nil
}

// PausePoll returns the pause polling interval.
func (c Config) PausePoll() time.Duration {
	return time.Duration(c.PausePollMs) * time.Millisecond
}

// ItemTimeout returns the per-step timeout; zero disables it.
func (c Config) ItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeoutMs) * time.Millisecond
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
