package app

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerURL string `yaml:"server_url"`
	UserID    string `yaml:"user_id"`
	Username  string `yaml:"username"`
	Theme     string `yaml:"theme"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
	// ConsumeReplies switches transcript grouping to exactly-once reply
	// pairing instead of the historical first-later-reply policy.
	ConsumeReplies bool `yaml:"consume_replies"`
}

func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:5000",
		Theme:     "dark",
		LogLevel:  "info",
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:5000"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		return errors.New("no path provided for config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "imgchat", "config.yml")
}

// DefaultLogPath is where the debug log lands when the config names none.
// The TUI owns the terminal, so logs never go to stdout.
func DefaultLogPath() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "imgchat.log")
	}
	return filepath.Join(base, "imgchat", "imgchat.log")
}
