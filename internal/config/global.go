package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfig holds user-wide pabot defaults from ~/.pabot/config.yaml.
// The run command does not load this file; its settings come from
// .pabotrc.yaml and CLI flags only.
type GlobalConfig struct {
	PabotLibHost string `yaml:"pabotlib_host"`
	PabotLibPort int    `yaml:"pabotlib_port"`
	Processes    int    `yaml:"processes"`
}

// DefaultGlobalConfig returns a GlobalConfig with default values.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		PabotLibHost: DefaultPabotLibHost,
		PabotLibPort: DefaultPabotLibPort,
		Processes:    DefaultProcesses,
	}
}

// LoadGlobalConfig loads global configuration from ~/.pabot/config.yaml.
// If the file doesn't exist, returns default configuration.
func LoadGlobalConfig() (*GlobalConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultGlobalConfig(), nil
	}

	configPath := filepath.Join(homeDir, ".pabot", "config.yaml")
	return LoadGlobalConfigFromPath(configPath)
}

// LoadGlobalConfigFromPath loads global configuration from a specific path.
func LoadGlobalConfigFromPath(path string) (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnsureGlobalConfigDir creates the ~/.pabot directory if it doesn't exist.
func EnsureGlobalConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	pabotDir := filepath.Join(homeDir, ".pabot")
	if err := os.MkdirAll(pabotDir, 0755); err != nil {
		return "", err
	}

	return pabotDir, nil
}
