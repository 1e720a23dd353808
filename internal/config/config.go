package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds project-level defaults read from .pabotrc.yaml, overridden
// by CLI flags wherever both are set (see cli/run.go's flag registration).
type Config struct {
	Processes             int      `yaml:"processes"`
	Command                []string `yaml:"command"`
	EndCommand             []string `yaml:"end_command"`
	ProcessTimeout         string   `yaml:"process_timeout"`
	PabotLib               bool     `yaml:"pabotlib"`
	PabotLibHost           string   `yaml:"pabotlib_host"`
	PabotLibPort           int      `yaml:"pabotlib_port"`
	ArtifactExtensions     []string `yaml:"artifacts"`
	ArtifactsInSubfolders  bool     `yaml:"artifacts_in_subfolders"`
	TestLevelSplit         bool     `yaml:"testlevelsplit"`
	Ordering               string   `yaml:"ordering"`
	ResourceFile           string   `yaml:"resourcefile"`
	NoRebot                bool     `yaml:"no_rebot"`
	OutputDir              string   `yaml:"output_dir"`
	LogLevel               string   `yaml:"log_level"`
}

// Load reads .pabotrc.yaml from dir, falling back to DefaultConfig when the
// file is absent. Mirrors LoadGlobalConfigFromPath's
// read-then-os.IsNotExist-falls-back-to-defaults shape.
func Load(dir string) (*Config, error) {
	return LoadFromPath(configPath(dir))
}

// LoadFromPath reads a .pabotrc.yaml from an explicit path.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, validateConfig(cfg)
}

func configPath(dir string) string {
	if dir == "" {
		dir = "."
	}
	return dir + "/.pabotrc.yaml"
}

// ProcessTimeoutDuration parses ProcessTimeout, returning 0 (no timeout) on
// an empty or invalid value.
func (c *Config) ProcessTimeoutDuration() time.Duration {
	if c.ProcessTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.ProcessTimeout)
	if err != nil {
		return 0
	}
	return d
}
