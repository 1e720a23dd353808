package config

import (
	"os"
	"strconv"
)

// envOverrides maps environment variables to config field setters.
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{
		envVar: "PABOT_PROCESSES",
		apply: func(c *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				c.Processes = n
			}
		},
	},
	{
		envVar: "PABOT_LIBHOST",
		apply: func(c *Config, v string) {
			c.PabotLibHost = v
		},
	},
	{
		envVar: "PABOT_LIBPORT",
		apply: func(c *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				c.PabotLibPort = n
			}
		},
	},
	{
		envVar: "PABOT_LOG_LEVEL",
		apply: func(c *Config, v string) {
			c.LogLevel = v
		},
	},
}

// applyEnvOverrides modifies config in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}
