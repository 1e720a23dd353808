package config

const (
	DefaultProcesses      = 4
	DefaultPabotLib       = true
	DefaultPabotLibHost   = "127.0.0.1"
	DefaultPabotLibPort   = 8270
	DefaultProcessTimeout = "" // "" = no timeout
	DefaultOrdering       = ""
	DefaultLogLevel       = "info"
	DefaultOutputDir      = "pabot_results"
)

// DefaultArtifactExtensions matches worker.DefaultArtifactExtensions.
var DefaultArtifactExtensions = []string{"png"}

// DefaultConfig returns a Config with every field set to its documented
// default, the starting point Load seeds before applying .pabotrc.yaml.
func DefaultConfig() *Config {
	return &Config{
		Processes:             DefaultProcesses,
		PabotLib:              DefaultPabotLib,
		PabotLibHost:          DefaultPabotLibHost,
		PabotLibPort:          DefaultPabotLibPort,
		ProcessTimeout:        DefaultProcessTimeout,
		ArtifactExtensions:    append([]string{}, DefaultArtifactExtensions...),
		ArtifactsInSubfolders: false,
		TestLevelSplit:        false,
		Ordering:              DefaultOrdering,
		OutputDir:             DefaultOutputDir,
		LogLevel:              DefaultLogLevel,
	}
}
