package domain

// Config represents the minimal Gauntlet configuration loaded from gauntlet.yaml.
type Config struct {
	Masking  MaskingConfig
	Defaults DefaultsConfig
	Paths    PathsConfig
}

type MaskingConfig struct {
	Enabled bool
}

type DefaultsConfig struct {
	Environment string
	MaxParallel int
}

type PathsConfig struct {
	PipelinesDir    string
	EnvironmentsDir string
	RunsDir         string
}

// DefaultConfig provides sane defaults if gauntlet.yaml is partially missing.
func DefaultConfig() Config {
	return Config{
		Masking: MaskingConfig{Enabled: true},
		Defaults: DefaultsConfig{
			Environment: "local",
			MaxParallel: 4,
		},
		Paths: PathsConfig{
			PipelinesDir:    "pipelines",
			EnvironmentsDir: "env",
			RunsDir:         "runs",
		},
	}
}

// WorkspaceSpec describes where a workspace should be created.
type WorkspaceSpec struct {
	Root string
}
