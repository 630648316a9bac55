package workspacefinder

import (
	"os"
	"path/filepath"

	"github.com/gauntletci/gauntlet/internal/domain"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads gauntlet.yaml from the workspace root and applies defaults.
func LoadConfig(root string) (domain.Config, error) {
	cfg := domain.DefaultConfig()

	path := filepath.Join(root, "gauntlet.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	var y yamlConfig
	if err := yaml.Unmarshal(b, &y); err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}

	// Apply parsed values on top of defaults.
	if y.Gauntlet.Masking.Enabled != nil {
		cfg.Masking.Enabled = *y.Gauntlet.Masking.Enabled
	}
	if y.Gauntlet.Defaults.Env != "" {
		cfg.Defaults.Environment = y.Gauntlet.Defaults.Env
	}
	if y.Gauntlet.Defaults.MaxParallel > 0 {
		cfg.Defaults.MaxParallel = y.Gauntlet.Defaults.MaxParallel
	}
	if y.Gauntlet.Paths.PipelinesDir != "" {
		cfg.Paths.PipelinesDir = y.Gauntlet.Paths.PipelinesDir
	}
	if y.Gauntlet.Paths.EnvironmentsDir != "" {
		cfg.Paths.EnvironmentsDir = y.Gauntlet.Paths.EnvironmentsDir
	}
	if y.Gauntlet.Paths.RunsDir != "" {
		cfg.Paths.RunsDir = y.Gauntlet.Paths.RunsDir
	}

	return cfg, nil
}

type yamlConfig struct {
	Gauntlet struct {
		Masking struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"masking"`

		Defaults struct {
			Env         string `yaml:"env"`
			MaxParallel int    `yaml:"max_parallel"`
		} `yaml:"defaults"`

		Paths struct {
			PipelinesDir    string `yaml:"pipelines_dir"`
			EnvironmentsDir string `yaml:"environments_dir"`
			RunsDir         string `yaml:"runs_dir"`
		} `yaml:"paths"`
	} `yaml:"gauntlet"`
}
