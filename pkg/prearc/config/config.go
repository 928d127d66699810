// Package config loads the importer's site configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vuiis/prearc/pkg/prearc/internalerr"
)

// Config is the site configuration for the gradual import path.
type Config struct {
	// PrearchivePath is the staging-area root. Project subfolders are
	// created beneath it.
	PrearchivePath string `yaml:"prearchive_path"`

	// DatabasePath locates the staging-session database.
	DatabasePath string `yaml:"database_path"`

	// SiteURL prefixes the external URLs handed back for staged objects.
	SiteURL string `yaml:"site_url"`

	// FilterPath is the series-import-filter directory (site.yaml,
	// projects/<id>.yaml). Empty means no filters.
	FilterPath string `yaml:"filter_path"`

	// DefaultSource tags sessions whose upload carries no source parameter.
	DefaultSource string `yaml:"default_source"`

	// ProjectsPath locates the YAML project table (IDs, aliases, archive
	// modes, members). Empty means every object lands unassigned.
	ProjectsPath string `yaml:"projects_path"`

	Anonymization Anonymization `yaml:"anonymization"`
}

// Anonymization configures the site-wide anonymization script.
type Anonymization struct {
	Enabled bool `yaml:"enabled"`

	// Command is the external anonymizer executable.
	Command    string `yaml:"command"`
	ScriptPath string `yaml:"script_path"`
	ConfigID   int64  `yaml:"config_id"`
}

// Load reads and validates a Config from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the import path cannot run without.
func (c *Config) Validate() error {
	if c.PrearchivePath == "" {
		return fmt.Errorf("%w: prearchive_path is required", internalerr.ErrInvalidConfig)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database_path is required", internalerr.ErrInvalidConfig)
	}
	return nil
}
