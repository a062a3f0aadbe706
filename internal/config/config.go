// Package config loads the reko configuration from reko-config.json with
// documented defaults, environment overrides and load-time validation.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultDataDir      = "archives"
	DefaultMaxFileLines = 500
	DefaultRulesFile    = "reko-rules.md"
	DefaultServerHost   = "0.0.0.0"
	DefaultServerPort   = 5001
	DefaultFetchTimeout = 15
)

// Config captures every user-configurable setting with named fields instead
// of the loosely typed dictionaries the system grew up with.
type Config struct {
	// DataDir is the root directory holding archives/<project>/<section>/.
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	// MaxFileLines is the soft rotation threshold per archive document.
	MaxFileLines int `mapstructure:"max_file_lines" json:"max_file_lines"`

	// Projects and Sections form the configured taxonomy. Names outside the
	// lists are warned about (or rejected when StrictTaxonomy is set).
	Projects []string `mapstructure:"projects" json:"projects"`
	Sections []string `mapstructure:"sections" json:"sections"`

	// StrictTaxonomy rejects unlisted project/section names instead of
	// warn-and-create.
	StrictTaxonomy bool `mapstructure:"strict_taxonomy" json:"strict_taxonomy"`

	// RulesFile is the single shared custom-rules document, stored under
	// DataDir/custom_rules/.
	RulesFile string `mapstructure:"rules_file" json:"rules_file"`

	Server ServerConfig `mapstructure:"server" json:"server"`
	Fetch  FetchConfig  `mapstructure:"fetch" json:"fetch"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Host         string `mapstructure:"host" json:"host"`
	Port         int    `mapstructure:"port" json:"port"`
	EnableCORS   bool   `mapstructure:"enable_cors" json:"enable_cors"`
	Debug        bool   `mapstructure:"debug" json:"debug"`
	ReadTimeout  int    `mapstructure:"read_timeout_seconds" json:"read_timeout_seconds"`
	WriteTimeout int    `mapstructure:"write_timeout_seconds" json:"write_timeout_seconds"`
}

// FetchConfig points at the upstream base rules template on GitHub.
type FetchConfig struct {
	Repo           string `mapstructure:"repo" json:"repo"`
	Branch         string `mapstructure:"branch" json:"branch"`
	File           string `mapstructure:"file" json:"file"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		DataDir:      DefaultDataDir,
		MaxFileLines: DefaultMaxFileLines,
		Projects:     []string{"frontend", "backend", "shared"},
		Sections: []string{
			"setup", "architecture", "errors", "fixes",
			"apis", "dependencies", "recommendations",
		},
		RulesFile: DefaultRulesFile,
		Server: ServerConfig{
			Host:         DefaultServerHost,
			Port:         DefaultServerPort,
			EnableCORS:   true,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Fetch: FetchConfig{
			Repo:           "grapeot/devin.cursorrules",
			Branch:         "multi-agent",
			File:           ".cursorrules",
			TimeoutSeconds: DefaultFetchTimeout,
		},
	}
}

// Load reads reko-config.json from the explicit path (when non-empty), the
// current directory or $HOME, applies REKO_* environment overrides and
// validates the result. A missing config file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("reko-config")
	v.SetConfigType("json")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	v.SetEnvPrefix("REKO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("max_file_lines", def.MaxFileLines)
	v.SetDefault("projects", def.Projects)
	v.SetDefault("sections", def.Sections)
	v.SetDefault("strict_taxonomy", def.StrictTaxonomy)
	v.SetDefault("rules_file", def.RulesFile)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.enable_cors", def.Server.EnableCORS)
	v.SetDefault("server.debug", def.Server.Debug)
	v.SetDefault("server.read_timeout_seconds", def.Server.ReadTimeout)
	v.SetDefault("server.write_timeout_seconds", def.Server.WriteTimeout)
	v.SetDefault("fetch.repo", def.Fetch.Repo)
	v.SetDefault("fetch.branch", def.Fetch.Branch)
	v.SetDefault("fetch.file", def.Fetch.File)
	v.SetDefault("fetch.timeout_seconds", def.Fetch.TimeoutSeconds)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures deep inside the store.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.MaxFileLines <= 0 {
		return fmt.Errorf("config: max_file_lines must be positive, got %d", c.MaxFileLines)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port out of range: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.RulesFile) == "" {
		return fmt.Errorf("config: rules_file is required")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: fetch.timeout_seconds must be positive, got %d", c.Fetch.TimeoutSeconds)
	}
	return nil
}

// HasProject reports whether name is in the configured project list.
func (c *Config) HasProject(name string) bool {
	return containsFold(c.Projects, name)
}

// HasSection reports whether name is in the configured section list.
func (c *Config) HasSection(name string) bool {
	return containsFold(c.Sections, name)
}

func containsFold(list []string, name string) bool {
	for _, item := range list {
		if strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}
