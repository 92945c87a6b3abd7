// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/cratescan/internal/errors"
	"github.com/kraklabs/cratescan/pkg/expand"
	"github.com/kraklabs/cratescan/pkg/pipeline"
	"github.com/kraklabs/cratescan/pkg/sources"
	"github.com/kraklabs/cratescan/pkg/stages"
)

const (
	configDirName  = ".cratescan"
	configFileName = "config.yaml"
	configVersion  = "1"
)

// Config is the content of .cratescan/config.yaml.
type Config struct {
	Version   string          `yaml:"version"`
	DataDir   string          `yaml:"data_dir"`
	GitHub    GitHubConfig    `yaml:"github"`
	Clone     CloneConfig     `yaml:"clone"`
	Workers   WorkersConfig   `yaml:"workers"`
	Expand    ExpandConfig    `yaml:"expand"`
	Cfg       CfgConfig       `yaml:"cfg"`
	Discovery DiscoveryConfig `yaml:"discovery"`

	// root is the directory holding .cratescan; relative paths resolve
	// against it.
	root string
}

type GitHubConfig struct {
	// Token is normally supplied through GITHUB_TOKEN rather than the file.
	Token             string  `yaml:"token,omitempty"`
	Query             string  `yaml:"query"`
	RepoCount         int     `yaml:"repo_count"`
	PerPage           int     `yaml:"per_page"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BaseURL           string  `yaml:"base_url,omitempty"`
}

type CloneConfig struct {
	Depth int `yaml:"depth"`
}

type WorkersConfig struct {
	Clone   int `yaml:"clone"`
	Count   int `yaml:"count"`
	Expand  int `yaml:"expand"`
	Analyze int `yaml:"analyze"`
}

type ExpandConfig struct {
	Program           string `yaml:"program"`
	Toolchain         string `yaml:"toolchain"`
	NoDefaultFeatures bool   `yaml:"no_default_features"`
}

type CfgConfig struct {
	StripPredicates []string `yaml:"strip_predicates"`
}

type DiscoveryConfig struct {
	Exclude []string `yaml:"exclude"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	ex := expand.DefaultConfig()
	return &Config{
		Version: configVersion,
		DataDir: filepath.Join(configDirName, "data"),
		GitHub: GitHubConfig{
			Query:             "language:rust",
			RepoCount:         100,
			PerPage:           100,
			RequestsPerSecond: 0.5,
		},
		Clone: CloneConfig{Depth: 1},
		Workers: WorkersConfig{
			Clone:   4,
			Count:   pipeline.DefaultLimit,
			Expand:  pipeline.DefaultLimit,
			Analyze: pipeline.DefaultLimit,
		},
		Expand: ExpandConfig{
			Program:           ex.Program,
			Toolchain:         ex.Toolchain,
			NoDefaultFeatures: ex.NoDefaultFeatures,
		},
		Cfg:       CfgConfig{StripPredicates: []string{"test"}},
		Discovery: DiscoveryConfig{Exclude: []string{"**/tests/**", "**/examples/**", "**/benches/**"}},
	}
}

// ConfigDir returns the .cratescan directory under root.
func ConfigDir(root string) string {
	return filepath.Join(root, configDirName)
}

// ConfigPath returns the config file path under root.
func ConfigPath(root string) string {
	return filepath.Join(ConfigDir(root), configFileName)
}

// LoadConfig reads the configuration at configPath, or at
// ./.cratescan/config.yaml when configPath is empty. A missing default file
// yields DefaultConfig; a missing explicit file is an error. Environment
// overrides are applied and the result is validated.
func LoadConfig(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, errors.NewInternalError("Cannot get current directory", err.Error(), "", err)
		}
		configPath = ConfigPath(cwd)
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, errors.NewConfigError("Invalid config path", err.Error(), "", err)
	}

	cfg := DefaultConfig()
	cfg.root = filepath.Dir(filepath.Dir(abs))

	data, err := os.ReadFile(abs)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewConfigError(
				"Cannot parse configuration",
				fmt.Sprintf("%s is not valid YAML: %v", abs, err),
				"Fix the file or recreate it with 'cratescan init --force'",
				err)
		}
	case os.IsNotExist(err) && !explicit:
	case os.IsNotExist(err):
		return nil, errors.NewConfigError(
			"Configuration not found",
			fmt.Sprintf("%s does not exist", abs),
			"Run 'cratescan init' or pass an existing --config path",
			err)
	default:
		return nil, errors.NewPermissionError("Cannot read configuration", err.Error(), "Check file permissions", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("CRATESCAN_DATA_DIR"); v != "" {
		c.DataDir = v
	}
}

// Validate reports the first invalid setting as a config error.
func (c *Config) Validate() error {
	invalid := func(key, cause string) error {
		return errors.NewConfigError(
			fmt.Sprintf("Invalid configuration value for %s", key),
			cause,
			"Edit .cratescan/config.yaml",
			nil)
	}
	switch {
	case c.DataDir == "":
		return invalid("data_dir", "data_dir is empty")
	case strings.TrimSpace(c.GitHub.Query) == "":
		return invalid("github.query", "the search query is empty")
	case c.GitHub.RepoCount < 1 || c.GitHub.RepoCount > 1000:
		return invalid("github.repo_count", fmt.Sprintf("%d is outside 1..1000", c.GitHub.RepoCount))
	case c.GitHub.PerPage < 1 || c.GitHub.PerPage > 100:
		return invalid("github.per_page", fmt.Sprintf("%d is outside 1..100", c.GitHub.PerPage))
	case c.GitHub.RequestsPerSecond <= 0:
		return invalid("github.requests_per_second", "must be positive")
	case c.Clone.Depth < 0:
		return invalid("clone.depth", "must not be negative")
	case c.Expand.Program == "":
		return invalid("expand.program", "the cargo program is empty")
	}
	for name, n := range map[string]int{
		"workers.clone":   c.Workers.Clone,
		"workers.count":   c.Workers.Count,
		"workers.expand":  c.Workers.Expand,
		"workers.analyze": c.Workers.Analyze,
	} {
		if n < 1 {
			return invalid(name, fmt.Sprintf("%d workers; at least 1 is required", n))
		}
	}
	for _, p := range c.Cfg.StripPredicates {
		if strings.TrimSpace(p) == "" {
			return invalid("cfg.strip_predicates", "empty predicate")
		}
	}
	for _, pattern := range c.Discovery.Exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			return invalid("discovery.exclude", fmt.Sprintf("bad pattern %q: %v", pattern, err))
		}
	}
	return nil
}

// ResolvedDataDir returns data_dir as an absolute path.
func (c *Config) ResolvedDataDir() string {
	if filepath.IsAbs(c.DataDir) || c.root == "" {
		return c.DataDir
	}
	return filepath.Join(c.root, c.DataDir)
}

// SaveConfig writes cfg to configPath, creating the directory. The token
// is never written.
func SaveConfig(configPath string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	out := *cfg
	out.GitHub.Token = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	header := "# cratescan configuration. GITHUB_TOKEN and CRATESCAN_DATA_DIR override values here.\n"
	if err := os.WriteFile(configPath, append([]byte(header), data...), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// GitHubSource converts the github section.
func (c *Config) GitHubSource() sources.GitHubConfig {
	return sources.GitHubConfig{
		Token:             c.GitHub.Token,
		Query:             c.GitHub.Query,
		RepoCount:         c.GitHub.RepoCount,
		PerPage:           c.GitHub.PerPage,
		RequestsPerSecond: c.GitHub.RequestsPerSecond,
		BaseURL:           c.GitHub.BaseURL,
	}
}

// Expander converts the expand section.
func (c *Config) Expander() expand.Config {
	return expand.Config{
		Program:           c.Expand.Program,
		Toolchain:         c.Expand.Toolchain,
		NoDefaultFeatures: c.Expand.NoDefaultFeatures,
	}
}

func (c *Config) StageWorkers() stages.Workers {
	return stages.Workers{
		Clone:   c.Workers.Clone,
		Count:   c.Workers.Count,
		Expand:  c.Workers.Expand,
		Analyze: c.Workers.Analyze,
	}
}
