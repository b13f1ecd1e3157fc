// Package config describes the package pkgbump maintains.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthr76/pkgbump/internal/record"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is looked up in the package directory.
	DefaultConfigFile = "pkgbump.yaml"

	// DefaultPatchFile is the lockfile patch the package applies.
	DefaultPatchFile = "update-lockfile.patch"

	// DefaultAPIBase is the GitHub REST API root.
	DefaultAPIBase = "https://api.github.com"

	// DefaultManifestAnchor is the Cargo.toml snippet extra features are
	// inserted after.
	DefaultManifestAnchor = "default-features = false, features = ["
)

// Config holds everything the update workflow needs to know about one package.
type Config struct {
	// Name is the package attribute name, used in messages.
	Name string `yaml:"name"`
	// Owner and Repo identify the upstream GitHub repository.
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	// GitURL is cloned to regenerate the lockfile. Defaults to the GitHub URL.
	GitURL string `yaml:"git_url"`
	// Attr is the flake output built to resolve the dependency hash.
	Attr string `yaml:"attr"`
	// HashField is the record key of the dependency hash.
	HashField string `yaml:"hash_field"`
	// Features are injected into the Cargo.toml feature list.
	Features []string `yaml:"features"`
	// ManifestAnchor is the exact Cargo.toml text features are inserted after.
	ManifestAnchor string `yaml:"manifest_anchor"`
	// FlakeDir is where nix build runs, relative to the package directory.
	FlakeDir string `yaml:"flake_dir"`
	// RecordFile and PatchFile are relative to the package directory.
	RecordFile string `yaml:"record_file"`
	PatchFile  string `yaml:"patch_file"`
	// APIBase is the GitHub API root.
	APIBase string `yaml:"api_base"`

	// Dir is the package directory. Set by Load, not persisted.
	Dir string `yaml:"-"`
}

var (
	errConfigIsNotSet = errors.New("configuration is not set")
	errOwnerRequired  = errors.New("owner and repo must be provided")
	errAttrRequired   = errors.New("attr must be provided")
)

// Default returns the configuration of the localgpt package.
func Default() *Config {
	return &Config{
		Owner:          "localgpt-app",
		Repo:           "localgpt",
		Attr:           ".#packages.x86_64-linux.localgpt",
		HashField:      record.DefaultHashField,
		Features:       []string{"x11", "wayland"},
		ManifestAnchor: DefaultManifestAnchor,
		FlakeDir:       "../..",
		RecordFile:     record.DefaultFile,
		PatchFile:      DefaultPatchFile,
		APIBase:        DefaultAPIBase,
	}
}

// Load reads the configuration for the package in dir. path may be empty,
// in which case dir/pkgbump.yaml is used when present and the defaults
// otherwise. A .env file in dir is loaded into the environment first.
func Load(dir, path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, DefaultConfigFile)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.Dir = dir
	cfg.applyDefaults()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Name == "" {
		c.Name = c.Repo
	}
	if c.GitURL == "" && c.Owner != "" && c.Repo != "" {
		c.GitURL = fmt.Sprintf("https://github.com/%s/%s.git", c.Owner, c.Repo)
	}
	if c.HashField == "" {
		c.HashField = d.HashField
	}
	if c.ManifestAnchor == "" {
		c.ManifestAnchor = d.ManifestAnchor
	}
	if c.RecordFile == "" {
		c.RecordFile = d.RecordFile
	}
	if c.PatchFile == "" {
		c.PatchFile = d.PatchFile
	}
	if c.APIBase == "" {
		c.APIBase = d.APIBase
	}
	if c.FlakeDir == "" {
		c.FlakeDir = "."
	}
}

// Validate checks required fields.
func Validate(c *Config) error {
	if c == nil {
		return errConfigIsNotSet
	}
	if c.Owner == "" || c.Repo == "" {
		return errOwnerRequired
	}
	if c.Attr == "" {
		return errAttrRequired
	}
	return nil
}

// RecordPath returns the absolute-or-relative path of the record file.
func (c *Config) RecordPath() string {
	return c.resolve(c.RecordFile)
}

// PatchPath returns the path of the lockfile patch.
func (c *Config) PatchPath() string {
	return c.resolve(c.PatchFile)
}

// FlakePath returns the directory nix build runs in.
func (c *Config) FlakePath() string {
	return c.resolve(c.FlakeDir)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
