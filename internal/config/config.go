// Package config loads the dbspec configuration file.
package config

import (
	"os"
	"path/filepath"

	"github.com/koustreak/dbspec/internal/database"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/filestore"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/logger"
	"github.com/koustreak/dbspec/internal/spec"
	"go.yaml.in/yaml/v3"
)

// FileName is the configuration file looked up in the working directory
// when no path is given.
const FileName = "dbspec.yaml"

// Config holds all application configuration.
type Config struct {
	Database database.Config `yaml:"database"`
	Store    StoreConfig     `yaml:"store"`
	Options  Options         `yaml:"options"`
	Log      logger.Config   `yaml:"log"`
	Server   ServerConfig    `yaml:"server"`
}

// StoreConfig locates specification documents.
type StoreConfig struct {
	filestore.Config `yaml:",inline"`

	// Dir is the directory inside the bucket, may be empty.
	Dir string `yaml:"dir,omitempty"`
}

// Options shape dumps and plans.
type Options struct {
	Schemas        []string `yaml:"schemas,omitempty"`
	ExcludeSchemas []string `yaml:"exclude_schemas,omitempty"`
	Split          string   `yaml:"split"`
	NoOwner        bool     `yaml:"no_owner"`
	NoPrivileges   bool     `yaml:"no_privileges"`

	// Reserved words quoted in addition to PostgreSQL's own.
	Reserved []string `yaml:"reserved,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfig returns a Config that dumps a local database into the
// current directory as a single document.
func DefaultConfig() *Config {
	return &Config{
		Database: *database.DefaultConfig(),
		Store: StoreConfig{
			Config: *filestore.LocalConfig("."),
		},
		Options: Options{
			Split: string(spec.SplitNone),
		},
		Log: logger.Config{
			Level:      "info",
			Format:     "console",
			TimeFormat: "rfc3339",
		},
		Server: ServerConfig{
			Listen: ":8080",
		},
	}
}

// Load reads a Config from the YAML file at path. If the file does not
// exist, it returns DefaultConfig without error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "read config", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "parse config "+path, err)
	}
	return cfg, nil
}

// Save writes the Config to the YAML file at path, creating any necessary
// parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "create config dir", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "write config", err)
	}
	return nil
}

// Validate checks the sections every command relies on. The database
// section is validated by the driver when a connection is opened.
func (c *Config) Validate() error {
	if _, err := spec.ParseSplit(c.Options.Split); err != nil {
		return err
	}
	switch c.Store.Provider {
	case filestore.ProviderLocal:
		if c.Store.Root == "" {
			return errs.New(errs.ErrKindInvalidInput, "store: root is required for the local provider")
		}
	case filestore.ProviderMinIO:
		if c.Store.Endpoint == "" || c.Store.DefaultBucket == "" {
			return errs.New(errs.ErrKindInvalidInput, "store: endpoint and bucket are required for the minio provider")
		}
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "store: unknown provider %q", c.Store.Provider)
	}
	return nil
}

// Policy returns the identifier policy for the configured reserved words.
func (c *Config) Policy() *ident.Policy {
	if len(c.Options.Reserved) == 0 {
		return ident.DefaultPolicy()
	}
	return ident.NewPolicy(c.Options.Reserved...)
}

// Layout locates the specification of dbname inside the store.
func (c *Config) Layout(dbname string) spec.Layout {
	split, _ := spec.ParseSplit(c.Options.Split)
	return spec.Layout{
		Bucket: c.Store.DefaultBucket,
		Dir:    c.Store.Dir,
		DBName: dbname,
		Split:  split,
		Options: spec.Options{
			NoOwner:      c.Options.NoOwner,
			NoPrivileges: c.Options.NoPrivileges,
		},
	}
}
