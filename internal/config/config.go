// Package config loads, validates and (on first run) generates the
// harvester configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/amiharvest/internal/model"
)

// SourceIdentityToken is the reserved field name that maps a column to the
// originating server's identity instead of a message header.
const SourceIdentityToken = "%SERVER_NAME%"

// DefaultPath is the configuration file consulted when no -config flag is
// given.
const DefaultPath = "config.yml"

// Config is the full configuration file shape.
type Config struct {
	Basic     BasicConfig      `mapstructure:"basic"`
	Runtime   RuntimeConfig    `mapstructure:"runtime"`
	Servers   []ServerConfig   `mapstructure:"servers"`
	Databases []DatabaseConfig `mapstructure:"databases"`
	Rules     []RuleConfig     `mapstructure:"rules"`

	// Path is the file the configuration was read from.
	Path string `mapstructure:"-"`

	// Generated reports that no file existed and a documented example
	// was written in its place.
	Generated bool `mapstructure:"-"`
}

// BasicConfig controls the file sink layout.
type BasicConfig struct {
	TargetDirectory    string `mapstructure:"target-directory"`
	DirectoryPerServer bool   `mapstructure:"directory-per-server"`
}

// RuntimeConfig tunes pipeline behavior.
type RuntimeConfig struct {
	BusBuffer           int           `mapstructure:"bus-buffer"`
	SessionBuffer       int           `mapstructure:"session-buffer"`
	ReconnectMinBackoff time.Duration `mapstructure:"reconnect-min-backoff"`
	ReconnectMaxBackoff time.Duration `mapstructure:"reconnect-max-backoff"`
	APIEnabled          bool          `mapstructure:"api-enabled"`
	APIAddr             string        `mapstructure:"api-addr"`
}

// ServerConfig describes one upstream AMI server.
type ServerConfig struct {
	Name      string `mapstructure:"name"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Reconnect *bool  `mapstructure:"reconnect"`
}

// DatabaseConfig describes one database target.
type DatabaseConfig struct {
	ID       string `mapstructure:"id"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// RuleConfig binds one event name to one table under a target database.
// Columns are ordered; the insert uses the declared order.
type RuleConfig struct {
	Event    string         `mapstructure:"event"`
	Database string         `mapstructure:"database"`
	Table    string         `mapstructure:"table"`
	Columns  []ColumnConfig `mapstructure:"columns"`
}

// ColumnConfig maps one source field to one destination column. From is a
// message header name or the reserved SourceIdentityToken.
type ColumnConfig struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

// Load reads the configuration from path (DefaultPath when empty). A
// missing file is not an error: a documented example is written there and
// returned parsed, with Generated set.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}

	generated := false
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if werr := os.WriteFile(path, []byte(exampleConfig), 0644); werr != nil {
			return Config{}, fmt.Errorf("config: write example config: %w", werr)
		}
		generated = true
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("AMIHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Path = path
	cfg.Generated = generated
	cfg.Basic.TargetDirectory = strings.TrimSuffix(cfg.Basic.TargetDirectory, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("basic.target-directory", "events")
	v.SetDefault("basic.directory-per-server", false)
	v.SetDefault("runtime.bus-buffer", 50_000)
	v.SetDefault("runtime.session-buffer", 1024)
	v.SetDefault("runtime.reconnect-min-backoff", time.Second)
	v.SetDefault("runtime.reconnect-max-backoff", time.Minute)
	v.SetDefault("runtime.api-enabled", true)
	v.SetDefault("runtime.api-addr", "127.0.0.1:3000")
}

// Validate enforces the startup preconditions: a usable sink directory,
// unique routing keys, unique database ids, and rules that resolve to a
// configured database.
func (c Config) Validate() error {
	if c.Basic.TargetDirectory == "" {
		return errors.New("config: basic.target-directory is required")
	}

	serverNames := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("config: servers[%d]: name is required", i)
		}
		if s.Host == "" {
			return fmt.Errorf("config: server %q: host is required", s.Name)
		}
		if s.Port <= 0 || s.Port > 65535 {
			return fmt.Errorf("config: server %q: invalid port %d", s.Name, s.Port)
		}
		if serverNames[s.Name] {
			return fmt.Errorf("config: duplicate server name %q", s.Name)
		}
		serverNames[s.Name] = true
	}

	dbIDs := make(map[string]bool, len(c.Databases))
	for i, d := range c.Databases {
		if d.ID == "" {
			return fmt.Errorf("config: databases[%d]: id is required", i)
		}
		if dbIDs[d.ID] {
			return fmt.Errorf("config: duplicate database id %q", d.ID)
		}
		if d.Port <= 0 || d.Port > 65535 {
			return fmt.Errorf("config: database %q: invalid port %d", d.ID, d.Port)
		}
		dbIDs[d.ID] = true
	}

	for i, r := range c.Rules {
		if r.Event == "" {
			return fmt.Errorf("config: rules[%d]: event is required", i)
		}
		if r.Table == "" {
			return fmt.Errorf("config: rule for event %q: table is required", r.Event)
		}
		if !dbIDs[r.Database] {
			return fmt.Errorf("config: rule for event %q: unknown database id %q", r.Event, r.Database)
		}
		if len(r.Columns) == 0 {
			return fmt.Errorf("config: rule for event %q: at least one column mapping is required", r.Event)
		}
		for _, col := range r.Columns {
			if col.To == "" {
				return fmt.Errorf("config: rule for event %q: column mapping %q has no destination", r.Event, col.From)
			}
		}
	}
	return nil
}

// Endpoints converts the server list to model endpoints. Reconnect
// defaults to true when unset.
func (c Config) Endpoints() []model.ServerEndpoint {
	out := make([]model.ServerEndpoint, 0, len(c.Servers))
	for _, s := range c.Servers {
		reconnect := true
		if s.Reconnect != nil {
			reconnect = *s.Reconnect
		}
		out = append(out, model.ServerEndpoint{
			Name:      s.Name,
			Host:      s.Host,
			Port:      s.Port,
			Username:  s.Username,
			Password:  s.Password,
			Reconnect: reconnect,
		})
	}
	return out
}

// Targets converts the database list to model targets.
func (c Config) Targets() []model.DatabaseTarget {
	out := make([]model.DatabaseTarget, 0, len(c.Databases))
	for _, d := range c.Databases {
		out = append(out, model.DatabaseTarget{
			ID:       d.ID,
			Host:     d.Host,
			Port:     d.Port,
			User:     d.User,
			Password: d.Password,
			Database: d.Database,
		})
	}
	return out
}

// MappingRules converts rule entries to model rules, turning the reserved
// token into the tagged identity source.
func (c Config) MappingRules() []model.MappingRule {
	out := make([]model.MappingRule, 0, len(c.Rules))
	for _, r := range c.Rules {
		cols := make([]model.ColumnMapping, 0, len(r.Columns))
		for _, col := range r.Columns {
			src := model.FromHeader(col.From)
			if col.From == SourceIdentityToken {
				src = model.FromSourceIdentity()
			}
			cols = append(cols, model.ColumnMapping{Source: src, Column: col.To})
		}
		out = append(out, model.MappingRule{
			Event:      r.Event,
			DatabaseID: r.Database,
			Table:      r.Table,
			Columns:    cols,
		})
	}
	return out
}
