// Package config loads and validates the JSON configuration file shared by
// the sync commands.
//
// Validation returns a list of issues rather than a single error: warnings
// (e.g. a source with no connector) are reported but do not stop a run, while
// errors do. DSNs pass through os.ExpandEnv so secrets stay out of the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"datasync/internal/connector"
	"datasync/internal/source"
)

// Severity of a validation issue.
const (
	SeverityError = "error"
	SeverityWarn  = "warn"
)

// Issue is one config validation finding.
type Issue struct {
	Severity string
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error (warnings alone still
// permit a run).
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Config is the top-level configuration.
type Config struct {
	Storage    StorageConfig              `json:"storage"`
	Connectors map[string]ConnectorEntry  `json:"connectors"`
	Sources    map[string]SourceOverrides `json:"sources"`
	Metrics    MetricsConfig              `json:"metrics"`
}

// StorageConfig selects the canonical store backend.
type StorageConfig struct {
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// ConnectorEntry configures the connector for one source.
type ConnectorEntry struct {
	Kind    string            `json:"kind"`
	Options map[string]string `json:"options"`
}

// SourceOverrides adjusts a source's sync defaults.
type SourceOverrides struct {
	WindowDays    int `json:"window_days"`
	PacingSeconds int `json:"pacing_seconds"`
	HistoryDays   int `json:"history_days"`
}

// Pacing returns the override as a duration (0 when unset).
func (s SourceOverrides) Pacing() time.Duration {
	return time.Duration(s.PacingSeconds) * time.Second
}

// MetricsConfig selects the metrics backend ("" disables metrics).
type MetricsConfig struct {
	Backend      string `json:"backend"`
	Job          string `json:"job"`
	Tags         string `json:"tags"`
	FlushSeconds int    `json:"flush_seconds"`
}

// Load reads and decodes the config file. Unknown fields are rejected so a
// typoed key fails loudly instead of silently using a default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg.Storage.DSN = os.ExpandEnv(cfg.Storage.DSN)
	for name, c := range cfg.Connectors {
		for k, v := range c.Options {
			c.Options[k] = os.ExpandEnv(v)
		}
		cfg.Connectors[name] = c
	}
	return &cfg, nil
}

// Validate checks the config for structural problems.
func (c *Config) Validate() []Issue {
	var issues []Issue

	if c.Storage.Kind == "" {
		issues = append(issues, Issue{SeverityError, "storage.kind", "missing storage backend"})
	}

	for name, entry := range c.Connectors {
		path := "connectors." + name
		if _, err := source.Parse(name); err != nil {
			issues = append(issues, Issue{SeverityError, path, err.Error()})
		}
		if entry.Kind == "" {
			issues = append(issues, Issue{SeverityError, path + ".kind", "missing connector kind"})
		}
	}

	for name, o := range c.Sources {
		path := "sources." + name
		if _, err := source.Parse(name); err != nil {
			issues = append(issues, Issue{SeverityError, path, err.Error()})
		}
		if o.WindowDays < 0 {
			issues = append(issues, Issue{SeverityError, path + ".window_days", "must be positive"})
		}
		if o.PacingSeconds < 0 {
			issues = append(issues, Issue{SeverityError, path + ".pacing_seconds", "must be non-negative"})
		}
		if o.HistoryDays < 0 {
			issues = append(issues, Issue{SeverityError, path + ".history_days", "must be positive"})
		}
	}

	for _, s := range source.All() {
		if _, ok := c.Connectors[string(s)]; !ok {
			issues = append(issues, Issue{SeverityWarn, "connectors." + string(s), "no connector configured; source will be skipped"})
		}
	}

	return issues
}

// Connector builds the configured connector for src.
func (c *Config) Connector(src source.Source) (connector.Connector, error) {
	entry, ok := c.Connectors[string(src)]
	if !ok {
		return nil, fmt.Errorf("config: no connector configured for source %s", src)
	}
	return connector.New(connector.Config{
		Kind:    entry.Kind,
		Source:  src,
		Options: entry.Options,
	})
}

// ConfiguredSources returns the sources that have a connector, sorted.
func (c *Config) ConfiguredSources() []source.Source {
	var out []source.Source
	for _, s := range source.All() {
		if _, ok := c.Connectors[string(s)]; ok {
			out = append(out, s)
		}
	}
	return out
}
