package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up when no path is given.
const FileName = "codegraph.yaml"

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the codegraph configuration.
type Config struct {
	ProjectRoot string          `yaml:"project_root"`
	Input       string          `yaml:"input"`
	Output      OutputConfig    `yaml:"output"`
	Filter      FilterConfig    `yaml:"filter"`
	Graph       GraphConfig     `yaml:"graph"`
	Store       StoreConfig     `yaml:"store"`
	Neo4j       Neo4jConfig     `yaml:"neo4j"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// OutputConfig controls where the record stream is written.
type OutputConfig struct {
	Path   string `yaml:"path" validate:"required"`
	Format string `yaml:"format" validate:"oneof=json jsonl"`
}

// FilterConfig controls which tree nodes become entities.
type FilterConfig struct {
	SystemPrefixes []string `yaml:"system_prefixes"`
	ReservedPrefix string   `yaml:"reserved_prefix"`
}

// GraphConfig controls graph construction.
type GraphConfig struct {
	ResolveReferences *bool `yaml:"resolve_references"`
	DedupEdges        *bool `yaml:"dedup_edges"`
	Workers           int   `yaml:"workers" validate:"gte=0,lte=256"`
}

// StoreConfig controls the SQLite store.
type StoreConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Dir     string `yaml:"dir" validate:"required"`
}

// Neo4jConfig configures the optional graph export. Export is skipped when
// URI is empty. Each export replaces the previously exported graph.
type Neo4jConfig struct {
	URI      string `yaml:"uri" validate:"omitempty,uri"`
	User     string `yaml:"user" validate:"required_with=URI"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// TelemetryConfig selects trace and metric exporters.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		ProjectRoot: ".",
		Input:       "ast_export.json",
		Output: OutputConfig{
			Path:   filepath.Join("graphrag", "input", "code_graph.json"),
			Format: "json",
		},
		Filter: FilterConfig{
			SystemPrefixes: []string{"/usr/include", "/usr/local/include", "/usr/lib"},
			ReservedPrefix: "_",
		},
		Graph: GraphConfig{
			ResolveReferences: boolPtr(false),
			DedupEdges:        boolPtr(false),
			Workers:           1,
		},
		Store: StoreConfig{
			Enabled: boolPtr(true),
			Dir:     ".codegraph",
		},
		Neo4j: Neo4jConfig{
			User: "neo4j",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
		},
	}
}

// Load reads configuration from file, falling back to defaults.
// If configPath is empty, it looks for codegraph.yaml in the current directory.
// Values set in the file replace the corresponding defaults.
func Load(configPath string) (*Config, error) {
	defaults := Default()

	if configPath == "" {
		configPath = FileName
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults, nil
		}
		return nil, err
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}

	defaults.Merge(&fileCfg)
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return defaults, nil
}

// Merge combines another config into this one, with other taking precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.ProjectRoot != "" {
		c.ProjectRoot = other.ProjectRoot
	}
	if other.Input != "" {
		c.Input = other.Input
	}
	if other.Output.Path != "" {
		c.Output.Path = other.Output.Path
	}
	if other.Output.Format != "" {
		c.Output.Format = other.Output.Format
	}
	if len(other.Filter.SystemPrefixes) > 0 {
		c.Filter.SystemPrefixes = other.Filter.SystemPrefixes
	}
	if other.Filter.ReservedPrefix != "" {
		c.Filter.ReservedPrefix = other.Filter.ReservedPrefix
	}
	if other.Graph.ResolveReferences != nil {
		c.Graph.ResolveReferences = other.Graph.ResolveReferences
	}
	if other.Graph.DedupEdges != nil {
		c.Graph.DedupEdges = other.Graph.DedupEdges
	}
	if other.Graph.Workers != 0 {
		c.Graph.Workers = other.Graph.Workers
	}
	if other.Store.Enabled != nil {
		c.Store.Enabled = other.Store.Enabled
	}
	if other.Store.Dir != "" {
		c.Store.Dir = other.Store.Dir
	}
	if other.Neo4j.URI != "" {
		c.Neo4j.URI = other.Neo4j.URI
	}
	if other.Neo4j.User != "" {
		c.Neo4j.User = other.Neo4j.User
	}
	if other.Neo4j.Password != "" {
		c.Neo4j.Password = other.Neo4j.Password
	}
	if other.Neo4j.Database != "" {
		c.Neo4j.Database = other.Neo4j.Database
	}
	if other.Telemetry.TraceExporter != "" {
		c.Telemetry.TraceExporter = other.Telemetry.TraceExporter
	}
	if other.Telemetry.MetricExporter != "" {
		c.Telemetry.MetricExporter = other.Telemetry.MetricExporter
	}
	if other.Telemetry.OTLPEndpoint != "" {
		c.Telemetry.OTLPEndpoint = other.Telemetry.OTLPEndpoint
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. Failures wrap ErrInvalid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalid, f.Namespace(), f.Tag(), f.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ResolveReferences reports whether call and type-reference edges are enabled.
func (c *Config) ResolveReferences() bool {
	return c.Graph.ResolveReferences != nil && *c.Graph.ResolveReferences
}

// DedupEdges reports whether repeated edges are dropped.
func (c *Config) DedupEdges() bool {
	return c.Graph.DedupEdges != nil && *c.Graph.DedupEdges
}

// StoreEnabled reports whether the SQLite store is written.
func (c *Config) StoreEnabled() bool {
	return c.Store.Enabled == nil || *c.Store.Enabled
}

// Neo4jEnabled reports whether the graph is exported to Neo4j.
func (c *Config) Neo4jEnabled() bool {
	return c.Neo4j.URI != ""
}

// ResolvePath returns p relative to the project root unless it is absolute.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectRoot, p)
}

func boolPtr(b bool) *bool {
	return &b
}
