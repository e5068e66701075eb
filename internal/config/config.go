// Package config handles the boot environment: deployment mode, layered
// dotenv files, process settings and the dependency manifest.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persistence driver names.
const (
	DriverLocalFiles = "local_files"
	DriverSQLite     = "sqlite"
	DriverPostgres   = "postgres"
	DriverMemory     = "memory"
)

// DatabaseDSNEnv overrides persistence.postgres.dsn.
const DatabaseDSNEnv = "ONELINE_DB_DSN"

// DefaultDomain is loaded when the manifest lists no domains.
const DefaultDomain = "loan_origination"

// Manifest declares what the runtime loads: domain modules, the persistence
// backend, LLM preferences and manifest-defined agent-backed commands.
type Manifest struct {
	Name          string              `json:"name,omitempty" yaml:"name,omitempty"`
	Domains       []string            `json:"domains" yaml:"domains"`
	Persistence   PersistenceConfig   `json:"persistence" yaml:"persistence"`
	LLM           LLMConfig           `json:"llm" yaml:"llm"`
	Agent         AgentConfig         `json:"agent" yaml:"agent"`
	AgentCommands []AgentCommand      `json:"agent_commands,omitempty" yaml:"agent_commands,omitempty"`
	Gateway       GatewayConfig       `json:"gateway" yaml:"gateway"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`

	// Source is the file the manifest was read from; empty for defaults.
	Source string `json:"-" yaml:"-"`
}

// PersistenceConfig selects and configures the CRUD driver.
type PersistenceConfig struct {
	// Driver is local_files (default), sqlite, postgres or memory.
	Driver string `json:"driver" yaml:"driver"`
	// MultiProcess defaults to true when unset.
	MultiProcess *bool                 `json:"multi_process" yaml:"multi_process"`
	LocalFiles   LocalFilesConfig      `json:"local_files" yaml:"local_files"`
	SQLite       SQLiteStorageConfig   `json:"sqlite" yaml:"sqlite"`
	Postgres     PostgresStorageConfig `json:"postgres" yaml:"postgres"`
}

// IsMultiProcess reports the effective multi-process flag.
func (p PersistenceConfig) IsMultiProcess() bool {
	return p.MultiProcess == nil || *p.MultiProcess
}

// LocalFilesConfig holds settings for the YAML file driver.
type LocalFilesConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"` // Relative to the data dir. Default: local_data/records.yml
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Default: <data dir>/oneline.db
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800
}

// LLMConfig picks models per capability and the provider order.
type LLMConfig struct {
	Default   string          `json:"default,omitempty" yaml:"default,omitempty"` // preferred capability; empty = table order
	Fallback  *bool           `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Anthropic AnthropicConfig `json:"anthropic" yaml:"anthropic"`
	OpenAI    OpenAIConfig    `json:"openai" yaml:"openai"`
	Ollama    OllamaConfig    `json:"ollama" yaml:"ollama"`
}

// FallbackEnabled reports whether all active providers are chained. Default true.
func (l LLMConfig) FallbackEnabled() bool {
	return l.Fallback == nil || *l.Fallback
}

type AnthropicConfig struct {
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

type OpenAIConfig struct {
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

type OllamaConfig struct {
	// Enabled opts in to activation by OLLAMA_API_URL, which also carries the base URL.
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Model   string `json:"model" yaml:"model"` // Default: llama3.1
}

// AgentConfig bounds the tool-use loop of agent-backed commands.
type AgentConfig struct {
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"` // Default: 8
	MaxTokens     int `json:"max_tokens" yaml:"max_tokens"`         // Default: 4096
}

// AgentCommand declares an agent-backed command in the manifest.
type AgentCommand struct {
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description" yaml:"description"`
	Instructions string         `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Inputs       map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Result       map[string]any `json:"result,omitempty" yaml:"result,omitempty"`
	Tools        []string       `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// GatewayConfig configures the outer surfaces.
type GatewayConfig struct {
	HTTP HTTPGatewayConfig `json:"http" yaml:"http"`
}

type HTTPGatewayConfig struct {
	ListenAddr        string `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080"
	EnableDocs        bool   `json:"enable_docs" yaml:"enable_docs"`
	RequestsPerMinute int    `json:"requests_per_minute" yaml:"requests_per_minute"` // Per user on /v1. 0 = unlimited.
	BurstSize         int    `json:"burst_size" yaml:"burst_size"`                   // Default: requests_per_minute
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"` // nil = true
	Path    string `json:"path" yaml:"path"`                           // Default: "/metrics"
}

// IsEnabled reports whether metrics are exposed.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "oneline"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`
}

// Default returns the manifest used when no manifest file exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load reads a JSON or YAML manifest and returns it validated.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. When the file does not exist and explicit is false, the
// built-in defaults are returned.
func Load(path string, explicit bool) (*Manifest, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		m := Default()
		m.Persistence.Postgres.DSN = os.Getenv(DatabaseDSNEnv)
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", resolved, err)
	}

	var m Manifest
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parsing YAML manifest %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parsing JSON manifest %s: %w", resolved, err)
		}
	}
	m.Source = resolved
	m.applyDefaults()

	// Environment variable overrides take precedence over manifest values.
	if dsn := os.Getenv(DatabaseDSNEnv); dsn != "" {
		m.Persistence.Postgres.DSN = dsn
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", resolved, err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Name == "" {
		m.Name = "oneline"
	}
	if len(m.Domains) == 0 {
		m.Domains = []string{DefaultDomain}
	}
	if m.Persistence.Driver == "" {
		m.Persistence.Driver = DriverLocalFiles
	}
	if m.Persistence.LocalFiles.Path == "" {
		m.Persistence.LocalFiles.Path = filepath.Join("local_data", "records.yml")
	}
	if m.Persistence.SQLite.Path == "" {
		m.Persistence.SQLite.Path = "oneline.db"
	}
	if m.Persistence.SQLite.JournalMode == "" {
		m.Persistence.SQLite.JournalMode = "wal"
	}
	if m.Persistence.Postgres.MaxOpenConns == 0 {
		m.Persistence.Postgres.MaxOpenConns = 25
	}
	if m.Persistence.Postgres.MaxIdleConns == 0 {
		m.Persistence.Postgres.MaxIdleConns = 5
	}
	if m.Persistence.Postgres.ConnMaxLifetimeS == 0 {
		m.Persistence.Postgres.ConnMaxLifetimeS = 1800
	}
	if m.LLM.Ollama.Model == "" {
		m.LLM.Ollama.Model = "llama3.1"
	}
	if m.Agent.MaxIterations <= 0 {
		m.Agent.MaxIterations = 8
	}
	if m.Agent.MaxTokens <= 0 {
		m.Agent.MaxTokens = 4096
	}
	if m.Gateway.HTTP.ListenAddr == "" {
		m.Gateway.HTTP.ListenAddr = ":8080"
	}
	if m.Observability.Metrics.Path == "" {
		m.Observability.Metrics.Path = "/metrics"
	}
	t := &m.Observability.Tracing
	if t.Protocol == "" {
		t.Protocol = "grpc"
	}
	if t.ServiceName == "" {
		t.ServiceName = "oneline"
	}
	if t.SampleRate == 0 {
		t.SampleRate = 1.0
	}
}

// KnownCapabilities lists the LLM capability names llm.default may use.
var KnownCapabilities = []string{"anthropic", "openai", "ollama"}

func (m *Manifest) validate() error {
	switch m.Persistence.Driver {
	case DriverLocalFiles, DriverSQLite, DriverMemory:
	case DriverPostgres:
		if m.Persistence.Postgres.DSN == "" {
			return fmt.Errorf("persistence.postgres.dsn is required (set ONELINE_DB_DSN env var)")
		}
	default:
		return fmt.Errorf("persistence.driver %q is not supported (use local_files, sqlite, postgres or memory)", m.Persistence.Driver)
	}

	if m.LLM.Default != "" {
		known := false
		for _, name := range KnownCapabilities {
			if name == m.LLM.Default {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("llm.default %q is not supported (use anthropic, openai or ollama)", m.LLM.Default)
		}
	}

	switch m.Observability.Tracing.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("observability.tracing.protocol must be grpc or http")
	}

	if h := m.Gateway.HTTP; h.RequestsPerMinute < 0 || h.BurstSize < 0 {
		return fmt.Errorf("gateway.http rate limits must not be negative")
	}

	names := make(map[string]bool, len(m.AgentCommands))
	for i, ac := range m.AgentCommands {
		if ac.Name == "" {
			return fmt.Errorf("agent_commands[%d].name is required", i)
		}
		if names[ac.Name] {
			return fmt.Errorf("agent_commands[%d]: duplicate command name %q", i, ac.Name)
		}
		names[ac.Name] = true
	}
	return nil
}
