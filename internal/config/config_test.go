package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad_MissingDefaultPathUsesDefaults(t *testing.T) {
	t.Setenv(DatabaseDSNEnv, "")
	m, err := Load(filepath.Join(t.TempDir(), DefaultManifestName), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Domains) != 1 || m.Domains[0] != DefaultDomain {
		t.Errorf("expected default domain, got %v", m.Domains)
	}
	if m.Persistence.Driver != DriverLocalFiles {
		t.Errorf("expected local_files driver, got %q", m.Persistence.Driver)
	}
	if !m.Persistence.IsMultiProcess() {
		t.Error("multi_process must default to true")
	}
	if m.Agent.MaxIterations != 8 {
		t.Errorf("expected 8 iterations, got %d", m.Agent.MaxIterations)
	}
	if m.Source != "" {
		t.Errorf("defaults must not carry a source, got %q", m.Source)
	}
}

func TestLoad_MissingExplicitPathFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), true)
	if err == nil {
		t.Fatal("expected error for missing explicit manifest")
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "oneline.yaml", `
name: lending
domains: [loan_origination]
persistence:
  driver: sqlite
  multi_process: false
llm:
  default: openai
  fallback: false
agent_commands:
  - name: SummarizeLoanFile
    description: Summarize a loan file
    result:
      type: object
      required: [summary]
    tools: [FindLoanFile]
`)
	m, err := Load(path, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "lending" || m.Persistence.Driver != DriverSQLite {
		t.Errorf("unexpected manifest %+v", m)
	}
	if m.Persistence.IsMultiProcess() {
		t.Error("expected multi_process false")
	}
	if m.LLM.FallbackEnabled() {
		t.Error("expected fallback disabled")
	}
	if len(m.AgentCommands) != 1 || m.AgentCommands[0].Tools[0] != "FindLoanFile" {
		t.Errorf("unexpected agent commands %+v", m.AgentCommands)
	}
	if m.Source != path {
		t.Errorf("expected source %q, got %q", path, m.Source)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "oneline.json", `{"persistence":{"driver":"memory"}}`)
	m, err := Load(path, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Persistence.Driver != DriverMemory {
		t.Errorf("expected memory driver, got %q", m.Persistence.Driver)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown driver", "persistence: {driver: mongo}", "persistence.driver"},
		{"postgres without dsn", "persistence: {driver: postgres}", "dsn is required"},
		{"unknown capability", "llm: {default: gemini}", "llm.default"},
		{"duplicate agent command", "agent_commands: [{name: A}, {name: A}]", "duplicate"},
		{"negative rate limit", "gateway: {http: {requests_per_minute: -1}}", "must not be negative"},
		{"unnamed agent command", "agent_commands: [{description: x}]", "name is required"},
		{"bad yaml", "domains: [", "parsing YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(DatabaseDSNEnv, "")
			path := writeFile(t, t.TempDir(), "oneline.yaml", tt.content)
			_, err := Load(path, true)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_DatabaseDSNFromEnv(t *testing.T) {
	t.Setenv(DatabaseDSNEnv, "postgres://localhost/oneline")
	path := writeFile(t, t.TempDir(), "oneline.yaml", "persistence: {driver: postgres}")
	m, err := Load(path, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Persistence.Postgres.DSN != "postgres://localhost/oneline" {
		t.Errorf("expected env DSN, got %q", m.Persistence.Postgres.DSN)
	}
}

func TestDefault_StoragePaths(t *testing.T) {
	m := Default()
	if got := m.Persistence.LocalFiles.Path; got != filepath.Join("local_data", "records.yml") {
		t.Errorf("local files path = %q", got)
	}
	if got := m.Persistence.SQLite.Path; got != "oneline.db" {
		t.Errorf("sqlite path = %q", got)
	}
}
