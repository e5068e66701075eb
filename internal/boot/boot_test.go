package boot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jkaninda/oneline/internal/agentcmd"
	"github.com/jkaninda/oneline/internal/capability"
	"github.com/jkaninda/oneline/internal/command"
	"github.com/jkaninda/oneline/internal/config"
	"github.com/jkaninda/oneline/internal/llm"
	"github.com/jkaninda/oneline/internal/llm/llmtest"
)

var bootEnv = []string{
	config.ModeEnv, config.ManifestEnv, config.DatabaseDSNEnv,
	"ONELINE_DATA_DIR", "ONELINE_LOG_LEVEL", "ONELINE_API_KEYS",
}

// cleanEnv unsets every variable boot reads; t.Setenv restores them.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range bootEnv {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatal(err)
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type initCalls map[string]int

// table mirrors capability.DefaultTable with scripted providers.
func (calls initCalls) table() []capability.Capability {
	mk := func(name, key string) capability.Capability {
		return capability.Capability{Name: name, CredentialKey: key,
			Init: func(_ context.Context, _ string, _ *config.Manifest, _ *slog.Logger) (llm.Provider, error) {
				calls[name]++
				return llmtest.New(name), nil
			}}
	}
	return []capability.Capability{
		mk("anthropic", "ANTHROPIC_API_KEY"),
		mk("openai", "OPENAI_API_KEY"),
		mk("ollama", "OLLAMA_API_URL"),
	}
}

func lookup(env map[string]string) capability.LookupFunc {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func bootIn(t *testing.T, dir string, env map[string]string, calls initCalls) *Runtime {
	t.Helper()
	if calls == nil {
		calls = initCalls{}
	}
	rt, err := Boot(context.Background(), Options{
		Dir:          dir,
		Capabilities: calls.table(),
		Lookup:       lookup(env),
		Logger:       discardLogger(),
	})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "oneline.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBoot_ModeDefaultsToDevelopment(t *testing.T) {
	cleanEnv(t)
	rt := bootIn(t, t.TempDir(), nil, nil)

	if rt.Mode != config.DefaultMode {
		t.Errorf("Mode = %q, want %q", rt.Mode, config.DefaultMode)
	}
	if got := os.Getenv(config.ModeEnv); got != config.DefaultMode {
		t.Errorf("%s = %q after boot, want %q", config.ModeEnv, got, config.DefaultMode)
	}
}

func TestBoot_ExplicitModeIsKept(t *testing.T) {
	cleanEnv(t)
	t.Setenv(config.ModeEnv, "staging")
	rt := bootIn(t, t.TempDir(), nil, nil)

	if rt.Mode != "staging" {
		t.Errorf("Mode = %q, want staging", rt.Mode)
	}
}

func TestBoot_CapabilitiesFollowCredentialPresence(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want []string
	}{
		{"none", map[string]string{}, []string{}},
		{"anthropic", map[string]string{"ANTHROPIC_API_KEY": "a"}, []string{"anthropic"}},
		{"openai", map[string]string{"OPENAI_API_KEY": "o"}, []string{"openai"}},
		{"both", map[string]string{"ANTHROPIC_API_KEY": "a", "OPENAI_API_KEY": "o"}, []string{"anthropic", "openai"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			calls := initCalls{}
			rt := bootIn(t, t.TempDir(), tt.env, calls)

			got := rt.Capabilities.Active()
			if len(got) == 0 {
				got = []string{}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
			keys := map[string]string{"anthropic": "ANTHROPIC_API_KEY", "openai": "OPENAI_API_KEY"}
			for name, key := range keys {
				want := 0
				if _, ok := tt.env[key]; ok {
					want = 1
				}
				if calls[name] != want {
					t.Errorf("%s Init called %d times, want %d", name, calls[name], want)
				}
			}
			if (rt.Provider == nil) != (len(tt.want) == 0) {
				t.Errorf("Provider = %v with capabilities %v", rt.Provider, tt.want)
			}
		})
	}
}

func TestBoot_FreshBootsAgree(t *testing.T) {
	cleanEnv(t)
	env := map[string]string{"OPENAI_API_KEY": "o", "OLLAMA_API_URL": "http://localhost:11434"}

	first := bootIn(t, t.TempDir(), env, nil).Capabilities.Active()
	second := bootIn(t, t.TempDir(), env, nil).Capabilities.Active()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("capability sets differ: %v vs %v", first, second)
	}
}

func TestBoot_DefaultDriverIsMultiProcessLocalFiles(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	rt := bootIn(t, dir, nil, nil)

	if rt.Driver == nil {
		t.Fatal("no driver")
	}
	if rt.Driver.Name() != config.DriverLocalFiles {
		t.Errorf("driver = %s, want %s", rt.Driver.Name(), config.DriverLocalFiles)
	}
	if !rt.Driver.MultiProcess() {
		t.Error("default driver should be multi-process")
	}

	// Commands use the runtime's driver: a created loan file lands in dir.
	if _, err := rt.Commands.Run(context.Background(), "CreateLoanFile",
		map[string]any{"applicant_name": "Ada", "requested_amount": 1000.0}); err != nil {
		t.Fatalf("CreateLoanFile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "local_data", "records.yml")); err != nil {
		t.Errorf("records file not written under the data dir: %v", err)
	}
}

func TestBoot_RegistersDomainAndAgentCommands(t *testing.T) {
	cleanEnv(t)
	rt := bootIn(t, t.TempDir(), nil, nil)

	for _, name := range []string{"CreateLoanFile", "ReviewLoanFile", agentcmd.AccomplishGoalName} {
		if rt.Commands.Get(name) == nil {
			t.Errorf("%s not registered", name)
		}
	}
	_, err := rt.Commands.Run(context.Background(), agentcmd.AccomplishGoalName, map[string]any{"goal": "x"})
	if !errors.Is(err, command.ErrNoLLMProvider) {
		t.Errorf("AccomplishGoal without provider: got %v", err)
	}
}

func TestBoot_DotenvFeedsSettings(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	t.Setenv("ONELINE_TEST_MARKER", "")
	os.Unsetenv("ONELINE_TEST_MARKER")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ONELINE_TEST_MARKER=from-dotenv\nONELINE_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	rt := bootIn(t, dir, nil, nil)
	if len(rt.DotenvFiles) != 1 {
		t.Errorf("DotenvFiles = %v", rt.DotenvFiles)
	}
	if os.Getenv("ONELINE_TEST_MARKER") != "from-dotenv" {
		t.Error("dotenv variable not loaded")
	}
	if rt.Settings.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug from .env", rt.Settings.LogLevel)
	}
}

func TestBoot_ManifestAgentCommands(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	t.Setenv(config.ManifestEnv, writeManifest(t, dir, `
domains: [loan_origination]
persistence:
  driver: memory
  multi_process: false
llm:
  default: openai
agent:
  max_iterations: 2
agent_commands:
  - name: SummarizeLoanFile
    description: Summarize a loan file
    inputs:
      type: object
      required: [loan_file_id]
      properties:
        loan_file_id: {type: string}
    result:
      type: object
      required: [summary]
    tools: [FindLoanFile]
`))

	calls := initCalls{}
	rt := bootIn(t, dir, map[string]string{"ANTHROPIC_API_KEY": "a", "OPENAI_API_KEY": "o"}, calls)

	if rt.Driver.Name() != config.DriverMemory || rt.Driver.MultiProcess() {
		t.Errorf("driver = %s multi=%v", rt.Driver.Name(), rt.Driver.MultiProcess())
	}
	c := rt.Commands.Get("SummarizeLoanFile")
	if c == nil || !command.IsAgentBacked(c) {
		t.Fatal("SummarizeLoanFile not registered as agent-backed")
	}
	if rt.Provider.Name() != "openai>anthropic" {
		t.Errorf("provider chain = %s, want openai>anthropic", rt.Provider.Name())
	}
}

func TestBoot_ExtraModules(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	t.Setenv(config.ManifestEnv, writeManifest(t, dir, "domains: [loan_origination, greetings]\n"))

	greetings := command.NewModule("greetings", func(reg *command.Registry, _ command.Deps) error {
		reg.Register(command.Func("Hello", "Say hello", nil, func(context.Context, map[string]any) (any, error) {
			return "hello", nil
		}))
		return nil
	})
	rt, err := Boot(context.Background(), Options{
		Dir:          dir,
		Capabilities: initCalls{}.table(),
		Lookup:       lookup(nil),
		Modules:      []command.Module{greetings},
		Logger:       discardLogger(),
	})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer rt.Close()

	out, err := rt.Commands.Run(context.Background(), "Hello", nil)
	if err != nil || out != "hello" {
		t.Errorf("Hello = %v, %v", out, err)
	}
}

func TestBoot_FatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		table    []capability.Capability
		env      map[string]string
	}{
		{name: "unknown domain", manifest: "domains: [mortgages]\n"},
		{name: "bad driver", manifest: "persistence:\n  driver: redis\n"},
		{
			name: "capability init failure",
			table: []capability.Capability{{Name: "anthropic", CredentialKey: "ANTHROPIC_API_KEY",
				Init: func(context.Context, string, *config.Manifest, *slog.Logger) (llm.Provider, error) {
					return nil, errors.New("bad key")
				}}},
			env: map[string]string{"ANTHROPIC_API_KEY": "x"},
		},
		{
			name:     "agent command shadows domain command",
			manifest: "agent_commands:\n  - name: CreateLoanFile\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			dir := t.TempDir()
			if tt.manifest != "" {
				t.Setenv(config.ManifestEnv, writeManifest(t, dir, tt.manifest))
			}
			table := tt.table
			if table == nil {
				table = initCalls{}.table()
			}
			rt, err := Boot(context.Background(), Options{
				Dir:          dir,
				Capabilities: table,
				Lookup:       lookup(tt.env),
				Logger:       discardLogger(),
			})
			if err == nil {
				rt.Close()
				t.Fatal("expected boot to fail")
			}
		})
	}
}

func TestBoot_MissingExplicitManifest(t *testing.T) {
	cleanEnv(t)
	t.Setenv(config.ManifestEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Boot(context.Background(), Options{Dir: t.TempDir(), Lookup: lookup(nil), Logger: discardLogger()}); err == nil {
		t.Fatal("expected error for a missing explicit manifest")
	}
}

func TestRuntime_CloseRunsInReverseOrder(t *testing.T) {
	var order []int
	rt := &Runtime{}
	for i := 1; i <= 3; i++ {
		rt.addCleanup(func() { order = append(order, i) })
	}
	rt.Close()
	rt.Close()
	if !reflect.DeepEqual(order, []int{3, 2, 1}) {
		t.Errorf("cleanup order = %v, want [3 2 1]", order)
	}
}

