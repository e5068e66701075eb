// Package capability activates optional LLM integrations based on which
// credential keys are present in the environment.
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jkaninda/oneline/internal/config"
	"github.com/jkaninda/oneline/internal/llm"
	"github.com/jkaninda/oneline/internal/llm/anthropic"
	"github.com/jkaninda/oneline/internal/llm/openai"
)

// InitFunc builds the provider for a capability from its credential value.
type InitFunc func(ctx context.Context, credential string, m *config.Manifest, logger *slog.Logger) (llm.Provider, error)

// Capability is one row of the activation table. A row with Enabled set is
// only considered when the manifest opts in.
type Capability struct {
	Name          string
	CredentialKey string
	Init          InitFunc
	Enabled       func(m *config.Manifest) bool
}

// LookupFunc reports whether a key is present and its value.
type LookupFunc func(key string) (string, bool)

// DefaultTable is the built-in activation table, in priority order.
func DefaultTable() []Capability {
	return []Capability{
		{Name: "anthropic", CredentialKey: "ANTHROPIC_API_KEY", Init: initAnthropic},
		{Name: "openai", CredentialKey: "OPENAI_API_KEY", Init: initOpenAI},
		{Name: "ollama", CredentialKey: "OLLAMA_API_URL", Init: initOllama, Enabled: ollamaEnabled},
	}
}

// Load walks the table once. A present key (empty values included) triggers
// exactly one Init call; an absent key is skipped. Any Init error aborts.
// A nil lookup means os.LookupEnv.
func Load(ctx context.Context, table []Capability, lookup LookupFunc, m *config.Manifest, logger *slog.Logger) (*Set, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := &Set{providers: make(map[string]llm.Provider)}
	for _, c := range table {
		if c.Enabled != nil && !c.Enabled(m) {
			logger.DebugContext(ctx, "capability disabled by manifest", slog.String("capability", c.Name))
			continue
		}
		value, ok := lookup(c.CredentialKey)
		if !ok {
			logger.DebugContext(ctx, "capability inactive",
				slog.String("capability", c.Name),
				slog.String("key", c.CredentialKey),
			)
			continue
		}
		p, err := c.Init(ctx, value, m, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing %s capability: %w", c.Name, err)
		}
		set.order = append(set.order, c.Name)
		set.providers[c.Name] = p
		logger.InfoContext(ctx, "capability active",
			slog.String("capability", c.Name),
			slog.String("provider", p.Name()),
		)
	}
	return set, nil
}

// Set is the immutable result of Load.
type Set struct {
	order     []string
	providers map[string]llm.Provider
}

// Active returns the active capability names in table order.
func (s *Set) Active() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Has reports whether the named capability is active.
func (s *Set) Has(name string) bool {
	_, ok := s.providers[name]
	return ok
}

// Provider returns the provider of an active capability, or nil.
func (s *Set) Provider(name string) llm.Provider {
	return s.providers[name]
}

// Len returns the number of active capabilities.
func (s *Set) Len() int { return len(s.order) }

// Primary returns preferred when active, else the first active capability
// in table order, else nil.
func (s *Set) Primary(preferred string) llm.Provider {
	if p, ok := s.providers[preferred]; ok {
		return p
	}
	if len(s.order) == 0 {
		return nil
	}
	return s.providers[s.order[0]]
}

// Chain returns the runtime provider: the primary alone, or when fallback
// is enabled and several capabilities are active, a FallbackProvider over
// all of them with the primary first. Nil when nothing is active.
func (s *Set) Chain(preferred string, fallback bool, logger *slog.Logger) llm.Provider {
	primary := s.Primary(preferred)
	if primary == nil || !fallback || len(s.order) < 2 {
		return primary
	}
	chain := []llm.Provider{primary}
	for _, name := range s.order {
		if p := s.providers[name]; p != primary {
			chain = append(chain, p)
		}
	}
	return llm.NewFallbackProvider(chain, logger)
}

func initAnthropic(_ context.Context, key string, m *config.Manifest, logger *slog.Logger) (llm.Provider, error) {
	var opts []anthropic.Option
	if m.LLM.Anthropic.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(m.LLM.Anthropic.BaseURL))
	}
	return anthropic.NewClient(key, m.LLM.Anthropic.Model, logger, opts...), nil
}

func initOpenAI(_ context.Context, key string, m *config.Manifest, logger *slog.Logger) (llm.Provider, error) {
	var opts []openai.Option
	if m.LLM.OpenAI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(m.LLM.OpenAI.BaseURL))
	}
	return openai.NewClient(key, m.LLM.OpenAI.Model, logger, opts...), nil
}

func ollamaEnabled(m *config.Manifest) bool { return m.LLM.Ollama.Enabled }

// initOllama treats the credential value as the server base URL.
func initOllama(_ context.Context, baseURL string, m *config.Manifest, logger *slog.Logger) (llm.Provider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return openai.NewClient("", m.LLM.Ollama.Model, logger,
		openai.WithBaseURL(baseURL),
		openai.WithName("ollama"),
	), nil
}
