package command

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jkaninda/oneline/internal/llm"
)

// Observer is notified around every command run. StartRun returns the
// context to run with and a function receiving the outcome.
type Observer interface {
	StartRun(ctx context.Context, command string) (context.Context, func(error))
}

// Registry holds available commands keyed by name.
// Thread-safe for concurrent reads; writes should only happen at boot.
type Registry struct {
	mu         sync.RWMutex
	commands   map[string]Command
	validators map[string]*Validator
	observer Observer
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithObserver installs a run observer (metrics, tracing).
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) { r.observer = o }
}

// NewRegistry creates an empty command registry.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		commands:   make(map[string]Command),
		validators: make(map[string]*Validator),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a command after compiling its input schema. It fails on a
// duplicate name or a schema that does not compile.
func (r *Registry) Add(c Command) error {
	v, err := CompileSchema(c.InputSchema())
	if err != nil {
		return fmt.Errorf("command %s: input schema: %w", c.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[c.Name()]; exists {
		return fmt.Errorf("duplicate command registration: %s", c.Name())
	}
	r.commands[c.Name()] = c
	r.validators[c.Name()] = v
	return nil
}

// Register is Add for commands defined in code. Panics on error (boot error,
// not runtime).
func (r *Registry) Register(c Command) {
	if err := r.Add(c); err != nil {
		panic(err.Error())
	}
}

// Get returns the command by name, or nil if not found.
func (r *Registry) Get(name string) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[name]
}

// List returns all registered command names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered commands ordered by name.
func (r *Registry) All() []Command {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, len(names))
	for i, name := range names {
		out[i] = r.commands[name]
	}
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Run validates inputs and executes the named command. Every failure is
// returned as *Error.
func (r *Registry) Run(ctx context.Context, name string, inputs map[string]any) (result any, err error) {
	r.mu.RLock()
	c, validator := r.commands[name], r.validators[name]
	r.mu.RUnlock()
	if c == nil {
		return nil, Errorf(CodeUnknownCommand, "no command named %q", name)
	}
	if inputs == nil {
		inputs = map[string]any{}
	}

	if r.observer != nil {
		var done func(error)
		ctx, done = r.observer.StartRun(ctx, name)
		defer func() { done(err) }()
	}

	if verr := validator.Validate(inputs); verr != nil {
		r.logger.DebugContext(ctx, "command rejected", slog.String("command", name), slog.String("error", verr.Error()))
		return nil, verr
	}

	start := time.Now()
	result, err = r.run(ctx, c, inputs)
	if err != nil {
		ce := AsError(err)
		r.logger.WarnContext(ctx, "command failed",
			slog.String("command", name),
			slog.String("code", string(ce.Code)),
			slog.String("error", ce.Message),
			slog.Duration("duration", time.Since(start)),
		)
		return nil, ce
	}
	r.logger.InfoContext(ctx, "command completed",
		slog.String("command", name),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// run shields the registry from panicking commands.
func (r *Registry) run(ctx context.Context, c Command, inputs map[string]any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = Errorf(CodeInternal, "command %s panicked: %v", c.Name(), p)
		}
	}()
	return c.Run(ctx, inputs)
}

// ToolDefinitions converts the named commands into LLM tool definitions.
// Unknown names are reported; agent-backed commands are never offered.
func (r *Registry) ToolDefinitions(names []string) ([]llm.ToolDefinition, error) {
	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		c := r.Get(name)
		if c == nil {
			return nil, fmt.Errorf("unknown tool command %q", name)
		}
		if IsAgentBacked(c) {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        c.Name(),
			Description: c.Description(),
			InputSchema: c.InputSchema(),
		})
	}
	return defs, nil
}

// PlainCommands returns the names of every command that is not agent-backed.
func (r *Registry) PlainCommands() []string {
	var names []string
	for _, c := range r.All() {
		if !IsAgentBacked(c) {
			names = append(names, c.Name())
		}
	}
	return names
}
