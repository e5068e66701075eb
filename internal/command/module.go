package command

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/jkaninda/oneline/internal/config"
	"github.com/jkaninda/oneline/internal/llm"
	"github.com/jkaninda/oneline/internal/persistence"
)

// AgentSettings bounds agent-backed command runs.
type AgentSettings struct {
	MaxIterations int
	MaxTokens     int
}

// Deps is everything a module may need to build its commands. Nothing is
// global: the runtime hands the same Deps to every module.
type Deps struct {
	Driver        persistence.Driver
	Provider      llm.Provider // nil when no LLM capability is active
	Agent         AgentSettings
	AgentCommands []config.AgentCommand
	Logger        *slog.Logger
}

// Module registers a group of commands.
type Module interface {
	Name() string
	Register(reg *Registry, deps Deps) error
}

type moduleFunc struct {
	name     string
	register func(*Registry, Deps) error
}

// NewModule adapts a registration function into a Module.
func NewModule(name string, register func(*Registry, Deps) error) Module {
	return &moduleFunc{name: name, register: register}
}

func (m *moduleFunc) Name() string                           { return m.name }
func (m *moduleFunc) Register(reg *Registry, deps Deps) error { return m.register(reg, deps) }

// Catalog maps module names to modules available for loading.
type Catalog struct {
	modules map[string]Module
}

// NewCatalog creates a catalog. Panics on duplicate module names.
func NewCatalog(mods ...Module) *Catalog {
	c := &Catalog{modules: make(map[string]Module)}
	for _, m := range mods {
		c.Add(m)
	}
	return c
}

// Add makes m loadable by name.
func (c *Catalog) Add(m Module) {
	if _, exists := c.modules[m.Name()]; exists {
		panic("duplicate module: " + m.Name())
	}
	c.modules[m.Name()] = m
}

// Names lists the known modules, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.modules))
	for name := range c.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load registers the named modules in order. An unknown name or a failing
// Register stops loading.
func (c *Catalog) Load(reg *Registry, deps Deps, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		m, ok := c.modules[name]
		if !ok {
			return fmt.Errorf("unknown module %q (available: %v)", name, c.Names())
		}
		before := reg.Len()
		if err := m.Register(reg, deps); err != nil {
			return fmt.Errorf("loading module %s: %w", name, err)
		}
		if deps.Logger != nil {
			deps.Logger.Info("module loaded",
				slog.String("module", name),
				slog.Int("commands", reg.Len()-before),
			)
		}
	}
	return nil
}
