// Package boot runs the one-shot startup sequence: resolve the deployment
// mode and dotenv layers, activate LLM capabilities, open the persistence
// driver and register domain commands.
package boot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jkaninda/oneline/internal/agentcmd"
	"github.com/jkaninda/oneline/internal/capability"
	"github.com/jkaninda/oneline/internal/command"
	"github.com/jkaninda/oneline/internal/config"
	"github.com/jkaninda/oneline/internal/llm"
	"github.com/jkaninda/oneline/internal/loan"
	"github.com/jkaninda/oneline/internal/observability"
	"github.com/jkaninda/oneline/internal/persistence"
	"github.com/jkaninda/oneline/internal/workspace"
)

// Options customise Boot. The zero value boots from the working directory
// with the default capability table.
type Options struct {
	// Dir holds the dotenv files and the default manifest. Default: ".".
	Dir string
	// Version is reported to tracing.
	Version string
	// Capabilities replaces capability.DefaultTable.
	Capabilities []capability.Capability
	// Lookup replaces os.LookupEnv for credential checks.
	Lookup capability.LookupFunc
	// Modules are added to the catalog next to the built-in domains.
	Modules []command.Module
	// Logger replaces the JSON logger built from settings.
	Logger *slog.Logger
	// LogOutput receives the default logger's output. Default: stderr.
	LogOutput io.Writer
}

// Runtime is everything Boot produced. Close releases it.
type Runtime struct {
	Mode          string
	DotenvFiles   []string
	Settings      *config.Settings
	Manifest      *config.Manifest
	Capabilities  *capability.Set
	Provider      llm.Provider // nil when no capability is active
	Driver        persistence.Driver
	Commands      *command.Registry
	Observability *observability.Observability
	Logger        *slog.Logger
	Workspace     *workspace.Workspace

	cleanups []func()
}

// Close runs all deferred cleanup functions in reverse order.
func (rt *Runtime) Close() {
	for i := len(rt.cleanups) - 1; i >= 0; i-- {
		rt.cleanups[i]()
	}
	rt.cleanups = nil
}

func (rt *Runtime) addCleanup(fn func()) {
	rt.cleanups = append(rt.cleanups, fn)
}

// BuiltinModules returns the domain modules this binary ships.
func BuiltinModules() []command.Module {
	return []command.Module{loan.Module(), agentcmd.Module()}
}

// Boot runs the startup stages in order. Any failure is fatal to the caller;
// resources opened before the failure are released.
func Boot(ctx context.Context, opts Options) (*Runtime, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	// Environment.
	mode, err := config.ResolveMode()
	if err != nil {
		return nil, fmt.Errorf("resolving mode: %w", err)
	}
	files, err := config.LoadDotenv(mode, dir)
	if err != nil {
		return nil, err
	}
	settings, err := config.LoadSettings(dir)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		out := opts.LogOutput
		if out == nil {
			out = os.Stderr
		}
		logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: settings.SlogLevel()}))
	}
	logger.Debug("environment resolved",
		slog.String("mode", mode),
		slog.Any("dotenv_files", files),
	)

	manifest, err := config.Load(settings.Manifest, settings.ManifestExplicit)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}

	rt := &Runtime{
		Mode:        mode,
		DotenvFiles: files,
		Settings:    settings,
		Manifest:    manifest,
		Logger:      logger,
	}
	if err := rt.start(ctx, opts); err != nil {
		rt.Close()
		return nil, err
	}

	logger.Info("boot complete",
		slog.String("mode", mode),
		slog.String("manifest", manifest.Source),
		slog.Any("capabilities", rt.Capabilities.Active()),
		slog.String("driver", rt.Driver.Name()),
		slog.Bool("multi_process", rt.Driver.MultiProcess()),
		slog.Int("commands", rt.Commands.Len()),
	)
	return rt, nil
}

func (rt *Runtime) start(ctx context.Context, opts Options) error {
	m, logger := rt.Manifest, rt.Logger

	ws, err := workspace.New(rt.Settings.DataDir)
	if err != nil {
		return fmt.Errorf("initializing workspace: %w", err)
	}
	rt.Workspace = ws

	// Observability.
	obs, err := observability.New(ctx, m.Observability, opts.Version, logger)
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}
	rt.Observability = obs
	rt.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down observability", slog.String("error", err.Error()))
		}
	})

	// Capabilities.
	table := opts.Capabilities
	if table == nil {
		table = capability.DefaultTable()
	}
	caps, err := capability.Load(ctx, table, opts.Lookup, m, logger)
	if err != nil {
		return err
	}
	rt.Capabilities = caps
	if p := caps.Chain(m.LLM.Default, m.LLM.FallbackEnabled(), logger); p != nil {
		if obs.Metrics != nil || obs.Tracer != nil {
			p = observability.NewInstrumentedProvider(p, obs.Metrics, obs.Tracer)
		}
		rt.Provider = p
	}

	// Persistence.
	driver, err := OpenDriver(m, ws, logger)
	if err != nil {
		return err
	}
	rt.Driver = driver
	rt.addCleanup(func() {
		if err := driver.Close(); err != nil {
			logger.Error("closing persistence driver", slog.String("error", err.Error()))
		}
	})
	obs.Health.AddCheck("persistence", pingCheck(driver))

	// Domains.
	rt.Commands = command.NewRegistry(logger,
		command.WithObserver(observability.NewCommandObserver(obs.Metrics, obs.Tracer)))
	catalog := command.NewCatalog(BuiltinModules()...)
	for _, mod := range opts.Modules {
		catalog.Add(mod)
	}
	deps := command.Deps{
		Driver:   driver,
		Provider: rt.Provider,
		Agent: command.AgentSettings{
			MaxIterations: m.Agent.MaxIterations,
			MaxTokens:     m.Agent.MaxTokens,
		},
		AgentCommands: m.AgentCommands,
		Logger:        logger,
	}
	if err := loadModules(catalog, rt.Commands, deps, m.Domains); err != nil {
		return err
	}

	known := make([]string, len(table))
	for i, c := range table {
		known[i] = c.Name
	}
	obs.Metrics.RecordBoot(known, caps.Active(), driver.Name(), driver.MultiProcess())
	return nil
}

// loadModules registers the manifest domains in order, then the agent-backed
// command extension point. Registration panics become errors.
func loadModules(catalog *command.Catalog, reg *command.Registry, deps command.Deps, domains []string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("registering commands: %v", p)
		}
	}()

	names := make([]string, 0, len(domains)+1)
	for _, d := range domains {
		if d != agentcmd.ModuleName {
			names = append(names, d)
		}
	}
	names = append(names, agentcmd.ModuleName)

	if err := catalog.Load(reg, deps, names); err != nil {
		return fmt.Errorf("loading domain modules: %w", err)
	}
	return nil
}
