// Package command defines the runtime's unit of work: named commands with a
// JSON Schema for inputs, grouped into modules that register them at boot.
package command

import (
	"context"
)

// Command is the interface every runnable command implements.
type Command interface {
	// Name returns the command's unique identifier (e.g. "CreateLoanFile").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// InputSchema returns a JSON Schema object describing the inputs.
	// It is also sent to the LLM when the command is offered as a tool.
	InputSchema() map[string]any

	// Run executes the command. Inputs were validated against InputSchema.
	Run(ctx context.Context, inputs map[string]any) (any, error)
}

// AgentBacked marks commands whose execution is delegated to an LLM.
// They are never offered to the LLM as tools.
type AgentBacked interface {
	Command
	AgentBacked() bool
}

// IsAgentBacked reports whether c delegates to an LLM.
func IsAgentBacked(c Command) bool {
	ab, ok := c.(AgentBacked)
	return ok && ab.AgentBacked()
}

// RunFunc is the body of a function-backed command.
type RunFunc func(ctx context.Context, inputs map[string]any) (any, error)

type funcCommand struct {
	name        string
	description string
	schema      map[string]any
	run         RunFunc
}

// Func adapts a function into a Command.
func Func(name, description string, schema map[string]any, run RunFunc) Command {
	if schema == nil {
		schema = Schema(nil)
	}
	return &funcCommand{name: name, description: description, schema: schema, run: run}
}

func (f *funcCommand) Name() string                { return f.name }
func (f *funcCommand) Description() string         { return f.description }
func (f *funcCommand) InputSchema() map[string]any { return f.schema }

func (f *funcCommand) Run(ctx context.Context, inputs map[string]any) (any, error) {
	return f.run(ctx, inputs)
}
