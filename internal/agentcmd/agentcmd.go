// Package agentcmd implements agent-backed commands: commands whose body is
// a tool-use conversation with an LLM that must end in a JSON object
// matching the command's result schema.
package agentcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jkaninda/oneline/internal/command"
	"github.com/jkaninda/oneline/internal/config"
	"github.com/jkaninda/oneline/internal/llm"
)

const (
	// DefaultMaxIterations bounds LLM turns when settings leave it unset.
	DefaultMaxIterations = 8

	maxToolOutputBytes = 32 * 1024
)

// Definition describes an agent-backed command.
type Definition struct {
	Name         string
	Description  string
	Instructions string
	Inputs       map[string]any // JSON Schema for inputs
	Result       map[string]any // JSON Schema the final answer must satisfy
	Tools        []string       // commands offered to the model
	AllTools     bool           // offer every plain command instead of Tools
}

// FromConfig converts a manifest agent command.
func FromConfig(ac config.AgentCommand) Definition {
	return Definition{
		Name:         ac.Name,
		Description:  ac.Description,
		Instructions: ac.Instructions,
		Inputs:       ac.Inputs,
		Result:       ac.Result,
		Tools:        ac.Tools,
	}
}

// Command runs a Definition against the registry it is registered in.
type Command struct {
	def      Definition
	result   *command.Validator
	resErr   error
	registry *command.Registry
	provider llm.Provider
	settings command.AgentSettings
	logger   *slog.Logger
}

// New builds an agent-backed command. deps.Provider may be nil; runs then
// fail with no_llm_provider.
func New(def Definition, reg *command.Registry, deps command.Deps) *Command {
	if def.Inputs == nil {
		def.Inputs = command.Schema(nil)
	}
	if def.Result == nil {
		def.Result = command.Schema(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	result, resErr := command.CompileSchema(def.Result)
	return &Command{
		def:      def,
		result:   result,
		resErr:   resErr,
		registry: reg,
		provider: deps.Provider,
		settings: deps.Agent,
		logger:   logger,
	}
}

func (c *Command) Name() string                { return c.def.Name }
func (c *Command) Description() string         { return c.def.Description }
func (c *Command) InputSchema() map[string]any { return c.def.Inputs }
func (c *Command) AgentBacked() bool           { return true }

// Err reports a result schema that did not compile.
func (c *Command) Err() error {
	if c.resErr != nil {
		return fmt.Errorf("agent command %s: result schema: %w", c.def.Name, c.resErr)
	}
	return nil
}

// Definition returns the command's definition.
func (c *Command) Definition() Definition { return c.def }

// Run hands the inputs to the model and returns the decoded result object.
func (c *Command) Run(ctx context.Context, inputs map[string]any) (any, error) {
	return c.Execute(ctx, inputs)
}

// Execute is Run with a typed result.
func (c *Command) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	if c.provider == nil {
		return nil, command.Errorf(command.CodeNoLLMProvider,
			"%s needs an LLM: set ANTHROPIC_API_KEY or OPENAI_API_KEY", c.def.Name)
	}

	toolDefs, err := c.registry.ToolDefinitions(c.toolNames())
	if err != nil {
		return nil, command.Wrap(command.CodeInternal, err.Error(), err)
	}

	payload, err := json.MarshalIndent(inputs, "", "  ")
	if err != nil {
		return nil, command.Wrap(command.CodeInvalidInput, "inputs are not JSON-encodable", err)
	}

	runID := uuid.NewString()
	logger := c.logger.With(slog.String("command", c.def.Name), slog.String("run_id", runID))

	history := []llm.Message{{
		Role:    llm.RoleUser,
		Content: "Inputs:\n" + string(payload),
	}}
	systemPrompt := c.systemPrompt()

	maxIter := c.settings.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	for iter := 0; iter < maxIter; iter++ {
		resp, err := c.provider.SendMessage(ctx, &llm.Request{
			SystemPrompt: systemPrompt,
			Messages:     history,
			MaxTokens:    c.settings.MaxTokens,
			Tools:        toolDefs,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, command.Wrap(command.CodeAgentFailed, "run cancelled", ctxErr)
			}
			return nil, command.Wrap(command.CodeAgentFailed, fmt.Sprintf("llm request failed: %v", err), err)
		}

		history = append(history, llm.Message{
			Role:          llm.RoleAssistant,
			ContentBlocks: resp.ContentBlocks,
		})

		if !resp.HasToolUse() {
			logger.DebugContext(ctx, "agent finished", slog.Int("iterations", iter+1))
			return c.decodeResult(resp.Content)
		}

		logger.InfoContext(ctx, "executing tool calls",
			slog.Int("iteration", iter+1),
			slog.Int("tool_calls", len(resp.ToolUseBlocks())),
		)
		history = append(history, llm.Message{
			Role:          llm.RoleUser,
			ContentBlocks: c.executeToolCalls(ctx, resp.ToolUseBlocks()),
		})
	}

	logger.WarnContext(ctx, "max tool-use iterations reached", slog.Int("max_iterations", maxIter))
	return nil, command.Errorf(command.CodeAgentFailed,
		"%s did not produce a result within %d iterations", c.def.Name, maxIter)
}

func (c *Command) toolNames() []string {
	if c.def.AllTools {
		return c.registry.PlainCommands()
	}
	return c.def.Tools
}

// executeToolCalls runs every tool_use block through the registry. Failures
// go back to the model as error results.
func (c *Command) executeToolCalls(ctx context.Context, blocks []llm.ContentBlock) []llm.ContentBlock {
	allowed := make(map[string]bool)
	for _, name := range c.toolNames() {
		allowed[name] = true
	}

	results := make([]llm.ContentBlock, 0, len(blocks))
	for _, block := range blocks {
		if !allowed[block.Name] {
			results = append(results, llm.ToolResultBlock(block.ID,
				fmt.Sprintf("Error: tool %q is not available", block.Name), true))
			continue
		}
		out, err := c.registry.Run(ctx, block.Name, block.Input)
		if err != nil {
			results = append(results, llm.ToolResultBlock(block.ID, "Error: "+err.Error(), true))
			continue
		}
		data, err := json.Marshal(out)
		if err != nil {
			results = append(results, llm.ToolResultBlock(block.ID, "Error: result is not JSON-encodable", true))
			continue
		}
		results = append(results, llm.ToolResultBlock(block.ID, truncate(string(data), maxToolOutputBytes), false))
	}
	return results
}

func (c *Command) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are executing the command ")
	sb.WriteString(c.def.Name)
	sb.WriteString(".\n")
	if c.def.Description != "" {
		sb.WriteString(c.def.Description)
		sb.WriteString("\n")
	}
	if c.def.Instructions != "" {
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(c.def.Instructions))
		sb.WriteString("\n")
	}
	schema, _ := json.MarshalIndent(c.def.Result, "", "  ")
	sb.WriteString("\nUse the available tools to gather what you need. ")
	sb.WriteString("When you are done, reply with a single JSON object and nothing else. ")
	sb.WriteString("It must match this JSON Schema:\n")
	sb.Write(schema)
	return sb.String()
}

func (c *Command) decodeResult(text string) (map[string]any, error) {
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return nil, command.Wrap(command.CodeAgentInvalidResult,
			fmt.Sprintf("%s: model reply has no JSON object", c.def.Name), err)
	}
	if err := c.Err(); err != nil {
		return nil, command.Wrap(command.CodeInternal, err.Error(), err)
	}
	if err := c.result.Validate(obj); err != nil {
		var ce *command.Error
		if errors.As(err, &ce) {
			return nil, &command.Error{
				Code:    command.CodeAgentInvalidResult,
				Message: "result " + ce.Message,
				Path:    ce.Path,
				Cause:   err,
			}
		}
		return nil, command.Wrap(command.CodeAgentInvalidResult, err.Error(), err)
	}
	return obj, nil
}

// ErrNoJSONObject is returned when text holds no decodable JSON object.
var ErrNoJSONObject = errors.New("no JSON object found")

// ExtractJSONObject returns the first JSON object embedded in text, ignoring
// surrounding prose and code fences.
func ExtractJSONObject(text string) (map[string]any, error) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var obj map[string]any
		if err := dec.Decode(&obj); err == nil {
			return obj, nil
		}
	}
	return nil, ErrNoJSONObject
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[output truncated]"
}

var _ command.AgentBacked = (*Command)(nil)
