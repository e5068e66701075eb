// Package mcpserver exposes the command registry as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/oneline/internal/command"
)

const serverName = "oneline"

// Server hosts one MCP tool per registered command.
type Server struct {
	mcpServer *server.MCPServer
	commands  *command.Registry
	logger    *slog.Logger
	in        io.Reader
	out       io.Writer

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option configures the server.
type Option func(*Server)

// WithStdio replaces os.Stdin and os.Stdout.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.in = in
		s.out = out
	}
}

// New registers every command of reg as a tool.
func New(reg *command.Registry, version string, logger *slog.Logger, opts ...Option) (*Server, error) {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		mcpServer: server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
		commands:  reg,
		logger:    logger,
		in:        os.Stdin,
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, cmd := range reg.All() {
		tool, err := toolFor(cmd)
		if err != nil {
			return nil, err
		}
		s.mcpServer.AddTool(tool, s.handler(cmd.Name()))
	}
	return s, nil
}

// Start serves MCP over stdio until ctx is canceled, Stop is called or the
// input stream closes.
func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.logger.Info("mcp gateway serving on stdio", slog.Int("tools", s.commands.Len()))
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	err := stdio.Listen(ctx, s.in, s.out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("serve MCP: %w", err)
}

// Stop ends a running Start.
func (s *Server) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func toolFor(cmd command.Command) (mcp.Tool, error) {
	schema := cmd.InputSchema()
	if schema == nil {
		schema = command.Schema(nil)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("encoding input schema of %s: %w", cmd.Name(), err)
	}
	return mcp.NewToolWithRawSchema(cmd.Name(), cmd.Description(), raw), nil
}

// handler runs the named command. Command failures are tool errors carrying
// the JSON error body, never protocol errors.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		inputs := request.GetArguments()
		if inputs == nil {
			inputs = map[string]any{}
		}
		result, err := s.commands.Run(ctx, name, inputs)
		if err != nil {
			body, _ := json.Marshal(map[string]any{"error": command.AsError(err)})
			return mcp.NewToolResultError(string(body)), nil
		}
		out, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("encoding result", err), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}
