// Package httpapi exposes the command registry over HTTP.
//
// Security:
//   - API key authentication on /v1 when keys are configured (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - All command runs logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/oneline/internal/agentcmd"
	"github.com/jkaninda/oneline/internal/command"
	"github.com/jkaninda/oneline/internal/observability"
	"github.com/jkaninda/oneline/internal/ratelimit"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → user ID. Empty = /v1 is open.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.
	Version        string
	RateLimit      ratelimit.Config // Per-user limit on /v1. Zero = unlimited.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config   Config
	commands *command.Registry
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	server   *http.Server
	okapi    *okapi.Okapi
}

// NewGateway creates an HTTP API gateway over reg.
func NewGateway(cfg Config, reg *command.Registry, logger *slog.Logger) *Gateway {
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = defaultMaxRequestSize
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Gateway{
		config:   cfg,
		commands: reg,
		limiter:  ratelimit.New(cfg.RateLimit),
		logger:   logger,
		okapi:    okapi.New(okapi.WithMaxMultipartMemory(cfg.MaxRequestSize)),
	}
}

// Start registers the routes, launches the HTTP server and blocks until it
// exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	g.routes()

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // agent-backed commands can take a while
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting",
		slog.String("addr", g.config.ListenAddr),
		slog.Bool("auth", len(g.config.APIKeys) > 0),
	)
	err := g.okapi.StartServer(g.server)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

func (g *Gateway) routes() {
	observe := observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer)

	bodyLimit := okapi.BodyLimit{MaxBytes: g.config.MaxRequestSize}.Middleware

	v1 := g.okapi.Group("/v1", chain(observe, g.authenticate, g.rateLimit))
	v1.Get("/commands", g.handleListCommands,
		okapi.DocSummary("List registered commands"),
		okapi.DocTags("Commands"),
		okapi.DocResponse([]CommandInfo{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	v1.Get("/commands/{name}", g.handleDescribeCommand,
		okapi.DocSummary("Describe a command and its input schema"),
		okapi.DocTags("Commands"),
		okapi.DocPathParam("name", "string", "Command name"),
		okapi.DocResponse(CommandInfo{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	v1.Post("/commands/{name}", bodyLimit(g.handleRunCommand),
		okapi.DocSummary("Run a command with a JSON object of inputs"),
		okapi.DocTags("Commands"),
		okapi.DocPathParam("name", "string", "Command name"),
		okapi.DocRequestBody(map[string]any{}),
		okapi.DocResponse(RunResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusUnprocessableEntity, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
		okapi.DocResponse(http.StatusServiceUnavailable, ErrorBody{}),
	)
	v1.Post("/ask", bodyLimit(g.handleAsk),
		okapi.DocSummary("Ask the agent to accomplish a goal using the commands"),
		okapi.DocTags("Agent"),
		okapi.DocRequestBody(AskRequest{}),
		okapi.DocResponse(RunResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusServiceUnavailable, ErrorBody{}),
	)

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", observe(g.handleLiveness))
	g.okapi.Get("/readyz", observe(g.handleReadiness))
	if g.config.MetricsRegistry != nil {
		g.okapi.HandleStd("GET", g.config.MetricsPath,
			promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		version := g.config.Version
		if version == "" {
			version = "dev"
		}
		g.okapi.WithOpenAPIDocs(okapi.OpenAPI{Title: "oneline", Version: version})
	}
}

// --- Handlers ---

// ErrorBody is the error response of every endpoint.
type ErrorBody struct {
	Error         *command.Error `json:"error"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// CommandInfo describes one registered command.
type CommandInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	AgentBacked bool           `json:"agent_backed"`
	InputSchema map[string]any `json:"input_schema"`
}

// RunResponse is the JSON response of a successful command run.
type RunResponse struct {
	Command       string `json:"command"`
	Result        any    `json:"result"`
	CorrelationID string `json:"correlation_id"`
}

// AskRequest is the JSON body for POST /v1/ask.
type AskRequest struct {
	Goal string `json:"goal" required:"true" description:"What to accomplish"`
}

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleListCommands(c *okapi.Context) error {
	return c.OK(g.listCommands())
}

func (g *Gateway) handleDescribeCommand(c *okapi.Context) error {
	info, err := g.describeCommand(c.Param("name"))
	if err != nil {
		return c.JSON(err.Code.HTTPStatus(), ErrorBody{Error: err})
	}
	return c.OK(info)
}

// handleRunCommand binds the body as the inputs object. An empty body is an
// empty object.
func (g *Gateway) handleRunCommand(c *okapi.Context) error {
	var inputs map[string]any
	if err := c.BindJSON(&inputs); err != nil && !errors.Is(err, io.EOF) {
		return c.JSON(http.StatusBadRequest, ErrorBody{
			Error:         command.Errorf(command.CodeInvalidInput, "request body must be a JSON object: %v", err),
			CorrelationID: uuid.NewString(),
		})
	}
	status, body := g.run(c.Context(), c.GetString("userID"), c.Param("name"), inputs)
	return c.JSON(status, body)
}

func (g *Gateway) handleAsk(c *okapi.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorBody{Error: command.InvalidInput("goal", "is required")})
	}
	status, body := g.ask(c.Context(), c.GetString("userID"), req)
	return c.JSON(status, body)
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}
	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if !status.OK() {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Core ---

func (g *Gateway) listCommands() []CommandInfo {
	all := g.commands.All()
	out := make([]CommandInfo, len(all))
	for i, cmd := range all {
		out[i] = info(cmd)
	}
	return out
}

func (g *Gateway) describeCommand(name string) (CommandInfo, *command.Error) {
	cmd := g.commands.Get(name)
	if cmd == nil {
		return CommandInfo{}, command.Errorf(command.CodeUnknownCommand, "no command named %q", name)
	}
	return info(cmd), nil
}

func (g *Gateway) ask(ctx context.Context, userID string, req AskRequest) (int, any) {
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		return http.StatusBadRequest, ErrorBody{Error: command.InvalidInput("goal", "is required")}
	}
	return g.run(ctx, userID, agentcmd.AccomplishGoalName, map[string]any{"goal": goal})
}

func (g *Gateway) run(ctx context.Context, userID, name string, inputs map[string]any) (int, any) {
	correlationID := uuid.NewString()
	g.logger.InfoContext(ctx, "http command",
		slog.String("command", name),
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
	)

	result, err := g.commands.Run(ctx, name, inputs)
	if err != nil {
		ce := command.AsError(err)
		return ce.Code.HTTPStatus(), ErrorBody{Error: ce, CorrelationID: correlationID}
	}
	return http.StatusOK, RunResponse{Command: name, Result: result, CorrelationID: correlationID}
}

func info(cmd command.Command) CommandInfo {
	return CommandInfo{
		Name:        cmd.Name(),
		Description: cmd.Description(),
		AgentBacked: command.IsAgentBacked(cmd),
		InputSchema: cmd.InputSchema(),
	}
}

// --- Authentication ---

// authenticate validates the Bearer API key and stores the mapped user ID.
// Without configured keys every request passes as "anonymous".
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		userID, ok := g.authorize(c.Header("Authorization"))
		if !ok {
			return c.JSON(http.StatusUnauthorized, ErrorBody{
				Error: &command.Error{Code: "unauthorized", Message: "missing or invalid API key"},
			})
		}
		c.Set("userID", userID)
		return next(c)
	}
}

// rateLimit runs after authenticate; buckets are keyed by user ID.
func (g *Gateway) rateLimit(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if err := g.limit(c.GetString("userID")); err != nil {
			return c.JSON(http.StatusTooManyRequests, ErrorBody{Error: err})
		}
		return next(c)
	}
}

func (g *Gateway) limit(userID string) *command.Error {
	ok, wait := g.limiter.Allow(userID)
	if ok {
		return nil
	}
	return &command.Error{
		Code:    "rate_limited",
		Message: fmt.Sprintf("rate limit exceeded, retry in %s", wait.Round(time.Second)),
	}
}

func (g *Gateway) authorize(header string) (string, bool) {
	if len(g.config.APIKeys) == 0 {
		return "anonymous", true
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	apiKey := strings.TrimPrefix(header, "Bearer ")

	userID := ""
	for key, user := range g.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			userID = user
		}
	}
	return userID, userID != ""
}

// chain composes middlewares; the first one is outermost.
func chain(mws ...okapi.Middleware) okapi.Middleware {
	return func(next okapi.HandlerFunc) okapi.HandlerFunc {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
