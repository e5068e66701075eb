package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/jkaninda/oneline/internal/persistence"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echo(name string) Command {
	return Func(name, "echo inputs", Schema(map[string]any{
		"text":  Property("string", "text to echo"),
		"count": Property("integer", ""),
	}, "text"), func(_ context.Context, inputs map[string]any) (any, error) {
		return inputs["text"], nil
	})
}

type agentStub struct{ Command }

func (agentStub) AgentBacked() bool { return true }

type recordingObserver struct {
	started  []string
	outcomes []error
}

func (o *recordingObserver) StartRun(ctx context.Context, command string) (context.Context, func(error)) {
	o.started = append(o.started, command)
	return ctx, func(err error) { o.outcomes = append(o.outcomes, err) }
}

func TestRegistryRegisterAndList(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(echo("Zeta"))
	reg.Register(echo("Alpha"))

	names := reg.List()
	if len(names) != 2 || names[0] != "Alpha" || names[1] != "Zeta" {
		t.Fatalf("List() = %v, want [Alpha Zeta]", names)
	}
	if reg.Get("Alpha") == nil {
		t.Error("Get(Alpha) returned nil")
	}
	if reg.Get("Missing") != nil {
		t.Error("Get(Missing) should be nil")
	}
	if all := reg.All(); len(all) != 2 || all[0].Name() != "Alpha" {
		t.Errorf("All() not sorted by name")
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(echo("Echo"))

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
		if !strings.Contains(fmt.Sprint(r), "Echo") {
			t.Errorf("panic message %v should name the command", r)
		}
	}()
	reg.Register(echo("Echo"))
}

func TestRegistryRun(t *testing.T) {
	obs := &recordingObserver{}
	reg := NewRegistry(testLogger(), WithObserver(obs))
	reg.Register(echo("Echo"))

	got, err := reg.Run(context.Background(), "Echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "hi" {
		t.Errorf("result = %v, want hi", got)
	}
	if len(obs.started) != 1 || obs.started[0] != "Echo" {
		t.Errorf("observer started = %v", obs.started)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != nil {
		t.Errorf("observer outcomes = %v", obs.outcomes)
	}
}

func TestRegistryRunErrors(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(echo("Echo"))
	reg.Register(Func("Missing", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, fmt.Errorf("loading: %w", persistence.ErrNotFound)
	}))
	reg.Register(Func("Boom", "", nil, func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	}))
	reg.Register(Func("Broken", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("disk on fire")
	}))

	tests := []struct {
		name    string
		command string
		inputs  map[string]any
		want    Code
		path    string
	}{
		{"unknown command", "Nope", nil, CodeUnknownCommand, ""},
		{"missing required", "Echo", nil, CodeInvalidInput, "text"},
		{"null required", "Echo", map[string]any{"text": nil}, CodeInvalidInput, "text"},
		{"wrong type", "Echo", map[string]any{"text": 3}, CodeInvalidInput, "text"},
		{"fractional integer", "Echo", map[string]any{"text": "x", "count": 1.5}, CodeInvalidInput, "count"},
		{"not found", "Missing", nil, CodeNotFound, ""},
		{"panic", "Boom", nil, CodeInternal, ""},
		{"plain error", "Broken", nil, CodeInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Run(context.Background(), tt.command, tt.inputs)
			var ce *Error
			if !errors.As(err, &ce) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if ce.Code != tt.want {
				t.Errorf("code = %s, want %s", ce.Code, tt.want)
			}
			if ce.Path != tt.path {
				t.Errorf("path = %q, want %q", ce.Path, tt.path)
			}
		})
	}
}

func TestRegistryRunObservesFailures(t *testing.T) {
	obs := &recordingObserver{}
	reg := NewRegistry(testLogger(), WithObserver(obs))
	reg.Register(echo("Echo"))

	_, _ = reg.Run(context.Background(), "Echo", map[string]any{})
	if len(obs.outcomes) != 1 || !errors.Is(obs.outcomes[0], ErrInvalidInput) {
		t.Errorf("observer outcomes = %v, want invalid_input", obs.outcomes)
	}
}

func TestToolDefinitions(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(echo("Echo"))
	reg.Register(agentStub{echo("Agent")})

	defs, err := reg.ToolDefinitions([]string{"Echo", "Agent"})
	if err != nil {
		t.Fatalf("ToolDefinitions: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "Echo" {
		t.Fatalf("defs = %+v, want only Echo", defs)
	}
	if defs[0].InputSchema["type"] != "object" {
		t.Errorf("schema type = %v", defs[0].InputSchema["type"])
	}

	if _, err := reg.ToolDefinitions([]string{"Nope"}); err == nil {
		t.Error("expected error for unknown tool")
	}

	plain := reg.PlainCommands()
	if len(plain) != 1 || plain[0] != "Echo" {
		t.Errorf("PlainCommands() = %v", plain)
	}
}

func TestValidateInputsEnumAndArrays(t *testing.T) {
	schema := Schema(map[string]any{
		"state":   Enum("", "open", "closed"),
		"tags":    Property("array", ""),
		"details": Property("object", ""),
		"active":  Property("boolean", ""),
	})

	if err := ValidateInputs(schema, map[string]any{"state": "open", "tags": []any{"a"}, "details": map[string]any{}, "active": true}); err != nil {
		t.Errorf("valid inputs rejected: %v", err)
	}
	if err := ValidateInputs(schema, map[string]any{"state": "pending"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("enum violation: got %v", err)
	}
	if err := ValidateInputs(schema, map[string]any{"tags": "a"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("array violation: got %v", err)
	}
	if err := ValidateInputs(schema, map[string]any{"extra": 1}); err != nil {
		t.Errorf("undeclared keys should pass: %v", err)
	}
}

func TestRequiredKeysFromDecodedSchema(t *testing.T) {
	schema := map[string]any{"type": "object", "required": []any{"a", "b"}}
	keys := RequiredKeys(schema)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("RequiredKeys = %v", keys)
	}
}

func TestDecodeInputs(t *testing.T) {
	var dst struct {
		Name  string  `json:"name"`
		Total float64 `json:"total"`
	}
	if err := DecodeInputs(map[string]any{"name": "x", "total": 12.5}, &dst); err != nil {
		t.Fatal(err)
	}
	if dst.Name != "x" || dst.Total != 12.5 {
		t.Errorf("decoded %+v", dst)
	}
	if err := DecodeInputs(map[string]any{"name": 3}, &dst); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid_input, got %v", err)
	}
}

func TestErrorHTTPStatus(t *testing.T) {
	tests := map[Code]int{
		CodeUnknownCommand:     http.StatusNotFound,
		CodeNotFound:           http.StatusNotFound,
		CodeInvalidInput:       http.StatusUnprocessableEntity,
		CodeAgentInvalidResult: http.StatusUnprocessableEntity,
		CodeInvalidState:       http.StatusConflict,
		CodeNoLLMProvider:      http.StatusServiceUnavailable,
		CodeAgentFailed:        http.StatusBadGateway,
		CodeInternal:           http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}

func TestAsErrorKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	ce := AsError(fmt.Errorf("wrapped: %w", cause))
	if ce.Code != CodeInternal || !errors.Is(ce, cause) {
		t.Errorf("AsError lost cause: %+v", ce)
	}
	if AsError(nil) != nil {
		t.Error("AsError(nil) should be nil")
	}
	if got := InvalidInput("amount", "must be positive").Error(); got != "invalid_input: amount: must be positive" {
		t.Errorf("Error() = %q", got)
	}
}

func TestCatalogLoad(t *testing.T) {
	var order []string
	mod := func(name string) Module {
		return NewModule(name, func(reg *Registry, deps Deps) error {
			order = append(order, name)
			reg.Register(echo(name + "Cmd"))
			return nil
		})
	}
	cat := NewCatalog(mod("b"), mod("a"))
	reg := NewRegistry(testLogger())

	if err := cat.Load(reg, Deps{Logger: testLogger()}, []string{"b", "a", "b"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Errorf("load order = %v, want [b a]", order)
	}
	if reg.Len() != 2 {
		t.Errorf("registered %d commands, want 2", reg.Len())
	}
	if names := cat.Names(); names[0] != "a" {
		t.Errorf("Names() = %v", names)
	}
}

func TestCatalogLoadFailures(t *testing.T) {
	failing := NewModule("bad", func(*Registry, Deps) error { return errors.New("no") })
	cat := NewCatalog(failing)

	if err := cat.Load(NewRegistry(testLogger()), Deps{}, []string{"unknown"}); err == nil || !strings.Contains(err.Error(), "unknown module") {
		t.Errorf("unknown module: got %v", err)
	}
	if err := cat.Load(NewRegistry(testLogger()), Deps{}, []string{"bad"}); err == nil || !strings.Contains(err.Error(), "loading module bad") {
		t.Errorf("failing module: got %v", err)
	}
}

func TestRegistryAddRejectsBadSchema(t *testing.T) {
	reg := NewRegistry(testLogger())
	bad := Func("Bad", "", Schema(map[string]any{
		"code": map[string]any{"type": "string", "pattern": "("},
	}), func(context.Context, map[string]any) (any, error) { return nil, nil })

	err := reg.Add(bad)
	if err == nil || !strings.Contains(err.Error(), "Bad") {
		t.Fatalf("Add = %v, want schema error naming the command", err)
	}
	if reg.Get("Bad") != nil {
		t.Error("command with a bad schema was registered")
	}
	if err := reg.Add(echo("Echo")); err != nil {
		t.Fatalf("Add(Echo): %v", err)
	}
	if err := reg.Add(echo("Echo")); err == nil {
		t.Error("expected duplicate error")
	}
}

func TestValidatorReportsOffendingKey(t *testing.T) {
	v, err := CompileSchema(Schema(map[string]any{
		"amount": Property("number", ""),
		"term":   Property("integer", ""),
		"code":   map[string]any{"type": "string", "pattern": "^[A-Z]{3}$"},
	}, "amount"))
	if err != nil {
		t.Fatalf("CompileSchema: %v", err)
	}

	tests := []struct {
		name   string
		inputs map[string]any
		path   string
		msg    string
	}{
		{"integer satisfies number", map[string]any{"amount": 5}, "", ""},
		{"null optional ignored", map[string]any{"amount": 1.5, "term": nil}, "", ""},
		{"missing required", map[string]any{}, "amount", "is required"},
		{"wrong type", map[string]any{"amount": "ten"}, "amount", "type"},
		{"pattern", map[string]any{"amount": 1, "code": "usd"}, "code", "pattern"},
		{"first key in order", map[string]any{"amount": 1, "term": 2.5, "code": "usd"}, "code", "pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.inputs)
			if tt.path == "" && tt.msg == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var ce *Error
			if !errors.As(err, &ce) || ce.Code != CodeInvalidInput {
				t.Fatalf("err = %v, want invalid_input", err)
			}
			if ce.Path != tt.path {
				t.Errorf("path = %q, want %q", ce.Path, tt.path)
			}
			if !strings.Contains(ce.Message, tt.msg) || strings.HasPrefix(ce.Message, "validating") {
				t.Errorf("message = %q, want it to mention %q", ce.Message, tt.msg)
			}
		})
	}
}

func TestValidateInputsBadSchemaIsInternal(t *testing.T) {
	err := ValidateInputs(map[string]any{"type": "string", "pattern": "("}, map[string]any{})
	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeInternal {
		t.Errorf("err = %v, want internal", err)
	}
}
