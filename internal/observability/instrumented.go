package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/oneline/internal/llm"
)

// InstrumentedProvider wraps an llm.Provider with metrics and tracing.
type InstrumentedProvider struct {
	inner   llm.Provider
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedProvider wraps an LLM provider with observability.
func NewInstrumentedProvider(inner llm.Provider, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedProvider {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedProvider{inner: inner, metrics: metrics, tracer: tracer}
}

func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

// Unwrap returns the wrapped provider.
func (p *InstrumentedProvider) Unwrap() llm.Provider { return p.inner }

func (p *InstrumentedProvider) SendMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	provider := p.inner.Name()

	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.Start(ctx, "llm.send_message",
			trace.WithAttributes(
				attribute.String("llm.provider", provider),
				attribute.Int("llm.tools", len(req.Tools)),
			))
		defer span.End()
	}

	start := time.Now()
	resp, err := p.inner.SendMessage(ctx, req)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	if p.metrics != nil {
		p.metrics.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
		p.metrics.LLMRequestDuration.WithLabelValues(provider).Observe(duration)
		if resp != nil {
			p.metrics.LLMTokensUsed.WithLabelValues(provider, "input").Add(float64(resp.Usage.InputTokens))
			p.metrics.LLMTokensUsed.WithLabelValues(provider, "output").Add(float64(resp.Usage.OutputTokens))
		}
	}
	return resp, err
}

// CommandObserver records command runs. It satisfies command.Observer.
type CommandObserver struct {
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewCommandObserver builds an observer; both arguments may be nil.
func NewCommandObserver(metrics *MetricsCollector, ts *TracerSetup) *CommandObserver {
	return &CommandObserver{metrics: metrics, tracer: ts.Tracer()}
}

// coded matches errors carrying a machine-readable code.
type coded interface {
	ErrorCode() string
}

// StartRun opens a span for the command and returns the function that
// closes it and records the outcome.
func (o *CommandObserver) StartRun(ctx context.Context, command string) (context.Context, func(error)) {
	ctx, span := o.tracer.Start(ctx, "command.run",
		trace.WithAttributes(attribute.String("command.name", command)))
	start := time.Now()

	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "internal"
			var c coded
			if errors.As(err, &c) {
				outcome = c.ErrorCode()
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("command.outcome", outcome))
		span.End()

		if o.metrics != nil {
			o.metrics.CommandRunsTotal.WithLabelValues(command, outcome).Inc()
			o.metrics.CommandRunDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
		}
	}
}

var _ llm.Provider = (*InstrumentedProvider)(nil)
