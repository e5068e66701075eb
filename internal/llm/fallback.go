package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FallbackProvider sends each request down a chain of providers and returns
// the first success. Cancellation stops the chain.
type FallbackProvider struct {
	chain  []Provider
	logger *slog.Logger
}

// NewFallbackProvider panics on an empty chain.
func NewFallbackProvider(chain []Provider, logger *slog.Logger) *FallbackProvider {
	if len(chain) == 0 {
		panic("llm: fallback chain needs at least one provider")
	}
	return &FallbackProvider{chain: chain, logger: logger}
}

// SendMessage tries each provider in order. When all fail, the error joins
// every provider's failure.
func (f *FallbackProvider) SendMessage(ctx context.Context, req *Request) (*Response, error) {
	failures := make([]error, 0, len(f.chain))
	for i, p := range f.chain {
		resp, err := p.SendMessage(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.InfoContext(ctx, "request served by fallback provider",
					slog.String("provider", p.Name()),
					slog.Int("skipped", i),
				)
			}
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
		if i < len(f.chain)-1 {
			f.logger.WarnContext(ctx, "provider failed, falling back",
				slog.String("provider", p.Name()),
				slog.String("next", f.chain[i+1].Name()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil, fmt.Errorf("all %d providers failed: %w", len(f.chain), errors.Join(failures...))
}

// Name joins the chain, e.g. "anthropic>openai".
func (f *FallbackProvider) Name() string {
	names := make([]string, len(f.chain))
	for i, p := range f.chain {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

// Providers returns the chain in order.
func (f *FallbackProvider) Providers() []Provider { return f.chain }
