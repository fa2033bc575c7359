package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Gateway routes requests to providers by model identifier. "anthropic/x"
// goes to the provider named anthropic with model x; a bare "x" goes to the
// default provider.
type Gateway struct {
	providers       map[string]Provider
	defaultProvider string
	defaultModel    string
	maxTokens       int
	timeout         time.Duration
	logger          *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) GatewayOption {
	return func(g *Gateway) { g.defaultModel = model }
}

// WithMaxTokens sets the max tokens used when a request names none.
func WithMaxTokens(n int) GatewayOption {
	return func(g *Gateway) { g.maxTokens = n }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a Gateway whose bare model names route to
// defaultProvider.
func NewGateway(defaultProvider string, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		providers:       make(map[string]Provider),
		defaultProvider: defaultProvider,
		maxTokens:       4096,
		logger:          slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Register adds or replaces a provider.
func (g *Gateway) Register(p Provider) {
	g.providers[p.Name()] = p
}

// Providers returns the registered provider names, sorted.
func (g *Gateway) Providers() []string {
	out := make([]string, 0, len(g.providers))
	for name := range g.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Route resolves a model identifier to its provider and provider-local
// model name.
func (g *Gateway) Route(model string) (Provider, string, error) {
	if model == "" {
		model = g.defaultModel
	}
	name, local := g.defaultProvider, model
	if prefix, rest, ok := strings.Cut(model, "/"); ok {
		name, local = prefix, rest
	}
	p, ok := g.providers[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	if local == "" {
		return nil, "", fmt.Errorf("llm: no model given for provider %s", name)
	}
	return p, local, nil
}

// Complete routes req and returns the provider's reply.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Response, error) {
	p, model, err := g.Route(req.Model)
	if err != nil {
		return nil, err
	}
	req.Model = model
	if req.MaxTokens <= 0 {
		req.MaxTokens = g.maxTokens
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.Complete(ctx, req)
	if err != nil {
		g.logger.Warn("llm: completion failed",
			slog.String("provider", p.Name()),
			slog.String("model", model),
			slog.String("error", err.Error()))
		return nil, err
	}
	resp.Provider = p.Name()
	g.logger.Debug("llm: completion",
		slog.String("provider", p.Name()),
		slog.String("model", resp.Model),
		slog.Int64("input_tokens", resp.Usage.InputTokens),
		slog.Int64("output_tokens", resp.Usage.OutputTokens),
		slog.Duration("took", time.Since(start)))
	return resp, nil
}
