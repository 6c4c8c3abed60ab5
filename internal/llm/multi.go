package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// MultiClient picks a provider per model name. Models without a route
// go to the fallback provider.
type MultiClient struct {
	providers map[string]Client
	routes    map[string]string
	fallback  string
}

// NewMultiClient creates a router whose unmapped models are served by
// the provider registered under fallback.
func NewMultiClient(fallback string) *MultiClient {
	return &MultiClient{
		providers: make(map[string]Client),
		routes:    make(map[string]string),
		fallback:  fallback,
	}
}

// AddProvider registers a client under a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.providers[name] = client
}

// AddModel routes model to a registered provider. Routing to a provider
// that was never added is a configuration error, e.g. an anthropic model
// without an API key.
func (m *MultiClient) AddModel(model, provider string) error {
	if _, ok := m.providers[provider]; !ok {
		return fmt.Errorf("model %q: provider %q not configured", model, provider)
	}
	m.routes[model] = provider
	return nil
}

// Provider reports which provider serves model.
func (m *MultiClient) Provider(model string) string {
	if p, ok := m.routes[model]; ok {
		return p
	}
	return m.fallback
}

// Chat forwards to the provider that serves model.
func (m *MultiClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts Options) (*ChatResponse, error) {
	name := m.Provider(model)
	client, ok := m.providers[name]
	if !ok {
		return nil, &ProviderError{Provider: name, Err: fmt.Errorf("no provider for model %q", model)}
	}
	return client.Chat(ctx, model, messages, tools, opts)
}

// Ping checks every provider that at least one route (or the fallback)
// depends on.
func (m *MultiClient) Ping(ctx context.Context) error {
	used := map[string]bool{m.fallback: true}
	for _, p := range m.routes {
		used[p] = true
	}
	names := make([]string, 0, len(used))
	for n := range used {
		names = append(names, n)
	}
	sort.Strings(names)

	var errs []error
	for _, n := range names {
		client, ok := m.providers[n]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: not configured", n))
			continue
		}
		if err := client.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}
