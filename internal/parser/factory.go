package parser

import (
	"fmt"
	"sort"
	"sync"

	"invoicex/internal/config"
	"invoicex/internal/port"
)

// ProviderFactory creates an InvoiceExtractor from a provider config.
type ProviderFactory func(cfg *config.ParserProviderConfig) (port.InvoiceExtractor, error)

// registry of provider factories, populated by init() in each provider package.
var (
	providersMu sync.RWMutex
	providers   = map[string]ProviderFactory{}
)

// RegisterProvider registers a provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewExtractor creates an InvoiceExtractor from a provider config using the registered factory.
func NewExtractor(cfg *config.ParserProviderConfig) (port.InvoiceExtractor, error) {
	providersMu.RLock()
	factory, ok := providers[cfg.Provider]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown parser provider: %s", cfg.Provider)
	}
	return factory(cfg)
}

// NewFromConfig builds the extractor for the configured primary provider.
// Every provider call runs under policy; when a secondary provider is
// configured it takes over once the primary has failed.
func NewFromConfig(cfg *config.ParserConfig, policy RetryPolicy) (port.InvoiceExtractor, error) {
	primary, err := NewExtractor(&cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary provider: %w", err)
	}
	sec := cfg.SecondaryConfig()
	if sec == nil {
		return NewRetryingExtractor(primary, policy), nil
	}
	secondary, err := NewExtractor(sec)
	if err != nil {
		return nil, fmt.Errorf("secondary provider: %w", err)
	}
	return NewFallbackExtractor(
		[]port.InvoiceExtractor{
			NewRetryingExtractor(primary, policy),
			NewRetryingExtractor(secondary, policy),
		},
		[]string{cfg.Primary.Provider, sec.Provider},
	), nil
}
