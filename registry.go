package graft

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// =====================================
// Provider Registry
// =====================================

// DefaultInstanceName is used when providers are registered or fetched
// without an explicit instance name.
const DefaultInstanceName = "default"

var (
	registryOnce     sync.Once
	registryInstance *ProviderRegistry
)

// ProviderRegistry holds named provider instances so that application code
// can share backends without threading them through every call site.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	factories map[string]ProviderFactory
}

// Registry returns the process-wide provider registry.
func Registry() *ProviderRegistry {
	registryOnce.Do(func() {
		registryInstance = &ProviderRegistry{
			providers: make(map[string]Provider),
			factories: make(map[string]ProviderFactory),
		}
	})
	return registryInstance
}

// Register stores a provider under an instance name, replacing any previous
// provider with that name.
func (r *ProviderRegistry) Register(instanceName string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[instanceName] = provider
}

// RegisterDefault stores a provider under the default instance name.
func (r *ProviderRegistry) RegisterDefault(provider Provider) {
	r.Register(DefaultInstanceName, provider)
}

// Get returns the provider registered under the instance name, or the
// default instance when no name is given.
func (r *ProviderRegistry) Get(instanceName ...string) (Provider, error) {
	name := DefaultInstanceName
	if len(instanceName) > 0 {
		name = instanceName[0]
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[name]
	if !ok {
		return nil, NewError(ErrorTypeConfiguration, fmt.Sprintf("no provider registered as %q", name))
	}
	return provider, nil
}

// MustGet is like Get but panics when the provider is missing.
func (r *ProviderRegistry) MustGet(instanceName ...string) Provider {
	provider, err := r.Get(instanceName...)
	if err != nil {
		panic(err)
	}
	return provider
}

// List returns the sorted registered instance names.
func (r *ProviderRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove closes and removes the provider registered under the instance name.
func (r *ProviderRegistry) Remove(instanceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	provider, ok := r.providers[instanceName]
	if !ok {
		return NewError(ErrorTypeConfiguration, fmt.Sprintf("no provider registered as %q", instanceName))
	}
	delete(r.providers, instanceName)
	return provider.Close()
}

// RemoveAll closes and removes every registered provider, returning the
// first close error encountered.
func (r *ProviderRegistry) RemoveAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, provider := range r.providers {
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.providers, name)
	}
	return firstErr
}

// HealthCheck runs Health on every registered provider and returns the
// results keyed by instance name.
func (r *ProviderRegistry) HealthCheck() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	results := make(map[string]error, len(r.providers))
	for name, provider := range r.providers {
		results[name] = provider.Health()
	}
	return results
}

// RegisterFactory stores a provider factory for use by Open. Later
// registrations win for drivers claimed by multiple factories.
func (r *ProviderRegistry) RegisterFactory(factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, driver := range factory.SupportedDrivers() {
		r.factories[strings.ToLower(driver)] = factory
	}
}

// Open creates a provider for config.Driver using the registered factories.
func (r *ProviderRegistry) Open(config Config) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(config.Driver)]
	r.mu.RUnlock()
	if !ok {
		return nil, NewError(ErrorTypeUnsupported, fmt.Sprintf("no factory for driver %q", config.Driver))
	}
	return factory.Create(config)
}
