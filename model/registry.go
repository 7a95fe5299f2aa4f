package model

import (
	"errors"
	"slices"
	"sync"
)

// Factory builds a backend for cfg. credential is the secret resolved for the
// provider's CredentialType ("" when the provider needs none).
type Factory func(cfg Config, spec ProviderSpec, credential string) (Model, error)

// ProviderSpec registers one provider prefix.
type ProviderSpec struct {
	Name string

	// CredentialType is the key looked up in the run's credential map. Empty
	// means the provider needs no credential.
	CredentialType string

	// BaseURL overrides the backend endpoint (OpenAI-compatible providers).
	BaseURL string

	// DisableStreaming forces non-streaming calls even when an emitter is attached.
	DisableStreaming bool

	Factory Factory
}

// Registry maps provider prefixes to backend factories. It is safe for
// concurrent use; registration is expected at startup.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ProviderSpec
}

// NewRegistry creates a registry pre-populated with specs.
func NewRegistry(specs ...ProviderSpec) *Registry {
	r := &Registry{providers: make(map[string]ProviderSpec, len(specs))}
	for _, s := range specs {
		_ = r.Register(s)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(spec ProviderSpec) error {
	if spec.Name == "" {
		return errors.New("provider name is required")
	}
	if spec.Factory == nil {
		return errors.New("provider factory is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[spec.Name] = spec
	return nil
}

// Configure applies fn to a registered provider, e.g. to override its base URL.
func (r *Registry) Configure(name string, fn func(spec *ProviderSpec)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec, ok := r.providers[name]
	if !ok {
		return &UnsupportedProviderError{Provider: name, Known: r.namesLocked()}
	}
	fn(&spec)
	spec.Name = name
	r.providers[name] = spec
	return nil
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (ProviderSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.providers[name]
	return spec, ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// New validates cfg, selects the backend by the identifier's provider prefix
// and builds it. Failures match ErrConfiguration.
func (r *Registry) New(cfg Config, credentials map[string]string) (Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	provider, _, _ := ParseIdentifier(cfg.Identifier)

	spec, ok := r.Lookup(provider)
	if !ok {
		return nil, &UnsupportedProviderError{Provider: provider, Known: r.Names()}
	}

	var secret string
	if spec.CredentialType != "" {
		secret = credentials[spec.CredentialType]
		if secret == "" {
			return nil, &MissingCredentialError{Provider: provider, CredentialType: spec.CredentialType}
		}
	}

	m, err := spec.Factory(cfg, spec, secret)
	if err != nil {
		return nil, err
	}
	if spec.DisableStreaming {
		return nonStreaming{Model: m}, nil
	}
	return m, nil
}

// nonStreaming hides a backend's streaming capability.
type nonStreaming struct{ Model }

func (nonStreaming) SupportsStreaming() bool { return false }
