package authtask

import (
	"sort"
	"sync"
)

// ProviderDescriptor describes an authentication provider known to the server.
type ProviderDescriptor struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	// Federated providers complete out of band and report back through the
	// event bus.
	Federated bool `json:"federated"`
	// Trusted providers authenticate from request headers and cannot be
	// driven through the API.
	Trusted bool `json:"trusted"`
}

// ProviderRegistry holds the registered provider descriptors.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderDescriptor
}

// NewProviderRegistry returns a registry seeded with providers.
func NewProviderRegistry(providers ...ProviderDescriptor) *ProviderRegistry {
	r := &ProviderRegistry{providers: map[string]ProviderDescriptor{}}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider. Descriptors without id are ignored.
func (r *ProviderRegistry) Register(p ProviderDescriptor) {
	if p.ID == "" {
		return
	}
	if p.Label == "" {
		p.Label = p.ID
	}
	r.mu.Lock()
	r.providers[p.ID] = p
	r.mu.Unlock()
}

// Get returns the provider with id.
func (r *ProviderRegistry) Get(id string) (ProviderDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// List returns the providers ordered by id.
func (r *ProviderRegistry) List() []ProviderDescriptor {
	r.mu.RLock()
	out := make([]ProviderDescriptor, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// resolveForAPI returns the provider usable through the API.
func (r *ProviderRegistry) resolveForAPI(id string) (ProviderDescriptor, error) {
	if id == "" {
		return ProviderDescriptor{}, newError(ErrProviderRequired, nil)
	}

	p, ok := r.Get(id)
	if !ok {
		return ProviderDescriptor{}, newError(ErrProviderNotFound, map[string]any{"provider": id})
	}
	if p.Trusted {
		return ProviderDescriptor{}, newError(ErrProviderTrusted, map[string]any{
			"provider": id,
			"label":    p.Label,
		})
	}
	return p, nil
}
