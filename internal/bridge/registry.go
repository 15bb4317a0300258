package bridge

// Registry is the static set of configured providers. Adding a provider
// means adding a variant here; the aggregator never changes.
type Registry struct {
	providers []Provider
	byID      map[string]Provider
}

// NewRegistry builds a registry from the given providers, in order.
func NewRegistry(providers ...Provider) *Registry {
	byID := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byID[p.ID()] = p
	}
	return &Registry{providers: providers, byID: byID}
}

// All returns every registered provider.
func (r *Registry) All() []Provider {
	return r.providers
}

// Get returns a provider by id.
func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// ForRoute returns the providers whose static tables support the route.
func (r *Registry) ForRoute(route Route) []Provider {
	var supported []Provider
	for _, p := range r.providers {
		if p.SupportsRoute(route) {
			supported = append(supported, p)
		}
	}
	return supported
}
