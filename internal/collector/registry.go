package collector

import (
	"github.com/rotisserie/eris"

	"github.com/presson-ventures/discovery-cli/internal/fetcher"
)

// Registry maps collector names to their implementations.
type Registry struct {
	collectors map[string]Collector
	order      []string // insertion order for deterministic iteration
}

// NewRegistry creates a registry populated with all built-in collectors.
func NewRegistry(f fetcher.Fetcher) *Registry {
	r := &Registry{
		collectors: make(map[string]Collector),
	}

	// Authoritative registries
	r.Register(NewSECEdgar(f))
	r.Register(NewCompaniesHouse(f))
	r.Register(NewUSPTO(f))

	// Developer and infrastructure activity
	r.Register(NewGitHub(f))
	r.Register(NewGitHubActivity(f))
	r.Register(NewDomainWhois(f))

	// Launch and hiring chatter
	r.Register(NewHackerNews(f))
	r.Register(NewProductHunt(f))
	r.Register(NewJobPostings(f))
	r.Register(NewArxiv(f))

	return r
}

// Register adds a collector to the registry.
func (r *Registry) Register(c Collector) {
	name := c.Name()
	r.collectors[name] = c
	r.order = append(r.order, name)
}

// Get returns a collector by name.
func (r *Registry) Get(name string) (Collector, error) {
	c, ok := r.collectors[name]
	if !ok {
		return nil, eris.Errorf("collector: unknown collector %q", name)
	}
	return c, nil
}

// Select returns the named collectors, or all registered ones when names
// is empty, in registration order.
func (r *Registry) Select(names []string) ([]Collector, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	var result []Collector
	for _, name := range names {
		c, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

// All returns all collectors in registration order.
func (r *Registry) All() []Collector {
	result := make([]Collector, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.collectors[name])
	}
	return result
}

// AllNames returns all registered collector names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
