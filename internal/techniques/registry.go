package techniques

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Registry holds the embedded techniques catalog.
type Registry struct {
	byID      map[string]Technique
	ordered   []Technique
	sentinels []string
	mu        sync.RWMutex
}

// NewRegistry creates a registry from the embedded YAML catalog.
func NewRegistry() (*Registry, error) {
	data, err := configFiles.ReadFile("config/techniques.yaml")
	if err != nil {
		return nil, fmt.Errorf("read techniques catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("unmarshal techniques catalog: %w", err)
	}

	r := &Registry{
		byID: make(map[string]Technique, len(catalog.Techniques)),
	}
	for _, t := range catalog.Techniques {
		if t.ID == "" {
			return nil, fmt.Errorf("technique with empty id in catalog")
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate technique id %q in catalog", t.ID)
		}
		r.byID[t.ID] = t
		r.ordered = append(r.ordered, t)
		r.sentinels = append(r.sentinels, t.ID)
	}
	r.sentinels = append(r.sentinels, catalog.ExtraRoutingTokens...)

	return r, nil
}

// Get returns the technique with the given id.
func (r *Registry) Get(id string) (Technique, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	return t, ok
}

// List returns all techniques in catalog order.
func (r *Registry) List() []Technique {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Technique, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// RoutingSentinels returns the backend's internal routing tokens: every
// technique id plus the routing-only extras. Assistant content equal to one
// of these is never user-facing text.
func (r *Registry) RoutingSentinels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.sentinels))
	copy(out, r.sentinels)
	return out
}
