package policy

import (
	"fmt"
	"sort"
	"time"
)

// Settings are the knobs a policy may read.
type Settings struct {
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Factory builds a policy from settings.
type Factory func(Settings) RestartPolicy

// Registry holds the known restart policies by name.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in policies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.Register("fixed", func(s Settings) RestartPolicy {
		return NewFixedDelay(s.RetryDelay)
	})
	r.Register("backoff", func(s Settings) RestartPolicy {
		return NewBackoff(s.RetryDelay, s.MaxRetryDelay)
	})

	return r
}

// Register adds or replaces a named policy.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Build returns the named policy configured with settings.
func (r *Registry) Build(name string, s Settings) (RestartPolicy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown restart policy: %s", name)
	}
	return f(s), nil
}

// List returns all policy names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
