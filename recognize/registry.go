package recognize

import (
	"fmt"
	"sync"
)

// Info describes a registered engine.
type Info struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	SupportedFormats   []string `json:"supported_formats"`
	SupportedLanguages []string `json:"supported_languages"`
}

// Registry holds engines by name. The first engine registered becomes the
// default unless SetDefault overrides it. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	engines  []Engine
	byName   map[string]Engine
	fallback string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Engine)}
}

// Register adds an engine. Registering a name twice replaces the engine
// in place.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := e.Name()
	if _, ok := r.byName[name]; ok {
		for i, old := range r.engines {
			if old.Name() == name {
				r.engines[i] = e
			}
		}
	} else {
		r.engines = append(r.engines, e)
	}
	r.byName[name] = e
	if r.fallback == "" {
		r.fallback = name
	}
}

// SetDefault selects the default engine.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	r.fallback = name
	return nil
}

// Get returns the named engine.
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownEngine, name, r.namesLocked())
	}
	return e, nil
}

// Default returns the default engine.
func (r *Registry) Default() (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fallback == "" {
		return nil, ErrNoEngines
	}
	return r.byName[r.fallback], nil
}

// Resolve returns the named engine, or the default when name is empty.
func (r *Registry) Resolve(name string) (Engine, error) {
	if name == "" {
		return r.Default()
	}
	return r.Get(name)
}

// DefaultName returns the default engine's name, or "" when empty.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// List returns engine names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, len(r.engines))
	for i, e := range r.engines {
		names[i] = e.Name()
	}
	return names
}

// Info describes every engine in registration order.
func (r *Registry) Info() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, len(r.engines))
	for i, e := range r.engines {
		out[i] = Info{
			Name:               e.Name(),
			Description:        e.Description(),
			SupportedFormats:   e.SupportedFormats(),
			SupportedLanguages: e.SupportedLanguages(),
		}
	}
	return out
}
