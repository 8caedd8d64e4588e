package algorithm

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
)

// Factory builds a configured algorithm from construction parameters. It
// should do all expensive or fallible setup (loading model files) eagerly,
// so configuration errors surface before any input is processed.
type Factory func(params Params) (Algorithm, error)

// Registration binds an algorithm's identity to its Factory.
type Registration struct {
	Info
	Factory Factory
}

// Registry maps algorithm names to factories.
//
// Lifecycle: Register during initialization, Freeze, then Create as needed,
// then Shutdown once at the end. The name table is read-only after Freeze.
type Registry struct {
	entries map[string]Registration
	frozen  bool

	mu      sync.Mutex
	closed  bool
	created []Algorithm
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register adds reg. Names are unique.
func (r *Registry) Register(reg Registration) error {
	if r.frozen {
		return fmt.Errorf("register %q: %w", reg.Name, ErrRegistryFrozen)
	}
	if reg.Name == "" {
		return errors.New("register: empty algorithm name")
	}
	if reg.Factory == nil {
		return fmt.Errorf("register %q: nil factory", reg.Name)
	}
	if _, dup := r.entries[reg.Name]; dup {
		return fmt.Errorf("register %q: already registered", reg.Name)
	}
	r.entries[reg.Name] = reg
	return nil
}

// Freeze ends initialization.
func (r *Registry) Freeze() { r.frozen = true }

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool { return r.frozen }

// Lookup returns the static info registered under name.
func (r *Registry) Lookup(name string) (Info, bool) {
	reg, ok := r.entries[name]
	return reg.Info, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Create resolves name and runs its factory with params.
func (r *Registry) Create(name string, params Params) (Algorithm, error) {
	reg, ok := r.entries[name]
	if !ok {
		return nil, &UnknownAlgorithmError{Name: name}
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("create %q: %w", name, ErrRegistryClosed)
	}

	if params == nil {
		params = Params{}
	}
	alg, err := reg.Factory(params)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}

	if _, ok := alg.(io.Closer); ok {
		r.mu.Lock()
		r.created = append(r.created, alg)
		r.mu.Unlock()
	}
	return alg, nil
}

// Shutdown closes every created instance that implements io.Closer, newest
// first, and marks the registry closed. Calling it twice is an error.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	r.closed = true

	var errs []error
	for i := len(r.created) - 1; i >= 0; i-- {
		c := r.created[i].(io.Closer)
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r.created[i].Info().Name, err))
		}
	}
	r.created = nil
	return errors.Join(errs...)
}
