// ABOUTME: Explicitly constructed provider registry with Init/Dispose lifecycle
// ABOUTME: Thread-safe registration and lookup; lifecycle fan-out runs on an errgroup

package ai

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Provider is the interface all chat completion providers implement.
type Provider interface {
	// Name returns the provider identifier used for registration.
	Name() string

	// Stream starts a streamed chat completion. The context controls
	// cancellation of both the request and the read loop.
	Stream(ctx context.Context, req *Request) *EventStream
}

// Initializer is implemented by providers that need setup before use.
type Initializer interface {
	Init(ctx context.Context) error
}

// Closer is implemented by providers that hold resources.
type Closer interface {
	Close() error
}

// ErrDuplicateProvider is returned when a name is registered twice.
var ErrDuplicateProvider = errors.New("provider already registered")

// Registry maps provider names to instances. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p under p.Name().
func (r *Registry) Register(p Provider) error {
	name := p.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
	}
	r.providers[name] = p
	return nil
}

// Provider returns the provider registered under name.
func (r *Registry) Provider(name string) (Provider, bool) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	return p, ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

func (r *Registry) snapshot() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// Init initializes every provider that implements Initializer, concurrently.
// The first failure cancels the others' context and is returned.
func (r *Registry) Init(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range r.snapshot() {
		ini, ok := p.(Initializer)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := ini.Init(gctx); err != nil {
				return fmt.Errorf("initializing provider %s: %w", p.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Dispose closes every provider that implements Closer and empties the
// registry. All providers are closed even if some fail; the errors are joined.
func (r *Registry) Dispose() error {
	r.mu.Lock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	clear(r.providers)
	r.mu.Unlock()

	var g errgroup.Group
	errs := make([]error, len(providers))
	for i, p := range providers {
		c, ok := p.(Closer)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := c.Close(); err != nil {
				errs[i] = fmt.Errorf("closing provider %s: %w", p.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
