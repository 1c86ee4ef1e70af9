package docproxy

import (
	"context"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// FetcherFactory builds the Fetcher for the document with the given name.
type FetcherFactory[D any] func(name string) Fetcher[D]

// Registry owns one Proxy per document name and constructs them lazily on first use.
// Proxies of different names are fully independent and drain concurrently.
type Registry[D any] struct {
	factory  FetcherFactory[D]
	settings settings
	proxies  *xsync.MapOf[string, *Proxy[D]]
}

// NewRegistry creates a Registry. The options apply to every proxy it creates;
// each proxy is additionally named after its document.
func NewRegistry[D any](factory FetcherFactory[D], options ...Option) (*Registry[D], error) {
	if factory == nil {
		return nil, ErrNilFetcherFactory
	}

	s, err := buildSettings(options...)
	if err != nil {
		return nil, err
	}

	return &Registry[D]{
		factory:  factory,
		settings: s,
		proxies:  xsync.NewMapOf[string, *Proxy[D]](),
	}, nil
}

// Proxy returns the Proxy for name, creating it on first use.
// Concurrent first calls for the same name all receive the same instance.
func (r *Registry[D]) Proxy(name string) (*Proxy[D], error) {
	if name == "" {
		return nil, ErrEmptyDocumentName
	}

	proxy, _ := r.proxies.LoadOrCompute(name, func() *Proxy[D] {
		s := r.settings
		s.name = name

		return newProxy(r.factory(name), s)
	})

	return proxy, nil
}

// Get is a shortcut for Proxy(name) followed by Get.
func (r *Registry[D]) Get(ctx context.Context, name string) (D, error) {
	proxy, err := r.Proxy(name)
	if err != nil {
		var zero D
		return zero, err
	}

	return proxy.Get(ctx)
}

// Change is a shortcut for Proxy(name) followed by Change.
func (r *Registry[D]) Change(ctx context.Context, name string, mutation Mutation[D]) error {
	proxy, err := r.Proxy(name)
	if err != nil {
		return err
	}

	return proxy.Change(ctx, mutation)
}

// Names returns the sorted names of all proxies created so far.
func (r *Registry[D]) Names() []string {
	names := make([]string, 0, r.proxies.Size())
	r.proxies.Range(func(name string, _ *Proxy[D]) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)

	return names
}

// Len returns the number of proxies created so far.
func (r *Registry[D]) Len() int {
	return r.proxies.Size()
}
