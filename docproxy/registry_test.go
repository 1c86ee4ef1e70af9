package docproxy_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
	"github.com/ceramicstudio/js-glaze-sub000/testutil/spies"
)

type remoteSet struct {
	mu      sync.Mutex
	remotes map[string]*fakeRemote
	built   atomic.Int32
}

func newRemoteSet() *remoteSet {
	return &remoteSet{remotes: make(map[string]*fakeRemote)}
}

func (s *remoteSet) factory(name string) docproxy.Fetcher[doc] {
	s.built.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	remote, ok := s.remotes[name]
	if !ok {
		remote = newFakeRemote(doc{})
		s.remotes[name] = remote
	}

	return remote.fetch
}

func (s *remoteSet) remote(name string) *fakeRemote {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.remotes[name]
}

func Test_NewRegistry_WithNilFactory(t *testing.T) {
	registry, err := docproxy.NewRegistry[doc](nil)

	assert.Nil(t, registry)
	assert.ErrorIs(t, err, docproxy.ErrNilFetcherFactory)
}

func Test_NewRegistry_WithInvalidOption(t *testing.T) {
	registry, err := docproxy.NewRegistry(newRemoteSet().factory, docproxy.WithFetchTimeout(0))

	assert.Nil(t, registry)
	assert.ErrorIs(t, err, docproxy.ErrInvalidFetchTimeout)
}

func Test_Registry_Proxy_WithEmptyName(t *testing.T) {
	// setup
	registry, err := docproxy.NewRegistry(newRemoteSet().factory)
	require.NoError(t, err)

	// act
	proxy, proxyErr := registry.Proxy("")

	// assert
	assert.Nil(t, proxy)
	assert.ErrorIs(t, proxyErr, docproxy.ErrEmptyDocumentName)
	assert.Equal(t, 0, registry.Len())
}

func Test_Registry_Proxy_ReturnsTheSameInstanceForTheSameName(t *testing.T) {
	// setup
	set := newRemoteSet()
	registry, err := docproxy.NewRegistry(set.factory)
	require.NoError(t, err)

	// act
	first, err1 := registry.Proxy("profile")
	second, err2 := registry.Proxy("profile")
	other, err3 := registry.Proxy("settings")

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, err3)
	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, "profile", first.Name())
	assert.Equal(t, "settings", other.Name())
	assert.Equal(t, int32(2), set.built.Load())
}

func Test_Registry_Proxy_ConcurrentFirstUse_CreatesOneInstance(t *testing.T) {
	// setup
	set := newRemoteSet()
	registry, err := docproxy.NewRegistry(set.factory)
	require.NoError(t, err)

	const callers = 32
	proxies := make([]*docproxy.Proxy[doc], callers)

	// act
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			proxy, proxyErr := registry.Proxy("shared")
			assert.NoError(t, proxyErr)
			proxies[i] = proxy
		}(i)
	}
	wg.Wait()

	// assert
	for _, proxy := range proxies {
		assert.Same(t, proxies[0], proxy)
	}
	assert.Equal(t, int32(1), set.built.Load())
	assert.Equal(t, 1, registry.Len())
}

func Test_Registry_ChangeAndGet_AreRoutedByName(t *testing.T) {
	// setup
	ctx := context.Background()
	set := newRemoteSet()
	registry, err := docproxy.NewRegistry(set.factory)
	require.NoError(t, err)

	writeThrough := func(name, key string) docproxy.Mutation[doc] {
		return func(mutationCtx context.Context, current doc) (doc, error) {
			next, mutationErr := setKey(key, 1)(mutationCtx, current)
			set.remote(name).store(next)

			return next, mutationErr
		}
	}

	// act
	require.NoError(t, registry.Change(ctx, "a", writeThrough("a", "only-a")))
	require.NoError(t, registry.Change(ctx, "b", writeThrough("b", "only-b")))

	valueA, errA := registry.Get(ctx, "a")
	valueB, errB := registry.Get(ctx, "b")

	// assert
	assert.NoError(t, errA)
	assert.NoError(t, errB)
	assert.Equal(t, doc{"only-a": 1}, valueA)
	assert.Equal(t, doc{"only-b": 1}, valueB)
	assert.Equal(t, []string{"a", "b"}, registry.Names())
	assert.Equal(t, int32(2), set.remote("a").calls.Load())
	assert.Equal(t, int32(2), set.remote("b").calls.Load())
}

func Test_Registry_IndependentNames_DrainConcurrently(t *testing.T) {
	// setup
	ctx := context.Background()
	gate := make(chan struct{})
	registry, err := docproxy.NewRegistry(func(name string) docproxy.Fetcher[doc] {
		if name == "blocked" {
			return func(fetchCtx context.Context) (doc, error) {
				select {
				case <-gate:
				case <-fetchCtx.Done():
					return nil, fetchCtx.Err()
				}

				return doc{}, nil
			}
		}

		return newFakeRemote(doc{}).fetch
	})
	require.NoError(t, err)

	blocked := make(chan error, 1)
	go func() {
		blocked <- registry.Change(ctx, "blocked", setKey("a", 1))
	}()

	// act
	freeErr := registry.Change(ctx, "free", setKey("a", 1))

	// assert
	assert.NoError(t, freeErr, "a stalled document must not hold up another one")

	close(gate)
	assert.NoError(t, receive(t, blocked))
}

func Test_Registry_Change_WithEmptyName(t *testing.T) {
	// setup
	registry, err := docproxy.NewRegistry(newRemoteSet().factory)
	require.NoError(t, err)

	// act
	changeErr := registry.Change(context.Background(), "", setKey("a", 1))
	_, getErr := registry.Get(context.Background(), "")

	// assert
	assert.ErrorIs(t, changeErr, docproxy.ErrEmptyDocumentName)
	assert.ErrorIs(t, getErr, docproxy.ErrEmptyDocumentName)
}

func Test_Registry_ProxiesCarryTheSharedOptions(t *testing.T) {
	// setup
	metricsSpy := spies.NewMetricsCollectorSpy(true)
	registry, err := docproxy.NewRegistry(newRemoteSet().factory, docproxy.WithMetrics(metricsSpy))
	require.NoError(t, err)

	// act
	_, getErr := registry.Get(context.Background(), "profile")

	// assert
	assert.NoError(t, getErr)
	assert.True(t, metricsSpy.HasDurationRecord("docproxy_fetch_duration_seconds", map[string]string{
		"document": "profile",
		"phase":    "get",
	}))
}
