package datastore_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceramicstudio/js-glaze-sub000/datastore"
	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
	"github.com/ceramicstudio/js-glaze-sub000/docstore"
	"github.com/ceramicstudio/js-glaze-sub000/docstore/pebbleengine"
	"github.com/ceramicstudio/js-glaze-sub000/testutil/spies"
)

// interferingStore saves a competing version before the next `remaining` saves,
// like another process writing the same document.
type interferingStore struct {
	docstore.Store
	remaining atomic.Int32
	saves     atomic.Int32
}

func (s *interferingStore) Save(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	s.saves.Add(1)

	if s.remaining.Add(-1) >= 0 {
		if err := s.writeExternally(ctx, doc.Name); err != nil {
			return docstore.Document{}, err
		}
	}

	return s.Store.Save(ctx, doc)
}

func (s *interferingStore) writeExternally(ctx context.Context, name string) error {
	current, err := s.Store.Load(ctx, name)
	if errors.Is(err, docstore.ErrDocumentNotFound) {
		current, err = docstore.NewDocument(name)
	}
	if err != nil {
		return err
	}

	var entries map[string]json.RawMessage
	if err = json.Unmarshal(current.Content, &entries); err != nil {
		return err
	}
	if entries == nil {
		entries = make(map[string]json.RawMessage)
	}
	entries[fmt.Sprintf("external-%d", current.Version)] = json.RawMessage(`true`)

	content, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	next, err := current.WithContent(content)
	if err != nil {
		return err
	}

	_, err = s.Store.Save(ctx, next)

	return err
}

// scriptedStore answers every Save with saveErr.
type scriptedStore struct {
	saveErr error
	saves   atomic.Int32
}

func (s *scriptedStore) Load(_ context.Context, _ string) (docstore.Document, error) {
	return docstore.Document{}, docstore.ErrDocumentNotFound
}

func (s *scriptedStore) Save(_ context.Context, _ docstore.Document) (docstore.Document, error) {
	s.saves.Add(1)
	return docstore.Document{}, s.saveErr
}

func (s *scriptedStore) Delete(_ context.Context, _ string) error {
	return nil
}

func openStore(t *testing.T) *pebbleengine.DocumentStore {
	t.Helper()

	store, err := pebbleengine.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	return store
}

func newIndexStore(t *testing.T, store docstore.Store, options ...datastore.Option) *datastore.IndexStore {
	t.Helper()

	index, err := datastore.NewIndexStore(store, options...)
	require.NoError(t, err)

	return index
}

func fastRetries(attempts int) datastore.Option {
	return datastore.WithRetryOptions(
		datastore.WithMaxAttempts(attempts),
		datastore.WithBaseDelay(time.Millisecond),
		datastore.WithJitterFactor(0),
	)
}

func Test_NewIndexStore_WithNilStore(t *testing.T) {
	index, err := datastore.NewIndexStore(nil)

	assert.Nil(t, index)
	assert.ErrorIs(t, err, datastore.ErrNilStore)
}

func Test_NewIndexStore_WithInvalidOptions(t *testing.T) {
	store := openStore(t)

	_, attemptsErr := datastore.NewIndexStore(store, datastore.WithRetryOptions(datastore.WithMaxAttempts(0)))
	_, delayErr := datastore.NewIndexStore(store, datastore.WithRetryOptions(datastore.WithBaseDelay(-time.Second)))
	_, jitterErr := datastore.NewIndexStore(store, datastore.WithRetryOptions(datastore.WithJitterFactor(1.5)))
	_, proxyErr := datastore.NewIndexStore(store, datastore.WithProxyOptions(docproxy.WithFetchTimeout(0)))

	assert.ErrorIs(t, attemptsErr, datastore.ErrInvalidMaxAttempts)
	assert.ErrorIs(t, delayErr, datastore.ErrNegativeBaseDelay)
	assert.ErrorIs(t, jitterErr, datastore.ErrInvalidJitterFactor)
	assert.ErrorIs(t, proxyErr, docproxy.ErrInvalidFetchTimeout)
}

func Test_IndexStore_NeverStoredDocument_IsAnEmptyIndex(t *testing.T) {
	// setup
	ctx := context.Background()
	index := newIndexStore(t, openStore(t))

	// act
	entries, entriesErr := index.Entries(ctx, "fresh")
	_, getErr := index.Get(ctx, "fresh", "missing")
	has, hasErr := index.Has(ctx, "fresh", "missing")

	// assert
	assert.NoError(t, entriesErr)
	assert.Empty(t, entries)
	assert.ErrorIs(t, getErr, datastore.ErrEntryNotFound)
	assert.NoError(t, hasErr)
	assert.False(t, has)
}

func Test_IndexStore_SetGetMergeRemove(t *testing.T) {
	// setup
	ctx := context.Background()
	store := openStore(t)
	index := newIndexStore(t, store)

	// act
	setErr := index.Set(ctx, "profiles", "alice", json.RawMessage(`{"age":31}`))
	mergeErr := index.Merge(ctx, "profiles", datastore.Entries{
		"bob":   json.RawMessage(`{"age":42}`),
		"carol": json.RawMessage(`"pending"`),
	})
	removeErr := index.Remove(ctx, "profiles", "carol")

	// assert
	require.NoError(t, setErr)
	require.NoError(t, mergeErr)
	require.NoError(t, removeErr)

	alice, err := index.Get(ctx, "profiles", "alice")
	require.NoError(t, err)
	assert.JSONEq(t, `{"age":31}`, string(alice))

	hasCarol, err := index.Has(ctx, "profiles", "carol")
	require.NoError(t, err)
	assert.False(t, hasCarol)

	entries, err := index.Entries(ctx, "profiles")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.JSONEq(t, `{"age":42}`, string(entries["bob"]))

	stored, err := store.Load(ctx, "profiles")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stored.Version, "every write is exactly one save")
	assert.JSONEq(t, `{"alice":{"age":31},"bob":{"age":42}}`, string(stored.Content))

	assert.Equal(t, []string{"profiles"}, index.Names())
}

func Test_IndexStore_Remove_MissingEntry(t *testing.T) {
	ctx := context.Background()
	index := newIndexStore(t, openStore(t))
	require.NoError(t, index.Set(ctx, "profiles", "alice", json.RawMessage(`1`)))

	err := index.Remove(ctx, "profiles", "bob")

	assert.ErrorIs(t, err, datastore.ErrEntryNotFound)
	assert.ErrorIs(t, err, docproxy.ErrMutationFailed)
}

func Test_IndexStore_ValidatesInput_WithoutTouchingTheStore(t *testing.T) {
	// setup
	ctx := context.Background()
	store := &scriptedStore{}
	index := newIndexStore(t, store)

	// act
	emptyKeyErr := index.Set(ctx, "profiles", "", json.RawMessage(`1`))
	invalidJSONErr := index.Set(ctx, "profiles", "alice", json.RawMessage(`{`))
	mergeErr := index.Merge(ctx, "profiles", datastore.Entries{"alice": json.RawMessage(`nope`)})
	removeErr := index.Remove(ctx, "profiles", "")
	_, getErr := index.Get(ctx, "profiles", "")

	// assert
	assert.ErrorIs(t, emptyKeyErr, datastore.ErrEmptyEntryKey)
	assert.ErrorIs(t, invalidJSONErr, datastore.ErrInvalidEntryJSON)
	assert.ErrorIs(t, mergeErr, datastore.ErrInvalidEntryJSON)
	assert.ErrorIs(t, removeErr, datastore.ErrEmptyEntryKey)
	assert.ErrorIs(t, getErr, datastore.ErrEmptyEntryKey)
	assert.Equal(t, int32(0), store.saves.Load())
}

func Test_IndexStore_WithEmptyDocumentName(t *testing.T) {
	index := newIndexStore(t, openStore(t))

	err := index.Set(context.Background(), "", "alice", json.RawMessage(`1`))

	assert.ErrorIs(t, err, docproxy.ErrEmptyDocumentName)
}

func Test_IndexStore_DocumentThatIsNotAnObject(t *testing.T) {
	// setup
	ctx := context.Background()
	store := openStore(t)
	index := newIndexStore(t, store)

	doc, err := docstore.NewDocument("list")
	require.NoError(t, err)
	doc, err = doc.WithContent([]byte(`[1,2,3]`))
	require.NoError(t, err)
	_, err = store.Save(ctx, doc)
	require.NoError(t, err)

	// act
	_, entriesErr := index.Entries(ctx, "list")
	setErr := index.Set(ctx, "list", "alice", json.RawMessage(`1`))

	// assert
	assert.ErrorIs(t, entriesErr, datastore.ErrDocumentNotAnIndex)
	assert.ErrorIs(t, setErr, datastore.ErrDocumentNotAnIndex)
	assert.ErrorIs(t, setErr, docproxy.ErrMutationFailed)

	unchanged, err := store.Load(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), unchanged.Version)
}

func Test_IndexStore_Set_RebasesOntoExternalWrites(t *testing.T) {
	// setup
	ctx := context.Background()
	logSpy := spies.NewLogHandlerSpy(false)
	store := &interferingStore{Store: openStore(t)}
	store.remaining.Store(2)
	index := newIndexStore(t, store, fastRetries(5), datastore.WithLogger(slog.New(logSpy)))

	// act
	err := index.Set(ctx, "profiles", "alice", json.RawMessage(`1`))

	// assert
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.saves.Load())

	entries, entriesErr := index.Entries(ctx, "profiles")
	require.NoError(t, entriesErr)
	assert.Len(t, entries, 3, "both external writes survive next to our own entry")
	assert.JSONEq(t, `1`, string(entries["alice"]))

	assert.True(t, logSpy.HasLog(slog.LevelInfo, "retrying index write after concurrency conflict"))
	assert.False(t, logSpy.HasLog(slog.LevelWarn, "index write gave up after concurrency conflicts"))
}

func Test_IndexStore_Set_GivesUpAfterMaxAttempts(t *testing.T) {
	// setup
	ctx := context.Background()
	logSpy := spies.NewLogHandlerSpy(false)
	store := &scriptedStore{saveErr: docstore.ErrConcurrencyConflict}
	index := newIndexStore(t, store, fastRetries(3), datastore.WithLogger(slog.New(logSpy)))

	// act
	err := index.Set(ctx, "profiles", "alice", json.RawMessage(`1`))

	// assert
	assert.ErrorIs(t, err, docstore.ErrConcurrencyConflict)
	assert.ErrorIs(t, err, docproxy.ErrMutationFailed)
	assert.Equal(t, int32(3), store.saves.Load())
	assert.True(t, logSpy.HasLog(slog.LevelWarn, "index write gave up after concurrency conflicts"))
}

func Test_IndexStore_Set_DoesNotRetryOtherErrors(t *testing.T) {
	// setup
	ctx := context.Background()
	diskFull := errors.New("disk full")
	store := &scriptedStore{saveErr: diskFull}
	index := newIndexStore(t, store, fastRetries(5))

	// act
	err := index.Set(ctx, "profiles", "alice", json.RawMessage(`1`))

	// assert
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, int32(1), store.saves.Load())
}

func Test_IndexStore_ConcurrentWritersToOneDocument(t *testing.T) {
	// setup
	ctx := context.Background()
	store := openStore(t)
	index := newIndexStore(t, store)

	const writers = 25

	// act
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, index.Set(ctx, "shared", fmt.Sprintf("key-%02d", i), json.RawMessage(fmt.Sprint(i))))
		}(i)
	}
	wg.Wait()

	// assert
	entries, err := index.Entries(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, entries, writers)

	stored, err := store.Load(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, uint64(writers), stored.Version, "serialized writes never conflict with each other")
}

func Test_IndexStore_WithProxyMetrics(t *testing.T) {
	// setup
	ctx := context.Background()
	metricsSpy := spies.NewMetricsCollectorSpy(true)
	index := newIndexStore(t, openStore(t), datastore.WithProxyOptions(docproxy.WithMetrics(metricsSpy)))

	// act
	require.NoError(t, index.Set(ctx, "profiles", "alice", json.RawMessage(`1`)))

	// assert
	assert.Equal(t, 1, metricsSpy.CountCounterRecords("docproxy_mutations_total", map[string]string{
		"document": "profiles",
		"status":   "success",
	}))
}
