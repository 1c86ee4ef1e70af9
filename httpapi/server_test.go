package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceramicstudio/js-glaze-sub000/datastore"
	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
	"github.com/ceramicstudio/js-glaze-sub000/docstore"
	"github.com/ceramicstudio/js-glaze-sub000/docstore/pebbleengine"
	"github.com/ceramicstudio/js-glaze-sub000/httpapi"
	"github.com/ceramicstudio/js-glaze-sub000/testutil/spies"
)

// failingIndex answers every call with err.
type failingIndex struct {
	err error
}

func (f failingIndex) Entries(context.Context, string) (datastore.Entries, error) {
	return nil, f.err
}

func (f failingIndex) Get(context.Context, string, string) (json.RawMessage, error) {
	return nil, f.err
}

func (f failingIndex) Set(context.Context, string, string, json.RawMessage) error {
	return f.err
}

func (f failingIndex) Merge(context.Context, string, datastore.Entries) error {
	return f.err
}

func (f failingIndex) Remove(context.Context, string, string) error {
	return f.err
}

func newTestServer(t *testing.T, options ...httpapi.Option) *httptest.Server {
	t.Helper()

	store, err := pebbleengine.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	index, err := datastore.NewIndexStore(store)
	require.NoError(t, err)

	server := httptest.NewServer(httpapi.NewServer(index, options...))
	t.Cleanup(server.Close)

	return server
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(payload)
}

func Test_Server_Health(t *testing.T) {
	server := newTestServer(t)

	status, body := do(t, http.MethodGet, server.URL+"/health", "")

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func Test_Server_EntryLifecycle(t *testing.T) {
	// setup
	server := newTestServer(t)
	document := server.URL + "/documents/profiles"

	// act & assert
	status, _ := do(t, http.MethodPut, document+"/entries/alice", `{"age":31}`)
	assert.Equal(t, http.StatusNoContent, status)

	status, body := do(t, http.MethodGet, document+"/entries/alice", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"age":31}`, body)

	status, _ = do(t, http.MethodPatch, document, `{"bob":true,"carol":[1,2]}`)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = do(t, http.MethodGet, document, "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"alice":{"age":31},"bob":true,"carol":[1,2]}`, body)

	status, _ = do(t, http.MethodDelete, document+"/entries/carol", "")
	assert.Equal(t, http.StatusNoContent, status)

	status, body = do(t, http.MethodGet, document+"/entries/carol", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, datastore.ErrEntryNotFound.Error())
}

func Test_Server_EmptyDocument(t *testing.T) {
	server := newTestServer(t)

	status, body := do(t, http.MethodGet, server.URL+"/documents/fresh", "")

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{}`, body)
}

func Test_Server_RejectsInvalidInput(t *testing.T) {
	server := newTestServer(t)
	document := server.URL + "/documents/profiles"

	putStatus, putBody := do(t, http.MethodPut, document+"/entries/alice", `{not json`)
	patchArrayStatus, _ := do(t, http.MethodPatch, document, `[1,2]`)
	patchNullStatus, _ := do(t, http.MethodPatch, document, `null`)
	deleteStatus, _ := do(t, http.MethodDelete, document+"/entries/nobody", "")

	assert.Equal(t, http.StatusBadRequest, putStatus)
	assert.Contains(t, putBody, datastore.ErrInvalidEntryJSON.Error())
	assert.Equal(t, http.StatusBadRequest, patchArrayStatus)
	assert.Equal(t, http.StatusBadRequest, patchNullStatus)
	assert.Equal(t, http.StatusNotFound, deleteStatus)
}

func Test_Server_ErrorMapping(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "empty key", err: datastore.ErrEmptyEntryKey, status: http.StatusBadRequest},
		{name: "empty document name", err: docproxy.ErrEmptyDocumentName, status: http.StatusBadRequest},
		{name: "entry not found", err: errors.Join(docproxy.ErrMutationFailed, datastore.ErrEntryNotFound), status: http.StatusNotFound},
		{name: "conflict", err: errors.Join(docproxy.ErrMutationFailed, docstore.ErrConcurrencyConflict), status: http.StatusConflict},
		{name: "not an index", err: datastore.ErrDocumentNotAnIndex, status: http.StatusConflict},
		{name: "timeout", err: context.DeadlineExceeded, status: http.StatusGatewayTimeout},
		{name: "fetch failed", err: errors.Join(docproxy.ErrFetchingDocumentFailed, errors.New("db down")), status: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(httpapi.NewServer(failingIndex{err: tc.err}))
			defer server.Close()

			getStatus, body := do(t, http.MethodGet, server.URL+"/documents/profiles", "")
			putStatus, _ := do(t, http.MethodPut, server.URL+"/documents/profiles/entries/alice", `1`)

			assert.Equal(t, tc.status, getStatus)
			assert.Equal(t, tc.status, putStatus)
			assert.Contains(t, body, `"error"`)
		})
	}
}

func Test_Server_LogsRequests(t *testing.T) {
	// setup
	logSpy := spies.NewLogHandlerSpy(false)
	server := httptest.NewServer(httpapi.NewServer(
		failingIndex{err: errors.New("boom")},
		httpapi.WithLogger(slog.New(logSpy)),
	))
	defer server.Close()

	// act
	healthStatus, _ := do(t, http.MethodGet, server.URL+"/health", "")
	failedStatus, _ := do(t, http.MethodGet, server.URL+"/documents/profiles", "")

	// assert
	assert.Equal(t, http.StatusOK, healthStatus)
	assert.Equal(t, http.StatusInternalServerError, failedStatus)
	assert.Eventually(t, func() bool {
		return logSpy.HasLogWithMessage(slog.LevelInfo, "http request").WithAttribute("path", "/health").Assert()
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return logSpy.HasLogWithMessage(slog.LevelError, "http request failed").WithAttribute("path", "/documents/profiles").Assert()
	}, time.Second, 5*time.Millisecond)
}

func Test_Server_WithMetricsHandler(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("docproxy_mutations_total 1\n"))
	})
	server := newTestServer(t, httpapi.WithMetricsHandler(metrics))

	status, body := do(t, http.MethodGet, server.URL+"/metrics", "")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "docproxy_mutations_total")
}
