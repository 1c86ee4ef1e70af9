package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/ceramicstudio/js-glaze-sub000/datastore"
	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
)

const (
	maxBodyBytes = 1 << 20

	logMsgRequest       = "http request"
	logMsgRequestFailed = "http request failed"
	logAttrMethod       = "method"
	logAttrPath         = "path"
	logAttrStatus       = "status"
	logAttrRequestID    = "request_id"
	logAttrDurationMS   = "duration_ms"
	logAttrError        = "error"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Index is the part of *datastore.IndexStore the server needs.
type Index interface {
	Entries(ctx context.Context, name string) (datastore.Entries, error)
	Get(ctx context.Context, name, key string) (json.RawMessage, error)
	Set(ctx context.Context, name, key string, value json.RawMessage) error
	Merge(ctx context.Context, name string, updates datastore.Entries) error
	Remove(ctx context.Context, name, key string) error
}

// Logger is satisfied by *slog.Logger.
type Logger = docproxy.Logger

type server struct {
	index          Index
	logger         Logger
	metricsHandler http.Handler
	requestTimeout time.Duration
}

// Option defines a functional option for configuring the server.
type Option func(*server)

// WithLogger logs every request at Info level and every 5xx response at Error level.
func WithLogger(logger Logger) Option {
	return func(s *server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts handler, typically promhttp.Handler(), at GET /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *server) {
		s.metricsHandler = handler
	}
}

// WithRequestTimeout bounds how long a request waits for its read or write.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *server) {
		s.requestTimeout = timeout
	}
}

// NewServer returns the router serving index.
func NewServer(index Index, options ...Option) http.Handler {
	s := &server{index: index}
	for _, option := range options {
		option(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	if s.requestTimeout > 0 {
		r.Use(middleware.Timeout(s.requestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/documents/{name}", func(r chi.Router) {
		r.Get("/", s.getDocument)
		r.Patch("/", s.mergeDocument)
		r.Get("/entries/{key}", s.getEntry)
		r.Put("/entries/{key}", s.putEntry)
		r.Delete("/entries/{key}", s.deleteEntry)
	})

	return r
}

func (s *server) getDocument(w http.ResponseWriter, r *http.Request) {
	entries, err := s.index.Entries(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (s *server) mergeDocument(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	var updates datastore.Entries
	if err = codec.Unmarshal(body, &updates); err != nil || updates == nil {
		writeError(w, errors.Join(datastore.ErrInvalidEntryJSON, err))
		return
	}

	if err = s.index.Merge(r.Context(), chi.URLParam(r, "name"), updates); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) getEntry(w http.ResponseWriter, r *http.Request) {
	value, err := s.index.Get(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, value)
}

func (s *server) putEntry(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err = s.index.Set(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "key"), body); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Remove(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "key")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Join(errRequestBody, err)
	}

	return body, nil
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.logger == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		args := []any{
			logAttrMethod, r.Method,
			logAttrPath, r.URL.Path,
			logAttrStatus, ww.Status(),
			logAttrRequestID, middleware.GetReqID(r.Context()),
			logAttrDurationMS, time.Since(start).Milliseconds(),
		}

		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Error(logMsgRequestFailed, args...)
			return
		}

		s.logger.Info(logMsgRequest, args...)
	})
}
