package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ceramicstudio/js-glaze-sub000/config"
	"github.com/ceramicstudio/js-glaze-sub000/datastore"
	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
	"github.com/ceramicstudio/js-glaze-sub000/docstore/postgresengine"
	"github.com/ceramicstudio/js-glaze-sub000/httpapi"
	"github.com/ceramicstudio/js-glaze-sub000/oteladapters"
	"github.com/ceramicstudio/js-glaze-sub000/promadapters"
)

const (
	instrumentationName = "github.com/ceramicstudio/js-glaze-sub000"
	requestTimeout      = 30 * time.Second
	readHeaderTimeout   = 10 * time.Second
	shutdownGracePeriod = 10 * time.Second
)

// telemetry holds the collectors shared by the proxies and the document store.
type telemetry struct {
	registry *prometheus.Registry
	metrics  docproxy.MetricsCollector
	tracing  docproxy.TracingCollector
	shutdown func(ctx context.Context) error
}

// newTelemetry always exposes Prometheus metrics; with an OTLP endpoint, proxy and store metrics
// and traces are exported over OTLP instead.
func newTelemetry(ctx context.Context, endpoint string) (*telemetry, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	t := &telemetry{
		registry: registry,
		metrics:  promadapters.NewMetricsCollector(registry),
		shutdown: func(context.Context) error { return nil },
	}

	if endpoint == "" {
		return t, nil
	}

	providers, err := config.NewObservabilityProviders(ctx, config.ObservabilityConfig{
		OTLPEndpoint:   endpoint,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, err
	}

	t.metrics = oteladapters.NewMetricsCollector(providers.MeterProvider.Meter(instrumentationName))
	t.tracing = oteladapters.NewTracingCollector(providers.TracerProvider.Tracer(instrumentationName))
	t.shutdown = providers.Shutdown

	return t, nil
}

func (t *telemetry) storeOptions() []postgresengine.Option {
	options := []postgresengine.Option{postgresengine.WithMetrics(t.metrics)}
	if t.tracing != nil {
		options = append(options, postgresengine.WithTracing(t.tracing))
	}

	return options
}

func (t *telemetry) proxyOptions(logger *slog.Logger) []docproxy.Option {
	options := []docproxy.Option{docproxy.WithLogger(logger), docproxy.WithMetrics(t.metrics)}
	if t.tracing != nil {
		options = append(options, docproxy.WithTracing(t.tracing))
	}

	return options
}

func serve(ctx context.Context, opts docopt.Opts, logger *slog.Logger) error {
	tel, err := newTelemetry(ctx, option(opts, "--otlp"))
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := tel.shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			logger.Error("shutting down telemetry failed", "error", shutdownErr.Error())
		}
	}()

	b, err := openBackend(ctx, opts, logger, tel.storeOptions()...)
	if err != nil {
		return err
	}
	defer b.close()

	if b.pebble != nil {
		tel.registry.MustRegister(promadapters.NewPebbleCollector(b.pebble))
	}

	index, err := datastore.NewIndexStore(b.store,
		datastore.WithProxyOptions(tel.proxyOptions(logger)...),
		datastore.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr: option(opts, "--addr"),
		Handler: httpapi.NewServer(index,
			httpapi.WithLogger(logger),
			httpapi.WithMetricsHandler(promhttp.HandlerFor(tel.registry, promhttp.HandlerOpts{})),
			httpapi.WithRequestTimeout(requestTimeout),
		),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	logger.Info("glazectl serving", "addr", server.Addr, "backend", option(opts, "--backend"))

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	logger.Info("glazectl shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGracePeriod)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
