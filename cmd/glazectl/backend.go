package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docopt/docopt-go"

	"github.com/ceramicstudio/js-glaze-sub000/config"
	"github.com/ceramicstudio/js-glaze-sub000/docstore"
	"github.com/ceramicstudio/js-glaze-sub000/docstore/pebbleengine"
	"github.com/ceramicstudio/js-glaze-sub000/docstore/postgresengine"
)

const (
	backendPostgres = "postgres"
	backendPebble   = "pebble"
)

var errUnknownBackend = errors.New("unknown backend")

// backend is an opened document store plus what it takes to release it.
type backend struct {
	store  docstore.Store
	pebble *pebbleengine.DocumentStore
	close  func()
}

func dsn(opts docopt.Opts) string {
	if value := option(opts, "--dsn"); value != "" {
		return value
	}

	return config.PostgresDSN()
}

func openBackend(ctx context.Context, opts docopt.Opts, logger *slog.Logger, storeOptions ...postgresengine.Option) (*backend, error) {
	switch name := option(opts, "--backend"); name {
	case backendPebble:
		store, err := pebbleengine.Open(option(opts, "--data-dir"), pebbleengine.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		return &backend{
			store:  store,
			pebble: store,
			close: func() {
				if closeErr := store.Close(); closeErr != nil {
					logger.Error("closing pebble store failed", "error", closeErr.Error())
				}
			},
		}, nil

	case backendPostgres:
		store, closeFn, err := openPostgres(ctx, opts, logger, storeOptions...)
		if err != nil {
			return nil, err
		}

		return &backend{store: store, close: closeFn}, nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, name)
	}
}

// openPostgres connects to the primary and, when $GLAZE_POSTGRES_REPLICA_DSN is set, to a replica
// that serves eventually consistent reads.
func openPostgres(
	ctx context.Context,
	opts docopt.Opts,
	logger *slog.Logger,
	storeOptions ...postgresengine.Option,
) (*postgresengine.DocumentStore, func(), error) {
	pool, err := config.NewPGXPool(ctx, dsn(opts))
	if err != nil {
		return nil, nil, err
	}

	storeOptions = append([]postgresengine.Option{
		postgresengine.WithTableName(option(opts, "--table")),
		postgresengine.WithLogger(logger),
	}, storeOptions...)

	replicaDSN, hasReplica := config.PostgresReplicaDSN()
	if !hasReplica {
		store, storeErr := postgresengine.NewDocumentStoreFromPGXPool(pool, storeOptions...)
		if storeErr != nil {
			pool.Close()
			return nil, nil, storeErr
		}

		return store, pool.Close, nil
	}

	replica, err := config.NewPGXPool(ctx, replicaDSN)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	store, err := postgresengine.NewDocumentStoreFromPGXPoolWithReplica(pool, replica, storeOptions...)
	if err != nil {
		pool.Close()
		replica.Close()
		return nil, nil, err
	}

	return store, func() {
		pool.Close()
		replica.Close()
	}, nil
}
