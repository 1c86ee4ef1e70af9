package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/docopt/docopt-go"
	jsoniter "github.com/json-iterator/go"

	"github.com/ceramicstudio/js-glaze-sub000/datastore"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

var errPostgresOnly = errors.New("init-schema needs the postgres backend")

func initSchema(ctx context.Context, opts docopt.Opts, logger *slog.Logger) error {
	store, closeFn, err := openPostgres(ctx, opts, logger)
	if err != nil {
		return errors.Join(errPostgresOnly, err)
	}
	defer closeFn()

	if err = store.CreateSchema(ctx); err != nil {
		return err
	}

	logger.Info("schema created", "table", store.TableName())

	return nil
}

// withIndex opens the configured backend for the duration of fn.
func withIndex(ctx context.Context, opts docopt.Opts, logger *slog.Logger, fn func(index *datastore.IndexStore) error) error {
	b, err := openBackend(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer b.close()

	index, err := datastore.NewIndexStore(b.store, datastore.WithLogger(logger))
	if err != nil {
		return err
	}

	return fn(index)
}

func get(ctx context.Context, opts docopt.Opts, logger *slog.Logger, out io.Writer) error {
	document := option(opts, "<document>")
	key := option(opts, "<key>")

	return withIndex(ctx, opts, logger, func(index *datastore.IndexStore) error {
		var value any
		var err error

		if key == "" {
			value, err = index.Entries(ctx, document)
		} else {
			value, err = index.Get(ctx, document, key)
		}

		if err != nil {
			return err
		}

		return printJSON(out, value)
	})
}

func set(ctx context.Context, opts docopt.Opts, logger *slog.Logger) error {
	document := option(opts, "<document>")
	key := option(opts, "<key>")
	value := json.RawMessage(option(opts, "<value>"))

	return withIndex(ctx, opts, logger, func(index *datastore.IndexStore) error {
		return index.Set(ctx, document, key, value)
	})
}

func remove(ctx context.Context, opts docopt.Opts, logger *slog.Logger) error {
	document := option(opts, "<document>")
	key := option(opts, "<key>")

	return withIndex(ctx, opts, logger, func(index *datastore.IndexStore) error {
		return index.Remove(ctx, document, key)
	})
}

func printJSON(out io.Writer, value any) error {
	payload, err := codec.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	_, err = out.Write(append(payload, '\n'))

	return err
}
