// Command glazectl serves and edits index documents stored in postgres or pebble.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
)

const version = "0.1.0"

var errUnknownCommand = errors.New("unknown command")

const usage = `glazectl serves and edits serialized index documents.

Usage:
    glazectl serve [--addr=<addr>] [--backend=<backend>] [--dsn=<dsn>] [--table=<table>] [--data-dir=<dir>] [--otlp=<endpoint>] [--debug]
    glazectl init-schema [--dsn=<dsn>] [--table=<table>] [--debug]
    glazectl get <document> [<key>] [--backend=<backend>] [--dsn=<dsn>] [--table=<table>] [--data-dir=<dir>] [--debug]
    glazectl set <document> <key> <value> [--backend=<backend>] [--dsn=<dsn>] [--table=<table>] [--data-dir=<dir>] [--debug]
    glazectl remove <document> <key> [--backend=<backend>] [--dsn=<dsn>] [--table=<table>] [--data-dir=<dir>] [--debug]
    glazectl -h | --help
    glazectl --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --addr=<addr>          Listen address [default: :8080].
    --backend=<backend>    Document store, postgres or pebble [default: pebble].
    --dsn=<dsn>            Postgres DSN. Defaults to $GLAZE_POSTGRES_DSN.
    --table=<table>        Postgres table holding the documents [default: documents].
    --data-dir=<dir>       Pebble data directory [default: ./glaze-data].
    --otlp=<endpoint>      Export traces and metrics to this OTLP gRPC endpoint.
    --debug                Log at debug level.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(opts)

	if err = run(ctx, opts, logger); err != nil {
		logger.Error("glazectl failed", "error", err.Error())
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts docopt.Opts, logger *slog.Logger) error {
	switch {
	case flag(opts, "serve"):
		return serve(ctx, opts, logger)
	case flag(opts, "init-schema"):
		return initSchema(ctx, opts, logger)
	case flag(opts, "get"):
		return get(ctx, opts, logger, os.Stdout)
	case flag(opts, "set"):
		return set(ctx, opts, logger)
	case flag(opts, "remove"):
		return remove(ctx, opts, logger)
	default:
		return errUnknownCommand
	}
}

func newLogger(opts docopt.Opts) *slog.Logger {
	level := slog.LevelInfo
	if flag(opts, "--debug") {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func flag(opts docopt.Opts, key string) bool {
	value, _ := opts.Bool(key)
	return value
}

// option returns the string value of key, or "" when it was not given and has no default.
func option(opts docopt.Opts, key string) string {
	value, _ := opts.String(key)
	return value
}
