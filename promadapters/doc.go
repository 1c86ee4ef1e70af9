// Package promadapters exposes docproxy and docstore metrics, and pebble engine statistics,
// through a Prometheus registry.
package promadapters
