// Package pebbleengine provides an embedded docstore.Store on top of a pebble key-value store.
//
// Documents live under the key "doc/<name>" as a JSON record holding the version, the time of
// the last save, and the content. Saves are compare-and-set on the version under a store-wide
// mutex and are committed with pebble.Sync.
//
// OpenInMemory backs the store with an in-memory filesystem, for tests and single-process demos.
package pebbleengine
