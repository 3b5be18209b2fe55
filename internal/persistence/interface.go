package persistence

import "errors"

// ErrKeyNotFound is returned when a key has no value in the engine.
var ErrKeyNotFound = errors.New("key not found")

// Entry is one key-value pair returned by a prefix scan.
type Entry struct {
	Key   string
	Value []byte
}

// Engine represents a persistence backend. Scan iterates in ascending key
// order, which the stores rely on for id-ordered walks.
type Engine interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	List(prefix string) ([]string, error)
	Scan(prefix string) ([]Entry, error)

	// NextSequence returns the next value of a named monotonic counter,
	// starting at 1. Values are never reused, even across restarts.
	NextSequence(name string) (uint64, error)

	Close() error
}

// Config holds persistence configuration
type Config struct {
	Type       string // "memory", "badger"
	DataDir    string
	SyncWrites bool
}
