// Package store defines the storage contract rule adapters are written against.
//
// A Store persists rule.Rule rows and offers four primitives: find by
// pattern, insert, delete by pattern, and a transaction scope. Backends
// register themselves by name so an adapter can be opened from configuration:
//
//   - memory: MemoryStore in this package
//   - sqlite, postgres, mysql: the kgorm package
//   - redis: the kredis package
package store

import (
	"context"
	"errors"

	"github.com/getkayan/kcasbin/rule"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store: closed")

// Store is the row-level persistence contract.
type Store interface {
	// Find returns every rule matching the pattern, in store order.
	Find(ctx context.Context, p rule.Pattern) ([]rule.Rule, error)

	// Insert stores the rules. Multi-row inserts are a single statement
	// where the backend supports it.
	Insert(ctx context.Context, rules ...rule.Rule) error

	// Delete removes every rule matching the pattern and returns how many
	// were removed. An empty pattern removes everything.
	Delete(ctx context.Context, p rule.Pattern) (int64, error)

	// Transaction runs fn against a store bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise,
	// returning fn's error unchanged.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection. Closing twice is a no-op.
	Close() error
}

// Migrator is implemented by stores that can create their own schema.
type Migrator interface {
	AutoMigrate(ctx context.Context) error
}
