package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/getkayan/kcasbin/rule"
	"go.uber.org/zap"
)

// ErrUnknownProvider is returned by Open for names nobody registered.
var ErrUnknownProvider = errors.New("store: unknown provider")

// Options are passed to an Opener.
type Options struct {
	Schema      rule.Schema
	AutoMigrate bool
	Logger      *zap.Logger
}

// Opener creates a store for a DSN.
type Opener func(ctx context.Context, dsn string, opts Options) (Store, error)

var (
	registryMu sync.RWMutex
	providers  = make(map[string]Opener)
)

func init() {
	Register("memory", func(ctx context.Context, dsn string, opts Options) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// Register adds a storage provider to the registry, replacing any previous
// provider with the same name.
func Register(name string, opener Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[name] = opener
}

// Providers lists the registered provider names.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates a store through the provider registered under name. When
// AutoMigrate is set and the store implements Migrator, the schema is created.
func Open(ctx context.Context, name, dsn string, opts Options) (Store, error) {
	registryMu.RLock()
	opener, ok := providers[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, name)
	}
	if opts.Schema.Table == "" {
		opts.Schema = rule.NewSchema("")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s, err := opener(ctx, dsn, opts)
	if err != nil {
		return nil, err
	}

	if m, ok := s.(Migrator); ok && opts.AutoMigrate {
		if err := m.AutoMigrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("store: migrate %q: %w", name, err)
		}
	}

	return s, nil
}
