// Package introspect contains a main introspecter interface which lets you read the
// current state of a target database. It returns core.Database with the tables and
// columns of the connected schema, or an error if connection/queries were unsuccessful.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"mbmigrate/internal/core"
)

type Introspecter interface {
	Introspect(ctx context.Context, db *sql.DB) (*core.Database, error)
}

var (
	registry = make(map[core.Dialect]func() Introspecter)
	mu       sync.RWMutex
)

// Register makes an introspecter available for dialect. It panics when the
// dialect is not one of core.SupportedDialects.
func Register(dialect core.Dialect, fn func() Introspecter) {
	if !core.IsValidDialect(string(dialect)) {
		panic(fmt.Sprintf("introspect: register of unknown dialect %q", dialect))
	}
	mu.Lock()
	defer mu.Unlock()
	registry[dialect] = fn
}

func NewIntrospecter(dialect core.Dialect) (Introspecter, error) {
	mu.RLock()
	fn, ok := registry[dialect]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported dialect %v (registered: %v)", dialect, Registered())
	}

	return fn(), nil
}

// Registered returns the dialects with an introspecter, sorted.
func Registered() []core.Dialect {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]core.Dialect, 0, len(registry))
	for d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
