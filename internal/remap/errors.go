package remap

import (
	"errors"
	"fmt"

	"mbmigrate/internal/core"
	"mbmigrate/internal/metabase"
)

var (
	// ErrUnresolved is wrapped by every target resolution failure.
	ErrUnresolved = errors.New("unresolved")
	// ErrNoTableMapping means the mapping file has no entry for a source table.
	ErrNoTableMapping = errors.New("no table mapping")
	// ErrTableMissing means a mapped table is not part of the target database.
	ErrTableMissing = errors.New("target table missing")
	// ErrColumnMissing means the target table has no column of that name.
	ErrColumnMissing = errors.New("target column missing")
	// ErrVirtualTable means the source is a saved question, not a table.
	ErrVirtualTable = errors.New("saved question used as source table")
	// ErrNotStructured is returned for cards without a structured query.
	ErrNotStructured = errors.New("card has no structured query")
)

// LookupError is returned by the IdentityResolver when a source table or
// field cannot be named.
type LookupError struct {
	Kind string
	ID   string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// NotFound reports whether the lookup failed because the item does not exist,
// as opposed to the metadata service being unavailable.
func (e *LookupError) NotFound() bool {
	return errors.Is(e.Err, metabase.ErrNotFound) || errors.Is(e.Err, ErrVirtualTable)
}

// ReasonOf classifies a resolution error.
func ReasonOf(err error) core.Reason {
	var lookupErr *LookupError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &lookupErr):
		if lookupErr.NotFound() {
			return core.ReasonSourceUnknown
		}
		return core.ReasonLookupFailed
	case errors.Is(err, ErrNoTableMapping):
		return core.ReasonNoTableMapping
	case errors.Is(err, ErrTableMissing):
		return core.ReasonTargetTableMissing
	case errors.Is(err, ErrColumnMissing):
		return core.ReasonColumnMissing
	default:
		return core.ReasonLookupFailed
	}
}
