package dlq

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/herald/id"
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("herald: abandoned job not found")

// Store defines the persistence contract for the abandoned-job log.
type Store interface {
	// Push appends an entry.
	Push(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries, newest first, optionally filtered.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ returns an entry by ID.
	GetDLQ(ctx context.Context, entryID id.ID) (*Entry, error)

	// Purge deletes entries abandoned before a threshold.
	Purge(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of entries.
	CountDLQ(ctx context.Context) (int64, error)
}
