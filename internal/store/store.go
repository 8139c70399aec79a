// Package store defines the capability set the sync engine consumes from the
// remote tree-structured data store: point reads and writes, live value and
// child-added listeners, ordered paginated queries and server-assigned key
// generation. Implementations include the in-process engine in memstore and
// the websocket adapter in wsstore.
package store

import (
	"context"
	"sync"
)

// Event is one emission of a live listener. For value listeners Value is the
// current snapshot of the observed node (nil if absent); for child-added
// listeners Key/Value describe the newly appended child.
type Event struct {
	Path  string
	Key   string
	Value any
}

// Child is one entry of a paginated query result, in query order.
type Child struct {
	Key   string
	Value any
}

// Order describes the ordering of a paginated query. An empty ChildField
// orders by key; Desc reverses the direction.
type Order struct {
	ChildField string
	Desc       bool
}

var (
	OrderByKey     = Order{}
	OrderByKeyDesc = Order{Desc: true}
)

// Store is the remote collection reference. All blocking operations take a
// context; listener attachment returns a Subscription that must be cancelled
// by its owner (handles are never shared across components).
type Store interface {
	// Read performs a one-shot point read. Returns common.ErrNotFound if
	// the node is absent.
	Read(ctx context.Context, path string) (any, error)

	// Write replaces the node at path with value.
	Write(ctx context.Context, path string, value any) error

	// Update merges the top-level keys of partial into the node at path.
	Update(ctx context.Context, path string, partial map[string]any) error

	// ObserveValue attaches a live listener delivering the current value
	// first, then every subsequent change of the node.
	ObserveValue(path string) (*Subscription, error)

	// ObserveChildAdded attaches a live listener delivering newly appended
	// children only, in the given order of appearance.
	ObserveChildAdded(path string, orderBy Order) (*Subscription, error)

	// QueryPage returns up to limit children of path in the given order,
	// starting strictly after the startAfter key when non-empty.
	QueryPage(ctx context.Context, path string, orderBy Order, startAfter string, limit int) ([]Child, error)

	// GenerateKey returns a fresh server-assigned child key for path. Keys
	// sort lexicographically in roughly chronological order.
	GenerateKey(path string) (string, error)
}

// Subscription is an exclusively-owned live listener handle. Cancel releases
// the backing listener resource; it is idempotent and must be invoked on
// scope exit.
type Subscription struct {
	// C delivers listener events until the subscription is cancelled, at
	// which point it is closed.
	C <-chan Event

	cancel func()
	once   sync.Once
}

// NewSubscription wraps an event channel and a release function.
func NewSubscription(c <-chan Event, cancel func()) *Subscription {
	return &Subscription{C: c, cancel: cancel}
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}
