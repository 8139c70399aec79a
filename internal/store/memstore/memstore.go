// Package memstore is a full in-process implementation of the store.Store
// contract: a JSON-ish tree with live value and child-added listeners,
// ordered paginated queries and chronologically sortable generated keys. It
// backs unit tests and the development server.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lamberthyl/chatsync/internal/common"
	"github.com/lamberthyl/chatsync/internal/store"
)

// listenerBuffer bounds the per-listener event queue. A consumer that falls
// this far behind starts losing events rather than blocking writers.
const listenerBuffer = 64

type listenerKind int

const (
	listenValue listenerKind = iota
	listenChildAdded
)

type listener struct {
	kind listenerKind
	path []string
	ch   chan store.Event
	// Known direct child keys, used by child-added listeners to detect
	// appends regardless of how deep the triggering write was.
	seen map[string]bool
}

// Store is the in-memory tree engine. The zero value is not usable; call New.
type Store struct {
	mu        sync.Mutex
	root      map[string]any
	listeners map[*listener]bool
	keys      *store.KeyGenerator
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for generated keys.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
		s.keys = store.NewKeyGenerator(now)
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		root:      map[string]any{},
		listeners: map[*listener]bool{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.keys == nil {
		s.keys = store.NewKeyGenerator(s.now)
	}
	return s
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// node returns the value at parts, or nil if absent.
func (s *Store) node(parts []string) any {
	var cur any = s.root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[p]
		if !ok {
			return nil
		}
	}
	return cur
}

// ensureBranch walks to the parent of parts, materializing branch maps, and
// returns the parent map and the final key.
func (s *Store) ensureBranch(parts []string) (map[string]any, string) {
	cur := s.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	return cur, parts[len(parts)-1]
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return v
	}
}

func (s *Store) Read(_ context.Context, path string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.node(splitPath(path))
	if v == nil {
		return nil, common.ErrNotFound
	}
	return copyValue(v), nil
}

func (s *Store) Write(_ context.Context, path string, value any) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, key := s.ensureBranch(parts)
	parent[key] = copyValue(value)
	s.notify(parts)
	return nil
}

func (s *Store) Update(_ context.Context, path string, partial map[string]any) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, key := s.ensureBranch(parts)
	node, ok := parent[key].(map[string]any)
	if !ok {
		node = map[string]any{}
		parent[key] = node
	}
	for k, v := range partial {
		node[k] = copyValue(v)
	}
	s.notify(parts)
	return nil
}

// notify fans the mutation at parts out to listeners. Called with s.mu held.
func (s *Store) notify(parts []string) {
	for l := range s.listeners {
		switch l.kind {
		case listenValue:
			if pathsRelated(l.path, parts) {
				s.deliver(l, store.Event{
					Path:  strings.Join(l.path, "/"),
					Value: copyValue(s.node(l.path)),
				})
			}
		case listenChildAdded:
			if !isPrefix(l.path, parts) {
				continue
			}
			node, _ := s.node(l.path).(map[string]any)
			added := make([]string, 0, 1)
			for k := range node {
				if !l.seen[k] {
					l.seen[k] = true
					added = append(added, k)
				}
			}
			sort.Strings(added)
			for _, k := range added {
				s.deliver(l, store.Event{
					Path:  strings.Join(l.path, "/"),
					Key:   k,
					Value: copyValue(node[k]),
				})
			}
		}
	}
}

func (s *Store) deliver(l *listener, ev store.Event) {
	select {
	case l.ch <- ev:
	default:
		// Consumer too far behind: drop rather than block the writer.
	}
}

// pathsRelated reports whether one path is a segment-wise prefix of the
// other (a write anywhere in the subtree, or to an ancestor, changes the
// observed node).
func pathsRelated(a, b []string) bool {
	return isPrefix(a, b) || isPrefix(b, a)
}

func isPrefix(prefix, full []string) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i] != full[i] {
			return false
		}
	}
	return true
}

func (s *Store) ObserveValue(path string) (*store.Subscription, error) {
	parts := splitPath(path)
	l := &listener{
		kind: listenValue,
		path: parts,
		ch:   make(chan store.Event, listenerBuffer),
	}
	s.mu.Lock()
	s.listeners[l] = true
	// First emission is the current value (nil if the node is absent).
	s.deliver(l, store.Event{Path: path, Value: copyValue(s.node(parts))})
	s.mu.Unlock()
	return store.NewSubscription(l.ch, func() { s.remove(l) }), nil
}

func (s *Store) ObserveChildAdded(path string, _ store.Order) (*store.Subscription, error) {
	parts := splitPath(path)
	l := &listener{
		kind: listenChildAdded,
		path: parts,
		ch:   make(chan store.Event, listenerBuffer),
		seen: map[string]bool{},
	}
	s.mu.Lock()
	// Existing children are not replayed: the stream carries newly appended
	// children only.
	if node, ok := s.node(parts).(map[string]any); ok {
		for k := range node {
			l.seen[k] = true
		}
	}
	s.listeners[l] = true
	s.mu.Unlock()
	return store.NewSubscription(l.ch, func() { s.remove(l) }), nil
}

func (s *Store) remove(l *listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners[l] {
		delete(s.listeners, l)
		close(l.ch)
	}
}

func (s *Store) QueryPage(_ context.Context, path string, orderBy store.Order, startAfter string, limit int) ([]store.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, _ := s.node(splitPath(path)).(map[string]any)
	children := make([]store.Child, 0, len(node))
	for k, v := range node {
		children = append(children, store.Child{Key: k, Value: v})
	}
	sortChildren(children, orderBy)

	start := 0
	if startAfter != "" {
		for i, c := range children {
			if c.Key == startAfter {
				start = i + 1
				break
			}
		}
	}
	children = children[start:]
	if limit > 0 && len(children) > limit {
		children = children[:limit]
	}
	out := make([]store.Child, len(children))
	for i, c := range children {
		out[i] = store.Child{Key: c.Key, Value: copyValue(c.Value)}
	}
	return out, nil
}

func sortChildren(children []store.Child, orderBy store.Order) {
	less := func(i, j int) bool { return children[i].Key < children[j].Key }
	if orderBy.ChildField != "" {
		field := orderBy.ChildField
		less = func(i, j int) bool {
			a := childField(children[i].Value, field)
			b := childField(children[j].Value, field)
			if a != b {
				return a < b
			}
			return children[i].Key < children[j].Key
		}
	}
	if orderBy.Desc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.Slice(children, less)
}

func childField(v any, field string) float64 {
	m, _ := v.(map[string]any)
	f, _ := m[field].(float64)
	return f
}

func (s *Store) GenerateKey(string) (string, error) {
	return s.keys.Next(), nil
}

var _ store.Store = (*Store)(nil)
