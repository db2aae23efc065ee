package jobs

import (
	"container/list"
	"sync"
	"time"
)

// Entry is one id/value pair in insertion order.
type Entry[V any] struct {
	ID    string
	Value V
}

// Store is an insertion-ordered keyed collection with sweep-based retention.
// Implementations must be safe for concurrent use.
type Store[V any] interface {
	// Put inserts v, or replaces the value in place keeping its position.
	Put(id string, v V)
	// Update applies fn to the stored value and reports whether id existed.
	// Writes to absent ids are dropped.
	Update(id string, fn func(*V)) bool
	Get(id string) (V, bool)
	Delete(id string) bool
	Clear()
	Len() int
	// Entries returns a copy of the contents in insertion order.
	Entries() []Entry[V]
	// Sweep evicts expired entries, then the oldest entries over capacity,
	// and returns the evicted ids.
	Sweep(now time.Time) []string
}

// Retention configures OrderedStore eviction.
type Retention[V any] struct {
	// TTL is measured from Timestamp. Zero disables expiry.
	TTL time.Duration
	// MaxEntries caps the store size. Zero disables the cap.
	MaxEntries int
	Timestamp  func(V) time.Time
	// Exempt entries are never evicted by either rule.
	Exempt func(V) bool
}

// OrderedStore is the in-memory Store.
type OrderedStore[V any] struct {
	mu        sync.Mutex
	order     *list.List
	index     map[string]*list.Element
	retention Retention[V]
}

// NewOrderedStore creates an empty store with the given retention rules.
func NewOrderedStore[V any](r Retention[V]) *OrderedStore[V] {
	return &OrderedStore[V]{
		order:     list.New(),
		index:     make(map[string]*list.Element),
		retention: r,
	}
}

func (s *OrderedStore[V]) Put(id string, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.index[id]; ok {
		el.Value = Entry[V]{ID: id, Value: v}
		return
	}
	s.index[id] = s.order.PushBack(Entry[V]{ID: id, Value: v})
}

func (s *OrderedStore[V]) Update(id string, fn func(*V)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.index[id]
	if !ok {
		return false
	}
	e := el.Value.(Entry[V])
	fn(&e.Value)
	el.Value = e
	return true
}

func (s *OrderedStore[V]) Get(id string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.index[id]; ok {
		return el.Value.(Entry[V]).Value, true
	}
	var zero V
	return zero, false
}

func (s *OrderedStore[V]) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *OrderedStore[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Init()
	clear(s.index)
}

func (s *OrderedStore[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *OrderedStore[V]) Entries() []Entry[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry[V], 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(Entry[V]))
	}
	return out
}

func (s *OrderedStore[V]) Sweep(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	if s.retention.TTL > 0 && s.retention.Timestamp != nil {
		for el := s.order.Front(); el != nil; {
			next := el.Next()
			e := el.Value.(Entry[V])
			if !s.exempt(e.Value) && now.Sub(s.retention.Timestamp(e.Value)) > s.retention.TTL {
				s.removeLocked(e.ID)
				evicted = append(evicted, e.ID)
			}
			el = next
		}
	}

	if s.retention.MaxEntries > 0 {
		el := s.order.Front()
		for s.order.Len() > s.retention.MaxEntries && el != nil {
			next := el.Next()
			e := el.Value.(Entry[V])
			if !s.exempt(e.Value) {
				s.removeLocked(e.ID)
				evicted = append(evicted, e.ID)
			}
			el = next
		}
	}
	return evicted
}

func (s *OrderedStore[V]) exempt(v V) bool {
	return s.retention.Exempt != nil && s.retention.Exempt(v)
}

func (s *OrderedStore[V]) removeLocked(id string) bool {
	el, ok := s.index[id]
	if !ok {
		return false
	}
	s.order.Remove(el)
	delete(s.index, id)
	return true
}

var _ Store[int] = (*OrderedStore[int])(nil)
