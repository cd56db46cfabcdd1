// Package lru implements the constant-time set used by one MSCache set:
// a doubly linked list for LRU order plus a hash map from tag to list
// element, per spec.md §9's redesign note on the teacher's parallel
// list-plus-tag-map CacheSet (github.com/sarchlab/akita/v4/mem/cache's
// internal/tagging.Set, which instead rebuilds a new LRUQueue slice on
// every Visit). Hit/miss, LRU eviction and MRU re-insertion are all O(1)
// here.
package lru

import "container/list"

// Way is one cache line resident in a set.
type Way struct {
	Tag   uint64
	Addr  uint64
	Dirty bool
}

// Set is one set of a set-associative cache: an LRU-ordered list of Ways
// (front is least recently used) with O(1) lookup by tag.
type Set struct {
	capacity int
	order    *list.List
	index    map[uint64]*list.Element
}

// NewSet creates a Set able to hold capacity resident ways.
func NewSet(capacity int) *Set {
	return &Set{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[uint64]*list.Element, capacity),
	}
}

// Lookup returns the way resident under tag, moving it to the MRU
// position as a side effect of the hit (the same policy
// tagArrayImpl.Visit implements for the teacher's cache).
func (s *Set) Lookup(tag uint64) (*Way, bool) {
	e, ok := s.index[tag]
	if !ok {
		return nil, false
	}

	s.order.MoveToBack(e)

	return e.Value.(*Way), true
}

// Full reports whether the set is at capacity.
func (s *Set) Full() bool {
	return s.order.Len() >= s.capacity
}

// Insert allocates way at the MRU position, evicting the LRU way first if
// the set is full. It panics if way's tag is already resident: the host
// must never issue a miss for a tag that is already resident (spec.md
// §4.3's debugging invariant on eviction).
func (s *Set) Insert(way Way) (evictedAddr uint64, evictedDirty bool) {
	if _, exists := s.index[way.Tag]; exists {
		panic("lru: allocating a tag that is already resident")
	}

	if s.Full() {
		front := s.order.Front()
		victim := front.Value.(*Way)

		s.order.Remove(front)
		delete(s.index, victim.Tag)

		if victim.Dirty {
			evictedAddr, evictedDirty = victim.Addr, true
		}
	}

	stored := way
	s.index[way.Tag] = s.order.PushBack(&stored)

	return evictedAddr, evictedDirty
}

// Lines returns every resident way, in LRU-to-MRU order. The returned
// pointers alias the set's own storage; mutating Dirty through them is
// how a caller clears a line's dirty bit after writing it back without an
// eviction.
func (s *Set) Lines() []*Way {
	lines := make([]*Way, 0, s.order.Len())
	for e := s.order.Front(); e != nil; e = e.Next() {
		lines = append(lines, e.Value.(*Way))
	}

	return lines
}

// Len returns the number of ways currently resident.
func (s *Set) Len() int {
	return s.order.Len()
}
