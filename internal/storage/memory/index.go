package memory

import (
	"slices"
	"sync"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
	"github.com/yndnr/gridbackup-go/pkg/cmap"
)

// IDSet is a concurrent-safe set of entity ids.
type IDSet struct {
	mu    sync.RWMutex
	items map[int64]struct{}
}

// NewIDSet creates an empty set.
func NewIDSet() *IDSet {
	return &IDSet{items: make(map[int64]struct{})}
}

// Add adds id.
func (s *IDSet) Add(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = struct{}{}
}

// Remove removes id.
func (s *IDSet) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// Contains reports whether id is present.
func (s *IDSet) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Len returns the number of ids.
func (s *IDSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Sorted returns the ids in ascending order.
func (s *IDSet) Sorted() []int64 {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// OwnerIndex maps an identity to the members it owns (in any owner slot).
type OwnerIndex struct {
	index *cmap.Map[int64, *IDSet]
}

// NewOwnerIndex creates an empty index.
func NewOwnerIndex() *OwnerIndex {
	return &OwnerIndex{index: cmap.New[int64, *IDSet]()}
}

// Add records that identityID owns entityID.
func (i *OwnerIndex) Add(identityID, entityID int64) {
	set, _ := i.index.GetOrSet(identityID, NewIDSet())
	set.Add(entityID)
}

// Remove drops entityID from identityID's set.
func (i *OwnerIndex) Remove(identityID, entityID int64) {
	set, ok := i.index.Get(identityID)
	if !ok {
		return
	}
	set.Remove(entityID)
	if set.Len() == 0 {
		i.index.Delete(identityID)
	}
}

// Get returns the members owned by identityID, ascending.
func (i *OwnerIndex) Get(identityID int64) []int64 {
	set, ok := i.index.Get(identityID)
	if !ok {
		return nil
	}
	return set.Sorted()
}

// LinkIndex is the adjacency table of member links.
type LinkIndex struct {
	index *cmap.Map[int64, []domain.GridLink]
}

// NewLinkIndex creates an empty index.
func NewLinkIndex() *LinkIndex {
	return &LinkIndex{index: cmap.New[int64, []domain.GridLink]()}
}

// Add records l on both endpoints.
func (i *LinkIndex) Add(l domain.GridLink) {
	for _, id := range []int64{l.A, l.B} {
		i.index.Update(id, func(v []domain.GridLink, _ bool) []domain.GridLink {
			return append(slices.Clone(v), l)
		})
	}
}

// RemoveMember drops every link touching id.
func (i *LinkIndex) RemoveMember(id int64) {
	links, ok := i.index.Pop(id)
	if !ok {
		return
	}
	for _, l := range links {
		other := l.A
		if other == id {
			other = l.B
		}
		i.index.Mutate(other, func(v []domain.GridLink, exists bool) ([]domain.GridLink, bool) {
			kept := slices.DeleteFunc(slices.Clone(v), func(x domain.GridLink) bool {
				return x.A == id || x.B == id
			})
			return kept, len(kept) > 0
		})
	}
}

// Of returns the links touching id.
func (i *LinkIndex) Of(id int64) []domain.GridLink {
	v, _ := i.index.Get(id)
	return v
}

// Neighbours returns the ids joined to id, ascending. Connector links
// count only when includeConnections is set.
func (i *LinkIndex) Neighbours(id int64, includeConnections bool) []int64 {
	var out []int64
	for _, l := range i.Of(id) {
		if l.Kind == domain.LinkConnector && !includeConnections {
			continue
		}
		other := l.A
		if other == id {
			other = l.B
		}
		out = append(out, other)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
