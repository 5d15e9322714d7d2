package memory

import (
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
	"github.com/yndnr/gridbackup-go/pkg/cmap"
)

// SpawnOffset is how far from the viewer a re-placed grid's primary
// member lands.
var SpawnOffset = domain.Vector3{X: 50}

// World is an in-memory arena of identities and grid members.
type World struct {
	members    *cmap.Map[int64, domain.GridMember]
	identities *cmap.Map[int64, domain.Identity]
	positions  *cmap.Map[int64, domain.Vector3]
	targets    *cmap.Map[int64, int64]
	owners     *OwnerIndex
	links      *LinkIndex

	nextID atomic.Int64
}

// NewWorld creates an empty world.
func NewWorld() *World {
	w := &World{
		members:    cmap.New[int64, domain.GridMember](),
		identities: cmap.New[int64, domain.Identity](),
		positions:  cmap.New[int64, domain.Vector3](),
		targets:    cmap.New[int64, int64](),
		owners:     NewOwnerIndex(),
		links:      NewLinkIndex(),
	}
	w.nextID.Store(1)
	return w
}

// ============================================================================
// Mutation
// ============================================================================

// AddIdentity registers an identity and where its character stands.
func (w *World) AddIdentity(id domain.Identity, position domain.Vector3) {
	w.identities.Set(id.ID, id)
	w.positions.Set(id.ID, position)
}

// SetTarget records the member an identity is looking at.
func (w *World) SetTarget(identityID, entityID int64) {
	w.targets.Set(identityID, entityID)
}

// AddMember inserts m. Entity ids must be unique and non-negative.
func (w *World) AddMember(m domain.GridMember) error {
	if m.EntityID < 0 {
		return domain.ErrInvalidArgument.WithDetailsf("negative entity id %d", m.EntityID)
	}
	m.Owners = slices.Clone(m.Owners)
	if _, loaded := w.members.GetOrSet(m.EntityID, m); loaded {
		return domain.ErrInvalidArgument.WithDetailsf("entity %d already exists", m.EntityID)
	}
	for _, owner := range m.Owners {
		w.owners.Add(owner, m.EntityID)
	}
	w.bumpNextID(m.EntityID)
	return nil
}

// RemoveMember deletes a member and its links.
func (w *World) RemoveMember(id int64) {
	m, ok := w.members.Pop(id)
	if !ok {
		return
	}
	for _, owner := range m.Owners {
		w.owners.Remove(owner, id)
	}
	w.links.RemoveMember(id)
}

// Rename changes a member's display name.
func (w *World) Rename(id int64, name string) bool {
	found := false
	w.members.Mutate(id, func(m domain.GridMember, exists bool) (domain.GridMember, bool) {
		if exists {
			m.Name = name
			found = true
		}
		return m, exists
	})
	return found
}

// Link joins two existing members.
func (w *World) Link(a, b int64, kind domain.LinkKind) error {
	if a == b {
		return domain.ErrInvalidArgument.WithDetails("cannot link a member to itself")
	}
	if !w.members.Has(a) || !w.members.Has(b) {
		return domain.ErrInvalidArgument.WithDetailsf("link %d-%d references a missing member", a, b)
	}
	if kind != domain.LinkMechanical && kind != domain.LinkConnector {
		return domain.ErrInvalidArgument.WithDetailsf("unknown link kind %q", kind)
	}
	w.links.Add(domain.GridLink{A: a, B: b, Kind: kind})
	return nil
}

// Member returns a member by id.
func (w *World) Member(id int64) (domain.GridMember, bool) {
	return w.members.Get(id)
}

// MemberCount returns the number of members.
func (w *World) MemberCount() int {
	return w.members.Count()
}

func (w *World) bumpNextID(seen int64) {
	for {
		cur := w.nextID.Load()
		if seen < cur || w.nextID.CompareAndSwap(cur, seen+1) {
			return
		}
	}
}

// ============================================================================
// Queries
// ============================================================================

// ResolveIdentity finds an identity by decimal id, then by exact name.
// Among identities sharing a name the lowest id wins.
func (w *World) ResolveIdentity(nameOrID string) (domain.Identity, bool) {
	if id, err := strconv.ParseInt(nameOrID, 10, 64); err == nil {
		if ident, ok := w.identities.Get(id); ok {
			return ident, true
		}
	}
	for _, ident := range w.AllIdentities() {
		if ident.Name == nameOrID {
			return ident, true
		}
	}
	return domain.Identity{}, false
}

// AllIdentities returns every identity ordered by id.
func (w *World) AllIdentities() []domain.Identity {
	ids := w.identities.Keys()
	slices.Sort(ids)
	out := make([]domain.Identity, 0, len(ids))
	for _, id := range ids {
		if ident, ok := w.identities.Get(id); ok {
			out = append(out, ident)
		}
	}
	return out
}

// FindGraphGroups matches token against entity ids, then member names.
// An empty token selects the group the viewpoint's identity targets.
func (w *World) FindGraphGroups(token string, vp *domain.Viewpoint, includeConnections bool) ([]domain.GraphGroup, error) {
	if token == "" {
		if vp == nil {
			return nil, domain.ErrNoViewpoint
		}
		target, ok := w.targets.Get(vp.IdentityID)
		if !ok || !w.eligible(target) {
			return nil, nil
		}
		return []domain.GraphGroup{w.component(target, includeConnections)}, nil
	}

	if id, err := strconv.ParseInt(token, 10, 64); err == nil && w.eligible(id) {
		return []domain.GraphGroup{w.component(id, includeConnections)}, nil
	}

	var groups []domain.GraphGroup
	seen := map[int64]bool{}
	for _, id := range w.sortedMemberIDs() {
		m, _ := w.members.Get(id)
		if m.Projected || m.Name != token || seen[id] {
			continue
		}
		g := w.component(id, includeConnections)
		for _, member := range g.Members {
			seen[member.EntityID] = true
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// OwnedGraphGroups returns the groups whose primary member's first owner
// is identityID, ordered by their lowest entity id.
func (w *World) OwnedGraphGroups(identityID int64, includeConnections bool) ([]domain.GraphGroup, error) {
	var groups []domain.GraphGroup
	seen := map[int64]bool{}
	for _, id := range w.owners.Get(identityID) {
		if seen[id] || !w.eligible(id) {
			continue
		}
		g := w.component(id, includeConnections)
		for _, member := range g.Members {
			seen[member.EntityID] = true
		}
		if owner, ok := g.OwnerID(); ok && owner == identityID {
			groups = append(groups, g)
		}
	}
	slices.SortFunc(groups, func(a, b domain.GraphGroup) int {
		return compareInt64(a.Members[0].EntityID, b.Members[0].EntityID)
	})
	return groups, nil
}

// eligible reports whether id names an existing, non-projected member.
func (w *World) eligible(id int64) bool {
	m, ok := w.members.Get(id)
	return ok && !m.Projected
}

// component returns the group containing start.
func (w *World) component(start int64, includeConnections bool) domain.GraphGroup {
	reach := w.bfs(start, includeConnections)
	root := slices.Min(reach)
	order := w.bfs(root, includeConnections)

	inGroup := make(map[int64]bool, len(order))
	group := domain.GraphGroup{Members: make([]domain.GridMember, 0, len(order))}
	for _, id := range order {
		m, _ := w.members.Get(id)
		m.Owners = slices.Clone(m.Owners)
		group.Members = append(group.Members, m)
		inGroup[id] = true
	}
	for _, id := range order {
		for _, l := range w.links.Of(id) {
			if l.A != id || !inGroup[l.B] {
				continue
			}
			if l.Kind == domain.LinkConnector && !includeConnections {
				continue
			}
			group.Links = append(group.Links, l)
		}
	}
	return group
}

// bfs visits non-projected members reachable from start, neighbours in
// ascending id order.
func (w *World) bfs(start int64, includeConnections bool) []int64 {
	visited := map[int64]bool{start: true}
	order := []int64{start}
	for i := 0; i < len(order); i++ {
		for _, n := range w.links.Neighbours(order[i], includeConnections) {
			if visited[n] || !w.eligible(n) {
				continue
			}
			visited[n] = true
			order = append(order, n)
		}
	}
	return order
}

func (w *World) sortedMemberIDs() []int64 {
	ids := w.members.Keys()
	slices.Sort(ids)
	return ids
}

// ============================================================================
// Spawn
// ============================================================================

// Spawn inserts a copy of group with fresh entity ids. Unless the hint
// keeps the original position, the group is translated so its primary
// member sits SpawnOffset away from the viewer's character.
func (w *World) Spawn(group domain.GraphGroup, hint domain.PlacementHint) (domain.GraphGroup, error) {
	if err := group.Validate(); err != nil && !domain.IsDomainError(err, domain.ErrNoOwner.Code) {
		return domain.GraphGroup{}, err
	}

	var shift domain.Vector3
	if !hint.KeepOriginalPosition {
		if hint.Near == nil {
			return domain.GraphGroup{}, domain.ErrNoViewpoint.WithDetails("no viewer to place the grid near")
		}
		pos, ok := w.positions.Get(hint.Near.IdentityID)
		if !ok {
			return domain.GraphGroup{}, domain.ErrIdentityNotFound.WithDetailsf("viewer %d has no character", hint.Near.IdentityID)
		}
		primary, _ := group.Primary()
		shift = pos.Add(SpawnOffset).Sub(primary.Position)
	}

	remap := make(map[int64]int64, len(group.Members))
	out := domain.GraphGroup{Members: make([]domain.GridMember, 0, len(group.Members))}
	for _, m := range group.Members {
		fresh := w.nextID.Add(1) - 1
		remap[m.EntityID] = fresh
		m.EntityID = fresh
		m.Position = m.Position.Add(shift)
		m.Projected = false
		if err := w.AddMember(m); err != nil {
			w.rollback(remap)
			return domain.GraphGroup{}, err
		}
		out.Members = append(out.Members, m)
	}
	for _, l := range group.Links {
		a, okA := remap[l.A]
		b, okB := remap[l.B]
		if !okA || !okB {
			continue
		}
		if err := w.Link(a, b, l.Kind); err != nil {
			w.rollback(remap)
			return domain.GraphGroup{}, fmt.Errorf("spawn: %w", err)
		}
		out.Links = append(out.Links, domain.GridLink{A: a, B: b, Kind: l.Kind})
	}
	return out, nil
}

func (w *World) rollback(remap map[int64]int64) {
	for _, id := range remap {
		w.RemoveMember(id)
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
