package domain

import "strconv"

// LinkKind distinguishes how two grid members are attached.
type LinkKind string

const (
	// LinkMechanical joins members that move as one body (rotors, pistons, hinges).
	// Mechanical links are always folded into the same group.
	LinkMechanical LinkKind = "mechanical"

	// LinkConnector joins members that are docked together (connectors, landing gear).
	// Connector links are folded only when connections are included.
	LinkConnector LinkKind = "connector"
)

// Vector3 is a world position.
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v + o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// GridMember is one structural object of a graph group.
type GridMember struct {
	EntityID   int64   `json:"entity_id"`
	Name       string  `json:"name"`
	BlockCount int     `json:"block_count"`
	Owners     []int64 `json:"owners,omitempty"`
	Position   Vector3 `json:"position"`
	// Projected members are build previews and never part of a backup.
	Projected bool `json:"projected,omitempty"`
}

// GridLink attaches member A to member B.
type GridLink struct {
	A    int64    `json:"a"`
	B    int64    `json:"b"`
	Kind LinkKind `json:"kind"`
}

// GraphGroup is a connected set of grid members treated as one backup unit.
// Members are kept in discovery order.
type GraphGroup struct {
	Members []GridMember `json:"members"`
	Links   []GridLink   `json:"links,omitempty"`
}

// BiggestMember returns the index of the member with the largest block
// count. A later member must be strictly larger to displace an earlier one,
// so ties keep the first member seen. Projected members are ignored.
// It returns -1 when no eligible member exists.
func BiggestMember(members []GridMember) int {
	best := -1
	for i := range members {
		if members[i].Projected {
			continue
		}
		if best < 0 || members[i].BlockCount > members[best].BlockCount {
			best = i
		}
	}
	return best
}

// Primary returns the member that represents the group.
func (g GraphGroup) Primary() (GridMember, bool) {
	i := BiggestMember(g.Members)
	if i < 0 {
		return GridMember{}, false
	}
	return g.Members[i], true
}

// EntityID is the primary member's id, or 0 for an invalid group.
func (g GraphGroup) EntityID() int64 {
	p, _ := g.Primary()
	return p.EntityID
}

// DisplayName is the primary member's name.
func (g GraphGroup) DisplayName() string {
	p, _ := g.Primary()
	return p.Name
}

// OwnerID returns the authoritative (first) owner of the primary member.
func (g GraphGroup) OwnerID() (int64, bool) {
	p, ok := g.Primary()
	if !ok || len(p.Owners) == 0 {
		return 0, false
	}
	return p.Owners[0], true
}

// TotalBlocks sums block counts across members.
func (g GraphGroup) TotalBlocks() int {
	n := 0
	for _, m := range g.Members {
		n += m.BlockCount
	}
	return n
}

// Validate checks the group can be filed under an owner.
func (g GraphGroup) Validate() error {
	if len(g.Members) == 0 {
		return ErrInvalidGroup.WithDetails("group has no members")
	}
	p, ok := g.Primary()
	if !ok {
		return ErrInvalidGroup.WithDetails("group has no eligible primary member")
	}
	if len(p.Owners) == 0 {
		return ErrNoOwner.WithDetails(p.Name + "_" + strconv.FormatInt(p.EntityID, 10))
	}
	return nil
}

// GridCandidate is a compact description of a group, used when reporting
// ambiguous matches back to an operator.
type GridCandidate struct {
	EntityID int64  `json:"entity_id"`
	Name     string `json:"name"`
	Blocks   int    `json:"blocks"`
}

// Candidate summarises the group.
func (g GraphGroup) Candidate() GridCandidate {
	return GridCandidate{EntityID: g.EntityID(), Name: g.DisplayName(), Blocks: g.TotalBlocks()}
}

// PlacementHint tells an import where to put a restored group.
type PlacementHint struct {
	// KeepOriginalPosition spawns members where they were exported.
	KeepOriginalPosition bool
	// Near places the group next to this viewer when the original
	// position is not kept.
	Near *Viewpoint
}
