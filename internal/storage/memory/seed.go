package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
)

// Seed is the YAML document a World can be loaded from.
//
//	identities:
//	  - id: 7
//	    name: Alice
//	    position: {x: 0, y: 0, z: 0}
//	    target: 42
//	grids:
//	  - entity_id: 42
//	    name: Outpost
//	    blocks: 1200
//	    owners: [7]
//	links:
//	  - {a: 42, b: 43, kind: mechanical}
type Seed struct {
	Identities []SeedIdentity `yaml:"identities"`
	Grids      []SeedGrid     `yaml:"grids"`
	Links      []SeedLink     `yaml:"links"`
}

// SeedIdentity is one identity entry.
type SeedIdentity struct {
	ID       int64          `yaml:"id"`
	Name     string         `yaml:"name"`
	Position domain.Vector3 `yaml:"position"`
	Target   *int64         `yaml:"target,omitempty"`
}

// SeedGrid is one grid member entry.
type SeedGrid struct {
	EntityID  int64          `yaml:"entity_id"`
	Name      string         `yaml:"name"`
	Blocks    int            `yaml:"blocks"`
	Owners    []int64        `yaml:"owners"`
	Position  domain.Vector3 `yaml:"position"`
	Projected bool           `yaml:"projected"`
}

// SeedLink is one link entry. Kind defaults to mechanical.
type SeedLink struct {
	A    int64           `yaml:"a"`
	B    int64           `yaml:"b"`
	Kind domain.LinkKind `yaml:"kind"`
}

// ParseSeed decodes a seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &s, nil
}

// LoadSeed reads and applies the seed file at path to a new World.
func LoadSeed(path string) (*World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return nil, err
	}
	w := NewWorld()
	if err := seed.Apply(w); err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return w, nil
}

// Apply inserts the seed's contents into w. Grids go in before links and
// targets so references can be checked.
func (s *Seed) Apply(w *World) error {
	for _, g := range s.Grids {
		err := w.AddMember(domain.GridMember{
			EntityID:   g.EntityID,
			Name:       g.Name,
			BlockCount: g.Blocks,
			Owners:     g.Owners,
			Position:   g.Position,
			Projected:  g.Projected,
		})
		if err != nil {
			return err
		}
	}
	for _, l := range s.Links {
		kind := l.Kind
		if kind == "" {
			kind = domain.LinkMechanical
		}
		if err := w.Link(l.A, l.B, kind); err != nil {
			return err
		}
	}
	for _, id := range s.Identities {
		if id.ID < 0 {
			return domain.ErrInvalidArgument.WithDetailsf("negative identity id %d", id.ID)
		}
		w.AddIdentity(domain.Identity{ID: id.ID, Name: id.Name}, id.Position)
		if id.Target != nil {
			if _, ok := w.Member(*id.Target); !ok {
				return domain.ErrInvalidArgument.WithDetailsf("identity %d targets missing entity %d", id.ID, *id.Target)
			}
			w.SetTarget(id.ID, *id.Target)
		}
	}
	return nil
}
