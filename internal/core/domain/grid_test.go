package domain

import (
	"errors"
	"testing"
)

func TestBiggestMember(t *testing.T) {
	tests := []struct {
		name    string
		members []GridMember
		want    int
	}{
		{"empty", nil, -1},
		{"single", []GridMember{{EntityID: 1, BlockCount: 3}}, 0},
		{"strictly larger wins", []GridMember{{EntityID: 1, BlockCount: 3}, {EntityID: 2, BlockCount: 9}}, 1},
		{"tie keeps first", []GridMember{{EntityID: 1, BlockCount: 9}, {EntityID: 2, BlockCount: 9}}, 0},
		{"tie after larger keeps earlier", []GridMember{{EntityID: 1, BlockCount: 1}, {EntityID: 2, BlockCount: 5}, {EntityID: 3, BlockCount: 5}}, 1},
		{"projection skipped", []GridMember{{EntityID: 1, BlockCount: 100, Projected: true}, {EntityID: 2, BlockCount: 5}}, 1},
		{"only projections", []GridMember{{EntityID: 1, BlockCount: 100, Projected: true}}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BiggestMember(tt.members); got != tt.want {
				t.Errorf("BiggestMember() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGraphGroup_Identification(t *testing.T) {
	g := GraphGroup{Members: []GridMember{
		{EntityID: 10, Name: "Rotor Head", BlockCount: 4, Owners: []int64{9}},
		{EntityID: 42, Name: "Outpost", BlockCount: 120, Owners: []int64{7, 8}},
	}}

	if got := g.EntityID(); got != 42 {
		t.Errorf("EntityID() = %d, want 42", got)
	}
	if got := g.DisplayName(); got != "Outpost" {
		t.Errorf("DisplayName() = %q", got)
	}
	owner, ok := g.OwnerID()
	if !ok || owner != 7 {
		t.Errorf("OwnerID() = %d, %v; want 7, true", owner, ok)
	}
	if got := g.TotalBlocks(); got != 124 {
		t.Errorf("TotalBlocks() = %d", got)
	}
	c := g.Candidate()
	if c.EntityID != 42 || c.Name != "Outpost" || c.Blocks != 124 {
		t.Errorf("Candidate() = %+v", c)
	}
}

func TestGraphGroup_Validate(t *testing.T) {
	tests := []struct {
		name  string
		group GraphGroup
		want  error
	}{
		{"empty", GraphGroup{}, ErrInvalidGroup},
		{"projection only", GraphGroup{Members: []GridMember{{EntityID: 1, Projected: true, Owners: []int64{1}}}}, ErrInvalidGroup},
		{"no owner", GraphGroup{Members: []GridMember{{EntityID: 1, BlockCount: 2}}}, ErrNoOwner},
		{"owner on smaller member only", GraphGroup{Members: []GridMember{
			{EntityID: 1, BlockCount: 2, Owners: []int64{3}},
			{EntityID: 2, BlockCount: 5},
		}}, ErrNoOwner},
		{"valid", GraphGroup{Members: []GridMember{{EntityID: 1, BlockCount: 2, Owners: []int64{3}}}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.group.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}
