package operators

import (
	"sort"

	"github.com/notargets/gopcd/utils"
)

// PressureBoundary lists the pressure dofs adjacent to each kind of
// velocity boundary. The artificial pressure conditions of the PCD family
// are placed on these dofs.
type PressureBoundary struct {
	Markers map[utils.BCType][]int
}

func NewPressureBoundary() PressureBoundary {
	return PressureBoundary{Markers: make(map[utils.BCType][]int)}
}

func (pb PressureBoundary) Add(bc utils.BCType, dofs ...int) PressureBoundary { // Changes receiver
	pb.Markers[bc] = append(pb.Markers[bc], dofs...)
	return pb
}

// Dofs returns the sorted, unique dofs adjacent to boundaries of type bc
func (pb PressureBoundary) Dofs(bc utils.BCType) []int {
	return uniqueSorted(pb.Markers[bc])
}

// Free returns the dofs adjacent to boundaries where the pressure is not
// determined up to a constant by the velocity data. Empty for an enclosed flow.
func (pb PressureBoundary) Free() []int {
	var dofs []int
	for bc, d := range pb.Markers {
		if bc.IsFree() {
			dofs = append(dofs, d...)
		}
	}
	return uniqueSorted(dofs)
}

func uniqueSorted(dofs []int) (u []int) {
	if len(dofs) == 0 {
		return nil
	}
	s := append([]int{}, dofs...)
	sort.Ints(s)
	u = s[:1]
	for _, d := range s[1:] {
		if d != u[len(u)-1] {
			u = append(u, d)
		}
	}
	return
}

// BoundaryProvider is implemented by discretizations that can describe the
// pressure dofs along the inflow and outflow boundaries
type BoundaryProvider interface {
	PressureBoundary() PressureBoundary
}

func (b *Blocks) SetPressureBoundary(pb PressureBoundary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.boundary = pb
}

func (b *Blocks) PressureBoundary() PressureBoundary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.boundary.Markers == nil {
		return NewPressureBoundary()
	}
	return b.boundary
}
