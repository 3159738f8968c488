package utils

import (
	"fmt"
	"strings"
)

// BCType marks a boundary segment of the flow domain. The velocity
// discretization and the artificial pressure conditions of the PCD
// preconditioners are both driven by these markers.
type BCType uint8

const (
	// BCNone indicates no boundary condition (interior face)
	BCNone BCType = iota

	BCWall     // No-slip wall, velocity Dirichlet
	BCInflow   // Prescribed velocity profile, velocity Dirichlet
	BCOutflow  // Do-nothing outflow, free boundary for pressure
	BCSlipWall // Zero normal velocity, zero tangential stress
)

func (bc BCType) String() string {
	names := map[BCType]string{
		BCNone:     "None",
		BCWall:     "Wall",
		BCInflow:   "Inflow",
		BCOutflow:  "Outflow",
		BCSlipWall: "SlipWall",
	}
	if name, ok := names[bc]; ok {
		return name
	}
	return "Unknown"
}

// IsFree reports whether the pressure is left unconstrained by the velocity
// data on this boundary, which makes it a candidate for pinning the pure
// Neumann pressure Laplacian.
func (bc BCType) IsFree() bool {
	return bc == BCOutflow
}

// BCNameMap provides a mapping from common boundary condition names to BCType
// Keys are lowercase for case-insensitive matching
var BCNameMap = map[string]BCType{
	"inlet":         BCInflow,
	"inflow":        BCInflow,
	"outlet":        BCOutflow,
	"outflow":       BCOutflow,
	"exit":          BCOutflow,
	"wall":          BCWall,
	"no_slip":       BCWall,
	"noslip":        BCWall,
	"slip":          BCSlipWall,
	"slip_wall":     BCSlipWall,
	"inviscid_wall": BCSlipWall,
}

// ParseBCName converts a boundary condition name string to BCType
// The matching is case-insensitive and trims whitespace
func ParseBCName(name string) (bc BCType, err error) {
	var (
		ok bool
	)
	lowerName := strings.ToLower(strings.TrimSpace(name))
	if bc, ok = BCNameMap[lowerName]; !ok {
		err = fmt.Errorf("unknown boundary condition name %q", name)
	}
	return
}
