package fieldsplit

import (
	"fmt"
	"strings"

	"github.com/notargets/gopcd/leafsolver"
	"github.com/notargets/gopcd/pcd"
)

type Factorization uint8

const (
	Upper    Factorization = iota // Schur solve, then velocity solve with the gradient coupling
	Lower                         // Velocity solve, then Schur solve with the divergence coupling
	Diagonal                      // No coupling
)

var (
	FactorizationNames = map[string]Factorization{
		"upper":    Upper,
		"lower":    Lower,
		"diagonal": Diagonal,
		"diag":     Diagonal,
	}
	FactorizationPrintNames = []string{"upper", "lower", "diagonal"}
)

func (f Factorization) String() string {
	if int(f) < len(FactorizationPrintNames) {
		return FactorizationPrintNames[f]
	}
	return fmt.Sprintf("Factorization(%d)", f)
}

func NewFactorization(label string) (f Factorization, err error) {
	var (
		ok bool
	)
	if f, ok = FactorizationNames[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("unknown block factorization %s, choose from %v", label, FactorizationPrintNames)
	}
	return
}

// Config is fixed at construction. Every branch that selects a collective
// operation (which blocks are fetched, which leaves run) is decided here.
type Config struct {
	PCDVariant           pcd.Variant
	PressureSolver       leafsolver.Kind // Pressure Laplacian
	MassSolver           leafsolver.Kind // Pressure mass matrix
	VelocitySolver       leafsolver.Kind
	NeumannPressure      bool
	AllowEnclosedNeumann bool
	Stabilized           bool
	Factorization        Factorization
	LeafTolerance        float64
	LeafIterations       int
	AMGCycles            int
}

func DefaultConfig() Config {
	return Config{
		PCDVariant:     pcd.PCD,
		PressureSolver: leafsolver.AMG,
		MassSolver:     leafsolver.Chebyshev,
		VelocitySolver: leafsolver.AMG,
		Factorization:  Upper,
	}
}

// Validate rejects combinations a leaf solver cannot honour. The velocity
// block is non-symmetric, so only direct and amg may invert it.
func (c Config) Validate() error {
	if int(c.PCDVariant) >= len(pcd.VariantPrintNames) {
		return fmt.Errorf("fieldsplit: invalid pcd variant %v", c.PCDVariant)
	}
	for _, k := range []leafsolver.Kind{c.PressureSolver, c.MassSolver, c.VelocitySolver} {
		if int(k) >= len(leafsolver.KindPrintNames) {
			return fmt.Errorf("fieldsplit: invalid leaf solver %v", k)
		}
	}
	switch c.VelocitySolver {
	case leafsolver.Direct, leafsolver.AMG:
	default:
		return fmt.Errorf("fieldsplit: velocity solver must be direct or amg, have %s", c.VelocitySolver)
	}
	if int(c.Factorization) >= len(FactorizationPrintNames) {
		return fmt.Errorf("fieldsplit: invalid factorization %v", c.Factorization)
	}
	if c.AllowEnclosedNeumann && !c.NeumannPressure {
		return fmt.Errorf("fieldsplit: enclosed neumann override given without neumann pressure")
	}
	if c.LeafTolerance < 0 || c.LeafIterations < 0 || c.AMGCycles < 0 {
		return fmt.Errorf("fieldsplit: negative leaf solver controls")
	}
	return nil
}

func (c Config) leafOptions() leafsolver.Options {
	return leafsolver.Options{
		Tolerance:     c.LeafTolerance,
		MaxIterations: c.LeafIterations,
		Cycles:        c.AMGCycles,
	}
}

func (c Config) pcdOptions() pcd.Options {
	return pcd.Options{
		Variant:              c.PCDVariant,
		PressureSolver:       c.PressureSolver,
		MassSolver:           c.MassSolver,
		Leaf:                 c.leafOptions(),
		NeumannPressure:      c.NeumannPressure,
		AllowEnclosedNeumann: c.AllowEnclosedNeumann,
		Stabilized:           c.Stabilized,
	}
}

func (c Config) Print() {
	fmt.Printf("PCD Variant = %s\n", c.PCDVariant)
	fmt.Printf("Block Factorization = %s\n", c.Factorization)
	fmt.Printf("Velocity Solver = %s\n", c.VelocitySolver)
	fmt.Printf("Pressure Laplacian Solver = %s, Pressure Mass Solver = %s\n", c.PressureSolver, c.MassSolver)
	fmt.Printf("Neumann Pressure = %v, Enclosed Override = %v, Stabilized = %v\n",
		c.NeumannPressure, c.AllowEnclosedNeumann, c.Stabilized)
}
