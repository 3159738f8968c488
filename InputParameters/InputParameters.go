package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"

	"github.com/notargets/gopcd/fieldsplit"
	"github.com/notargets/gopcd/krylov"
	"github.com/notargets/gopcd/leafsolver"
	"github.com/notargets/gopcd/model_problems/Channel2D"
	"github.com/notargets/gopcd/pcd"
)

// Parameters obtained from the YAML input file
type PCDParameters struct {
	Title                string  `yaml:"Title"`
	Nx                   int     `yaml:"Nx"`
	Ny                   int     `yaml:"Ny"`
	Length               float64 `yaml:"Length"`
	Viscosity            float64 `yaml:"Viscosity"`
	PCDVariant           string  `yaml:"PCDVariant"`
	Factorization        string  `yaml:"Factorization"`
	VelocitySolver       string  `yaml:"VelocitySolver"`
	PressureSolver       string  `yaml:"PressureSolver"`
	MassSolver           string  `yaml:"MassSolver"`
	NeumannPressure      bool    `yaml:"NeumannPressure"`
	AllowEnclosedNeumann bool    `yaml:"AllowEnclosedNeumann"`
	Stabilized           bool    `yaml:"Stabilized"`
	LeafTolerance        float64 `yaml:"LeafTolerance"`
	LeafIterations       int     `yaml:"LeafIterations"`
	AMGCycles            int     `yaml:"AMGCycles"`
	Tolerance            float64 `yaml:"Tolerance"` // Outer Krylov, relative
	MaxIterations        int     `yaml:"MaxIterations"`
	Restart              int     `yaml:"Restart"`
	Picard               bool    `yaml:"Picard"` // Navier-Stokes when set, Stokes otherwise
	PicardTolerance      float64 `yaml:"PicardTolerance"`
	PicardIterations     int     `yaml:"PicardIterations"`
}

const ExampleFile = `
########################################
Title: "Channel Flow"
Nx: 32
Ny: 16
Length: 2
Viscosity: 0.05
PCDVariant: PCD # Can be BRM1, BRM2
Factorization: upper # Can be lower, diagonal
VelocitySolver: amg # Can be direct
PressureSolver: amg # Can be direct, jacobi-cg, chebyshev
MassSolver: chebyshev
NeumannPressure: false
Tolerance: 1.e-8
Restart: 150
Picard: true
PicardTolerance: 1.e-6
PicardIterations: 25
########################################
`

func NewPCDParameters() *PCDParameters {
	return &PCDParameters{
		Title:            "Channel Flow",
		Nx:               32,
		Ny:               16,
		Length:           2,
		Viscosity:        0.05,
		PCDVariant:       "PCD",
		Factorization:    "upper",
		VelocitySolver:   "amg",
		PressureSolver:   "amg",
		MassSolver:       "chebyshev",
		Tolerance:        1.e-8,
		Restart:          150,
		Picard:           true,
		PicardTolerance:  1.e-6,
		PicardIterations: 25,
	}
}

// Parse overlays the YAML data on the receiver, keys not present keep their values
func (ip *PCDParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func (ip *PCDParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d x %d]\t\t= Cells\n", ip.Nx, ip.Ny)
	fmt.Printf("%8.5f\t\t= Length\n", ip.Length)
	fmt.Printf("%8.5f\t\t= Viscosity\n", ip.Viscosity)
	fmt.Printf("[%s]\t\t\t= PCD Variant\n", ip.PCDVariant)
	fmt.Printf("[%s]\t\t\t= Factorization\n", ip.Factorization)
	fmt.Printf("[%s, %s, %s]\t= Velocity, Pressure, Mass Solvers\n",
		ip.VelocitySolver, ip.PressureSolver, ip.MassSolver)
	fmt.Printf("%8.2e\t\t= Tolerance\n", ip.Tolerance)
	fmt.Printf("[%v]\t\t\t= Picard\n", ip.Picard)
}

// ToConfig resolves the solver names into a validated preconditioner configuration
func (ip *PCDParameters) ToConfig() (cfg fieldsplit.Config, err error) {
	cfg = fieldsplit.Config{
		NeumannPressure:      ip.NeumannPressure,
		AllowEnclosedNeumann: ip.AllowEnclosedNeumann,
		Stabilized:           ip.Stabilized,
		LeafTolerance:        ip.LeafTolerance,
		LeafIterations:       ip.LeafIterations,
		AMGCycles:            ip.AMGCycles,
	}
	if cfg.PCDVariant, err = pcd.NewVariant(ip.PCDVariant); err != nil {
		return
	}
	if cfg.Factorization, err = fieldsplit.NewFactorization(ip.Factorization); err != nil {
		return
	}
	for _, s := range []struct {
		label string
		dst   *leafsolver.Kind
	}{
		{ip.VelocitySolver, &cfg.VelocitySolver},
		{ip.PressureSolver, &cfg.PressureSolver},
		{ip.MassSolver, &cfg.MassSolver},
	} {
		if *s.dst, err = leafsolver.NewKind(s.label); err != nil {
			return
		}
	}
	err = cfg.Validate()
	return
}

func (ip *PCDParameters) KrylovSettings() krylov.Settings {
	return krylov.Settings{
		Tolerance:     ip.Tolerance,
		MaxIterations: ip.MaxIterations,
		Restart:       ip.Restart,
	}
}

func (ip *PCDParameters) PicardSettings() Channel2D.PicardSettings {
	return Channel2D.PicardSettings{
		Tolerance:     ip.PicardTolerance,
		MaxIterations: ip.PicardIterations,
		Linear:        ip.KrylovSettings(),
	}
}

func (ip *PCDParameters) Validate() error {
	if ip.Nx < 2 || ip.Ny < 2 {
		return fmt.Errorf("channel needs at least 2x2 cells, have %dx%d", ip.Nx, ip.Ny)
	}
	if ip.Length <= 0 || ip.Viscosity <= 0 {
		return fmt.Errorf("length and viscosity must be positive, have %g, %g", ip.Length, ip.Viscosity)
	}
	if ip.Tolerance < 0 || ip.MaxIterations < 0 || ip.Restart < 0 {
		return fmt.Errorf("negative krylov controls")
	}
	return nil
}
