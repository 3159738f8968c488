package Channel2D

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/notargets/gopcd/comm"
	"github.com/notargets/gopcd/operators"
	"github.com/notargets/gopcd/utils"
)

/*
Oseen linearization of steady incompressible flow in the channel [0,L]x[0,1]:

				-nu Δu + (w·∇)u + ∇p = 0
				              -∇·u  = 0

on a staggered (MAC) grid of Nx x Ny cells, which is a stable velocity-pressure
pair, so no stabilization block exists.

			   v(i,j+1)
			+-----^-----+
			|           |
	u(i,j)	>   p(i,j)  >  u(i+1,j)
			|           |
			+-----^-----+
			   v(i,j)

	u lives on vertical faces i = 0..Nx, u(0,j) is the parabolic inflow 4y(1-y)
	and is eliminated, u(Nx,j) is the outflow face with zero normal derivative.
	v lives on horizontal faces j = 0..Ny, v(i,0) = v(i,Ny) = 0 on the walls.
	p lives at cell centres, with p = 0 just past the outflow face.

Every equation is integrated over its control volume, so all operators carry
the cell area. Convection is first order upwind on the wind w, which is the
previous Picard iterate. With B = -D (negative discrete divergence) the
gradient block is exactly B^T, the system being

				[ A   B^T ] [u]   [f]
				[ B    0  ] [p] = [g]

where f and g hold the inflow data.

Pressure space operators for the PCD family:
				M_p = |cell| I
				A_p = cell centred Laplacian with Neumann conditions on every side
				F_p = nu A_p + upwind convection on the cell centred wind
				R_p = -(w.n)|face| on the cells next to the inflow
*/

type nbrKind uint8

const (
	interior  nbrKind = iota
	dirichlet         // Known value on the boundary
	noSlip            // Ghost mirrors to zero on the wall
	outflow           // Zero normal derivative
)

type nbr struct {
	kind nbrKind
	idx  int
	val  float64
}

// couple adds c*(x_row - x_nbr) to the row
func couple(A utils.DOK, rhs []float64, row int, n nbr, c float64) {
	switch n.kind {
	case interior:
		A.Add(row, row, c)
		A.Add(row, n.idx, -c)
	case dirichlet:
		A.Add(row, row, c)
		rhs[row] += c * n.val
	case noSlip:
		A.Add(row, row, 2*c)
	case outflow:
	}
}

func InflowProfile(y float64) float64 { return 4 * y * (1 - y) }

type Channel2D struct {
	*operators.Blocks
	ctx               *comm.Context
	logger            *zap.Logger
	Nx, Ny            int
	Length, Viscosity float64
	Hx, Hy, Area      float64
	Nu, Np            int
	F                 utils.BlockVector // Right-hand side for the current wind
}

func NewChannel2D(ctx *comm.Context, nx, ny int, length, viscosity float64) (c *Channel2D) {
	if nx < 2 || ny < 2 {
		panic(fmt.Errorf("channel needs at least 2x2 cells, have %dx%d", nx, ny))
	}
	if length <= 0 || viscosity <= 0 {
		panic(fmt.Errorf("channel length and viscosity must be positive, have %g, %g", length, viscosity))
	}
	c = &Channel2D{
		Blocks:    operators.NewBlocks(),
		ctx:       ctx,
		logger:    ctx.Logger("channel2d"),
		Nx:        nx,
		Ny:        ny,
		Length:    length,
		Viscosity: viscosity,
		Hx:        length / float64(nx),
		Hy:        1 / float64(ny),
	}
	c.Area = c.Hx * c.Hy
	c.Nu = nx*ny + nx*(ny-1)
	c.Np = nx * ny
	c.F = utils.NewBlockVector(c.Nu, c.Np)
	c.assembleFixed()
	c.Assemble(nil)
	return
}

func (c *Channel2D) UIndex(i, j int) int { return (i - 1) + j*c.Nx }     // i = 1..Nx
func (c *Channel2D) VIndex(i, j int) int { return c.Nx*c.Ny + i + (j-1)*c.Nx } // j = 1..Ny-1
func (c *Channel2D) PIndex(i, j int) int { return i + j*c.Nx }

func (c *Channel2D) yc(j int) float64 { return (float64(j) + 0.5) * c.Hy }

// uAt is the wind u on face (i,j) including the inflow face. A nil wind is
// Stokes flow and has no convection anywhere.
func (c *Channel2D) uAt(w []float64, i, j int) float64 {
	switch {
	case w == nil:
		return 0
	case i == 0:
		return InflowProfile(c.yc(j))
	}
	return w[c.UIndex(i, j)]
}

// vAt is the v velocity on face (i,j) including the walls
func (c *Channel2D) vAt(w []float64, i, j int) float64 {
	if j == 0 || j == c.Ny || w == nil {
		return 0
	}
	return w[c.VIndex(i, j)]
}

// assembleFixed sets the wind independent blocks and the pressure boundary
func (c *Channel2D) assembleFixed() {
	var (
		nx, ny = c.Nx, c.Ny
		B      = utils.NewDOK(c.Np, c.Nu)
		Mp     = utils.NewDOK(c.Np, c.Np)
		Ap     = utils.NewDOK(c.Np, c.Np)
		pb     = operators.NewPressureBoundary()
		cx, cy = c.Hy / c.Hx, c.Hx / c.Hy
	)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			p := c.PIndex(i, j)
			// B = -D
			B.Set(p, c.UIndex(i+1, j), -c.Hy)
			if i > 0 {
				B.Set(p, c.UIndex(i, j), c.Hy)
			} else {
				c.F.P[p] = -c.Hy * InflowProfile(c.yc(j))
			}
			if j+1 < ny {
				B.Set(p, c.VIndex(i, j+1), -c.Hx)
			}
			if j > 0 {
				B.Set(p, c.VIndex(i, j), c.Hx)
			}
			Mp.Set(p, p, c.Area)
			if i > 0 {
				couple(Ap, nil, p, nbr{kind: interior, idx: c.PIndex(i-1, j)}, cx)
			}
			if i < nx-1 {
				couple(Ap, nil, p, nbr{kind: interior, idx: c.PIndex(i+1, j)}, cx)
			}
			if j > 0 {
				couple(Ap, nil, p, nbr{kind: interior, idx: c.PIndex(i, j-1)}, cy)
			}
			if j < ny-1 {
				couple(Ap, nil, p, nbr{kind: interior, idx: c.PIndex(i, j+1)}, cy)
			}
			switch {
			case i == 0:
				pb.Add(utils.BCInflow, p)
			case i == nx-1:
				pb.Add(utils.BCOutflow, p)
			}
			if j == 0 || j == ny-1 {
				pb.Add(utils.BCWall, p)
			}
		}
	}
	Bc := B.ToCSR()
	c.SetPressureBoundary(pb)
	c.Set(operators.Divergence, Bc)
	c.Set(operators.Gradient, Bc.Transpose())
	c.Set(operators.PressureMass, Mp.ToCSR())
	c.Set(operators.PressureLaplacian, Ap.ToCSR())
}

// Assemble rebuilds the convection dependent blocks A, F_p and R_p around the
// wind w (velocity unknowns, nil for Stokes flow). Every listener of the
// provider is notified, which marks bound preconditioners stale.
func (c *Channel2D) Assemble(w []float64) {
	if w != nil && len(w) != c.Nu {
		panic(fmt.Errorf("wind has length %d, want %d", len(w), c.Nu))
	}
	var (
		nx, ny = c.Nx, c.Ny
		nu     = c.Viscosity
		A      = utils.NewDOK(c.Nu, c.Nu)
		Fp     = utils.NewDOK(c.Np, c.Np)
		Rp     = utils.NewDOK(c.Np, c.Np)
		f      = make([]float64, c.Nu)
		cx, cy = nu * c.Hy / c.Hx, nu * c.Hx / c.Hy
	)
	upwind := func(row int, wind, h float64, minus, plus nbr) {
		if wind > 0 {
			couple(A, f, row, minus, wind*h)
		} else if wind < 0 {
			couple(A, f, row, plus, -wind*h)
		}
	}
	// u momentum
	for j := 0; j < ny; j++ {
		for i := 1; i <= nx; i++ {
			var (
				row                      = c.UIndex(i, j)
				west, east, south, north nbr
			)
			if i == 1 {
				west = nbr{kind: dirichlet, val: InflowProfile(c.yc(j))}
			} else {
				west = nbr{kind: interior, idx: c.UIndex(i-1, j)}
			}
			if i == nx {
				east = nbr{kind: outflow}
			} else {
				east = nbr{kind: interior, idx: c.UIndex(i+1, j)}
			}
			if j == 0 {
				south = nbr{kind: noSlip}
			} else {
				south = nbr{kind: interior, idx: c.UIndex(i, j-1)}
			}
			if j == ny-1 {
				north = nbr{kind: noSlip}
			} else {
				north = nbr{kind: interior, idx: c.UIndex(i, j+1)}
			}
			couple(A, f, row, west, cx)
			couple(A, f, row, east, cx)
			couple(A, f, row, south, cy)
			couple(A, f, row, north, cy)
			var (
				wx     = c.uAt(w, i, j)
				wy     float64
				nCells int
			)
			for _, col := range []int{i - 1, i} {
				if col < nx {
					wy += c.vAt(w, col, j) + c.vAt(w, col, j+1)
					nCells++
				}
			}
			wy /= float64(2 * nCells)
			upwind(row, wx, c.Hy, west, east)
			upwind(row, wy, c.Hx, south, north)
		}
	}
	// v momentum
	for j := 1; j < ny; j++ {
		for i := 0; i < nx; i++ {
			var (
				row                      = c.VIndex(i, j)
				west, east, south, north nbr
			)
			if i == 0 {
				west = nbr{kind: noSlip}
			} else {
				west = nbr{kind: interior, idx: c.VIndex(i-1, j)}
			}
			if i == nx-1 {
				east = nbr{kind: outflow}
			} else {
				east = nbr{kind: interior, idx: c.VIndex(i+1, j)}
			}
			if j == 1 {
				south = nbr{kind: dirichlet}
			} else {
				south = nbr{kind: interior, idx: c.VIndex(i, j-1)}
			}
			if j == ny-1 {
				north = nbr{kind: dirichlet}
			} else {
				north = nbr{kind: interior, idx: c.VIndex(i, j+1)}
			}
			couple(A, f, row, west, cx)
			couple(A, f, row, east, cx)
			couple(A, f, row, south, cy)
			couple(A, f, row, north, cy)
			var (
				wx = 0.25 * (c.uAt(w, i, j-1) + c.uAt(w, i+1, j-1) + c.uAt(w, i, j) + c.uAt(w, i+1, j))
				wy = c.vAt(w, i, j)
			)
			upwind(row, wx, c.Hy, west, east)
			upwind(row, wy, c.Hx, south, north)
		}
	}
	// Pressure convection-diffusion, F_p = nu A_p + K_p
	Ap := c.mustBlock(operators.PressureLaplacian)
	Ap.DoNonZero(func(i, j int, v float64) { Fp.Add(i, j, nu*v) })
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			var (
				p  = c.PIndex(i, j)
				wx = 0.5 * (c.uAt(w, i, j) + c.uAt(w, i+1, j))
				wy = 0.5 * (c.vAt(w, i, j) + c.vAt(w, i, j+1))
			)
			switch {
			case wx > 0 && i > 0:
				couple(Fp, nil, p, nbr{kind: interior, idx: c.PIndex(i-1, j)}, wx*c.Hy)
			case wx < 0 && i < nx-1:
				couple(Fp, nil, p, nbr{kind: interior, idx: c.PIndex(i+1, j)}, -wx*c.Hy)
			}
			switch {
			case wy > 0 && j > 0:
				couple(Fp, nil, p, nbr{kind: interior, idx: c.PIndex(i, j-1)}, wy*c.Hx)
			case wy < 0 && j < ny-1:
				couple(Fp, nil, p, nbr{kind: interior, idx: c.PIndex(i, j+1)}, -wy*c.Hx)
			}
		}
	}
	// Inflow boundary term, the outward normal is -x
	for j := 0; j < ny; j++ {
		if wn := -c.uAt(w, 0, j); wn != 0 {
			Rp.Set(c.PIndex(0, j), c.PIndex(0, j), -wn*c.Hy)
		}
	}
	copy(c.F.U, f)
	c.Set(operators.Velocity, A.ToCSR())
	c.Set(operators.PressureConvDiff, Fp.ToCSR())
	c.Set(operators.InflowBoundary, Rp.ToCSR())
	c.logger.Debug("assembled",
		zap.Int("nu", c.Nu), zap.Int("np", c.Np), zap.Int("revision", c.Revision()))
}

// MulVec is the system matvec on flat [u;p] vectors for the current blocks
func (c *Channel2D) MulVec(dst, x []float64) {
	var (
		xv, dv = utils.View(x, c.Nu), utils.View(dst, c.Nu)
		tu     = make([]float64, c.Nu)
	)
	A := c.mustBlock(operators.Velocity)
	B := c.mustBlock(operators.Divergence)
	Bt := c.mustBlock(operators.Gradient)
	c.ctx.MulVec(A, dv.U, xv.U)
	c.ctx.MulVec(Bt, tu, xv.P)
	for i := range tu {
		dv.U[i] += tu[i]
	}
	c.ctx.MulVec(B, dv.P, xv.U)
}

// mustBlock fails loudly on a block the channel itself never assembled
func (c *Channel2D) mustBlock(name operators.BlockName) utils.CSR {
	m, err := c.Block(name)
	if err != nil {
		panic(err)
	}
	return m
}

// OutflowFlux integrates u over the outflow face, InflowFlux its inflow counterpart
func (c *Channel2D) OutflowFlux(x utils.BlockVector) (flux float64) {
	for j := 0; j < c.Ny; j++ {
		flux += c.Hy * x.U[c.UIndex(c.Nx, j)]
	}
	return
}

func (c *Channel2D) InflowFlux() (flux float64) {
	for j := 0; j < c.Ny; j++ {
		flux += c.Hy * InflowProfile(c.yc(j))
	}
	return
}
