package operators

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gopcd/utils"
)

func rect(nr, nc int) utils.CSR {
	D := utils.NewDOK(nr, nc)
	for i := 0; i < nr && i < nc; i++ {
		D.Set(i, i, 1)
	}
	return D.ToCSR()
}

func fullSystem(nu, np int) *Blocks {
	b := NewBlocks()
	b.Set(Velocity, rect(nu, nu))
	b.Set(Divergence, rect(np, nu))
	b.Set(Gradient, rect(nu, np))
	b.Set(PressureMass, rect(np, np))
	b.Set(PressureConvDiff, rect(np, np))
	b.Set(PressureLaplacian, rect(np, np))
	return b
}

func TestBlockNames(t *testing.T) {
	for i, name := range BlockPrintNames {
		bn, err := NewBlockName(name)
		assert.NoError(t, err)
		assert.Equal(t, BlockName(i), bn)
		assert.Equal(t, name, bn.String())
	}
	bn, err := NewBlockName(" Pressure_Mass ")
	assert.NoError(t, err)
	assert.Equal(t, PressureMass, bn)
	_, err = NewBlockName("pressure")
	assert.Error(t, err)
	assert.Equal(t, "BlockName(42)", BlockName(42).String())
}

func TestBlocks(t *testing.T) {
	{ // Missing block
		b := NewBlocks()
		_, err := b.Block(Stabilization)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingOperator))
		var me *MissingOperatorError
		require.True(t, errors.As(err, &me))
		assert.Equal(t, Stabilization, me.Block)
		assert.Contains(t, err.Error(), "stabilization")
	}
	{ // Stored handles are read-only copies
		b := NewBlocks()
		m := rect(3, 3)
		b.Set(PressureMass, m)
		got, err := b.Block(PressureMass)
		require.NoError(t, err)
		assert.True(t, got.IsReadOnly())
		assert.Equal(t, "pressure_mass", got.Name())
		assert.False(t, m.IsReadOnly())
		m.Scale(4)
		assert.Equal(t, 1., got.At(1, 1))
		assert.Panics(t, func() { got.Scale(2) })
	}
	{ // Reassembly bumps the revision and notifies subscribers
		b := NewBlocks()
		var seen []BlockName
		unsubscribe := b.Subscribe(func(name BlockName) { seen = append(seen, name) })
		var other int
		unsubscribeOther := b.Subscribe(func(name BlockName) { other++ })
		assert.Equal(t, 2, b.Subscribers())
		assert.Equal(t, 0, b.Revision())
		b.Set(Velocity, rect(2, 2))
		b.Set(PressureConvDiff, rect(1, 1))
		assert.Equal(t, 2, b.Revision())
		assert.Equal(t, []BlockName{Velocity, PressureConvDiff}, seen)
		assert.True(t, b.Has(Velocity))
		assert.False(t, b.Has(Gradient))
		// Removed subscribers hear nothing, the rest are unaffected
		unsubscribe()
		unsubscribe()
		assert.Equal(t, 1, b.Subscribers())
		b.Set(InflowBoundary, rect(1, 1))
		assert.Len(t, seen, 2)
		assert.Equal(t, 3, other)
		unsubscribeOther()
		assert.Zero(t, b.Subscribers())
	}
}

func TestCheckConformal(t *testing.T) {
	{ // Stable pair
		b := fullSystem(6, 4)
		assert.NoError(t, CheckConformal(b, false))
		nu, np, err := SystemDims(b)
		assert.NoError(t, err)
		assert.Equal(t, 6, nu)
		assert.Equal(t, 4, np)
	}
	{ // Stabilized configuration needs C
		b := fullSystem(6, 4)
		err := CheckConformal(b, true)
		assert.True(t, errors.Is(err, ErrMissingOperator))
		b.Set(Stabilization, rect(4, 4))
		assert.NoError(t, CheckConformal(b, true))
	}
	{ // Wrong shapes
		b := fullSystem(6, 4)
		b.Set(Gradient, rect(4, 6))
		err := CheckConformal(b, false)
		assert.True(t, errors.Is(err, ErrNonConformal))
		assert.Contains(t, err.Error(), "gradient")

		b = fullSystem(6, 4)
		b.Set(PressureLaplacian, rect(5, 5))
		assert.True(t, errors.Is(CheckConformal(b, false), ErrNonConformal))
	}
}

func TestPressureBoundary(t *testing.T) {
	{ // Channel: inflow and outflow columns
		pb := NewPressureBoundary()
		pb.Add(utils.BCInflow, 4, 0, 2)
		pb.Add(utils.BCOutflow, 7, 3, 7)
		pb.Add(utils.BCWall, 0, 1, 2, 3)
		assert.Equal(t, []int{0, 2, 4}, pb.Dofs(utils.BCInflow))
		assert.Equal(t, []int{3, 7}, pb.Dofs(utils.BCOutflow))
		assert.Equal(t, []int{3, 7}, pb.Free())
		assert.Nil(t, pb.Dofs(utils.BCSlipWall))
	}
	{ // Enclosed cavity has no free boundary
		pb := NewPressureBoundary().Add(utils.BCWall, 0, 1, 2)
		assert.Empty(t, pb.Free())
	}
	{ // Blocks carry the boundary description
		b := NewBlocks()
		assert.Empty(t, b.PressureBoundary().Free())
		b.SetPressureBoundary(NewPressureBoundary().Add(utils.BCOutflow, 1))
		var bp BoundaryProvider = b
		assert.Equal(t, []int{1}, bp.PressureBoundary().Free())
	}
}
