package main

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := `title,ndofs,ndofs_u,ndofs_p,picard,krylov,seconds
PCD/upper,1000,600,400,5,100,0.1
PCD/upper,4000,2400,1600,5,100,0.5
PCD/upper,16000,9600,6400,5,100,2.1
BRM1/lower,1000,600,400,1,10,0.1
BRM1/lower,4000,2400,1600,1,20,0.4
`
	studies, err := readCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, studies, 2)
	// Flat iteration counts
	assert.InDelta(t, 0., studies["PCD/upper"].GrowthExponent(), 1.e-12)
	// Doubling per factor four in size is ndofs^(1/2)
	assert.InDelta(t, 0.5, studies["BRM1/lower"].GrowthExponent(), 1.e-12)

	ss := NewScalingStudy("one level")
	ss.Add(10, 1, 3)
	assert.True(t, math.IsNaN(ss.GrowthExponent()))

	_, err = readCSV(strings.NewReader("title,ndofs,ndofs_u,ndofs_p,picard,krylov,seconds\nA,x,1,1,1,1,1\n"))
	assert.Error(t, err)
	_, err = readCSV(strings.NewReader("title,ndofs\nA,1\n"))
	assert.Error(t, err)
}
