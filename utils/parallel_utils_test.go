package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionMap(t *testing.T) {
	{ // Row counts per worker
		getHisto := func(nRows, np int) (histo map[int]int) {
			pm := NewPartitionMap(np, nRows)
			histo = make(map[int]int)
			for n := 0; n < pm.ParallelDegree; n++ {
				histo[pm.GetBucketDimension(n)]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, 287, getTotal(getHisto(287, 32)))
		for n := 64; n < 5000; n += 7 {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
		assert.Equal(t, 100, NewPartitionMap(4, 100).GetBucketDimension(-1))
	}
	{ // Partitions tile the rows contiguously
		pm := NewPartitionMap(7, 100)
		assert.Equal(t, 0, pm.Partitions[0][0])
		for n := 1; n < 7; n++ {
			assert.Equal(t, pm.Partitions[n-1][1], pm.Partitions[n][0])
		}
		assert.Equal(t, 100, pm.Partitions[6][1])
		assert.Equal(t, 1, NewPartitionMap(0, 10).ParallelDegree)
	}
	{ // Finding the owner of a row takes at most one correction
		for maxIndex := 10; maxIndex < 1000; maxIndex += 3 {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				tryCount, bn, min, max := pm.getBucketWithTryCount(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax && tryCount <= 1)
			}
		}
		bn, _, _ := NewPartitionMap(5, 10).GetBucket(10)
		assert.Equal(t, -1, bn)
	}
}
