package utils

// PartitionMap splits the rows of a distributed operator into contiguous
// ranges, one per cooperating worker, with a maximum imbalance of one row.
type PartitionMap struct {
	MaxIndex       int // MaxIndex rows are partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end row of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	if ParallelDegree < 1 {
		ParallelDegree = 1
	}
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

// GetBucket returns the partition owning row, and that partition's row range
func (pm *PartitionMap) GetBucket(row int) (bucketNum, min, max int) {
	_, bucketNum, min, max = pm.getBucketWithTryCount(row)
	return
}

func (pm *PartitionMap) getBucketWithTryCount(row int) (tryCount, bucketNum, min, max int) {
	if row < 0 || row >= pm.MaxIndex {
		return 0, -1, 0, 0
	}
	// Initial guess
	bucketNum = int(float64(pm.ParallelDegree*row) / float64(pm.MaxIndex))
	for !(pm.Partitions[bucketNum][0] <= row && pm.Partitions[bucketNum][1] > row) {
		if pm.Partitions[bucketNum][0] > row {
			bucketNum--
		} else {
			bucketNum++
		}
		if bucketNum == -1 || bucketNum == pm.ParallelDegree {
			return 0, -1, 0, 0
		}
		tryCount++
	}
	min, max = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (rMin, rMax int) {
	rMin, rMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) (rMax int) {
	if bn == -1 {
		rMax = pm.MaxIndex
		return
	}
	var (
		r1, r2 = pm.GetBucketRange(bn)
	)
	rMax = r2 - r1
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// This routine splits one dimension into pm.ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}
