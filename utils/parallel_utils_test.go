package utils

import (
	"math"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionMap(t *testing.T) {
	{ // bucket sizes
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				histo[pm.GetBucketDimension(np)]++
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
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		for n := 64; n < 2000; n++ {
			var (
				keys   [2]float64
				keyNum int
				histo  = getHisto(n, 32)
			)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // imbalance of at most one
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // the bucket owning an index is found in at most one probe
		for maxIndex := 10; maxIndex < 300; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				tryCount, bn, min, max := pm.getBucketWithTryCount(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax && tryCount <= 1)
			}
		}
	}
	{ // local and global indices round trip
		for _, maxIndex := range []int{7, 32, 101} {
			pm := NewPartitionMap(4, maxIndex)
			for k := 0; k < maxIndex; k++ {
				kLocal, kMax, bn := pm.GetLocalK(k)
				assert.Equal(t, pm.GetBucketDimension(bn), kMax)
				assert.True(t, kLocal >= 0 && kLocal < kMax)
				assert.Equal(t, k, pm.GetGlobalK(kLocal, bn))
			}
			assert.Equal(t, 5, pm.GetGlobalK(5, -1))
			assert.Equal(t, maxIndex, pm.GetBucketDimension(-1))
		}
	}
}

func TestParallelDegree(t *testing.T) {
	assert.Equal(t, 3, ParallelDegree(8, 3))
	assert.Equal(t, 2, ParallelDegree(2, 3))
	assert.Equal(t, 1, ParallelDegree(4, 0))
	np := ParallelDegree(0, 1000)
	assert.Equal(t, min(runtime.NumCPU(), 1000), np)
}

func TestForEachBucket(t *testing.T) {
	for _, tc := range [][2]int{{1, 7}, {3, 7}, {4, 4}, {5, 23}} {
		var (
			pm   = NewPartitionMap(tc[0], tc[1])
			seen = make([]int, tc[1])
			mu   sync.Mutex
		)
		pm.ForEachBucket(func(bucket, kMin, kMax int) {
			mu.Lock()
			defer mu.Unlock()
			for k := kMin; k < kMax; k++ {
				seen[k]++
			}
		})
		for k, n := range seen {
			assert.Equal(t, 1, n, "index %d of %d over %d buckets", k, tc[1], tc[0])
		}
	}
}
