package utils

import (
	"fmt"
	"math"
	"runtime"
)

func GetMemUsage() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	// For info on each, see: https://golang.org/pkg/runtime/#MemStats
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}
	return fmt.Sprintf("Alloc = %v MiB TotalAlloc = %v MiB Sys = %v MiB NumGC = %v",
		bToMb(m.Alloc), bToMb(m.TotalAlloc), bToMb(m.Sys), m.NumGC)
}

// IsNan reports NaN or Inf values, which leaf solves must never hand back
func IsNan(A any) bool {
	switch v := A.(type) {
	case float64:
		return math.IsNaN(v) || math.IsInf(v, 0)
	case []float64:
		for _, f := range v {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return true
			}
		}
	case Matrix:
		return IsNan(v.Data())
	case CSR:
		return IsNan(v.Data())
	case BlockVector:
		return IsNan(v.U) || IsNan(v.P)
	}
	return false
}
