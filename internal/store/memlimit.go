package store

import (
	"log"
	"runtime"
)

// DefaultMemoryPressure is the fraction of total RAM at which the store
// starts spilling tile versions to disk when the limit is auto-detected.
const DefaultMemoryPressure = 0.90

// AutoMemoryLimit returns a memory limit for Config.MemoryLimitBytes derived
// from the machine: the given fraction of total RAM minus the current Go
// runtime footprint plus fixed headroom for decode and encode buffers.
//
// Returns 0 (spilling disabled) when RAM detection fails or the computed
// limit is too small to be useful.
func AutoMemoryLimit(fraction float64, verbose bool) int64 {
	totalRAM, err := totalSystemRAM()
	if err != nil {
		if verbose {
			log.Printf("store: cannot detect system RAM: %v; disk spilling disabled", err)
		}
		return 0
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	overhead := m.Sys + 2<<30

	limit := int64(float64(totalRAM)*fraction) - int64(overhead)
	if limit < 512<<20 {
		if verbose {
			log.Printf("store: computed memory limit too small (%.0f MB); disk spilling disabled",
				float64(limit)/(1<<20))
		}
		return 0
	}

	if verbose {
		log.Printf("store: memory limit %.1f GB (%.0f%% of %.1f GB RAM minus %.1f GB overhead)",
			float64(limit)/(1<<30), fraction*100, float64(totalRAM)/(1<<30), float64(overhead)/(1<<30))
	}
	return limit
}
