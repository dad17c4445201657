package gateway

import (
	"encoding/json"
	"runtime"
	"time"

	"trading-enginev1/internal/markethours"
)

// SystemStats holds process resource usage.
type SystemStats struct {
	CPUCores    int     `json:"cpu_cores"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_sec"`
	TS          string  `json:"ts"`
}

// CollectStats samples the Go runtime.
func CollectStats(start time.Time) SystemStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	now := time.Now()
	return SystemStats{
		CPUCores:    runtime.NumCPU(),
		HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
		SysMB:       float64(mem.Sys) / 1024 / 1024,
		GCRuns:      mem.NumGC,
		Goroutines:  runtime.NumGoroutine(),
		UptimeSec:   int64(now.Sub(start).Seconds()),
		TS:          now.UTC().Format(time.RFC3339),
	}
}

func statusEnvelope(session markethours.Session, now, start time.Time) []byte {
	msg, _ := json.Marshal(map[string]interface{}{
		"type":         "status",
		"stats":        CollectStats(start),
		"marketOpen":   session.IsOpen(now),
		"marketStatus": session.Status(now),
	})
	return msg
}
