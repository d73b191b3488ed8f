package api

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/annel0/voxel-mesher/internal/atlas"
	"github.com/annel0/voxel-mesher/internal/cache"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// HealthReport тело ответа /health
type HealthReport struct {
	Status        string       `json:"status"`
	Uptime        string       `json:"uptime"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	CPUPercent    float64      `json:"cpu_percent"`
	Memory        MemoryStats  `json:"memory"`
	Atlas         AtlasHealth  `json:"atlas"`
	MeshCache     *cache.Stats `json:"mesh_cache,omitempty"`
}

// MemoryStats память процесса в MB
type MemoryStats struct {
	AllocMB     float64 `json:"alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	Goroutines  int     `json:"goroutines"`
}

// AtlasHealth состояние атласа в памяти. Ready=false не ошибка:
// атлас соберётся при первом запросе.
type AtlasHealth struct {
	Ready    bool   `json:"ready"`
	Version  string `json:"version,omitempty"`
	Textures int    `json:"textures"`
}

// ServerMetrics собирает показатели процесса для /health
type ServerMetrics struct {
	StartTime time.Time

	procOnce sync.Once
	proc     *process.Process
}

// NewServerMetrics создаёт сборщик, отсчёт uptime начинается с вызова
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{StartTime: time.Now()}
}

// Report собирает HealthReport; a и stats могут быть nil
func (sm *ServerMetrics) Report(a *atlas.Atlas, stats *cache.Stats) HealthReport {
	uptime := time.Since(sm.StartTime)
	cpuPercent, _ := sm.CPUPercent()

	r := HealthReport{
		Status:        "ok",
		Uptime:        formatUptime(uptime),
		UptimeSeconds: uptime.Seconds(),
		CPUPercent:    cpuPercent,
		Memory:        readMemoryStats(),
		MeshCache:     stats,
	}
	if a != nil {
		r.Atlas = AtlasHealth{Ready: true, Version: a.Version, Textures: len(a.Textures)}
	}
	return r
}

// CPUPercent загрузка CPU процессом; если процесс недоступен, системная загрузка
func (sm *ServerMetrics) CPUPercent() (float64, error) {
	sm.procOnce.Do(func() {
		sm.proc, _ = process.NewProcess(int32(os.Getpid()))
	})

	if sm.proc != nil {
		if pct, err := sm.proc.CPUPercent(); err == nil {
			return pct, nil
		}
	}

	pcts, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, nil
	}
	return pcts[0], nil
}

func readMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	const mb = 1024 * 1024
	return MemoryStats{
		AllocMB:     float64(m.Alloc) / mb,
		SysMB:       float64(m.Sys) / mb,
		HeapAllocMB: float64(m.HeapAlloc) / mb,
		NumGC:       m.NumGC,
		Goroutines:  runtime.NumGoroutine(),
	}
}

// formatUptime "1д 2ч 3м 4с" без нулевых старших единиц
func formatUptime(d time.Duration) string {
	s := int(d.Seconds())
	days, s := s/86400, s%86400
	hours, s := s/3600, s%3600
	minutes, seconds := s/60, s%60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}
