package web

import (
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dbehnke/reflector-nexus/pkg/logger"
)

var processStart = time.Now()

type systemResponse struct {
	Build         BuildInfo `json:"build"`
	Hostname      string    `json:"hostname,omitempty"`
	CPUCores      int       `json:"cpu_cores"`
	Load1         float64   `json:"load1"`
	Load5         float64   `json:"load5"`
	Load15        float64   `json:"load15"`
	LoadStatus    string    `json:"load_status"`
	MemoryTotal   uint64    `json:"memory_total"`
	MemoryUsed    uint64    `json:"memory_used"`
	MemoryPercent float64   `json:"memory_percent"`
	Memory        string    `json:"memory"`
	HostUptime    uint64    `json:"host_uptime"`
	Uptime        string    `json:"uptime"`
	Goroutines    int       `json:"goroutines"`
}

// HandleSystem reports host load and memory. Values gopsutil cannot read on
// this platform are left at zero.
func (a *API) HandleSystem(w http.ResponseWriter, r *http.Request) {
	resp := systemResponse{
		Build:      currentBuild(),
		Uptime:     humanize.RelTime(processStart, time.Now(), "", ""),
		Goroutines: runtime.NumGoroutine(),
	}

	if n, err := cpu.CountsWithContext(r.Context(), true); err == nil {
		resp.CPUCores = n
	} else {
		a.logger.Debug("CPU count unavailable", logger.Error(err))
	}
	if avg, err := load.AvgWithContext(r.Context()); err == nil {
		resp.Load1, resp.Load5, resp.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	resp.LoadStatus = loadStatus((resp.Load1+resp.Load5+resp.Load15)/3, resp.CPUCores)

	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		resp.MemoryTotal = vm.Total
		resp.MemoryUsed = vm.Used
		resp.MemoryPercent = vm.UsedPercent
		resp.Memory = humanize.IBytes(vm.Used) + " / " + humanize.IBytes(vm.Total)
	}
	if info, err := host.InfoWithContext(r.Context()); err == nil {
		resp.Hostname = info.Hostname
		resp.HostUptime = info.Uptime
	}

	a.writeJSON(w, http.StatusOK, resp)
}

// loadStatus grades the average load against the core count
func loadStatus(avg float64, cores int) string {
	switch {
	case cores <= 0:
		return "unknown"
	case avg >= float64(cores)*2:
		return "critical"
	case avg >= float64(cores):
		return "warning"
	default:
		return "ok"
	}
}
