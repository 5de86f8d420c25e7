// Package handlers provides HTTP API handlers for the gateway.
package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/streamgate/pkg/httpclient"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	cbManager *httpclient.CircuitBreakerManager
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		cbManager: httpclient.DefaultManager,
	}
}

// WithCircuitBreakerManager sets a custom circuit breaker manager, e.g. the
// one backing the provider pool's per-slot health circuits.
func (h *HealthHandler) WithCircuitBreakerManager(manager *httpclient.CircuitBreakerManager) *HealthHandler {
	h.cbManager = manager
	return h
}

// CPUInfo reports system CPU load.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load1Min"`
	Load5Min           float64 `json:"load5Min"`
	Load15Min          float64 `json:"load15Min"`
	LoadPercentage1Min float64 `json:"loadPercentage1Min"`
}

// ProcessMemoryInfo reports RSS for this process and its children.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"mainProcessMB"`
	ChildProcessCount  int     `json:"childProcessCount"`
	ChildProcessesMB   float64 `json:"childProcessesMB"`
	TotalProcessTreeMB float64 `json:"totalProcessTreeMB"`
	PercentageOfSystem float64 `json:"percentageOfSystem"`
}

// MemoryInfo reports system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"totalMemoryMB"`
	UsedMemoryMB      float64           `json:"usedMemoryMB"`
	FreeMemoryMB      float64           `json:"freeMemoryMB"`
	AvailableMemoryMB float64           `json:"availableMemoryMB"`
	SwapTotalMB       float64           `json:"swapTotalMB"`
	SwapUsedMB        float64           `json:"swapUsedMB"`
	ProcessMemory     ProcessMemoryInfo `json:"processMemory"`
}

// CircuitBreakerStatus mirrors httpclient.CircuitBreakerStatus for the JSON
// response (kept distinct so the wire shape is independent of the client
// package's internal type).
type CircuitBreakerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// HealthComponents groups the sub-component statuses reported by /healthz.
type HealthComponents struct {
	CircuitBreakers []CircuitBreakerStatus `json:"circuitBreakers"`
}

// HealthResponse is the body returned by GET /healthz.
type HealthResponse struct {
	Status        string           `json:"status"`
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	Uptime        string           `json:"uptime"`
	UptimeSeconds float64          `json:"uptimeSeconds"`
	SystemLoad    float64          `json:"systemLoad"`
	CPUInfo       CPUInfo          `json:"cpu"`
	Memory        MemoryInfo       `json:"memory"`
	Components    HealthComponents `json:"components"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/healthz",
		Summary:     "Health check",
		Description: "Returns liveness/readiness and system metrics for the gateway.",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	cpuInfo := h.getCPUInfo()
	memInfo := h.getMemoryInfo()

	var circuitBreakers []CircuitBreakerStatus
	if h.cbManager != nil {
		stats := h.cbManager.GetAllStats()
		circuitBreakers = make([]CircuitBreakerStatus, 0, len(stats))
		for name, s := range stats {
			circuitBreakers = append(circuitBreakers, CircuitBreakerStatus{
				Name:     name,
				State:    s.State.String(),
				Failures: s.Failures,
			})
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			SystemLoad:    cpuInfo.LoadPercentage1Min / 100,
			CPUInfo:       cpuInfo,
			Memory:        memInfo,
			Components: HealthComponents{
				CircuitBreakers: circuitBreakers,
			},
		},
	}, nil
}

func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}
	return info
}

func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	if vmStat, err := mem.VirtualMemory(); err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.FreeMemoryMB = float64(vmStat.Free) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}
	if swapStat, err := mem.SwapMemory(); err == nil && swapStat != nil {
		info.SwapTotalMB = float64(swapStat.Total) / 1024 / 1024
		info.SwapUsedMB = float64(swapStat.Used) / 1024 / 1024
	}
	info.ProcessMemory = h.getProcessMemoryInfo(info.TotalMemoryMB)
	return info
}

func (h *HealthHandler) getProcessMemoryInfo(totalSystemMB float64) ProcessMemoryInfo {
	info := ProcessMemoryInfo{}

	pid := int32(os.Getpid())
	proc, err := process.NewProcess(pid)
	if err != nil {
		return info
	}

	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		info.MainProcessMB = float64(memInfo.RSS) / 1024 / 1024
		info.TotalProcessTreeMB = info.MainProcessMB
		if totalSystemMB > 0 {
			info.PercentageOfSystem = (info.MainProcessMB / totalSystemMB) * 100
		}
	}

	if children, err := proc.Children(); err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			if childMem, err := child.MemoryInfo(); err == nil && childMem != nil {
				childMB := float64(childMem.RSS) / 1024 / 1024
				info.ChildProcessesMB += childMB
				info.TotalProcessTreeMB += childMB
			}
		}
	}
	return info
}
