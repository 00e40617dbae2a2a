package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetrics holds one system snapshot
type SystemMetrics struct {
	CPUPercent        float64 // system-wide, 0-100
	ProcessCPUPercent float64 // this process, per core so it can exceed 100
	ProcessRSSMB      float64
	MemoryUsedGB      float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	NetRecvMBps       float64
	NetSentMBps       float64
	Timestamp         time.Time
}

var (
	systemCPU = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tileworld_system_cpu_percent",
		Help: "System-wide CPU usage.",
	})
	systemMem = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tileworld_system_memory_percent",
		Help: "System memory in use.",
	})
	netRecv = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tileworld_net_recv_mbps",
		Help: "Network receive rate across interfaces.",
	})
)

// Collector samples system metrics on an interval and logs them
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	lastNet     net.IOCountersStat
	lastNetTime time.Time
	hasNet      bool

	mu          sync.RWMutex
	lastMetrics *SystemMetrics
}

// NewCollector creates a collector; intervals under a second fall back to 30s
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// Start collects until ctx is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// first sample sets the network baseline
	c.Collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// GetMetrics returns the last snapshot, nil before the first sample
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

// Collect takes one sample, publishes it and logs it
func (c *Collector) Collect() *SystemMetrics {
	m := &SystemMetrics{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}

	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			m.ProcessCPUPercent = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil && info != nil {
			m.ProcessRSSMB = float64(info.RSS) / (1024 * 1024)
		}
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		m.MemoryPercent = vmem.UsedPercent
		m.MemoryUsedGB = float64(vmem.Used) / (1024 * 1024 * 1024)
		m.MemoryTotalGB = float64(vmem.Total) / (1024 * 1024 * 1024)
	}

	m.NetRecvMBps, m.NetSentMBps = c.networkRates(m.Timestamp)

	c.mu.Lock()
	c.lastMetrics = m
	c.mu.Unlock()

	systemCPU.Set(m.CPUPercent)
	systemMem.Set(m.MemoryPercent)
	netRecv.Set(m.NetRecvMBps)

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", m.CPUPercent),
		zap.Float64("proc_cpu", m.ProcessCPUPercent),
		zap.String("proc_rss", fmt.Sprintf("%.1f MB", m.ProcessRSSMB)),
		zap.Float64("mem_pct", m.MemoryPercent),
		zap.String("mem_used", fmt.Sprintf("%.1f GB", m.MemoryUsedGB)),
		zap.String("net_in", fmt.Sprintf("%.2f MB/s", m.NetRecvMBps)),
		zap.String("net_out", fmt.Sprintf("%.2f MB/s", m.NetSentMBps)),
	)
	return m
}

// networkRates returns receive/send rates since the previous sample
func (c *Collector) networkRates(now time.Time) (recv, sent float64) {
	counters, err := net.IOCounters(false) // false = aggregate all interfaces
	if err != nil || len(counters) == 0 {
		return 0, 0
	}
	cur := counters[0]

	if !c.hasNet {
		c.lastNet, c.lastNetTime, c.hasNet = cur, now, true
		return 0, 0
	}

	elapsed := now.Sub(c.lastNetTime).Seconds()
	last := c.lastNet
	c.lastNet, c.lastNetTime = cur, now
	if elapsed < 0.1 {
		return 0, 0
	}

	// counters can wrap or reset
	if cur.BytesRecv >= last.BytesRecv {
		recv = float64(cur.BytesRecv-last.BytesRecv) / elapsed / (1024 * 1024)
	}
	if cur.BytesSent >= last.BytesSent {
		sent = float64(cur.BytesSent-last.BytesSent) / elapsed / (1024 * 1024)
	}
	return recv, sent
}
