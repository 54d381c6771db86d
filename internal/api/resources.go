package api

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"marketfeed/logger"
)

// resourceSnapshot is one host sample.
type resourceSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	Load1       float64   `json:"load1"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskPct     float64   `json:"disk_percent"`
	Goroutines  int       `json:"goroutines"`
	Streams     int       `json:"streams"`
}

// resourceSampler periodically samples the host alongside the number of open
// market streams.
type resourceSampler struct {
	samples  *ring[resourceSnapshot]
	interval time.Duration
	diskPath string
	streams  func() int

	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
	log     *logger.Log
}

var (
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		return cpu.PercentWithContext(ctx, interval, false)
	}
	loadAvgFn     = load.AvgWithContext
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
)

func newResourceSampler(limit int, interval time.Duration, diskPath string, streams func() int, log *logger.Log) *resourceSampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	if streams == nil {
		streams = func() int { return 0 }
	}
	return &resourceSampler{
		samples:  newRing[resourceSnapshot](limit),
		interval: interval,
		diskPath: diskPath,
		streams:  streams,
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	if s == nil || s.running.Swap(true) {
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
}

func (s *resourceSampler) stop() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.running.Store(false)
}

func (s *resourceSampler) snapshot() []resourceSnapshot {
	if s == nil {
		return nil
	}
	return s.samples.snapshot()
}

// run samples until ctx is done. The CPU call blocks for one interval, which
// paces the loop.
func (s *resourceSampler) run(ctx context.Context) {
	log := s.log.WithComponent("resource_sampler")
	for ctx.Err() == nil {
		cpuSamples, err := cpuPercentFn(ctx, s.interval)
		if err != nil {
			log.WithError(err).Debug("failed to sample cpu usage")
			if !waitInterval(ctx, s.interval) {
				return
			}
			continue
		}

		snap := resourceSnapshot{
			Timestamp:  time.Now(),
			Goroutines: runtime.NumGoroutine(),
			Streams:    s.streams(),
		}
		if len(cpuSamples) > 0 {
			snap.CPUPercent = cpuSamples[0]
		}
		if avg, err := loadAvgFn(ctx); err == nil {
			snap.Load1 = avg.Load1
		}
		if vm, err := memoryStatsFn(ctx); err == nil {
			snap.MemoryUsed, snap.MemoryTotal, snap.MemoryPct = vm.Used, vm.Total, vm.UsedPercent
		} else {
			log.WithError(err).Debug("failed to sample memory usage")
		}
		if du, err := diskUsageFn(ctx, s.diskPath); err == nil {
			snap.DiskUsed, snap.DiskTotal, snap.DiskPct = du.Used, du.Total, du.UsedPercent
		} else {
			log.WithError(err).Debug("failed to sample disk usage")
		}
		s.samples.push(snap)
	}
}

func waitInterval(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
