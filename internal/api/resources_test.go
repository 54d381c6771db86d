package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"marketfeed/logger"
)

func stubCollectors(t *testing.T) *atomic.Int32 {
	t.Helper()
	originalCPU, originalLoad, originalMem, originalDisk := cpuPercentFn, loadAvgFn, memoryStatsFn, diskUsageFn
	t.Cleanup(func() {
		cpuPercentFn, loadAvgFn, memoryStatsFn, diskUsageFn = originalCPU, originalLoad, originalMem, originalDisk
	})

	calls := &atomic.Int32{}
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		calls.Add(1)
		time.Sleep(interval)
		return []float64{42.5}, nil
	}
	loadAvgFn = func(ctx context.Context) (*load.AvgStat, error) {
		return &load.AvgStat{Load1: 1.5}, nil
	}
	memoryStatsFn = func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Used: 1024, Total: 2048, UsedPercent: 50}, nil
	}
	diskUsageFn = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Used: 4096, Total: 8192, UsedPercent: 50}, nil
	}
	return calls
}

func waitForSamples(t *testing.T, s *resourceSampler) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for len(s.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("resource sampler did not collect samples in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestResourceSamplerCollectsSamples(t *testing.T) {
	calls := stubCollectors(t)
	sampler := newResourceSampler(3, 10*time.Millisecond, "/", func() int { return 4 }, logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sampler.start(ctx)
	waitForSamples(t, sampler)
	cancel()
	sampler.stop()

	snapshots := sampler.snapshot()
	latest := snapshots[len(snapshots)-1]
	if latest.CPUPercent != 42.5 || latest.MemoryPct != 50 || latest.DiskPct != 50 || latest.Load1 != 1.5 {
		t.Fatalf("unexpected snapshot data: %#v", latest)
	}
	if latest.Streams != 4 || latest.Goroutines == 0 {
		t.Fatalf("expected stream and goroutine counts, got %#v", latest)
	}
	if len(snapshots) > 3 {
		t.Fatalf("sampler exceeded its history limit: %d", len(snapshots))
	}
	if calls.Load() == 0 {
		t.Fatal("expected cpu sampler to be invoked")
	}
}

func TestResourceSamplerKeepsPartialSamples(t *testing.T) {
	stubCollectors(t)
	diskUsageFn = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		return nil, errors.New("no such mount")
	}
	sampler := newResourceSampler(3, 10*time.Millisecond, "/missing", nil, logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sampler.start(ctx)
	waitForSamples(t, sampler)
	sampler.stop()

	latest := sampler.snapshot()[0]
	if latest.MemoryPct != 50 || latest.DiskTotal != 0 {
		t.Fatalf("expected memory without disk, got %#v", latest)
	}
}
