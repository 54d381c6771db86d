package logger

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

type componentStat struct {
	warns  int64
	errors int64
}

type streamStat struct {
	messages int64
	bytes    int64
}

var (
	components sync.Map // map[string]*componentStat
	streams    sync.Map // map[string]*streamStat
)

func componentFor(name string) *componentStat {
	v, _ := components.LoadOrStore(name, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&componentFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&componentFor(component).errors, 1)
}

// RecordStreamMessage counts one frame of size bytes on the named stream,
// e.g. "binance_ticker" or "demo_orderbook".
func RecordStreamMessage(name string, size int) {
	v, _ := streams.LoadOrStore(name, &streamStat{})
	s := v.(*streamStat)
	atomic.AddInt64(&s.messages, 1)
	atomic.AddInt64(&s.bytes, int64(size))
}

// StartReport logs a runtime report every interval until ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.WithComponent("report").WithFields(reportFields(ctx)).Info("runtime report")
			}
		}
	}()
}

func reportFields(ctx context.Context) Fields {
	cpuPct := 0.0
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	memMB := int64(0)
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		memMB = int64(vm.Used) / 1024 / 1024
	}

	componentData := map[string]map[string]int64{}
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		componentData[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&cs.warns),
			"errors": atomic.LoadInt64(&cs.errors),
		}
		return true
	})

	streamNames := make([]string, 0)
	streamData := map[string]map[string]int64{}
	streams.Range(func(k, v any) bool {
		name := k.(string)
		ss := v.(*streamStat)
		streamNames = append(streamNames, name)
		streamData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&ss.messages),
			"bytes":    atomic.LoadInt64(&ss.bytes),
		}
		return true
	})
	sort.Strings(streamNames)

	return Fields{
		"goroutines":   runtime.NumGoroutine(),
		"cpu_percent":  cpuPct,
		"memory_mb":    memMB,
		"components":   componentData,
		"streams":      streamData,
		"stream_names": streamNames,
	}
}
