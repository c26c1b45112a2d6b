package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/eyenet/eyenet-monitor/internal/metrics"
)

// SystemSampler reads host-level metrics (CPU, memory, uptime, network
// interfaces) into the system category.
type SystemSampler struct {
	store    *metrics.Store
	interval time.Duration
}

// NewSystemSampler creates a system sampler writing into the store.
func NewSystemSampler(store *metrics.Store, interval time.Duration) *SystemSampler {
	return &SystemSampler{store: store, interval: interval}
}

func (s *SystemSampler) Name() string            { return "system" }
func (s *SystemSampler) Interval() time.Duration { return s.interval }

func (s *SystemSampler) Run(ctx context.Context) error {
	values := make(map[string]any)

	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return fmt.Errorf("read load average: %w", err)
	}

	// Interval 0 measures utilization since the previous call, which
	// matches the sampling cadence without blocking the loop.
	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return fmt.Errorf("read cpu utilization: %w", err)
	}
	utilization := 0.0
	for _, p := range perCore {
		utilization += p
	}
	if len(perCore) > 0 {
		utilization /= float64(len(perCore))
	}

	values["cpu"] = map[string]any{
		"loadAvg":     []float64{avg.Load1, avg.Load5, avg.Load15},
		"perCore":     perCore,
		"utilization": utilization,
		"cores":       len(perCore),
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Errorf("read memory: %w", err)
	}
	values["memory"] = map[string]any{
		"total":       float64(vm.Total),
		"used":        float64(vm.Used),
		"free":        float64(vm.Available),
		"usedPercent": vm.UsedPercent,
	}

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return fmt.Errorf("read uptime: %w", err)
	}
	values["uptime"] = float64(uptime)

	if ifaces, err := psnet.InterfacesWithContext(ctx); err == nil {
		network := make(map[string]any, len(ifaces))
		for _, iface := range ifaces {
			addrs := make([]any, 0, len(iface.Addrs))
			for _, a := range iface.Addrs {
				addrs = append(addrs, a.Addr)
			}
			network[iface.Name] = map[string]any{
				"mtu":   float64(iface.MTU),
				"addrs": addrs,
			}
		}
		values["network"] = network
	}

	s.store.SetCurrent(metrics.CategorySystem, values)

	// Derived scalars carried into history for charting and threshold
	// checks over time.
	now := time.Now()
	s.store.AppendHistory("system.memory", metrics.NewPointAt(now, vm.UsedPercent))
	s.store.AppendHistory("system.load", metrics.NewPointAt(now, avg.Load1))
	s.store.AppendHistory("system.cpu", metrics.NewPointAt(now, utilization))

	return nil
}
