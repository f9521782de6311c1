package monitoring

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/oops"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/isdelr/lab-portal/internal/websocket"
)

// HostSnapshot is a point-in-time view of the machine the portal runs on.
type HostSnapshot struct {
	Hostname      string  `json:"hostname"`
	Platform      string  `json:"platform"`
	Uptime        uint64  `json:"uptimeSeconds"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	MemoryUsed    uint64  `json:"memoryUsedBytes"`
	MemoryTotal   uint64  `json:"memoryTotalBytes"`
	DiskPercent   float64 `json:"diskPercent"`
	Load1         float64 `json:"load1"`
	Load5         float64 `json:"load5"`
	Load15        float64 `json:"load15"`
}

// CollectHost samples CPU over one second and reads memory, load, uptime and
// the usage of the filesystem holding diskPath. Sources that are unavailable
// on the platform are left zero.
func CollectHost(ctx context.Context, diskPath string) (HostSnapshot, error) {
	var snap HostSnapshot

	pct, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return HostSnapshot{}, oops.Code("HOST_STATS_FAILED").With("source", "cpu").Wrap(err)
	}
	if len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostSnapshot{}, oops.Code("HOST_STATS_FAILED").With("source", "memory").Wrap(err)
	}
	snap.MemoryPercent = vm.UsedPercent
	snap.MemoryUsed = vm.Used
	snap.MemoryTotal = vm.Total

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.Load1, snap.Load5, snap.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.Hostname = info.Hostname
		snap.Platform = info.Platform + " " + info.PlatformVersion
		snap.Uptime = info.Uptime
	}
	if diskPath != "" {
		if usage, err := disk.UsageWithContext(ctx, diskPath); err == nil {
			snap.DiskPercent = usage.UsedPercent
		}
	}
	return snap, nil
}

// HostObserver receives host snapshots.
type HostObserver interface {
	ObserveHost(cpuPercent, memPercent, load1 float64)
}

// HostPublisher pushes host snapshots to live subscribers.
type HostPublisher interface {
	PublishHostStats(stats websocket.HostStats)
}

// StatUpdater is responsible for periodically sampling host stats into the
// metrics gauges and the live host stream.
type StatUpdater struct {
	interval  time.Duration
	diskPath  string
	observer  HostObserver
	publisher HostPublisher
	collect   func(ctx context.Context, diskPath string) (HostSnapshot, error)
	done      chan struct{}
	stopped   chan struct{}
}

// NewStatUpdater creates a new StatUpdater. publisher may be nil.
func NewStatUpdater(interval time.Duration, diskPath string, observer HostObserver, publisher HostPublisher) *StatUpdater {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &StatUpdater{
		interval:  interval,
		diskPath:  diskPath,
		observer:  observer,
		publisher: publisher,
		collect:   CollectHost,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Run starts the periodic updates and blocks until Stop.
func (su *StatUpdater) Run() {
	defer close(su.stopped)

	log.Info().Dur("interval", su.interval).Msg("Starting background stat updater...")
	ticker := time.NewTicker(su.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-su.done
		cancel()
	}()

	// Run once immediately on start
	su.update(ctx)

	for {
		select {
		case <-su.done:
			log.Info().Msg("Stopping background stat updater.")
			return
		case <-ticker.C:
			su.update(ctx)
		}
	}
}

// Stop halts the periodic updates and waits for Run to return.
func (su *StatUpdater) Stop() {
	close(su.done)
	<-su.stopped
}

func (su *StatUpdater) update(ctx context.Context) {
	snap, err := su.collect(ctx, su.diskPath)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("StatUpdater: failed to collect host stats")
		}
		return
	}

	if su.observer != nil {
		su.observer.ObserveHost(snap.CPUPercent, snap.MemoryPercent, snap.Load1)
	}
	if su.publisher != nil {
		su.publisher.PublishHostStats(websocket.HostStats{
			CPUPercent:    snap.CPUPercent,
			MemoryPercent: snap.MemoryPercent,
			Load1:         snap.Load1,
		})
	}
}
