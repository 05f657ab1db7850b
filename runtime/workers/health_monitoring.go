package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"devicesync/contract"
	"devicesync/observability"
)

// HealthWorker periodically logs process health (RSS, CPU, status) next to
// the sync counters and queue depths. Reads are non-blocking samples; a
// missed tick costs nothing.
type HealthWorker struct {
	log      *slog.Logger
	metrics  *observability.Metrics
	registry contract.IRegistry
	queue    contract.IOfflineQueue
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, metrics *observability.Metrics,
	registry contract.IRegistry, queue contract.IOfflineQueue, interval time.Duration) *HealthWorker {
	return &HealthWorker{
		log:      log,
		metrics:  metrics,
		registry: registry,
		queue:    queue,
		interval: interval,
	}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	w.log.Info("Starting health monitoring worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			snapshot := w.metrics.GetLatest()
			queued := 0
			for _, depth := range w.queue.Depths() {
				queued += depth
			}

			w.log.Info("health",
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"rooms", len(w.registry.Rooms()),
				"offline_queued", queued,
				"messages_relayed", snapshot.MessagesRelayed,
				"messages_dropped", snapshot.MessagesDropped,
				"handoffs_succeeded", snapshot.HandoffsSucceeded,
				"handoffs_failed", snapshot.HandoffsFailed,
				"conflicts_resolved", snapshot.ConflictsResolved,
			)
		}
	}
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
