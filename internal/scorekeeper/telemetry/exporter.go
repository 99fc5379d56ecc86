package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Process-wide running totals mirrored from the Prometheus collectors so the
// exporter can log windowed deltas without scraping its own registry.
var (
	writesAll       atomic.Int64
	noopsAll        atomic.Int64
	auditErrorsAll  atomic.Int64
	mirrorErrorsAll atomic.Int64
	pollsAll        atomic.Int64
	changedCellsAll atomic.Int64
)

// Summary is a point-in-time copy of the running totals.
type Summary struct {
	Writes       int64
	Noops        int64
	AuditErrors  int64
	MirrorErrors int64
	Polls        int64
	ChangedCells int64
}

// Snapshot returns the current running totals.
func Snapshot() Summary {
	return Summary{
		Writes:       writesAll.Load(),
		Noops:        noopsAll.Load(),
		AuditErrors:  auditErrorsAll.Load(),
		MirrorErrors: mirrorErrorsAll.Load(),
		Polls:        pollsAll.Load(),
		ChangedCells: changedCellsAll.Load(),
	}
}

// Sub returns s - o field by field.
func (s Summary) Sub(o Summary) Summary {
	return Summary{
		Writes:       s.Writes - o.Writes,
		Noops:        s.Noops - o.Noops,
		AuditErrors:  s.AuditErrors - o.AuditErrors,
		MirrorErrors: s.MirrorErrors - o.MirrorErrors,
		Polls:        s.Polls - o.Polls,
		ChangedCells: s.ChangedCells - o.ChangedCells,
	}
}

// NoopRatio is the share of observed writes that were suppressed.
func (s Summary) NoopRatio() float64 {
	if s.Writes <= 0 {
		return 0
	}
	return float64(s.Noops) / float64(s.Writes)
}

// Exporter periodically logs a one-line summary of the last interval.
type Exporter struct {
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	last Summary

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

// StartExporter launches the summary loop. It returns nil when interval <= 0.
func StartExporter(interval time.Duration, logger *zap.Logger) *Exporter {
	if interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exporter{interval: interval, logger: logger, last: Snapshot(), stopChan: make(chan struct{})}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.publish()
			case <-e.stopChan:
				return
			}
		}
	}()
	return e
}

// Stop ends the loop. Safe to call on a nil Exporter and more than once.
func (e *Exporter) Stop() {
	if e == nil || !e.stopped.CompareAndSwap(false, true) {
		return
	}
	close(e.stopChan)
	e.wg.Wait()
}

// publish logs the delta since the previous publish and returns it.
func (e *Exporter) publish() Summary {
	now := Snapshot()
	e.mu.Lock()
	d := now.Sub(e.last)
	e.last = now
	e.mu.Unlock()
	e.logger.Info("scorekeeper summary",
		zap.Duration("window", e.interval),
		zap.Int64("writes", d.Writes),
		zap.Int64("noops", d.Noops),
		zap.Float64("noop_ratio", d.NoopRatio()),
		zap.Int64("audit_errors", d.AuditErrors),
		zap.Int64("mirror_errors", d.MirrorErrors),
		zap.Int64("polls", d.Polls),
		zap.Int64("changed_cells", d.ChangedCells))
	return d
}
