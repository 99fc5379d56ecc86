// Package telemetry exposes the Prometheus collectors for the score pipeline.
// All collectors are global and label-free except for a bounded result label,
// and every Observe function is safe to call from hot paths.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	writesObservedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scorekeeper_writes_observed_total",
		Help: "Total score-cell write events delivered to the interceptor",
	})
	writesNoopTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scorekeeper_writes_noop_total",
		Help: "Write events skipped because before and after were equal",
	})
	auditAppendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scorekeeper_audit_appends_total",
		Help: "Audit record appends by result (ok|error)",
	}, []string{"result"})
	mirrorWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scorekeeper_mirror_writes_total",
		Help: "Single-cell mirror writes by result (ok|error)",
	}, []string{"result"})
	reaperRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scorekeeper_reaper_runs_total",
		Help: "Mirror TTL reaper runs by outcome (idle|fresh|deleted|error)",
	}, []string{"outcome"})
	lifecycleOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scorekeeper_mirror_lifecycle_total",
		Help: "Mirror init/restore operations by operation and outcome",
	}, []string{"op", "outcome"})
	lifecyclePayloadBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scorekeeper_mirror_copy_bytes",
		Help:    "Serialized size of whole-tree mirror copies",
		Buckets: prometheus.ExponentialBuckets(64, 4, 10),
	}, []string{"op"})
	pollChangedCells = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scorekeeper_poll_changed_cells",
		Help:    "Distribution of changed cells reported per poll",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
	})
	pollErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scorekeeper_poll_errors_total",
		Help: "Total polls that failed to read the primary table",
	})
	snapshotGroups = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scorekeeper_snapshot_groups",
		Help: "Number of poll groups with a cached snapshot in this process",
	})
)

func init() {
	// Register metrics eagerly. If no Prometheus endpoint is exposed, the registration is harmless.
	prometheus.MustRegister(writesObservedTotal, writesNoopTotal, auditAppendsTotal, mirrorWritesTotal,
		reaperRunsTotal, lifecycleOpsTotal, lifecyclePayloadBytes, pollChangedCells, pollErrorsTotal, snapshotGroups)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveWrite records one delivered write event; noop marks suppressed ones.
func ObserveWrite(noop bool) {
	writesObservedTotal.Inc()
	writesAll.Add(1)
	if noop {
		writesNoopTotal.Inc()
		noopsAll.Add(1)
	}
}

// ObserveAuditAppend records the result of one audit append.
func ObserveAuditAppend(err error) {
	auditAppendsTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		auditErrorsAll.Add(1)
	}
}

// ObserveMirrorWrite records the result of one mirror cell write.
func ObserveMirrorWrite(err error) {
	mirrorWritesTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		mirrorErrorsAll.Add(1)
	}
}

// ObserveReap records a reaper run outcome: idle, fresh, deleted or error.
func ObserveReap(outcome string) { reaperRunsTotal.WithLabelValues(outcome).Inc() }

// ObserveLifecycle records an init or restore call. size is only observed
// when the operation copied data.
func ObserveLifecycle(op, outcome string, size int) {
	lifecycleOpsTotal.WithLabelValues(op, outcome).Inc()
	if size > 0 {
		lifecyclePayloadBytes.WithLabelValues(op).Observe(float64(size))
	}
}

// ObservePoll records the number of changed cells returned by one poll.
func ObservePoll(cells int) {
	pollChangedCells.Observe(float64(cells))
	pollsAll.Add(1)
	changedCellsAll.Add(int64(cells))
}

// ObservePollError counts a failed poll.
func ObservePollError() { pollErrorsTotal.Inc() }

// SetSnapshotGroups publishes the current number of cached poll groups.
func SetSnapshotGroups(n int) { snapshotGroups.Set(float64(n)) }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// StartMetricsEndpoint exposes /metrics on addr in a background goroutine and
// returns the server so callers can shut it down.
func StartMetricsEndpoint(addr string, onError func(error)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed && onError != nil {
			onError(err)
		}
	}()
	return server
}
