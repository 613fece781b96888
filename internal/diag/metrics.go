package diag

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// storeMetrics holds the Prometheus collectors for the persistence core.
type storeMetrics struct {
	once sync.Once
	reg  *prometheus.Registry

	commits        prometheus.Counter
	commitFailures prometheus.Counter
	savesSkipped   prometheus.Counter
	changesApplied *prometheus.CounterVec
	merges         prometheus.Counter
	sweepDeleted   *prometheus.CounterVec
	sweeps         prometheus.Counter
	destroys       prometheus.Counter
	ingested       *prometheus.CounterVec

	commitDuration prometheus.Histogram
	sweepDuration  prometheus.Histogram
}

var metrics storeMetrics

func (m *storeMetrics) init() {
	m.once.Do(func() {
		m.reg = prometheus.NewRegistry()

		m.commits = prometheus.NewCounter(prometheus.CounterOpts{Name: "nostrcache_commits_total", Help: "Context saves that reached the store"})
		m.commitFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "nostrcache_commit_failures_total", Help: "Context saves rejected by the store"})
		m.savesSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "nostrcache_saves_skipped_total", Help: "Saves skipped because the context had no changes"})
		m.changesApplied = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "nostrcache_changes_committed_total", Help: "Committed entity changes"}, []string{"entity", "op"})
		m.merges = prometheus.NewCounter(prometheus.CounterOpts{Name: "nostrcache_merges_total", Help: "Change sets merged into another context"})
		m.sweepDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "nostrcache_sweep_deleted_total", Help: "Entities deleted by the retention sweep"}, []string{"entity"})
		m.sweeps = prometheus.NewCounter(prometheus.CounterOpts{Name: "nostrcache_sweeps_total", Help: "Retention sweeps completed"})
		m.destroys = prometheus.NewCounter(prometheus.CounterOpts{Name: "nostrcache_destroys_total", Help: "Destructive store resets"})
		m.ingested = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "nostrcache_ingested_total", Help: "Entities received through ingestion"}, []string{"result"})

		buckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
		m.commitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "nostrcache_commit_seconds", Help: "Duration of store commits", Buckets: buckets})
		m.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "nostrcache_sweep_seconds", Help: "Duration of retention sweeps", Buckets: buckets})

		m.reg.MustRegister(
			m.commits, m.commitFailures, m.savesSkipped, m.changesApplied, m.merges,
			m.sweepDeleted, m.sweeps, m.destroys, m.ingested,
			m.commitDuration, m.sweepDuration,
		)
	})
}

// Registry returns the registry holding the nostrcache collectors.
func Registry() *prometheus.Registry {
	metrics.init()
	return metrics.reg
}

// RecordCommit counts a successful store commit and observes its duration.
func RecordCommit(d time.Duration) {
	metrics.init()
	metrics.commits.Inc()
	metrics.commitDuration.Observe(d.Seconds())
}

// RecordCommitFailure counts a commit the store rejected.
func RecordCommitFailure() {
	metrics.init()
	metrics.commitFailures.Inc()
}

// RecordSaveSkipped counts a save of a context with no pending changes.
func RecordSaveSkipped() {
	metrics.init()
	metrics.savesSkipped.Inc()
}

// RecordMerge counts a change set merged into another context.
func RecordMerge() {
	metrics.init()
	metrics.merges.Inc()
}

// RecordDestroy counts a destructive store reset.
func RecordDestroy() {
	metrics.init()
	metrics.destroys.Inc()
}

// RecordIngested adds n entities to the ingestion counter for result, such
// as "inserted" or "duplicate".
func RecordIngested(result string, n int) {
	metrics.init()
	metrics.ingested.WithLabelValues(result).Add(float64(n))
}

// RecordChange counts one committed change of entity. op is the change's
// operation name.
func RecordChange(entity, op string) {
	metrics.init()
	metrics.changesApplied.WithLabelValues(entity, op).Inc()
}

// RecordSweep counts a completed retention sweep, observes its duration and
// adds the per-entity deletions.
func RecordSweep(d time.Duration, deleted map[string]int) {
	metrics.init()
	metrics.sweeps.Inc()
	metrics.sweepDuration.Observe(d.Seconds())
	for entity, n := range deleted {
		metrics.sweepDeleted.WithLabelValues(entity).Add(float64(n))
	}
}

// CounterValues returns the current value of every counter in the registry,
// keyed by metric name plus labels. Used by the CLI and tests.
func CounterValues() (map[string]float64, error) {
	families, err := Registry().Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += "," + lp.GetName() + "=" + lp.GetValue()
			}
			out[name] = m.GetCounter().GetValue()
		}
	}
	return out, nil
}
