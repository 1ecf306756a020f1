package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ledgerlens/fincorr/internal/models"
)

const namespace = "fincorr"

const (
	// OutcomeSuccess labels successful operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations (contract violations or store issues).
	OutcomeError = "error"
)

var (
	correlationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_runs_total",
			Help:      "Total number of alert correlation runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	correlationGroups = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "correlation_groups",
			Help:      "Number of alert groups emitted per correlation run.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	detectionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_seconds",
			Help:      "Anomaly detection latency per batch in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	anomaliesDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_detected_total",
			Help:      "Total number of transactions flagged as anomalous.",
		},
	)

	severityScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "financial_anomaly_severity_score",
			Help:    "Severity score for financial anomalies (0-1).",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	volumeDeviation = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trading_volume_deviation_percentage",
			Help:    "Deviation of trading volume from baseline (percentage).",
			Buckets: []float64{-100, -50, -25, -10, 0, 10, 25, 50, 100, 250, 1000},
		},
	)

	complianceRisk = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compliance_risk_score",
			Help:    "Compliance risk score (0-100).",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
)

// Register attaches fincorr collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		correlationRunsTotal,
		correlationGroups,
		detectionDurationSeconds,
		anomaliesDetectedTotal,
		severityScore,
		volumeDeviation,
		complianceRisk,
	}
	return registerAll(reg, collectors...)
}

func registerAll(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCorrelation records a correlation run and, on success, the number of groups.
func ObserveCorrelation(groups int, outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
		correlationGroups.Observe(float64(groups))
	}
	correlationRunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDetection records a batch detection duration and the anomalies it flagged.
func ObserveDetection(duration time.Duration, anomalies int) {
	if duration < 0 {
		duration = 0
	}
	detectionDurationSeconds.Observe(duration.Seconds())
	if anomalies > 0 {
		anomaliesDetectedTotal.Add(float64(anomalies))
	}
}

// ScoreObserver forwards batch scores to the score histograms.
type ScoreObserver struct{}

// ObserveSeverityScore implements scoring.Observer.
func (ScoreObserver) ObserveSeverityScore(score float64) { severityScore.Observe(score) }

// ObserveVolumeDeviation implements scoring.Observer.
func (ScoreObserver) ObserveVolumeDeviation(percentage float64) { volumeDeviation.Observe(percentage) }

// ObserveComplianceRisk implements scoring.Observer.
func (ScoreObserver) ObserveComplianceRisk(score float64) { complianceRisk.Observe(score) }

// SnapshotFunc returns the current SLA state.
type SnapshotFunc func() models.SLASnapshot

// SLACollector exports SLA tracker snapshots as gauges at scrape time.
type SLACollector struct {
	snapshot SnapshotFunc

	count    *prometheus.Desc
	average  *prometheus.Desc
	max      *prometheus.Desc
	min      *prometheus.Desc
	sla      *prometheus.Desc
	breaches *prometheus.Desc
}

// NewSLACollector builds a collector reading from snapshot on every scrape.
func NewSLACollector(snapshot SnapshotFunc) *SLACollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "sla", name), help, nil, nil)
	}
	return &SLACollector{
		snapshot: snapshot,
		count:    desc("window_samples", "Latency samples currently in the SLA window."),
		average:  desc("average_latency_ms", "Average latency over the SLA window in milliseconds."),
		max:      desc("max_latency_ms", "Maximum latency over the SLA window in milliseconds."),
		min:      desc("min_latency_ms", "Minimum latency over the SLA window in milliseconds."),
		sla:      desc("threshold_ms", "Configured SLA threshold in milliseconds."),
		breaches: desc("breaches_total", "Samples that exceeded the SLA threshold since start."),
	}
}

// Describe implements prometheus.Collector.
func (c *SLACollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.count
	ch <- c.average
	ch <- c.max
	ch <- c.min
	ch <- c.sla
	ch <- c.breaches
}

// Collect implements prometheus.Collector.
func (c *SLACollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.snapshot()
	ch <- prometheus.MustNewConstMetric(c.count, prometheus.GaugeValue, float64(snap.Count))
	ch <- prometheus.MustNewConstMetric(c.average, prometheus.GaugeValue, snap.AverageLatencyMS)
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, snap.MaxLatencyMS)
	ch <- prometheus.MustNewConstMetric(c.min, prometheus.GaugeValue, snap.MinLatencyMS)
	ch <- prometheus.MustNewConstMetric(c.sla, prometheus.GaugeValue, snap.SLAMS)
	ch <- prometheus.MustNewConstMetric(c.breaches, prometheus.CounterValue, float64(snap.SLABreaches))
}

// RegisterSLA registers an SLACollector for snapshot.
func RegisterSLA(reg prometheus.Registerer, snapshot SnapshotFunc) error {
	return registerAll(reg, NewSLACollector(snapshot))
}
