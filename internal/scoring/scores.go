// Package scoring computes the dashboard summary scores for a transaction batch.
package scoring

import (
	"math"
	"math/rand/v2"

	"github.com/ledgerlens/fincorr/internal/models"
)

const (
	// VolumeBaseline is the reference batch volume for the deviation percentage.
	VolumeBaseline = 100000.0

	severityJitter   = 0.05
	deviationJitter  = 2.0
	complianceJitter = 5.0

	riskyType      = "wire"
	riskyAmount    = 10000.0
	riskPerRecord  = 5.0
	maxRiskScore   = 100.0
	maxSeverityCap = 1.0
)

// Observer receives every computed score. Implementations must not block.
type Observer interface {
	ObserveSeverityScore(score float64)
	ObserveVolumeDeviation(percentage float64)
	ObserveComplianceRisk(score float64)
}

// RandSource yields uniform values in [0, 1).
type RandSource interface {
	Float64() float64
}

// ZeroJitter is a RandSource that always lands on the midpoint, so jitter is exactly zero.
type ZeroJitter struct{}

// Float64 returns 0.5.
func (ZeroJitter) Float64() float64 { return 0.5 }

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Scorer computes summary scores with a small random perturbation.
type Scorer struct {
	observer Observer
	rnd      RandSource
}

// NewScorer constructs a Scorer. A nil observer discards results; a nil rnd uses the
// process-wide generator.
func NewScorer(observer Observer, rnd RandSource) *Scorer {
	if rnd == nil {
		rnd = globalRand{}
	}
	return &Scorer{observer: observer, rnd: rnd}
}

// FinancialAnomalySeverityScore is the anomaly ratio of the batch, jittered by ±0.05,
// clamped to [0, 1] and rounded to two decimals. Batches without anomalies score exactly 0.
func (s *Scorer) FinancialAnomalySeverityScore(txs []models.Transaction) float64 {
	score := 0.0
	if anomalies := countAnomalies(txs); len(txs) > 0 && anomalies > 0 {
		ratio := float64(anomalies) / float64(len(txs))
		score = round(math.Min(maxSeverityCap, clamp(ratio+s.jitter(severityJitter), 0, 1)), 2)
	}
	if s.observer != nil {
		s.observer.ObserveSeverityScore(score)
	}
	return score
}

// TradingVolumeDeviationPercentage is the batch volume's percentage deviation from
// VolumeBaseline, jittered by ±2 and rounded to two decimals.
func (s *Scorer) TradingVolumeDeviationPercentage(txs []models.Transaction) float64 {
	deviation := 0.0
	if len(txs) > 0 {
		total := 0.0
		for _, tx := range txs {
			total += tx.Amount
		}
		deviation = round((total-VolumeBaseline)/VolumeBaseline*100+s.jitter(deviationJitter), 2)
	}
	if s.observer != nil {
		s.observer.ObserveVolumeDeviation(deviation)
	}
	return deviation
}

// ComplianceRiskScore scores 5 points per wire transfer above 10000, jittered by ±5,
// clamped to [0, 100] and rounded to one decimal.
func (s *Scorer) ComplianceRiskScore(txs []models.Transaction) float64 {
	score := 0.0
	if len(txs) > 0 {
		risky := 0
		for _, tx := range txs {
			if tx.Type == riskyType && tx.Amount > riskyAmount {
				risky++
			}
		}
		score = round(clamp(float64(risky)*riskPerRecord+s.jitter(complianceJitter), 0, maxRiskScore), 1)
	}
	if s.observer != nil {
		s.observer.ObserveComplianceRisk(score)
	}
	return score
}

// Score computes all three scores for a batch.
func (s *Scorer) Score(txs []models.Transaction) models.BatchScores {
	return models.BatchScores{
		SeverityScore:          s.FinancialAnomalySeverityScore(txs),
		VolumeDeviationPercent: s.TradingVolumeDeviationPercentage(txs),
		ComplianceRiskScore:    s.ComplianceRiskScore(txs),
	}
}

// jitter maps the random source onto [-bound, bound).
func (s *Scorer) jitter(bound float64) float64 {
	return (s.rnd.Float64()*2 - 1) * bound
}

func countAnomalies(txs []models.Transaction) int {
	n := 0
	for _, tx := range txs {
		if tx.IsAnomaly {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
