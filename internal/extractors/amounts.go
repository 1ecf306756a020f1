package extractors

import (
	"math"

	"github.com/ledgerlens/fincorr/internal/models"
)

// DefaultThreshold is the z-score above which an amount is flagged.
const DefaultThreshold = 2.5

// AmountFlagger marks transactions whose amount deviates from the batch mean by more than
// threshold standard deviations. It stands in for the upstream detection model.
type AmountFlagger struct {
	threshold float64
}

// NewAmountFlagger creates a flagger; non-positive thresholds use DefaultThreshold.
func NewAmountFlagger(threshold float64) *AmountFlagger {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &AmountFlagger{threshold: threshold}
}

// Threshold returns the z-score cut-off.
func (f *AmountFlagger) Threshold() float64 {
	return f.threshold
}

// Flag sets IsAnomaly on each transaction in place and returns the number flagged.
// Transactions already marked anomalous stay marked.
func (f *AmountFlagger) Flag(txs []models.Transaction) int {
	if len(txs) == 0 {
		return 0
	}

	mean := 0.0
	for _, tx := range txs {
		mean += tx.Amount
	}
	mean /= float64(len(txs))

	variance := 0.0
	for _, tx := range txs {
		variance += math.Pow(tx.Amount-mean, 2)
	}
	variance /= float64(len(txs))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		stdDev = 1e-6
	}

	flagged := 0
	for i := range txs {
		if math.Abs(txs[i].Amount-mean)/stdDev > f.threshold {
			txs[i].IsAnomaly = true
		}
		if txs[i].IsAnomaly {
			flagged++
		}
	}
	return flagged
}
