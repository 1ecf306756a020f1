package patterns

import (
	"sort"
	"time"

	"github.com/ledgerlens/fincorr/internal/models"
)

// Hotspots aggregates alert groups per customer and returns them ordered by anomaly count
// (descending), then customer ID. A non-positive limit returns every customer.
func Hotspots(groups []models.AlertGroup, limit int) []models.CustomerHotspot {
	if len(groups) == 0 {
		return []models.CustomerHotspot{}
	}

	stats := make(map[string]*customerAggregate)
	for _, g := range groups {
		agg := ensureAggregate(stats, g.CustomerID)
		agg.groups++
		agg.anomalies += g.Count
		agg.typeCounts[g.Type] += g.Count
		for _, m := range g.Members {
			agg.totalAmount += m.Amount
		}
		if g.EndTime.After(agg.lastSeen) {
			agg.lastSeen = g.EndTime
		}
	}

	out := make([]models.CustomerHotspot, 0, len(stats))
	for customer, agg := range stats {
		out = append(out, models.CustomerHotspot{
			CustomerID:   customer,
			Groups:       agg.groups,
			Anomalies:    agg.anomalies,
			TotalAmount:  agg.totalAmount,
			DominantType: agg.dominantType(),
			LastSeen:     agg.lastSeen,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Anomalies != out[j].Anomalies {
			return out[i].Anomalies > out[j].Anomalies
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type customerAggregate struct {
	groups      int
	anomalies   int
	totalAmount float64
	typeCounts  map[string]int
	lastSeen    time.Time
}

func ensureAggregate(m map[string]*customerAggregate, customer string) *customerAggregate {
	agg, ok := m[customer]
	if !ok {
		agg = &customerAggregate{typeCounts: make(map[string]int)}
		m[customer] = agg
	}
	return agg
}

// dominantType is the type with most anomalies; ties break alphabetically.
func (agg *customerAggregate) dominantType() string {
	best, bestCount := "", -1
	for typ, count := range agg.typeCounts {
		if count > bestCount || (count == bestCount && typ < best) {
			best, bestCount = typ, count
		}
	}
	return best
}
