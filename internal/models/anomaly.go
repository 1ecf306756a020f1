package models

import (
	"encoding/json"
	"time"
)

// AnomalyRecord is a transaction already flagged as anomalous by the upstream detector.
type AnomalyRecord struct {
	ID         string    `json:"id" db:"id"`
	CustomerID string    `json:"customer_id" db:"customer_id"`
	Type       string    `json:"type" db:"type"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	Amount     float64   `json:"amount" db:"amount"`
}

// AnomalySummary is the per-member shape exposed inside a correlated alert.
type AnomalySummary struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Amount    float64   `json:"amount"`
	Type      string    `json:"type"`
}

// Summary projects the record onto the member shape.
func (r AnomalyRecord) Summary() AnomalySummary {
	return AnomalySummary{ID: r.ID, Timestamp: r.Timestamp, Amount: r.Amount, Type: r.Type}
}

// AlertGroup is a run of same customer/type anomalies that fell inside one correlation window.
type AlertGroup struct {
	CustomerID string
	Type       string
	StartTime  time.Time
	EndTime    time.Time
	Count      int
	Members    []AnomalyRecord
}

// Span returns EndTime - StartTime.
func (g AlertGroup) Span() time.Duration {
	return g.EndTime.Sub(g.StartTime)
}

type alertGroupJSON struct {
	CustomerID string           `json:"customer_id"`
	Type       string           `json:"type"`
	StartTime  time.Time        `json:"start_time"`
	EndTime    time.Time        `json:"end_time"`
	Count      int              `json:"count"`
	Anomalies  []AnomalySummary `json:"anomalies"`
}

// MarshalJSON renders the group in the dashboard wire shape.
func (g AlertGroup) MarshalJSON() ([]byte, error) {
	out := alertGroupJSON{
		CustomerID: g.CustomerID,
		Type:       g.Type,
		StartTime:  g.StartTime,
		EndTime:    g.EndTime,
		Count:      g.Count,
		Anomalies:  make([]AnomalySummary, 0, len(g.Members)),
	}
	for _, m := range g.Members {
		out.Anomalies = append(out.Anomalies, m.Summary())
	}
	return json.Marshal(out)
}

// CorrelatedAlerts wraps the grouping result for transport.
type CorrelatedAlerts struct {
	Groups []AlertGroup `json:"correlated_alerts"`
}

// UnmarshalJSON restores a group from the dashboard wire shape. Members inherit the
// group's customer ID, which the wire shape does not repeat per member.
func (g *AlertGroup) UnmarshalJSON(data []byte) error {
	var in alertGroupJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*g = AlertGroup{
		CustomerID: in.CustomerID,
		Type:       in.Type,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
		Count:      in.Count,
		Members:    make([]AnomalyRecord, 0, len(in.Anomalies)),
	}
	for _, a := range in.Anomalies {
		g.Members = append(g.Members, AnomalyRecord{
			ID:         a.ID,
			CustomerID: in.CustomerID,
			Type:       a.Type,
			Timestamp:  a.Timestamp,
			Amount:     a.Amount,
		})
	}
	return nil
}
