package models

import "time"

// Transaction is a single ingested financial transaction.
type Transaction struct {
	ID         string    `json:"id" db:"id"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	Amount     float64   `json:"amount" db:"amount"`
	Type       string    `json:"type" db:"type"`
	CustomerID string    `json:"customer_id" db:"customer_id"`
	IsAnomaly  bool      `json:"is_anomaly" db:"is_anomaly"`
}

// AnomalyRecord returns the correlator view of the transaction.
func (t Transaction) AnomalyRecord() AnomalyRecord {
	return AnomalyRecord{
		ID:         t.ID,
		CustomerID: t.CustomerID,
		Type:       t.Type,
		Timestamp:  t.Timestamp,
		Amount:     t.Amount,
	}
}

// BatchScores carries the three summary scores computed for an ingested batch.
type BatchScores struct {
	SeverityScore          float64 `json:"financial_anomaly_severity_score"`
	VolumeDeviationPercent float64 `json:"trading_volume_deviation_percentage"`
	ComplianceRiskScore    float64 `json:"compliance_risk_score"`
}

// DetectionSummary is returned after a batch has been flagged and stored.
type DetectionSummary struct {
	Total     int         `json:"total"`
	Anomalies int         `json:"anomalies"`
	Scores    BatchScores `json:"scores"`
	LatencyMS float64     `json:"latency_ms"`
}

// DashboardStats aggregates stored transactions.
type DashboardStats struct {
	TotalTransactions int     `json:"total_transactions" db:"total"`
	TotalAnomalies    int     `json:"total_anomalies" db:"anomalies"`
	AnomalyRate       float64 `json:"anomaly_rate"`
}
