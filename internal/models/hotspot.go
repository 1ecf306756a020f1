package models

import "time"

// CustomerHotspot summarises correlated alert activity for one customer.
type CustomerHotspot struct {
	CustomerID   string    `json:"customer_id"`
	Groups       int       `json:"groups"`
	Anomalies    int       `json:"anomalies"`
	TotalAmount  float64   `json:"total_amount"`
	DominantType string    `json:"dominant_type"`
	LastSeen     time.Time `json:"last_seen"`
}
