package api

import (
	"context"
	"sync"

	"github.com/ledgerlens/fincorr/internal/models"
)

type backendStub struct {
	mu sync.Mutex

	groups    []models.AlertGroup
	hotspots  []models.CustomerHotspot
	stats     models.DashboardStats
	snapshot  models.SLASnapshot
	summary   models.DetectionSummary
	err       error
	detected  []models.Transaction
	limit     int
	correlate func([]models.AnomalyRecord) ([]models.AlertGroup, error)
}

func (b *backendStub) CorrelatedAlerts(context.Context) ([]models.AlertGroup, error) {
	return b.groups, b.err
}

func (b *backendStub) Correlate(_ context.Context, records []models.AnomalyRecord) ([]models.AlertGroup, error) {
	if b.correlate != nil {
		return b.correlate(records)
	}
	return b.groups, b.err
}

func (b *backendStub) Hotspots(_ context.Context, limit int) ([]models.CustomerHotspot, error) {
	b.mu.Lock()
	b.limit = limit
	b.mu.Unlock()
	return b.hotspots, b.err
}

func (b *backendStub) DashboardStats(context.Context) (models.DashboardStats, error) {
	return b.stats, b.err
}

func (b *backendStub) SLAStats(context.Context) models.SLASnapshot {
	return b.snapshot
}

func (b *backendStub) DetectBatch(_ context.Context, txs []models.Transaction) (models.DetectionSummary, error) {
	b.mu.Lock()
	b.detected = append(b.detected, txs...)
	b.mu.Unlock()
	return b.summary, b.err
}
