package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/fincorr/internal/cache"
	"github.com/ledgerlens/fincorr/internal/engine"
	"github.com/ledgerlens/fincorr/internal/extractors"
	"github.com/ledgerlens/fincorr/internal/models"
	"github.com/ledgerlens/fincorr/internal/repo"
	"github.com/ledgerlens/fincorr/internal/scoring"
	"github.com/ledgerlens/fincorr/internal/sla"
)

type storeStub struct {
	inserted  []models.Transaction
	anomalies []models.AnomalyRecord
	listCalls int
	err       error
}

func (s *storeStub) InsertTransactions(ctx context.Context, txs []models.Transaction) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, txs...)
	return nil
}

func (s *storeStub) ListAnomalies(ctx context.Context) ([]models.AnomalyRecord, error) {
	s.listCalls++
	return s.anomalies, s.err
}

func (s *storeStub) DashboardStats(ctx context.Context) (models.DashboardStats, error) {
	return models.DashboardStats{TotalTransactions: len(s.inserted)}, s.err
}

var base = time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

func TestCorrelatedAlertsGroupsStoredAnomalies(t *testing.T) {
	store := &storeStub{anomalies: []models.AnomalyRecord{
		{ID: "1", CustomerID: "C1", Type: "fraud", Timestamp: base, Amount: 100},
		{ID: "2", CustomerID: "C1", Type: "fraud", Timestamp: base.Add(30 * time.Minute), Amount: 200},
		{ID: "3", CustomerID: "C2", Type: "fraud", Timestamp: base, Amount: 100},
	}}
	svc := NewService(nil, store, nil, nil, nil, nil, nil, 0)

	groups, err := svc.CorrelatedAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, "C2", groups[1].CustomerID)
}

func TestCorrelatedAlertsUsesCacheUntilIngest(t *testing.T) {
	store := &storeStub{anomalies: []models.AnomalyRecord{
		{ID: "1", CustomerID: "C1", Type: "fraud", Timestamp: base, Amount: 100},
	}}
	svc := NewService(nil, store, nil, nil, scoring.NewScorer(nil, scoring.ZeroJitter{}), nil, cache.NewMemoryProvider(), time.Minute)
	ctx := context.Background()

	first, err := svc.CorrelatedAlerts(ctx)
	require.NoError(t, err)
	second, err := svc.CorrelatedAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Members[0].ID, second[0].Members[0].ID)
	assert.Equal(t, "C1", second[0].Members[0].CustomerID)

	_, err = svc.DetectBatch(ctx, []models.Transaction{{Timestamp: base, Amount: 1, Type: "card", CustomerID: "C9"}})
	require.NoError(t, err)
	_, err = svc.CorrelatedAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
}

// blockingStore parks the first ListAnomalies call, after taking its snapshot, until release is closed.
type blockingStore struct {
	mu        sync.Mutex
	anomalies []models.AnomalyRecord
	listCalls int
	entered   chan struct{}
	release   chan struct{}
}

func (s *blockingStore) InsertTransactions(_ context.Context, txs []models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		if tx.IsAnomaly {
			s.anomalies = append(s.anomalies, tx.AnomalyRecord())
		}
	}
	return nil
}

func (s *blockingStore) ListAnomalies(context.Context) ([]models.AnomalyRecord, error) {
	s.mu.Lock()
	snapshot := append([]models.AnomalyRecord(nil), s.anomalies...)
	s.listCalls++
	first := s.listCalls == 1
	s.mu.Unlock()

	if first {
		close(s.entered)
		<-s.release
	}
	return snapshot, nil
}

func (s *blockingStore) DashboardStats(context.Context) (models.DashboardStats, error) {
	return models.DashboardStats{}, nil
}

func TestCorrelatedAlertsDropsFillRacingIngest(t *testing.T) {
	store := &blockingStore{
		anomalies: []models.AnomalyRecord{{ID: "1", CustomerID: "C1", Type: "fraud", Timestamp: base, Amount: 100}},
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	// A zero TTL never expires, so a stale fill would stick for good.
	svc := NewService(nil, store, nil, nil, scoring.NewScorer(nil, scoring.ZeroJitter{}), nil, cache.NewMemoryProvider(), 0)
	ctx := context.Background()

	type result struct {
		groups []models.AlertGroup
		err    error
	}
	done := make(chan result, 1)
	go func() {
		groups, err := svc.CorrelatedAlerts(ctx)
		done <- result{groups, err}
	}()

	<-store.entered
	_, err := svc.DetectBatch(ctx, []models.Transaction{
		{ID: "2", Timestamp: base, Amount: 50, Type: "fraud", CustomerID: "C2", IsAnomaly: true},
	})
	require.NoError(t, err)
	close(store.release)

	stale := <-done
	require.NoError(t, stale.err)
	assert.Len(t, stale.groups, 1)

	groups, err := svc.CorrelatedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "C2", groups[1].CustomerID)
	assert.Equal(t, 2, store.listCalls)

	again, err := svc.CorrelatedAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Equal(t, 2, store.listCalls, "fresh result is cached")
}

func TestCorrelatedAlertsStoreFailure(t *testing.T) {
	svc := NewService(nil, &storeStub{err: errors.New("db down")}, nil, nil, nil, nil, nil, 0)
	_, err := svc.CorrelatedAlerts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestCorrelatedAlertsWithoutStore(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil, nil, nil, 0)
	_, err := svc.CorrelatedAlerts(context.Background())
	require.ErrorIs(t, err, ErrStoreNotConfigured)
}

func TestCorrelateRejectsMalformedRecords(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil, nil, nil, 0)
	_, err := svc.Correlate(context.Background(), []models.AnomalyRecord{{ID: "1", CustomerID: "C1", Type: "fraud"}})
	require.ErrorIs(t, err, engine.ErrInvalidRecord)

	groups, err := svc.Correlate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestDetectBatchRecordsLatencyAndScores(t *testing.T) {
	store := &storeStub{}
	tracker := sla.NewTracker(10, 500)
	svc := NewService(nil, store, nil, tracker, scoring.NewScorer(nil, scoring.ZeroJitter{}), extractors.NewAmountFlagger(2.5), nil, 0)

	txs := make([]models.Transaction, 0, 20)
	for i := 0; i < 19; i++ {
		txs = append(txs, models.Transaction{Timestamp: base, Amount: 100, Type: "card", CustomerID: "C1"})
	}
	txs = append(txs, models.Transaction{Timestamp: base, Amount: 98100, Type: "wire", CustomerID: "C1"})

	summary, err := svc.DetectBatch(context.Background(), txs)
	require.NoError(t, err)
	assert.Equal(t, 20, summary.Total)
	assert.Equal(t, 1, summary.Anomalies)
	assert.Equal(t, 0.05, summary.Scores.SeverityScore)
	assert.Equal(t, 0.0, summary.Scores.VolumeDeviationPercent)
	assert.Equal(t, 5.0, summary.Scores.ComplianceRiskScore)
	assert.Len(t, store.inserted, 20)

	snap := svc.SLAStats(context.Background())
	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, 500.0, snap.SLAMS)
}

func TestDetectBatchStoreFailure(t *testing.T) {
	tracker := sla.NewTracker(10, 500)
	svc := NewService(nil, &storeStub{err: errors.New("disk full")}, nil, tracker, nil, nil, nil, 0)

	_, err := svc.DetectBatch(context.Background(), []models.Transaction{{Timestamp: base, Amount: 1, Type: "card", CustomerID: "C1"}})
	require.Error(t, err)
	assert.Equal(t, 1, tracker.Stats().Count, "detection latency is recorded even when storing fails")
}

func TestServiceWithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := repo.NewTransactionStore(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := NewService(nil, store, engine.NewCorrelator(), nil, scoring.NewScorer(nil, scoring.ZeroJitter{}), nil, nil, 0)
	txs := []models.Transaction{
		{Timestamp: base, Amount: 100, Type: "fraud", CustomerID: "C1", IsAnomaly: true},
		{Timestamp: base.Add(30 * time.Minute), Amount: 200, Type: "fraud", CustomerID: "C1", IsAnomaly: true},
		{Timestamp: base, Amount: 100, Type: "fraud", CustomerID: "C2", IsAnomaly: true},
		{Timestamp: base.Add(90 * time.Minute), Amount: 300, Type: "error", CustomerID: "C1", IsAnomaly: true},
	}
	_, err = svc.DetectBatch(ctx, txs)
	require.NoError(t, err)

	groups, err := svc.CorrelatedAlerts(ctx)
	require.NoError(t, err)
	got := make(map[[2]string]int)
	for _, g := range groups {
		got[[2]string{g.CustomerID, g.Type}] = g.Count
	}
	assert.Equal(t, map[[2]string]int{
		{"C1", "fraud"}: 2,
		{"C2", "fraud"}: 1,
		{"C1", "error"}: 1,
	}, got)

	hotspots, err := svc.Hotspots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, hotspots, 1)
	assert.Equal(t, "C1", hotspots[0].CustomerID)

	stats, err := svc.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalAnomalies)
}
