package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgerlens/fincorr/internal/cache"
	"github.com/ledgerlens/fincorr/internal/engine"
	"github.com/ledgerlens/fincorr/internal/extractors"
	"github.com/ledgerlens/fincorr/internal/metrics"
	"github.com/ledgerlens/fincorr/internal/models"
	"github.com/ledgerlens/fincorr/internal/patterns"
	"github.com/ledgerlens/fincorr/internal/scoring"
	"github.com/ledgerlens/fincorr/internal/sla"
	"github.com/ledgerlens/fincorr/internal/utils"
)

const correlatedAlertsKey = "fincorr:correlated_alerts"

// TransactionStore defines the persistence operations the service relies on.
type TransactionStore interface {
	InsertTransactions(ctx context.Context, txs []models.Transaction) error
	ListAnomalies(ctx context.Context) ([]models.AnomalyRecord, error)
	DashboardStats(ctx context.Context) (models.DashboardStats, error)
}

// Service ties ingest, correlation and SLA tracking together for the transports.
type Service struct {
	logger     *slog.Logger
	store      TransactionStore
	correlator *engine.Correlator
	tracker    *sla.Tracker
	scorer     *scoring.Scorer
	flagger    *extractors.AmountFlagger
	cache      cache.Provider
	cacheTTL   time.Duration
	tracer     trace.Tracer

	// cacheMu orders cache fills against invalidation; generation counts invalidations.
	cacheMu    sync.Mutex
	generation uint64
}

// NewService constructs the service facade. Nil collaborators fall back to defaults,
// except store, which only the store-backed operations need.
func NewService(
	logger *slog.Logger,
	store TransactionStore,
	correlator *engine.Correlator,
	tracker *sla.Tracker,
	scorer *scoring.Scorer,
	flagger *extractors.AmountFlagger,
	cacheProvider cache.Provider,
	cacheTTL time.Duration,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if correlator == nil {
		correlator = engine.NewCorrelator(engine.WithLogger(logger))
	}
	if tracker == nil {
		tracker = sla.NewTracker(sla.DefaultWindowSize, sla.DefaultSLAMS)
	}
	if scorer == nil {
		scorer = scoring.NewScorer(nil, nil)
	}
	if flagger == nil {
		flagger = extractors.NewAmountFlagger(0)
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &Service{
		logger:     logger,
		store:      store,
		correlator: correlator,
		tracker:    tracker,
		scorer:     scorer,
		flagger:    flagger,
		cache:      cacheProvider,
		cacheTTL:   cacheTTL,
		tracer:     otel.Tracer("github.com/ledgerlens/fincorr/internal/services"),
	}
}

// ErrStoreNotConfigured is returned by store-backed operations when no store was supplied.
var ErrStoreNotConfigured = errors.New("transaction store not configured")

// DetectBatch flags anomalies in txs, records the detection latency against the SLA,
// stores the batch and returns its summary scores.
func (s *Service) DetectBatch(ctx context.Context, txs []models.Transaction) (models.DetectionSummary, error) {
	ctx, span := s.tracer.Start(ctx, "detect_batch", trace.WithAttributes(attribute.Int("batch.size", len(txs))))
	defer span.End()

	if s.store == nil {
		return models.DetectionSummary{}, ErrStoreNotConfigured
	}

	var flagged int
	elapsed := s.tracker.Time(func() {
		flagged = s.flagger.Flag(txs)
	})
	metrics.ObserveDetection(elapsed, flagged)
	span.SetAttributes(attribute.Int("batch.anomalies", flagged))

	if err := s.store.InsertTransactions(ctx, txs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store batch")
		return models.DetectionSummary{}, utils.NewAppError("services.DetectBatch", "store batch", err)
	}
	s.invalidate(ctx)

	summary := models.DetectionSummary{
		Total:     len(txs),
		Anomalies: flagged,
		Scores:    s.scorer.Score(txs),
		LatencyMS: utils.DurationMilliseconds(elapsed),
	}
	s.logger.Info("batch processed",
		slog.Int("total", summary.Total),
		slog.Int("anomalies", summary.Anomalies),
		slog.Float64("latency_ms", summary.LatencyMS),
	)
	return summary, nil
}

// CorrelatedAlerts groups every stored anomaly. Results are cached until the next ingest.
func (s *Service) CorrelatedAlerts(ctx context.Context) ([]models.AlertGroup, error) {
	ctx, span := s.tracer.Start(ctx, "correlated_alerts")
	defer span.End()

	if cached, ok := s.cachedGroups(ctx); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}

	gen := s.cacheGeneration()
	records, err := s.store.ListAnomalies(ctx)
	if err != nil {
		metrics.ObserveCorrelation(0, metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "load anomalies")
		return nil, utils.NewAppError("services.CorrelatedAlerts", "load anomalies", err)
	}

	groups, err := s.correlate(span, records)
	if err != nil {
		return nil, err
	}
	s.storeGroups(ctx, gen, groups)
	return groups, nil
}

// Correlate groups caller-supplied records without touching the store.
func (s *Service) Correlate(ctx context.Context, records []models.AnomalyRecord) ([]models.AlertGroup, error) {
	_, span := s.tracer.Start(ctx, "correlate_records")
	defer span.End()
	return s.correlate(span, records)
}

func (s *Service) correlate(span trace.Span, records []models.AnomalyRecord) ([]models.AlertGroup, error) {
	groups, err := s.correlator.Group(records)
	if err != nil {
		metrics.ObserveCorrelation(0, metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "group anomalies")
		return nil, err
	}
	metrics.ObserveCorrelation(len(groups), metrics.OutcomeSuccess)
	span.SetAttributes(attribute.Int("anomalies", len(records)), attribute.Int("groups", len(groups)))
	return groups, nil
}

// Hotspots summarises correlated alerts per customer.
func (s *Service) Hotspots(ctx context.Context, limit int) ([]models.CustomerHotspot, error) {
	groups, err := s.CorrelatedAlerts(ctx)
	if err != nil {
		return nil, err
	}
	return patterns.Hotspots(groups, limit), nil
}

// DashboardStats returns totals over stored transactions.
func (s *Service) DashboardStats(ctx context.Context) (models.DashboardStats, error) {
	if s.store == nil {
		return models.DashboardStats{}, ErrStoreNotConfigured
	}
	stats, err := s.store.DashboardStats(ctx)
	if err != nil {
		return models.DashboardStats{}, utils.NewAppError("services.DashboardStats", "load stats", err)
	}
	return stats, nil
}

// SLAStats returns the current SLA snapshot.
func (s *Service) SLAStats(ctx context.Context) models.SLASnapshot {
	_, span := s.tracer.Start(ctx, "get_sla_metrics")
	defer span.End()
	return s.tracker.Stats()
}

func (s *Service) cachedGroups(ctx context.Context) ([]models.AlertGroup, bool) {
	data, err := s.cache.Get(ctx, correlatedAlertsKey)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("correlated alerts cache read failed", slog.Any("error", err))
		}
		return nil, false
	}
	var payload models.CorrelatedAlerts
	if err := json.Unmarshal(data, &payload); err != nil {
		s.logger.Warn("discarding corrupt cache entry", slog.Any("error", err))
		return nil, false
	}
	if payload.Groups == nil {
		payload.Groups = []models.AlertGroup{}
	}
	return payload.Groups, true
}

func (s *Service) cacheGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// storeGroups caches groups computed from a read that started at generation gen.
// An ingest since then makes the result stale, so it is dropped.
func (s *Service) storeGroups(ctx context.Context, gen uint64, groups []models.AlertGroup) {
	data, err := json.Marshal(models.CorrelatedAlerts{Groups: groups})
	if err != nil {
		s.logger.Warn("encode correlated alerts for cache", slog.Any("error", err))
		return
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != gen {
		s.logger.Debug("skipping stale correlated alerts cache fill",
			slog.Uint64("read_generation", gen),
			slog.Uint64("generation", s.generation),
		)
		return
	}
	if err := s.cache.Set(ctx, correlatedAlertsKey, data, s.cacheTTL); err != nil {
		s.logger.Warn("correlated alerts cache write failed", slog.Any("error", fmt.Errorf("set %s: %w", correlatedAlertsKey, err)))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if err := s.cache.Del(ctx, correlatedAlertsKey); err != nil {
		s.logger.Warn("correlated alerts cache invalidation failed", slog.Any("error", err))
	}
}
