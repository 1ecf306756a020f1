package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ledgerlens/fincorr/internal/api"
	"github.com/ledgerlens/fincorr/internal/cache"
	"github.com/ledgerlens/fincorr/internal/config"
	"github.com/ledgerlens/fincorr/internal/engine"
	"github.com/ledgerlens/fincorr/internal/extractors"
	"github.com/ledgerlens/fincorr/internal/metrics"
	"github.com/ledgerlens/fincorr/internal/repo"
	"github.com/ledgerlens/fincorr/internal/scoring"
	"github.com/ledgerlens/fincorr/internal/services"
	"github.com/ledgerlens/fincorr/internal/sla"
	"github.com/ledgerlens/fincorr/internal/utils"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC, dashboard HTTP and metrics servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, utils.NewLoggerTo(a.errOut, cfg.Logging.Level, cfg.Logging.JSON))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger = logger.With(slog.String("service", cfg.Tracing.ServiceName))
	logger.Info("starting fincorr",
		slog.String("grpc_address", cfg.Server.Address),
		slog.String("http_address", cfg.Server.HTTPAddress),
	)

	tracker := sla.NewTracker(cfg.SLA.WindowSize, cfg.SLA.SLAMS)
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if err := metrics.RegisterSLA(prometheus.DefaultRegisterer, tracker.Stats); err != nil {
		return fmt.Errorf("register sla metrics: %w", err)
	}

	store, err := repo.NewTransactionStore(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		cacheProvider = cache.NewMemoryProvider()
	}
	defer cacheProvider.Close()

	service := services.NewService(
		logger,
		store,
		engine.NewCorrelator(
			engine.WithWindow(cfg.Correlation.Window),
			engine.WithSortInput(cfg.Correlation.SortInput),
			engine.WithLogger(logger),
		),
		tracker,
		scoring.NewScorer(metrics.ScoreObserver{}, nil),
		extractors.NewAmountFlagger(cfg.Detection.ZScoreThreshold),
		cacheProvider,
		cfg.Cache.TTL,
	)

	grpcServer, err := api.NewServer(cfg.Server, api.NewGRPCHandler(logger, service))
	if err != nil {
		return fmt.Errorf("create gRPC server: %w", err)
	}

	servers := []*http.Server{{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           api.NewRouter(logger, service, cfg.CORS.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}}
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", slog.String("address", grpcServer.Address()))
		if err := grpcServer.Start(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("http server listening", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		grpcServer.Shutdown(shutdownCtx)
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http server shutdown", slog.String("address", srv.Addr), slog.Any("error", err))
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("fincorr stopped", slog.Any("sla", tracker.Stats()))
	return err
}
