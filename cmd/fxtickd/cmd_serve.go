package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	"github.com/fxcore/tickpipe/internal/batcher"
	"github.com/fxcore/tickpipe/internal/broker"
	"github.com/fxcore/tickpipe/internal/health"
	"github.com/fxcore/tickpipe/internal/netutil"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live ingestion pipeline: broker sessions, tick batcher, health and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", ":8080", "address for the /healthz and /metrics HTTP endpoints")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lakeStore, err := buildLakeStore(ctx, cfg.Lake)
	if err != nil {
		return err
	}
	_, storeHealth, closeStore, err := buildCandleStore(cfg.Postgres)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	reg := newMetricsRegistry()

	router := broker.NewRouter()
	for _, venueCfg := range cfg.Venues {
		vc := broker.VenueConfig{
			Name: venueCfg.Name, Kind: venueCfg.Kind, AssetClass: venueCfg.AssetClass,
			Endpoint: venueCfg.Endpoint, APIKey: venueCfg.APIKey, AccountID: venueCfg.AccountID,
		}
		if err := router.AddVenue(ctx, vc); err != nil {
			log.Warn().Err(err).Str("venue", venueCfg.Name).Msg("failed to add venue at startup")
		}
	}

	tickBatcher := batcher.New(batcher.Config{
		MaxBatchSize:  cfg.Batcher.MaxBatchSize,
		MaxBatchAge:   cfg.Batcher.MaxBatchAge,
		SweepInterval: cfg.Batcher.SweepInterval,
	}, lakeStore).WithMetrics(reg)

	var batcherRunning bool
	go func() {
		batcherRunning = true
		tickBatcher.Run(ctx)
		batcherRunning = false
	}()

	go func() {
		for ev := range router.Ticks() {
			tickBatcher.Accept(ctx, ev.Symbol, ev.Tick)
		}
	}()

	providerClient := netutil.NewProviderClient(netutil.ProviderClientConfig{
		Provider:       "historical",
		Host:           cfg.Importer.ProviderBaseURL,
		RequestTimeout: 30 * time.Second,
		RPS:            cfg.Importer.ProviderRPS,
		Burst:          cfg.Importer.ProviderBurst,
		DailyLimit:     cfg.Importer.DailyRequestLimit,
	})

	checkers := []health.Checker{
		health.BreakerChecker{Name: "historical-provider", State: func() health.BreakerState {
			return mapBreakerState(providerClient.BreakerState())
		}},
		health.LivenessChecker{Name: "batcher", Alive: func() bool { return batcherRunning }},
	}
	if storeHealth != nil {
		checkers = append(checkers, health.StoreChecker{Name: "postgres", Health: storeHealth})
	}
	reporter := health.NewReporter(checkers...)

	mux := http.NewServeMux()
	mux.Handle("/healthz", reporter.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: requestIDMiddleware(mux)}
	go func() {
		log.Info().Str("addr", addr).Msg("serve: http endpoints listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("serve: http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("serve: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	tickBatcher.Stop(shutdownCtx)
	if err := router.DisconnectAll(); err != nil {
		log.Warn().Err(err).Msg("serve: error disconnecting broker sessions")
	}

	fmt.Println("serve: stopped")
	return nil
}

// requestIDMiddleware tags every /healthz and /metrics request with a
// short request ID, echoed back in X-Request-ID for log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func mapBreakerState(s gobreaker.State) health.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return health.BreakerOpen
	case gobreaker.StateHalfOpen:
		return health.BreakerHalfOpen
	default:
		return health.BreakerClosed
	}
}
