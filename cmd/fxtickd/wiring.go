package main

import (
	"context"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fxcore/tickpipe/internal/config"
	"github.com/fxcore/tickpipe/internal/lake"
	"github.com/fxcore/tickpipe/internal/logging"
	"github.com/fxcore/tickpipe/internal/metrics"
	"github.com/fxcore/tickpipe/internal/store"
	"github.com/fxcore/tickpipe/internal/store/postgres"
)

// loadConfig reads the --config flag (if set) through internal/config
// and installs the configured log level on the process-wide logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = cmd.Root().PersistentFlags().GetString("config")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Logger = logging.New(os.Stderr, cfg.LogLevel, false)
	return cfg, nil
}

// buildLakeStore constructs the S3-backed object store from cfg, or an
// in-memory store when no bucket is configured (local/dry-run use).
func buildLakeStore(ctx context.Context, cfg config.LakeConfig) (lake.Store, error) {
	if cfg.Bucket == "" {
		log.Warn().Msg("no lake bucket configured, using in-memory store")
		return lake.NewMemoryStore(), nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("fxtickd: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})

	return lake.NewS3Store(client, cfg.Bucket), nil
}

// buildCandleStore opens the Postgres connection pool, or returns nil
// when no DSN is configured (dry-run / analyze-only invocations).
func buildCandleStore(cfg config.PostgresConfig) (store.CandleRepo, store.Health, func() error, error) {
	if cfg.DSN == "" {
		return nil, nil, func() error { return nil }, nil
	}

	mgr, err := postgres.NewManager(postgres.Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		QueryTimeout:    cfg.QueryTimeout,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return mgr.Candles(), mgr.Health(), mgr.Close, nil
}

func newMetricsRegistry() *metrics.Registry { return metrics.New() }

const dateLayout = "2006-01-02"

func parseUTCDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("fxtickd: invalid date %q, want YYYY-MM-DD: %w", s, err)
	}
	return t.UTC(), nil
}
