package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecserve"
	"github.com/hupe1980/vecserve/blobstore"
	miniostore "github.com/hupe1980/vecserve/blobstore/minio"
	s3store "github.com/hupe1980/vecserve/blobstore/s3"
	"github.com/hupe1980/vecserve/internal/config"
	"github.com/hupe1980/vecserve/metrics"
	"github.com/hupe1980/vecserve/resource"
	"github.com/hupe1980/vecserve/server"
)

type serveOptions struct {
	configPath  string
	listen      string
	logLevel    string
	logFormat   string
	memoryBytes int64
	queryRPS    float64
	metrics     bool
	preload     string
	preloadIDs  string
}

func addServeFlags(cmd *cobra.Command, o *serveOptions) {
	fs := cmd.Flags()
	fs.StringVarP(&o.listen, "listen", "l", "", "listen address (overrides config)")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", "", "text or json")
	fs.Int64Var(&o.memoryBytes, "memory-limit", 0, "snapshot memory limit in bytes, 0 for unlimited")
	fs.Float64Var(&o.queryRPS, "query-rps", 0, "query rate limit, 0 for unlimited")
	fs.BoolVar(&o.metrics, "metrics", true, "expose GET /metrics")
	fs.StringVar(&o.preload, "preload", "", "snapshot to load at startup")
	fs.StringVar(&o.preloadIDs, "preload-ids", "", "ids file for --preload")
}

// resolveConfig loads the config file and applies explicitly set flags.
func resolveConfig(cmd *cobra.Command, o *serveOptions) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	fs := cmd.Flags()
	if fs.Changed("listen") {
		cfg.Listen = o.listen
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if fs.Changed("memory-limit") {
		cfg.Limits.MemoryBytes = o.memoryBytes
	}
	if fs.Changed("query-rps") {
		cfg.Limits.QueryRPS = o.queryRPS
	}
	if fs.Changed("metrics") {
		cfg.Metrics.Enabled = o.metrics
	}
	if fs.Changed("preload") {
		cfg.Preload.Path = o.preload
	}
	if fs.Changed("preload-ids") {
		cfg.Preload.IDsPath = o.preloadIDs
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, o *serveOptions) error {
	cfg, err := resolveConfig(cmd, o)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.preload(ctx); err != nil {
		return err
	}

	return a.server.Run(ctx, cfg.Listen)
}

func newLogger(c config.LogConfig, w io.Writer) (*vecserve.Logger, error) {
	level, err := config.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return vecserve.NewLogger(slog.NewJSONHandler(w, opts)), nil
	}
	return vecserve.NewLogger(slog.NewTextHandler(w, opts)), nil
}

// app is the wired process: service, HTTP server and their collaborators.
type app struct {
	cfg      *config.Config
	logger   *vecserve.Logger
	svc      *vecserve.Service
	server   *server.Server
	registry *prometheus.Registry
	counters *metrics.BasicObserver
}

func newApp(cfg *config.Config, logger *vecserve.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		counters: &metrics.BasicObserver{},
	}

	observers := metrics.MultiObserver{a.counters}
	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithQueryRateLimit(cfg.Limits.QueryRPS, 0),
	}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		prom, err := metrics.NewPrometheusObserver(a.registry)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		observers = append(observers, prom)
		serverOpts = append(serverOpts, server.WithGatherer(a.registry))
	}

	a.svc = vecserve.New(
		vecserve.WithLogger(logger),
		vecserve.WithObserver(observers),
		vecserve.WithResolver(newResolver(cfg)),
		vecserve.WithResourceController(resource.NewController(resource.Config{
			MemoryLimitBytes:   cfg.Limits.MemoryBytes,
			MaxConcurrentLoads: cfg.Limits.MaxConcurrentLoads,
			IOLimitBytesPerSec: cfg.Limits.IOBytesPerSec,
		})),
		vecserve.WithLatencyWindow(cfg.LatencyWindow),
		vecserve.WithQPSWindow(cfg.QPSWindow),
	)
	a.server = server.New(a.svc, serverOpts...)
	return a, nil
}

// preload installs the configured startup snapshot, if any.
func (a *app) preload(ctx context.Context) error {
	if a.cfg.Preload.Path == "" {
		return nil
	}
	_, err := a.svc.Load(ctx, vecserve.LoadRequest{
		Path:    a.cfg.Preload.Path,
		IDsPath: a.cfg.Preload.IDsPath,
	})
	if err != nil {
		return fmt.Errorf("preload %s: %w", a.cfg.Preload.Path, err)
	}
	return nil
}

func (a *app) close() {
	st := a.counters.Stats()
	a.logger.Info("shutdown",
		"queries", st.QueryCount,
		"query_errors", st.QueryErrors,
		"loads", st.LoadCount,
		"load_errors", st.LoadErrors,
		"version", st.CurrentVersion,
	)
	if err := a.svc.Close(); err != nil {
		a.logger.Warn("close service", "error", err)
	}
}

// newResolver wires the s3:// and minio:// schemes from cfg. Local paths
// and file:// are always available.
func newResolver(cfg *config.Config) *blobstore.Resolver {
	r := blobstore.NewResolver()

	s3cfg := cfg.S3
	r.Register("s3", func(ctx context.Context, bucket string) (blobstore.BlobStore, error) {
		var opts []s3store.Option
		if s3cfg.Region != "" {
			opts = append(opts, s3store.WithRegion(s3cfg.Region))
		}
		if s3cfg.Endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(s3cfg.Endpoint))
		}
		if s3cfg.UsePathStyle {
			opts = append(opts, s3store.WithPathStyle(true))
		}
		st, err := s3store.New(ctx, bucket, opts...)
		if err != nil {
			return nil, err
		}
		return st, nil
	})

	if mc := cfg.MinIO; mc.Endpoint != "" {
		r.Register("minio", func(_ context.Context, bucket string) (blobstore.BlobStore, error) {
			st, err := miniostore.New(miniostore.Config{
				Endpoint:  mc.Endpoint,
				AccessKey: mc.AccessKey,
				SecretKey: mc.SecretKey,
				Secure:    mc.Secure,
			}, bucket)
			if err != nil {
				return nil, err
			}
			return st, nil
		})
	}
	return r
}
