package vecserve

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecserve/backend"
	"github.com/hupe1980/vecserve/blobstore"
	"github.com/hupe1980/vecserve/index"
	"github.com/hupe1980/vecserve/metrics"
	"github.com/hupe1980/vecserve/resource"
	"github.com/hupe1980/vecserve/snapshot"
)

// Defaults applied to LoadRequest.
const (
	DefaultMetric  = "cosine"
	DefaultBackend = backend.NameBruteForce
)

// LoadRequest names the snapshot to install.
type LoadRequest struct {
	// Path is the vectors file: a local path, file://, s3://, minio:// or
	// mem:// location.
	Path string
	// IDsPath is the optional ids file.
	IDsPath string
	Metric  string
	Backend string
}

// LoadResult describes the installed generation.
type LoadResult struct {
	Count        int
	Dim          int
	Backend      string
	Version      string
	ZeroNormRows uint64
}

// QueryResult is the answer to one query.
type QueryResult struct {
	Neighbors []backend.Neighbor
	Backend   string
	Latency   time.Duration
}

// Service is the query front end over a hot-swappable index.
// All methods are safe for concurrent use.
type Service struct {
	state index.State

	latency *metrics.LatencyTracker
	qps     *metrics.QPSTracker
	uptime  *metrics.UptimeTracker

	observer  metrics.Observer
	logger    *Logger
	resolver  *blobstore.Resolver
	resources *resource.Controller

	loadParallel int
	closed       atomic.Bool
}

// New creates an empty service. Queries fail with ErrNoIndexLoaded until
// the first successful Load.
func New(optFns ...Option) *Service {
	o := options{
		logger:   NoopLogger(),
		observer: metrics.NoopObserver{},
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.resolver == nil {
		o.resolver = blobstore.NewResolver()
	}

	return &Service{
		latency:      metrics.NewLatencyTracker(o.latencyWindow),
		qps:          metrics.NewQPSTracker(o.qpsWindow),
		uptime:       metrics.NewUptimeTracker(),
		observer:     o.observer,
		logger:       o.logger,
		resolver:     o.resolver,
		resources:    o.resources,
		loadParallel: o.loadParallel,
	}
}

// Load reads a snapshot, builds a backend over it and publishes it as the
// active generation. A failed load leaves the active generation untouched.
func (s *Service) Load(ctx context.Context, req LoadRequest) (LoadResult, error) {
	start := time.Now()
	res, err := s.load(ctx, req)
	d := time.Since(start)

	s.observer.OnLoad(d, res.Count, res.Dim, err)
	s.logger.LogLoad(ctx, req.Path, res, d, err)
	return res, err
}

func (s *Service) load(ctx context.Context, req LoadRequest) (LoadResult, error) {
	if s.closed.Load() {
		return LoadResult{}, ErrClosed
	}
	if req.Metric == "" {
		req.Metric = DefaultMetric
	}
	if req.Backend == "" {
		req.Backend = DefaultBackend
	}

	if !backend.Supported(req.Backend) {
		return LoadResult{}, fmt.Errorf("%w: %q", ErrUnsupportedBackend, req.Backend)
	}
	if req.Metric != DefaultMetric {
		return LoadResult{}, fmt.Errorf("%w: unsupported metric %q", ErrInvalidField, req.Metric)
	}
	if req.Path == "" {
		return LoadResult{}, fmt.Errorf("%w: path", ErrMissingField)
	}

	if err := s.resources.AcquireLoad(ctx); err != nil {
		return LoadResult{}, fmt.Errorf("%w: waiting for a load slot: %w", ErrLoadFailed, err)
	}
	defer s.resources.ReleaseLoad()

	store, name, err := s.resolver.Resolve(ctx, req.Path)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	opts := []snapshot.Option{
		snapshot.WithLogger(s.logger.Logger),
		snapshot.WithResourceController(s.resources),
	}
	if s.loadParallel > 0 {
		opts = append(opts, snapshot.WithParallelism(s.loadParallel))
	}

	var idsName string
	if req.IDsPath != "" {
		idsStore, n, err := s.resolver.Resolve(ctx, req.IDsPath)
		if err != nil {
			// Same treatment as an unreadable ids file.
			s.logger.WarnContext(ctx, "ids path unusable, using default ids",
				"ids_path", req.IDsPath,
				"error", err,
			)
		} else {
			idsName = n
			opts = append(opts, snapshot.WithIDsStore(idsStore))
		}
	}

	snap, err := snapshot.Load(ctx, store, name, idsName, opts...)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	zeroRows := snap.ZeroNorms().GetCardinality()

	b, err := backend.New(req.Backend, snap)
	if err != nil {
		snap.Release()
		return LoadResult{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	gen, prev, err := s.state.Swap(b, req.Backend, req.Metric)
	if err != nil {
		_ = b.Close()
		return LoadResult{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if s.closed.Load() {
		// Close ran while the snapshot was loading.
		if g := s.state.Reset(); g != nil {
			_ = g.Searcher.Close()
		}
		if prev != nil {
			_ = prev.Searcher.Close()
		}
		return LoadResult{}, ErrClosed
	}

	prevVersion := ""
	if prev != nil {
		prevVersion = prev.Version
		// In-flight queries on prev keep working; only accounting ends.
		_ = prev.Searcher.Close()
	}
	s.observer.OnSwap(gen.Version, gen.Count, gen.Dim)
	s.logger.LogSwap(ctx, gen.Version, prevVersion)

	return LoadResult{
		Count:        gen.Count,
		Dim:          gen.Dim,
		Backend:      gen.Backend,
		Version:      gen.Version,
		ZeroNormRows: zeroRows,
	}, nil
}

// Query returns the k most similar vectors to vector in the active
// generation. k larger than the row count is clamped. The whole query runs
// against the generation that was active when it started.
func (s *Service) Query(ctx context.Context, vector []float32, k int) (QueryResult, error) {
	start := time.Now()
	res, err := s.query(ctx, vector, k)
	d := time.Since(start)

	s.observer.OnQuery(d, k, len(res.Neighbors), err)
	s.logger.LogQuery(ctx, k, len(res.Neighbors), d, err)
	return res, err
}

func (s *Service) query(ctx context.Context, vector []float32, k int) (QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("%w: %w", ErrCanceled, err)
	}

	gen, ok := s.state.Current()
	if !ok {
		return QueryResult{}, ErrNoIndexLoaded
	}
	if len(vector) == 0 {
		return QueryResult{}, fmt.Errorf("%w: vector is empty", ErrInvalidField)
	}
	if len(vector) != gen.Dim {
		return QueryResult{}, &ErrDimensionMismatch{Expected: gen.Dim, Actual: len(vector)}
	}
	if k <= 0 {
		return QueryResult{}, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	for i, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return QueryResult{}, fmt.Errorf("%w: vector[%d] is not finite", ErrInvalidField, i)
		}
	}
	k = min(k, gen.Count)

	start := time.Now()
	neighbors := gen.Searcher.SearchKNN(vector, k)
	elapsed := time.Since(start)

	s.latency.Record(float64(elapsed.Nanoseconds()) / 1e6)
	s.qps.Record()

	return QueryResult{
		Neighbors: neighbors,
		Backend:   gen.Backend,
		Latency:   elapsed,
	}, nil
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Status          string              `json:"status"`
	Count           int                 `json:"count"`
	Dim             int                 `json:"dim"`
	Backend         string              `json:"backend"`
	Metric          string              `json:"metric"`
	SnapshotVersion string              `json:"snapshot_version"`
	UptimeSec       float64             `json:"uptime_sec"`
	QPS1m           float64             `json:"qps_1m"`
	LatencyMS       metrics.Percentiles `json:"latency_ms"`
}

// Stats reports the active generation and the query trackers.
func (s *Service) Stats() Stats {
	st := Stats{
		Status:    index.StatusEmpty,
		UptimeSec: s.uptime.Seconds(),
		QPS1m:     s.qps.QPS(),
		LatencyMS: s.latency.Summary(),
	}
	if gen, ok := s.state.Current(); ok {
		st.Status = index.StatusReady
		st.Count = gen.Count
		st.Dim = gen.Dim
		st.Backend = gen.Backend
		st.Metric = gen.Metric
		st.SnapshotVersion = gen.Version
	}
	return st
}

// Ready reports whether a generation is active.
func (s *Service) Ready() bool {
	_, ok := s.state.Current()
	return ok
}

// Close drops the active generation. Later loads fail with ErrClosed;
// queries fail with ErrNoIndexLoaded.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if prev := s.state.Reset(); prev != nil {
		return prev.Searcher.Close()
	}
	return nil
}
