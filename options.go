package vecserve

import (
	"time"

	"github.com/hupe1980/vecserve/blobstore"
	"github.com/hupe1980/vecserve/metrics"
	"github.com/hupe1980/vecserve/resource"
)

type options struct {
	logger        *Logger
	observer      metrics.Observer
	resolver      *blobstore.Resolver
	resources     *resource.Controller
	latencyWindow int
	qpsWindow     time.Duration
	loadParallel  int
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithObserver sets the event observer.
func WithObserver(obs metrics.Observer) Option {
	return func(o *options) {
		if obs == nil {
			obs = metrics.NoopObserver{}
		}
		o.observer = obs
	}
}

// WithResolver sets the resolver that maps load paths to blob stores.
// The default resolver only understands local paths.
func WithResolver(r *blobstore.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithResourceController bounds memory, IO and concurrency of loads.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithLatencyWindow sets how many latency samples feed the percentiles.
func WithLatencyWindow(n int) Option {
	return func(o *options) {
		o.latencyWindow = n
	}
}

// WithQPSWindow sets the sliding window of the QPS tracker.
func WithQPSWindow(d time.Duration) Option {
	return func(o *options) {
		o.qpsWindow = d
	}
}

// WithLoadParallelism sets the number of goroutines decoding a snapshot.
// Zero uses GOMAXPROCS.
func WithLoadParallelism(n int) Option {
	return func(o *options) {
		o.loadParallel = n
	}
}
