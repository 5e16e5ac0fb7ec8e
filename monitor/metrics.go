package monitor

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/runner"
)

const namespace = "cachesim"

// Collector exports simulation counters to Prometheus. It observes accesses
// as they happen and runs as they end.
type Collector struct {
	registry *prometheus.Registry

	hits        prometheus.Counter
	misses      prometheus.Counter
	evictions   prometheus.Counter
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram

	mu      sync.Mutex
	started map[string]time.Time
}

// NewCollector creates a Collector with its own registry.
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		started:  make(map[string]time.Time),
	}

	c.initMetrics()

	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return c, nil
}

func (c *Collector) initMetrics() {
	c.hits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hits_total",
		Help:      "Total number of cache hits",
	})

	c.misses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "misses_total",
		Help:      "Total number of cache misses",
	})

	c.evictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evictions_total",
		Help:      "Total number of misses that replaced an occupied line",
	})

	c.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of finished simulation runs",
		},
		[]string{"outcome"},
	)

	c.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of simulation runs",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.hits,
		c.misses,
		c.evictions,
		c.runs,
		c.runDuration,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveAccess counts one access. It has the runner.AccessObserver
// signature.
func (c *Collector) ObserveAccess(_ string, a cache.Access) {
	if a.Hit {
		c.hits.Inc()
		return
	}

	c.misses.Inc()
	if a.Evicted {
		c.evictions.Inc()
	}
}

// RunStarted remembers when the run began.
func (c *Collector) RunStarted(runID, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started[runID] = time.Now()
}

// RunSucceeded counts a successful run.
func (c *Collector) RunSucceeded(result *runner.Result) {
	c.finish(result.RunID, runner.Succeeded)
}

// RunFailed counts a failed run.
func (c *Collector) RunFailed(runID string, _ error) {
	c.finish(runID, runner.Failed)
}

func (c *Collector) finish(runID string, outcome runner.Kind) {
	c.runs.With(prometheus.Labels{"outcome": outcome.String()}).Inc()

	c.mu.Lock()
	start, ok := c.started[runID]
	delete(c.started, runID)
	c.mu.Unlock()

	if ok {
		c.runDuration.Observe(time.Since(start).Seconds())
	}
}
