package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	featuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_features_total",
			Help: "Features seen by each pipeline, by outcome (in, out, dropped).",
		},
		[]string{"category", "outcome"},
	)

	pipelineDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "processor_pipeline_duration_seconds",
			Help:    "Wall-clock duration of a category pipeline.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14), // 0.5s to ~2h
		},
		[]string{"category", "status"},
	)

	elevationLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elevation_lookups_total",
			Help: "Remote elevation lookup attempts by outcome.",
		},
		[]string{"outcome"},
	)

	elevationCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elevation_cache_results_total",
			Help: "Elevation cache results by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	elevationEnrich = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elevation_enrich_total",
			Help: "Feature enrichments by feature kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	elevationThrottleOpen = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elevation_throttle_events_total",
			Help: "Times the elevation service throttled the processor.",
		},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis cache operations by result.",
		},
		[]string{"op", "result"},
	)

	redisOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of Redis cache operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)
)

// Init registers the collectors on reg. Registering twice on the same registry is a no-op.
func Init(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		featuresTotal,
		pipelineDurationSeconds,
		elevationLookups,
		elevationCache,
		elevationEnrich,
		elevationThrottleOpen,
		cacheOpTotal,
		redisOpDurationSeconds,
		upstreamLatencySeconds,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func AddFeatures(category, outcome string, n int) {
	if n > 0 {
		featuresTotal.WithLabelValues(category, outcome).Add(float64(n))
	}
}

func ObservePipeline(category string, failed bool, durationSeconds float64) {
	status := "ok"
	if failed {
		status = "error"
	}
	pipelineDurationSeconds.WithLabelValues(category, status).Observe(durationSeconds)
}

func IncElevationLookup(outcome string) {
	elevationLookups.WithLabelValues(outcome).Inc()
}

func IncElevationCache(tier string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	elevationCache.WithLabelValues(tier, outcome).Inc()
}

func IncEnrich(kind, outcome string) {
	elevationEnrich.WithLabelValues(kind, outcome).Inc()
}

func IncThrottle() { elevationThrottleOpen.Inc() }

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpTotal.WithLabelValues(op, result).Inc()
	redisOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}
