package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Checkpoint database metrics
	dbQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainruntime_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"db", "operation"},
	)

	dbQueryTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainruntime_db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"db", "operation"},
	)

	dbErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainruntime_db_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"db", "error_type"},
	)

	// Scheduler metrics
	LastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainruntime_last_processed_block",
			Help: "The block number of the last committed item per chain",
		},
		[]string{"chain"},
	)

	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainruntime_items_processed_total",
			Help: "Total number of committed items per chain and kind",
		},
		[]string{"chain", "kind"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainruntime_handler_duration_seconds",
			Help:    "Time spent in loaders and handlers per subscription or block job",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	HandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainruntime_handler_failures_total",
			Help: "Total number of handler failures by chain and policy outcome",
		},
		[]string{"chain", "outcome"},
	)

	OrderingViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainruntime_ordering_violations_total",
			Help: "Total number of out-of-order items rejected per chain",
		},
		[]string{"chain"},
	)

	// Subscription metrics
	DynamicRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainruntime_dynamic_registrations_total",
			Help: "Total number of contracts registered by handlers",
		},
		[]string{"chain", "contract"},
	)

	// Entity store metrics
	EntityChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainruntime_entity_changes_total",
			Help: "Total number of entity writes and deletions committed",
		},
	)

	// Effect cache metrics
	EffectCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainruntime_effect_calls_total",
			Help: "Total number of effect invocations by result (hit, shared, miss, error)",
		},
		[]string{"effect", "result"},
	)

	EffectRateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainruntime_effect_rate_limit_wait_seconds",
			Help:    "Time effect calls spent waiting for the rate limiter",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"effect"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainruntime_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	ChainHalted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainruntime_chain_halted",
			Help: "Whether a chain stopped processing after a failure (1=halted)",
		},
		[]string{"chain_id"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainruntime_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainruntime_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainruntime_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10) //nolint:mnd
}

func DBQueryInc(db string, operation string) {
	dbQueries.WithLabelValues(db, operation).Inc()
}

func DBQueryDuration(db string, operation string, duration time.Duration) {
	dbQueryTime.WithLabelValues(db, operation).Observe(duration.Seconds())
}

func DBErrorsInc(db string, errorType string) {
	dbErrors.WithLabelValues(db, errorType).Inc()
}

func LastProcessedBlockSet(chainID, blockNum uint64) {
	LastProcessedBlock.WithLabelValues(chainLabel(chainID)).Set(float64(blockNum))
}

func ItemsProcessedInc(chainID uint64, kind string) {
	ItemsProcessed.WithLabelValues(chainLabel(chainID), kind).Inc()
}

func HandlerDurationLog(handler string, duration time.Duration) {
	HandlerDuration.WithLabelValues(handler).Observe(duration.Seconds())
}

func HandlerFailuresInc(chainID uint64, outcome string) {
	HandlerFailures.WithLabelValues(chainLabel(chainID), outcome).Inc()
}

func OrderingViolationsInc(chainID uint64) {
	OrderingViolations.WithLabelValues(chainLabel(chainID)).Inc()
}

func DynamicRegistrationsInc(chainID uint64, contract string) {
	DynamicRegistrations.WithLabelValues(chainLabel(chainID), contract).Inc()
}

func EntityChangesAdd(count int) {
	EntityChanges.Add(float64(count))
}

func EffectCallsInc(effect, result string) {
	EffectCalls.WithLabelValues(effect, result).Inc()
}

func EffectRateLimitWaitLog(effect string, duration time.Duration) {
	EffectRateLimitWait.WithLabelValues(effect).Observe(duration.Seconds())
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

func ChainHaltedSet(chainID uint64, halted bool) {
	v := float64(0)
	if halted {
		v = 1
	}
	ChainHalted.WithLabelValues(chainLabel(chainID)).Set(v)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
