// Package metrics exposes the decode pipeline's Prometheus series plus a
// cheap local mirror for logging: promauto registration at package init,
// with an atomic-snapshot mirror of the hot counters rather than
// querying the registry in the hot path.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/daniel5gh/alphastream-go/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series.
var (
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frames_decoded_total",
		Help: "Total frames successfully decoded and rasterized.",
	})
	FramesDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frames_decode_errors_total",
		Help: "Total frame decode attempts that ended in error.",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total get_frame calls served from a Ready cache slot.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total get_frame calls that found no Ready cache slot.",
	})
	CacheReadySlots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cache_ready_slots",
		Help: "Current number of Ready slots in the frame cache.",
	})
	CacheInProgressSlots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cache_inprogress_slots",
		Help: "Current number of InProgress slots in the frame cache.",
	})
	CacheGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cache_generation",
		Help: "Current cache invalidation generation counter.",
	})
	SchedulerActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_active_tasks",
		Help: "Decode jobs currently dispatched to a worker.",
	})
	SchedulerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_queue_depth",
		Help: "Tasks waiting in the scheduler's priority queue.",
	})
	PrefetchScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prefetch_scheduled_total",
		Help: "Total prefetch tasks scheduled ahead of the play head.",
	})
	SeeksDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seeks_detected_total",
		Help: "Total play head moves classified as a seek (cache invalidated).",
	})
	ContainerOpenSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "container_open_seconds",
		Help:    "Time spent parsing a container's header and frame table.",
		Buckets: prometheus.DefBuckets,
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrContainerOpen  = "container_open"
	ErrFrameDecode    = "frame_decode"
	ErrByteSourceRead = "bytesource_read"
)

// StartHTTP serves Prometheus metrics and a readiness probe on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters, read without touching the Prometheus registry.
var (
	localDecoded      uint64
	localDecodeErrors uint64
	localCacheHits    uint64
	localCacheMisses  uint64
	localPrefetched   uint64
	localSeeks        uint64
	localErrors       uint64
)

// Snapshot is a cheap copy of the local counters, for status logging.
type Snapshot struct {
	Decoded      uint64
	DecodeErrors uint64
	CacheHits    uint64
	CacheMisses  uint64
	Prefetched   uint64
	Seeks        uint64
	Errors       uint64
}

func Snap() Snapshot {
	return Snapshot{
		Decoded:      atomic.LoadUint64(&localDecoded),
		DecodeErrors: atomic.LoadUint64(&localDecodeErrors),
		CacheHits:    atomic.LoadUint64(&localCacheHits),
		CacheMisses:  atomic.LoadUint64(&localCacheMisses),
		Prefetched:   atomic.LoadUint64(&localPrefetched),
		Seeks:        atomic.LoadUint64(&localSeeks),
		Errors:       atomic.LoadUint64(&localErrors),
	}
}

func IncFramesDecoded() {
	FramesDecoded.Inc()
	atomic.AddUint64(&localDecoded, 1)
}

func IncFramesDecodeErrors() {
	FramesDecodeErrors.Inc()
	atomic.AddUint64(&localDecodeErrors, 1)
}

func IncCacheHit() {
	CacheHits.Inc()
	atomic.AddUint64(&localCacheHits, 1)
}

func IncCacheMiss() {
	CacheMisses.Inc()
	atomic.AddUint64(&localCacheMisses, 1)
}

func IncPrefetchScheduled() {
	PrefetchScheduled.Inc()
	atomic.AddUint64(&localPrefetched, 1)
}

func IncSeekDetected() {
	SeeksDetected.Inc()
	atomic.AddUint64(&localSeeks, 1)
}

func SetCacheGauges(ready, inProgress int, generation uint64) {
	CacheReadySlots.Set(float64(ready))
	CacheInProgressSlots.Set(float64(inProgress))
	CacheGeneration.Set(float64(generation))
}

func SetSchedulerGauges(active, queueDepth int) {
	SchedulerActiveTasks.Set(float64(active))
	SchedulerQueueDepth.Set(float64(queueDepth))
}

func ObserveContainerOpenSeconds(seconds float64) {
	ContainerOpenSeconds.Observe(seconds)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (call once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrContainerOpen, ErrFrameDecode, ErrByteSourceRead} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
