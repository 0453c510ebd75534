package monitor

import (
	"context"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var (
	Registry = prometheus.NewRegistry()

	Classifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "objclassify_classifications_total",
		Help: "Classification requests by outcome",
	}, []string{"outcome"})

	InferenceSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "objclassify_inference_seconds",
		Help:    "Time spent inside the inference engine",
		Buckets: prometheus.ExponentialBuckets(0.002, 2, 12),
	})

	ModelLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "objclassify_model_loaded",
		Help: "1 when a model and its labels are loaded",
	})

	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_megabytes",
		Help: "Resident memory of this process in megabytes",
	})

	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage of this process in percent",
	})
)

func init() {
	Registry.MustRegister(Classifications, InferenceSeconds, ModelLoaded, memUsage, cpuUsage)
}

// Handler serves the metrics registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveClassification counts one classification outcome.
func ObserveClassification(outcome string) {
	Classifications.WithLabelValues(outcome).Inc()
}

// ObserveInference records how long an engine call took.
func ObserveInference(d time.Duration) {
	InferenceSeconds.Observe(d.Seconds())
}

func SetModelLoaded(loaded bool) {
	if loaded {
		ModelLoaded.Set(1)
		return
	}
	ModelLoaded.Set(0)
}

// StartProcessSampler updates the process memory/CPU gauges every 500ms
// until ctx is done.
func StartProcessSampler(ctx context.Context, log *zap.Logger) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		log.Warn("process metrics disabled", zap.Error(err))
		return
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample(ctx, proc)
		}
	}
}

func sample(ctx context.Context, proc *process.Process) {
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
		memUsage.Set(float64(mem.RSS / 1024 / 1024))
	}
	if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
		cpuUsage.Set(math.Round(pct*100) / 100)
	}
}
